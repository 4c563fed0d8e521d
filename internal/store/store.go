package store

import (
	"context"
	"errors"
	"fmt"

	"tokostok/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrVersionConflict    = errors.New("version changed concurrently")
)

// Code classifies a failed local write for callers that report errors by code.
type Code string

const (
	CodeInsert Code = "INSERT_DATABASE_ERROR"
	CodeUpdate Code = "UPDATE_DATABASE_ERROR"
	CodeDelete Code = "DELETE_DATABASE_ERROR"
)

type OpError struct {
	Code Code
	Kind domain.Kind
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Code, e.Kind, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func wrapOp(code Code, kind domain.Kind, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Code: code, Kind: kind, Err: err}
}

// CodeOf extracts the failure code of a store write, if err carries one.
func CodeOf(err error) (Code, bool) {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Code, true
	}
	return "", false
}

// InsertMode says whether an insert creates a new row or writes a row whose
// id was assigned elsewhere (a pulled row).
type InsertMode struct {
	id int64
}

// AsNew asks the table to allocate the next id.
func AsNew() InsertMode {
	return InsertMode{}
}

// WithID writes the row under id, replacing any row already stored there.
func WithID(id int64) InsertMode {
	if id == 0 {
		return InsertMode{id: -1}
	}
	return InsertMode{id: id}
}

func (m InsertMode) ExplicitID() (int64, bool) {
	return m.id, m.id != 0
}

func (m InsertMode) Validate() error {
	if m.id < 0 {
		return fmt.Errorf("%w: explicit id must be positive", ErrInvalidTransaction)
	}
	return nil
}

// DB is a transactional store holding one table per entity kind plus the
// shared version table.
type DB interface {
	// Update runs fn in a serialized read-write transaction. The transaction
	// commits only when fn returns nil.
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
	// Subscribe delivers a signal after every committed transaction that
	// wrote the kind. Signals coalesce; the cancel func must be called.
	Subscribe(kind domain.Kind) (<-chan struct{}, func())
	Close() error
}

type Tx interface {
	Versions() VersionTable
	Products() Table[domain.Product]
	Customers() Table[domain.Customer]
	StockItems() Table[domain.StockItem]
	StockOrders() Table[domain.StockOrder]
	Catalogs() Table[domain.Catalog]
	Sales() Table[domain.Sale]
	Deliveries() Table[domain.Delivery]
	SearchCaches() Table[domain.SearchCache]
}

type Table[T domain.Entity[T]] interface {
	Get(ctx context.Context, id int64) (T, error)
	// List returns every row ordered by id.
	List(ctx context.Context) ([]T, error)
	// Last returns the row with the highest id.
	Last(ctx context.Context) (T, error)
	Insert(ctx context.Context, mode InsertMode, row T) (int64, error)
	// Update overwrites an existing row and returns ErrNotFound otherwise.
	Update(ctx context.Context, row T) error
	// Delete reports whether a row existed.
	Delete(ctx context.Context, id int64) (bool, error)
}

type VersionTable interface {
	Get(ctx context.Context, kind domain.Kind) (domain.DataVersion, error)
	// Put upserts the row and bumps its generation.
	Put(ctx context.Context, v domain.DataVersion) (domain.DataVersion, error)
	// CompareAndSwap writes v only if the stored generation still equals
	// expected (0 for an absent row). It returns ErrVersionConflict otherwise.
	CompareAndSwap(ctx context.Context, v domain.DataVersion, expected int64) (domain.DataVersion, error)
}

// TableFunc selects one kind's table from a transaction. Method expressions
// such as Tx.Sales satisfy it.
type TableFunc[T domain.Entity[T]] func(Tx) Table[T]

// TableFor returns the table accessor for kind. It panics when T does not
// match the kind, which is a wiring bug.
func TableFor[T domain.Entity[T]](kind domain.Kind) TableFunc[T] {
	var fn any
	switch kind {
	case domain.KindProduct:
		fn = TableFunc[domain.Product](Tx.Products)
	case domain.KindCustomer:
		fn = TableFunc[domain.Customer](Tx.Customers)
	case domain.KindStockItem:
		fn = TableFunc[domain.StockItem](Tx.StockItems)
	case domain.KindStockOrder:
		fn = TableFunc[domain.StockOrder](Tx.StockOrders)
	case domain.KindCatalog:
		fn = TableFunc[domain.Catalog](Tx.Catalogs)
	case domain.KindSale:
		fn = TableFunc[domain.Sale](Tx.Sales)
	case domain.KindDelivery:
		fn = TableFunc[domain.Delivery](Tx.Deliveries)
	case domain.KindSearchCache:
		fn = TableFunc[domain.SearchCache](Tx.SearchCaches)
	}
	table, ok := fn.(TableFunc[T])
	if !ok {
		panic(fmt.Sprintf("store: no %T table for kind %s", *new(T), kind))
	}
	return table
}
