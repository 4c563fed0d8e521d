// Package sqlstore implements store.Tx over any sqlx connection. Every kind
// lives in its own table of (id, stamp, data) rows, data holding the
// entity as JSON; versions live in data_versions.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"tokostok/backend/internal/domain"
	"tokostok/backend/internal/store"
)

// Dialect carries the few statements that differ between engines. Queries
// are written with ? placeholders and rebound for the driver.
type Dialect struct {
	// LockSuffix is appended to reads made inside a write transaction.
	LockSuffix string
	// DataSelect is the select expression that yields data as text.
	DataSelect string
}

var (
	SQLite   = Dialect{DataSelect: "data"}
	Postgres = Dialect{LockSuffix: " FOR UPDATE", DataSelect: "data::text"}
)

// TableName is the SQL table holding kind's rows.
func TableName(kind domain.Kind) string {
	return strings.ReplaceAll(kind.Collection(), "-", "_")
}

type Tx struct {
	q       sqlx.ExtContext
	dialect Dialect
	write   bool
	touched map[domain.Kind]bool
}

// NewTx wraps q. A read-only Tx rejects writes.
func NewTx(q sqlx.ExtContext, dialect Dialect, write bool) *Tx {
	return &Tx{q: q, dialect: dialect, write: write, touched: make(map[domain.Kind]bool)}
}

// Touched lists the kinds written through this Tx.
func (t *Tx) Touched() []domain.Kind {
	kinds := make([]domain.Kind, 0, len(t.touched))
	for kind := range t.touched {
		kinds = append(kinds, kind)
	}
	return kinds
}

func (t *Tx) Versions() store.VersionTable {
	return versionTable{tx: t}
}

func (t *Tx) Products() store.Table[domain.Product] {
	return tableOf[domain.Product](t, domain.KindProduct)
}

func (t *Tx) Customers() store.Table[domain.Customer] {
	return tableOf[domain.Customer](t, domain.KindCustomer)
}

func (t *Tx) StockItems() store.Table[domain.StockItem] {
	return tableOf[domain.StockItem](t, domain.KindStockItem)
}

func (t *Tx) StockOrders() store.Table[domain.StockOrder] {
	return tableOf[domain.StockOrder](t, domain.KindStockOrder)
}

func (t *Tx) Catalogs() store.Table[domain.Catalog] {
	return tableOf[domain.Catalog](t, domain.KindCatalog)
}

func (t *Tx) Sales() store.Table[domain.Sale] {
	return tableOf[domain.Sale](t, domain.KindSale)
}

func (t *Tx) Deliveries() store.Table[domain.Delivery] {
	return tableOf[domain.Delivery](t, domain.KindDelivery)
}

func (t *Tx) SearchCaches() store.Table[domain.SearchCache] {
	return tableOf[domain.SearchCache](t, domain.KindSearchCache)
}

func (t *Tx) lock() string {
	if t.write {
		return t.dialect.LockSuffix
	}
	return ""
}

func (t *Tx) mustWrite(kind domain.Kind) error {
	if !t.write {
		return fmt.Errorf("write to %s in read-only transaction", kind)
	}
	t.touched[kind] = true
	return nil
}

type entityRow struct {
	ID        int64  `db:"id"`
	Timestamp string `db:"stamp"`
	Data      string `db:"data"`
}

type table[T domain.Entity[T]] struct {
	tx   *Tx
	kind domain.Kind
	name string
}

func tableOf[T domain.Entity[T]](t *Tx, kind domain.Kind) store.Table[T] {
	return table[T]{tx: t, kind: kind, name: TableName(kind)}
}

func (tb table[T]) columns() string {
	return "id, stamp, " + tb.tx.dialect.DataSelect + " AS data"
}

func (tb table[T]) decode(row entityRow) (T, error) {
	var out T
	if err := json.Unmarshal([]byte(row.Data), &out); err != nil {
		return out, fmt.Errorf("decode %s row %d: %w", tb.kind, row.ID, err)
	}
	return out.WithKey(row.ID).WithStamp(row.Timestamp), nil
}

func (tb table[T]) Get(ctx context.Context, id int64) (T, error) {
	var row entityRow
	query := tb.tx.q.Rebind(`SELECT ` + tb.columns() + ` FROM ` + tb.name + ` WHERE id = ?` + tb.tx.lock())
	if err := sqlx.GetContext(ctx, tb.tx.q, &row, query, id); err != nil {
		var zero T
		if errors.Is(err, sql.ErrNoRows) {
			return zero, store.ErrNotFound
		}
		return zero, err
	}
	return tb.decode(row)
}

func (tb table[T]) List(ctx context.Context) ([]T, error) {
	var rows []entityRow
	if err := sqlx.SelectContext(ctx, tb.tx.q, &rows, `SELECT `+tb.columns()+` FROM `+tb.name+` ORDER BY id`); err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		decoded, err := tb.decode(row)
		if err != nil {
			return nil, err
		}
		out = append(out, decoded)
	}
	return out, nil
}

func (tb table[T]) Last(ctx context.Context) (T, error) {
	var row entityRow
	err := sqlx.GetContext(ctx, tb.tx.q, &row, `SELECT `+tb.columns()+` FROM `+tb.name+` ORDER BY id DESC LIMIT 1`)
	if err != nil {
		var zero T
		if errors.Is(err, sql.ErrNoRows) {
			return zero, store.ErrNotFound
		}
		return zero, err
	}
	return tb.decode(row)
}

func (tb table[T]) Insert(ctx context.Context, mode store.InsertMode, row T) (int64, error) {
	if err := mode.Validate(); err != nil {
		return 0, err
	}
	if err := tb.tx.mustWrite(tb.kind); err != nil {
		return 0, err
	}

	id, explicit := mode.ExplicitID()
	if !explicit {
		if err := sqlx.GetContext(ctx, tb.tx.q, &id, `SELECT COALESCE(MAX(id), 0) + 1 FROM `+tb.name); err != nil {
			return 0, err
		}
	}
	row = row.WithKey(id)
	data, err := json.Marshal(row)
	if err != nil {
		return 0, err
	}

	_, err = tb.tx.q.ExecContext(ctx, tb.tx.q.Rebind(`
		INSERT INTO `+tb.name+` (id, stamp, data)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET stamp = excluded.stamp, data = excluded.data
	`), id, row.Stamp(), string(data))
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (tb table[T]) Update(ctx context.Context, row T) error {
	if err := tb.tx.mustWrite(tb.kind); err != nil {
		return err
	}
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}

	res, err := tb.tx.q.ExecContext(ctx, tb.tx.q.Rebind(`
		UPDATE `+tb.name+` SET stamp = ?, data = ? WHERE id = ?
	`), row.Stamp(), string(data), row.Key())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (tb table[T]) Delete(ctx context.Context, id int64) (bool, error) {
	if err := tb.tx.mustWrite(tb.kind); err != nil {
		return false, err
	}
	res, err := tb.tx.q.ExecContext(ctx, tb.tx.q.Rebind(`DELETE FROM `+tb.name+` WHERE id = ?`), id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

type versionRow struct {
	ID         int64  `db:"id"`
	Name       string `db:"name"`
	Timestamp  string `db:"stamp"`
	Generation int64  `db:"generation"`
}

type versionTable struct {
	tx *Tx
}

func (v versionTable) Get(ctx context.Context, kind domain.Kind) (domain.DataVersion, error) {
	var row versionRow
	query := v.tx.q.Rebind(`SELECT id, name, stamp, generation FROM data_versions WHERE id = ?` + v.tx.lock())
	if err := sqlx.GetContext(ctx, v.tx.q, &row, query, int64(kind)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DataVersion{}, store.ErrNotFound
		}
		return domain.DataVersion{}, err
	}
	return domain.DataVersion{
		ID:         domain.Kind(row.ID),
		Name:       row.Name,
		Timestamp:  row.Timestamp,
		Generation: row.Generation,
	}, nil
}

func (v versionTable) Put(ctx context.Context, version domain.DataVersion) (domain.DataVersion, error) {
	current, err := v.generation(ctx, version.ID)
	if err != nil {
		return domain.DataVersion{}, err
	}
	return v.CompareAndSwap(ctx, version, current)
}

func (v versionTable) CompareAndSwap(ctx context.Context, version domain.DataVersion, expected int64) (domain.DataVersion, error) {
	if !version.ID.Valid() {
		return domain.DataVersion{}, fmt.Errorf("%w: unknown version kind %d", store.ErrInvalidTransaction, version.ID)
	}
	if err := v.tx.mustWrite(version.ID); err != nil {
		return domain.DataVersion{}, err
	}

	current, err := v.generation(ctx, version.ID)
	if err != nil {
		return domain.DataVersion{}, err
	}
	if current != expected {
		return domain.DataVersion{}, fmt.Errorf("%w: %s at generation %d, expected %d", store.ErrVersionConflict, version.ID, current, expected)
	}

	if version.Name == "" {
		version.Name = version.ID.Name()
	}
	version.Generation = current + 1
	_, err = v.tx.q.ExecContext(ctx, v.tx.q.Rebind(`
		INSERT INTO data_versions (id, name, stamp, generation)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET name = excluded.name, stamp = excluded.stamp, generation = excluded.generation
	`), int64(version.ID), version.Name, version.Timestamp, version.Generation)
	if err != nil {
		return domain.DataVersion{}, err
	}
	return version, nil
}

func (v versionTable) generation(ctx context.Context, kind domain.Kind) (int64, error) {
	current, err := v.Get(ctx, kind)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return current.Generation, nil
}
