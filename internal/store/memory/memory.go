package memory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"tokostok/backend/internal/domain"
	"tokostok/backend/internal/store"
)

var errClosed = errors.New("memory store closed")

// Store keeps every kind's rows in maps. Write transactions stage cloned
// tables and swap them in on commit, so a failed transaction leaves nothing
// behind and readers never see half a write.
type Store struct {
	mu       sync.RWMutex
	tables   map[domain.Kind]any
	versions map[domain.Kind]domain.DataVersion
	closed   bool
	notifier *store.Notifier
}

type table[T domain.Entity[T]] struct {
	rows map[int64]T
	seq  int64
}

func newTable[T domain.Entity[T]]() *table[T] {
	return &table[T]{rows: make(map[int64]T)}
}

func (t *table[T]) clone() *table[T] {
	rows := make(map[int64]T, len(t.rows))
	for id, row := range t.rows {
		rows[id] = row
	}
	return &table[T]{rows: rows, seq: t.seq}
}

func New() *Store {
	return &Store{
		tables: map[domain.Kind]any{
			domain.KindProduct:     newTable[domain.Product](),
			domain.KindCustomer:    newTable[domain.Customer](),
			domain.KindStockItem:   newTable[domain.StockItem](),
			domain.KindStockOrder:  newTable[domain.StockOrder](),
			domain.KindCatalog:     newTable[domain.Catalog](),
			domain.KindSale:        newTable[domain.Sale](),
			domain.KindDelivery:    newTable[domain.Delivery](),
			domain.KindSearchCache: newTable[domain.SearchCache](),
		},
		versions: make(map[domain.Kind]domain.DataVersion),
		notifier: store.NewNotifier(),
	}
}

// Update holds the write lock for the whole of fn. fn must not start another
// transaction on the same store.
func (s *Store) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	touched, err := s.update(fn)
	if err != nil {
		return err
	}
	s.notifier.Publish(touched...)
	return nil
}

func (s *Store) update(fn func(tx store.Tx) error) ([]domain.Kind, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errClosed
	}

	t := &memTx{
		store:   s,
		write:   true,
		staged:  make(map[domain.Kind]any),
		touched: make(map[domain.Kind]bool),
	}
	if err := fn(t); err != nil {
		return nil, err
	}
	for kind, staged := range t.staged {
		s.tables[kind] = staged
	}
	if t.versions != nil {
		s.versions = t.versions
	}
	touched := make([]domain.Kind, 0, len(t.touched))
	for kind := range t.touched {
		touched = append(touched, kind)
	}
	return touched, nil
}

func (s *Store) View(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errClosed
	}
	return fn(&memTx{store: s})
}

func (s *Store) Subscribe(kind domain.Kind) (<-chan struct{}, func()) {
	return s.notifier.Subscribe(kind)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type memTx struct {
	store    *Store
	write    bool
	staged   map[domain.Kind]any
	versions map[domain.Kind]domain.DataVersion
	touched  map[domain.Kind]bool
}

func (t *memTx) Versions() store.VersionTable {
	return versionTable{tx: t}
}

func (t *memTx) Products() store.Table[domain.Product] {
	return tableOf[domain.Product](t, domain.KindProduct)
}

func (t *memTx) Customers() store.Table[domain.Customer] {
	return tableOf[domain.Customer](t, domain.KindCustomer)
}

func (t *memTx) StockItems() store.Table[domain.StockItem] {
	return tableOf[domain.StockItem](t, domain.KindStockItem)
}

func (t *memTx) StockOrders() store.Table[domain.StockOrder] {
	return tableOf[domain.StockOrder](t, domain.KindStockOrder)
}

func (t *memTx) Catalogs() store.Table[domain.Catalog] {
	return tableOf[domain.Catalog](t, domain.KindCatalog)
}

func (t *memTx) Sales() store.Table[domain.Sale] {
	return tableOf[domain.Sale](t, domain.KindSale)
}

func (t *memTx) Deliveries() store.Table[domain.Delivery] {
	return tableOf[domain.Delivery](t, domain.KindDelivery)
}

func (t *memTx) SearchCaches() store.Table[domain.SearchCache] {
	return tableOf[domain.SearchCache](t, domain.KindSearchCache)
}

func tableOf[T domain.Entity[T]](t *memTx, kind domain.Kind) store.Table[T] {
	return memTable[T]{tx: t, kind: kind}
}

type memTable[T domain.Entity[T]] struct {
	tx   *memTx
	kind domain.Kind
}

func (m memTable[T]) read() *table[T] {
	if staged, ok := m.tx.staged[m.kind]; ok {
		return staged.(*table[T])
	}
	return m.tx.store.tables[m.kind].(*table[T])
}

func (m memTable[T]) writable() (*table[T], error) {
	if !m.tx.write {
		return nil, fmt.Errorf("write to %s in read-only transaction", m.kind)
	}
	if staged, ok := m.tx.staged[m.kind]; ok {
		return staged.(*table[T]), nil
	}
	staged := m.tx.store.tables[m.kind].(*table[T]).clone()
	m.tx.staged[m.kind] = staged
	m.tx.touched[m.kind] = true
	return staged, nil
}

func (m memTable[T]) Get(_ context.Context, id int64) (T, error) {
	row, ok := m.read().rows[id]
	if !ok {
		var zero T
		return zero, store.ErrNotFound
	}
	return row, nil
}

func (m memTable[T]) List(_ context.Context) ([]T, error) {
	rows := m.read().rows
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		out = append(out, row)
	}
	slices.SortFunc(out, func(a, b T) int {
		return cmp.Compare(a.Key(), b.Key())
	})
	return out, nil
}

func (m memTable[T]) Last(_ context.Context) (T, error) {
	var (
		last  T
		found bool
	)
	for id, row := range m.read().rows {
		if !found || id > last.Key() {
			last, found = row, true
		}
	}
	if !found {
		return last, store.ErrNotFound
	}
	return last, nil
}

func (m memTable[T]) Insert(_ context.Context, mode store.InsertMode, row T) (int64, error) {
	if err := mode.Validate(); err != nil {
		return 0, err
	}
	t, err := m.writable()
	if err != nil {
		return 0, err
	}

	id, explicit := mode.ExplicitID()
	if !explicit {
		id = t.seq + 1
	}
	if id > t.seq {
		t.seq = id
	}
	t.rows[id] = row.WithKey(id)
	return id, nil
}

func (m memTable[T]) Update(_ context.Context, row T) error {
	if _, ok := m.read().rows[row.Key()]; !ok {
		return store.ErrNotFound
	}
	t, err := m.writable()
	if err != nil {
		return err
	}
	t.rows[row.Key()] = row
	return nil
}

func (m memTable[T]) Delete(_ context.Context, id int64) (bool, error) {
	if _, ok := m.read().rows[id]; !ok {
		return false, nil
	}
	t, err := m.writable()
	if err != nil {
		return false, err
	}
	delete(t.rows, id)
	return true, nil
}

type versionTable struct {
	tx *memTx
}

func (v versionTable) read() map[domain.Kind]domain.DataVersion {
	if v.tx.versions != nil {
		return v.tx.versions
	}
	return v.tx.store.versions
}

func (v versionTable) Get(_ context.Context, kind domain.Kind) (domain.DataVersion, error) {
	version, ok := v.read()[kind]
	if !ok {
		return domain.DataVersion{}, store.ErrNotFound
	}
	return version, nil
}

func (v versionTable) Put(ctx context.Context, version domain.DataVersion) (domain.DataVersion, error) {
	current := v.read()[version.ID]
	return v.CompareAndSwap(ctx, version, current.Generation)
}

func (v versionTable) CompareAndSwap(_ context.Context, version domain.DataVersion, expected int64) (domain.DataVersion, error) {
	if !version.ID.Valid() {
		return domain.DataVersion{}, fmt.Errorf("%w: unknown version kind %d", store.ErrInvalidTransaction, version.ID)
	}
	if !v.tx.write {
		return domain.DataVersion{}, fmt.Errorf("write to version %s in read-only transaction", version.ID)
	}

	current := v.read()[version.ID]
	if current.Generation != expected {
		return domain.DataVersion{}, fmt.Errorf("%w: %s at generation %d, expected %d", store.ErrVersionConflict, version.ID, current.Generation, expected)
	}

	if v.tx.versions == nil {
		v.tx.versions = make(map[domain.Kind]domain.DataVersion, len(v.tx.store.versions)+1)
		for kind, row := range v.tx.store.versions {
			v.tx.versions[kind] = row
		}
	}
	if version.Name == "" {
		version.Name = version.ID.Name()
	}
	version.Generation = current.Generation + 1
	v.tx.versions[version.ID] = version
	v.tx.touched[version.ID] = true
	return version, nil
}
