package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokostok/backend/internal/domain"
	"tokostok/backend/internal/store"
	"tokostok/backend/internal/store/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.DataVersion
	origin []string
	err    error
}

func (p *recordingPublisher) PublishVersionChanged(_ context.Context, version domain.DataVersion, origin string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, version)
	p.origin = append(p.origin, origin)
	return p.err
}

type mapCache struct {
	mu    sync.Mutex
	rows  map[domain.Kind]domain.DataVersion
	reads int
	hits  int
}

func newMapCache() *mapCache {
	return &mapCache{rows: make(map[domain.Kind]domain.DataVersion)}
}

func (c *mapCache) Get(_ context.Context, kind domain.Kind) (domain.DataVersion, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reads++
	v, ok := c.rows[kind]
	if ok {
		c.hits++
	}
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, v domain.DataVersion, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.rows[v.ID]; ok && cur.Generation >= v.Generation {
		return nil
	}
	c.rows[v.ID] = v
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, kind domain.Kind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rows, kind)
	return nil
}

func newTestService(t *testing.T) (*Service, *mapCache, *recordingPublisher) {
	t.Helper()
	db := memory.New()
	t.Cleanup(func() { _ = db.Close() })
	versions := newMapCache()
	events := &recordingPublisher{}
	return New(db, versions, time.Minute, events, nil), versions, events
}

func TestVersionAbsentIsNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Version(context.Background(), domain.KindSale)
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.Version(context.Background(), domain.Kind(42))
	require.ErrorIs(t, err, store.ErrInvalidTransaction)
}

func TestPutVersionCachesAndAnnounces(t *testing.T) {
	svc, versions, events := newTestService(t)
	ctx := WithDevice(context.Background(), "kasir-01")

	written, err := svc.PutVersion(ctx, domain.DataVersion{ID: domain.KindProduct, Timestamp: "2024-05-01T08:00:00Z", Generation: 7})
	require.NoError(t, err)
	assert.Equal(t, "PRODUCT", written.Name)
	assert.Equal(t, int64(1), written.Generation)

	got, err := svc.Version(context.Background(), domain.KindProduct)
	require.NoError(t, err)
	assert.Equal(t, written, got)
	assert.Equal(t, 1, versions.hits)

	require.Len(t, events.events, 1)
	assert.Equal(t, "2024-05-01T08:00:00Z", events.events[0].Timestamp)
	assert.Equal(t, "kasir-01", events.origin[0])
}

func TestPutVersionSurvivesPublisherFailure(t *testing.T) {
	svc, _, events := newTestService(t)
	events.err = errors.New("broker down")

	_, err := svc.PutVersion(context.Background(), domain.NewVersion(domain.KindCatalog, "2024-05-01T08:00:00Z"))
	require.NoError(t, err)
}

func TestPutVersionRejectsEmptyTimestamp(t *testing.T) {
	svc, _, events := newTestService(t)

	_, err := svc.PutVersion(context.Background(), domain.DataVersion{ID: domain.KindCatalog})
	require.ErrorIs(t, err, store.ErrInvalidTransaction)
	assert.Empty(t, events.events)
}

func TestVersionFallsBackToStoreOnCacheMiss(t *testing.T) {
	svc, versions, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.PutVersion(ctx, domain.NewVersion(domain.KindCustomer, "2024-05-01T08:00:00Z"))
	require.NoError(t, err)
	require.NoError(t, versions.Invalidate(ctx, domain.KindCustomer))

	got, err := svc.Version(ctx, domain.KindCustomer)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01T08:00:00Z", got.Timestamp)

	_, cached, _ := versions.Get(ctx, domain.KindCustomer)
	assert.True(t, cached)
}

func TestCollectionRowWritesLeaveVersionAlone(t *testing.T) {
	svc, _, events := newTestService(t)
	ctx := context.Background()
	products := NewCollection[domain.Product](svc, domain.KindProduct)

	require.NoError(t, products.Upsert(ctx, domain.Product{ID: 5, Name: "Penggaris", Timestamp: "t1"}))
	require.NoError(t, products.Upsert(ctx, domain.Product{ID: 5, Name: "Penggaris 30cm", Timestamp: "t2"}))
	require.NoError(t, products.Upsert(ctx, domain.Product{ID: 2, Name: "Spidol", Timestamp: "t3"}))

	rows, err := products.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[0].ID)
	assert.Equal(t, "Penggaris 30cm", rows[1].Name)

	require.NoError(t, products.Delete(ctx, 5))
	require.NoError(t, products.Delete(ctx, 5))
	rows, err = products.List(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	_, err = svc.Version(ctx, domain.KindProduct)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, events.events)

	err = products.Upsert(ctx, domain.Product{Name: "tanpa id"})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)
}

func TestListEmptyCollectionIsNotNil(t *testing.T) {
	svc, _, _ := newTestService(t)

	rows, err := NewCollection[domain.Delivery](svc, domain.KindDelivery).List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestInsertSaleItemsWritesTripleAtomically(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	items := []domain.SaleItems{
		{
			Sale:      domain.Sale{ID: 1, StockID: 3, Quantity: 2, Timestamp: "t"},
			StockItem: &domain.StockItem{ID: 3, Quantity: 8, Timestamp: "t"},
			Delivery:  &domain.Delivery{ID: 9, SaleID: 1, TrackingCode: "JNE-1", Timestamp: "t"},
		},
		{Sale: domain.Sale{ID: 2, StockID: 3, Quantity: 1, IsOrderedByCustomer: true, Timestamp: "t"}},
	}
	require.NoError(t, svc.InsertSaleItems(ctx, items))

	sales, err := NewCollection[domain.Sale](svc, domain.KindSale).List(ctx)
	require.NoError(t, err)
	assert.Len(t, sales, 2)
	stock, err := NewCollection[domain.StockItem](svc, domain.KindStockItem).List(ctx)
	require.NoError(t, err)
	require.Len(t, stock, 1)
	assert.Equal(t, 8, stock[0].Quantity)
	deliveries, err := NewCollection[domain.Delivery](svc, domain.KindDelivery).List(ctx)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.Equal(t, "JNE-1", deliveries[0].TrackingCode)

	err = svc.InsertSaleItems(ctx, []domain.SaleItems{
		{Sale: domain.Sale{ID: 3, Timestamp: "t"}},
		{Sale: domain.Sale{ID: 4, Timestamp: "t"}, Delivery: &domain.Delivery{SaleID: 4}},
	})
	require.ErrorIs(t, err, store.ErrInvalidTransaction)
	sales, err = NewCollection[domain.Sale](svc, domain.KindSale).List(ctx)
	require.NoError(t, err)
	assert.Len(t, sales, 2)
}

// viewHookDB runs afterView once, right after the next View returns.
type viewHookDB struct {
	store.DB
	afterView func()
}

func (d *viewHookDB) View(ctx context.Context, fn func(tx store.Tx) error) error {
	err := d.DB.View(ctx, fn)
	if hook := d.afterView; hook != nil {
		d.afterView = nil
		hook()
	}
	return err
}

func TestSlowMissFillKeepsNewerCachedVersion(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	t.Cleanup(func() { _ = mem.Close() })
	db := &viewHookDB{DB: mem}
	versions := newMapCache()
	svc := New(db, versions, time.Minute, nil, nil)

	_, err := svc.PutVersion(ctx, domain.NewVersion(domain.KindStockItem, "2024-05-01T08:00:00Z"))
	require.NoError(t, err)
	require.NoError(t, versions.Invalidate(ctx, domain.KindStockItem))

	db.afterView = func() {
		_, err := svc.PutVersion(ctx, domain.NewVersion(domain.KindStockItem, "2024-05-01T09:00:00Z"))
		require.NoError(t, err)
	}
	stale, err := svc.Version(ctx, domain.KindStockItem)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01T08:00:00Z", stale.Timestamp)

	got, err := svc.Version(ctx, domain.KindStockItem)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01T09:00:00Z", got.Timestamp)
	assert.Equal(t, int64(2), got.Generation)
}
