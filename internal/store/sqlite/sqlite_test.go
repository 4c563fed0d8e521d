package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokostok/backend/internal/domain"
	"tokostok/backend/internal/store"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tokostok.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestSaleScenarioOnSQLite(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)

	stock := store.NewEntityStore[domain.StockItem](s, domain.KindStockItem, nil)
	_, err := stock.Insert(ctx, store.WithID(1), domain.StockItem{Quantity: 10, Company: "Gramedia"})
	require.NoError(t, err)

	sales := store.NewSaleStore(s, nil)
	result, err := sales.InsertSale(ctx, store.AsNew(), domain.Sale{StockID: 1, Quantity: 3, Amazon: &domain.AmazonInfo{SKU: "B00X"}}, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.ID)
	assert.Equal(t, 7, result.StockQuantity)

	sale, err := sales.ByID(ctx, result.ID)
	require.NoError(t, err)
	require.NotNil(t, sale.Amazon)
	assert.Equal(t, "B00X", sale.Amazon.SKU)

	version, err := store.NewVersions(s).Get(ctx, domain.KindSale)
	require.NoError(t, err)
	assert.Equal(t, sale.Timestamp, version.Timestamp)

	_, err = sales.CancelSale(ctx, result.ID)
	require.NoError(t, err)
	quantity, err := sales.StockQuantity(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, quantity)
}

func TestFailedTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)

	stock := store.NewEntityStore[domain.StockItem](s, domain.KindStockItem, nil)
	_, err := stock.Insert(ctx, store.WithID(1), domain.StockItem{Quantity: 1})
	require.NoError(t, err)

	_, err = store.NewSaleStore(s, nil).InsertSale(ctx, store.AsNew(), domain.Sale{StockID: 1, Quantity: 2}, true)
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	err = s.View(ctx, func(tx store.Tx) error {
		sales, err := tx.Sales().List(ctx)
		require.NoError(t, err)
		assert.Empty(t, sales)
		_, err = tx.Versions().Get(ctx, domain.KindSale)
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestDataSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t)

	customers := store.NewEntityStore[domain.Customer](s, domain.KindCustomer, nil)
	id, err := customers.Insert(ctx, store.AsNew(), domain.Customer{Name: "Sari", City: "Bandung"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := store.NewEntityStore[domain.Customer](reopened, domain.KindCustomer, nil).ByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Bandung", got.City)
}

func TestCompareAndSwapConflictOnSQLite(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	versions := store.NewVersions(s)
	_, err = versions.Insert(ctx, domain.NewVersion(domain.KindCatalog, "2024-01-01T00:00:00Z"))
	require.NoError(t, err)

	_, err = versions.CompareAndSwap(ctx, domain.NewVersion(domain.KindCatalog, "2024-02-01T00:00:00Z"), 0)
	require.ErrorIs(t, err, store.ErrVersionConflict)

	written, err := versions.CompareAndSwap(ctx, domain.NewVersion(domain.KindCatalog, "2024-02-01T00:00:00Z"), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), written.Generation)
}

func TestViewReadsOneSnapshot(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)

	stock := store.NewEntityStore[domain.StockItem](s, domain.KindStockItem, nil)
	_, err := stock.Insert(ctx, store.WithID(1), domain.StockItem{Quantity: 10})
	require.NoError(t, err)

	err = s.View(ctx, func(tx store.Tx) error {
		before, err := tx.StockItems().Get(ctx, 1)
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() {
			done <- s.Update(ctx, func(tx store.Tx) error {
				return tx.StockItems().Update(ctx, domain.StockItem{ID: 1, Quantity: 4, Timestamp: before.Timestamp})
			})
		}()
		require.NoError(t, <-done)

		after, err := tx.StockItems().Get(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 10, after.Quantity)
		return nil
	})
	require.NoError(t, err)

	quantity, err := store.NewSaleStore(s, nil).StockQuantity(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, quantity)
}
