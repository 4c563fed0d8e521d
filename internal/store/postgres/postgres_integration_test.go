package postgres

import (
	"context"
	"os"
	"testing"

	"tokostok/backend/internal/domain"
	"tokostok/backend/internal/store"
	"tokostok/backend/internal/store/sqlstore"
)

func TestSaleCancelRestocksOnPostgres(t *testing.T) {
	databaseURL := os.Getenv("TOKOSTOK_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set TOKOSTOK_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	truncate := func() {
		for _, kind := range []domain.Kind{domain.KindSale, domain.KindStockItem} {
			_, _ = s.db.ExecContext(ctx, `DELETE FROM `+sqlstore.TableName(kind))
		}
		_, _ = s.db.ExecContext(ctx, `DELETE FROM data_versions WHERE id IN (3, 4)`)
	}
	truncate()
	t.Cleanup(truncate)

	stock := store.NewEntityStore[domain.StockItem](s, domain.KindStockItem, nil)
	if _, err := stock.Insert(ctx, store.WithID(1), domain.StockItem{Quantity: 10}); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	sales := store.NewSaleStore(s, nil)
	result, err := sales.InsertSale(ctx, store.AsNew(), domain.Sale{StockID: 1, Quantity: 3}, true)
	if err != nil {
		t.Fatalf("insert sale: %v", err)
	}
	if result.StockQuantity != 7 {
		t.Fatalf("expected stock 7 after sale, got %d", result.StockQuantity)
	}

	if _, err := sales.CancelSale(ctx, result.ID); err != nil {
		t.Fatalf("cancel sale: %v", err)
	}
	qty, err := sales.StockQuantity(ctx, 1)
	if err != nil {
		t.Fatalf("read stock: %v", err)
	}
	if qty != 10 {
		t.Fatalf("expected stock restored to 10, got %d", qty)
	}

	if _, err := sales.CancelSale(ctx, result.ID); err == nil {
		t.Fatalf("expected second cancel to be rejected")
	}
}
