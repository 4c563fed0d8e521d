package repository

import (
	"context"

	"tokostok/backend/internal/domain"
	"tokostok/backend/internal/store"
	"tokostok/backend/internal/syncer"
)

// SaleItemsService takes pushed sales joined with their stock row and
// delivery.
type SaleItemsService interface {
	InsertSaleItems(ctx context.Context, items []domain.SaleItems) error
}

// Sales routes every write through the stock-coupled sale protocol; the
// embedded Repository only serves reads, watches, deletes and sync.
type Sales struct {
	*Repository[domain.Sale]
	sales *store.SaleStore
	items SaleItemsService
}

func NewSales(sales *store.SaleStore, rows syncer.EntityService[domain.Sale], versions syncer.VersionService, items SaleItemsService) *Sales {
	s := &Sales{
		Repository: New[domain.Sale](sales.EntityStore, rows, versions),
		sales:      sales,
		items:      items,
	}
	s.Repository.save = s.pushItems
	return s
}

// Insert records a locally made sale and takes it off stock.
func (s *Sales) Insert(ctx context.Context, sale domain.Sale) (int64, error) {
	result, err := s.sales.InsertSale(ctx, store.AsNew(), sale, true)
	return result.ID, err
}

func (s *Sales) InsertWithID(ctx context.Context, sale domain.Sale) (int64, error) {
	result, err := s.sales.InsertSale(ctx, store.WithID(sale.ID), sale, true)
	return result.ID, err
}

// Update moves stock by the net effect of the edit.
func (s *Sales) Update(ctx context.Context, sale domain.Sale) error {
	return s.sales.UpdateSale(ctx, sale)
}

// InsertSale records a sale and takes its quantity off stock when pushed is
// set.
func (s *Sales) InsertSale(ctx context.Context, mode store.InsertMode, sale domain.Sale, pushed bool) (store.SaleInsertResult, error) {
	return s.sales.InsertSale(ctx, mode, sale, pushed)
}

func (s *Sales) UpdateSale(ctx context.Context, sale domain.Sale) error {
	return s.sales.UpdateSale(ctx, sale)
}

func (s *Sales) CancelSale(ctx context.Context, id int64) (domain.Sale, error) {
	return s.sales.CancelSale(ctx, id)
}

func (s *Sales) StockQuantity(ctx context.Context, stockID int64) (int, error) {
	return s.sales.StockQuantity(ctx, stockID)
}

// pushItems sends each sale with the stock row it draws from and the latest
// delivery recorded for it.
func (s *Sales) pushItems(ctx context.Context, sales []domain.Sale) error {
	items, err := JoinSaleItems(ctx, s.sales.DB(), sales)
	if err != nil {
		return err
	}
	return s.items.InsertSaleItems(ctx, items)
}

// JoinSaleItems pairs sales with their stock row (sale.StockID) and delivery
// (delivery.SaleID) as currently stored in db.
func JoinSaleItems(ctx context.Context, db store.DB, sales []domain.Sale) ([]domain.SaleItems, error) {
	if len(sales) == 0 {
		return nil, nil
	}

	var (
		stock      []domain.StockItem
		deliveries []domain.Delivery
	)
	err := db.View(ctx, func(tx store.Tx) error {
		var err error
		if stock, err = tx.StockItems().List(ctx); err != nil {
			return err
		}
		deliveries, err = tx.Deliveries().List(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	stockByID := make(map[int64]domain.StockItem, len(stock))
	for _, item := range stock {
		stockByID[item.ID] = item
	}
	deliveryBySale := make(map[int64]domain.Delivery, len(deliveries))
	for _, delivery := range deliveries {
		deliveryBySale[delivery.SaleID] = delivery
	}

	items := make([]domain.SaleItems, 0, len(sales))
	for _, sale := range sales {
		item := domain.SaleItems{Sale: sale}
		if stockItem, ok := stockByID[sale.StockID]; ok {
			item.StockItem = &stockItem
		}
		if delivery, ok := deliveryBySale[sale.ID]; ok {
			item.Delivery = &delivery
		}
		items = append(items, item)
	}
	return items, nil
}
