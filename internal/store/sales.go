package store

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"tokostok/backend/internal/domain"
)

// SaleStore adds the stock-coupled sale operations on top of the plain
// entity surface. Each operation is one DB.Update, so the stock
// read-modify-write never interleaves with another sale write.
type SaleStore struct {
	*EntityStore[domain.Sale]
}

func NewSaleStore(db DB, logger *zap.Logger) *SaleStore {
	return &SaleStore{EntityStore: NewEntityStore[domain.Sale](db, domain.KindSale, logger)}
}

type SaleInsertResult struct {
	ID int64
	// StockQuantity is the stock row's quantity after the insert. It is only
	// meaningful when HasStock is set.
	StockQuantity int
	HasStock      bool
}

// InsertSale stores the sale. A stock sale reads its stock row; when pushed
// is set the sale quantity is taken off that row. A pushed insert over an
// existing id first gives the replaced sale's quantity back. Replayed sales
// (pushed unset) leave stock alone but still report its quantity.
func (s *SaleStore) InsertSale(ctx context.Context, mode InsertMode, sale domain.Sale, pushed bool) (SaleInsertResult, error) {
	if err := mode.Validate(); err != nil {
		return SaleInsertResult{}, s.fail(CodeInsert, err)
	}
	if sale.Quantity < 1 {
		return SaleInsertResult{}, s.fail(CodeInsert, fmt.Errorf("%w: sale quantity must be at least 1", ErrInvalidTransaction))
	}
	sale = s.stamp(sale)

	var result SaleInsertResult
	err := s.db.Update(ctx, func(tx Tx) error {
		if pushed {
			deltas := map[int64]int{}
			if id, ok := mode.ExplicitID(); ok {
				old, err := tx.Sales().Get(ctx, id)
				switch {
				case err == nil:
					if old.ConsumesStock() {
						deltas[old.StockID] += old.Quantity
					}
				case !errors.Is(err, ErrNotFound):
					return err
				}
			}
			if sale.ConsumesStock() {
				deltas[sale.StockID] -= sale.Quantity
			}
			if err := applyStockDeltas(ctx, tx, deltas, sale.Timestamp); err != nil {
				return err
			}
		}

		if !sale.IsOrderedByCustomer {
			stock, err := tx.StockItems().Get(ctx, sale.StockID)
			if err != nil {
				return fmt.Errorf("stock %d: %w", sale.StockID, err)
			}
			result.StockQuantity = stock.Quantity
			result.HasStock = true
		}

		id, err := tx.Sales().Insert(ctx, mode, sale)
		if err != nil {
			return err
		}
		result.ID = id
		_, err = tx.Versions().Put(ctx, domain.NewVersion(domain.KindSale, sale.Timestamp))
		return err
	})
	if err != nil {
		return SaleInsertResult{}, s.fail(CodeInsert, err)
	}
	return result, nil
}

// UpdateSale rewrites a sale and moves stock by the net effect of the edit.
// A canceled sale stays canceled and never moves stock again.
func (s *SaleStore) UpdateSale(ctx context.Context, sale domain.Sale) error {
	if sale.Quantity < 1 {
		return s.fail(CodeUpdate, fmt.Errorf("%w: sale quantity must be at least 1", ErrInvalidTransaction))
	}
	sale = sale.WithStamp(domain.FormatStamp(s.now()))

	err := s.db.Update(ctx, func(tx Tx) error {
		old, err := tx.Sales().Get(ctx, sale.ID)
		if err != nil {
			return fmt.Errorf("sale %d: %w", sale.ID, err)
		}

		if old.Canceled {
			sale.Canceled = true
		} else {
			deltas := map[int64]int{}
			if old.ConsumesStock() {
				deltas[old.StockID] += old.Quantity
			}
			if sale.ConsumesStock() {
				deltas[sale.StockID] -= sale.Quantity
			}
			if err := applyStockDeltas(ctx, tx, deltas, sale.Timestamp); err != nil {
				return err
			}
		}

		if err := tx.Sales().Update(ctx, sale); err != nil {
			return err
		}
		_, err = tx.Versions().Put(ctx, domain.NewVersion(domain.KindSale, sale.Timestamp))
		return err
	})
	return s.fail(CodeUpdate, err)
}

// CancelSale flags the sale canceled and gives its quantity back to stock.
// Canceling an unknown id is a caller bug and returns ErrNotFound.
func (s *SaleStore) CancelSale(ctx context.Context, id int64) (domain.Sale, error) {
	stamp := domain.FormatStamp(s.now())

	var canceled domain.Sale
	err := s.db.Update(ctx, func(tx Tx) error {
		sale, err := tx.Sales().Get(ctx, id)
		if err != nil {
			return fmt.Errorf("sale %d: %w", id, err)
		}
		if sale.Canceled {
			return fmt.Errorf("%w: sale %d already canceled", ErrInvalidTransaction, id)
		}

		if sale.ConsumesStock() {
			if err := applyStockDeltas(ctx, tx, map[int64]int{sale.StockID: sale.Quantity}, stamp); err != nil {
				return err
			}
		}

		sale.Canceled = true
		sale = sale.WithStamp(stamp)
		if err := tx.Sales().Update(ctx, sale); err != nil {
			return err
		}
		if _, err := tx.Versions().Put(ctx, domain.NewVersion(domain.KindSale, stamp)); err != nil {
			return err
		}
		canceled = sale
		return nil
	})
	if err != nil {
		return domain.Sale{}, s.fail(CodeUpdate, err)
	}
	return canceled, nil
}

// applyStockDeltas adds each delta to its stock row in id order. Stock that
// would go negative aborts the transaction. The STOCK version is written
// once when any row changed.
func applyStockDeltas(ctx context.Context, tx Tx, deltas map[int64]int, stamp string) error {
	ids := make([]int64, 0, len(deltas))
	for id, delta := range deltas {
		if delta != 0 {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	slices.Sort(ids)

	for _, id := range ids {
		stock, err := tx.StockItems().Get(ctx, id)
		if err != nil {
			return fmt.Errorf("stock %d: %w", id, err)
		}
		stock.Quantity += deltas[id]
		if stock.Quantity < 0 {
			return fmt.Errorf("stock %d: %w", id, ErrInsufficientStock)
		}
		if err := tx.StockItems().Update(ctx, stock.WithStamp(stamp)); err != nil {
			return err
		}
	}
	_, err := tx.Versions().Put(ctx, domain.NewVersion(domain.KindStockItem, stamp))
	return err
}

// StockQuantity reads one stock row's quantity.
func (s *SaleStore) StockQuantity(ctx context.Context, stockID int64) (int, error) {
	var quantity int
	err := s.db.View(ctx, func(tx Tx) error {
		stock, err := tx.StockItems().Get(ctx, stockID)
		if err != nil {
			return err
		}
		quantity = stock.Quantity
		return nil
	})
	return quantity, err
}
