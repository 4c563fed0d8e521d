package repository

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"tokostok/backend/internal/domain"
	"tokostok/backend/internal/remote"
	"tokostok/backend/internal/store"
	"tokostok/backend/internal/syncer"
)

type syncFunc func(ctx context.Context, s *syncer.Synchronizer) (syncer.Outcome, error)

// Set holds one facade per kind over a shared local DB and remote client.
type Set struct {
	Products     *Repository[domain.Product]
	Customers    *Repository[domain.Customer]
	StockItems   *Repository[domain.StockItem]
	StockOrders  *Repository[domain.StockOrder]
	Catalogs     *Repository[domain.Catalog]
	SearchCaches *Repository[domain.SearchCache]
	Sales        *Sales
	Deliveries   *Repository[domain.Delivery]

	db     store.DB
	syncs  map[domain.Kind]syncFunc
	logger *zap.Logger
}

func NewSet(db store.DB, client *remote.Client, logger *zap.Logger) *Set {
	if logger == nil {
		logger = zap.NewNop()
	}
	set := &Set{
		Products:     newFacade[domain.Product](db, client, domain.KindProduct, logger),
		Customers:    newFacade[domain.Customer](db, client, domain.KindCustomer, logger),
		StockItems:   newFacade[domain.StockItem](db, client, domain.KindStockItem, logger),
		StockOrders:  newFacade[domain.StockOrder](db, client, domain.KindStockOrder, logger),
		Catalogs:     newFacade[domain.Catalog](db, client, domain.KindCatalog, logger),
		SearchCaches: newFacade[domain.SearchCache](db, client, domain.KindSearchCache, logger),
		Sales: NewSales(
			store.NewSaleStore(db, logger),
			remote.NewCollection[domain.Sale](client, domain.KindSale),
			client,
			client,
		),
		Deliveries: newFacade[domain.Delivery](db, client, domain.KindDelivery, logger),
		db:         db,
		logger:     logger,
	}
	set.syncs = map[domain.Kind]syncFunc{
		domain.KindProduct:     set.Products.SyncWith,
		domain.KindCustomer:    set.Customers.SyncWith,
		domain.KindStockItem:   set.StockItems.SyncWith,
		domain.KindStockOrder:  set.StockOrders.SyncWith,
		domain.KindCatalog:     set.Catalogs.SyncWith,
		domain.KindSearchCache: set.SearchCaches.SyncWith,
		domain.KindSale:        set.Sales.SyncWith,
		domain.KindDelivery:    set.Deliveries.SyncWith,
	}
	return set
}

func newFacade[T domain.Entity[T]](db store.DB, client *remote.Client, kind domain.Kind, logger *zap.Logger) *Repository[T] {
	return New[T](
		store.NewEntityStore[T](db, kind, logger),
		remote.NewCollection[T](client, kind),
		client,
	)
}

func (s *Set) DB() store.DB {
	return s.db
}

// SyncKind runs one pass for a single kind.
func (s *Set) SyncKind(ctx context.Context, sync *syncer.Synchronizer, kind domain.Kind) (syncer.Outcome, error) {
	fn, ok := s.syncs[kind]
	if !ok {
		return syncer.Outcome{Kind: kind}, fmt.Errorf("%w: no repository for kind %d", store.ErrInvalidTransaction, int(kind))
	}
	return fn(ctx, sync)
}

// SyncAll runs one pass per kind in domain.Kinds order. Skippable failures
// are collected and the remaining kinds still run; any other failure stops
// the round. The returned error joins everything that failed.
func (s *Set) SyncAll(ctx context.Context, sync *syncer.Synchronizer) ([]syncer.Outcome, error) {
	var (
		outcomes []syncer.Outcome
		errs     []error
	)
	for _, kind := range domain.Kinds() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		outcome, err := s.SyncKind(ctx, sync, kind)
		if err == nil {
			outcomes = append(outcomes, outcome)
			continue
		}
		errs = append(errs, err)
		if !syncer.Skippable(err) {
			s.logger.Error("sync round stopped", zap.Stringer("kind", kind), zap.Error(err))
			break
		}
	}
	return outcomes, errors.Join(errs...)
}
