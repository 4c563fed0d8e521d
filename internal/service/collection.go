package service

import (
	"context"
	"fmt"

	"tokostok/backend/internal/domain"
	"tokostok/backend/internal/store"
)

// Collection serves one kind's rows.
type Collection[T domain.Entity[T]] struct {
	svc   *Service
	kind  domain.Kind
	table store.TableFunc[T]
}

func NewCollection[T domain.Entity[T]](svc *Service, kind domain.Kind) *Collection[T] {
	return &Collection[T]{svc: svc, kind: kind, table: store.TableFor[T](kind)}
}

func (c *Collection[T]) Kind() domain.Kind {
	return c.kind
}

func (c *Collection[T]) List(ctx context.Context) ([]T, error) {
	var rows []T
	err := c.svc.db.View(ctx, func(tx store.Tx) error {
		var err error
		rows, err = c.table(tx).List(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []T{}
	}
	return rows, nil
}

// Upsert writes row under its own id.
func (c *Collection[T]) Upsert(ctx context.Context, row T) error {
	if row.Key() < 1 {
		return fmt.Errorf("%w: %s id is required", store.ErrInvalidTransaction, c.kind)
	}
	return c.svc.db.Update(ctx, func(tx store.Tx) error {
		_, err := c.table(tx).Insert(ctx, store.WithID(row.Key()), row)
		return err
	})
}

// Delete removes the row. Deleting an absent id succeeds.
func (c *Collection[T]) Delete(ctx context.Context, id int64) error {
	return c.svc.db.Update(ctx, func(tx store.Tx) error {
		_, err := c.table(tx).Delete(ctx, id)
		return err
	})
}
