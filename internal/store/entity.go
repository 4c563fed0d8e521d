package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tokostok/backend/internal/domain"
	"tokostok/backend/internal/metrics"
)

// EntityStore is the local CRUD surface for one entity kind. Every write
// overwrites the kind's version row in the same transaction.
type EntityStore[T domain.Entity[T]] struct {
	db     DB
	kind   domain.Kind
	table  TableFunc[T]
	logger *zap.Logger
	now    func() time.Time
}

func NewEntityStore[T domain.Entity[T]](db DB, kind domain.Kind, logger *zap.Logger) *EntityStore[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EntityStore[T]{
		db:     db,
		kind:   kind,
		table:  TableFor[T](kind),
		logger: logger.With(zap.Stringer("kind", kind)),
		now:    time.Now,
	}
}

func (s *EntityStore[T]) Kind() domain.Kind {
	return s.kind
}

func (s *EntityStore[T]) DB() DB {
	return s.db
}

// SetClock replaces the clock used to stamp rows that arrive without a
// timestamp.
func (s *EntityStore[T]) SetClock(now func() time.Time) {
	s.now = now
}

func (s *EntityStore[T]) stamp(model T) T {
	if model.Stamp() == "" {
		return model.WithStamp(domain.FormatStamp(s.now()))
	}
	return model
}

func (s *EntityStore[T]) Insert(ctx context.Context, mode InsertMode, model T) (int64, error) {
	if err := mode.Validate(); err != nil {
		return 0, s.fail(CodeInsert, err)
	}
	model = s.stamp(model)

	var id int64
	err := s.db.Update(ctx, func(tx Tx) error {
		var err error
		id, err = s.table(tx).Insert(ctx, mode, model)
		if err != nil {
			return err
		}
		_, err = tx.Versions().Put(ctx, domain.NewVersion(s.kind, model.Stamp()))
		return err
	})
	if err != nil {
		return 0, s.fail(CodeInsert, err)
	}
	return id, nil
}

// Update restamps the row with the current time before writing it.
func (s *EntityStore[T]) Update(ctx context.Context, model T) error {
	model = model.WithStamp(domain.FormatStamp(s.now()))
	err := s.db.Update(ctx, func(tx Tx) error {
		if err := s.table(tx).Update(ctx, model); err != nil {
			return err
		}
		_, err := tx.Versions().Put(ctx, domain.NewVersion(s.kind, model.Stamp()))
		return err
	})
	return s.fail(CodeUpdate, err)
}

// DeleteByID removes the row. Deleting an absent id writes nothing.
func (s *EntityStore[T]) DeleteByID(ctx context.Context, id int64) error {
	err := s.db.Update(ctx, func(tx Tx) error {
		existed, err := s.table(tx).Delete(ctx, id)
		if err != nil || !existed {
			return err
		}
		_, err = tx.Versions().Put(ctx, domain.NewVersion(s.kind, domain.FormatStamp(s.now())))
		return err
	})
	return s.fail(CodeDelete, err)
}

func (s *EntityStore[T]) WatchAll(ctx context.Context) (<-chan []T, error) {
	return Watch(ctx, s.db, s.kind, s.logger, func(ctx context.Context) ([]T, error) {
		var rows []T
		err := s.db.View(ctx, func(tx Tx) error {
			var err error
			rows, err = s.table(tx).List(ctx)
			return err
		})
		return rows, err
	})
}

func (s *EntityStore[T]) WatchByID(ctx context.Context, id int64) (<-chan T, error) {
	return Watch(ctx, s.db, s.kind, s.logger, func(ctx context.Context) (T, error) {
		var row T
		err := s.db.View(ctx, func(tx Tx) error {
			var err error
			row, err = s.table(tx).Get(ctx, id)
			return err
		})
		return row, err
	})
}

func (s *EntityStore[T]) WatchLast(ctx context.Context) (<-chan T, error) {
	return Watch(ctx, s.db, s.kind, s.logger, func(ctx context.Context) (T, error) {
		var row T
		err := s.db.View(ctx, func(tx Tx) error {
			var err error
			row, err = s.table(tx).Last(ctx)
			return err
		})
		return row, err
	})
}

func (s *EntityStore[T]) All(ctx context.Context) ([]T, error) {
	return First(ctx, s.WatchAll)
}

func (s *EntityStore[T]) ByID(ctx context.Context, id int64) (T, error) {
	return First(ctx, func(ctx context.Context) (<-chan T, error) {
		return s.WatchByID(ctx, id)
	})
}

func (s *EntityStore[T]) Last(ctx context.Context) (T, error) {
	return First(ctx, s.WatchLast)
}

func (s *EntityStore[T]) fail(code Code, err error) error {
	if err == nil {
		return nil
	}
	metrics.StoreErrorsTotal.WithLabelValues(string(code), s.kind.Name()).Inc()
	s.logger.Error("local write failed", zap.String("code", string(code)), zap.Error(err))
	return wrapOp(code, s.kind, err)
}
