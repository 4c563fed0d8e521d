package store

import (
	"context"
	"errors"

	"tokostok/backend/internal/domain"
)

// Versions reads and writes the per-kind version rows outside of an entity
// write. Entity writes stamp their own version inside their transaction.
type Versions struct {
	db DB
}

func NewVersions(db DB) *Versions {
	return &Versions{db: db}
}

// Get returns ErrNotFound when the kind has never been written.
func (v *Versions) Get(ctx context.Context, kind domain.Kind) (domain.DataVersion, error) {
	var out domain.DataVersion
	err := v.db.View(ctx, func(tx Tx) error {
		var err error
		out, err = tx.Versions().Get(ctx, kind)
		return err
	})
	return out, err
}

// Insert upserts the row.
func (v *Versions) Insert(ctx context.Context, version domain.DataVersion) (domain.DataVersion, error) {
	var out domain.DataVersion
	err := v.db.Update(ctx, func(tx Tx) error {
		var err error
		out, err = tx.Versions().Put(ctx, version)
		return err
	})
	return out, err
}

// Update overwrites an existing row and fails with ErrNotFound otherwise.
func (v *Versions) Update(ctx context.Context, version domain.DataVersion) (domain.DataVersion, error) {
	var out domain.DataVersion
	err := v.db.Update(ctx, func(tx Tx) error {
		if _, err := tx.Versions().Get(ctx, version.ID); err != nil {
			return err
		}
		var err error
		out, err = tx.Versions().Put(ctx, version)
		return err
	})
	return out, err
}

func (v *Versions) CompareAndSwap(ctx context.Context, version domain.DataVersion, expected int64) (domain.DataVersion, error) {
	var out domain.DataVersion
	err := v.db.Update(ctx, func(tx Tx) error {
		var err error
		out, err = tx.Versions().CompareAndSwap(ctx, version, expected)
		return err
	})
	return out, err
}

// Lookup is Get with absence reported as a flag instead of an error.
func (v *Versions) Lookup(ctx context.Context, kind domain.Kind) (domain.DataVersion, bool, error) {
	version, err := v.Get(ctx, kind)
	if errors.Is(err, ErrNotFound) {
		return domain.DataVersion{}, false, nil
	}
	if err != nil {
		return domain.DataVersion{}, false, err
	}
	return version, true, nil
}
