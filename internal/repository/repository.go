// Package repository pairs each local entity store with its remote
// collection. Reads and writes go to the local store; SyncWith reconciles
// the kind with the backend.
package repository

import (
	"context"

	"tokostok/backend/internal/domain"
	"tokostok/backend/internal/store"
	"tokostok/backend/internal/syncer"
)

type Repository[T domain.Entity[T]] struct {
	local    *store.EntityStore[T]
	rows     syncer.EntityService[T]
	versions syncer.VersionService
	save     syncer.SaveFunc[T]
}

func New[T domain.Entity[T]](local *store.EntityStore[T], rows syncer.EntityService[T], versions syncer.VersionService) *Repository[T] {
	return &Repository[T]{local: local, rows: rows, versions: versions}
}

func (r *Repository[T]) Kind() domain.Kind {
	return r.local.Kind()
}

// Insert stores model under a newly allocated id.
func (r *Repository[T]) Insert(ctx context.Context, model T) (int64, error) {
	return r.local.Insert(ctx, store.AsNew(), model)
}

// InsertWithID stores model under its own id, replacing any row there.
func (r *Repository[T]) InsertWithID(ctx context.Context, model T) (int64, error) {
	return r.local.Insert(ctx, store.WithID(model.Key()), model)
}

func (r *Repository[T]) Update(ctx context.Context, model T) error {
	return r.local.Update(ctx, model)
}

func (r *Repository[T]) Delete(ctx context.Context, id int64) error {
	return r.local.DeleteByID(ctx, id)
}

func (r *Repository[T]) WatchAll(ctx context.Context) (<-chan []T, error) {
	return r.local.WatchAll(ctx)
}

func (r *Repository[T]) WatchByID(ctx context.Context, id int64) (<-chan T, error) {
	return r.local.WatchByID(ctx, id)
}

func (r *Repository[T]) WatchLast(ctx context.Context) (<-chan T, error) {
	return r.local.WatchLast(ctx)
}

func (r *Repository[T]) All(ctx context.Context) ([]T, error) {
	return r.local.All(ctx)
}

func (r *Repository[T]) ByID(ctx context.Context, id int64) (T, error) {
	return r.local.ByID(ctx, id)
}

func (r *Repository[T]) Last(ctx context.Context) (T, error) {
	return r.local.Last(ctx)
}

// SyncWith runs one sync pass for this kind.
func (r *Repository[T]) SyncWith(ctx context.Context, s *syncer.Synchronizer) (syncer.Outcome, error) {
	kind := r.local.Kind()
	local := syncer.NewLocalEndpoint[T](r.local.DB(), kind)
	remote := syncer.NewRemoteEndpoint[T](kind, r.rows, r.versions)
	if r.save != nil {
		remote = remote.WithSave(r.save)
	}
	return syncer.Run[T](ctx, s, kind, local, remote)
}
