package syncer

import (
	"context"
	"fmt"

	"tokostok/backend/internal/domain"
	"tokostok/backend/internal/store"
)

// Endpoint is one side of a sync pass for a single kind.
type Endpoint[T domain.Entity[T]] interface {
	// Version reports false when the kind has never been written there.
	Version(ctx context.Context) (domain.DataVersion, bool, error)
	Snapshot(ctx context.Context) ([]T, error)
	Apply(ctx context.Context, plan Plan[T]) error
}

// EntityService is the remote CRUD contract for one kind.
type EntityService[T domain.Entity[T]] interface {
	GetAll(ctx context.Context) ([]T, error)
	Insert(ctx context.Context, row T) error
	Delete(ctx context.Context, id int64) error
}

// VersionService is the remote version contract.
type VersionService interface {
	Version(ctx context.Context, kind domain.Kind) (domain.DataVersion, bool, error)
	PutVersion(ctx context.Context, version domain.DataVersion) error
}

// LocalEndpoint applies plans to a store.DB in one transaction, guarded by
// a compare-and-swap on the kind's version generation.
type LocalEndpoint[T domain.Entity[T]] struct {
	db    store.DB
	kind  domain.Kind
	table store.TableFunc[T]
}

func NewLocalEndpoint[T domain.Entity[T]](db store.DB, kind domain.Kind) *LocalEndpoint[T] {
	return &LocalEndpoint[T]{db: db, kind: kind, table: store.TableFor[T](kind)}
}

func (e *LocalEndpoint[T]) Version(ctx context.Context) (domain.DataVersion, bool, error) {
	return store.NewVersions(e.db).Lookup(ctx, e.kind)
}

func (e *LocalEndpoint[T]) Snapshot(ctx context.Context) ([]T, error) {
	var rows []T
	err := e.db.View(ctx, func(tx store.Tx) error {
		var err error
		rows, err = e.table(tx).List(ctx)
		return err
	})
	return rows, err
}

func (e *LocalEndpoint[T]) Apply(ctx context.Context, plan Plan[T]) error {
	return e.db.Update(ctx, func(tx store.Tx) error {
		expected := int64(0)
		if plan.BasisPresent {
			expected = plan.Basis.Generation
		}
		version := plan.Version
		version.Generation = 0
		if _, err := tx.Versions().CompareAndSwap(ctx, version, expected); err != nil {
			return err
		}

		table := e.table(tx)
		for _, id := range plan.DeleteIDs {
			if _, err := table.Delete(ctx, id); err != nil {
				return fmt.Errorf("delete %s %d: %w", e.kind, id, err)
			}
		}
		for _, row := range plan.Save {
			if _, err := table.Insert(ctx, store.WithID(row.Key()), row); err != nil {
				return fmt.Errorf("save %s %d: %w", e.kind, row.Key(), err)
			}
		}
		return nil
	})
}

// SaveFunc sends a push's rows to the remote. The default inserts them one
// by one; kinds with a composite remote write replace it.
type SaveFunc[T domain.Entity[T]] func(ctx context.Context, rows []T) error

// RemoteEndpoint applies plans through the remote services: deletes, then
// saves, then the version. A push that fails midway leaves the remote
// version untouched, so the next pass resends the whole snapshot.
type RemoteEndpoint[T domain.Entity[T]] struct {
	kind     domain.Kind
	rows     EntityService[T]
	versions VersionService
	save     SaveFunc[T]
}

func NewRemoteEndpoint[T domain.Entity[T]](kind domain.Kind, rows EntityService[T], versions VersionService) *RemoteEndpoint[T] {
	e := &RemoteEndpoint[T]{kind: kind, rows: rows, versions: versions}
	e.save = e.insertEach
	return e
}

// WithSave replaces how pushed rows are written.
func (e *RemoteEndpoint[T]) WithSave(save SaveFunc[T]) *RemoteEndpoint[T] {
	e.save = save
	return e
}

func (e *RemoteEndpoint[T]) Version(ctx context.Context) (domain.DataVersion, bool, error) {
	return e.versions.Version(ctx, e.kind)
}

func (e *RemoteEndpoint[T]) Snapshot(ctx context.Context) ([]T, error) {
	return e.rows.GetAll(ctx)
}

func (e *RemoteEndpoint[T]) Apply(ctx context.Context, plan Plan[T]) error {
	for _, id := range plan.DeleteIDs {
		if err := e.rows.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete %s %d: %w", e.kind, id, err)
		}
	}
	if err := e.save(ctx, plan.Save); err != nil {
		return err
	}

	version := plan.Version
	version.Generation = 0
	return e.versions.PutVersion(ctx, version)
}

func (e *RemoteEndpoint[T]) insertEach(ctx context.Context, rows []T) error {
	for _, row := range rows {
		if err := e.rows.Insert(ctx, row); err != nil {
			return fmt.Errorf("save %s %d: %w", e.kind, row.Key(), err)
		}
	}
	return nil
}
