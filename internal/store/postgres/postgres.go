// Package postgres is the remote backend's persistence.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"tokostok/backend/internal/domain"
	"tokostok/backend/internal/store"
	"tokostok/backend/internal/store/sqlstore"
)

//go:embed schema.sql
var schema string

const maxSerializationRetries = 3

type Store struct {
	db       *sqlx.DB
	notifier *store.Notifier
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: sqlx.NewDb(db, "pgx"), notifier: store.NewNotifier()}, nil
}

// Migrate creates the tables if they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stripComments(stmt)) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Update runs fn in a serializable transaction, retrying when Postgres
// aborts it on a serialization failure. fn may run more than once.
func (s *Store) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	var (
		touched []domain.Kind
		err     error
	)
	for attempt := 0; attempt < maxSerializationRetries; attempt++ {
		touched, err = s.update(ctx, fn)
		if !isSerializationFailure(err) {
			break
		}
	}
	if err != nil {
		return err
	}
	s.notifier.Publish(touched...)
	return nil
}

func (s *Store) update(ctx context.Context, fn func(tx store.Tx) error) ([]domain.Kind, error) {
	pgTx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	tx := sqlstore.NewTx(pgTx, sqlstore.Postgres, true)
	if err := fn(tx); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return tx.Touched(), nil
}

func (s *Store) View(ctx context.Context, fn func(tx store.Tx) error) error {
	pgTx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	if err := fn(sqlstore.NewTx(pgTx, sqlstore.Postgres, false)); err != nil {
		return err
	}
	return pgTx.Commit()
}

// Subscribe only sees writes made through this process.
func (s *Store) Subscribe(kind domain.Kind) (<-chan struct{}, func()) {
	return s.notifier.Subscribe(kind)
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001"
	}
	return false
}

func stripComments(stmt string) string {
	lines := strings.Split(stmt, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if !strings.HasPrefix(strings.TrimSpace(line), "--") {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
