// Package sqlite is the device-side relational cache.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"tokostok/backend/internal/domain"
	"tokostok/backend/internal/store"
	"tokostok/backend/internal/store/sqlstore"
)

//go:embed schema.sql
var schema string

// Store runs write transactions one at a time under writeMu; SQLite allows a
// single writer and BEGIN IMMEDIATE makes the lock explicit. Views run in a
// deferred read transaction on a query-only handle, so each one sees a single
// WAL snapshot.
type Store struct {
	db       *sqlx.DB
	reader   *sqlx.DB
	writeMu  sync.Mutex
	notifier *store.Notifier
}

// Open opens (creating if needed) the database at path and applies the
// schema. ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", dsn(path, false))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(2)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}

	reader := db
	if path != ":memory:" {
		reader, err = sqlx.Open("sqlite3", dsn(path, true))
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("open sqlite reader %s: %w", path, err)
		}
		reader.SetMaxOpenConns(8)
		reader.SetMaxIdleConns(4)
		reader.SetConnMaxIdleTime(5 * time.Minute)
	}

	return &Store{db: db, reader: reader, notifier: store.NewNotifier()}, nil
}

func dsn(path string, readOnly bool) string {
	params := "_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"
	if readOnly {
		params = "_busy_timeout=5000&_txlock=deferred&_query_only=1"
	}
	if path == ":memory:" {
		return "file::memory:?" + params
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	return path + "?_journal_mode=WAL&" + params
}

func (s *Store) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	s.writeMu.Lock()
	touched, err := s.update(ctx, fn)
	s.writeMu.Unlock()
	if err != nil {
		return err
	}
	s.notifier.Publish(touched...)
	return nil
}

func (s *Store) update(ctx context.Context, fn func(tx store.Tx) error) ([]domain.Kind, error) {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = sqlTx.Rollback() }()

	tx := sqlstore.NewTx(sqlTx, sqlstore.SQLite, true)
	if err := fn(tx); err != nil {
		return nil, err
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, err
	}
	return tx.Touched(), nil
}

func (s *Store) View(ctx context.Context, fn func(tx store.Tx) error) error {
	sqlTx, err := s.reader.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(sqlstore.NewTx(sqlTx, sqlstore.SQLite, false)); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) Subscribe(kind domain.Kind) (<-chan struct{}, func()) {
	return s.notifier.Subscribe(kind)
}

func (s *Store) Close() error {
	var readerErr error
	if s.reader != s.db {
		readerErr = s.reader.Close()
	}
	return errors.Join(s.db.Close(), readerErr)
}
