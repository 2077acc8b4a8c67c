// Package sqlite provides a swrcache.Store backed by a SQLite database, for
// clients that need their persisted snapshot to survive process restarts
// without an external service.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"swrcache"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute

	createTableSQL = `CREATE TABLE IF NOT EXISTS kv (
		name  TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`
)

// Store implements swrcache.Store on a single kv(name, value) table.
type Store struct {
	db      *sqlx.DB
	dsn     string
	closeMx sync.Mutex
	closed  bool
}

// Interface conformance check.
var _ swrcache.Store = (*Store)(nil)

// NewStore opens (or creates) a SQLite database at the given DSN and ensures
// the kv table exists.
func NewStore(dsn string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite connection: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create kv table: %w", err)
	}

	return &Store{db: db, dsn: dsn}, nil
}

func (s *Store) isClosed() bool {
	s.closeMx.Lock()
	defer s.closeMx.Unlock()
	return s.closed
}

// GetItem retrieves a value by name. Returns swrcache.ErrNotFound on miss.
func (s *Store) GetItem(ctx context.Context, name string) (string, error) {
	if s.isClosed() {
		return "", fmt.Errorf("sqlite store is closed")
	}
	var value string
	err := s.db.GetContext(ctx, &value, "SELECT value FROM kv WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", swrcache.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("sqlite GetItem error for '%s': %w", name, err)
	}
	return value, nil
}

// SetItem upserts a value by name.
func (s *Store) SetItem(ctx context.Context, name string, value string) error {
	if s.isClosed() {
		return fmt.Errorf("sqlite store is closed")
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO kv (name, value) VALUES (?, ?) ON CONFLICT(name) DO UPDATE SET value = excluded.value",
		name, value)
	if err != nil {
		return fmt.Errorf("sqlite SetItem error for '%s': %w", name, err)
	}
	return nil
}

// RemoveItem deletes a value by name. Unknown names are a no-op.
func (s *Store) RemoveItem(ctx context.Context, name string) error {
	if s.isClosed() {
		return fmt.Errorf("sqlite store is closed")
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE name = ?", name); err != nil {
		return fmt.Errorf("sqlite RemoveItem error for '%s': %w", name, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.closeMx.Lock()
	defer s.closeMx.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
