// Package pgstore provides a PostgreSQL-backed transcript store using a
// single upsert-friendly transcripts table.
//
// Like the Redis backend, pgstore does not push change notifications;
// monitors observing it use adaptive polling.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxlane/parley/pkg/store"
)

// Schema creates the transcripts table on first use. Idempotent; executed by
// [New] and [Store.Migrate].
const Schema = `
CREATE TABLE IF NOT EXISTS transcripts (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is a transcript store backed by a PostgreSQL database.
// All methods are safe for concurrent use when the underlying DB is.
type Store struct {
	db   DB
	pool *pgxpool.Pool // non-nil only when the Store owns the pool
}

// New connects to the PostgreSQL database at dsn and ensures the transcripts
// table exists. Close the returned Store to release the pool.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}
	s := &Store{db: pool, pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing connection or pool. The caller retains
// ownership and is responsible for calling [Store.Migrate] before issuing
// queries; Close on the returned Store is a no-op.
func NewWithDB(db DB) *Store {
	return &Store{db: db}
}

// Migrate executes the [Schema] DDL, creating the transcripts table if it
// does not already exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("pgstore: migrate: %w", err)
	}
	return nil
}

// Get implements [store.Store]. Missing keys return ("", nil).
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	const q = `SELECT value FROM transcripts WHERE key = $1`

	var value string
	err := s.db.QueryRow(ctx, q, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("pgstore: get %q: %w", key, err)
	}
	return value, nil
}

// Set implements [store.Store] via upsert.
func (s *Store) Set(ctx context.Context, key string, value string) error {
	const q = `
		INSERT INTO transcripts (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

	if _, err := s.db.Exec(ctx, q, key, value); err != nil {
		return fmt.Errorf("pgstore: set %q: %w", key, err)
	}
	return nil
}

// Close releases the underlying connection pool when the Store owns it.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

var _ store.Store = (*Store)(nil)
