package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time assertion that PostgresStore satisfies KV.
var _ KV = (*PostgresStore)(nil)

const ddlKVEntries = `
CREATE TABLE IF NOT EXISTS kv_entries (
    key        TEXT         PRIMARY KEY,
    value      BYTEA        NOT NULL,
    updated_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// PostgresStore is a [KV] backed by a single kv_entries table.
// All operations are safe for concurrent use; the pool handles connection
// management.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to the database at dsn, verifies the connection,
// and runs [MigrateKV] so the kv_entries table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres kv: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres kv: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres kv: ping: %w", err)
	}
	if err := MigrateKV(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres kv: migrate: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// MigrateKV ensures the kv_entries table exists. It is idempotent and safe to
// call on every application start.
func MigrateKV(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlKVEntries); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// Get implements [KV].
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	const q = `SELECT value FROM kv_entries WHERE key = $1`

	var value []byte
	err := s.pool.QueryRow(ctx, q, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres kv: %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres kv: get %q: %w", key, err)
	}
	return value, nil
}

// Put implements [KV].
func (s *PostgresStore) Put(ctx context.Context, key string, value []byte) error {
	const q = `
		INSERT INTO kv_entries (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = now()`

	if _, err := s.pool.Exec(ctx, q, key, value); err != nil {
		return fmt.Errorf("postgres kv: put %q: %w", key, err)
	}
	return nil
}

// Delete implements [KV].
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	const q = `DELETE FROM kv_entries WHERE key = $1`

	if _, err := s.pool.Exec(ctx, q, key); err != nil {
		return fmt.Errorf("postgres kv: delete %q: %w", key, err)
	}
	return nil
}

// Close releases all connections held by the underlying pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
