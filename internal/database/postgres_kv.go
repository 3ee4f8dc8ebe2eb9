package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresKV stores user state blobs in the user_state table created by the
// migrator. Updates serialize per key through a transaction-scoped advisory
// lock, so absent keys are covered too.
type PostgresKV struct {
	db     *DB
	prefix string
}

var _ KVStore = (*PostgresKV)(nil)

// NewPostgresKV creates a KV store on top of an open pool
func NewPostgresKV(db *DB, prefix string) *PostgresKV {
	return &PostgresKV{
		db:     db,
		prefix: prefix,
	}
}

func (s *PostgresKV) key(k string) string {
	return s.prefix + k
}

// Get returns the raw value stored under key
func (s *PostgresKV) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(ctx, `SELECT value FROM user_state WHERE key = $1`, s.key(key)).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: getting %s: %w", key, err)
	}
	return value, nil
}

// Set overwrites the value stored under key
func (s *PostgresKV) Set(ctx context.Context, key string, value []byte) error {
	if err := upsert(ctx, s.db, s.key(key), value); err != nil {
		return fmt.Errorf("postgres: setting %s: %w", key, err)
	}
	return nil
}

// Update runs fn while holding the key's advisory lock
func (s *PostgresKV) Update(ctx context.Context, key string, fn UpdateFunc) error {
	fullKey := s.key(key)

	err := pgx.BeginFunc(ctx, s.db.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, fullKey); err != nil {
			return err
		}

		var current []byte
		found := true
		err := tx.QueryRow(ctx, `SELECT value FROM user_state WHERE key = $1`, fullKey).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			current, found = nil, false
		} else if err != nil {
			return err
		}

		next, err := fn(current, found)
		if err != nil {
			return err
		}

		if next == nil {
			_, err = tx.Exec(ctx, `DELETE FROM user_state WHERE key = $1`, fullKey)
			return err
		}
		return upsert(ctx, tx, fullKey, next)
	})
	if err != nil && !errors.Is(err, ErrNoChange) {
		return fmt.Errorf("postgres: updating %s: %w", key, err)
	}
	return nil
}

// Delete removes the given keys; missing keys are ignored
func (s *PostgresKV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM user_state WHERE key = ANY($1)`, full); err != nil {
		return fmt.Errorf("postgres: deleting keys: %w", err)
	}
	return nil
}

// Health pings the pool
func (s *PostgresKV) Health(ctx context.Context) error {
	return s.db.Health(ctx)
}

// Close closes the pool
func (s *PostgresKV) Close() error {
	s.db.Close()
	return nil
}

// execer is satisfied by both the pool and a transaction
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func upsert(ctx context.Context, db execer, key string, value []byte) error {
	_, err := db.Exec(ctx, `
		INSERT INTO user_state (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	return err
}
