package database

import (
	"context"
	"errors"
)

var (
	// ErrKeyNotFound is returned by Get when the key holds no value
	ErrKeyNotFound = errors.New("key not found")
	// ErrNoChange may be returned by an UpdateFunc to leave the stored value untouched
	ErrNoChange = errors.New("no change")
	// ErrContention is returned when an optimistic update keeps losing its race
	ErrContention = errors.New("too much contention on key")
)

// UpdateFunc receives the current value of a key (nil and found=false when
// absent) and returns the value to store. Returning a nil slice deletes the
// key. The function may run more than once and must not have side effects.
type UpdateFunc func(current []byte, found bool) ([]byte, error)

// KVStore is the blob store behind the user state. Every Update is an atomic
// read-modify-write of a single key.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Delete(ctx context.Context, keys ...string) error
	Health(ctx context.Context) error
	Close() error
}
