package database

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient wraps the redis client
type RedisClient struct {
	*redis.Client
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
}

// NewRedisClient creates a new Redis client
func NewRedisClient(cfg RedisConfig) (*RedisClient, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("unable to ping Redis: %w", err)
	}

	log.Println("Successfully connected to Redis")

	return &RedisClient{Client: client}, nil
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	if r.Client != nil {
		log.Println("Closing Redis connection")
		return r.Client.Close()
	}
	return nil
}

// Health checks the Redis connection health
func (r *RedisClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return r.Ping(ctx).Err()
}

// maxTxRetries bounds the WATCH/MULTI retry loop in Update
const maxTxRetries = 16

// RedisKV stores user state blobs as plain Redis strings
type RedisKV struct {
	client *RedisClient
	prefix string
}

var _ KVStore = (*RedisKV)(nil)

// NewRedisKV creates a KV store that namespaces every key with prefix
func NewRedisKV(client *RedisClient, prefix string) *RedisKV {
	return &RedisKV{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisKV) key(k string) string {
	return s.prefix + k
}

// Get returns the raw value stored under key
func (s *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: getting %s: %w", key, err)
	}
	return val, nil
}

// Set overwrites the value stored under key
func (s *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis: setting %s: %w", key, err)
	}
	return nil
}

// Update runs fn inside an optimistic WATCH/MULTI transaction and retries
// when another writer touched the key in between.
func (s *RedisKV) Update(ctx context.Context, key string, fn UpdateFunc) error {
	fullKey := s.key(key)

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, fullKey).Bytes()
		found := true
		if errors.Is(err, redis.Nil) {
			current, found = nil, false
		} else if err != nil {
			return err
		}

		next, err := fn(current, found)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, fullKey)
			} else {
				pipe.Set(ctx, fullKey, next, 0)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, fullKey)
		switch {
		case err == nil, errors.Is(err, ErrNoChange):
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return fmt.Errorf("redis: updating %s: %w", key, err)
		}
	}

	return fmt.Errorf("redis: updating %s: %w", key, ErrContention)
}

// Delete removes the given keys; missing keys are ignored
func (s *RedisKV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis: deleting keys: %w", err)
	}
	return nil
}

// Health pings Redis
func (s *RedisKV) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

// Close closes the underlying client
func (s *RedisKV) Close() error {
	return s.client.Close()
}
