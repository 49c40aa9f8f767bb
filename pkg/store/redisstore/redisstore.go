// Package redisstore provides a Redis-backed transcript store.
//
// The store intentionally does not implement [store.Subscriber]: keyspace
// notifications are disabled on most managed Redis offerings, so monitors
// observing this backend use adaptive polling instead.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/voxlane/parley/pkg/store"
)

// Store is a transcript store backed by a single Redis instance.
// All methods are safe for concurrent use.
type Store struct {
	client *redis.Client
	prefix string
}

// Option configures a [Store] during construction.
type Option func(*Store)

// WithPrefix namespaces all keys with the given prefix followed by a colon.
// Use this when the Redis instance is shared with other applications.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a Store using the given Redis client. The caller retains
// ownership of the client and is responsible for closing it.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{client: client}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Dial connects to a Redis instance at addr (host:port) and returns a Store
// owning the connection.
func Dial(addr string, opts ...Option) (*Store, error) {
	if addr == "" {
		return nil, fmt.Errorf("redisstore: addr must not be empty")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	return New(client, opts...), nil
}

// Get implements [store.Store]. Missing keys return ("", nil).
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redisstore: get %q: %w", key, err)
	}
	return val, nil
}

// Set implements [store.Store].
func (s *Store) Set(ctx context.Context, key string, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redisstore: set %q: %w", key, err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

var _ store.Store = (*Store)(nil)
