// Package session provides the caller-scoped key/value store used to hold the
// pending state and authorized session bindings between requests
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:"

// Store is a key/value bag scoped to one caller's web session
type Store interface {
	// Get returns the value for key and whether it was present
	Get(ctx context.Context, key string) (string, bool, error)

	// Put stores value under key
	Put(ctx context.Context, key, value string) error

	// Pull atomically reads and removes key
	Pull(ctx context.Context, key string) (string, bool, error)
}

// RedisStore implements Store with one Redis key per session entry
type RedisStore struct {
	client redis.UniversalClient
	id     string
	ttl    time.Duration
}

// NewRedisStore creates a store scoped to the session id. Entries expire after ttl.
func NewRedisStore(client redis.UniversalClient, id string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, id: id, ttl: ttl}
}

// ID returns the web session id this store is scoped to
func (s *RedisStore) ID() string {
	return s.id
}

func (s *RedisStore) key(k string) string {
	return keyPrefix + s.id + ":" + k
}

// Get retrieves a session value
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("getting session value: %w", err)
	}
	return v, true, nil
}

// Put stores a session value with the session TTL
func (s *RedisStore) Put(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("storing session value: %w", err)
	}
	return nil
}

// Pull reads and deletes a value in one GETDEL so concurrent pulls of the
// same key see it at most once
func (s *RedisStore) Pull(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.GetDel(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("pulling session value: %w", err)
	}
	return v, true, nil
}
