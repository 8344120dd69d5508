package cache

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	ErrNotFound     = errors.New("key not found in cache")
	ErrNotConnected = errors.New("not connected to cache")
)

// Store is the shared atomic key-value surface the rate limiter and the queue
// dedup guard run on. All operations are atomic with respect to concurrent
// callers; the backing store (Redis in production) provides the atomicity.
type Store interface {
	// Get retrieves a value, returning ErrNotFound for absent keys
	Get(ctx context.Context, key string) (string, error)

	// Increment atomically increments a numeric value by the given amount
	// and returns the new count
	Increment(ctx context.Context, key string, amount int64) (int64, error)

	// Expire sets an expiration time on a key
	Expire(ctx context.Context, key string, expiration time.Duration) error

	// SetNX sets a value only if the key does not exist; reports whether
	// the write happened
	SetNX(ctx context.Context, key string, value string, expiration time.Duration) (bool, error)

	// Delete removes a key
	Delete(ctx context.Context, key string) error
}
