// Package store holds the TTL key-value abstraction behind the report cache and the rate limiter.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// KeyValueStore is the shared state the analysis pipeline depends on.
type KeyValueStore interface {
	// Get returns the value and true when key exists and has not expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value for ttl. A ttl <= 0 never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Incr adds one to the counter at key and returns the new value. The counter resets
	// once window has elapsed since its first increment.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	Close() error
}

// Open returns the store for driver "memory" or "sqlite".
func Open(driver, sqlitePath string) (KeyValueStore, error) {
	switch driver {
	case "", "memory":
		return NewMemoryStore(DefaultMaxEntries, DefaultCleanupInterval), nil
	case "sqlite":
		return NewSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
