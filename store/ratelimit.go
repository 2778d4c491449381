package store

import (
	"context"
	"time"
)

// Limiter is a fixed-window request counter per client key.
type Limiter struct {
	kv     KeyValueStore
	limit  int64
	window time.Duration
}

// NewLimiter allows limit requests per window. A limit <= 0 disables limiting.
func NewLimiter(kv KeyValueStore, limit int, window time.Duration) *Limiter {
	return &Limiter{kv: kv, limit: int64(limit), window: window}
}

// Allow counts one request for key and reports whether it is within quota.
// Store errors let the request through.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l == nil || l.limit <= 0 {
		return true, nil
	}
	n, err := l.kv.Incr(ctx, "ratelimit:"+key, l.window)
	if err != nil {
		return true, err
	}
	return n <= l.limit, nil
}
