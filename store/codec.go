package store

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/spaolacci/murmur3"
	"github.com/vmihailenco/msgpack/v5"
)

// CacheKey hashes a normalized URL into a compact store key.
func CacheKey(normalizedURL string) string {
	return fmt.Sprintf("report:%016x", murmur3.Sum64([]byte(normalizedURL)))
}

// Encode serializes v with msgpack, naming fields after their json tags.
func Encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode is the inverse of Encode.
func Decode(data []byte, v interface{}) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

// Cache stores encoded values by URL with a fixed TTL.
type Cache struct {
	kv  KeyValueStore
	ttl time.Duration
}

// NewCache stores entries in kv for ttl.
func NewCache(kv KeyValueStore, ttl time.Duration) *Cache {
	return &Cache{kv: kv, ttl: ttl}
}

// Load decodes the cached value for url into v. It reports false on a miss.
func (c *Cache) Load(ctx context.Context, url string, v interface{}) (bool, error) {
	data, ok, err := c.kv.Get(ctx, CacheKey(url))
	if err != nil || !ok {
		return false, err
	}
	if err := Decode(data, v); err != nil {
		return false, fmt.Errorf("failed to decode cached value: %w", err)
	}
	return true, nil
}

func (c *Cache) Save(ctx context.Context, url string, v interface{}) error {
	data, err := Encode(v)
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}
	return c.kv.Set(ctx, CacheKey(url), data, c.ttl)
}
