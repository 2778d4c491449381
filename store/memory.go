package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

const (
	DefaultMaxEntries      = 1000
	DefaultCleanupInterval = 5 * time.Minute
)

type memoryEntry struct {
	value     []byte
	counter   int64
	createdAt time.Time
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is a process-local KeyValueStore with periodic expiry and a size cap.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]memoryEntry
	maxEntries int
	now        func() time.Time
	stop       chan struct{}
	stopOnce   sync.Once
	closed     bool
}

// NewMemoryStore creates an in-process store. A cleanupInterval <= 0 disables the sweeper.
func NewMemoryStore(maxEntries int, cleanupInterval time.Duration) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	s := &MemoryStore{
		entries:    make(map[string]memoryEntry),
		maxEntries: maxEntries,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go s.periodicCleanup(cleanupInterval)
	}
	return s
}

func (s *MemoryStore) periodicCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stop:
			return
		}
	}
}

// cleanup drops expired entries, then the oldest ones while over the size cap.
func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked()
}

func (s *MemoryStore) cleanupLocked() {
	now := s.now()
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
		}
	}
	if len(s.entries) <= s.maxEntries {
		return
	}

	type aged struct {
		key       string
		createdAt time.Time
	}
	entries := make([]aged, 0, len(s.entries))
	for key, e := range s.entries {
		entries = append(entries, aged{key, e.createdAt})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].createdAt.Before(entries[j].createdAt)
	})
	for i := 0; i < len(entries)-s.maxEntries; i++ {
		delete(s.entries, entries[i].key)
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	e, ok := s.entries[key]
	if !ok || e.expired(s.now()) {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	now := s.now()
	e := memoryEntry{value: append([]byte(nil), value...), createdAt: now}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	s.entries[key] = e
	if len(s.entries) > s.maxEntries {
		s.cleanupLocked()
	}
	return nil
}

func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	now := s.now()
	e, ok := s.entries[key]
	if !ok || e.expired(now) {
		e = memoryEntry{createdAt: now}
		if window > 0 {
			e.expiresAt = now.Add(window)
		}
	}
	e.counter++
	s.entries[key] = e
	return e.counter, nil
}

// Len reports the number of live and not-yet-collected entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.mu.Lock()
		s.closed = true
		s.entries = make(map[string]memoryEntry)
		s.mu.Unlock()
	})
	return nil
}
