package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     int
	expiresAt time.Time
}

// MemoryStore is a process-local CounterStore used by tests and single-node
// development setups.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty store. now may be nil to use the wall clock.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{entries: make(map[string]memoryEntry), now: now}
}

func (s *MemoryStore) Get(_ context.Context, key string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return 0, false, nil
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.entries, key)
		return 0, false, nil
	}
	return entry.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value int, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.entries[key]
	entry.value = value
	switch {
	case ttl != KeepTTL:
		entry.expiresAt = s.now().Add(ttl)
	case entry.expiresAt.IsZero():
		entry.expiresAt = s.now().Add(DefaultWindow)
	}
	s.entries[key] = entry
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }
