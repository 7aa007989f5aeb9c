package session

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	data []byte
	exp  time.Time // zero: no expiry
}

// MemoryStore is a process-local Store. Expired entries are dropped lazily.
type MemoryStore struct {
	mu  sync.Mutex
	m   map[string]entry
	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: map[string]entry{}, now: time.Now}
}

// WithClock replaces the clock; used by tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
	return s
}

func (s *MemoryStore) Put(_ context.Context, key string, data []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = s.entry(data, ttl)
	return nil
}

func (s *MemoryStore) PutIfAbsent(_ context.Context, key string, data []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.m[key]; ok && !s.expired(e) {
		return false, nil
	}
	s.m[key] = s.entry(data, ttl)
	return true, nil
}

func (s *MemoryStore) Take(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	delete(s.m, key)
	if !ok || s.expired(e) {
		return nil, ErrNotFound
	}
	return e.data, nil
}

func (s *MemoryStore) entry(data []byte, ttl time.Duration) entry {
	e := entry{data: append([]byte(nil), data...)}
	if ttl > 0 {
		e.exp = s.now().Add(ttl)
	}
	return e
}

func (s *MemoryStore) expired(e entry) bool {
	return !e.exp.IsZero() && !s.now().Before(e.exp)
}
