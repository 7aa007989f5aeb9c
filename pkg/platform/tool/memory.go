package tool

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and single-node demos.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	recs   map[int64]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: map[int64]Record{}}
}

func (m *MemoryStore) Get(_ context.Context, id int64) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recs[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) GetBySlug(_ context.Context, scope Scope, slug string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *Record
	for _, rec := range m.recs {
		if rec.Scope != scope || rec.Slug != slug || rec.Status == StatusTrash {
			continue
		}
		if found == nil || rec.ID < found.ID {
			r := rec
			found = &r
		}
	}
	if found == nil {
		return Record{}, ErrNotFound
	}
	return *found, nil
}

func (m *MemoryStore) List(_ context.Context, f Filter) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, rec := range m.recs {
		if f.Scope != "" && rec.Scope != f.Scope {
			continue
		}
		if len(f.Statuses) > 0 && !hasStatus(f.Statuses, rec.Status) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) Insert(_ context.Context, r Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.Status != StatusTrash && m.slugTaken(r) {
		return 0, ErrDuplicateCode
	}
	m.nextID++
	r.ID = m.nextID
	m.recs[r.ID] = r
	return r.ID, nil
}

func (m *MemoryStore) Update(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[r.ID]; !ok {
		return ErrNotFound
	}
	if r.Status != StatusTrash && m.slugTaken(r) {
		return ErrDuplicateCode
	}
	m.recs[r.ID] = r
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[id]; !ok {
		return ErrNotFound
	}
	delete(m.recs, id)
	return nil
}

func (m *MemoryStore) TouchLastAccess(_ context.Context, id int64, day time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return false, ErrNotFound
	}
	content, changed, err := StampLastAccess(rec.Content, day)
	if err != nil || !changed {
		return false, err
	}
	rec.Content = content
	m.recs[id] = rec
	return true, nil
}

// slugTaken mirrors the partial unique index on (scope, slug) of the SQL store.
func (m *MemoryStore) slugTaken(r Record) bool {
	for id, rec := range m.recs {
		if id != r.ID && rec.Scope == r.Scope && rec.Slug == r.Slug && rec.Status != StatusTrash {
			return true
		}
	}
	return false
}

func hasStatus(list []Status, s Status) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
