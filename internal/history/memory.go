package history

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a process-local Store for development and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	max     int
}

// NewMemoryStore keeps at most maxEntries entries (0 means unbounded).
func NewMemoryStore(maxEntries int) *MemoryStore {
	return &MemoryStore{max: maxEntries}
}

func (s *MemoryStore) Add(_ context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	sort.SliceStable(s.entries, func(i, j int) bool {
		return s.entries[i].CreatedAt.After(s.entries[j].CreatedAt)
	})
	if s.max > 0 && len(s.entries) > s.max {
		s.entries = s.entries[:s.max]
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, n)
	copy(out, s.entries[:n])
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
