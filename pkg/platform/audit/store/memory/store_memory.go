package memory

import (
	"context"
	"fmt"
	"sync"

	audit "retireplan/pkg/platform/audit"
	"retireplan/pkg/platform/sentinel"
)

// InMemoryStore keeps entries in append order. Used by tests and single-node
// development runs.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []audit.Entry
	ids     map[string]struct{}
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{ids: make(map[string]struct{})}
}

func (s *InMemoryStore) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID != "" {
		if _, ok := s.ids[entry.ID]; ok {
			return fmt.Errorf("append entry %s: %w", entry.ID, sentinel.ErrDuplicate)
		}
		s.ids[entry.ID] = struct{}{}
	}
	s.entries = append(s.entries, entry)
	return nil
}

// List returns matching entries, most recent first.
func (s *InMemoryStore) List(_ context.Context, q audit.Query) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []audit.Entry{}
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if q.Collection != "" && e.Collection != q.Collection {
			continue
		}
		if q.DocumentPath != "" && e.DocumentPath != q.DocumentPath {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// Len reports the number of stored entries.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
