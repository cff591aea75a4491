package claims

import (
	"context"
	"fmt"
	"sync"

	"retireplan/pkg/platform/sentinel"
)

// InMemoryStore keeps claims in a map.
type InMemoryStore struct {
	mu     sync.RWMutex
	claims map[string]Claim
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{claims: make(map[string]Claim)}
}

func (s *InMemoryStore) Set(_ context.Context, uid string, claim Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims[uid] = claim
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, uid string) (Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	claim, ok := s.claims[uid]
	if !ok {
		return Claim{}, fmt.Errorf("claim %s: %w", uid, sentinel.ErrNotFound)
	}
	return claim, nil
}
