package documents

import (
	"context"
	"fmt"
	"sync"

	"retireplan/pkg/platform/sentinel"
)

// InMemoryStore keeps documents in a map. Used by tests and single-node
// development runs.
type InMemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Document
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{docs: make(map[string]Document)}
}

func (s *InMemoryStore) Get(_ context.Context, path string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[path]
	if !ok {
		return Document{}, fmt.Errorf("document %s: %w", path, sentinel.ErrNotFound)
	}
	return copyDocument(doc)
}

func (s *InMemoryStore) Create(_ context.Context, doc Document) error {
	stored, err := copyDocument(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.Path]; ok {
		return fmt.Errorf("document %s: %w", doc.Path, sentinel.ErrConflict)
	}
	s.docs[doc.Path] = stored
	return nil
}

func (s *InMemoryStore) Replace(_ context.Context, doc Document) error {
	stored, err := copyDocument(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.Path]; !ok {
		return fmt.Errorf("document %s: %w", doc.Path, sentinel.ErrNotFound)
	}
	s.docs[doc.Path] = stored
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, path string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[path]
	if !ok {
		return Document{}, fmt.Errorf("document %s: %w", path, sentinel.ErrNotFound)
	}
	delete(s.docs, path)
	return doc, nil
}

func copyDocument(doc Document) (Document, error) {
	data, err := cloneData(doc.Data)
	if err != nil {
		return Document{}, err
	}
	doc.Data = data
	return doc, nil
}
