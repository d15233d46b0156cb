package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// InMemoryStore is a simple thread-safe map store.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]json.RawMessage
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[string]json.RawMessage)}
}

func (s *InMemoryStore) Upsert(_ context.Context, key string, doc any) error {
	b, err := encode(doc)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = b
	return nil
}

func (s *InMemoryStore) LookupIn(_ context.Context, key string, paths []string) (*LookupResult, error) {
	s.mu.RLock()
	doc, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	return lookupDocument(key, doc, paths)
}

func (s *InMemoryStore) Range(_ context.Context, fn func(key string, doc json.RawMessage) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, v := range s.data {
		if err := fn(k, v); err != nil {
			return fmt.Errorf("range callback failed: %w", err)
		}
	}
	return nil
}

func (s *InMemoryStore) LoadAll(_ context.Context, docs map[string]json.RawMessage) error {
	for k, v := range docs {
		if !json.Valid(v) {
			return fmt.Errorf("%w: key %q", ErrCorruptDocument, k)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range docs {
		s.data[k] = append(json.RawMessage(nil), v...)
	}
	return nil
}

// Len reports the number of stored documents.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
