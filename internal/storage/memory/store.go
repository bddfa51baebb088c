// Package memory is an in-process entity store.
package memory

import (
	"context"
	"sync"

	"curveVolume/internal/model"
	"curveVolume/internal/storage"
)

// Store keeps documents in maps.
type Store struct {
	mu   sync.RWMutex
	docs map[model.Kind]map[string][]byte
}

func NewStore() *Store {
	return &Store{docs: make(map[model.Kind]map[string][]byte)}
}

// Get returns a copy of the document or storage.ErrNotFound.
func (s *Store) Get(_ context.Context, kind model.Kind, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.docs[kind][id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// PutBatch upserts every document.
func (s *Store) PutBatch(_ context.Context, docs []storage.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		byID, ok := s.docs[d.Kind]
		if !ok {
			byID = make(map[string][]byte)
			s.docs[d.Kind] = byID
		}
		byID[d.ID] = append([]byte(nil), d.Data...)
	}
	return nil
}

// Count returns the number of documents of a kind.
func (s *Store) Count(kind model.Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs[kind])
}

// IDs lists the ids stored for a kind, in no particular order.
func (s *Store) IDs(kind model.Kind) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.docs[kind]))
	for id := range s.docs[kind] {
		out = append(out, id)
	}
	return out
}
