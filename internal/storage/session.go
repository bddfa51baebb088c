package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"curveVolume/internal/model"
)

type docKey struct {
	kind model.Kind
	id   string
}

// Session buffers entity writes over a Backend and serves them back to
// later loads, so one event or sweep sees its own writes before Flush.
// Loaded values are copies: callers Save after mutating.
type Session struct {
	backend Backend

	mu      sync.Mutex
	pending map[docKey][]byte
	order   []docKey
}

// NewSession starts an empty session.
func NewSession(backend Backend) *Session {
	return &Session{backend: backend, pending: make(map[docKey][]byte)}
}

// Load reads (kind, id) into dst. found is false when the entity does not
// exist yet.
func (s *Session) Load(ctx context.Context, kind model.Kind, id string, dst interface{}) (bool, error) {
	data, found, err := s.raw(ctx, kind, id)
	if err != nil || !found {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s %s: %w", kind, id, err)
	}
	return true, nil
}

// Exists reports whether (kind, id) has been stored.
func (s *Session) Exists(ctx context.Context, kind model.Kind, id string) (bool, error) {
	_, found, err := s.raw(ctx, kind, id)
	return found, err
}

func (s *Session) raw(ctx context.Context, kind model.Kind, id string) ([]byte, bool, error) {
	s.mu.Lock()
	data, ok := s.pending[docKey{kind, id}]
	s.mu.Unlock()
	if ok {
		return data, true, nil
	}
	data, err := s.backend.Get(ctx, kind, id)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s %s: %w", kind, id, err)
	}
	return data, true, nil
}

// Save stages an entity. The last Save of an id wins.
func (s *Session) Save(e model.Entity) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", e.EntityKind(), e.EntityID(), err)
	}
	key := docKey{e.EntityKind(), e.EntityID()}
	s.mu.Lock()
	if _, ok := s.pending[key]; !ok {
		s.order = append(s.order, key)
	}
	s.pending[key] = data
	s.mu.Unlock()
	return nil
}

// Pending reports how many entities wait for Flush.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Staged returns the entities waiting for Flush in first-save order.
func (s *Session) Staged() []Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := make([]Document, 0, len(s.order))
	for _, key := range s.order {
		docs = append(docs, Document{Kind: key.kind, ID: key.id, Data: s.pending[key]})
	}
	return docs
}

// Discard drops every staged entity. Later loads see the backend again.
func (s *Session) Discard() {
	s.mu.Lock()
	s.pending = make(map[docKey][]byte)
	s.order = nil
	s.mu.Unlock()
}

// Flush writes staged entities in first-save order and returns them.
// Nothing is cleared when the backend write fails.
func (s *Session) Flush(ctx context.Context) ([]Document, error) {
	docs := s.Staged()

	if len(docs) == 0 {
		return nil, nil
	}
	if err := s.backend.PutBatch(ctx, docs); err != nil {
		return nil, fmt.Errorf("flush %d documents: %w", len(docs), err)
	}

	s.mu.Lock()
	for _, d := range docs {
		key := docKey{d.Kind, d.ID}
		// a concurrent Save after the snapshot keeps its newer value
		if string(s.pending[key]) == string(d.Data) {
			delete(s.pending, key)
		}
	}
	order := s.order[:0]
	for _, key := range s.order {
		if _, ok := s.pending[key]; ok {
			order = append(order, key)
		}
	}
	s.order = order
	s.mu.Unlock()
	return docs, nil
}
