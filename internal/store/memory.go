package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type MemoryOption func(*MemoryStore)

// WithoutCompositeIndexes makes every filtered and ordered query fail with
// ErrIndexRequired, the way Firestore behaves before an index is deployed.
func WithoutCompositeIndexes() MemoryOption {
	return func(s *MemoryStore) {
		s.compositeIndexes = false
	}
}

type MemoryStore struct {
	mu               sync.RWMutex
	collections      map[string]map[string][]byte
	compositeIndexes bool
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		collections:      map[string]map[string][]byte{},
		compositeIndexes: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, ErrNotFound)
	}
	return jsonDocument{id: id, data: raw}, nil
}

func (s *MemoryStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := validateQuery(q); err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	if q.OrderBy != nil && len(q.Filters) > 0 && !s.compositeIndexes {
		return nil, fmt.Errorf("query %s: %w", collection, ErrIndexRequired)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type hit struct {
		doc    jsonDocument
		fields map[string]any
	}
	var hits []hit
	for id, raw := range s.collections[collection] {
		fields, err := decodeFields(raw)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", collection, err)
		}
		if !matchesFilters(fields, q.Filters) {
			continue
		}
		hits = append(hits, hit{doc: jsonDocument{id: id, data: raw}, fields: fields})
	}

	sort.Slice(hits, func(i, j int) bool {
		if q.OrderBy != nil {
			ti := timeAt(hits[i].fields, q.OrderBy.Path)
			tj := timeAt(hits[j].fields, q.OrderBy.Path)
			if !ti.Equal(tj) {
				if q.OrderBy.Desc {
					return ti.After(tj)
				}
				return ti.Before(tj)
			}
			if q.OrderBy.Desc {
				return hits[i].doc.id > hits[j].doc.id
			}
		}
		return hits[i].doc.id < hits[j].doc.id
	})

	docs := make([]Document, len(hits))
	for i, h := range hits {
		docs[i] = h.doc
	}
	return docs, nil
}

func (s *MemoryStore) Set(ctx context.Context, collection, id string, data any) error {
	raw, err := encodeDocument(data)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	docs, ok := s.collections[collection]
	if !ok {
		docs = map[string][]byte{}
		s.collections[collection] = docs
	}
	docs[id] = raw
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, updates ...Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.collections[collection][id]
	if !ok {
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	fields, err := decodeFields(raw)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if err := applyUpdates(fields, updates); err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	next, err := encodeDocument(fields)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	s.collections[collection][id] = next
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], id)
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Len reports how many documents a collection holds.
func (s *MemoryStore) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}
