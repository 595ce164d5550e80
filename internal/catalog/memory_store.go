package catalog

import (
	"fmt"
	"sync"
)

// MemoryStore — простое in-memory хранилище записей, потокобезопасное.
type MemoryStore struct {
	mu      sync.RWMutex
	order   []string
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
	}
}

func (s *MemoryStore) Append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.Key]; exists {
		return fmt.Errorf("append %q: %w", rec.Key, ErrDuplicateKey)
	}
	s.order = append(s.order, rec.Key)
	s.records[rec.Key] = rec
	return nil
}

func (s *MemoryStore) Get(key string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	return rec, ok
}

func (s *MemoryStore) List() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.records[key])
	}
	return out
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
