package store

import (
	"context"
	"sync"
)

// MemoryStore keeps documents in process. Used by tests and the `memory` driver.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if doc, ok := s.docs[key]; ok {
		doc.Value = append([]byte(nil), doc.Value...)
		return doc, nil
	}
	return Document{Key: key}, nil
}

func (s *MemoryStore) Commit(_ context.Context, writes ...Write) error {
	if err := validateWrites(writes); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range writes {
		if w.ExpectedVersion == AnyVersion {
			continue
		}
		if s.docs[w.Key].Version != w.ExpectedVersion {
			return ErrVersionConflict
		}
	}

	for _, w := range writes {
		if w.Delete {
			delete(s.docs, w.Key)
			continue
		}
		s.docs[w.Key] = Document{
			Key:     w.Key,
			Value:   append([]byte(nil), w.Value...),
			Version: s.docs[w.Key].Version + 1,
		}
	}
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Corrupt overwrites a raw value without touching validation. Tests use it to
// simulate a damaged document.
func (s *MemoryStore) Corrupt(key string, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[key] = Document{Key: key, Value: raw, Version: s.docs[key].Version + 1}
}
