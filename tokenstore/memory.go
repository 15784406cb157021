package tokenstore

import (
	"context"
	"sync"
)

// MemoryStore keeps the record in process memory. It is the default store when none
// is configured and loses the session on exit.
type MemoryStore struct {
	key string

	mu  sync.RWMutex
	rec *Record
}

// NewMemoryStore returns an empty in-memory store for key.
func NewMemoryStore(key string) (*MemoryStore, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	return &MemoryStore{key: key}, nil
}

func (s *MemoryStore) Key() string { return s.key }

func (s *MemoryStore) Load(context.Context) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.rec == nil {
		return Record{}, ErrNotFound
	}
	return *s.rec, nil
}

func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	// Round-trip through the codec so memory and durable stores agree on what is
	// accepted.
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	stored, err := decodeRecord(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.rec = &stored
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	s.rec = nil
	s.mu.Unlock()
	return nil
}
