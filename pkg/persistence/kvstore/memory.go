package kvstore

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// MemoryStore is a process-local Store. Nothing survives a restart.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
	closed bool
}

var _ Store = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: map[string]string{}}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	if s == nil {
		return "", false, errors.New("memory store: nil store")
	}
	key, err := normalizeKey(key)
	if err != nil {
		return "", false, errors.Wrap(err, "memory store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false, errors.New("memory store: closed")
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value string) error {
	if s == nil {
		return errors.New("memory store: nil store")
	}
	key, err := normalizeKey(key)
	if err != nil {
		return errors.Wrap(err, "memory store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("memory store: closed")
	}
	s.values[key] = value
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	if s == nil {
		return errors.New("memory store: nil store")
	}
	key, err := normalizeKey(key)
	if err != nil {
		return errors.Wrap(err, "memory store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *MemoryStore) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
