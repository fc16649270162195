package platform

import (
	"errors"
	"sync"
)

// ErrKeyNotFound is returned by Storage.Get when the key has never been set
var ErrKeyNotFound = errors.New("key not found")

// Storage is a synchronous key-value store. The SDK uses two instances:
// a persistent one (anonymous id, survives restarts) and an ephemeral
// tab-scoped one (session id). Implementations may fail at any time;
// the SDK swallows storage errors and falls back to in-memory values.
type Storage interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// MemoryStorage is an in-process Storage. It backs tab-scoped session
// state in production and both stores in tests.
type MemoryStorage struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (s *MemoryStorage) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.values[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return value, nil
}

func (s *MemoryStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return nil
}
