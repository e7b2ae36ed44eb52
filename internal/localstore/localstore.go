// Package localstore is the device-side key/value cache the sync layer reads first.
package localstore

import (
	"context"
	"sync"
)

// KeyPrefix namespaces every cached collection.
const KeyPrefix = "atee_"

// Key is the cache key of a collection.
func Key(collection string) string { return KeyPrefix + collection }

// Store holds raw JSON values. Entries never expire.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Memory is a process-local Store.
type Memory struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{m: make(map[string][]byte)}
}

func (s *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *Memory) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.m[key] = append([]byte(nil), value...)
	s.mu.Unlock()
	return nil
}
