// Package memory provides process-local implementations of the storage
// interfaces. State lives as long as the value that holds it.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/xenking/campus-eats/internal/domain/cart"
	"github.com/xenking/campus-eats/internal/domain/delivery"
)

var (
	_ cart.Storage           = (*KV)(nil)
	_ delivery.RecordStorage = (*KV)(nil)
)

// KV is an in-memory key/value store.
type KV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewKV creates an empty KV.
func NewKV() *KV {
	return &KV{data: make(map[string][]byte)}
}

// Get returns a copy of the value stored at key, or nil when absent.
func (s *KV) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, nil
	}
	return slices.Clone(v), nil
}

// Put stores a copy of value at key.
func (s *KV) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = slices.Clone(value)
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *KV) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}
