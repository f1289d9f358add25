// Package memory provides an in-memory implementation of OriginalPriceStore.
//
// Entries live for the lifetime of the process. All operations are thread-safe.
package memory

import (
	"context"
	"math/big"
	"sync"

	"github.com/archon-research/oracle-forge/internal/ports/outbound"
)

// Compile-time check that OriginalPriceStore implements outbound.OriginalPriceStore
var _ outbound.OriginalPriceStore = (*OriginalPriceStore)(nil)

// OriginalPriceStore keeps original feed values keyed by network:protocol:asset.
type OriginalPriceStore struct {
	mu     sync.RWMutex
	values map[string]*big.Int
}

// NewOriginalPriceStore creates an empty store.
func NewOriginalPriceStore() *OriginalPriceStore {
	return &OriginalPriceStore{values: make(map[string]*big.Int)}
}

// Get returns a copy of the stored value.
func (s *OriginalPriceStore) Get(ctx context.Context, key string) (*big.Int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	return new(big.Int).Set(v), true, nil
}

func (s *OriginalPriceStore) PutIfAbsent(ctx context.Context, key string, value *big.Int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; ok {
		return false, nil
	}
	s.values[key] = new(big.Int).Set(value)
	return true, nil
}

func (s *OriginalPriceStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Len returns the number of stored entries.
func (s *OriginalPriceStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
