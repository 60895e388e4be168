// Package memory provides a thread-safe in-memory implementation of storage.Store.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmcleod/tokendesk/internal/util"
	"github.com/jmcleod/tokendesk/storage"
)

// Store is a thread-safe in-memory implementation of storage.Store.
// Suitable for testing and for one-shot invocations that should leave no
// session behind.
type Store struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a new empty in-memory Store.
func NewStore() *Store {
	return &Store{data: make(map[string]map[string][]byte)}
}

func (s *Store) Get(_ context.Context, namespace, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.data[namespace][key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", namespace, key, storage.ErrNotFound)
	}
	return util.CopyBytes(value), nil
}

func (s *Store) Put(_ context.Context, namespace, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[namespace]; !ok {
		s.data[namespace] = make(map[string][]byte)
	}
	s.data[namespace][key] = util.CopyBytes(value)
	return nil
}

func (s *Store) Delete(_ context.Context, namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[namespace][key]; !ok {
		return fmt.Errorf("%s/%s: %w", namespace, key, storage.ErrNotFound)
	}
	delete(s.data[namespace], key)
	return nil
}

func (s *Store) List(_ context.Context, namespace string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.data[namespace] {
		keys = append(keys, k)
	}
	return keys, nil
}

// Close drops every stored value.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ns := range s.data {
		for _, v := range ns {
			util.WipeBytes(v)
		}
	}
	s.data = make(map[string]map[string][]byte)
	return nil
}
