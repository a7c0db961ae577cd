// Package memory is an in-process store.Store for tests and throwaway sessions.
package memory

import (
	"context"
	"sync"

	"github.com/aussiebroadwan/gigboard/internal/gigboard/store"
)

type Store struct {
	mu      sync.Mutex
	entries map[string]string
}

func NewStore() *Store {
	return &Store{entries: make(map[string]string, len(store.Keys))}
}

func (s *Store) Save(ctx context.Context, creds store.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = creds.Entries()
	return nil
}

func (s *Store) Load(ctx context.Context) (store.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return store.FromEntries(s.entries)
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.entries)
	return nil
}

// Entries returns a copy of what is currently held, keyed by persisted name.
func (s *Store) Entries() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

func (s *Store) Close() error { return nil }
