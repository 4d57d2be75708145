// Package store persists the per-conversation continuation tokens that link
// one turn to the next. Keys are opaque: the router derives them from the
// conversation id (optionally suffixed per agent role).
package store

import (
	"context"
	"sync"
)

// TokenStore maps a conversation key to its latest continuation token. Get
// returns "" for an unknown key; Put with an empty token clears the key.
type TokenStore interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, token string) error
	Close() error
}

// MemoryStore is the in-process TokenStore, used in tests and single-node
// setups where losing tokens on restart is acceptable.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]string)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens[key], nil
}

func (s *MemoryStore) Put(ctx context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == "" {
		delete(s.tokens, key)
		return nil
	}
	s.tokens[key] = token
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
