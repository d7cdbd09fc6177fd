// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"sync"

	"github.com/metamcp/metamcp/internal/domain/auth"
	"github.com/google/uuid"
)

// AuthStore implements auth.Store with in-memory maps.
// Thread-safe for concurrent access. For development/testing only.
type AuthStore struct {
	mu   sync.RWMutex
	keys map[string]*auth.APIKey // keyHash -> APIKey
}

// NewAuthStore creates a new in-memory auth store.
func NewAuthStore() *AuthStore {
	return &AuthStore{
		keys: make(map[string]*auth.APIKey),
	}
}

// GetByHash retrieves an API key by its stored hash.
// Returns auth.ErrKeyNotFound if the key doesn't exist.
func (s *AuthStore) GetByHash(ctx context.Context, keyHash string) (*auth.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.keys[keyHash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}

	keyCopy := *key
	return &keyCopy, nil
}

// ListActive returns every active key, for the Argon2id verification fallback.
func (s *AuthStore) ListActive(ctx context.Context) ([]*auth.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*auth.APIKey, 0, len(s.keys))
	for _, key := range s.keys {
		if !key.IsActive {
			continue
		}
		keyCopy := *key
		result = append(result, &keyCopy)
	}
	return result, nil
}

// Add stores a new API key, assigning an ID if unset.
func (s *AuthStore) Add(ctx context.Context, key *auth.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key.ID == "" {
		key.ID = uuid.NewString()
	}
	keyCopy := *key
	s.keys[key.KeyHash] = &keyCopy
	return nil
}

// Revoke marks an API key inactive by ID.
// Returns auth.ErrKeyNotFound if no key with that ID exists.
func (s *AuthStore) Revoke(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range s.keys {
		if key.ID == id {
			key.IsActive = false
			return nil
		}
	}
	return auth.ErrKeyNotFound
}

// Compile-time interface verification.
var _ auth.Store = (*AuthStore)(nil)
