package auth

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned when an API key with the given hash or ID
// does not exist.
var ErrKeyNotFound = errors.New("api key not found")

// Store provides lookup and CRUD for endpoint API keys.
// Implementations: in-memory (dev), sqlite (prod).
type Store interface {
	// GetByHash retrieves an API key by its stored hash, for the fast-path
	// SHA-256 lookup in APIKeyService.Validate.
	GetByHash(ctx context.Context, keyHash string) (*APIKey, error)

	// ListActive returns every active key, for the Argon2id verification
	// fallback which cannot be looked up by hash directly.
	ListActive(ctx context.Context) ([]*APIKey, error)

	Add(ctx context.Context, key *APIKey) error
	Revoke(ctx context.Context, id string) error
}
