// Package auth contains the domain types and verification logic for
// endpoint API keys.
package auth

import "time"

// APIKey is an opaque random credential, stored only in hashed form.
// A nil UserID marks the key public: usable against any endpoint that is
// not privately owned.
type APIKey struct {
	// ID is the unique identifier (UUID).
	ID string
	// KeyHash is the stored hash (Argon2id PHC format, or legacy SHA-256).
	KeyHash string
	// Name is a human-readable label.
	Name string
	// UserID is nil for a public key, or the owning user's ID.
	UserID *string
	// IsActive gates whether the key may still authenticate.
	IsActive bool

	CreatedAt time.Time
}

// IsPublic reports whether the key has no owning user.
func (k *APIKey) IsPublic() bool {
	return k.UserID == nil
}
