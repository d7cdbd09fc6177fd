// Package endpoint contains domain types for the named public HTTP surface
// bound to exactly one namespace.
package endpoint

import (
	"fmt"
	"time"
)

// Endpoint is a named public URL prefix under /metamcp/ mapping to exactly
// one namespace and governing its auth policy.
type Endpoint struct {
	ID          string
	Name        string
	NamespaceID string

	EnableAPIKeyAuth  bool
	EnableOAuth       bool
	UseQueryParamAuth bool

	// UserID, when non-empty, marks the endpoint private: accessible only
	// to that owner's credentials.
	UserID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsPrivate reports whether the endpoint is owner-restricted.
func (e *Endpoint) IsPrivate() bool {
	return e.UserID != ""
}

// Validate enforces the identity invariants.
func (e *Endpoint) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("name is required")
	}
	if e.NamespaceID == "" {
		return fmt.Errorf("namespace_id is required")
	}
	return nil
}
