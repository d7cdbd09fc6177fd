package upstream

import (
	"context"
	"errors"
)

// Sentinel errors for upstream store operations.
var (
	// ErrNotFound is returned when a server with the given ID does not exist.
	ErrNotFound = errors.New("upstream server not found")
	// ErrDuplicateName is returned when a server name already exists.
	ErrDuplicateName = errors.New("duplicate upstream server name")
)

// Store provides CRUD and error-status operations for upstream servers.
// This is a port (interface) in the hexagonal architecture; the relational
// store itself is out of scope and is satisfied by an adapter (memory or
// sqlite).
type Store interface {
	// List returns all configured servers.
	List(ctx context.Context) ([]Server, error)
	// Get returns a single server by ID.
	// Returns ErrNotFound if the server does not exist.
	Get(ctx context.Context, id string) (*Server, error)
	// Add stores a new server.
	Add(ctx context.Context, server *Server) error
	// Update replaces an existing server.
	// Returns ErrNotFound if the server does not exist.
	Update(ctx context.Context, server *Server) error
	// Delete removes a server by ID.
	// Returns ErrNotFound if the server does not exist.
	Delete(ctx context.Context, id string) error

	// SetErrorStatus writes the server's error status, e.g. promoting it to
	// ERROR on crash-threshold exhaustion or resetting it to NONE.
	SetErrorStatus(ctx context.Context, id string, status ErrorStatus) error
}
