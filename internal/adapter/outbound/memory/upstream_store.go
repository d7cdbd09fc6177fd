package memory

import (
	"context"
	"sync"

	"github.com/metamcp/metamcp/internal/domain/upstream"
)

// UpstreamStore implements upstream.Store with an in-memory map.
// Thread-safe for concurrent access via sync.RWMutex.
// Returns deep copies to prevent external mutation of stored data.
type UpstreamStore struct {
	servers map[string]*upstream.Server
	mu      sync.RWMutex
}

// NewUpstreamStore creates a new in-memory upstream server store.
func NewUpstreamStore() *UpstreamStore {
	return &UpstreamStore{
		servers: make(map[string]*upstream.Server),
	}
}

// List returns all configured servers as deep copies.
func (s *UpstreamStore) List(ctx context.Context) ([]upstream.Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]upstream.Server, 0, len(s.servers))
	for _, srv := range s.servers {
		result = append(result, *copyServer(srv))
	}
	return result, nil
}

// Get returns a single server by ID as a deep copy.
// Returns upstream.ErrNotFound if the server does not exist.
func (s *UpstreamStore) Get(ctx context.Context, id string) (*upstream.Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	srv, ok := s.servers[id]
	if !ok {
		return nil, upstream.ErrNotFound
	}
	return copyServer(srv), nil
}

// Add stores a new server. Returns upstream.ErrDuplicateName if another
// server already uses the same name.
func (s *UpstreamStore) Add(ctx context.Context, server *upstream.Server) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.servers {
		if id != server.ID && existing.Name == server.Name {
			return upstream.ErrDuplicateName
		}
	}
	s.servers[server.ID] = copyServer(server)
	return nil
}

// Update replaces an existing server with a deep copy.
// Returns upstream.ErrNotFound if the server does not exist, or
// upstream.ErrDuplicateName if the new name collides with another server.
func (s *UpstreamStore) Update(ctx context.Context, server *upstream.Server) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.servers[server.ID]; !ok {
		return upstream.ErrNotFound
	}
	for id, existing := range s.servers {
		if id != server.ID && existing.Name == server.Name {
			return upstream.ErrDuplicateName
		}
	}
	s.servers[server.ID] = copyServer(server)
	return nil
}

// Delete removes a server by ID.
// Returns upstream.ErrNotFound if the server does not exist.
func (s *UpstreamStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.servers[id]; !ok {
		return upstream.ErrNotFound
	}
	delete(s.servers, id)
	return nil
}

// SetErrorStatus writes the server's error status.
// Returns upstream.ErrNotFound if the server does not exist.
func (s *UpstreamStore) SetErrorStatus(ctx context.Context, id string, status upstream.ErrorStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	srv, ok := s.servers[id]
	if !ok {
		return upstream.ErrNotFound
	}
	srv.ErrorStatus = status
	return nil
}

// copyServer creates a deep copy of a Server to prevent mutation.
func copyServer(srv *upstream.Server) *upstream.Server {
	c := &upstream.Server{
		ID:          srv.ID,
		Name:        srv.Name,
		Kind:        srv.Kind,
		Command:     srv.Command,
		URL:         srv.URL,
		BearerToken: srv.BearerToken,
		ErrorStatus: srv.ErrorStatus,
		CreatedAt:   srv.CreatedAt,
		UpdatedAt:   srv.UpdatedAt,
	}

	if srv.Args != nil {
		c.Args = make([]string, len(srv.Args))
		copy(c.Args, srv.Args)
	}
	if srv.Env != nil {
		c.Env = make(map[string]string, len(srv.Env))
		for k, v := range srv.Env {
			c.Env[k] = v
		}
	}

	return c
}

// Compile-time interface verification.
var _ upstream.Store = (*UpstreamStore)(nil)
