package memory

import (
	"context"
	"sync"

	"github.com/metamcp/metamcp/internal/domain/namespace"
)

// NamespaceStore is an in-memory namespace.Store, safe for concurrent use.
type NamespaceStore struct {
	namespaces map[string]*namespace.Namespace
	mu         sync.RWMutex
}

// NewNamespaceStore creates an empty NamespaceStore.
func NewNamespaceStore() *NamespaceStore {
	return &NamespaceStore{namespaces: make(map[string]*namespace.Namespace)}
}

func (s *NamespaceStore) List(ctx context.Context) ([]namespace.Namespace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]namespace.Namespace, 0, len(s.namespaces))
	for _, ns := range s.namespaces {
		result = append(result, *copyNamespace(ns))
	}
	return result, nil
}

func (s *NamespaceStore) Get(ctx context.Context, id string) (*namespace.Namespace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ns, ok := s.namespaces[id]
	if !ok {
		return nil, namespace.ErrNotFound
	}
	return copyNamespace(ns), nil
}

func (s *NamespaceStore) GetByName(ctx context.Context, name string) (*namespace.Namespace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ns := range s.namespaces {
		if ns.Name == name {
			return copyNamespace(ns), nil
		}
	}
	return nil, namespace.ErrNotFound
}

func (s *NamespaceStore) Add(ctx context.Context, ns *namespace.Namespace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.namespaces {
		if id != ns.ID && existing.Name == ns.Name {
			return namespace.ErrDuplicateName
		}
	}
	s.namespaces[ns.ID] = copyNamespace(ns)
	return nil
}

func (s *NamespaceStore) Update(ctx context.Context, ns *namespace.Namespace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.namespaces[ns.ID]; !ok {
		return namespace.ErrNotFound
	}
	for id, existing := range s.namespaces {
		if id != ns.ID && existing.Name == ns.Name {
			return namespace.ErrDuplicateName
		}
	}
	s.namespaces[ns.ID] = copyNamespace(ns)
	return nil
}

func (s *NamespaceStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.namespaces[id]; !ok {
		return namespace.ErrNotFound
	}
	delete(s.namespaces, id)
	return nil
}

func copyNamespace(ns *namespace.Namespace) *namespace.Namespace {
	c := &namespace.Namespace{
		ID:        ns.ID,
		Name:      ns.Name,
		CreatedAt: ns.CreatedAt,
		UpdatedAt: ns.UpdatedAt,
	}
	if ns.Servers != nil {
		c.Servers = make([]namespace.ServerMapping, len(ns.Servers))
		copy(c.Servers, ns.Servers)
	}
	return c
}

var _ namespace.Store = (*NamespaceStore)(nil)
