package memory

import (
	"context"
	"sync"

	"github.com/metamcp/metamcp/internal/domain/endpoint"
)

// EndpointStore is an in-memory endpoint.Store, safe for concurrent use.
type EndpointStore struct {
	endpoints map[string]*endpoint.Endpoint
	mu        sync.RWMutex
}

// NewEndpointStore creates an empty EndpointStore.
func NewEndpointStore() *EndpointStore {
	return &EndpointStore{endpoints: make(map[string]*endpoint.Endpoint)}
}

func (s *EndpointStore) List(ctx context.Context) ([]endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]endpoint.Endpoint, 0, len(s.endpoints))
	for _, ep := range s.endpoints {
		result = append(result, *copyEndpoint(ep))
	}
	return result, nil
}

func (s *EndpointStore) Get(ctx context.Context, id string) (*endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ep, ok := s.endpoints[id]
	if !ok {
		return nil, endpoint.ErrNotFound
	}
	return copyEndpoint(ep), nil
}

func (s *EndpointStore) GetByName(ctx context.Context, name string) (*endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ep := range s.endpoints {
		if ep.Name == name {
			return copyEndpoint(ep), nil
		}
	}
	return nil, endpoint.ErrNotFound
}

func (s *EndpointStore) Add(ctx context.Context, ep *endpoint.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.endpoints {
		if id != ep.ID && existing.Name == ep.Name {
			return endpoint.ErrDuplicateName
		}
	}
	s.endpoints[ep.ID] = copyEndpoint(ep)
	return nil
}

func (s *EndpointStore) Update(ctx context.Context, ep *endpoint.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.endpoints[ep.ID]; !ok {
		return endpoint.ErrNotFound
	}
	for id, existing := range s.endpoints {
		if id != ep.ID && existing.Name == ep.Name {
			return endpoint.ErrDuplicateName
		}
	}
	s.endpoints[ep.ID] = copyEndpoint(ep)
	return nil
}

func (s *EndpointStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.endpoints[id]; !ok {
		return endpoint.ErrNotFound
	}
	delete(s.endpoints, id)
	return nil
}

func copyEndpoint(ep *endpoint.Endpoint) *endpoint.Endpoint {
	cp := *ep
	return &cp
}

var _ endpoint.Store = (*EndpointStore)(nil)
