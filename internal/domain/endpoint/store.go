package endpoint

import (
	"context"
	"errors"
)

// Sentinel errors for endpoint store operations.
var (
	ErrNotFound      = errors.New("endpoint not found")
	ErrDuplicateName = errors.New("duplicate endpoint name")
)

// Store provides CRUD operations for endpoints.
type Store interface {
	List(ctx context.Context) ([]Endpoint, error)
	Get(ctx context.Context, id string) (*Endpoint, error)
	GetByName(ctx context.Context, name string) (*Endpoint, error)
	Add(ctx context.Context, ep *Endpoint) error
	Update(ctx context.Context, ep *Endpoint) error
	Delete(ctx context.Context, id string) error
}
