package namespace

import (
	"context"
	"errors"
)

// Sentinel errors for namespace store operations.
var (
	ErrNotFound      = errors.New("namespace not found")
	ErrDuplicateName = errors.New("duplicate namespace name")
)

// Store provides CRUD operations for namespaces and their server mappings.
type Store interface {
	List(ctx context.Context) ([]Namespace, error)
	Get(ctx context.Context, id string) (*Namespace, error)
	GetByName(ctx context.Context, name string) (*Namespace, error)
	Add(ctx context.Context, ns *Namespace) error
	Update(ctx context.Context, ns *Namespace) error
	Delete(ctx context.Context, id string) error
}
