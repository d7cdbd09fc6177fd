package memory

import (
	"context"
	"testing"

	"github.com/metamcp/metamcp/internal/domain/endpoint"
)

func TestEndpointStore_AddAndGet(t *testing.T) {
	s := NewEndpointStore()
	ctx := context.Background()

	ep := &endpoint.Endpoint{ID: "ep-1", Name: "public", NamespaceID: "ns-1"}
	if err := s.Add(ctx, ep); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	got, err := s.Get(ctx, "ep-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Name != "public" {
		t.Errorf("Get() Name = %q, want %q", got.Name, "public")
	}
}

func TestEndpointStore_GetByName(t *testing.T) {
	s := NewEndpointStore()
	ctx := context.Background()

	if err := s.Add(ctx, &endpoint.Endpoint{ID: "ep-1", Name: "public", NamespaceID: "ns-1"}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	got, err := s.GetByName(ctx, "public")
	if err != nil {
		t.Fatalf("GetByName() error: %v", err)
	}
	if got.ID != "ep-1" {
		t.Errorf("GetByName() ID = %q, want %q", got.ID, "ep-1")
	}

	if _, err := s.GetByName(ctx, "missing"); err != endpoint.ErrNotFound {
		t.Errorf("GetByName() error = %v, want ErrNotFound", err)
	}
}

func TestEndpointStore_AddDuplicateName(t *testing.T) {
	s := NewEndpointStore()
	ctx := context.Background()

	if err := s.Add(ctx, &endpoint.Endpoint{ID: "ep-1", Name: "public", NamespaceID: "ns-1"}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	err := s.Add(ctx, &endpoint.Endpoint{ID: "ep-2", Name: "public", NamespaceID: "ns-1"})
	if err != endpoint.ErrDuplicateName {
		t.Errorf("Add() error = %v, want ErrDuplicateName", err)
	}
}

func TestEndpointStore_Update(t *testing.T) {
	s := NewEndpointStore()
	ctx := context.Background()

	ep := &endpoint.Endpoint{ID: "ep-1", Name: "public", NamespaceID: "ns-1"}
	if err := s.Add(ctx, ep); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	ep.EnableOAuth = true
	if err := s.Update(ctx, ep); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	got, err := s.Get(ctx, "ep-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if !got.EnableOAuth {
		t.Error("Update() did not persist EnableOAuth = true")
	}
}

func TestEndpointStore_UpdateNotFound(t *testing.T) {
	s := NewEndpointStore()
	err := s.Update(context.Background(), &endpoint.Endpoint{ID: "missing", Name: "x", NamespaceID: "ns-1"})
	if err != endpoint.ErrNotFound {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestEndpointStore_Delete(t *testing.T) {
	s := NewEndpointStore()
	ctx := context.Background()

	if err := s.Add(ctx, &endpoint.Endpoint{ID: "ep-1", Name: "public", NamespaceID: "ns-1"}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if err := s.Delete(ctx, "ep-1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := s.Get(ctx, "ep-1"); err != endpoint.ErrNotFound {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestEndpointStore_DeleteNotFound(t *testing.T) {
	s := NewEndpointStore()
	if err := s.Delete(context.Background(), "missing"); err != endpoint.ErrNotFound {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
}

func TestEndpointStore_CopyOnReturn(t *testing.T) {
	s := NewEndpointStore()
	ctx := context.Background()

	ep := &endpoint.Endpoint{ID: "ep-1", Name: "public", NamespaceID: "ns-1"}
	if err := s.Add(ctx, ep); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	got, err := s.Get(ctx, "ep-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	got.Name = "mutated"

	again, err := s.Get(ctx, "ep-1")
	if err != nil {
		t.Fatalf("Get() second call error: %v", err)
	}
	if again.Name != "public" {
		t.Errorf("Get() leaked a mutation through an aliased pointer, Name = %q", again.Name)
	}
}

func TestEndpointStore_List(t *testing.T) {
	s := NewEndpointStore()
	ctx := context.Background()

	if err := s.Add(ctx, &endpoint.Endpoint{ID: "ep-1", Name: "a", NamespaceID: "ns-1"}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if err := s.Add(ctx, &endpoint.Endpoint{ID: "ep-2", Name: "b", NamespaceID: "ns-1"}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("List() returned %d endpoints, want 2", len(list))
	}
}

var _ endpoint.Store = (*EndpointStore)(nil)
