package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/metamcp/metamcp/internal/domain/namespace"
)

func TestNamespaceStore_AddAndGet(t *testing.T) {
	store := NewNamespaceStore()
	ctx := context.Background()

	ns := &namespace.Namespace{ID: "ns-1", Name: "default", Servers: []namespace.ServerMapping{{ServerID: "srv-1", Status: namespace.StatusActive}}}
	if err := store.Add(ctx, ns); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	got, err := store.Get(ctx, "ns-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Name != "default" || len(got.Servers) != 1 {
		t.Errorf("Get() = %+v, want name=default with one server mapping", got)
	}
}

func TestNamespaceStore_GetByName(t *testing.T) {
	store := NewNamespaceStore()
	ctx := context.Background()

	if err := store.Add(ctx, &namespace.Namespace{ID: "ns-1", Name: "default"}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	got, err := store.GetByName(ctx, "default")
	if err != nil {
		t.Fatalf("GetByName() error: %v", err)
	}
	if got.ID != "ns-1" {
		t.Errorf("GetByName() ID = %q, want ns-1", got.ID)
	}

	if _, err := store.GetByName(ctx, "missing"); !errors.Is(err, namespace.ErrNotFound) {
		t.Errorf("GetByName() error = %v, want ErrNotFound", err)
	}
}

func TestNamespaceStore_AddDuplicateName(t *testing.T) {
	store := NewNamespaceStore()
	ctx := context.Background()

	if err := store.Add(ctx, &namespace.Namespace{ID: "ns-1", Name: "default"}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	err := store.Add(ctx, &namespace.Namespace{ID: "ns-2", Name: "default"})
	if !errors.Is(err, namespace.ErrDuplicateName) {
		t.Errorf("Add() error = %v, want ErrDuplicateName", err)
	}
}

func TestNamespaceStore_Update(t *testing.T) {
	store := NewNamespaceStore()
	ctx := context.Background()

	if err := store.Add(ctx, &namespace.Namespace{ID: "ns-1", Name: "default"}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	updated := &namespace.Namespace{ID: "ns-1", Name: "renamed", Servers: []namespace.ServerMapping{{ServerID: "srv-1", Status: namespace.StatusActive}}}
	if err := store.Update(ctx, updated); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	got, err := store.Get(ctx, "ns-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Name != "renamed" || len(got.Servers) != 1 {
		t.Errorf("Get() after Update() = %+v, want name=renamed with one server mapping", got)
	}
}

func TestNamespaceStore_UpdateNotFound(t *testing.T) {
	store := NewNamespaceStore()
	err := store.Update(context.Background(), &namespace.Namespace{ID: "missing", Name: "x"})
	if !errors.Is(err, namespace.ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestNamespaceStore_Delete(t *testing.T) {
	store := NewNamespaceStore()
	ctx := context.Background()

	if err := store.Add(ctx, &namespace.Namespace{ID: "ns-1", Name: "default"}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if err := store.Delete(ctx, "ns-1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := store.Get(ctx, "ns-1"); !errors.Is(err, namespace.ErrNotFound) {
		t.Errorf("Get() after Delete() error = %v, want ErrNotFound", err)
	}
}

func TestNamespaceStore_DeleteNotFound(t *testing.T) {
	store := NewNamespaceStore()
	err := store.Delete(context.Background(), "missing")
	if !errors.Is(err, namespace.ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
}

func TestNamespaceStore_CopyOnReturn(t *testing.T) {
	store := NewNamespaceStore()
	ctx := context.Background()

	ns := &namespace.Namespace{ID: "ns-1", Name: "default", Servers: []namespace.ServerMapping{{ServerID: "srv-1", Status: namespace.StatusActive}}}
	if err := store.Add(ctx, ns); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	got, err := store.Get(ctx, "ns-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	got.Name = "mutated"
	got.Servers[0].Status = namespace.StatusInactive

	again, err := store.Get(ctx, "ns-1")
	if err != nil {
		t.Fatalf("second Get() error: %v", err)
	}
	if again.Name != "default" || again.Servers[0].Status != namespace.StatusActive {
		t.Error("Get() returned a view sharing state with the stored namespace instead of a copy")
	}
}

func TestNamespaceStore_List(t *testing.T) {
	store := NewNamespaceStore()
	ctx := context.Background()

	if err := store.Add(ctx, &namespace.Namespace{ID: "ns-1", Name: "one"}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if err := store.Add(ctx, &namespace.Namespace{ID: "ns-2", Name: "two"}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("List() returned %d namespaces, want 2", len(all))
	}
}

var _ namespace.Store = (*NamespaceStore)(nil)
