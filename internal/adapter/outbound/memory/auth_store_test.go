// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/metamcp/metamcp/internal/domain/auth"
)

func userIDPtr(id string) *string { return &id }

func TestAuthStore_GetByHash(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		setup   func(context.Context, *AuthStore)
		keyHash string
		wantErr error
		wantID  string
	}{
		{
			name: "existing key",
			setup: func(ctx context.Context, s *AuthStore) {
				_ = s.Add(ctx, &auth.APIKey{ID: "key-1", KeyHash: "hash123", IsActive: true})
			},
			keyHash: "hash123",
			wantErr: nil,
			wantID:  "key-1",
		},
		{
			name:    "non-existent key",
			setup:   func(ctx context.Context, s *AuthStore) {},
			keyHash: "missing",
			wantErr: auth.ErrKeyNotFound,
		},
		{
			name: "inactive key still returns the record",
			setup: func(ctx context.Context, s *AuthStore) {
				_ = s.Add(ctx, &auth.APIKey{ID: "key-2", KeyHash: "revoked-key", IsActive: false})
			},
			keyHash: "revoked-key",
			wantErr: nil,
			wantID:  "key-2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			store := NewAuthStore()
			tt.setup(ctx, store)

			got, err := store.GetByHash(ctx, tt.keyHash)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("GetByHash() error = %v, want %v", err, tt.wantErr)
				return
			}
			if tt.wantErr != nil {
				return
			}
			if got.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", got.ID, tt.wantID)
			}
		})
	}
}

func TestAuthStore_ListActive(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewAuthStore()
	_ = store.Add(ctx, &auth.APIKey{ID: "active-1", KeyHash: "h1", IsActive: true})
	_ = store.Add(ctx, &auth.APIKey{ID: "inactive-1", KeyHash: "h2", IsActive: false})
	_ = store.Add(ctx, &auth.APIKey{ID: "active-2", KeyHash: "h3", IsActive: true, UserID: userIDPtr("user-1")})

	got, err := store.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive() unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListActive() returned %d keys, want 2", len(got))
	}
	for _, k := range got {
		if !k.IsActive {
			t.Errorf("ListActive() returned inactive key %q", k.ID)
		}
	}
}

func TestAuthStore_CopyOnReturn(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewAuthStore()
	_ = store.Add(ctx, &auth.APIKey{ID: "key-copy-test", KeyHash: "hash-copy", IsActive: true})

	key1, err := store.GetByHash(ctx, "hash-copy")
	if err != nil {
		t.Fatalf("GetByHash() unexpected error: %v", err)
	}
	key1.IsActive = false

	key2, err := store.GetByHash(ctx, "hash-copy")
	if err != nil {
		t.Fatalf("GetByHash() second call unexpected error: %v", err)
	}
	if !key2.IsActive {
		t.Error("store returned reference instead of copy (IsActive was modified)")
	}
}

func TestAuthStore_Revoke(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewAuthStore()
	_ = store.Add(ctx, &auth.APIKey{ID: "key-1", KeyHash: "hash-rev", IsActive: true})

	if err := store.Revoke(ctx, "key-1"); err != nil {
		t.Fatalf("Revoke() unexpected error: %v", err)
	}

	got, err := store.GetByHash(ctx, "hash-rev")
	if err != nil {
		t.Fatalf("GetByHash() unexpected error: %v", err)
	}
	if got.IsActive {
		t.Error("Revoke() did not deactivate the key")
	}

	if err := store.Revoke(ctx, "missing"); !errors.Is(err, auth.ErrKeyNotFound) {
		t.Errorf("Revoke(missing) error = %v, want %v", err, auth.ErrKeyNotFound)
	}
}

func TestAuthStore_Add_OverwritesByHash(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewAuthStore()
	_ = store.Add(ctx, &auth.APIKey{ID: "key-1", KeyHash: "overwrite-hash", IsActive: true})
	_ = store.Add(ctx, &auth.APIKey{ID: "key-2", KeyHash: "overwrite-hash", IsActive: true})

	got, err := store.GetByHash(ctx, "overwrite-hash")
	if err != nil {
		t.Fatalf("GetByHash() unexpected error: %v", err)
	}
	if got.ID != "key-2" {
		t.Errorf("ID = %q, want %q (overwrite failed)", got.ID, "key-2")
	}
}

func TestAuthStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewAuthStore()
	_ = store.Add(ctx, &auth.APIKey{ID: "key-1", KeyHash: "concurrent-hash", IsActive: true})

	var wg sync.WaitGroup
	errCh := make(chan error, 100)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.GetByHash(ctx, "concurrent-hash"); err != nil {
				errCh <- err
			}
		}()
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("concurrent access error: %v", err)
	}
}
