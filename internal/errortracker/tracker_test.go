package errortracker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/metamcp/metamcp/internal/adapter/outbound/memory"
	"github.com/metamcp/metamcp/internal/domain/upstream"
)

func newTestServer(ctx context.Context, t *testing.T, store *memory.UpstreamStore, id string) {
	t.Helper()
	if err := store.Add(ctx, &upstream.Server{ID: id, Name: id, Kind: upstream.KindStdio, Command: "x"}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
}

func TestTracker_RecordCrash_PromotesAtThreshold(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewUpstreamStore()
	newTestServer(ctx, t, store, "srv-1")

	tracker := New(store)

	promoted, err := tracker.RecordCrash(ctx, "srv-1", 1, "")
	if err != nil {
		t.Fatalf("RecordCrash() error: %v", err)
	}
	if !promoted {
		t.Error("RecordCrash() promoted = false, want true at default threshold of 1")
	}

	inError, err := tracker.IsInError(ctx, "srv-1")
	if err != nil {
		t.Fatalf("IsInError() error: %v", err)
	}
	if !inError {
		t.Error("IsInError() = false, want true after promotion")
	}
}

func TestTracker_RecordCrash_BelowThreshold(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewUpstreamStore()
	newTestServer(ctx, t, store, "srv-1")

	tracker := New(store)
	tracker.SetMaxAttempts("srv-1", 3)

	promoted, err := tracker.RecordCrash(ctx, "srv-1", 1, "")
	if err != nil {
		t.Fatalf("RecordCrash() error: %v", err)
	}
	if promoted {
		t.Error("RecordCrash() promoted = true, want false below threshold")
	}

	inError, err := tracker.IsInError(ctx, "srv-1")
	if err != nil {
		t.Fatalf("IsInError() error: %v", err)
	}
	if inError {
		t.Error("IsInError() = true, want false before threshold is reached")
	}
}

func TestTracker_RecordCrash_ReachesThresholdAfterMultiple(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewUpstreamStore()
	newTestServer(ctx, t, store, "srv-1")

	tracker := New(store)
	tracker.SetMaxAttempts("srv-1", 3)

	for i := 0; i < 2; i++ {
		promoted, err := tracker.RecordCrash(ctx, "srv-1", 1, "")
		if err != nil {
			t.Fatalf("RecordCrash() error: %v", err)
		}
		if promoted {
			t.Fatalf("RecordCrash() promoted early on attempt %d", i+1)
		}
	}

	promoted, err := tracker.RecordCrash(ctx, "srv-1", 1, "")
	if err != nil {
		t.Fatalf("RecordCrash() error: %v", err)
	}
	if !promoted {
		t.Error("RecordCrash() promoted = false on the third attempt, want true")
	}
}

func TestTracker_Reset(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewUpstreamStore()
	newTestServer(ctx, t, store, "srv-1")

	tracker := New(store)
	if _, err := tracker.RecordCrash(ctx, "srv-1", 1, ""); err != nil {
		t.Fatalf("RecordCrash() error: %v", err)
	}

	if err := tracker.Reset(ctx, "srv-1"); err != nil {
		t.Fatalf("Reset() error: %v", err)
	}

	inError, err := tracker.IsInError(ctx, "srv-1")
	if err != nil {
		t.Fatalf("IsInError() error: %v", err)
	}
	if inError {
		t.Error("IsInError() = true after Reset(), want false")
	}

	// Use an overridden threshold of 2 so a single post-reset crash can
	// only promote if the counter carried over instead of clearing.
	tracker.SetMaxAttempts("srv-1", 2)
	promoted, err := tracker.RecordCrash(ctx, "srv-1", 1, "")
	if err != nil {
		t.Fatalf("RecordCrash() error: %v", err)
	}
	if promoted {
		t.Error("RecordCrash() promoted = true on first crash after Reset() with threshold 2, want false (counter should have been cleared)")
	}
}

func TestTracker_IsInError_UnknownServer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewUpstreamStore()
	tracker := New(store)

	_, err := tracker.IsInError(ctx, "missing")
	if !errors.Is(err, upstream.ErrNotFound) {
		t.Errorf("IsInError() error = %v, want ErrNotFound", err)
	}
}

func TestTracker_ConcurrentCrashesPromoteOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewUpstreamStore()
	newTestServer(ctx, t, store, "srv-1")

	tracker := New(store)
	tracker.SetMaxAttempts("srv-1", 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	promotions := 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			promoted, err := tracker.RecordCrash(ctx, "srv-1", 1, "")
			if err != nil {
				t.Errorf("RecordCrash() error: %v", err)
				return
			}
			if promoted {
				mu.Lock()
				promotions++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if promotions != 1 {
		t.Errorf("promotions = %d, want exactly 1", promotions)
	}
}
