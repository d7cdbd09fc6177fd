// Package errortracker counts upstream server crashes and promotes a
// server to the persistent ERROR status once its crash threshold is
// reached.
package errortracker

import (
	"context"
	"sync"

	"github.com/metamcp/metamcp/internal/domain/upstream"
)

// DefaultMaxAttempts is the crash threshold used when no per-server
// override is configured.
const DefaultMaxAttempts = 1

// Tracker is process-wide and safe for concurrent use. One instance is
// shared across every connection the pool manages.
type Tracker struct {
	store upstream.Store

	mu          sync.Mutex
	crashCounts map[string]int
	maxAttempts map[string]int
}

// New creates a tracker backed by the given upstream store, where crash
// promotions are persisted.
func New(store upstream.Store) *Tracker {
	return &Tracker{
		store:       store,
		crashCounts: make(map[string]int),
		maxAttempts: make(map[string]int),
	}
}

// SetMaxAttempts overrides the crash threshold for a specific server.
func (t *Tracker) SetMaxAttempts(uuid string, max int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maxAttempts[uuid] = max
}

func (t *Tracker) maxAttemptsFor(uuid string) int {
	if max, ok := t.maxAttempts[uuid]; ok {
		return max
	}
	return DefaultMaxAttempts
}

// RecordCrash increments the crash counter for uuid. Concurrent crashes
// for the same uuid serialize on the tracker's lock, so promotion to
// ERROR happens at most once per threshold crossing. Returns whether this
// call caused the promotion.
func (t *Tracker) RecordCrash(ctx context.Context, uuid string, exitCode int, signal string) (promoted bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.crashCounts[uuid]++
	if t.crashCounts[uuid] < t.maxAttemptsFor(uuid) {
		return false, nil
	}

	// A server already in ERROR was promoted by an earlier crash.
	if server, err := t.store.Get(ctx, uuid); err == nil && server.IsError() {
		return false, nil
	}

	if err := t.store.SetErrorStatus(ctx, uuid, upstream.StatusError); err != nil {
		return false, err
	}
	return true, nil
}

// IsInError reports whether the server currently holds the persistent
// ERROR status.
func (t *Tracker) IsInError(ctx context.Context, uuid string) (bool, error) {
	server, err := t.store.Get(ctx, uuid)
	if err != nil {
		return false, err
	}
	return server.IsError(), nil
}

// Reset clears the in-memory crash counter and writes NONE back to the
// store, for an operator-initiated recovery.
func (t *Tracker) Reset(ctx context.Context, uuid string) error {
	t.mu.Lock()
	delete(t.crashCounts, uuid)
	t.mu.Unlock()

	return t.store.SetErrorStatus(ctx, uuid, upstream.StatusNone)
}
