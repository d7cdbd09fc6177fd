package httpsurface

import (
	"sync"

	"github.com/metamcp/metamcp/internal/aggregator"
)

// sessionEntry is one live (namespace, session) aggregating instance
// shared by every transport connection bound to sessionID.
type sessionEntry struct {
	agg         *aggregator.Server
	endpointID  string
	namespaceID string

	mu       sync.Mutex
	channels []chan []byte
}

// push fans a server-initiated message out to every channel registered
// for this session (there is ordinarily exactly one).
func (e *sessionEntry) push(msg []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range e.channels {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (e *sessionEntry) register(ch chan []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.channels = append(e.channels, ch)
}

func (e *sessionEntry) unregister(ch chan []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, c := range e.channels {
		if c == ch {
			e.channels = append(e.channels[:i], e.channels[i+1:]...)
			break
		}
	}
}

func (e *sessionEntry) closeAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range e.channels {
		close(ch)
	}
	e.channels = nil
}

// sessionRegistry tracks the live sessions of one transport, keyed by the
// transport-generated session UUID.
type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*sessionEntry)}
}

func (r *sessionRegistry) add(sessionID string, entry *sessionEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = entry
}

func (r *sessionRegistry) get(sessionID string) (*sessionEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sessionID]
	return e, ok
}

// remove deletes sessionID from the registry and returns its entry, if
// any, so the caller can tear down its pool connections and close its
// channels. It is safe to call more than once for the same sessionID.
func (r *sessionRegistry) remove(sessionID string) (*sessionEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	return e, ok
}

// countForEndpoint reports the number of live sessions bound to
// endpointID, for the per-endpoint health route.
func (r *sessionRegistry) countForEndpoint(endpointID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.sessions {
		if e.endpointID == endpointID {
			n++
		}
	}
	return n
}
