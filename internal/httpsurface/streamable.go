package httpsurface

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/metamcp/metamcp/pkg/mcp/jsonrpc"
)

// sessionIDHeader is the Streamable HTTP session header, matching the
// name the MCP specification fixes for it.
const sessionIDHeader = "Mcp-Session-Id"

// handleStreamablePost serves every POST to /<endpoint>/mcp. A request
// without sessionIDHeader opens a new session and dispatches its first
// frame against it; a request carrying the header is routed to that
// session's existing aggregator instance.
func (s *Server) handleStreamablePost(w http.ResponseWriter, r *http.Request) {
	ep, ok := s.resolveEndpoint(w, r)
	if !ok {
		return
	}

	body, err := readMessageBody(w, r)
	if err != nil {
		return
	}

	var entry *sessionEntry
	sessionID := r.Header.Get(sessionIDHeader)
	if sessionID == "" {
		sessionID, entry = s.newSession(s.http, ep)
	} else {
		var found bool
		entry, found = s.http.get(sessionID)
		if !found {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
	}

	w.Header().Set(sessionIDHeader, sessionID)
	dispatchAndRespond(r.Context(), w, entry, body)
}

// handleStreamableGet opens a server-push stream for an existing
// Streamable HTTP session, used for out-of-band notifications.
func (s *Server) handleStreamableGet(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.resolveEndpoint(w, r); !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "server push not supported", http.StatusInternalServerError)
		return
	}

	sessionID := r.Header.Get(sessionIDHeader)
	if sessionID == "" {
		http.Error(w, fmt.Sprintf("%s header required", sessionIDHeader), http.StatusBadRequest)
		return
	}
	entry, ok := s.http.get(sessionID)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(sessionIDHeader, sessionID)

	ch := make(chan []byte, sseMessageBuffer)
	entry.register(ch)
	defer entry.unregister(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, open := <-ch:
			if !open {
				return
			}
			_, _ = fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// handleStreamableDelete terminates a Streamable HTTP session: its push
// channels are closed and its pool connections torn down.
func (s *Server) handleStreamableDelete(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.resolveEndpoint(w, r); !ok {
		return
	}

	sessionID := r.Header.Get(sessionIDHeader)
	if sessionID == "" {
		http.Error(w, fmt.Sprintf("%s header required", sessionIDHeader), http.StatusBadRequest)
		return
	}

	s.endSession(s.http, sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// readMessageBody applies the body size limit, reads, and validates JSON
// syntax, writing a JSON-RPC parse error response itself on failure.
func readMessageBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMessageBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSONRPCError(w, jsonrpc.ID{}, -32700, "request body too large")
		} else {
			writeJSONRPCError(w, jsonrpc.ID{}, -32700, "failed to read request body")
		}
		return nil, err
	}
	if !json.Valid(body) {
		writeJSONRPCError(w, jsonrpc.ID{}, -32700, "invalid JSON")
		return nil, errors.New("invalid JSON")
	}
	return body, nil
}
