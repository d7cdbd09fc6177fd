package httpsurface

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/metamcp/metamcp/pkg/mcp/jsonrpc"
)

// sseMessageBuffer is the per-connection backlog of server-initiated
// frames before a slow client starts dropping them.
const sseMessageBuffer = 100

// handleSSEOpen opens an event stream for a brand-new session: mints a
// session UUID, obtains the aggregating instance for the endpoint's
// namespace, and streams every subsequent push to the client until it
// disconnects.
func (s *Server) handleSSEOpen(w http.ResponseWriter, r *http.Request) {
	ep, ok := s.resolveEndpoint(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	sessionID, entry := s.newSession(s.sse, ep)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan []byte, sseMessageBuffer)
	entry.register(ch)
	defer func() {
		entry.unregister(ch)
		s.endSession(s.sse, sessionID)
	}()

	endpointURL := fmt.Sprintf("../%s/message?sessionId=%s", ep.Name, sessionID)
	_, _ = fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", endpointURL)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, open := <-ch:
			if !open {
				return
			}
			_, _ = fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// handleSSEMessage delivers one client->server JSON-RPC frame for the
// session named by the sessionId query parameter. The dispatch result, if
// any, is pushed back over that session's open SSE stream rather than
// returned in this response; the HTTP response only reports whether the
// frame was accepted.
func (s *Server) handleSSEMessage(w http.ResponseWriter, r *http.Request) {
	_, ok := s.resolveEndpoint(w, r)
	if !ok {
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "sessionId query parameter required", http.StatusBadRequest)
		return
	}
	entry, ok := s.sse.get(sessionID)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBodySize))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if !json.Valid(body) {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	// The dispatch outlives this request: it replies asynchronously over
	// the session's SSE stream, so it must not inherit a context that is
	// cancelled the moment this handler returns.
	go dispatchAndPush(context.Background(), entry, body)
	w.WriteHeader(http.StatusAccepted)
}

// dispatchAndPush runs one frame through the dispatcher off the request
// goroutine and pushes its response, if any, to entry's SSE channels.
func dispatchAndPush(ctx context.Context, entry *sessionEntry, body []byte) {
	msg, err := jsonrpc.DecodeMessage(body)
	if err != nil {
		return
	}
	req, ok := msg.(*jsonrpc.Request)
	if !ok {
		return
	}
	resp := Dispatch(ctx, entry.agg, req)
	if resp == nil {
		return
	}
	wire, err := jsonrpc.EncodeMessage(resp)
	if err != nil {
		return
	}
	entry.push(wire)
}
