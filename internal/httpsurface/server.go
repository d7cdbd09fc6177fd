package httpsurface

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/metamcp/metamcp/internal/aggregator"
	"github.com/metamcp/metamcp/internal/authgate"
	"github.com/metamcp/metamcp/internal/domain/endpoint"
	"github.com/metamcp/metamcp/internal/domain/namespace"
	"github.com/metamcp/metamcp/internal/domain/upstream"
	"github.com/metamcp/metamcp/internal/pool"
	"github.com/metamcp/metamcp/pkg/mcp/jsonrpc"
)

// maxMessageBodySize caps an inbound JSON-RPC frame at 1 MB, matching the
// limit the Streamable HTTP handler already enforces elsewhere.
const maxMessageBodySize = 1 << 20

// Deps wires the collaborators one endpoint's transports need: the
// endpoint lookup, the namespace/upstream stores and pool the aggregator
// fans out through, and the gate guarding every request.
type Deps struct {
	Endpoints  endpoint.Store
	Namespaces namespace.Store
	Upstreams  upstream.Store
	Pool       *pool.Pool
	ToolCache  *upstream.ToolCache
	Gate       *authgate.Gate
	Logger     *slog.Logger
}

// Server serves every endpoint's SSE and Streamable HTTP transports, with
// one session registry per transport.
type Server struct {
	deps Deps
	sse  *sessionRegistry
	http *sessionRegistry
}

// NewServer creates a Server over deps.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Server{
		deps: deps,
		sse:  newSessionRegistry(),
		http: newSessionRegistry(),
	}
}

// RegisterRoutes mounts every endpoint-scoped route on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{endpoint}/sse", s.handleSSEOpen)
	mux.HandleFunc("POST /{endpoint}/message", s.handleSSEMessage)
	mux.HandleFunc("POST /{endpoint}/mcp", s.handleStreamablePost)
	mux.HandleFunc("GET /{endpoint}/mcp", s.handleStreamableGet)
	mux.HandleFunc("DELETE /{endpoint}/mcp", s.handleStreamableDelete)
	mux.HandleFunc("GET /{endpoint}/health/sessions", s.handleHealthSessions)
	mux.HandleFunc("GET /{endpoint}/health", s.handleHealth)
}

// resolveEndpoint looks up the endpoint named by the {endpoint} path
// value and runs it through the authentication gate. It writes an error
// response itself and returns ok=false when the request must stop here.
func (s *Server) resolveEndpoint(w http.ResponseWriter, r *http.Request) (*endpoint.Endpoint, bool) {
	name := r.PathValue("endpoint")
	ep, err := s.deps.Endpoints.GetByName(r.Context(), name)
	if err != nil {
		http.NotFound(w, r)
		return nil, false
	}
	if !s.deps.Gate.Authenticate(w, r, ep) {
		return nil, false
	}
	return ep, true
}

// newSession creates a fresh aggregator instance for ep and registers a
// sessionEntry for it under a newly generated session UUID.
func (s *Server) newSession(registry *sessionRegistry, ep *endpoint.Endpoint) (string, *sessionEntry) {
	sessionID := uuid.NewString()
	entry := &sessionEntry{endpointID: ep.ID, namespaceID: ep.NamespaceID}
	entry.agg = aggregator.New(ep.NamespaceID, sessionID, s.deps.Namespaces, s.deps.Upstreams, s.deps.Pool, s.deps.ToolCache, func(method string, params json.RawMessage) {
		s.notify(entry, method, params)
	})
	registry.add(sessionID, entry)
	return sessionID, entry
}

// notify encodes an upstream notification as a JSON-RPC notification and
// pushes it to every channel open for entry's session.
func (s *Server) notify(entry *sessionEntry, method string, params json.RawMessage) {
	wire, err := jsonrpc.EncodeMessage(&jsonrpc.Request{Method: method, Params: params})
	if err != nil {
		s.deps.Logger.Warn("httpsurface: failed to encode notification", "method", method, "error", err)
		return
	}
	entry.push(wire)
}

// endSession removes sessionID from registry, closes its push channels,
// and tears down its pool connections. It is idempotent: calling it more
// than once, or for an unknown session, is a no-op.
func (s *Server) endSession(registry *sessionRegistry, sessionID string) {
	entry, ok := registry.remove(sessionID)
	if !ok {
		return
	}
	entry.closeAll()
	s.deps.Pool.CleanupSession(sessionID)
}

// dispatchAndRespond decodes one JSON-RPC frame from body, dispatches it
// against entry's aggregator, and writes the encoded response (if any) to
// w. ctx governs the dispatch; it is the caller's responsibility to
// derive it from the request so client disconnection propagates.
func dispatchAndRespond(ctx context.Context, w http.ResponseWriter, entry *sessionEntry, body []byte) {
	msg, err := jsonrpc.DecodeMessage(body)
	if err != nil {
		writeJSONRPCError(w, jsonrpc.ID{}, jsonrpc.CodeParseError, "parse error")
		return
	}
	req, ok := msg.(*jsonrpc.Request)
	if !ok {
		writeJSONRPCError(w, jsonrpc.ID{}, jsonrpc.CodeInvalidRequest, "expected a request")
		return
	}

	resp := Dispatch(ctx, entry.agg, req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	wire, err := jsonrpc.EncodeMessage(resp)
	if err != nil {
		writeJSONRPCError(w, req.ID, jsonrpc.CodeInternalError, "failed to encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(wire)
}

func writeJSONRPCError(w http.ResponseWriter, id jsonrpc.ID, code int, message string) {
	resp := &jsonrpc.Response{ID: id, Error: &jsonrpc.Error{Code: code, Message: message}}
	wire, err := jsonrpc.EncodeMessage(resp)
	if err != nil {
		http.Error(w, message, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wire)
}
