// Package aggregator implements the unified MCP server instance a
// session gets for one namespace: it fans out tools/prompts/resources
// requests across every upstream mapped into the namespace, prefixing
// names to keep them unique and routing calls back to the owning
// upstream connection.
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/metamcp/metamcp/internal/domain/namespace"
	"github.com/metamcp/metamcp/internal/domain/upstream"
	"github.com/metamcp/metamcp/internal/pool"
	"github.com/metamcp/metamcp/internal/upstreamclient"
)

// Version is the fixed version the unified server advertises.
const Version = "1.0.0"

// nameSanitizer strips everything but the characters the unified naming
// scheme allows in a server-name prefix.
var nameSanitizer = regexp.MustCompile(`[^A-Za-z0-9_-]`)

func sanitizeName(name string) string {
	return nameSanitizer.ReplaceAllString(name, "")
}

// NotificationHandler forwards one upstream notification to the external
// session's own notification channel, unchanged.
type NotificationHandler func(method string, params json.RawMessage)

// Server is one (namespace, session) aggregating MCP server instance.
// Its routing tables are in-memory only and updated by each list call
// (entries are added or overwritten, never removed);
// CallTool/GetPrompt/ReadResource consult them to avoid re-listing on
// every call.
type Server struct {
	namespaceUUID string
	sessionID     string
	unifiedName   string

	nsStore       namespace.Store
	upstreamStore upstream.Store
	pool          *pool.Pool
	toolCache     *upstream.ToolCache
	onNotify      NotificationHandler

	mu               sync.Mutex
	toolToConn       map[string]*pool.Connection
	toolToServerUUID map[string]string
	promptToConn     map[string]*pool.Connection
	resourceToConn   map[string]*pool.Connection
	notifyRegistered map[string]struct{}
}

// New creates an aggregating server instance for one (namespaceUUID,
// sessionID) pair. onNotify may be nil, in which case upstream
// notifications are swallowed.
func New(namespaceUUID, sessionID string, nsStore namespace.Store, upstreamStore upstream.Store, p *pool.Pool, toolCache *upstream.ToolCache, onNotify NotificationHandler) *Server {
	return &Server{
		namespaceUUID:    namespaceUUID,
		sessionID:        sessionID,
		unifiedName:      fmt.Sprintf("metamcp-unified-%s", namespaceUUID),
		nsStore:          nsStore,
		upstreamStore:    upstreamStore,
		pool:             p,
		toolCache:        toolCache,
		onNotify:         onNotify,
		toolToConn:       make(map[string]*pool.Connection),
		toolToServerUUID: make(map[string]string),
		promptToConn:     make(map[string]*pool.Connection),
		resourceToConn:   make(map[string]*pool.Connection),
		notifyRegistered: make(map[string]struct{}),
	}
}

// Name returns the unified server name this instance advertises,
// metamcp-unified-<namespaceUuid>.
func (s *Server) Name() string {
	return s.unifiedName
}

// namespaceUpstreams resolves the namespace's active upstream servers.
func (s *Server) namespaceUpstreams(ctx context.Context) ([]upstream.Server, error) {
	ns, err := s.nsStore.Get(ctx, s.namespaceUUID)
	if err != nil {
		return nil, fmt.Errorf("aggregator: resolve namespace: %w", err)
	}

	var servers []upstream.Server
	for _, id := range ns.ActiveServerIDs(false) {
		srv, err := s.upstreamStore.Get(ctx, id)
		if err != nil {
			slog.Warn("aggregator: skipping unresolved upstream", "uuid", id, "error", err)
			continue
		}
		servers = append(servers, *srv)
	}
	return servers, nil
}

// connectExcludingSelf acquires a pool connection for srv and applies the
// self-reference and visited-set cycle defenses. Returns ok=false (with
// no error) when the upstream should be silently skipped.
func (s *Server) connectExcludingSelf(ctx context.Context, srv upstream.Server, visited map[string]bool) (*pool.Connection, bool) {
	if visited[srv.ID] {
		return nil, false
	}
	visited[srv.ID] = true

	if sanitizeName(srv.Name) == s.unifiedName {
		return nil, false
	}

	conn, err := s.pool.GetSession(ctx, s.sessionID, srv.ID, srv)
	if err != nil {
		slog.Warn("aggregator: upstream unavailable", "uuid", srv.ID, "error", err)
		return nil, false
	}

	if sanitizeName(conn.ServerName) == s.unifiedName {
		return nil, false
	}

	s.registerNotifications(conn)
	return conn, true
}

// registerNotifications wires this aggregator's forwarding handler onto
// conn's client, at most once per advertised server name within this
// session, per the cycle-avoidance/"registered once" invariant.
func (s *Server) registerNotifications(conn *pool.Connection) {
	s.mu.Lock()
	_, already := s.notifyRegistered[conn.ServerName]
	if !already {
		s.notifyRegistered[conn.ServerName] = struct{}{}
	}
	s.mu.Unlock()
	if already {
		return
	}

	conn.Client.SetFallbackHandler(func(method string, params json.RawMessage) {
		if s.onNotify != nil {
			s.onNotify(method, params)
		}
	})
}

// Tool is one tool entry as the unified server advertises it externally,
// name already prefixed.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ListTools fans out tools/list across every upstream mapped into the
// namespace, installs routing entries, and returns the concatenated,
// prefixed tool list. Per-upstream errors are logged, not surfaced.
func (s *Server) ListTools(ctx context.Context) ([]Tool, error) {
	servers, err := s.namespaceUpstreams(ctx)
	if err != nil {
		return nil, err
	}

	// Connection acquisition touches the shared visited/notifyRegistered
	// bookkeeping and must stay sequential; only the tools/list RPCs
	// themselves, one per upstream connection, fan out concurrently.
	visited := make(map[string]bool)
	type connected struct {
		srv  upstream.Server
		conn *pool.Connection
	}
	var conns []connected
	for _, srv := range servers {
		if conn, ok := s.connectExcludingSelf(ctx, srv, visited); ok {
			conns = append(conns, connected{srv, conn})
		}
	}

	var mu sync.Mutex
	var tools []Tool

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOutConcurrencyLimit)
	for _, c := range conns {
		srv, conn := c.srv, c.conn
		g.Go(func() error {
			result, err := conn.Client.ListTools(gctx, "")
			if err != nil {
				slog.Warn("aggregator: tools/list failed", "uuid", srv.ID, "error", err)
				return nil
			}

			prefix := sanitizeName(srv.Name)
			discovered := make([]*upstream.DiscoveredTool, 0, len(result.Tools))
			now := time.Now()

			mu.Lock()
			for _, t := range result.Tools {
				prefixed := prefix + "__" + t.Name

				s.mu.Lock()
				s.toolToConn[prefixed] = conn
				s.toolToServerUUID[prefixed] = srv.ID
				s.mu.Unlock()

				tools = append(tools, Tool{Name: prefixed, Description: t.Description, InputSchema: t.InputSchema})
				discovered = append(discovered, &upstream.DiscoveredTool{
					Name:         prefixed,
					Description:  t.Description,
					InputSchema:  t.InputSchema,
					UpstreamID:   srv.ID,
					UpstreamName: srv.Name,
					DiscoveredAt: now,
				})
			}
			mu.Unlock()

			if s.toolCache != nil {
				s.toolCache.SetToolsForUpstream(srv.ID, discovered)
			}
			return nil
		})
	}
	_ = g.Wait() // per-upstream errors are already logged and swallowed above

	return tools, nil
}

// fanOutConcurrencyLimit bounds how many upstream tools/list RPCs run at
// once during ListTools, so a namespace with many mapped upstreams can't
// open them all in the same instant.
const fanOutConcurrencyLimit = 8

// CallToolResult is the unified server's response to tools/call.
type CallToolResult struct {
	Content json.RawMessage `json:"content"`
	IsError bool            `json:"isError,omitempty"`
}

// CallTool splits prefixedName on its first "__", routes to the owning
// upstream connection (re-resolving by listing tools on every namespace
// upstream on a routing miss), and forwards the call with the
// MCP_TIMEOUT/MCP_MAX_TOTAL_TIMEOUT/MCP_RESET_TIMEOUT_ON_PROGRESS
// operational options. Upstream errors are returned to the caller as-is;
// the aggregator never retries a tool call.
func (s *Server) CallTool(ctx context.Context, prefixedName string, arguments json.RawMessage) (*CallToolResult, error) {
	idx := strings.Index(prefixedName, "__")
	if idx < 0 {
		return nil, fmt.Errorf("aggregator: %q is not a namespaced tool name", prefixedName)
	}
	toolName := prefixedName[idx+2:]

	s.mu.Lock()
	conn, ok := s.toolToConn[prefixedName]
	s.mu.Unlock()

	if !ok {
		if _, err := s.ListTools(ctx); err != nil {
			return nil, err
		}
		s.mu.Lock()
		conn, ok = s.toolToConn[prefixedName]
		s.mu.Unlock()
	}
	if !ok {
		return nil, fmt.Errorf("aggregator: unknown tool %q", prefixedName)
	}

	result, err := conn.Client.CallTool(ctx, toolName, arguments, operationalOptions()...)
	if err != nil {
		return nil, fmt.Errorf("aggregator: tool call failed: %w", err)
	}

	return &CallToolResult{Content: result.Content, IsError: result.IsError}, nil
}

// operationalOptions builds the upstreamclient.RequestOption set from the
// MCP_TIMEOUT / MCP_MAX_TOTAL_TIMEOUT / MCP_RESET_TIMEOUT_ON_PROGRESS
// environment variables, each read fresh per call so an operator can
// adjust them without a restart.
func operationalOptions() []upstreamclient.RequestOption {
	var opts []upstreamclient.RequestOption

	if ms, ok := envMilliseconds("MCP_TIMEOUT"); ok {
		opts = append(opts, upstreamclient.WithTimeout(ms))
	}
	if ms, ok := envMilliseconds("MCP_MAX_TOTAL_TIMEOUT"); ok {
		opts = append(opts, upstreamclient.WithMaxTotalTimeout(ms))
	}
	if v := os.Getenv("MCP_RESET_TIMEOUT_ON_PROGRESS"); v != "" {
		if reset, err := strconv.ParseBool(v); err == nil {
			opts = append(opts, upstreamclient.WithResetTimeoutOnProgress(reset))
		}
	}

	return opts
}

func envMilliseconds(name string) (time.Duration, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}
