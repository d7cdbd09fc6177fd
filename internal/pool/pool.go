// Package pool manages upstream MCP connections in two tiers: one idle
// connection per server UUID, kept warm for the next session that needs
// it, and the active connections actually owned by a session. It is the
// only component that opens or closes transport.Adapters for upstream
// servers.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/metamcp/metamcp/internal/domain/upstream"
	"github.com/metamcp/metamcp/internal/errortracker"
	"github.com/metamcp/metamcp/internal/transport"
	"github.com/metamcp/metamcp/internal/upstreamclient"
)

// ErrServerInError is returned when a connection is requested for a
// server the error tracker currently holds in ERROR status.
var ErrServerInError = errors.New("pool: upstream server is in error status")

// DefaultMaxAttempts bounds connection retries when no per-server
// override is configured.
const DefaultMaxAttempts = 3

// retryDelay is the pause between connection attempts, per the failure
// semantics: retries happen up to max-attempts(uuid) with a fixed delay,
// re-checking the error tracker between attempts.
const retryDelay = 5 * time.Second

// Connection is one live upstream MCP connection, owned by exactly one
// of: an idle slot, one (sessionID, uuid) active cell, or an in-flight
// close.
type Connection struct {
	UUID       string
	ServerName string
	Client     *upstreamclient.Client

	adapter transport.Adapter
}

// Close tears down the underlying client and transport. Idempotent.
func (c *Connection) Close() error {
	return c.Client.Close()
}

// ClientInfo identifies MetaMCP to every upstream it connects to.
var ClientInfo = upstreamclient.ClientInfo{Name: "metamcp-unified", Version: "0.1.0"}

// Pool is the two-tier idle/active connection cache. Safe for concurrent
// use; all map access is serialized on a single mutex, matching the
// reference design's single-writer-per-UUID discipline.
type Pool struct {
	store    upstream.Store
	tracker  *errortracker.Tracker
	cooldown *transport.Cooldown

	mu               sync.Mutex
	idle             map[string]*Connection
	active           map[string]map[string]*Connection
	sessionToServers map[string]map[string]struct{}
	creatingIdle     map[string]context.CancelFunc
	paramsCache      map[string]upstream.Server
	maxAttempts      map[string]int
}

// New creates an empty pool backed by the given upstream store and crash
// tracker. cooldown may be nil to disable stdio fast-fail throttling.
func New(store upstream.Store, tracker *errortracker.Tracker, cooldown *transport.Cooldown) *Pool {
	return &Pool{
		store:            store,
		tracker:          tracker,
		cooldown:         cooldown,
		idle:             make(map[string]*Connection),
		active:           make(map[string]map[string]*Connection),
		sessionToServers: make(map[string]map[string]struct{}),
		creatingIdle:     make(map[string]context.CancelFunc),
		paramsCache:      make(map[string]upstream.Server),
		maxAttempts:      make(map[string]int),
	}
}

// SetMaxAttempts overrides the connection-retry budget for one server.
func (p *Pool) SetMaxAttempts(uuid string, max int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxAttempts[uuid] = max
}

func (p *Pool) maxAttemptsFor(uuid string) int {
	if max, ok := p.maxAttempts[uuid]; ok {
		return max
	}
	return DefaultMaxAttempts
}

// GetSession returns the connection for (sessionID, uuid), opening one if
// necessary: reusing an idle connection if present, or dialing fresh.
// Either path asynchronously triggers a refill of the idle slot so the
// next caller for this UUID doesn't pay dial latency.
func (p *Pool) GetSession(ctx context.Context, sessionID, uuid string, params upstream.Server) (*Connection, error) {
	p.mu.Lock()
	p.paramsCache[uuid] = params

	if sessions, ok := p.active[sessionID]; ok {
		if conn, ok := sessions[uuid]; ok {
			p.mu.Unlock()
			return conn, nil
		}
	}

	if inError, err := p.tracker.IsInError(ctx, uuid); err == nil && inError {
		p.mu.Unlock()
		return nil, ErrServerInError
	}

	var reused *Connection
	if conn, ok := p.idle[uuid]; ok {
		delete(p.idle, uuid)
		reused = conn
	}
	p.mu.Unlock()

	var conn *Connection
	var err error
	if reused != nil {
		conn = reused
	} else {
		conn, err = p.dial(ctx, uuid, params)
		if err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	if p.active[sessionID] == nil {
		p.active[sessionID] = make(map[string]*Connection)
	}
	p.active[sessionID][uuid] = conn
	if p.sessionToServers[sessionID] == nil {
		p.sessionToServers[sessionID] = make(map[string]struct{})
	}
	p.sessionToServers[sessionID][uuid] = struct{}{}
	p.mu.Unlock()

	go p.refillIdle(uuid, params)

	return conn, nil
}

// EnsureIdle creates an idle connection for every UUID in
// serverParamsByUUID that has neither an idle connection nor an in-flight
// creation.
func (p *Pool) EnsureIdle(serverParamsByUUID map[string]upstream.Server) {
	for uuid, params := range serverParamsByUUID {
		p.mu.Lock()
		_, hasIdle := p.idle[uuid]
		_, creating := p.creatingIdle[uuid]
		p.mu.Unlock()
		if hasIdle || creating {
			continue
		}
		go p.refillIdle(uuid, params)
	}
}

// refillIdle dials a new idle connection for uuid, respecting the
// "one in-flight creation per UUID" invariant. Failures are swallowed:
// idle refill is best-effort and the next GetSession call will dial fresh
// if no idle slot materialized.
func (p *Pool) refillIdle(uuid string, params upstream.Server) {
	p.mu.Lock()
	if _, ok := p.idle[uuid]; ok {
		p.mu.Unlock()
		return
	}
	if _, ok := p.creatingIdle[uuid]; ok {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.creatingIdle[uuid] = cancel
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.creatingIdle, uuid)
		p.mu.Unlock()
		cancel()
	}()

	conn, err := p.dial(ctx, uuid, params)
	if err != nil {
		return
	}

	p.mu.Lock()
	if ctx.Err() != nil || p.idle[uuid] != nil {
		p.mu.Unlock()
		_ = conn.Close()
		return
	}
	p.idle[uuid] = conn
	p.mu.Unlock()
}

// InvalidateIdle replaces the cached parameters for uuid, closes any
// existing idle connection, cancels an in-flight creation, and starts a
// fresh one.
func (p *Pool) InvalidateIdle(uuid string, newParams upstream.Server) {
	p.mu.Lock()
	p.paramsCache[uuid] = newParams
	var toClose *Connection
	if conn, ok := p.idle[uuid]; ok {
		toClose = conn
		delete(p.idle, uuid)
	}
	if cancel, ok := p.creatingIdle[uuid]; ok {
		cancel()
		delete(p.creatingIdle, uuid)
	}
	p.mu.Unlock()

	if toClose != nil {
		_ = toClose.Close()
	}

	go p.refillIdle(uuid, newParams)
}

// CleanupIdle closes the idle connection for uuid and drops it from the
// params cache, without starting a replacement.
func (p *Pool) CleanupIdle(uuid string) {
	p.mu.Lock()
	var toClose *Connection
	if conn, ok := p.idle[uuid]; ok {
		toClose = conn
		delete(p.idle, uuid)
	}
	delete(p.paramsCache, uuid)
	if cancel, ok := p.creatingIdle[uuid]; ok {
		cancel()
		delete(p.creatingIdle, uuid)
	}
	p.mu.Unlock()

	if toClose != nil {
		_ = toClose.Close()
	}
}

// CleanupSession closes every active connection owned by sessionID and
// drops its bookkeeping, then asynchronously refills idle slots for the
// UUIDs it released.
func (p *Pool) CleanupSession(sessionID string) {
	p.mu.Lock()
	sessions := p.active[sessionID]
	delete(p.active, sessionID)
	delete(p.sessionToServers, sessionID)
	var released []string
	params := make(map[string]upstream.Server)
	for uuid := range sessions {
		released = append(released, uuid)
		if pr, ok := p.paramsCache[uuid]; ok {
			params[uuid] = pr
		}
	}
	p.mu.Unlock()

	for _, conn := range sessions {
		_ = conn.Close()
	}

	for _, uuid := range released {
		if pr, ok := params[uuid]; ok {
			go p.refillIdle(uuid, pr)
		}
	}
}

// Stats reports the current number of idle and active connections, for
// metrics export. It takes the same lock every other pool method does,
// so a scrape never sees a torn count.
func (p *Pool) Stats() (idle, active int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idle = len(p.idle)
	for _, sessions := range p.active {
		active += len(sessions)
	}
	return idle, active
}

// CleanupAll closes every idle and active connection and resets all pool
// state, for process shutdown.
func (p *Pool) CleanupAll() {
	p.mu.Lock()
	idle := p.idle
	active := p.active
	creating := p.creatingIdle
	p.idle = make(map[string]*Connection)
	p.active = make(map[string]map[string]*Connection)
	p.sessionToServers = make(map[string]map[string]struct{})
	p.creatingIdle = make(map[string]context.CancelFunc)
	p.paramsCache = make(map[string]upstream.Server)
	p.mu.Unlock()

	for _, cancel := range creating {
		cancel()
	}
	for _, conn := range idle {
		_ = conn.Close()
	}
	for _, sessions := range active {
		for _, conn := range sessions {
			_ = conn.Close()
		}
	}
}

// HandleCrash records the crash in the error tracker, then closes the
// idle connection for uuid and every active connection pointing at it
// across every session, so the next request for that server dials fresh
// (or is rejected outright if the tracker just promoted it to ERROR).
func (p *Pool) HandleCrash(ctx context.Context, uuid string, exitCode int, signal string) {
	_, _ = p.tracker.RecordCrash(ctx, uuid, exitCode, signal)

	p.mu.Lock()
	var toClose []*Connection
	if conn, ok := p.idle[uuid]; ok {
		toClose = append(toClose, conn)
		delete(p.idle, uuid)
	}
	for sessionID, sessions := range p.active {
		if conn, ok := sessions[uuid]; ok {
			toClose = append(toClose, conn)
			delete(sessions, uuid)
			if servers, ok := p.sessionToServers[sessionID]; ok {
				delete(servers, uuid)
			}
		}
	}
	p.mu.Unlock()

	for _, conn := range toClose {
		_ = conn.Close()
	}
}

// dial opens a fresh connection to uuid, retrying up to
// maxAttemptsFor(uuid) times with retryDelay between attempts, aborting
// early if the tracker promotes the server to ERROR mid-retry.
func (p *Pool) dial(ctx context.Context, uuid string, params upstream.Server) (*Connection, error) {
	maxAttempts := p.maxAttemptsFor(uuid)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if inError, err := p.tracker.IsInError(ctx, uuid); err == nil && inError {
			return nil, ErrServerInError
		}

		conn, err := p.connectOnce(ctx, uuid, params)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		if attempt < maxAttempts {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("pool: dial %s: %w", uuid, lastErr)
}

// connectOnce builds the transport.Adapter matching params.Kind, wraps it
// with an upstream client, starts it, and performs the initialize
// handshake.
func (p *Pool) connectOnce(ctx context.Context, uuid string, params upstream.Server) (*Connection, error) {
	client := upstreamclient.New()

	var adapter transport.Adapter
	switch params.Kind {
	case upstream.KindStdio:
		adapter = transport.NewStdioAdapter(params.Command, params.Args, params.Env,
			transport.WithStdioMessageHandler(client.HandleMessage),
			transport.WithStdioCloseHandler(client.HandleClose),
			transport.WithStdioErrorHandler(client.HandleError),
			transport.WithStdioCrashHandler(func(exitCode int, signal string) {
				go p.HandleCrash(context.Background(), uuid, exitCode, signal)
			}),
			transport.WithStdioCooldown(p.cooldown),
		)
	case upstream.KindSSE:
		opts := []transport.SSEOption{
			transport.WithSSEMessageHandler(client.HandleMessage),
			transport.WithSSECloseHandler(client.HandleClose),
			transport.WithSSEErrorHandler(client.HandleError),
		}
		if params.BearerToken != "" {
			opts = append(opts, transport.WithSSEBearerToken(params.BearerToken))
		}
		adapter = transport.NewSSEAdapter(transport.RewriteDockerHost(params.URL), opts...)
	case upstream.KindStreamableHTTP:
		opts := []transport.StreamableHTTPOption{
			transport.WithStreamableMessageHandler(client.HandleMessage),
			transport.WithStreamableCloseHandler(client.HandleClose),
			transport.WithStreamableErrorHandler(client.HandleError),
		}
		if params.BearerToken != "" {
			opts = append(opts, transport.WithStreamableBearerToken(params.BearerToken))
		}
		adapter = transport.NewStreamableHTTPAdapter(transport.RewriteDockerHost(params.URL), opts...)
	default:
		return nil, fmt.Errorf("pool: unsupported upstream kind %q", params.Kind)
	}

	client.SetAdapter(adapter)

	if err := client.Start(ctx); err != nil {
		return nil, fmt.Errorf("start transport: %w", err)
	}

	result, err := client.Initialize(ctx, ClientInfo)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("initialize handshake: %w", err)
	}

	return &Connection{
		UUID:       uuid,
		ServerName: result.ServerInfo.Name,
		Client:     client,
		adapter:    adapter,
	}, nil
}
