// Package upstreamclient wraps one transport.Adapter with the MCP
// initialize handshake and typed request methods, correlating JSON-RPC
// responses back to their callers and resetting per-request timeouts on
// progress notifications.
package upstreamclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/metamcp/metamcp/internal/transport"
	"github.com/metamcp/metamcp/pkg/mcp/jsonrpc"
)

// DefaultTimeout bounds a request's wall clock when the caller supplies
// no per-call timeout.
const DefaultTimeout = 60 * time.Second

// ProtocolVersion is the MCP protocol version this client negotiates
// during Initialize.
const ProtocolVersion = "2025-03-26"

// ErrClosed is returned by request methods once Close has been called.
var ErrClosed = errors.New("upstreamclient: client is closed")

// NotificationHandler processes one incoming notification's raw params.
type NotificationHandler func(method string, params json.RawMessage)

// ClientOption configures a Client at construction time.
type ClientOption func(*Client)

// WithNotificationHandler registers a handler for a specific notification
// method, overriding the fallback for that method only.
func WithNotificationHandler(method string, h NotificationHandler) ClientOption {
	return func(c *Client) { c.notificationHandlers[method] = h }
}

// WithFallbackHandler registers the handler invoked for any notification
// whose method has no specific handler registered.
func WithFallbackHandler(h NotificationHandler) ClientOption {
	return func(c *Client) { c.fallbackHandler = h }
}

// WithCloseHandler registers a callback invoked exactly once when the
// underlying transport closes, whether cleanly or via crash.
func WithCloseHandler(h func(err error)) ClientOption {
	return func(c *Client) { c.onClose = h }
}

// Client wraps one transport.Adapter and speaks typed MCP requests over
// it. Callers must wire HandleMessage, HandleClose, HandleError (and, for
// a stdio adapter, HandleCrash) as the adapter's callbacks before calling
// Start, since the transport variants take their callbacks at
// construction time.
type Client struct {
	adapter transport.Adapter

	notificationHandlers map[string]NotificationHandler
	fallbackHandler      NotificationHandler
	onClose              func(err error)

	nextID int64

	mu      sync.Mutex
	pending map[string]*pendingRequest
	// progressOwners maps a request's own progress token (as issued to the
	// upstream in params._meta.progressToken) back to the pending entry,
	// so an incoming notifications/progress can find the timer to reset.
	progressOwners map[string]string
	closed         bool
	closeErr       error
}

type pendingRequest struct {
	resultCh chan *jsonrpc.Response

	mu              sync.Mutex
	timer           *time.Timer
	maxTimer        *time.Timer
	timeout         time.Duration
	resetOnProgress bool
	fired           bool
}

// New creates a client with no adapter attached yet. Call SetAdapter once
// the transport.Adapter has been constructed with this client's handler
// methods wired in as its callbacks.
func New(opts ...ClientOption) *Client {
	c := &Client{
		notificationHandlers: make(map[string]NotificationHandler),
		pending:              make(map[string]*pendingRequest),
		progressOwners:       make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetAdapter attaches the transport.Adapter this client sends requests
// through. Must be called before Start.
func (c *Client) SetAdapter(adapter transport.Adapter) {
	c.adapter = adapter
}

// SetFallbackHandler registers (or replaces) the handler invoked for any
// notification whose method has no specific handler registered. Safe to
// call after Start, e.g. once a caller knows which upstream it acquired.
func (c *Client) SetFallbackHandler(h NotificationHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fallbackHandler = h
}

// Start brings the underlying transport up.
func (c *Client) Start(ctx context.Context) error {
	if c.adapter == nil {
		return errors.New("upstreamclient: no adapter attached")
	}
	return c.adapter.Start(ctx)
}

// Close tears down the underlying transport and fails every pending
// request with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.closeErr = ErrClosed
	pending := c.pending
	c.pending = make(map[string]*pendingRequest)
	c.mu.Unlock()

	for _, p := range pending {
		p.stopTimers()
		close(p.resultCh)
	}

	if c.adapter == nil {
		return nil
	}
	return c.adapter.Close()
}

// RequestOption configures the timeout behavior of a single request.
type RequestOption func(*requestConfig)

type requestConfig struct {
	timeout         time.Duration
	maxTotalTimeout time.Duration
	resetOnProgress bool
}

// WithTimeout bounds the request's wall clock, reset by progress
// notifications unless disabled with WithResetTimeoutOnProgress(false).
func WithTimeout(d time.Duration) RequestOption {
	return func(cfg *requestConfig) { cfg.timeout = d }
}

// WithMaxTotalTimeout sets a hard ceiling independent of progress resets.
// Zero (the default) means no ceiling beyond the per-request timeout.
func WithMaxTotalTimeout(d time.Duration) RequestOption {
	return func(cfg *requestConfig) { cfg.maxTotalTimeout = d }
}

// WithResetTimeoutOnProgress controls whether a progress notification
// tied to this request resets its timeout timer. Defaults to true.
func WithResetTimeoutOnProgress(reset bool) RequestOption {
	return func(cfg *requestConfig) { cfg.resetOnProgress = reset }
}

func newRequestConfig(opts []RequestOption) requestConfig {
	cfg := requestConfig{timeout: DefaultTimeout, resetOnProgress: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (p *pendingRequest) stopTimers() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		p.timer.Stop()
	}
	if p.maxTimer != nil {
		p.maxTimer.Stop()
	}
}

// resetTimeout restarts the per-request timer. No-op once the request has
// already been resolved or the max-total ceiling has fired.
func (p *pendingRequest) resetTimeout() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fired || !p.resetOnProgress || p.timer == nil {
		return
	}
	p.timer.Reset(p.timeout)
}

// call sends one request and blocks until its response arrives, the
// context is cancelled, or a timeout fires. method/params build the
// request; a progress token is embedded in params when resetOnProgress is
// requested so an incoming notifications/progress can be matched back.
func (c *Client) call(ctx context.Context, method string, params interface{}, opts []RequestOption) (json.RawMessage, error) {
	cfg := newRequestConfig(opts)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.nextID++
	idNum := c.nextID
	id, err := jsonrpc.MakeID(float64(idNum))
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	idKey := id.String()

	progressToken := ""
	if cfg.resetOnProgress {
		progressToken = "pt-" + strconv.FormatInt(idNum, 10)
	}

	rawParams, err := encodeParams(params, progressToken)
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("upstreamclient: encode params: %w", err)
	}

	pending := &pendingRequest{
		resultCh:        make(chan *jsonrpc.Response, 1),
		timeout:         cfg.timeout,
		resetOnProgress: cfg.resetOnProgress,
	}
	c.pending[idKey] = pending
	if progressToken != "" {
		c.progressOwners[progressToken] = idKey
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, idKey)
		if progressToken != "" {
			delete(c.progressOwners, progressToken)
		}
		c.mu.Unlock()
	}()

	req := &jsonrpc.Request{ID: id, Method: method, Params: rawParams}
	wire, err := jsonrpc.EncodeMessage(req)
	if err != nil {
		return nil, fmt.Errorf("upstreamclient: encode request: %w", err)
	}

	var timedOut atomic.Bool
	if cfg.timeout > 0 {
		pending.timer = time.AfterFunc(cfg.timeout, func() {
			timedOut.Store(true)
			c.failPending(idKey, fmt.Errorf("upstreamclient: request %q timed out after %s", method, cfg.timeout))
		})
	}
	if cfg.maxTotalTimeout > 0 {
		pending.maxTimer = time.AfterFunc(cfg.maxTotalTimeout, func() {
			timedOut.Store(true)
			c.failPending(idKey, fmt.Errorf("upstreamclient: request %q exceeded max total timeout %s", method, cfg.maxTotalTimeout))
		})
	}
	defer pending.stopTimers()

	if err := c.adapter.Send(ctx, wire); err != nil {
		return nil, fmt.Errorf("upstreamclient: send %q: %w", method, err)
	}

	select {
	case resp, ok := <-pending.resultCh:
		if !ok {
			if timedOut.Load() {
				return nil, pending.timeoutErr()
			}
			return nil, c.closeErr
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pendingRequest) timeoutErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fmt.Errorf("upstreamclient: request timed out")
}

// failPending marks a pending request as fired and delivers a synthetic
// error response, unblocking any caller waiting in call.
func (c *Client) failPending(idKey string, err error) {
	c.mu.Lock()
	pending, ok := c.pending[idKey]
	c.mu.Unlock()
	if !ok {
		return
	}
	pending.mu.Lock()
	if pending.fired {
		pending.mu.Unlock()
		return
	}
	pending.fired = true
	pending.mu.Unlock()

	select {
	case pending.resultCh <- &jsonrpc.Response{Error: &jsonrpc.Error{Code: jsonrpc.CodeInternalError, Message: err.Error()}}:
	default:
	}
}

func encodeParams(params interface{}, progressToken string) (json.RawMessage, error) {
	if params == nil && progressToken == "" {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	if progressToken == "" {
		return raw, nil
	}

	var m map[string]json.RawMessage
	if len(raw) == 0 || string(raw) == "null" {
		m = make(map[string]json.RawMessage)
	} else if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	meta, err := json.Marshal(struct {
		ProgressToken string `json:"progressToken"`
	}{ProgressToken: progressToken})
	if err != nil {
		return nil, err
	}
	m["_meta"] = meta
	return json.Marshal(m)
}

// HandleMessage decodes one inbound wire message and routes it: a
// response is matched to its pending call by ID; a notification is
// dispatched to its registered handler, or the fallback if none matches;
// a progress notification additionally resets the timer of the request it
// names, if one is still pending.
func (c *Client) HandleMessage(raw []byte) {
	msg, err := jsonrpc.DecodeMessage(raw)
	if err != nil {
		return
	}

	switch m := msg.(type) {
	case *jsonrpc.Response:
		c.routeResponse(m)
	case *jsonrpc.Request:
		if m.IsCall() {
			return
		}
		c.routeNotification(m)
	}
}

func (c *Client) routeResponse(resp *jsonrpc.Response) {
	idKey := resp.ID.String()
	c.mu.Lock()
	pending, ok := c.pending[idKey]
	c.mu.Unlock()
	if !ok {
		return
	}

	pending.mu.Lock()
	if pending.fired {
		pending.mu.Unlock()
		return
	}
	pending.fired = true
	pending.mu.Unlock()

	select {
	case pending.resultCh <- resp:
	default:
	}
}

func (c *Client) routeNotification(req *jsonrpc.Request) {
	if req.Method == "notifications/progress" {
		c.handleProgress(req.Params)
	}

	c.mu.Lock()
	handler, ok := c.notificationHandlers[req.Method]
	fallback := c.fallbackHandler
	c.mu.Unlock()

	if ok {
		handler(req.Method, req.Params)
		return
	}
	if fallback != nil {
		fallback(req.Method, req.Params)
	}
}

func (c *Client) handleProgress(params json.RawMessage) {
	var p struct {
		ProgressToken string `json:"progressToken"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.ProgressToken == "" {
		return
	}

	c.mu.Lock()
	idKey, ok := c.progressOwners[p.ProgressToken]
	var pending *pendingRequest
	if ok {
		pending = c.pending[idKey]
	}
	c.mu.Unlock()

	if pending != nil {
		pending.resetTimeout()
	}
}

// HandleClose is wired as the adapter's close callback. It fails every
// pending request and invokes the client's own close handler, if any.
func (c *Client) HandleClose(err error) {
	c.mu.Lock()
	c.closed = true
	if err != nil {
		c.closeErr = err
	} else {
		c.closeErr = ErrClosed
	}
	pending := c.pending
	c.pending = make(map[string]*pendingRequest)
	c.mu.Unlock()

	for _, p := range pending {
		p.stopTimers()
		close(p.resultCh)
	}

	if c.onClose != nil {
		c.onClose(err)
	}
}

// HandleError is wired as the adapter's error callback, for transport
// errors that don't by themselves end the connection. It discards the
// error; the pool wires it directly, so these errors are not logged.
func (c *Client) HandleError(error) {}

// HandleCrash is wired as a stdio adapter's crash callback. The pool
// layer registers its own crash handler, via errortracker, for promotion
// bookkeeping; this method exists so Client satisfies the same callback
// shape uniformly across transport variants.
func (c *Client) HandleCrash(int, string) {}
