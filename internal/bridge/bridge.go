// Package bridge pumps messages between a client-facing and a
// server-facing transport.Adapter when an endpoint serves one upstream
// directly, bypassing the aggregator (inspector mode).
package bridge

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/metamcp/metamcp/internal/transport"
	"github.com/metamcp/metamcp/pkg/mcp/jsonrpc"
)

// notConnectedSentinel marks a delivery failure as ordinary termination
// rather than a transport error worth logging.
const notConnectedSentinel = "Not connected"

// undeliveredCode is the JSON-RPC error code synthesized back to the
// client when a call couldn't be delivered to the server.
const undeliveredCode = -32001

// Bridge wires two transport.Adapters together. Callers must construct
// both adapters with Bridge's HandleClientMessage/HandleClientClose and
// HandleServerMessage/HandleServerClose wired in as their callbacks
// before calling SetClientAdapter/SetServerAdapter, mirroring
// upstreamclient.Client's two-phase construction.
type Bridge struct {
	clientAdapter transport.Adapter
	serverAdapter transport.Adapter
	onCleanup     func()

	mu           sync.Mutex
	clientClosed bool
	serverClosed bool
	cleanupFired bool
}

// New creates a bridge. onCleanup, if non-nil, fires exactly once after
// both sides have closed.
func New(onCleanup func()) *Bridge {
	return &Bridge{onCleanup: onCleanup}
}

// SetClientAdapter attaches the client-facing transport.Adapter.
func (b *Bridge) SetClientAdapter(a transport.Adapter) { b.clientAdapter = a }

// SetServerAdapter attaches the server-facing transport.Adapter.
func (b *Bridge) SetServerAdapter(a transport.Adapter) { b.serverAdapter = a }

// HandleClientMessage forwards one message from the client side to the
// server side. A request (carries an id) that can't be delivered gets a
// synthesized -32001 error response sent back to the client; a
// notification is simply dropped on delivery failure.
func (b *Bridge) HandleClientMessage(msg []byte) {
	if b.serverAdapter == nil {
		return
	}
	if err := b.serverAdapter.Send(context.Background(), msg); err != nil {
		if isNotConnected(err) {
			return
		}
		b.replyUndelivered(msg, err)
	}
}

// HandleServerMessage forwards one message from the server side back to
// the client side.
func (b *Bridge) HandleServerMessage(msg []byte) {
	if b.clientAdapter == nil {
		return
	}
	if err := b.clientAdapter.Send(context.Background(), msg); err != nil && !isNotConnected(err) {
		slog.Warn("bridge: failed to deliver message to client", "error", err)
	}
}

// HandleClientClose is wired as the client-facing adapter's close
// callback: it schedules the server side's close exactly once.
func (b *Bridge) HandleClientClose(error) {
	if b.serverAdapter != nil {
		_ = b.serverAdapter.Close()
	}
	b.markClosed(true, false)
}

// HandleServerClose is wired as the server-facing adapter's close
// callback: it schedules the client side's close exactly once.
func (b *Bridge) HandleServerClose(error) {
	if b.clientAdapter != nil {
		_ = b.clientAdapter.Close()
	}
	b.markClosed(false, true)
}

func (b *Bridge) markClosed(client, server bool) {
	b.mu.Lock()
	if client {
		b.clientClosed = true
	}
	if server {
		b.serverClosed = true
	}
	fire := b.clientClosed && b.serverClosed && !b.cleanupFired
	if fire {
		b.cleanupFired = true
	}
	b.mu.Unlock()

	if fire && b.onCleanup != nil {
		b.onCleanup()
	}
}

func (b *Bridge) replyUndelivered(originalMsg []byte, deliverErr error) {
	decoded, err := jsonrpc.DecodeMessage(originalMsg)
	if err != nil {
		return
	}
	req, ok := decoded.(*jsonrpc.Request)
	if !ok || !req.IsCall() {
		return
	}

	resp := &jsonrpc.Response{
		ID:    req.ID,
		Error: &jsonrpc.Error{Code: undeliveredCode, Message: deliverErr.Error()},
	}
	wire, err := jsonrpc.EncodeMessage(resp)
	if err != nil || b.clientAdapter == nil {
		return
	}
	_ = b.clientAdapter.Send(context.Background(), wire)
}

func isNotConnected(err error) bool {
	return err != nil && strings.Contains(err.Error(), notConnectedSentinel)
}
