// Package transport implements the three upstream MCP transport variants
// (stdio, SSE, Streamable HTTP) behind one callback-based contract.
package transport

import "context"

// MessageHandler receives one decoded wire message, in arrival order.
type MessageHandler func(message []byte)

// CloseHandler is called exactly once when an adapter's connection ends.
// err may be non-nil even after Close: the stdio adapter reports the killed
// child's exit error and the SSE adapter the cancelled stream read; the
// Streamable HTTP adapter always passes nil.
type CloseHandler func(err error)

// ErrorHandler is called for transport-level errors that don't by
// themselves terminate the connection.
type ErrorHandler func(err error)

// CrashHandler is called exactly once, before the matching CloseHandler
// call, when a stdio child process exits before Close was called.
type CrashHandler func(exitCode int, signal string)

// Adapter is the uniform contract all transport variants implement:
// start, send, close, with message/close/error delivered via callbacks
// registered at construction time.
type Adapter interface {
	// Start brings the connection up. It returns once the adapter is
	// ready to Send, or with an error if startup failed.
	Start(ctx context.Context) error

	// Send delivers one outgoing wire message. Delivery is in order per
	// direction; Send may block until the message is accepted by the
	// transport.
	Send(ctx context.Context, message []byte) error

	// Close tears the connection down. Idempotent.
	Close() error
}
