// Package mcp provides MCP message types and JSON-RPC codec utilities
// shared by the transport adapters, upstream client, and aggregating proxy.
package mcp

import (
	"encoding/json"
	"time"

	"github.com/metamcp/metamcp/pkg/mcp/jsonrpc"
)

// Direction indicates the flow direction of a message through the proxy.
type Direction int

const (
	// ClientToServer indicates a message flowing from client to MCP server.
	ClientToServer Direction = iota
	// ServerToClient indicates a message flowing from MCP server to client.
	ServerToClient
)

// String returns the string representation of the Direction.
func (d Direction) String() string {
	switch d {
	case ClientToServer:
		return "client->server"
	case ServerToClient:
		return "server->client"
	default:
		return "unknown"
	}
}

// Message wraps a decoded JSON-RPC message with transport metadata.
// It stores both the raw bytes (for efficient passthrough) and the decoded
// message (for routing inspection by the aggregator).
type Message struct {
	// Raw contains the original bytes of the message.
	// Used for passthrough when no modification is needed.
	Raw []byte

	// Direction indicates whether this message is flowing from
	// client to server or server to client.
	Direction Direction

	// Decoded contains the parsed JSON-RPC message.
	// May be nil if parsing failed but passthrough is still desired.
	// The concrete type is either *jsonrpc.Request or *jsonrpc.Response.
	Decoded jsonrpc.Message

	// Timestamp records when the message was received.
	Timestamp time.Time
}

// IsRequest returns true if the message is a JSON-RPC request.
func (m *Message) IsRequest() bool {
	if m.Decoded == nil {
		return false
	}
	_, ok := m.Decoded.(*jsonrpc.Request)
	return ok
}

// IsResponse returns true if the message is a JSON-RPC response.
func (m *Message) IsResponse() bool {
	if m.Decoded == nil {
		return false
	}
	_, ok := m.Decoded.(*jsonrpc.Response)
	return ok
}

// Method returns the method name if this is a request, empty string otherwise.
func (m *Message) Method() string {
	if m.Decoded == nil {
		return ""
	}
	req, ok := m.Decoded.(*jsonrpc.Request)
	if !ok {
		return ""
	}
	return req.Method
}

// IsToolCall returns true if this is a tools/call request.
func (m *Message) IsToolCall() bool {
	return m.Method() == "tools/call"
}

// IsProgressNotification returns true if this is a progress notification,
// which the upstream client's timeout logic uses to reset per-request timers.
func (m *Message) IsProgressNotification() bool {
	return m.Method() == "notifications/progress"
}

// Request returns the underlying Request if this is a request message.
// Returns nil if this is not a request.
func (m *Message) Request() *jsonrpc.Request {
	if m.Decoded == nil {
		return nil
	}
	req, _ := m.Decoded.(*jsonrpc.Request)
	return req
}

// Response returns the underlying Response if this is a response message.
// Returns nil if this is not a response.
func (m *Message) Response() *jsonrpc.Response {
	if m.Decoded == nil {
		return nil
	}
	resp, _ := m.Decoded.(*jsonrpc.Response)
	return resp
}

// ParseParams parses the request params into the given target.
// Returns nil if this is not a request or params are absent.
func (m *Message) ParseParams(target interface{}) error {
	req := m.Request()
	if req == nil || req.Params == nil {
		return nil
	}
	return json.Unmarshal(req.Params, target)
}

// ProgressToken extracts params._meta.progressToken from a request, if present.
// Used to correlate progress notifications back to the request whose timeout
// they should reset.
func (m *Message) ProgressToken() (interface{}, bool) {
	req := m.Request()
	if req == nil || req.Params == nil {
		return nil, false
	}
	var withMeta struct {
		Meta struct {
			ProgressToken interface{} `json:"progressToken"`
		} `json:"_meta"`
	}
	if err := json.Unmarshal(req.Params, &withMeta); err != nil {
		return nil, false
	}
	if withMeta.Meta.ProgressToken == nil {
		return nil, false
	}
	return withMeta.Meta.ProgressToken, true
}

// RawID extracts the request ID from the raw message bytes as json.RawMessage.
// Returns nil if no ID is found.
func (m *Message) RawID() json.RawMessage {
	if m.Raw == nil {
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(m.Raw, &raw); err != nil {
		return nil
	}

	return raw["id"]
}
