// Package jsonrpc implements the JSON-RPC 2.0 message framing MCP uses on
// the wire. It is intentionally small: the wire format is fixed by the MCP
// specification, so there is no need to take on a full transport stack here
// — callers own their own transports (internal/transport) and use this
// package only to encode and decode individual frames.
package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ProtocolVersion is the JSON-RPC version string carried on every message.
const ProtocolVersion = "2.0"

// ID is a JSON-RPC request identifier. Per the spec it is a string, a
// number, or absent (null). The zero value is the absent/invalid ID, which
// is what distinguishes a notification from a call.
type ID struct {
	str    string
	num    float64
	isStr  bool
	isNum  bool
}

// MakeID builds an ID from a string or a numeric value. Any other type is
// rejected since the JSON-RPC spec limits IDs to strings and numbers.
func MakeID(v interface{}) (ID, error) {
	switch t := v.(type) {
	case string:
		return ID{str: t, isStr: true}, nil
	case float64:
		return ID{num: t, isNum: true}, nil
	case int:
		return ID{num: float64(t), isNum: true}, nil
	case int64:
		return ID{num: float64(t), isNum: true}, nil
	default:
		return ID{}, fmt.Errorf("jsonrpc: unsupported id type %T", v)
	}
}

// IsValid reports whether the ID was set (distinguishing a call from a
// notification, whose ID is always the zero value).
func (id ID) IsValid() bool {
	return id.isStr || id.isNum
}

// Raw returns the underlying string or float64 value, or nil if unset.
func (id ID) Raw() interface{} {
	switch {
	case id.isStr:
		return id.str
	case id.isNum:
		return id.num
	default:
		return nil
	}
}

func (id ID) String() string {
	switch {
	case id.isStr:
		return id.str
	case id.isNum:
		return fmt.Sprintf("%v", id.num)
	default:
		return ""
	}
}

// MarshalJSON encodes the ID as its underlying JSON value, or null when unset.
func (id ID) MarshalJSON() ([]byte, error) {
	switch {
	case id.isStr:
		return json.Marshal(id.str)
	case id.isNum:
		return json.Marshal(id.num)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a JSON-RPC ID, accepting string, number, or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ID{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ID{str: s, isStr: true}
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*id = ID{num: n, isNum: true}
		return nil
	}
	return errors.New("jsonrpc: id must be a string, number, or null")
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Message is implemented by Request and Response; it exists purely as a
// discriminated-union marker so callers can type-switch on a decoded frame.
type Message interface {
	isMessage()
}

// Request represents a JSON-RPC request or, when ID is the zero value, a
// notification.
type Request struct {
	ID     ID              `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

func (*Request) isMessage() {}

// IsCall reports whether this Request carries a response-expecting ID,
// as opposed to being a fire-and-forget notification.
func (r *Request) IsCall() bool {
	return r.ID.IsValid()
}

type wireRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC response, carrying exactly one of Result
// or Error.
type Response struct {
	ID     ID              `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

func (*Response) isMessage() {}

type wireResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      ID              `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// EncodeMessage serializes a Request or Response to its wire form.
func EncodeMessage(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case *Request:
		wire := wireRequest{JSONRPC: ProtocolVersion, Method: m.Method, Params: m.Params}
		if m.ID.IsValid() {
			id := m.ID
			wire.ID = &id
		}
		return json.Marshal(wire)
	case *Response:
		return json.Marshal(wireResponse{JSONRPC: ProtocolVersion, ID: m.ID, Result: m.Result, Error: m.Error})
	default:
		return nil, fmt.Errorf("jsonrpc: unsupported message type %T", msg)
	}
}

// DecodeMessage parses wire bytes into either a *Request or a *Response,
// distinguishing on the presence of "method" (request/notification) versus
// "result"/"error" (response). A frame whose "jsonrpc" member is missing or
// not "2.0" is rejected.
func DecodeMessage(data []byte) (Message, error) {
	var probe struct {
		Method  *string         `json:"method"`
		ID      json.RawMessage `json:"id"`
		Result  json.RawMessage `json:"result"`
		Error   json.RawMessage `json:"error"`
		JSONRPC string          `json:"jsonrpc"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("jsonrpc: parse error: %w", err)
	}
	if probe.JSONRPC != ProtocolVersion {
		return nil, fmt.Errorf("jsonrpc: unsupported version %q", probe.JSONRPC)
	}

	if probe.Method != nil {
		var wire wireRequest
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("jsonrpc: invalid request: %w", err)
		}
		req := &Request{Method: wire.Method, Params: wire.Params}
		if wire.ID != nil {
			req.ID = *wire.ID
		}
		return req, nil
	}

	if probe.Result != nil || probe.Error != nil || len(probe.ID) > 0 {
		var wire wireResponse
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("jsonrpc: invalid response: %w", err)
		}
		return &Response{ID: wire.ID, Result: wire.Result, Error: wire.Error}, nil
	}

	return nil, errors.New("jsonrpc: message is neither a request nor a response")
}
