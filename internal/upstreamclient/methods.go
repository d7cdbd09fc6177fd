package upstreamclient

import (
	"context"
	"encoding/json"

	"github.com/metamcp/metamcp/pkg/mcp/jsonrpc"
)

// ClientInfo identifies MetaMCP itself to the upstream during Initialize.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the upstream's response to the initialize handshake.
type InitializeResult struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    json.RawMessage `json:"capabilities"`
	ServerInfo      ClientInfo      `json:"serverInfo"`
	Instructions    string          `json:"instructions,omitempty"`
}

type initializeParams struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    json.RawMessage `json:"capabilities"`
	ClientInfo      ClientInfo      `json:"clientInfo"`
}

// Initialize performs the MCP initialize handshake and sends the
// corresponding initialized notification. It must be called once after
// Start, before any other request method.
func (c *Client) Initialize(ctx context.Context, clientInfo ClientInfo, opts ...RequestOption) (*InitializeResult, error) {
	raw, err := c.call(ctx, "initialize", initializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    json.RawMessage(`{}`),
		ClientInfo:      clientInfo,
	}, opts)
	if err != nil {
		return nil, err
	}

	var result InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}

	notif := &jsonrpc.Request{Method: "notifications/initialized"}
	wire, err := jsonrpc.EncodeMessage(notif)
	if err != nil {
		return &result, err
	}
	if err := c.adapter.Send(ctx, wire); err != nil {
		return &result, err
	}

	return &result, nil
}

// Tool describes one tool advertised by an upstream server.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ListToolsResult is the upstream's response to tools/list.
type ListToolsResult struct {
	Tools      []Tool `json:"tools"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// ListTools requests the upstream's tool catalog, optionally paginated
// with cursor.
func (c *Client) ListTools(ctx context.Context, cursor string, opts ...RequestOption) (*ListToolsResult, error) {
	raw, err := c.call(ctx, "tools/list", cursorParams(cursor), opts)
	if err != nil {
		return nil, err
	}
	var result ListToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CallToolResult is the upstream's response to tools/call.
type CallToolResult struct {
	Content json.RawMessage `json:"content"`
	IsError bool            `json:"isError,omitempty"`
}

// CallTool invokes one tool by its upstream-local name (not the
// aggregator's prefixed name) with the given arguments.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage, opts ...RequestOption) (*CallToolResult, error) {
	raw, err := c.call(ctx, "tools/call", struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments,omitempty"`
	}{Name: name, Arguments: arguments}, opts)
	if err != nil {
		return nil, err
	}
	var result CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Prompt describes one prompt advertised by an upstream server.
type Prompt struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Arguments   json.RawMessage `json:"arguments,omitempty"`
}

// ListPromptsResult is the upstream's response to prompts/list.
type ListPromptsResult struct {
	Prompts    []Prompt `json:"prompts"`
	NextCursor string   `json:"nextCursor,omitempty"`
}

// ListPrompts requests the upstream's prompt catalog.
func (c *Client) ListPrompts(ctx context.Context, cursor string, opts ...RequestOption) (*ListPromptsResult, error) {
	raw, err := c.call(ctx, "prompts/list", cursorParams(cursor), opts)
	if err != nil {
		return nil, err
	}
	var result ListPromptsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPromptResult is the upstream's response to prompts/get.
type GetPromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    json.RawMessage `json:"messages"`
}

// GetPrompt fetches one prompt's rendered messages by name.
func (c *Client) GetPrompt(ctx context.Context, name string, arguments map[string]string, opts ...RequestOption) (*GetPromptResult, error) {
	raw, err := c.call(ctx, "prompts/get", struct {
		Name      string            `json:"name"`
		Arguments map[string]string `json:"arguments,omitempty"`
	}{Name: name, Arguments: arguments}, opts)
	if err != nil {
		return nil, err
	}
	var result GetPromptResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Resource describes one resource advertised by an upstream server.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ListResourcesResult is the upstream's response to resources/list.
type ListResourcesResult struct {
	Resources  []Resource `json:"resources"`
	NextCursor string     `json:"nextCursor,omitempty"`
}

// ListResources requests the upstream's resource catalog.
func (c *Client) ListResources(ctx context.Context, cursor string, opts ...RequestOption) (*ListResourcesResult, error) {
	raw, err := c.call(ctx, "resources/list", cursorParams(cursor), opts)
	if err != nil {
		return nil, err
	}
	var result ListResourcesResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ReadResourceResult is the upstream's response to resources/read.
type ReadResourceResult struct {
	Contents json.RawMessage `json:"contents"`
}

// ReadResource fetches one resource's contents by URI.
func (c *Client) ReadResource(ctx context.Context, uri string, opts ...RequestOption) (*ReadResourceResult, error) {
	raw, err := c.call(ctx, "resources/read", struct {
		URI string `json:"uri"`
	}{URI: uri}, opts)
	if err != nil {
		return nil, err
	}
	var result ReadResourceResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ResourceTemplate describes one URI-templated resource class an
// upstream advertises.
type ResourceTemplate struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ListResourceTemplatesResult is the upstream's response to
// resources/templates/list.
type ListResourceTemplatesResult struct {
	ResourceTemplates []ResourceTemplate `json:"resourceTemplates"`
	NextCursor        string             `json:"nextCursor,omitempty"`
}

// ListResourceTemplates requests the upstream's resource template catalog.
func (c *Client) ListResourceTemplates(ctx context.Context, cursor string, opts ...RequestOption) (*ListResourceTemplatesResult, error) {
	raw, err := c.call(ctx, "resources/templates/list", cursorParams(cursor), opts)
	if err != nil {
		return nil, err
	}
	var result ListResourceTemplatesResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func cursorParams(cursor string) interface{} {
	if cursor == "" {
		return struct{}{}
	}
	return struct {
		Cursor string `json:"cursor"`
	}{Cursor: cursor}
}
