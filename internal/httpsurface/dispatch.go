// Package httpsurface exposes one endpoint's bound namespace as public MCP
// transports: SSE (GET /sse + POST /message) and Streamable HTTP
// (POST/GET/DELETE /mcp), plus a session health route. Every request is
// first admitted by the authentication gate, then dispatched through the
// aggregator for the (namespace, session) pair it belongs to.
package httpsurface

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/metamcp/metamcp/internal/aggregator"
	"github.com/metamcp/metamcp/pkg/mcp/jsonrpc"
)

// ProtocolVersion is the MCP protocol version this surface advertises
// during initialize.
const ProtocolVersion = "2025-06-18"

// serverInfo identifies the unified aggregating server to a connecting
// client.
type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeResult struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    json.RawMessage `json:"capabilities"`
	ServerInfo      serverInfo      `json:"serverInfo"`
}

type listToolsResult struct {
	Tools []aggregator.Tool `json:"tools"`
}

type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type listPromptsResult struct {
	Prompts []aggregator.Prompt `json:"prompts"`
}

type getPromptParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

type listResourcesResult struct {
	Resources []aggregator.Resource `json:"resources"`
}

type readResourceParams struct {
	URI string `json:"uri"`
}

type listResourceTemplatesResult struct {
	ResourceTemplates []aggregator.ResourceTemplate `json:"resourceTemplates"`
}

// Dispatch routes one decoded JSON-RPC request to the corresponding
// aggregator method and encodes its result as a response. It returns nil
// for notifications (requests carrying no ID), which never produce a
// reply.
func Dispatch(ctx context.Context, agg *aggregator.Server, req *jsonrpc.Request) *jsonrpc.Response {
	if !req.IsCall() {
		return nil
	}

	switch req.Method {
	case "initialize":
		return resultResponse(req.ID, initializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    json.RawMessage(`{"tools":{},"prompts":{},"resources":{}}`),
			ServerInfo:      serverInfo{Name: agg.Name(), Version: aggregator.Version},
		})

	case "tools/list":
		tools, err := agg.ListTools(ctx)
		if err != nil {
			return errorResponse(req.ID, jsonrpc.CodeInternalError, err.Error())
		}
		return resultResponse(req.ID, listToolsResult{Tools: tools})

	case "tools/call":
		var params callToolParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, jsonrpc.CodeInvalidParams, "invalid tools/call params")
		}
		result, err := agg.CallTool(ctx, params.Name, params.Arguments)
		if err != nil {
			return errorResponse(req.ID, jsonrpc.CodeInternalError, err.Error())
		}
		return resultResponse(req.ID, result)

	case "prompts/list":
		prompts, err := agg.ListPrompts(ctx)
		if err != nil {
			return errorResponse(req.ID, jsonrpc.CodeInternalError, err.Error())
		}
		return resultResponse(req.ID, listPromptsResult{Prompts: prompts})

	case "prompts/get":
		var params getPromptParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, jsonrpc.CodeInvalidParams, "invalid prompts/get params")
		}
		result, err := agg.GetPrompt(ctx, params.Name, params.Arguments)
		if err != nil {
			return errorResponse(req.ID, jsonrpc.CodeInternalError, err.Error())
		}
		return resultResponse(req.ID, result)

	case "resources/list":
		resources, err := agg.ListResources(ctx)
		if err != nil {
			return errorResponse(req.ID, jsonrpc.CodeInternalError, err.Error())
		}
		return resultResponse(req.ID, listResourcesResult{Resources: resources})

	case "resources/read":
		var params readResourceParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, jsonrpc.CodeInvalidParams, "invalid resources/read params")
		}
		result, err := agg.ReadResource(ctx, params.URI)
		if err != nil {
			return errorResponse(req.ID, jsonrpc.CodeInternalError, err.Error())
		}
		return resultResponse(req.ID, result)

	case "resources/templates/list":
		templates, err := agg.ListResourceTemplates(ctx)
		if err != nil {
			return errorResponse(req.ID, jsonrpc.CodeInternalError, err.Error())
		}
		return resultResponse(req.ID, listResourceTemplatesResult{ResourceTemplates: templates})

	default:
		return errorResponse(req.ID, jsonrpc.CodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func resultResponse(id jsonrpc.ID, result interface{}) *jsonrpc.Response {
	raw, err := json.Marshal(result)
	if err != nil {
		return errorResponse(id, jsonrpc.CodeInternalError, "failed to encode result")
	}
	return &jsonrpc.Response{ID: id, Result: raw}
}

func errorResponse(id jsonrpc.ID, code int, message string) *jsonrpc.Response {
	return &jsonrpc.Response{ID: id, Error: &jsonrpc.Error{Code: code, Message: message}}
}
