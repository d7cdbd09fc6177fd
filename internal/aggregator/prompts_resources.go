package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Prompt is one prompt entry as the unified server advertises it, name
// already prefixed.
type Prompt struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Arguments   json.RawMessage `json:"arguments,omitempty"`
}

// ListPrompts fans out prompts/list the same way ListTools does: same
// self-reference and visited-set defenses, same "<prefix>__<name>"
// naming, per-upstream errors logged and skipped.
func (s *Server) ListPrompts(ctx context.Context) ([]Prompt, error) {
	servers, err := s.namespaceUpstreams(ctx)
	if err != nil {
		return nil, err
	}

	visited := make(map[string]bool)
	var prompts []Prompt

	for _, srv := range servers {
		conn, ok := s.connectExcludingSelf(ctx, srv, visited)
		if !ok {
			continue
		}

		result, err := conn.Client.ListPrompts(ctx, "")
		if err != nil {
			slog.Warn("aggregator: prompts/list failed", "uuid", srv.ID, "error", err)
			continue
		}

		prefix := sanitizeName(srv.Name)
		for _, p := range result.Prompts {
			prefixed := prefix + "__" + p.Name

			s.mu.Lock()
			s.promptToConn[prefixed] = conn
			s.mu.Unlock()

			prompts = append(prompts, Prompt{Name: prefixed, Description: p.Description, Arguments: p.Arguments})
		}
	}

	return prompts, nil
}

// GetPromptResult is the unified server's response to prompts/get.
type GetPromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    json.RawMessage `json:"messages"`
}

// GetPrompt routes a prefixed prompt name to its owning upstream
// connection and forwards the request.
func (s *Server) GetPrompt(ctx context.Context, prefixedName string, arguments map[string]string) (*GetPromptResult, error) {
	idx := strings.Index(prefixedName, "__")
	if idx < 0 {
		return nil, fmt.Errorf("aggregator: %q is not a namespaced prompt name", prefixedName)
	}
	name := prefixedName[idx+2:]

	s.mu.Lock()
	conn, ok := s.promptToConn[prefixedName]
	s.mu.Unlock()

	if !ok {
		if _, err := s.ListPrompts(ctx); err != nil {
			return nil, err
		}
		s.mu.Lock()
		conn, ok = s.promptToConn[prefixedName]
		s.mu.Unlock()
	}
	if !ok {
		return nil, fmt.Errorf("aggregator: unknown prompt %q", prefixedName)
	}

	result, err := conn.Client.GetPrompt(ctx, name, arguments, operationalOptions()...)
	if err != nil {
		return nil, fmt.Errorf("aggregator: get prompt failed: %w", err)
	}
	return &GetPromptResult{Description: result.Description, Messages: result.Messages}, nil
}

// Resource is one resource entry as the unified server advertises it.
// Resources are keyed externally by URI, not by name prefix: URIs are
// globally unique by construction, so no sanitization or prefixing
// applies.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ListResources fans out resources/list, recording URI to upstream
// connection routing for the subsequent ReadResource call.
func (s *Server) ListResources(ctx context.Context) ([]Resource, error) {
	servers, err := s.namespaceUpstreams(ctx)
	if err != nil {
		return nil, err
	}

	visited := make(map[string]bool)
	var resources []Resource

	for _, srv := range servers {
		conn, ok := s.connectExcludingSelf(ctx, srv, visited)
		if !ok {
			continue
		}

		result, err := conn.Client.ListResources(ctx, "")
		if err != nil {
			slog.Warn("aggregator: resources/list failed", "uuid", srv.ID, "error", err)
			continue
		}

		for _, r := range result.Resources {
			s.mu.Lock()
			s.resourceToConn[r.URI] = conn
			s.mu.Unlock()

			resources = append(resources, Resource{URI: r.URI, Name: r.Name, Description: r.Description, MimeType: r.MimeType})
		}
	}

	return resources, nil
}

// ReadResourceResult is the unified server's response to resources/read.
type ReadResourceResult struct {
	Contents json.RawMessage `json:"contents"`
}

// ReadResource routes by URI to the upstream that advertised it.
func (s *Server) ReadResource(ctx context.Context, uri string) (*ReadResourceResult, error) {
	s.mu.Lock()
	conn, ok := s.resourceToConn[uri]
	s.mu.Unlock()

	if !ok {
		if _, err := s.ListResources(ctx); err != nil {
			return nil, err
		}
		s.mu.Lock()
		conn, ok = s.resourceToConn[uri]
		s.mu.Unlock()
	}
	if !ok {
		return nil, fmt.Errorf("aggregator: unknown resource %q", uri)
	}

	result, err := conn.Client.ReadResource(ctx, uri, operationalOptions()...)
	if err != nil {
		return nil, fmt.Errorf("aggregator: read resource failed: %w", err)
	}
	return &ReadResourceResult{Contents: result.Contents}, nil
}

// ResourceTemplate is one URI-templated resource class, fanned out the
// same way as ListResources but never cached for routing since it names
// a class, not an addressable URI.
type ResourceTemplate struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ListResourceTemplates fans out resources/templates/list.
func (s *Server) ListResourceTemplates(ctx context.Context) ([]ResourceTemplate, error) {
	servers, err := s.namespaceUpstreams(ctx)
	if err != nil {
		return nil, err
	}

	visited := make(map[string]bool)
	var templates []ResourceTemplate

	for _, srv := range servers {
		conn, ok := s.connectExcludingSelf(ctx, srv, visited)
		if !ok {
			continue
		}

		result, err := conn.Client.ListResourceTemplates(ctx, "")
		if err != nil {
			slog.Warn("aggregator: resources/templates/list failed", "uuid", srv.ID, "error", err)
			continue
		}

		for _, t := range result.ResourceTemplates {
			templates = append(templates, ResourceTemplate{
				URITemplate: t.URITemplate,
				Name:        t.Name,
				Description: t.Description,
				MimeType:    t.MimeType,
			})
		}
	}

	return templates, nil
}
