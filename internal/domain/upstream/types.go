// Package upstream contains domain types for MCP upstream server configuration.
package upstream

import (
	"fmt"
	"time"
)

// Kind identifies the transport family used to reach an upstream server.
type Kind string

const (
	// KindStdio spawns a local child process speaking JSON-RPC over stdio.
	KindStdio Kind = "STDIO"
	// KindSSE opens a long-lived Server-Sent-Events HTTP stream.
	KindSSE Kind = "SSE"
	// KindStreamableHTTP opens a bidirectional Streamable HTTP channel.
	KindStreamableHTTP Kind = "STREAMABLE_HTTP"
)

// ErrorStatus is the server's health as tracked by the error tracker.
// ERROR is terminal until an operator calls reset.
type ErrorStatus string

const (
	// StatusNone indicates the server has no outstanding crash/error record.
	StatusNone ErrorStatus = "NONE"
	// StatusError indicates the server's crash count reached its threshold.
	StatusError ErrorStatus = "ERROR"
)

// Server is a configured upstream MCP server.
type Server struct {
	// ID is the opaque UUID identity.
	ID string
	// Name is the display name; used (after sanitization) as the external
	// tool/prompt name prefix.
	Name string
	// Kind selects the transport family.
	Kind Kind

	// Command and Args are set for KindStdio.
	Command string
	Args    []string
	// Env maps variable name to value for KindStdio; values may contain
	// "${NAME}" placeholders resolved against the host environment.
	Env map[string]string

	// URL and BearerToken are set for KindSSE/KindStreamableHTTP.
	URL         string
	BearerToken string

	// ErrorStatus is terminal ERROR until reset by an operator.
	ErrorStatus ErrorStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate enforces the per-kind non-empty-identity invariant from the
// data model: a STDIO server always has a non-empty command; a remote
// server always has a URL.
func (s *Server) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch s.Kind {
	case KindStdio:
		if s.Command == "" {
			return fmt.Errorf("command is required for a %s upstream", KindStdio)
		}
	case KindSSE, KindStreamableHTTP:
		if s.URL == "" {
			return fmt.Errorf("url is required for a %s upstream", s.Kind)
		}
	default:
		return fmt.Errorf("kind must be one of %q, %q, %q", KindStdio, KindSSE, KindStreamableHTTP)
	}
	return nil
}

// IsError reports whether the server is currently in the terminal ERROR state.
func (s *Server) IsError() bool {
	return s.ErrorStatus == StatusError
}
