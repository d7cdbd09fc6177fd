// Package namespace contains domain types for grouping upstream servers
// under one aggregated MCP server.
package namespace

import (
	"fmt"
	"time"
)

// MappingStatus controls whether a server mapping contributes to aggregation.
type MappingStatus string

const (
	// StatusActive upstreams contribute to aggregation by default.
	StatusActive MappingStatus = "ACTIVE"
	// StatusInactive upstreams are excluded unless the caller opts in.
	StatusInactive MappingStatus = "INACTIVE"
)

// ServerMapping relates one upstream server to a namespace.
type ServerMapping struct {
	ServerID string
	Status   MappingStatus
}

// Namespace groups zero or more upstream servers under one unified name.
type Namespace struct {
	ID   string
	Name string

	Servers []ServerMapping

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate enforces the identity invariants.
func (n *Namespace) Validate() error {
	if n.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// ActiveServerIDs returns the IDs of servers mapped ACTIVE, or of every
// mapped server when includeInactive is true.
func (n *Namespace) ActiveServerIDs(includeInactive bool) []string {
	ids := make([]string, 0, len(n.Servers))
	for _, m := range n.Servers {
		if includeInactive || m.Status == StatusActive {
			ids = append(ids, m.ServerID)
		}
	}
	return ids
}

// UnifiedServerName is the self-reported MCP server name the aggregator
// advertises for this namespace; it doubles as the cycle-avoidance sentinel
// spec.md requires upstream advertised names to be checked against.
func (n *Namespace) UnifiedServerName() string {
	return fmt.Sprintf("metamcp-unified-%s", n.ID)
}
