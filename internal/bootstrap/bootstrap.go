// Package bootstrap seeds the upstream/namespace/endpoint stores from a
// YAML file on first run, the way a fresh SQLite database starts out
// empty otherwise and would need every server/namespace/endpoint created
// by hand through an API this repo doesn't expose.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/metamcp/metamcp/internal/domain/endpoint"
	"github.com/metamcp/metamcp/internal/domain/namespace"
	"github.com/metamcp/metamcp/internal/domain/upstream"
)

// File is the on-disk shape of a bootstrap file: flat lists of servers,
// namespaces (by server name, resolved to IDs after the servers are
// created), and endpoints (by namespace name).
type File struct {
	Upstreams []UpstreamSeed  `yaml:"upstreams"`
	Namespaces []NamespaceSeed `yaml:"namespaces"`
	Endpoints []EndpointSeed  `yaml:"endpoints"`
}

// UpstreamSeed mirrors upstream.Server, minus the generated ID/timestamps.
type UpstreamSeed struct {
	Name        string            `yaml:"name"`
	Kind        string            `yaml:"kind"`
	Command     string            `yaml:"command,omitempty"`
	Args        []string          `yaml:"args,omitempty"`
	Env         map[string]string `yaml:"env,omitempty"`
	URL         string            `yaml:"url,omitempty"`
	BearerToken string            `yaml:"bearer_token,omitempty"`
}

// NamespaceSeed references its servers by name; Load resolves those
// names to IDs once every upstream has been created.
type NamespaceSeed struct {
	Name    string   `yaml:"name"`
	Servers []string `yaml:"servers"`
}

// EndpointSeed references its namespace by name.
type EndpointSeed struct {
	Name              string `yaml:"name"`
	Namespace         string `yaml:"namespace"`
	EnableAPIKeyAuth  bool   `yaml:"enable_api_key_auth"`
	EnableOAuth       bool   `yaml:"enable_oauth"`
	UseQueryParamAuth bool   `yaml:"use_query_param_auth"`
}

// idFunc generates an identity for a newly-seeded row; tests substitute a
// deterministic sequence, production uses uuid.New().String().
type idFunc func() string

// Load reads path, parses it as YAML, and adds every upstream, namespace,
// and endpoint it describes to the given stores. It is meant to run once
// against a freshly created, empty store; adding a second time fails with
// the stores' usual ErrDuplicateName once a name collides.
func Load(ctx context.Context, path string, upstreams upstream.Store, namespaces namespace.Store, endpoints endpoint.Store, newID idFunc) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("bootstrap: read %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("bootstrap: parse %s: %w", path, err)
	}

	now := time.Now().UTC()
	serverIDByName := make(map[string]string, len(f.Upstreams))

	for _, s := range f.Upstreams {
		srv := &upstream.Server{
			ID:          newID(),
			Name:        s.Name,
			Kind:        upstream.Kind(s.Kind),
			Command:     s.Command,
			Args:        s.Args,
			Env:         s.Env,
			URL:         s.URL,
			BearerToken: s.BearerToken,
			ErrorStatus: upstream.StatusNone,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := srv.Validate(); err != nil {
			return fmt.Errorf("bootstrap: upstream %q: %w", s.Name, err)
		}
		if err := upstreams.Add(ctx, srv); err != nil {
			return fmt.Errorf("bootstrap: add upstream %q: %w", s.Name, err)
		}
		serverIDByName[s.Name] = srv.ID
	}

	namespaceIDByName := make(map[string]string, len(f.Namespaces))

	for _, n := range f.Namespaces {
		mappings := make([]namespace.ServerMapping, 0, len(n.Servers))
		for _, serverName := range n.Servers {
			id, ok := serverIDByName[serverName]
			if !ok {
				return fmt.Errorf("bootstrap: namespace %q references unknown upstream %q", n.Name, serverName)
			}
			mappings = append(mappings, namespace.ServerMapping{ServerID: id, Status: namespace.StatusActive})
		}
		ns := &namespace.Namespace{
			ID:        newID(),
			Name:      n.Name,
			Servers:   mappings,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := ns.Validate(); err != nil {
			return fmt.Errorf("bootstrap: namespace %q: %w", n.Name, err)
		}
		if err := namespaces.Add(ctx, ns); err != nil {
			return fmt.Errorf("bootstrap: add namespace %q: %w", n.Name, err)
		}
		namespaceIDByName[n.Name] = ns.ID
	}

	for _, e := range f.Endpoints {
		nsID, ok := namespaceIDByName[e.Namespace]
		if !ok {
			return fmt.Errorf("bootstrap: endpoint %q references unknown namespace %q", e.Name, e.Namespace)
		}
		ep := &endpoint.Endpoint{
			ID:                newID(),
			Name:              e.Name,
			NamespaceID:       nsID,
			EnableAPIKeyAuth:  e.EnableAPIKeyAuth,
			EnableOAuth:       e.EnableOAuth,
			UseQueryParamAuth: e.UseQueryParamAuth,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := ep.Validate(); err != nil {
			return fmt.Errorf("bootstrap: endpoint %q: %w", e.Name, err)
		}
		if err := endpoints.Add(ctx, ep); err != nil {
			return fmt.Errorf("bootstrap: add endpoint %q: %w", e.Name, err)
		}
	}

	return nil
}
