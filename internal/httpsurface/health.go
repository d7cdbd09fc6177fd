package httpsurface

import (
	"encoding/json"
	"net/http"
)

type sessionCounts struct {
	SSE        int `json:"sse"`
	Streamable int `json:"streamable"`
}

// handleHealthSessions reports how many live sessions each transport
// currently holds for the endpoint.
func (s *Server) handleHealthSessions(w http.ResponseWriter, r *http.Request) {
	ep, ok := s.resolveEndpoint(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(sessionCounts{
		SSE:        s.sse.countForEndpoint(ep.ID),
		Streamable: s.http.countForEndpoint(ep.ID),
	})
}

type upstreamHealth struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type namespaceHealth struct {
	Namespace string           `json:"namespace"`
	Upstreams []upstreamHealth `json:"upstreams"`
}

// handleHealth reports the ErrorStatus of every upstream server mapped
// into the endpoint's bound namespace, so an operator can see which
// upstreams the error tracker has currently sidelined without reaching
// for reset-upstream blind.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ep, ok := s.resolveEndpoint(w, r)
	if !ok {
		return
	}

	ns, err := s.deps.Namespaces.Get(r.Context(), ep.NamespaceID)
	if err != nil {
		http.Error(w, "namespace not found", http.StatusInternalServerError)
		return
	}

	upstreams := make([]upstreamHealth, 0, len(ns.Servers))
	for _, mapping := range ns.Servers {
		srv, err := s.deps.Upstreams.Get(r.Context(), mapping.ServerID)
		if err != nil {
			continue
		}
		upstreams = append(upstreams, upstreamHealth{ID: srv.ID, Name: srv.Name, Status: string(srv.ErrorStatus)})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(namespaceHealth{Namespace: ns.Name, Upstreams: upstreams})
}
