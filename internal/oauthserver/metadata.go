package oauthserver

import "net/http"

// protectedResourceMetadata is the RFC 9728 document served at
// /.well-known/oauth-protected-resource.
type protectedResourceMetadata struct {
	Resource                string   `json:"resource"`
	AuthorizationServers    []string `json:"authorization_servers"`
	ScopesSupported         []string `json:"scopes_supported"`
	IntrospectionEndpoint   string   `json:"introspection_endpoint"`
	RevocationEndpoint      string   `json:"revocation_endpoint"`
}

// handleProtectedResourceMetadata serves GET /.well-known/oauth-protected-resource.
func (s *Server) handleProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	wellKnownCacheControl(w)
	base := s.baseURL(r)
	s.respondJSON(w, http.StatusOK, protectedResourceMetadata{
		Resource:              base,
		AuthorizationServers:  []string{base},
		ScopesSupported:       []string{"admin"},
		IntrospectionEndpoint: base + "/oauth/introspect",
		RevocationEndpoint:    base + "/oauth/revoke",
	})
}

// authServerMetadata is the RFC 8414 document served at
// /.well-known/oauth-authorization-server.
type authServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
}

// handleAuthServerMetadata serves GET /.well-known/oauth-authorization-server.
func (s *Server) handleAuthServerMetadata(w http.ResponseWriter, r *http.Request) {
	wellKnownCacheControl(w)
	base := s.baseURL(r)
	s.respondJSON(w, http.StatusOK, authServerMetadata{
		Issuer:                            base,
		AuthorizationEndpoint:             base + "/oauth/authorize",
		TokenEndpoint:                     base + "/oauth/token",
		RegistrationEndpoint:              base + "/oauth/register",
		IntrospectionEndpoint:             base + "/oauth/introspect",
		RevocationEndpoint:                base + "/oauth/revoke",
		UserinfoEndpoint:                  base + "/oauth/userinfo",
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code", "refresh_token"},
		CodeChallengeMethodsSupported:     []string{"S256"},
		TokenEndpointAuthMethodsSupported: []string{"none", "client_secret_post", "client_secret_basic"},
	})
}
