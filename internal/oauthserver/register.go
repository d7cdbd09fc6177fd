package oauthserver

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/metamcp/metamcp/internal/domain/oauthstore"
)

type registerRequest struct {
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
}

type registerResponse struct {
	ClientID                string   `json:"client_id"`
	ClientSecret            string   `json:"client_secret,omitempty"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
}

// handleRegister implements RFC 7591 dynamic client registration.
// POST /oauth/register
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondOAuthError(w, http.StatusBadRequest, "invalid_client_metadata", "malformed request body")
		return
	}

	if len(req.RedirectURIs) == 0 {
		s.respondOAuthError(w, http.StatusBadRequest, "invalid_redirect_uri", "redirect_uris is required")
		return
	}
	for _, raw := range req.RedirectURIs {
		if err := validateRedirectURI(raw); err != nil {
			s.respondOAuthError(w, http.StatusBadRequest, "invalid_redirect_uri", err.Error())
			return
		}
	}

	grantTypes := req.GrantTypes
	if len(grantTypes) == 0 {
		grantTypes = []string{string(oauthstore.GrantAuthorizationCode)}
	}
	responseTypes := req.ResponseTypes
	if len(responseTypes) == 0 {
		responseTypes = []string{string(oauthstore.ResponseTypeCode)}
	}
	authMethod := req.TokenEndpointAuthMethod
	if authMethod == "" {
		authMethod = string(oauthstore.AuthMethodNone)
	}

	if !validGrantTypes(grantTypes) {
		s.respondOAuthError(w, http.StatusBadRequest, "invalid_client_metadata", "unsupported grant_types")
		return
	}
	if !validResponseTypes(responseTypes) {
		s.respondOAuthError(w, http.StatusBadRequest, "invalid_client_metadata", "unsupported response_types")
		return
	}
	if !validAuthMethod(authMethod) {
		s.respondOAuthError(w, http.StatusBadRequest, "invalid_client_metadata", "unsupported token_endpoint_auth_method")
		return
	}

	client := &oauthstore.Client{
		ClientID:                "mcp_client_" + uuid.NewString(),
		RedirectURIs:            req.RedirectURIs,
		GrantTypes:              toGrantTypes(grantTypes),
		ResponseTypes:           toResponseTypes(responseTypes),
		TokenEndpointAuthMethod: oauthstore.TokenAuthMethod(authMethod),
	}
	if client.TokenEndpointAuthMethod != oauthstore.AuthMethodNone {
		secret, err := randomToken(32)
		if err != nil {
			s.respondOAuthError(w, http.StatusInternalServerError, "server_error", "failed to generate client secret")
			return
		}
		client.ClientSecret = secret
	}

	if err := s.store.PutClient(r.Context(), client); err != nil {
		s.respondOAuthError(w, http.StatusInternalServerError, "server_error", "failed to store client")
		return
	}

	s.respondJSON(w, http.StatusCreated, registerResponse{
		ClientID:                client.ClientID,
		ClientSecret:            client.ClientSecret,
		RedirectURIs:            client.RedirectURIs,
		GrantTypes:              grantTypes,
		ResponseTypes:           responseTypes,
		TokenEndpointAuthMethod: string(client.TokenEndpointAuthMethod),
	})
}

// validateRedirectURI enforces the scheme and fragment rules §4.7 requires:
// the URI must parse, use http/https/a custom scheme, carry no fragment,
// and only use plain http for a loopback host.
func validateRedirectURI(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errInvalidRedirectURI
	}
	if u.Fragment != "" {
		return errInvalidRedirectURI
	}
	switch {
	case u.Scheme == "https":
		return nil
	case u.Scheme == "http":
		if isLoopbackHost(u.Hostname()) {
			return nil
		}
		return errInvalidRedirectURI
	case u.Scheme != "":
		// Custom scheme (e.g. a native app's own URI scheme) is allowed.
		return nil
	default:
		return errInvalidRedirectURI
	}
}

func isLoopbackHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

var errInvalidRedirectURI = &oauthError{"redirect_uris entry must be a parseable URI with no fragment, using https, a custom scheme, or http restricted to loopback"}

type oauthError struct{ msg string }

func (e *oauthError) Error() string { return e.msg }

func validGrantTypes(grants []string) bool {
	for _, g := range grants {
		switch oauthstore.GrantType(g) {
		case oauthstore.GrantAuthorizationCode, oauthstore.GrantRefreshToken, oauthstore.GrantClientCredentials:
		default:
			return false
		}
	}
	return true
}

func validResponseTypes(types []string) bool {
	for _, t := range types {
		if oauthstore.ResponseType(t) != oauthstore.ResponseTypeCode {
			return false
		}
	}
	return true
}

func validAuthMethod(method string) bool {
	switch oauthstore.TokenAuthMethod(method) {
	case oauthstore.AuthMethodNone, oauthstore.AuthMethodClientSecretPost, oauthstore.AuthMethodClientSecretBasic:
		return true
	default:
		return false
	}
}

func toGrantTypes(in []string) []oauthstore.GrantType {
	out := make([]oauthstore.GrantType, len(in))
	for i, g := range in {
		out[i] = oauthstore.GrantType(g)
	}
	return out
}

func toResponseTypes(in []string) []oauthstore.ResponseType {
	out := make([]oauthstore.ResponseType, len(in))
	for i, t := range in {
		out[i] = oauthstore.ResponseType(t)
	}
	return out
}

func randomToken(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
