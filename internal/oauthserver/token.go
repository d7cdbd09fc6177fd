package oauthserver

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/metamcp/metamcp/internal/domain/oauthstore"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope"`
}

// handleToken implements POST /oauth/token, supporting only
// grant_type=authorization_code.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	body := make(map[string]string)
	if err := readBody(r, body); err != nil {
		s.respondOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	if body["grant_type"] != string(oauthstore.GrantAuthorizationCode) {
		s.respondOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "only authorization_code is supported")
		return
	}

	code, err := s.store.GetCode(r.Context(), body["code"])
	if err != nil || code.IsExpired() {
		s.respondOAuthError(w, http.StatusBadRequest, "invalid_grant", "code is unknown or expired")
		return
	}

	client, err := s.store.GetClient(r.Context(), code.ClientID)
	if err != nil {
		s.respondOAuthError(w, http.StatusBadRequest, "invalid_client", "unknown client")
		return
	}
	if body["client_id"] != "" && body["client_id"] != client.ClientID {
		s.respondOAuthError(w, http.StatusBadRequest, "invalid_grant", "client_id does not match the authorization code")
		return
	}
	if !s.authenticateClient(r, client, body) {
		s.respondOAuthError(w, http.StatusUnauthorized, "invalid_client", "client authentication failed")
		return
	}
	if body["redirect_uri"] != "" && body["redirect_uri"] != code.RedirectURI {
		s.respondOAuthError(w, http.StatusBadRequest, "invalid_grant", "redirect_uri does not match the authorization code")
		return
	}

	if code.CodeChallenge != "" {
		verifier := body["code_verifier"]
		if verifier == "" || !verifyPKCE(code.CodeChallengeMethod, code.CodeChallenge, verifier) {
			s.respondOAuthError(w, http.StatusBadRequest, "invalid_grant", "code_verifier failed PKCE verification")
			return
		}
	}

	// Single-use: the code is consumed whether or not token storage below
	// succeeds, since a partially-issued token must not be replayable.
	_ = s.store.DeleteCode(r.Context(), code.Code)

	now := time.Now().UTC()
	expiresAt := now.Add(s.tokenTTL)
	token, err := s.mintAccessToken(client.ClientID, code.Scope, code.UserID, now, expiresAt)
	if err != nil {
		s.respondOAuthError(w, http.StatusInternalServerError, "server_error", "failed to mint access token")
		return
	}
	at := &oauthstore.AccessToken{
		Token:     token,
		ClientID:  client.ClientID,
		Scope:     code.Scope,
		UserID:    code.UserID,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}
	if err := s.store.PutToken(r.Context(), at); err != nil {
		s.respondOAuthError(w, http.StatusInternalServerError, "server_error", "failed to store access token")
		return
	}

	s.respondJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.tokenTTL.Seconds()),
		Scope:       code.Scope,
	})
}

// authenticateClient enforces the client's registered
// token_endpoint_auth_method against the incoming request.
func (s *Server) authenticateClient(r *http.Request, client *oauthstore.Client, body map[string]string) bool {
	switch client.TokenEndpointAuthMethod {
	case oauthstore.AuthMethodClientSecretBasic:
		user, pass, ok := r.BasicAuth()
		return ok && user == client.ClientID && constantTimeEq(pass, client.ClientSecret)
	case oauthstore.AuthMethodClientSecretPost:
		return constantTimeEq(body["client_secret"], client.ClientSecret)
	default: // AuthMethodNone
		_, _, hasBasic := r.BasicAuth()
		return !hasBasic && body["client_secret"] == ""
	}
}

func constantTimeEq(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// mintAccessToken returns the bearer string stored alongside the
// oauthstore.AccessToken record. With no signing key configured it is an
// opaque random string; with one configured it is an HS256 JWT carrying
// the same clientID/scope/userID/expiry as claims, still prefixed so
// handleIntrospect and handleUserinfo's cheap prefix check keeps working.
func (s *Server) mintAccessToken(clientID, scope, userID string, issuedAt, expiresAt time.Time) (string, error) {
	if s.signingKey == nil {
		return fmt.Sprintf("%s%d_%s", oauthstore.AccessTokenPrefix, time.Now().UTC().UnixNano(), uuid.NewString()), nil
	}

	claims := jwt.MapClaims{
		"iss":       "metamcp",
		"sub":       userID,
		"client_id": clientID,
		"scope":     scope,
		"iat":       issuedAt.Unix(),
		"exp":       expiresAt.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return oauthstore.AccessTokenPrefix + signed, nil
}

type introspectResponse struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
	Sub       string `json:"sub,omitempty"`
}

// handleIntrospect implements POST /oauth/introspect.
func (s *Server) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	body := make(map[string]string)
	if err := readBody(r, body); err != nil {
		s.respondJSON(w, http.StatusOK, introspectResponse{Active: false})
		return
	}

	token := body["token"]
	if token == "" || !strings.HasPrefix(token, oauthstore.AccessTokenPrefix) {
		s.respondJSON(w, http.StatusOK, introspectResponse{Active: false})
		return
	}

	at, err := s.store.GetToken(r.Context(), token)
	if err != nil {
		s.respondJSON(w, http.StatusOK, introspectResponse{Active: false})
		return
	}
	if at.IsExpired() {
		_ = s.store.DeleteToken(r.Context(), token)
		s.respondJSON(w, http.StatusOK, introspectResponse{Active: false})
		return
	}

	s.respondJSON(w, http.StatusOK, introspectResponse{
		Active:    true,
		Scope:     at.Scope,
		ClientID:  at.ClientID,
		TokenType: "Bearer",
		Exp:       at.ExpiresAt.Unix(),
		Iat:       at.IssuedAt.Unix(),
		Sub:       at.UserID,
	})
}

// handleRevoke implements POST /oauth/revoke. Per RFC 7009, it always
// returns 200 regardless of whether the token existed.
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	body := make(map[string]string)
	_ = readBody(r, body)
	if token := body["token"]; token != "" {
		_ = s.store.DeleteToken(r.Context(), token)
	}
	w.WriteHeader(http.StatusOK)
}

type userinfoResponse struct {
	Sub string `json:"sub"`
}

// handleUserinfo implements GET /oauth/userinfo.
func (s *Server) handleUserinfo(w http.ResponseWriter, r *http.Request) {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		s.respondOAuthError(w, http.StatusUnauthorized, "invalid_token", "missing bearer token")
		return
	}
	token := strings.TrimPrefix(authz, "Bearer ")
	if !strings.HasPrefix(token, oauthstore.AccessTokenPrefix) {
		s.respondOAuthError(w, http.StatusUnauthorized, "invalid_token", "not an OAuth access token")
		return
	}

	at, err := s.store.GetToken(r.Context(), token)
	if err != nil || at.IsExpired() {
		s.respondOAuthError(w, http.StatusUnauthorized, "invalid_token", "token is unknown or expired")
		return
	}

	s.respondJSON(w, http.StatusOK, userinfoResponse{Sub: at.UserID})
}
