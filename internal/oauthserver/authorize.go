package oauthserver

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/metamcp/metamcp/internal/domain/oauthstore"
)

// handleAuthorize implements GET /oauth/authorize.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Get("response_type") != string(oauthstore.ResponseTypeCode) {
		s.respondOAuthError(w, http.StatusBadRequest, "unsupported_response_type", "response_type must be \"code\"")
		return
	}

	clientID := q.Get("client_id")
	client, err := s.store.GetClient(r.Context(), clientID)
	if err != nil {
		s.respondOAuthError(w, http.StatusBadRequest, "invalid_client", "unknown client_id")
		return
	}

	redirectURI := q.Get("redirect_uri")
	if !client.HasRedirectURI(redirectURI) {
		s.respondOAuthError(w, http.StatusBadRequest, "invalid_request", "redirect_uri is not registered for this client")
		return
	}

	challenge := q.Get("code_challenge")
	method := oauthstore.CodeChallengeMethod(q.Get("code_challenge_method"))
	if challenge == "" || (method != oauthstore.CodeChallengeS256 && method != oauthstore.CodeChallengePlain) {
		s.respondOAuthError(w, http.StatusBadRequest, "invalid_request", "PKCE code_challenge and code_challenge_method (S256 or plain) are required")
		return
	}

	userID, authenticated := s.adminSessionUser(r)
	if authenticated {
		s.issueCodeAndRedirect(w, r, client.ClientID, redirectURI, q.Get("scope"), q.Get("state"), challenge, method, userID)
		return
	}

	// No session: bounce through the login UI, carrying the OAuth params.
	encoded := base64.URLEncoding.EncodeToString([]byte(q.Encode()))
	loginURL := fmt.Sprintf("%s?callbackUrl=%s", s.LoginURL, url.QueryEscape(encoded))
	http.Redirect(w, r, loginURL, http.StatusFound)
}

// handleCallback implements GET /oauth/callback, reached after the login UI
// completes authentication.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	encoded := r.URL.Query().Get("callbackUrl")
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		s.respondOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed callbackUrl")
		return
	}
	params, err := url.ParseQuery(string(raw))
	if err != nil {
		s.respondOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed callbackUrl")
		return
	}

	userID, authenticated := s.adminSessionUser(r)
	if !authenticated {
		s.respondOAuthError(w, http.StatusUnauthorized, "login_required", "session is no longer valid")
		return
	}

	clientID := params.Get("client_id")
	client, err := s.store.GetClient(r.Context(), clientID)
	if err != nil {
		s.respondOAuthError(w, http.StatusBadRequest, "invalid_client", "unknown client_id")
		return
	}
	redirectURI := params.Get("redirect_uri")
	if !client.HasRedirectURI(redirectURI) {
		s.respondOAuthError(w, http.StatusBadRequest, "invalid_request", "redirect_uri is not registered for this client")
		return
	}

	method := oauthstore.CodeChallengeMethod(params.Get("code_challenge_method"))
	s.issueCodeAndRedirect(w, r, clientID, redirectURI, params.Get("scope"), params.Get("state"),
		params.Get("code_challenge"), method, userID)
}

// adminSessionUser checks the admin session cookie and returns the
// authenticated user ID, if any.
func (s *Server) adminSessionUser(r *http.Request) (userID string, ok bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return "", false
	}
	sess, err := s.sessions.Get(r.Context(), cookie.Value)
	if err != nil {
		return "", false
	}
	return sess.UserID, true
}

// issueCodeAndRedirect mints an authorization code and either 302s back to
// redirectURI, or — when redirectURI is this server's own callback path,
// guarding against an infinite redirect loop — renders an HTML success page.
func (s *Server) issueCodeAndRedirect(w http.ResponseWriter, r *http.Request, clientID, redirectURI, scope, state, challenge string, method oauthstore.CodeChallengeMethod, userID string) {
	scopeValue := scope
	if scopeValue == "" {
		scopeValue = "admin"
	}

	code := "mcp_code_" + uuid.NewString()
	ac := &oauthstore.AuthorizationCode{
		Code:                code,
		ClientID:            clientID,
		RedirectURI:         redirectURI,
		Scope:               scopeValue,
		UserID:              userID,
		CodeChallenge:       challenge,
		CodeChallengeMethod: method,
		ExpiresAt:           time.Now().UTC().Add(s.codeTTL),
	}
	if err := s.store.PutCode(r.Context(), ac); err != nil {
		s.respondOAuthError(w, http.StatusInternalServerError, "server_error", "failed to store authorization code")
		return
	}

	if redirectURI == s.baseURL(r)+CallbackPath {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `<html><body><h1>Authorization complete</h1><p>You may close this window.</p></body></html>`)
		return
	}

	dest, err := url.Parse(redirectURI)
	if err != nil {
		s.respondOAuthError(w, http.StatusBadRequest, "invalid_request", "redirect_uri failed to parse")
		return
	}
	q := dest.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	dest.RawQuery = q.Encode()
	http.Redirect(w, r, dest.String(), http.StatusFound)
}
