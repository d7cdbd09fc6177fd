package oauthserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/metamcp/metamcp/internal/adapter/outbound/memory"
	"github.com/metamcp/metamcp/internal/domain/oauthstore"
	"github.com/metamcp/metamcp/internal/domain/session"
)

func testBaseURL(r *http.Request) string { return "http://localhost:8080" }

func newTestServer(t *testing.T) (*Server, *session.SessionService) {
	t.Helper()
	store := memory.NewOAuthStore()
	sessions := session.NewSessionService(memory.NewSessionStore(), session.Config{})
	s := New(store, sessions, testBaseURL, WithLoginURL("/login"))
	return s, sessions
}

func registerTestClient(t *testing.T, mux *http.ServeMux, redirectURI string) registerResponse {
	t.Helper()
	body, _ := json.Marshal(registerRequest{RedirectURIs: []string{redirectURI}})
	req := httptest.NewRequest(http.MethodPost, "/oauth/register", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: got status %d, body %s", rec.Code, rec.Body.String())
	}
	var resp registerResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("register: failed to decode response: %v", err)
	}
	return resp
}

func TestHandleRegister_RejectsMissingRedirectURIs(t *testing.T) {
	s, _ := newTestServer(t)
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	body, _ := json.Marshal(registerRequest{})
	req := httptest.NewRequest(http.MethodPost, "/oauth/register", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", rec.Code)
	}
}

func TestValidateRedirectURI(t *testing.T) {
	cases := []struct {
		uri     string
		wantErr bool
	}{
		{"https://client.example.com/cb", false},
		{"http://localhost:3000/cb", false},
		{"http://127.0.0.1:3000/cb", false},
		{"http://example.com/cb", true},
		{"myapp://cb", false},
		{"https://client.example.com/cb#frag", true},
		{"not a url", true},
	}
	for _, c := range cases {
		err := validateRedirectURI(c.uri)
		if (err != nil) != c.wantErr {
			t.Errorf("validateRedirectURI(%q) error = %v, wantErr %v", c.uri, err, c.wantErr)
		}
	}
}

// authorizeFlow drives /oauth/authorize for an authenticated admin
// session, returning the minted authorization code from the redirect.
func authorizeFlow(t *testing.T, s *Server, sessions *session.SessionService, mux *http.ServeMux, clientID, redirectURI string) string {
	t.Helper()

	sess, err := sessions.Create(t.Context(), "admin-user")
	if err != nil {
		t.Fatalf("failed to create admin session: %v", err)
	}

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", clientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("code_challenge", "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM")
	q.Set("code_challenge_method", "S256")
	q.Set("state", "xyz")

	req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+q.Encode(), nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sess.ID})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("authorize: got status %d, body %s", rec.Code, rec.Body.String())
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("authorize: bad Location header: %v", err)
	}
	code := loc.Query().Get("code")
	if code == "" {
		t.Fatalf("authorize: no code in redirect Location %q", loc.String())
	}
	return code
}

func TestAuthorizeFlow_IssuesCodeWhenSessionAuthenticated(t *testing.T) {
	s, sessions := newTestServer(t)
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	client := registerTestClient(t, mux, "https://client.example.com/cb")
	code := authorizeFlow(t, s, sessions, mux, client.ClientID, "https://client.example.com/cb")
	if !strings.HasPrefix(code, "mcp_code_") {
		t.Errorf("code = %q, want mcp_code_ prefix", code)
	}
}

func TestAuthorize_RedirectsToLoginWhenUnauthenticated(t *testing.T) {
	s, _ := newTestServer(t)
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	client := registerTestClient(t, mux, "https://client.example.com/cb")

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", client.ClientID)
	q.Set("redirect_uri", "https://client.example.com/cb")
	q.Set("code_challenge", "abc")
	q.Set("code_challenge_method", "plain")

	req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+q.Encode(), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("got status %d, want 302", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.HasPrefix(loc, "/login?callbackUrl=") {
		t.Errorf("Location = %q, want /login?callbackUrl= prefix", loc)
	}
}

func TestAuthorize_RequiresPKCE(t *testing.T) {
	s, sessions := newTestServer(t)
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	client := registerTestClient(t, mux, "https://client.example.com/cb")
	sess, _ := sessions.Create(t.Context(), "admin-user")

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", client.ClientID)
	q.Set("redirect_uri", "https://client.example.com/cb")

	req := httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+q.Encode(), nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sess.ID})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400 (missing PKCE params)", rec.Code)
	}
}

func TestTokenExchange_SucceedsWithValidPKCEVerifier(t *testing.T) {
	s, sessions := newTestServer(t)
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	client := registerTestClient(t, mux, "https://client.example.com/cb")
	code := authorizeFlow(t, s, sessions, mux, client.ClientID, "https://client.example.com/cb")

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", "https://client.example.com/cb")
	form.Set("client_id", client.ClientID)
	form.Set("code_verifier", "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk")

	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("token: got status %d, body %s", rec.Code, rec.Body.String())
	}
	var resp tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode token response: %v", err)
	}
	if !strings.HasPrefix(resp.AccessToken, "mcp_token_") {
		t.Errorf("access_token = %q, want mcp_token_ prefix", resp.AccessToken)
	}
	if resp.TokenType != "Bearer" {
		t.Errorf("token_type = %q, want Bearer", resp.TokenType)
	}
}

func TestTokenExchange_FailsWithWrongVerifier(t *testing.T) {
	s, sessions := newTestServer(t)
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	client := registerTestClient(t, mux, "https://client.example.com/cb")
	code := authorizeFlow(t, s, sessions, mux, client.ClientID, "https://client.example.com/cb")

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", "https://client.example.com/cb")
	form.Set("client_id", client.ClientID)
	form.Set("code_verifier", "wrong-verifier")

	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", rec.Code)
	}
}

func TestTokenExchange_CodeIsSingleUse(t *testing.T) {
	s, sessions := newTestServer(t)
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	client := registerTestClient(t, mux, "https://client.example.com/cb")
	code := authorizeFlow(t, s, sessions, mux, client.ClientID, "https://client.example.com/cb")

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", "https://client.example.com/cb")
	form.Set("client_id", client.ClientID)
	form.Set("code_verifier", "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk")

	req1 := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	req1.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec1 := httptest.NewRecorder()
	mux.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("first redemption: got status %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	req2.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec2 := httptest.NewRecorder()
	mux.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusBadRequest {
		t.Fatalf("second redemption: got status %d, want 400 (code already consumed)", rec2.Code)
	}
}

func TestIntrospect_ActiveAndUnknownTokens(t *testing.T) {
	s, sessions := newTestServer(t)
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	client := registerTestClient(t, mux, "https://client.example.com/cb")
	code := authorizeFlow(t, s, sessions, mux, client.ClientID, "https://client.example.com/cb")

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", "https://client.example.com/cb")
	form.Set("client_id", client.ClientID)
	form.Set("code_verifier", "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk")
	tokReq := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	tokReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	tokRec := httptest.NewRecorder()
	mux.ServeHTTP(tokRec, tokReq)
	var tok tokenResponse
	if err := json.Unmarshal(tokRec.Body.Bytes(), &tok); err != nil {
		t.Fatalf("failed to decode token response: %v", err)
	}

	introspectForm := url.Values{"token": {tok.AccessToken}}
	introspectReq := httptest.NewRequest(http.MethodPost, "/oauth/introspect", strings.NewReader(introspectForm.Encode()))
	introspectReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	introspectRec := httptest.NewRecorder()
	mux.ServeHTTP(introspectRec, introspectReq)
	var active introspectResponse
	if err := json.Unmarshal(introspectRec.Body.Bytes(), &active); err != nil {
		t.Fatalf("failed to decode introspect response: %v", err)
	}
	if !active.Active {
		t.Errorf("expected active token to introspect as active")
	}
	if active.Sub != "admin-user" {
		t.Errorf("sub = %q, want admin-user", active.Sub)
	}

	unknownForm := url.Values{"token": {"mcp_token_does_not_exist"}}
	unknownReq := httptest.NewRequest(http.MethodPost, "/oauth/introspect", strings.NewReader(unknownForm.Encode()))
	unknownReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	unknownRec := httptest.NewRecorder()
	mux.ServeHTTP(unknownRec, unknownReq)
	var inactive introspectResponse
	if err := json.Unmarshal(unknownRec.Body.Bytes(), &inactive); err != nil {
		t.Fatalf("failed to decode introspect response: %v", err)
	}
	if inactive.Active {
		t.Errorf("expected unknown token to introspect as inactive")
	}
}

func TestRevoke_IsIdempotent(t *testing.T) {
	s, _ := newTestServer(t)
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	form := url.Values{"token": {"mcp_token_never_existed"}}
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/oauth/revoke", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("revoke attempt %d: got status %d, want 200", i, rec.Code)
		}
	}
}

func TestUserinfo_RequiresBearerToken(t *testing.T) {
	s, _ := newTestServer(t)
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/oauth/userinfo", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want 401", rec.Code)
	}
}

func TestWellKnownEndpoints(t *testing.T) {
	s, _ := newTestServer(t)
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	for _, path := range []string{
		"/.well-known/oauth-protected-resource",
		"/.well-known/oauth-authorization-server",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: got status %d, want 200", path, rec.Code)
		}
	}
}

func TestVerifyPKCE(t *testing.T) {
	cases := []struct {
		name      string
		method    string
		challenge string
		verifier  string
		want      bool
	}{
		{"s256 match", "S256", "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk", true},
		{"s256 mismatch", "S256", "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", "wrong", false},
		{"plain match", "plain", "abc123", "abc123", true},
		{"plain mismatch", "plain", "abc123", "xyz", false},
		{"unknown method", "unknown", "abc123", "abc123", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := verifyPKCE(oauthstore.CodeChallengeMethod(c.method), c.challenge, c.verifier)
			if got != c.want {
				t.Errorf("verifyPKCE(%s) = %v, want %v", c.method, got, c.want)
			}
		})
	}
}
