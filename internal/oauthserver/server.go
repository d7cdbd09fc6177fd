// Package oauthserver implements the subset of OAuth 2.1 the MCP ecosystem
// needs: dynamic client registration, the PKCE-enforced authorization-code
// flow, token issuance, introspection, and revocation.
package oauthserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/metamcp/metamcp/internal/domain/oauthstore"
	"github.com/metamcp/metamcp/internal/domain/session"
)

// DefaultCodeTTL is how long an authorization code remains redeemable.
const DefaultCodeTTL = 10 * time.Minute

// DefaultTokenTTL is how long a minted access token remains valid.
const DefaultTokenTTL = time.Hour

// SweepInterval is how often expired codes and tokens are purged.
const SweepInterval = 5 * time.Minute

// SessionCookieName is the admin login session cookie the authorize
// endpoint checks for an already-authenticated user.
const SessionCookieName = "metamcp_session"

// CallbackPath is this server's own OAuth callback route, used as the
// infinite-loop guard in handleCallback.
const CallbackPath = "/oauth/callback"

// BaseURLFunc derives the externally visible base URL for a request, per
// the environment-override / X-Forwarded-* / request-scheme fallback chain.
type BaseURLFunc func(r *http.Request) string

// Server implements the OAuth 2.1 authorization server endpoints.
type Server struct {
	store    oauthstore.Store
	sessions *session.SessionService
	baseURL  BaseURLFunc
	logger   *slog.Logger

	codeTTL  time.Duration
	tokenTTL time.Duration

	// LoginURL is where an unauthenticated /oauth/authorize request is sent,
	// with a base64url-encoded copy of the OAuth parameters appended as
	// ?callbackUrl=.
	LoginURL string

	// signingKey, when set, switches minted access tokens from an opaque
	// mcp_token_<random> string to a signed JWT carrying the same claims.
	// The token is still persisted via oauthstore for introspection and
	// revocation either way; signing only changes what the bearer string
	// itself encodes.
	signingKey []byte
}

// Option configures a Server at construction time.
type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

func WithCodeTTL(d time.Duration) Option {
	return func(s *Server) { s.codeTTL = d }
}

func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) { s.tokenTTL = d }
}

func WithLoginURL(url string) Option {
	return func(s *Server) { s.LoginURL = url }
}

// WithSignedTokens enables signed-JWT access tokens (HS256) instead of
// the default opaque mcp_token_<random> string. The token is still
// stored via oauthstore so introspection and revocation are unaffected;
// only the bearer string's contents change.
func WithSignedTokens(secret []byte) Option {
	return func(s *Server) { s.signingKey = secret }
}

// New creates an authorization server backed by store, using sessions to
// recognize an already-authenticated admin at /oauth/authorize.
func New(store oauthstore.Store, sessions *session.SessionService, baseURL BaseURLFunc, opts ...Option) *Server {
	s := &Server{
		store:    store,
		sessions: sessions,
		baseURL:  baseURL,
		logger:   slog.Default(),
		codeTTL:  DefaultCodeTTL,
		tokenTTL: DefaultTokenTTL,
		LoginURL: "/login",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterRoutes wires every OAuth endpoint onto mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /.well-known/oauth-protected-resource", s.handleProtectedResourceMetadata)
	mux.HandleFunc("GET /.well-known/oauth-authorization-server", s.handleAuthServerMetadata)
	mux.HandleFunc("POST /oauth/register", s.handleRegister)
	mux.HandleFunc("GET /oauth/authorize", s.handleAuthorize)
	mux.HandleFunc("GET /oauth/callback", s.handleCallback)
	mux.HandleFunc("POST /oauth/token", s.handleToken)
	mux.HandleFunc("POST /oauth/introspect", s.handleIntrospect)
	mux.HandleFunc("POST /oauth/revoke", s.handleRevoke)
	mux.HandleFunc("GET /oauth/userinfo", s.handleUserinfo)
}

// StartSweep runs the background expired-row sweep until ctx is cancelled.
func (s *Server) StartSweep(ctx context.Context) {
	ticker := time.NewTicker(SweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.store.SweepExpired(ctx); err != nil {
					s.logger.Warn("oauthserver: sweep failed", "error", err)
				}
			}
		}
	}()
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("oauthserver: failed to encode JSON response", "error", err)
	}
}

func (s *Server) respondOAuthError(w http.ResponseWriter, status int, code, description string) {
	s.respondJSON(w, status, map[string]string{"error": code, "error_description": description})
}

// readBody decodes a request body into v, accepting either application/json
// or application/x-www-form-urlencoded, per §4.7's requirement that all
// OAuth endpoints accept both.
func readBody(r *http.Request, v map[string]string) error {
	ct := r.Header.Get("Content-Type")
	if strings.Contains(ct, "application/json") {
		var m map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			return err
		}
		for k, val := range m {
			if s, ok := val.(string); ok {
				v[k] = s
			}
		}
		return nil
	}

	if err := r.ParseForm(); err != nil {
		return err
	}
	for k := range r.PostForm {
		v[k] = r.PostForm.Get(k)
	}
	return nil
}

func wellKnownCacheControl(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "*")
}
