// Package authgate implements the per-endpoint authentication and
// authorization gate: a four-mode credential pipeline (API-key-only,
// OAuth-only, both, neither) that answers every request with exactly one
// of pass-through, 401, 403, or 429.
package authgate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/metamcp/metamcp/internal/ctxkey"
	"github.com/metamcp/metamcp/internal/domain/auth"
	"github.com/metamcp/metamcp/internal/domain/endpoint"
	"github.com/metamcp/metamcp/internal/domain/oauthstore"
	"github.com/metamcp/metamcp/internal/domain/ratelimit"
)

// DefaultRateLimit is the default per-identifier credential-failure bucket:
// 20 attempts per 60 seconds.
var DefaultRateLimit = ratelimit.RateLimitConfig{
	Rate:   20,
	Burst:  20,
	Period: 60 * time.Second,
}

// BaseURLFunc derives the externally visible base URL for a request.
type BaseURLFunc func(r *http.Request) string

// Gate enforces the auth gate for every endpoint-scoped request.
type Gate struct {
	apiKeys    *auth.APIKeyService
	oauthStore oauthstore.Store
	limiter    ratelimit.RateLimiter
	baseURL    BaseURLFunc
	rateConfig ratelimit.RateLimitConfig
	logger     *slog.Logger
}

// Option configures a Gate at construction time.
type Option func(*Gate)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

func WithRateLimit(cfg ratelimit.RateLimitConfig) Option {
	return func(g *Gate) { g.rateConfig = cfg }
}

// New creates a Gate.
func New(apiKeys *auth.APIKeyService, oauthStore oauthstore.Store, limiter ratelimit.RateLimiter, baseURL BaseURLFunc, opts ...Option) *Gate {
	g := &Gate{
		apiKeys:    apiKeys,
		oauthStore: oauthStore,
		limiter:    limiter,
		baseURL:    baseURL,
		rateConfig: DefaultRateLimit,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authenticate enforces §4.8's four-condition table for ep against r. It
// writes an error response and returns false when the request must be
// rejected; returns true when the caller should proceed to serve ep.
func (g *Gate) Authenticate(w http.ResponseWriter, r *http.Request, ep *endpoint.Endpoint) bool {
	apiKeyOn := ep.EnableAPIKeyAuth
	oauthOn := ep.EnableOAuth

	if !apiKeyOn && !oauthOn {
		return true
	}

	token := g.extractToken(r, ep)

	switch {
	case apiKeyOn && !oauthOn:
		return g.authenticateAPIKeyOnly(w, r, ep, token)
	case !apiKeyOn && oauthOn:
		return g.authenticateOAuthOnly(w, r, ep, token)
	default:
		return g.authenticateBoth(w, r, ep, token)
	}
}

func (g *Gate) authenticateAPIKeyOnly(w http.ResponseWriter, r *http.Request, ep *endpoint.Endpoint, token string) bool {
	if token == "" {
		g.respondError(w, r, ep, http.StatusUnauthorized, "invalid_request", "authentication required", false)
		return false
	}
	if isOAuthToken(token) {
		g.respondError(w, r, ep, http.StatusUnauthorized, "invalid_api_key", "invalid api key", false)
		return false
	}
	return g.tryAPIKey(w, r, ep, token, false)
}

func (g *Gate) authenticateOAuthOnly(w http.ResponseWriter, r *http.Request, ep *endpoint.Endpoint, token string) bool {
	if token == "" {
		g.respondError(w, r, ep, http.StatusUnauthorized, "invalid_request", "authentication required", true)
		return false
	}
	if !isOAuthToken(token) {
		g.respondRateLimited(w, r, ep, "invalid_credentials")
		return false
	}
	return g.tryOAuth(w, r, ep, token, true)
}

func (g *Gate) authenticateBoth(w http.ResponseWriter, r *http.Request, ep *endpoint.Endpoint, token string) bool {
	if token == "" {
		g.respondError(w, r, ep, http.StatusUnauthorized, "invalid_request", "authentication required", true)
		return false
	}

	if isOAuthToken(token) {
		if g.oauthACLOK(r.Context(), token, ep) {
			return true
		}
		if g.apiKeyACLOK(r.Context(), token, ep) {
			return true
		}
		g.respondRateLimited(w, r, ep, "invalid_credentials")
		return false
	}

	if g.apiKeyACLOK(r.Context(), token, ep) {
		return true
	}
	if g.oauthACLOK(r.Context(), token, ep) {
		return true
	}
	g.respondRateLimited(w, r, ep, "invalid_credentials")
	return false
}

// tryAPIKey validates token as an API key, responds on failure, and
// returns whether the request may proceed. rateLimited selects whether a
// validation failure consumes the credential-failure bucket (429) or is a
// plain 401 (API-key-only mode never rate limits a bad key).
func (g *Gate) tryAPIKey(w http.ResponseWriter, r *http.Request, ep *endpoint.Endpoint, token string, rateLimited bool) bool {
	key, err := g.apiKeys.Validate(r.Context(), token)
	if err != nil {
		if rateLimited {
			g.respondRateLimited(w, r, ep, "invalid_credentials")
		} else {
			g.respondError(w, r, ep, http.StatusUnauthorized, "invalid_api_key", "invalid api key", false)
		}
		return false
	}
	if !apiKeyACL(key, ep) {
		g.respondError(w, r, ep, http.StatusForbidden, "forbidden", "access denied", false)
		return false
	}
	return true
}

// tryOAuth introspects token as an access token, responds on failure, and
// returns whether the request may proceed.
func (g *Gate) tryOAuth(w http.ResponseWriter, r *http.Request, ep *endpoint.Endpoint, token string, rateLimited bool) bool {
	at, err := g.introspect(r.Context(), token)
	if err != nil {
		if rateLimited {
			g.respondRateLimited(w, r, ep, "invalid_token")
		} else {
			g.respondError(w, r, ep, http.StatusUnauthorized, "invalid_token", "invalid or expired token", true)
		}
		return false
	}
	if !oauthACL(at, ep) {
		g.respondError(w, r, ep, http.StatusForbidden, "forbidden", "access denied", false)
		return false
	}
	return true
}

// apiKeyACLOK validates token as an API key and checks its ACL, without
// writing any response; used by the dual-mode fallback paths where a
// failure here is not yet final.
func (g *Gate) apiKeyACLOK(ctx context.Context, token string, ep *endpoint.Endpoint) bool {
	key, err := g.apiKeys.Validate(ctx, token)
	if err != nil {
		return false
	}
	return apiKeyACL(key, ep)
}

// oauthACLOK introspects token and checks its ACL, without writing any
// response.
func (g *Gate) oauthACLOK(ctx context.Context, token string, ep *endpoint.Endpoint) bool {
	at, err := g.introspect(ctx, token)
	if err != nil {
		return false
	}
	return oauthACL(at, ep)
}

func (g *Gate) introspect(ctx context.Context, token string) (*oauthstore.AccessToken, error) {
	at, err := g.oauthStore.GetToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if at.IsExpired() {
		return nil, oauthstore.ErrTokenNotFound
	}
	return at, nil
}

// apiKeyACL implements the §4.8 API-key ACL rules.
func apiKeyACL(key *auth.APIKey, ep *endpoint.Endpoint) bool {
	if key.IsPublic() {
		return !ep.IsPrivate()
	}
	if ep.IsPrivate() {
		return *key.UserID == ep.UserID
	}
	return true
}

// oauthACL implements the §4.8 OAuth ACL rules.
func oauthACL(at *oauthstore.AccessToken, ep *endpoint.Endpoint) bool {
	if at.UserID == "" {
		return false
	}
	if !ep.IsPrivate() {
		return true
	}
	return at.UserID == ep.UserID
}

func isOAuthToken(token string) bool {
	return strings.HasPrefix(token, oauthstore.AccessTokenPrefix)
}

// extractToken resolves the bearer credential from the request, honoring
// the §4.8 precedence order: X-API-Key header, Authorization: Bearer,
// then query api_key/apikey when the endpoint allows it.
func (g *Gate) extractToken(r *http.Request, ep *endpoint.Endpoint) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimPrefix(authz, "Bearer ")
	}
	if ep.UseQueryParamAuth {
		if v := r.URL.Query().Get("api_key"); v != "" {
			return v
		}
		if v := r.URL.Query().Get("apikey"); v != "" {
			return v
		}
	}
	return ""
}

// respondRateLimited consults the credential-failure rate-limit bucket for
// (remote-ip, endpoint) and always responds 429: "rate_limited" when the
// bucket itself is exhausted, otherwise the caller-supplied reason code.
// Both outcomes share the 429 status so a client cannot distinguish "bad
// credentials" from "too many attempts".
func (g *Gate) respondRateLimited(w http.ResponseWriter, r *http.Request, ep *endpoint.Endpoint, reason string) {
	ip := ipFromContext(r)
	key := ratelimit.FormatKey(ratelimit.KeyTypeIP, ip+":"+ep.ID)

	result, err := g.limiter.Allow(r.Context(), key, g.rateConfig)
	if err != nil {
		g.logger.Warn("authgate: rate limiter check failed", "error", err)
	} else if !result.Allowed {
		reason = "rate_limited"
	}

	respondJSON(w, http.StatusTooManyRequests, map[string]string{"error": reason})
}

func ipFromContext(r *http.Request) string {
	if ip, ok := r.Context().Value(ctxkey.IPAddressKey{}).(string); ok && ip != "" {
		return ip
	}
	return r.RemoteAddr
}

// respondError writes a 401/403 response. includeChallenge adds the
// WWW-Authenticate header per §4.8; it is only ever true when OAuth is
// enabled for ep.
func (g *Gate) respondError(w http.ResponseWriter, r *http.Request, ep *endpoint.Endpoint, status int, code, description string, includeChallenge bool) {
	if includeChallenge {
		base := g.baseURL(r)
		w.Header().Set("WWW-Authenticate", fmt.Sprintf(
			`Bearer realm="MetaMCP", scope="admin", resource_metadata="%s/.well-known/oauth-protected-resource"`, base))
	}
	respondJSON(w, status, map[string]string{"error": code, "error_description": description})
}

func respondJSON(w http.ResponseWriter, status int, data map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
