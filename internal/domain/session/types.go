// Package session manages the administrative login session used by the
// OAuth authorization server to recognize an already-authenticated admin
// user at /oauth/authorize, as opposed to the transient per-connection MCP
// session tracked by the server pool (see internal/pool and
// internal/httpsurface), which is never persisted.
package session

import "time"

// Session tracks an authenticated admin user's context across requests to
// the OAuth authorization endpoints.
type Session struct {
	// ID is a cryptographically random identifier, 32 bytes hex-encoded.
	ID string
	// UserID references the admin user this session belongs to; it becomes
	// the access token's Subject once an authorization code minted under
	// this session is redeemed.
	UserID string
	// CreatedAt is when the session was created (UTC).
	CreatedAt time.Time
	// ExpiresAt is when the session will expire (UTC).
	ExpiresAt time.Time
	// LastAccess is the last time the session was used (UTC).
	LastAccess time.Time
}

// IsExpired checks if the session has exceeded its timeout.
func (s *Session) IsExpired() bool {
	return time.Now().UTC().After(s.ExpiresAt)
}

// Refresh updates LastAccess and extends ExpiresAt by the given duration.
func (s *Session) Refresh(timeout time.Duration) {
	now := time.Now().UTC()
	s.LastAccess = now
	s.ExpiresAt = now.Add(timeout)
}
