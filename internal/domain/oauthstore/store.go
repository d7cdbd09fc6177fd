package oauthstore

import (
	"context"
	"errors"
)

// Sentinel errors for OAuth store lookups.
var (
	ErrClientNotFound = errors.New("oauth client not found")
	ErrCodeNotFound   = errors.New("authorization code not found")
	ErrTokenNotFound  = errors.New("access token not found")
)

// Store persists OAuth clients, authorization codes, and access tokens.
// Implementations: in-memory (dev), sqlite (prod). Every mutation is a
// single-row transaction; no cross-table invariants are enforced here.
type Store interface {
	GetClient(ctx context.Context, clientID string) (*Client, error)
	PutClient(ctx context.Context, client *Client) error

	GetCode(ctx context.Context, code string) (*AuthorizationCode, error)
	PutCode(ctx context.Context, code *AuthorizationCode) error
	DeleteCode(ctx context.Context, code string) error

	GetToken(ctx context.Context, token string) (*AccessToken, error)
	PutToken(ctx context.Context, token *AccessToken) error
	DeleteToken(ctx context.Context, token string) error

	// SweepExpired deletes every authorization code and access token past
	// its expiry, for the 5-minute background sweep.
	SweepExpired(ctx context.Context) error
}
