package memory

import (
	"context"
	"sync"

	"github.com/metamcp/metamcp/internal/domain/oauthstore"
)

// OAuthStore implements oauthstore.Store with in-memory maps, following
// the same copy-on-read/copy-on-write discipline as the other memory
// adapters to avoid handing out aliased state.
type OAuthStore struct {
	mu      sync.RWMutex
	clients map[string]*oauthstore.Client
	codes   map[string]*oauthstore.AuthorizationCode
	tokens  map[string]*oauthstore.AccessToken
}

// NewOAuthStore creates an empty OAuthStore.
func NewOAuthStore() *OAuthStore {
	return &OAuthStore{
		clients: make(map[string]*oauthstore.Client),
		codes:   make(map[string]*oauthstore.AuthorizationCode),
		tokens:  make(map[string]*oauthstore.AccessToken),
	}
}

func (s *OAuthStore) GetClient(ctx context.Context, clientID string) (*oauthstore.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[clientID]
	if !ok {
		return nil, oauthstore.ErrClientNotFound
	}
	cp := *c
	cp.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	cp.GrantTypes = append([]oauthstore.GrantType(nil), c.GrantTypes...)
	cp.ResponseTypes = append([]oauthstore.ResponseType(nil), c.ResponseTypes...)
	return &cp, nil
}

func (s *OAuthStore) PutClient(ctx context.Context, client *oauthstore.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *client
	cp.RedirectURIs = append([]string(nil), client.RedirectURIs...)
	cp.GrantTypes = append([]oauthstore.GrantType(nil), client.GrantTypes...)
	cp.ResponseTypes = append([]oauthstore.ResponseType(nil), client.ResponseTypes...)
	s.clients[client.ClientID] = &cp
	return nil
}

func (s *OAuthStore) GetCode(ctx context.Context, code string) (*oauthstore.AuthorizationCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.codes[code]
	if !ok {
		return nil, oauthstore.ErrCodeNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *OAuthStore) PutCode(ctx context.Context, code *oauthstore.AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *code
	s.codes[code.Code] = &cp
	return nil
}

func (s *OAuthStore) DeleteCode(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.codes, code)
	return nil
}

func (s *OAuthStore) GetToken(ctx context.Context, token string) (*oauthstore.AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[token]
	if !ok {
		return nil, oauthstore.ErrTokenNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *OAuthStore) PutToken(ctx context.Context, token *oauthstore.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *token
	s.tokens[token.Token] = &cp
	return nil
}

func (s *OAuthStore) DeleteToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, token)
	return nil
}

// SweepExpired deletes every authorization code and access token past its
// expiry.
func (s *OAuthStore) SweepExpired(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for code, c := range s.codes {
		if c.IsExpired() {
			delete(s.codes, code)
		}
	}
	for tok, t := range s.tokens {
		if t.IsExpired() {
			delete(s.tokens, tok)
		}
	}
	return nil
}

var _ oauthstore.Store = (*OAuthStore)(nil)
