package publisher

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// CredentialProvider supplies valid OAuth tokens per (platform, account).
// Token acquisition and exchange happen elsewhere; publishers consume this
// as an opaque "valid credential" capability.
type CredentialProvider interface {
	// Token returns the current token for the account.
	Token(ctx context.Context, platform, account string) (*oauth2.Token, error)

	// Refresh forces a renewal and returns the new token.
	Refresh(ctx context.Context, platform, account string) (*oauth2.Token, error)
}

// ErrCredentialNotFound is returned when no token is stored for an account.
var ErrCredentialNotFound = errors.New("credential not found")

// StaticCredentials is an in-memory CredentialProvider for tests and
// single-tenant setups where tokens are provisioned out of band. Refresh
// returns the stored token unchanged unless a refresh func is installed.
type StaticCredentials struct {
	mu      sync.RWMutex
	tokens  map[string]*oauth2.Token
	refresh func(ctx context.Context, platform, account string) (*oauth2.Token, error)
}

// NewStaticCredentials creates an empty provider.
func NewStaticCredentials() *StaticCredentials {
	return &StaticCredentials{tokens: make(map[string]*oauth2.Token)}
}

// Set stores a token for the (platform, account) pair.
func (s *StaticCredentials) Set(platform, account string, token *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[platform+"/"+account] = token
}

// SetRefreshFunc installs a custom refresh implementation.
func (s *StaticCredentials) SetRefreshFunc(fn func(ctx context.Context, platform, account string) (*oauth2.Token, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = fn
}

// Token implements CredentialProvider.
func (s *StaticCredentials) Token(ctx context.Context, platform, account string) (*oauth2.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[platform+"/"+account]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	if !token.Expiry.IsZero() && time.Now().After(token.Expiry) {
		return nil, NewError(ClassAuthExpired, 0, "stored token expired", nil)
	}
	return token, nil
}

// Refresh implements CredentialProvider.
func (s *StaticCredentials) Refresh(ctx context.Context, platform, account string) (*oauth2.Token, error) {
	s.mu.RLock()
	refresh := s.refresh
	s.mu.RUnlock()

	if refresh != nil {
		token, err := refresh(ctx, platform, account)
		if err != nil {
			return nil, err
		}
		s.Set(platform, account, token)
		return token, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[platform+"/"+account]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return token, nil
}
