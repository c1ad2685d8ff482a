package auth

import (
	"sync"

	"github.com/weiawesome/wes-io-watchparty/pkg/jwt"
)

// Provider exposes the current identity to the sync engine. Components ask
// it on every use, so a provider may change identity over its lifetime.
type Provider interface {
	// Username returns the authenticated username, if any.
	Username() (string, bool)
	// Token returns the bearer credential, or "" when anonymous.
	Token() string
}

// StaticProvider is a fixed identity.
type StaticProvider struct {
	User        string
	BearerToken string
}

func (p StaticProvider) Username() (string, bool) { return p.User, p.User != "" }
func (p StaticProvider) Token() string            { return p.BearerToken }

// Anonymous has no identity.
var Anonymous Provider = StaticProvider{}

// TokenProvider derives the username from a JWT's claims. The signature is
// not checked here; the server does that on every request.
type TokenProvider struct {
	mu       sync.RWMutex
	token    string
	username string
}

// NewTokenProvider parses token and returns a provider for it.
func NewTokenProvider(token string) (*TokenProvider, error) {
	p := &TokenProvider{}
	if err := p.SetToken(token); err != nil {
		return nil, err
	}
	return p, nil
}

// SetToken replaces the credential. An empty token makes the provider anonymous.
func (p *TokenProvider) SetToken(token string) error {
	var username string
	if token != "" {
		claims, err := jwt.ParseUnverified(token)
		if err != nil {
			return err
		}
		username = claims.Username
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = token
	p.username = username
	return nil
}

func (p *TokenProvider) Username() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.username, p.username != ""
}

func (p *TokenProvider) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token
}
