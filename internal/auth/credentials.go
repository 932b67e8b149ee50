package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// CredentialsProvider supplies access tokens and reports identity
// changes. Implementations must invoke the change listener on every
// sign-in, sign-out and token refresh that alters the subject.
type CredentialsProvider interface {
	// Token returns the current access token, or "" when signed out.
	Token(ctx context.Context) (string, error)

	// SetChangeListener registers the single listener for user changes.
	// The listener is invoked immediately with the current user.
	SetChangeListener(listener func(User))
}

// UserFromToken derives the User from a JWT access token without
// verifying the signature. The server is the authority on validity; the
// client only needs the subject to partition per-user state.
func UserFromToken(token string) (User, error) {
	if token == "" {
		return UnauthenticatedUser, nil
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return UnauthenticatedUser, fmt.Errorf("parse token: %w", err)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		// Some issuers carry the account in a uid claim instead.
		if uid, ok := claims["uid"].(string); ok && uid != "" {
			return User{UID: uid}, nil
		}
		return UnauthenticatedUser, fmt.Errorf("token has no subject")
	}
	return User{UID: sub}, nil
}

// TokenProvider is a CredentialsProvider over an updatable token.
type TokenProvider struct {
	mu       sync.Mutex
	token    string
	user     User
	listener func(User)
}

// NewTokenProvider creates a provider holding the given initial token.
// An empty token means signed out.
func NewTokenProvider(token string) (*TokenProvider, error) {
	user, err := UserFromToken(token)
	if err != nil {
		return nil, err
	}
	return &TokenProvider{token: token, user: user}, nil
}

// Token implements CredentialsProvider.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token, nil
}

// SetChangeListener implements CredentialsProvider.
func (p *TokenProvider) SetChangeListener(listener func(User)) {
	p.mu.Lock()
	p.listener = listener
	user := p.user
	p.mu.Unlock()
	if listener != nil {
		listener(user)
	}
}

// UpdateToken swaps the token, notifying the listener if the subject
// changed.
func (p *TokenProvider) UpdateToken(token string) error {
	user, err := UserFromToken(token)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.token = token
	changed := !p.user.Equal(user)
	p.user = user
	listener := p.listener
	p.mu.Unlock()
	if changed && listener != nil {
		listener(user)
	}
	return nil
}
