// Package authsession persists authorized sessions: the tokens obtained from a
// provider, their expiries and the provider linkage
package authsession

import (
	"time"

	"golang.org/x/oauth2"

	"github.com/wrale/oauth2-authcode-proxy/internal/oauth"
)

// AuthSession is an authorized session with a provider
type AuthSession struct {
	ID            string    `json:"id"`
	AccessToken   string    `json:"-"`
	RefreshToken  string    `json:"-"`
	AccessExpiry  time.Time `json:"access_expiry"`
	RefreshExpiry time.Time `json:"refresh_expiry"`
	ProviderID    string    `json:"provider_id"`
	Identifier    string    `json:"identifier,omitempty"` // External account id, when the provider reports one
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AccessValid reports whether the access token is still valid at now
func (s *AuthSession) AccessValid(now time.Time) bool {
	return s.AccessExpiry.After(now)
}

// RefreshValid reports whether the session holds a refresh token that is
// still valid at now
func (s *AuthSession) RefreshValid(now time.Time) bool {
	return s.RefreshToken != "" && s.RefreshExpiry.After(now)
}

// Apply overwrites tokens and expiries from a token response received at now.
// refreshLifetime is used when the response omits refresh_expires_in. A response
// without a refresh token keeps the current one.
func (s *AuthSession) Apply(tok *oauth.TokenResponse, now time.Time, refreshLifetime time.Duration) {
	s.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		s.RefreshToken = tok.RefreshToken
	}
	s.AccessExpiry = now.Add(time.Duration(tok.ExpiresIn) * time.Second)

	if tok.RefreshExpiresIn > 0 {
		refreshLifetime = time.Duration(tok.RefreshExpiresIn) * time.Second
	}
	s.RefreshExpiry = now.Add(refreshLifetime)

	if tok.AccountID != "" {
		s.Identifier = tok.AccountID
	}
}

// Token returns the session's credentials as an oauth2 token
func (s *AuthSession) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: s.RefreshToken,
		Expiry:       s.AccessExpiry,
	}
}
