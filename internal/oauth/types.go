// Package oauth provides the authorization server side of the authorization code flow:
// provider configuration, the token endpoint client and provider error classification.
package oauth

import (
	"errors"
	"strings"
	"time"
)

// DefaultRefreshLifetime applies when a token response carries no refresh_expires_in
// and the provider does not configure its own default (60 days).
const DefaultRefreshLifetime = 5184000 * time.Second

// DefaultErrorField is the token response field carrying the provider's error code
const DefaultErrorField = "error"

// GrantType identifies the credential being exchanged at the token endpoint
type GrantType string

const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantRefreshToken      GrantType = "refresh_token"
)

// credentialField returns the form field that carries the credential for a grant
func (g GrantType) credentialField() string {
	if g == GrantRefreshToken {
		return "refresh_token"
	}
	return "code"
}

// Provider is the read-only configuration of a third-party authorization server
type Provider struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	ClientID              string `json:"client_id"`
	ClientSecret          string `json:"-"`
	Scope                 string `json:"scope,omitempty"`
	RedirectURI           string `json:"redirect_uri,omitempty"`
	LocalRedirect         string `json:"local_redirect"`

	// ErrorField names the token response field holding an error code.
	// Some providers report errors under "name" instead of "error".
	ErrorField string `json:"error_field,omitempty"`

	// AccountIDField names the token response field holding the external account id.
	AccountIDField string `json:"account_id_field,omitempty"`

	// RefreshLifetime overrides DefaultRefreshLifetime for this provider.
	RefreshLifetime time.Duration `json:"refresh_lifetime,omitempty"`
}

// Step is a phase of the flow that requires a subset of provider fields
type Step int

const (
	StepAuthorize Step = iota
	StepExchange
	StepComplete
)

// Validate checks that every field needed for the given step is present
func (p *Provider) Validate(step Step) error {
	if p == nil {
		return errors.New("provider is required")
	}

	var missing []string
	switch step {
	case StepAuthorize:
		if p.AuthorizationEndpoint == "" {
			missing = append(missing, "authorization_endpoint")
		}
		if p.ClientID == "" {
			missing = append(missing, "client_id")
		}
	case StepExchange:
		if p.TokenEndpoint == "" {
			missing = append(missing, "token_endpoint")
		}
		if p.ClientID == "" {
			missing = append(missing, "client_id")
		}
		if p.ClientSecret == "" {
			missing = append(missing, "client_secret")
		}
	case StepComplete:
		if p.LocalRedirect == "" {
			missing = append(missing, "local_redirect")
		}
	}

	if len(missing) > 0 {
		return &Error{
			Kind:     KindMisconfigured,
			Provider: p.Name,
			Err:      errors.New("missing provider fields: " + strings.Join(missing, ", ")),
		}
	}
	return nil
}

// errorField returns the configured error field or the default
func (p *Provider) errorField() string {
	if p.ErrorField != "" {
		return p.ErrorField
	}
	return DefaultErrorField
}

// RefreshLifetimeOr returns the provider's refresh lifetime, falling back to def
func (p *Provider) RefreshLifetimeOr(def time.Duration) time.Duration {
	if p.RefreshLifetime > 0 {
		return p.RefreshLifetime
	}
	return def
}

// TokenResponse is the decoded body of a token endpoint call
type TokenResponse struct {
	AccessToken      string
	RefreshToken     string
	TokenType        string
	ExpiresIn        int64 // Access token lifetime in seconds
	RefreshExpiresIn int64 // Zero when the provider omitted it
	AccountID        string
	ErrorCode        string
	ErrorDescription string
	StatusCode       int
	Raw              map[string]any
}

// HasError reports whether the provider returned an error code
func (t *TokenResponse) HasError() bool {
	return t.ErrorCode != ""
}
