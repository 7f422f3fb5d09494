// Package authflow drives the OAuth 2.0 authorization code flow: initiating the
// redirect, validating the callback state, exchanging codes and refreshing
// stale sessions
package authflow

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/wrale/oauth2-authcode-proxy/internal/authsession"
	"github.com/wrale/oauth2-authcode-proxy/internal/csrf"
	"github.com/wrale/oauth2-authcode-proxy/internal/oauth"
	"github.com/wrale/oauth2-authcode-proxy/internal/provider"
	"github.com/wrale/oauth2-authcode-proxy/internal/session"
)

// StateKey is the caller-session key holding the pending state
const StateKey = "state"

// TokenExchanger performs token endpoint round trips
type TokenExchanger interface {
	Exchange(ctx context.Context, grant oauth.GrantType, credential string, p *oauth.Provider) (*oauth.TokenResponse, error)
}

// Redirector tells the outer layer to send the user agent elsewhere
type Redirector interface {
	RedirectTo(url string)
}

// Controller orchestrates the authorization code flow. It holds no per-request
// state; the provider is passed to each operation.
type Controller struct {
	tokens          TokenExchanger
	sessions        authsession.Repository
	providers       provider.Repository
	states          csrf.Generator
	logger          *slog.Logger
	now             func() time.Time
	refreshLifetime time.Duration
}

// NewController creates a flow controller with provided options
func NewController(tokens TokenExchanger, sessions authsession.Repository, providers provider.Repository, opts ...Option) *Controller {
	c := &Controller{
		tokens:          tokens,
		sessions:        sessions,
		providers:       providers,
		states:          csrf.NewGenerator(csrf.DefaultStateBytes),
		logger:          slog.Default(),
		now:             time.Now,
		refreshLifetime: oauth.DefaultRefreshLifetime,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SessionKey is the caller-session key binding a provider's auth session id
func SessionKey(p *oauth.Provider) string {
	return p.Name + "-auth"
}

// HandleCallback runs the step of the flow the query represents.
//
// With a code it validates and consumes the pending state, exchanges the code,
// persists the session, redirects to the provider's local redirect and returns
// the token. With an error it returns the classified error. Otherwise it starts
// the flow by redirecting to the authorization endpoint and returns (nil, nil).
func (c *Controller) HandleCallback(ctx context.Context, store session.Store, redirect Redirector, p *oauth.Provider, query url.Values) (*oauth2.Token, error) {
	switch {
	case query.Has("code"):
		return c.complete(ctx, store, redirect, p, query)

	case query.Has("error"):
		return nil, c.fail(p, oauth.ProviderError(p.Name, query.Get("error"), query.Get("error_description")))

	default:
		authURL, err := c.BuildAuthorizationURL(ctx, store, p)
		if err != nil {
			return nil, err
		}
		redirect.RedirectTo(authURL)
		return nil, nil
	}
}

// complete handles the authorization server callback after user consent
func (c *Controller) complete(ctx context.Context, store session.Store, redirect Redirector, p *oauth.Provider, query url.Values) (*oauth2.Token, error) {
	// The pending state is consumed whether or not it matches
	pending, ok, err := store.Pull(ctx, StateKey)
	if err != nil {
		return nil, fmt.Errorf("pulling state: %w", err)
	}

	presented := query.Get("state")
	if presented == "" || !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(pending)) != 1 {
		c.logger.Warn("rejected callback state",
			"provider", p.Name,
			"state_presented", presented != "",
			"state_pending", ok,
		)
		return nil, &oauth.Error{Kind: oauth.KindInvalidState, Provider: p.Name}
	}

	if err := p.Validate(oauth.StepComplete); err != nil {
		return nil, c.fail(p, err)
	}

	code := query.Get("code")
	if code == "" {
		return nil, &oauth.Error{Kind: oauth.KindGrantInvalid, Provider: p.Name, Err: errors.New("empty authorization code")}
	}

	tok, err := c.exchange(ctx, oauth.GrantAuthorizationCode, code, p)
	if err != nil {
		return nil, err
	}

	s := &authsession.AuthSession{ProviderID: p.ID}
	s.Apply(tok, c.now(), p.RefreshLifetimeOr(c.refreshLifetime))

	id, err := c.sessions.Save(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("saving auth session: %w", err)
	}
	if err := store.Put(ctx, SessionKey(p), id); err != nil {
		return nil, fmt.Errorf("binding auth session: %w", err)
	}

	c.logger.Info("authorized session", "provider", p.Name, "session_id", id)

	redirect.RedirectTo(p.LocalRedirect)
	return s.Token(), nil
}

// BuildAuthorizationURL issues a fresh state into the caller's session and
// returns the authorization endpoint URL carrying it
func (c *Controller) BuildAuthorizationURL(ctx context.Context, store session.Store, p *oauth.Provider) (string, error) {
	if err := p.Validate(oauth.StepAuthorize); err != nil {
		return "", c.fail(p, err)
	}

	state, err := c.states.Generate()
	if err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	if err := store.Put(ctx, StateKey, state); err != nil {
		return "", fmt.Errorf("storing state: %w", err)
	}

	return AuthorizationURL(p, state), nil
}

// AuthorizationURL appends state, client_id and the optional scope and
// redirect_uri to the provider's authorization endpoint
func AuthorizationURL(p *oauth.Provider, state string) string {
	var b strings.Builder
	b.WriteString(p.AuthorizationEndpoint)

	switch {
	case strings.HasSuffix(p.AuthorizationEndpoint, "?"), strings.HasSuffix(p.AuthorizationEndpoint, "&"):
	case strings.Contains(p.AuthorizationEndpoint, "?"):
		b.WriteByte('&')
	default:
		b.WriteByte('?')
	}

	b.WriteString("state=")
	b.WriteString(url.QueryEscape(state))
	b.WriteString("&client_id=")
	b.WriteString(url.QueryEscape(p.ClientID))
	if p.Scope != "" {
		b.WriteString("&scope=")
		b.WriteString(url.QueryEscape(p.Scope))
	}
	if p.RedirectURI != "" {
		b.WriteString("&redirect_uri=")
		b.WriteString(url.QueryEscape(p.RedirectURI))
	}

	return b.String()
}

// IsSessionValid reports whether the session has a usable access token,
// refreshing it when only the refresh token is still valid. Provider errors
// during refresh are returned, not reported as false.
func (c *Controller) IsSessionValid(ctx context.Context, id string) (bool, error) {
	s, err := c.sessions.Find(ctx, id)
	if err != nil {
		return false, fmt.Errorf("finding auth session: %w", err)
	}
	if s == nil {
		return false, nil
	}
	return c.ensureValid(ctx, s)
}

// ensureValid applies the validity state machine to a loaded session
func (c *Controller) ensureValid(ctx context.Context, s *authsession.AuthSession) (bool, error) {
	now := c.now()
	switch {
	case s.AccessValid(now):
		return true, nil
	case s.RefreshValid(now):
		if err := c.refresh(ctx, s); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, nil
	}
}

// refresh exchanges the stored refresh token and writes the result back only
// if no concurrent refresh already replaced it
func (c *Controller) refresh(ctx context.Context, s *authsession.AuthSession) error {
	p, err := c.providers.FindByID(ctx, s.ProviderID)
	if err != nil {
		return fmt.Errorf("loading provider for session %s: %w", s.ID, err)
	}

	prev := s.RefreshToken
	tok, err := c.exchange(ctx, oauth.GrantRefreshToken, prev, p)
	if err != nil {
		// A provider that rotates refresh tokens rejects the one a concurrent
		// refresh already spent
		if errors.Is(err, oauth.ErrGrantInvalid) {
			if adopted, ferr := c.adoptConcurrent(ctx, s, prev); ferr != nil || adopted {
				return ferr
			}
		}
		return err
	}

	s.Apply(tok, c.now(), p.RefreshLifetimeOr(c.refreshLifetime))

	err = c.sessions.Update(ctx, s, prev)
	if errors.Is(err, authsession.ErrConflict) {
		if adopted, ferr := c.adoptConcurrent(ctx, s, prev); ferr != nil || adopted {
			return ferr
		}
		return err
	}
	if err != nil {
		return fmt.Errorf("updating auth session: %w", err)
	}

	c.logger.Info("refreshed session", "provider", p.Name, "session_id", s.ID)
	return nil
}

// adoptConcurrent reloads s and takes over the stored state when another
// request replaced the refresh token prev and left a usable access token
func (c *Controller) adoptConcurrent(ctx context.Context, s *authsession.AuthSession, prev string) (bool, error) {
	current, err := c.sessions.Find(ctx, s.ID)
	if err != nil {
		return false, fmt.Errorf("reloading auth session: %w", err)
	}
	if current == nil || current.RefreshToken == prev || !current.AccessValid(c.now()) {
		return false, nil
	}

	*s = *current
	c.logger.Info("adopted concurrent refresh", "session_id", s.ID)
	return true, nil
}

// exchange calls the token endpoint and turns provider-reported errors into
// classified errors
func (c *Controller) exchange(ctx context.Context, grant oauth.GrantType, credential string, p *oauth.Provider) (*oauth.TokenResponse, error) {
	tok, err := c.tokens.Exchange(ctx, grant, credential, p)
	if err != nil {
		return nil, c.fail(p, err)
	}
	if tok.HasError() {
		return nil, c.fail(p, oauth.ProviderError(p.Name, tok.ErrorCode, tok.ErrorDescription))
	}
	if tok.AccessToken == "" {
		return nil, c.fail(p, &oauth.Error{
			Kind:     oauth.KindUnknownProvider,
			Provider: p.Name,
			Err:      fmt.Errorf("token response without access_token (status %d)", tok.StatusCode),
		})
	}
	return tok, nil
}

// fail logs err at a level matching its kind and returns it unchanged
func (c *Controller) fail(p *oauth.Provider, err error) error {
	switch oauth.KindOf(err) {
	case oauth.KindMisconfigured:
		c.logger.Error("provider misconfigured",
			"provider_id", p.ID,
			"provider", p.Name,
			"token_endpoint", p.TokenEndpoint,
			"client_id", p.ClientID,
			"error", err,
		)
	case oauth.KindInternal:
		c.logger.Error("token exchange failed", "provider", p.Name, "error", err)
	case oauth.KindTransport, oauth.KindUnknownProvider:
		c.logger.Warn("token endpoint failure", "provider", p.Name, "error", err)
	default:
		c.logger.Info("authorization failed", "provider", p.Name, "error", err)
	}
	return err
}
