package authflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wrale/oauth2-authcode-proxy/internal/authsession"
	"github.com/wrale/oauth2-authcode-proxy/internal/oauth"
)

func TestController_Token(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := env.clock.Now()

	live, _ := env.sessions.Save(ctx, &authsession.AuthSession{
		AccessToken:   "a1",
		RefreshToken:  "r1",
		AccessExpiry:  now.Add(time.Hour),
		RefreshExpiry: now.Add(24 * time.Hour),
		ProviderID:    env.provider.ID,
	})
	expired, _ := env.sessions.Save(ctx, &authsession.AuthSession{
		AccessToken:   "a0",
		RefreshToken:  "r0",
		AccessExpiry:  now.Add(-2 * time.Hour),
		RefreshExpiry: now.Add(-time.Hour),
		ProviderID:    env.provider.ID,
	})

	tok, err := env.ctrl.Token(ctx, live)
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if tok.AccessToken != "a1" || tok.TokenType != "Bearer" || !tok.Expiry.Equal(now.Add(time.Hour)) {
		t.Errorf("Token() = %+v", tok)
	}

	if _, err := env.ctrl.Token(ctx, expired); !errors.Is(err, oauth.ErrGrantInvalid) {
		t.Errorf("Token(expired) error = %v, want %v", err, oauth.ErrGrantInvalid)
	}
	if _, err := env.ctrl.Token(ctx, "missing"); !errors.Is(err, oauth.ErrNotFound) {
		t.Errorf("Token(missing) error = %v, want %v", err, oauth.ErrNotFound)
	}
	if env.tokens.callCount() != 0 {
		t.Errorf("token endpoint calls = %d, want 0", env.tokens.callCount())
	}
}

func TestController_TokenSourceRefreshes(t *testing.T) {
	// ReuseTokenSource checks expiry against the wall clock
	env := newTestEnv(t, WithClock(time.Now))
	ctx := context.Background()
	now := time.Now()

	id, _ := env.sessions.Save(ctx, &authsession.AuthSession{
		AccessToken:   "a1",
		RefreshToken:  "r1",
		AccessExpiry:  now.Add(-time.Minute),
		RefreshExpiry: now.Add(time.Hour),
		ProviderID:    env.provider.ID,
	})
	env.tokens.fn = respond(oauth.TokenResponse{AccessToken: "a2", RefreshToken: "r2", ExpiresIn: 3600})

	ts := env.ctrl.TokenSource(ctx, id)
	for i := 0; i < 3; i++ {
		tok, err := ts.Token()
		if err != nil {
			t.Fatalf("Token() error = %v", err)
		}
		if tok.AccessToken != "a2" {
			t.Errorf("Token() access token = %q, want a2", tok.AccessToken)
		}
	}

	if env.tokens.callCount() != 1 {
		t.Errorf("token endpoint calls = %d, want 1", env.tokens.callCount())
	}
}
