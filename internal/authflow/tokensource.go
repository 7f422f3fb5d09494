package authflow

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/wrale/oauth2-authcode-proxy/internal/oauth"
)

// Token returns a usable access token for the session, refreshing it first
// when needed. Unknown sessions yield oauth.ErrNotFound; fully expired ones a
// grant error asking for a new authorization.
func (c *Controller) Token(ctx context.Context, id string) (*oauth2.Token, error) {
	s, err := c.sessions.Find(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding auth session: %w", err)
	}
	if s == nil {
		return nil, &oauth.Error{Kind: oauth.KindNotFound, Err: fmt.Errorf("auth session %q", id)}
	}

	valid, err := c.ensureValid(ctx, s)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, &oauth.Error{Kind: oauth.KindGrantInvalid, Err: errors.New("auth session expired")}
	}

	return s.Token(), nil
}

// TokenSource returns an oauth2.TokenSource for the session that reuses the
// current token until it expires and then goes through Token again
func (c *Controller) TokenSource(ctx context.Context, id string) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, &sessionTokenSource{ctx: ctx, c: c, id: id})
}

type sessionTokenSource struct {
	ctx context.Context
	c   *Controller
	id  string
}

func (ts *sessionTokenSource) Token() (*oauth2.Token, error) {
	return ts.c.Token(ts.ctx, ts.id)
}
