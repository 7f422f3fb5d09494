package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
)

const (
	// CookieName is the name of the cookie carrying the session id
	CookieName = "oauth_session"

	// MinSecretLength is the minimum cookie signing secret length in bytes
	MinSecretLength = 32

	idValue = "sid"
)

// NewCookieStore creates the signed cookie store holding session ids
func NewCookieStore(secret []byte, maxAge time.Duration, secure bool) (*sessions.CookieStore, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("cookie secret must be at least %d bytes", MinSecretLength)
	}

	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store, nil
}

// Manager resolves the caller's web session from its cookie and hands out
// a Redis-backed Store scoped to it
type Manager struct {
	cookies sessions.Store
	client  redis.UniversalClient
	ttl     time.Duration
}

// NewManager creates a session manager
func NewManager(cookies sessions.Store, client redis.UniversalClient, ttl time.Duration) *Manager {
	return &Manager{
		cookies: cookies,
		client:  client,
		ttl:     ttl,
	}
}

// Load returns the store for the request's session, issuing a new session
// cookie when the request has none. Must be called before the response is written.
func (m *Manager) Load(w http.ResponseWriter, r *http.Request) (*RedisStore, error) {
	// An undecodable cookie yields a fresh session alongside the error
	cs, err := m.cookies.Get(r, CookieName)
	if cs == nil {
		return nil, fmt.Errorf("loading session cookie: %w", err)
	}

	id, _ := cs.Values[idValue].(string)
	if id == "" {
		id = uuid.NewString()
		cs.Values[idValue] = id
		if err := cs.Save(r, w); err != nil {
			return nil, fmt.Errorf("saving session cookie: %w", err)
		}
	}

	return NewRedisStore(m.client, id, m.ttl), nil
}

// CheckHealth verifies Redis connectivity
func (m *Manager) CheckHealth(ctx context.Context) error {
	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
