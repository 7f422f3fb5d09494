package authflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wrale/oauth2-authcode-proxy/internal/authsession"
	"github.com/wrale/oauth2-authcode-proxy/internal/oauth"
)

// memStore implements session.Store for testing. Pull is atomic under the mutex.
type memStore struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemStore() *memStore {
	return &memStore{values: make(map[string]string)}
}

func (m *memStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memStore) Put(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memStore) Pull(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	delete(m.values, key)
	return v, ok, nil
}

// memSessions implements authsession.Repository for testing
type memSessions struct {
	mu           sync.Mutex
	sessions     map[string]authsession.AuthSession
	nextID       int
	beforeUpdate func(map[string]authsession.AuthSession)
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]authsession.AuthSession)}
}

func (m *memSessions) Find(ctx context.Context, id string) (*authsession.AuthSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memSessions) Save(ctx context.Context, s *authsession.AuthSession) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		m.nextID++
		s.ID = fmt.Sprintf("session-%d", m.nextID)
	}
	m.sessions[s.ID] = *s
	return s.ID, nil
}

func (m *memSessions) Update(ctx context.Context, s *authsession.AuthSession, prevRefreshToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.beforeUpdate != nil {
		m.beforeUpdate(m.sessions)
	}
	current, ok := m.sessions[s.ID]
	if !ok || current.RefreshToken != prevRefreshToken {
		return authsession.ErrConflict
	}
	m.sessions[s.ID] = *s
	return nil
}

func (m *memSessions) CheckHealth(ctx context.Context) error {
	return nil
}

func (m *memSessions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// mockProviders implements provider.Repository for testing
type mockProviders struct {
	providers []*oauth.Provider
}

func (m *mockProviders) FindByName(ctx context.Context, name string) (*oauth.Provider, error) {
	for _, p := range m.providers {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, oauth.ErrNotFound
}

func (m *mockProviders) FindByID(ctx context.Context, id string) (*oauth.Provider, error) {
	for _, p := range m.providers {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, oauth.ErrNotFound
}

type exchangeCall struct {
	Grant      oauth.GrantType
	Credential string
	Provider   string
}

// mockExchanger implements TokenExchanger and records every call
type mockExchanger struct {
	mu    sync.Mutex
	calls []exchangeCall
	fn    func(grant oauth.GrantType, credential string) (*oauth.TokenResponse, error)
}

func (m *mockExchanger) Exchange(ctx context.Context, grant oauth.GrantType, credential string, p *oauth.Provider) (*oauth.TokenResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, exchangeCall{Grant: grant, Credential: credential, Provider: p.Name})
	m.mu.Unlock()
	return m.fn(grant, credential)
}

func (m *mockExchanger) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// respond returns a fixed token response for every call
func respond(tok oauth.TokenResponse) func(oauth.GrantType, string) (*oauth.TokenResponse, error) {
	return func(oauth.GrantType, string) (*oauth.TokenResponse, error) {
		t := tok
		return &t, nil
	}
}

// recordingRedirector implements Redirector for testing
type recordingRedirector struct {
	mu   sync.Mutex
	urls []string
}

func (r *recordingRedirector) RedirectTo(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = append(r.urls, url)
}

// fakeClock is a manually advanced time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// staticGenerator returns the same state every time
type staticGenerator string

func (g staticGenerator) Generate() (string, error) {
	return string(g), nil
}

func testProvider() *oauth.Provider {
	return &oauth.Provider{
		ID:                    "7",
		Name:                  "bungie",
		AuthorizationEndpoint: "https://auth.example.com/authorize?response_type=code",
		TokenEndpoint:         "https://auth.example.com/token",
		ClientID:              "client-123",
		ClientSecret:          "secret-456",
		Scope:                 "read",
		LocalRedirect:         "/dashboard",
	}
}
