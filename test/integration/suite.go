// Package integration runs the authorization code flow end to end against
// real Redis and Postgres instances and an in-process fake provider
package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/wrale/oauth2-authcode-proxy/cmd/oauth2-authcode-proxy/handlers/callback"
	"github.com/wrale/oauth2-authcode-proxy/cmd/oauth2-authcode-proxy/handlers/sessions"
	"github.com/wrale/oauth2-authcode-proxy/internal/authflow"
	"github.com/wrale/oauth2-authcode-proxy/internal/authsession"
	"github.com/wrale/oauth2-authcode-proxy/internal/migrations"
	"github.com/wrale/oauth2-authcode-proxy/internal/oauth"
	"github.com/wrale/oauth2-authcode-proxy/internal/provider"
	"github.com/wrale/oauth2-authcode-proxy/internal/session"
	"github.com/wrale/oauth2-authcode-proxy/internal/templates"
)

// Configuration for integration tests
const (
	// Per-test deadline
	ServiceTimeout = 30 * time.Second

	// Code the fake provider accepts
	ValidCode = "valid-code"

	cookieSecret = "integration-cookie-secret-32-bytes!"
)

// TestSuite provides shared functionality for integration tests
type TestSuite struct {
	T        *testing.T
	Ctx      context.Context
	Client   *http.Client
	Proxy    *httptest.Server
	Provider *FakeProvider
	DB       *sql.DB
}

// NewSuite wires the proxy handlers to the databases named by TEST_REDIS_URL
// and TEST_DATABASE_URL, skipping the test when either is unset
func NewSuite(t *testing.T) *TestSuite {
	t.Helper()

	redisURL := os.Getenv("TEST_REDIS_URL")
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if redisURL == "" || dbURL == "" {
		t.Skip("TEST_REDIS_URL and TEST_DATABASE_URL must be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), ServiceTimeout)
	t.Cleanup(cancel)

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := migrations.Up(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		t.Fatalf("parsing Redis URL: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	providers := provider.NewPostgresRepository(db)
	exchanger, err := oauth.NewExchangeClient(oauth.WithTimeout(5 * time.Second))
	if err != nil {
		t.Fatalf("creating exchange client: %v", err)
	}
	controller := authflow.NewController(exchanger, authsession.NewPostgresRepository(db), providers,
		authflow.WithLogger(logger))

	cookies, err := session.NewCookieStore([]byte(cookieSecret), time.Hour, false)
	if err != nil {
		t.Fatalf("creating cookie store: %v", err)
	}
	manager := session.NewManager(cookies, client, time.Hour)

	tmpls, err := templates.LoadTemplates()
	if err != nil {
		t.Fatalf("loading templates: %v", err)
	}

	router := chi.NewRouter()
	router.Get("/sessions/{id}", sessions.New(controller).WithLogger(logger).ServeHTTP)
	router.Get("/oauth/{provider}", callback.New(callback.Config{
		Flow:      controller,
		Providers: providers,
		Sessions: callback.SessionLoaderFunc(func(w http.ResponseWriter, r *http.Request) (session.Store, error) {
			return manager.Load(w, r)
		}),
		Templates: tmpls,
		Logger:    logger,
	}).ServeHTTP)

	proxy := httptest.NewServer(router)
	t.Cleanup(proxy.Close)

	fake := NewFakeProvider()
	t.Cleanup(fake.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("creating cookie jar: %v", err)
	}

	return &TestSuite{
		T:   t,
		Ctx: ctx,
		Client: &http.Client{
			Jar:     jar,
			Timeout: 10 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		Proxy:    proxy,
		Provider: fake,
		DB:       db,
	}
}

// RegisterProvider stores a provider pointing at the fake provider
func (s *TestSuite) RegisterProvider() *oauth.Provider {
	s.T.Helper()

	p := &oauth.Provider{
		Name:                  "fake-" + uuid.NewString(),
		AuthorizationEndpoint: s.Provider.URL + "/authorize?response_type=code",
		TokenEndpoint:         s.Provider.URL + "/token",
		ClientID:              "integration-client",
		ClientSecret:          "integration-secret",
		Scope:                 "read",
		LocalRedirect:         "/dashboard",
	}
	if err := provider.NewPostgresRepository(s.DB).Create(s.Ctx, p); err != nil {
		s.T.Fatalf("registering provider: %v", err)
	}
	return p
}

// Get requests path on the proxy without following redirects
func (s *TestSuite) Get(path string) (*http.Response, string) {
	s.T.Helper()

	req, err := http.NewRequestWithContext(s.Ctx, http.MethodGet, s.Proxy.URL+path, nil)
	if err != nil {
		s.T.Fatalf("creating request: %v", err)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		s.T.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		s.T.Fatalf("reading body: %v", err)
	}
	return resp, string(body)
}

// SessionIDs returns the auth session ids stored for a provider
func (s *TestSuite) SessionIDs(p *oauth.Provider) []string {
	s.T.Helper()

	rows, err := s.DB.QueryContext(s.Ctx,
		`SELECT id FROM oauth_auth_sessions WHERE provider_id = $1 ORDER BY created_at`, p.ID)
	if err != nil {
		s.T.Fatalf("querying sessions: %v", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			s.T.Fatalf("scanning session id: %v", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		s.T.Fatalf("iterating sessions: %v", err)
	}
	return ids
}

// Grant is a token request received by the fake provider
type Grant struct {
	Type       string
	Credential string
}

// FakeProvider is a token endpoint that accepts ValidCode and any refresh
// token it issued
type FakeProvider struct {
	*httptest.Server

	mu     sync.Mutex
	grants []Grant
	issued map[string]bool
	serial int
}

// NewFakeProvider starts the fake token endpoint
func NewFakeProvider() *FakeProvider {
	f := &FakeProvider{issued: make(map[string]bool)}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", f.handleToken)
	f.Server = httptest.NewServer(mux)
	return f
}

// Grants returns the token requests received so far
func (f *FakeProvider) Grants() []Grant {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Grant(nil), f.grants...)
}

func (f *FakeProvider) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	grant := Grant{Type: r.PostForm.Get("grant_type")}
	var ok bool
	switch grant.Type {
	case "authorization_code":
		grant.Credential = r.PostForm.Get("code")
		ok = grant.Credential == ValidCode
	case "refresh_token":
		grant.Credential = r.PostForm.Get("refresh_token")
		ok = f.issued[grant.Credential]
		delete(f.issued, grant.Credential)
	}
	f.grants = append(f.grants, grant)

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
		return
	}

	f.serial++
	refresh := fmt.Sprintf("refresh-%d", f.serial)
	f.issued[refresh] = true
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  fmt.Sprintf("access-%d", f.serial),
		"refresh_token": refresh,
		"token_type":    "Bearer",
		"expires_in":    3600,
	})
}
