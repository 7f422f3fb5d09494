package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

var testSecret = []byte("test-secret-key-32-bytes-exactly!")

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	cookies, err := NewCookieStore(testSecret, time.Hour, false)
	if err != nil {
		t.Fatalf("NewCookieStore() error = %v", err)
	}

	// Load never talks to Redis, so an unreachable address is fine here
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	return NewManager(cookies, client, time.Hour)
}

func TestNewCookieStore_ShortSecret(t *testing.T) {
	if _, err := NewCookieStore([]byte("short"), time.Hour, true); err == nil {
		t.Error("NewCookieStore() expected error for short secret")
	}
}

func TestManager_Load(t *testing.T) {
	m := newTestManager(t)

	t.Run("issues session cookie", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/oauth/bungie", nil)

		store, err := m.Load(w, r)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if store.ID() == "" {
			t.Fatal("Load() returned empty session id")
		}

		cookie := w.Header().Get("Set-Cookie")
		if !strings.HasPrefix(cookie, CookieName+"=") {
			t.Errorf("Set-Cookie = %q, want %s cookie", cookie, CookieName)
		}
		if !strings.Contains(cookie, "HttpOnly") {
			t.Errorf("Set-Cookie = %q, want HttpOnly", cookie)
		}
	})

	t.Run("reuses existing session", func(t *testing.T) {
		w := httptest.NewRecorder()
		first, err := m.Load(w, httptest.NewRequest(http.MethodGet, "/oauth/bungie", nil))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		r := httptest.NewRequest(http.MethodGet, "/oauth/bungie?code=XYZ", nil)
		for _, c := range w.Result().Cookies() {
			r.AddCookie(c)
		}

		w2 := httptest.NewRecorder()
		second, err := m.Load(w2, r)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if second.ID() != first.ID() {
			t.Errorf("Load() id = %q, want %q", second.ID(), first.ID())
		}
		if got := w2.Header().Get("Set-Cookie"); got != "" {
			t.Errorf("Load() should not reissue cookie, got %q", got)
		}
	})

	t.Run("tampered cookie starts a new session", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/oauth/bungie", nil)
		r.AddCookie(&http.Cookie{Name: CookieName, Value: "tampered"})

		w := httptest.NewRecorder()
		store, err := m.Load(w, r)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if store.ID() == "" {
			t.Error("Load() returned empty session id")
		}
	})
}
