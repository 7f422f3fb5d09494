package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

// routeRecorder writes its name and the route params it saw
type routeRecorder string

func (rr routeRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte(string(rr) + ":" + chi.URLParam(r, "provider") + chi.URLParam(r, "id")))
}

func TestMount(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "health:"},
		{"/oauth/bungie", "callback:bungie"},
		{"/oauth/sessions", "callback:sessions"},
		{"/sessions/abc-123", "validity:abc-123"},
	}

	r := chi.NewRouter()
	mount(r, routeRecorder("health"), routeRecorder("callback"), routeRecorder("validity"))

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			if got := w.Body.String(); got != tt.want {
				t.Errorf("routed to %q, want %q", got, tt.want)
			}
		})
	}
}
