package sessions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"

	"github.com/wrale/oauth2-authcode-proxy/cmd/oauth2-authcode-proxy/handlers/common"
	"github.com/wrale/oauth2-authcode-proxy/internal/oauth"
)

type mockValidator struct {
	valid bool
	err   error
	ids   []string
}

func (m *mockValidator) IsSessionValid(ctx context.Context, id string) (bool, error) {
	m.ids = append(m.ids, id)
	return m.valid, m.err
}

func TestValidityHandler(t *testing.T) {
	tests := []struct {
		name       string
		valid      bool
		err        error
		wantStatus int
		wantBody   any
		wantLog    string
	}{
		{
			name:       "valid session",
			valid:      true,
			wantStatus: http.StatusOK,
			wantBody:   map[string]any{"valid": true},
		},
		{
			name:       "expired session",
			wantStatus: http.StatusOK,
			wantBody:   map[string]any{"valid": false},
		},
		{
			name:       "refresh rejected",
			err:        fmt.Errorf("refreshing: %w", oauth.ProviderError("bungie", "invalid_grant", "")),
			wantStatus: http.StatusUnauthorized,
			wantBody: map[string]any{
				"error":             "grant_invalid",
				"error_description": oauth.KindGrantInvalid.Message(),
			},
		},
		{
			name:       "session store down",
			err:        fmt.Errorf("finding auth session: %w", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")),
			wantStatus: http.StatusInternalServerError,
			wantBody: map[string]any{
				"error":             "internal_error",
				"error_description": "Something went wrong",
			},
			wantLog: "connection refused",
		},
		{
			name:       "provider unreachable",
			err:        &oauth.Error{Kind: oauth.KindTransport},
			wantStatus: http.StatusBadGateway,
			wantBody: map[string]any{
				"error":             "transport_error",
				"error_description": oauth.KindTransport.Message(),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &mockValidator{valid: tt.valid, err: tt.err}
			var logs bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&logs, nil))
			r := chi.NewRouter()
			r.Get("/sessions/{id}", New(v).WithLogger(logger).ServeHTTP)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/abc-123", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}

			var got map[string]any
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if diff := cmp.Diff(tt.wantBody, any(got)); diff != "" {
				t.Errorf("body mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]string{"abc-123"}, v.ids); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}

			switch {
			case tt.wantLog == "" && logs.Len() != 0:
				t.Errorf("unexpected log output:\n%s", logs.String())
			case tt.wantLog != "" && (!strings.Contains(logs.String(), "level=ERROR") || !strings.Contains(logs.String(), tt.wantLog)):
				t.Errorf("logs missing error entry with %q:\n%s", tt.wantLog, logs.String())
			}
		})
	}
}

func TestValidityHandler_MissingID(t *testing.T) {
	v := &mockValidator{}
	w := httptest.NewRecorder()
	New(v).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	var got common.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got.Error != "invalid_request" {
		t.Errorf("error = %q, want invalid_request", got.Error)
	}
	if len(v.ids) != 0 {
		t.Error("validator called without id")
	}
}
