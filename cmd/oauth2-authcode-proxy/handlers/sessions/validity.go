// Package sessions exposes auth session state over HTTP
package sessions

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wrale/oauth2-authcode-proxy/cmd/oauth2-authcode-proxy/handlers/common"
	"github.com/wrale/oauth2-authcode-proxy/internal/oauth"
)

// Validator reports whether an auth session is usable, refreshing it if needed
type Validator interface {
	IsSessionValid(ctx context.Context, id string) (bool, error)
}

// Response is the validity response body
type Response struct {
	Valid bool `json:"valid"`
}

// Handler serves GET /sessions/{id}
type Handler struct {
	validator Validator
	logger    *slog.Logger
}

// New creates a session validity handler
func New(v Validator) *Handler {
	return &Handler{validator: v, logger: slog.Default()}
}

// WithLogger sets the logger for failed checks
func (h *Handler) WithLogger(logger *slog.Logger) *Handler {
	h.logger = logger
	return h
}

// ServeHTTP handles validity checks
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		common.WriteError(w, http.StatusBadRequest, "invalid_request", "The session id is REQUIRED")
		return
	}

	valid, err := h.validator.IsSessionValid(r.Context(), id)
	if err != nil {
		if oauth.KindOf(err) == oauth.KindInternal {
			h.logger.Error("checking session validity", "session_id", id, "error", err)
		}
		common.WriteFlowError(w, err)
		return
	}

	common.WriteJSON(w, http.StatusOK, Response{Valid: valid})
}
