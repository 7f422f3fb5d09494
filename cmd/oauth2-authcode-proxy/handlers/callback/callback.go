// Package callback serves the provider route that both starts the
// authorization code flow and receives the provider's redirect back
package callback

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"

	"github.com/wrale/oauth2-authcode-proxy/cmd/oauth2-authcode-proxy/handlers/common"
	"github.com/wrale/oauth2-authcode-proxy/internal/authflow"
	"github.com/wrale/oauth2-authcode-proxy/internal/oauth"
	"github.com/wrale/oauth2-authcode-proxy/internal/session"
	"github.com/wrale/oauth2-authcode-proxy/internal/templates"
)

// Flow runs a callback step for a provider
type Flow interface {
	HandleCallback(ctx context.Context, store session.Store, redirect authflow.Redirector, p *oauth.Provider, query url.Values) (*oauth2.Token, error)
}

// ProviderFinder resolves a provider by its route name
type ProviderFinder interface {
	FindByName(ctx context.Context, name string) (*oauth.Provider, error)
}

// SessionLoader resolves the caller's web session store
type SessionLoader interface {
	Load(w http.ResponseWriter, r *http.Request) (session.Store, error)
}

// SessionLoaderFunc adapts a function to SessionLoader
type SessionLoaderFunc func(w http.ResponseWriter, r *http.Request) (session.Store, error)

// Load calls f(w, r)
func (f SessionLoaderFunc) Load(w http.ResponseWriter, r *http.Request) (session.Store, error) {
	return f(w, r)
}

// ErrorRenderer renders the HTML error page
type ErrorRenderer interface {
	RenderError(w http.ResponseWriter, status int, data templates.ErrorData) error
}

// Config contains handler dependencies
type Config struct {
	Flow      Flow
	Providers ProviderFinder
	Sessions  SessionLoader
	Templates ErrorRenderer
	Logger    *slog.Logger
}

// Handler serves GET /oauth/{provider}
type Handler struct {
	flow      Flow
	providers ProviderFinder
	sessions  SessionLoader
	templates ErrorRenderer
	logger    *slog.Logger
}

// New creates a callback handler
func New(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		flow:      cfg.Flow,
		providers: cfg.Providers,
		sessions:  cfg.Sessions,
		templates: cfg.Templates,
		logger:    logger,
	}
}

// ServeHTTP resolves the provider and caller session, then hands the query
// to the flow. The flow issues any redirect itself.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")

	p, err := h.providers.FindByName(r.Context(), name)
	if err != nil {
		if !errors.Is(err, oauth.ErrNotFound) {
			h.logger.Error("loading provider", "provider", name, "error", err)
		}
		h.renderError(w, name, err)
		return
	}

	store, err := h.sessions.Load(w, r)
	if err != nil {
		h.logger.Error("loading session", "provider", name, "error", err)
		h.renderError(w, name, err)
		return
	}

	redirect := &httpRedirector{w: w, r: r}
	if _, err := h.flow.HandleCallback(r.Context(), store, redirect, p, r.URL.Query()); err != nil {
		if oauth.KindOf(err) == oauth.KindInternal {
			h.logger.Error("handling callback", "provider", name, "error", err)
		}
		h.renderError(w, name, err)
		return
	}

	if !redirect.done {
		// Every successful step redirects
		h.logger.Error("callback finished without redirect", "provider", name)
		h.renderError(w, name, errors.New("no redirect issued"))
	}
}

func (h *Handler) renderError(w http.ResponseWriter, provider string, err error) {
	kind := oauth.KindOf(err)

	data := templates.ErrorData{
		Title:   "Authorization Failed",
		Message: kind.Message(),
	}
	if kind == oauth.KindInvalidState || kind == oauth.KindGrantInvalid {
		data.RetryURL = "/oauth/" + url.PathEscape(provider)
	}

	if err := h.templates.RenderError(w, common.StatusFor(kind), data); err != nil {
		h.logger.Error("rendering error page", "error", err)
		http.Error(w, "error rendering page", http.StatusInternalServerError)
	}
}

// httpRedirector answers the request with a 302 to the target
type httpRedirector struct {
	w    http.ResponseWriter
	r    *http.Request
	done bool
}

func (h *httpRedirector) RedirectTo(target string) {
	http.Redirect(h.w, h.r, target, http.StatusFound)
	h.done = true
}
