package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wrale/oauth2-authcode-proxy/cmd/oauth2-authcode-proxy/handlers/callback"
	"github.com/wrale/oauth2-authcode-proxy/cmd/oauth2-authcode-proxy/handlers/health"
	"github.com/wrale/oauth2-authcode-proxy/cmd/oauth2-authcode-proxy/handlers/sessions"
	"github.com/wrale/oauth2-authcode-proxy/internal/authflow"
	"github.com/wrale/oauth2-authcode-proxy/internal/authsession"
	"github.com/wrale/oauth2-authcode-proxy/internal/provider"
	"github.com/wrale/oauth2-authcode-proxy/internal/session"
	"github.com/wrale/oauth2-authcode-proxy/internal/templates"
)

type serverDeps struct {
	logger       *slog.Logger
	controller   *authflow.Controller
	providers    provider.Repository
	sessions     *session.Manager
	authSessions authsession.Repository
}

type server struct {
	router *chi.Mux
}

func newServer(deps serverDeps) (*server, error) {
	tmpls, err := templates.LoadTemplates()
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	srv := &server{router: chi.NewRouter()}

	srv.router.Use(middleware.Logger)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(middleware.RealIP)
	srv.router.Use(middleware.Timeout(30 * time.Second))

	healthHandler := health.New(map[string]health.Checker{
		"redis":    deps.sessions,
		"postgres": deps.authSessions,
	}).WithVersion(Version)

	callbackHandler := callback.New(callback.Config{
		Flow:      deps.controller,
		Providers: deps.providers,
		Sessions: callback.SessionLoaderFunc(func(w http.ResponseWriter, r *http.Request) (session.Store, error) {
			return deps.sessions.Load(w, r)
		}),
		Templates: tmpls,
		Logger:    deps.logger,
	})

	validityHandler := sessions.New(deps.controller).WithLogger(deps.logger)

	mount(srv.router, healthHandler, callbackHandler, validityHandler)

	return srv, nil
}

// mount registers the routes. Session validity lives outside /oauth so every
// provider name stays routable.
func mount(r chi.Router, healthCheck, flow, validity http.Handler) {
	r.Get("/health", healthCheck.ServeHTTP)
	r.Get("/sessions/{id}", validity.ServeHTTP)
	r.Get("/oauth/{provider}", flow.ServeHTTP)
}
