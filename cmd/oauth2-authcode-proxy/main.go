// Package main implements the OAuth 2.0 authorization code proxy server
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/wrale/oauth2-authcode-proxy/internal/authflow"
	"github.com/wrale/oauth2-authcode-proxy/internal/authsession"
	"github.com/wrale/oauth2-authcode-proxy/internal/migrations"
	"github.com/wrale/oauth2-authcode-proxy/internal/oauth"
	"github.com/wrale/oauth2-authcode-proxy/internal/provider"
	"github.com/wrale/oauth2-authcode-proxy/internal/session"
)

// Version is set by the build process
var Version = "dev"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	if err := run(logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// Load configuration from environment
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	// Create Redis client
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parsing Redis URL: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("closing Redis connection", "error", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connecting to Redis: %w", err)
	}

	// Open Postgres and apply migrations
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	if err := migrations.Up(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	providers, err := provider.NewCachedRepository(provider.NewPostgresRepository(db), cfg.ProviderCacheSize)
	if err != nil {
		return err
	}
	authSessions := authsession.NewPostgresRepository(db)

	exchanger, err := oauth.NewExchangeClient(oauth.WithTimeout(cfg.TokenTimeout))
	if err != nil {
		return fmt.Errorf("creating token client: %w", err)
	}

	controller := authflow.NewController(exchanger, authSessions, providers,
		authflow.WithLogger(logger),
		authflow.WithDefaultRefreshLifetime(cfg.RefreshLifetime),
	)

	cookies, err := session.NewCookieStore([]byte(cfg.CookieSecret), cfg.SessionTTL, cfg.CookieSecure)
	if err != nil {
		return fmt.Errorf("creating cookie store: %w", err)
	}
	sessions := session.NewManager(cookies, redisClient, cfg.SessionTTL)

	srv, err := newServer(serverDeps{
		logger:       logger,
		controller:   controller,
		providers:    providers,
		sessions:     sessions,
		authSessions: authSessions,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	// Channel to listen for errors coming from the server
	serverErrors := make(chan error, 1)

	go func() {
		logger.Info("server listening", "port", cfg.Port, "version", Version)
		serverErrors <- httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("starting server: %w", err)

	case sig := <-shutdown:
		logger.Info("starting shutdown", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Warn("graceful shutdown failed", "error", err)
			if err := httpServer.Close(); err != nil {
				return fmt.Errorf("closing server: %w", err)
			}
		}
	}

	return nil
}
