package main

import "time"

// Config holds server configuration loaded from environment variables
type Config struct {
	Port              int           `envconfig:"PORT" default:"8080"`
	RedisURL          string        `envconfig:"REDIS_URL" required:"true"`
	DatabaseURL       string        `envconfig:"DATABASE_URL" required:"true"`
	CookieSecret      string        `envconfig:"COOKIE_SECRET" required:"true"`
	CookieSecure      bool          `envconfig:"COOKIE_SECURE" default:"true"`
	SessionTTL        time.Duration `envconfig:"SESSION_TTL" default:"1h"`
	TokenTimeout      time.Duration `envconfig:"TOKEN_TIMEOUT" default:"10s"`
	RefreshLifetime   time.Duration `envconfig:"DEFAULT_REFRESH_LIFETIME" default:"1440h"`
	ProviderCacheSize int           `envconfig:"PROVIDER_CACHE_SIZE" default:"64"`
	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"5s"`
	ReadTimeout       time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout      time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout       time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
}
