package authflow

import (
	"log/slog"
	"time"

	"github.com/wrale/oauth2-authcode-proxy/internal/csrf"
)

// Option configures the controller
type Option func(*Controller)

// WithClock sets the time source used for expiry calculations
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithLogger sets the logger. Misconfiguration errors are always logged here
// with the provider context before being reduced to a generic message.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithStateGenerator sets the anti-forgery state generator
func WithStateGenerator(g csrf.Generator) Option {
	return func(c *Controller) {
		c.states = g
	}
}

// WithDefaultRefreshLifetime sets the refresh token lifetime assumed when neither
// the token response nor the provider specifies one
func WithDefaultRefreshLifetime(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.refreshLifetime = d
		}
	}
}
