package authsession

import (
	"context"
	"errors"
)

// ErrConflict indicates a conditional update lost a race with another writer
var ErrConflict = errors.New("auth session modified concurrently")

// Repository defines persistence for authorized sessions
type Repository interface {
	// Find returns the session with the given id, or nil when there is none
	Find(ctx context.Context, id string) (*AuthSession, error)

	// Save inserts or replaces a session and returns its id
	Save(ctx context.Context, s *AuthSession) (string, error)

	// Update overwrites tokens and expiries only if the stored refresh token
	// still equals prevRefreshToken. Returns ErrConflict otherwise.
	Update(ctx context.Context, s *AuthSession, prevRefreshToken string) error

	// CheckHealth verifies the storage backend is healthy
	CheckHealth(ctx context.Context) error
}
