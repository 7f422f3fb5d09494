package authsession

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // postgres driver
)

// Token length bound to keep oversized provider responses out of the table
const maxTokenLength = 10000

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgreSQL-backed session repository
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Find retrieves a session by id
func (r *PostgresRepository) Find(ctx context.Context, id string) (*AuthSession, error) {
	// Ids are UUIDs; anything else cannot exist
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	query := `
		SELECT
			id, provider_id, access_token, refresh_token,
			access_expires_at, refresh_expires_at, identifier,
			created_at, updated_at
		FROM oauth_auth_sessions
		WHERE id = $1
	`

	var s AuthSession
	var identifier sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID,
		&s.ProviderID,
		&s.AccessToken,
		&s.RefreshToken,
		&s.AccessExpiry,
		&s.RefreshExpiry,
		&identifier,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting auth session: %w", err)
	}

	if identifier.Valid {
		s.Identifier = identifier.String
	}

	return &s, nil
}

// Save inserts a session, or replaces it when the id already exists
func (r *PostgresRepository) Save(ctx context.Context, s *AuthSession) (string, error) {
	if err := validate(s); err != nil {
		return "", err
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}

	query := `
		INSERT INTO oauth_auth_sessions (
			id, provider_id, access_token, refresh_token,
			access_expires_at, refresh_expires_at, identifier
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			provider_id = EXCLUDED.provider_id,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			access_expires_at = EXCLUDED.access_expires_at,
			refresh_expires_at = EXCLUDED.refresh_expires_at,
			identifier = EXCLUDED.identifier,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		s.ID,
		s.ProviderID,
		s.AccessToken,
		s.RefreshToken,
		s.AccessExpiry.UTC(),
		s.RefreshExpiry.UTC(),
		nullString(s.Identifier),
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return "", fmt.Errorf("saving auth session: %w", err)
	}

	return s.ID, nil
}

// Update applies refreshed tokens if no other writer refreshed the session first
func (r *PostgresRepository) Update(ctx context.Context, s *AuthSession, prevRefreshToken string) error {
	if err := validate(s); err != nil {
		return err
	}

	query := `
		UPDATE oauth_auth_sessions SET
			access_token = $2,
			refresh_token = $3,
			access_expires_at = $4,
			refresh_expires_at = $5,
			identifier = $6,
			updated_at = $7
		WHERE id = $1 AND refresh_token = $8
	`

	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, query,
		s.ID,
		s.AccessToken,
		s.RefreshToken,
		s.AccessExpiry.UTC(),
		s.RefreshExpiry.UTC(),
		nullString(s.Identifier),
		now,
		prevRefreshToken,
	)
	if err != nil {
		return fmt.Errorf("updating auth session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking updated rows: %w", err)
	}
	if rows == 0 {
		return ErrConflict
	}

	s.UpdatedAt = now
	return nil
}

// CheckHealth verifies database connectivity
func (r *PostgresRepository) CheckHealth(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres health check failed: %w", err)
	}
	return nil
}

func validate(s *AuthSession) error {
	if s.ProviderID == "" {
		return errors.New("provider_id cannot be empty")
	}
	if len(s.AccessToken) > maxTokenLength {
		return fmt.Errorf("access_token exceeds maximum length of %d characters", maxTokenLength)
	}
	if len(s.RefreshToken) > maxTokenLength {
		return fmt.Errorf("refresh_token exceeds maximum length of %d characters", maxTokenLength)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
