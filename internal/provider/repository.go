// Package provider loads authorization server configuration
package provider

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/wrale/oauth2-authcode-proxy/internal/oauth"
)

// Repository looks providers up by name or id. Both return oauth.ErrNotFound
// when there is no such provider.
type Repository interface {
	FindByName(ctx context.Context, name string) (*oauth.Provider, error)
	FindByID(ctx context.Context, id string) (*oauth.Provider, error)
}

const selectProvider = `
	SELECT
		id, name, authorization_endpoint, token_endpoint,
		client_id, client_secret, scope, redirect_uri, local_redirect,
		error_field, account_id_field, refresh_lifetime_seconds
	FROM oauth_providers
`

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgreSQL-backed provider repository
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindByName retrieves a provider by its unique name
func (r *PostgresRepository) FindByName(ctx context.Context, name string) (*oauth.Provider, error) {
	p, err := r.scan(r.db.QueryRowContext(ctx, selectProvider+"WHERE name = $1", name))
	if err != nil {
		return nil, fmt.Errorf("getting provider %q: %w", name, err)
	}
	return p, nil
}

// FindByID retrieves a provider by id
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*oauth.Provider, error) {
	p, err := r.scan(r.db.QueryRowContext(ctx, selectProvider+"WHERE id::text = $1", id))
	if err != nil {
		return nil, fmt.Errorf("getting provider %s: %w", id, err)
	}
	return p, nil
}

func (r *PostgresRepository) scan(row *sql.Row) (*oauth.Provider, error) {
	var p oauth.Provider
	var scope, redirectURI, errorField, accountIDField sql.NullString
	var refreshLifetime sql.NullInt64

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.AuthorizationEndpoint,
		&p.TokenEndpoint,
		&p.ClientID,
		&p.ClientSecret,
		&scope,
		&redirectURI,
		&p.LocalRedirect,
		&errorField,
		&accountIDField,
		&refreshLifetime,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oauth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.Scope = scope.String
	p.RedirectURI = redirectURI.String
	p.ErrorField = errorField.String
	p.AccountIDField = accountIDField.String
	if refreshLifetime.Valid {
		p.RefreshLifetime = time.Duration(refreshLifetime.Int64) * time.Second
	}

	return &p, nil
}

// Create inserts a provider and sets its id
func (r *PostgresRepository) Create(ctx context.Context, p *oauth.Provider) error {
	query := `
		INSERT INTO oauth_providers (
			name, authorization_endpoint, token_endpoint,
			client_id, client_secret, scope, redirect_uri, local_redirect,
			error_field, account_id_field, refresh_lifetime_seconds
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	var refreshLifetime sql.NullInt64
	if p.RefreshLifetime > 0 {
		refreshLifetime = sql.NullInt64{Int64: int64(p.RefreshLifetime.Seconds()), Valid: true}
	}

	err := r.db.QueryRowContext(ctx, query,
		p.Name,
		p.AuthorizationEndpoint,
		p.TokenEndpoint,
		p.ClientID,
		p.ClientSecret,
		nullString(p.Scope),
		nullString(p.RedirectURI),
		p.LocalRedirect,
		nullString(p.ErrorField),
		nullString(p.AccountIDField),
		refreshLifetime,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("creating provider %q: %w", p.Name, err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
