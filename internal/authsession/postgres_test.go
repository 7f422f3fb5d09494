package authsession

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrale/oauth2-authcode-proxy/internal/migrations"
	"github.com/wrale/oauth2-authcode-proxy/internal/oauth"
	"github.com/wrale/oauth2-authcode-proxy/internal/provider"
)

func setupTestDB(t *testing.T) (*sql.DB, string) {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sql.Open("postgres", dbURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, migrations.Up(db))

	p := &oauth.Provider{
		Name:                  "bungie-" + uuid.NewString(),
		AuthorizationEndpoint: "https://www.bungie.net/en/OAuth/Authorize?response_type=code",
		TokenEndpoint:         "https://www.bungie.net/platform/app/oauth/token/",
		ClientID:              "client",
		ClientSecret:          "secret",
		LocalRedirect:         "/",
	}
	require.NoError(t, provider.NewPostgresRepository(db).Create(context.Background(), p))

	return db, p.ID
}

func TestPostgresRepository_SaveFind(t *testing.T) {
	ctx := context.Background()
	db, providerID := setupTestDB(t)
	repo := NewPostgresRepository(db)

	now := time.Now().UTC().Truncate(time.Microsecond)
	s := &AuthSession{
		AccessToken:   "a1",
		RefreshToken:  "r1",
		AccessExpiry:  now.Add(time.Hour),
		RefreshExpiry: now.Add(60 * 24 * time.Hour),
		ProviderID:    providerID,
		Identifier:    "4611686018",
	}

	id, err := repo.Save(ctx, s)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := repo.Find(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "a1", got.AccessToken)
	assert.Equal(t, "r1", got.RefreshToken)
	assert.True(t, got.AccessExpiry.Equal(s.AccessExpiry))
	assert.True(t, got.RefreshExpiry.Equal(s.RefreshExpiry))
	assert.Equal(t, providerID, got.ProviderID)
	assert.Equal(t, "4611686018", got.Identifier)
}

func TestPostgresRepository_FindMissing(t *testing.T) {
	ctx := context.Background()
	db, _ := setupTestDB(t)
	repo := NewPostgresRepository(db)

	got, err := repo.Find(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = repo.Find(ctx, "not-a-uuid")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPostgresRepository_UpdateConditional(t *testing.T) {
	ctx := context.Background()
	db, providerID := setupTestDB(t)
	repo := NewPostgresRepository(db)

	now := time.Now().UTC()
	s := &AuthSession{
		AccessToken:   "a1",
		RefreshToken:  "r1",
		AccessExpiry:  now,
		RefreshExpiry: now.Add(time.Hour),
		ProviderID:    providerID,
	}
	_, err := repo.Save(ctx, s)
	require.NoError(t, err)

	first := *s
	first.AccessToken, first.RefreshToken = "a2", "r2"
	require.NoError(t, repo.Update(ctx, &first, "r1"))

	// A second writer that also read r1 must lose
	second := *s
	second.AccessToken, second.RefreshToken = "a3", "r3"
	err = repo.Update(ctx, &second, "r1")
	assert.True(t, errors.Is(err, ErrConflict), "got %v", err)

	got, err := repo.Find(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "a2", got.AccessToken)
	assert.Equal(t, "r2", got.RefreshToken)
}
