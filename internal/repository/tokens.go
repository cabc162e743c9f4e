package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sodular/sodular-go/internal/token"
)

const tokensSchema = `
CREATE TABLE IF NOT EXISTS sodular_tokens (
	profile       TEXT PRIMARY KEY,
	access_token  TEXT NOT NULL,
	refresh_token TEXT NOT NULL DEFAULT '',
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// EnsureSchema creates the sodular_tokens table if it does not exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, tokensSchema); err != nil {
		return fmt.Errorf("failed to create sodular_tokens: %w", err)
	}
	return nil
}

// TokenStore keeps one profile's token pair in the sodular_tokens table.
type TokenStore struct {
	r       *Repository
	profile string
}

// TokenStore returns the token.Store for profile.
func (r *Repository) TokenStore(profile string) *TokenStore {
	if profile == "" {
		profile = "default"
	}
	return &TokenStore{r: r, profile: profile}
}

// Load returns the stored pair, or a zero pair if the profile has none.
func (s *TokenStore) Load(ctx context.Context) (token.Pair, error) {
	query := `
		SELECT access_token, refresh_token
		FROM sodular_tokens
		WHERE profile = $1
	`

	var p token.Pair
	err := s.r.pool.QueryRow(ctx, query, s.profile).Scan(&p.AccessToken, &p.RefreshToken)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return token.Pair{}, nil
		}
		return token.Pair{}, fmt.Errorf("failed to load tokens: %w", err)
	}
	return p, nil
}

// Save upserts the profile's pair.
func (s *TokenStore) Save(ctx context.Context, p token.Pair) error {
	query := `
		INSERT INTO sodular_tokens (profile, access_token, refresh_token, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (profile) DO UPDATE
		SET access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := s.r.pool.Exec(ctx, query, s.profile, p.AccessToken, p.RefreshToken); err != nil {
		return fmt.Errorf("failed to save tokens: %w", err)
	}
	return nil
}

// Clear deletes the profile's row.
func (s *TokenStore) Clear(ctx context.Context) error {
	if _, err := s.r.pool.Exec(ctx, `DELETE FROM sodular_tokens WHERE profile = $1`, s.profile); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	return nil
}

var _ token.Store = (*TokenStore)(nil)
