package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dalocar/tado-direct/internal/infrastructure/database"
)

// TokenStore persists a single token set across restarts.
type TokenStore interface {
	// Load returns the stored token set, or ErrNoToken if none exists.
	Load(ctx context.Context) (*TokenSet, error)
	// Save replaces the stored token set.
	Save(ctx context.Context, tokens *TokenSet) error
	// Clear removes the stored token set.
	Clear(ctx context.Context) error
}

// SQLiteStore keeps the token set in the oauth_tokens table (one row,
// id = 1). The database file itself is created 0600 because the refresh
// token grants full account access.
type SQLiteStore struct {
	db *database.DB
}

// NewSQLiteStore creates a store over an open database.
func NewSQLiteStore(db *database.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Load implements TokenStore.
func (s *SQLiteStore) Load(ctx context.Context) (*TokenSet, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT client_id, scope, access_token, refresh_token, expires_at
		FROM oauth_tokens WHERE id = 1`)

	var tokens TokenSet
	var expiresAt string
	err := row.Scan(&tokens.ClientID, &tokens.Scope, &tokens.AccessToken, &tokens.RefreshToken, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("loading token set: %w", err)
	}

	tokens.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("parsing stored expiry: %w", err)
	}
	tokens.TokenType = "bearer"
	return &tokens, nil
}

// Save implements TokenStore.
func (s *SQLiteStore) Save(ctx context.Context, tokens *TokenSet) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oauth_tokens (id, client_id, scope, access_token, refresh_token, expires_at, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			client_id = excluded.client_id,
			scope = excluded.scope,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		tokens.ClientID, tokens.Scope, tokens.AccessToken, tokens.RefreshToken,
		tokens.ExpiresAt.UTC().Format(time.RFC3339), now)
	if err != nil {
		return fmt.Errorf("saving token set: %w", err)
	}
	return nil
}

// Clear implements TokenStore.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE id = 1`); err != nil {
		return fmt.Errorf("clearing token set: %w", err)
	}
	return nil
}
