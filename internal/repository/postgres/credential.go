package postgres

import (
	"context"
	"database/sql"
	"errors"

	"porter/internal/repository"
)

// CredentialRepository is a PostgreSQL implementation of
// repository.CredentialRepository. Several clients may share one table as
// long as each uses its own key.
type CredentialRepository struct {
	q   Querier
	key string
}

// NewCredentialRepository creates a credential repository storing the token
// under key. An empty key falls back to repository.TokenKey.
func NewCredentialRepository(db *sql.DB, key string) *CredentialRepository {
	if key == "" {
		key = repository.TokenKey
	}
	return &CredentialRepository{q: db, key: key}
}

// EnsureSchema creates the credentials table if it does not exist.
func (r *CredentialRepository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS client_credentials (
			key        TEXT PRIMARY KEY,
			token      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	_, err := r.q.ExecContext(ctx, query)
	return err
}

// Save upserts the token.
func (r *CredentialRepository) Save(ctx context.Context, token string) error {
	query := `
		INSERT INTO client_credentials (key, token, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET token = EXCLUDED.token, updated_at = NOW()
	`
	_, err := r.q.ExecContext(ctx, query, r.key, token)
	return err
}

// Load retrieves the token.
func (r *CredentialRepository) Load(ctx context.Context) (string, error) {
	query := `SELECT token FROM client_credentials WHERE key = $1`

	var token string
	err := r.q.QueryRowContext(ctx, query, r.key).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return token, nil
}

// Clear deletes the token row.
func (r *CredentialRepository) Clear(ctx context.Context) error {
	query := `DELETE FROM client_credentials WHERE key = $1`
	_, err := r.q.ExecContext(ctx, query, r.key)
	return err
}

var _ repository.CredentialRepository = (*CredentialRepository)(nil)
