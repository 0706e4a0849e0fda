package repository

import "context"

// TokenKey is the well-known key under which the session token is persisted.
const TokenKey = "session_token"

// CredentialRepository persists a single opaque authentication token.
type CredentialRepository interface {
	// Save stores the token, replacing any previous value.
	Save(ctx context.Context, token string) error

	// Load returns the stored token, or ErrNotFound when none is stored.
	Load(ctx context.Context) (string, error)

	// Clear removes the stored token. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}
