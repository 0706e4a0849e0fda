package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"porter/internal/repository"
)

const credentialPrefix = "credential:"

// CredentialStore persists the session token in Redis. Keys never expire;
// token lifetime is the backend's concern.
type CredentialStore struct {
	client *redis.Client
	key    string
}

// NewCredentialStore creates a new CredentialStore. namespace separates
// clients that share one Redis instance.
func NewCredentialStore(client *redis.Client, namespace string) *CredentialStore {
	key := credentialPrefix + repository.TokenKey
	if namespace != "" {
		key = credentialPrefix + namespace + ":" + repository.TokenKey
	}
	return &CredentialStore{client: client, key: key}
}

// Save stores the token.
func (s *CredentialStore) Save(ctx context.Context, token string) error {
	return s.client.Set(ctx, s.key, token, 0).Err()
}

// Load retrieves the token.
func (s *CredentialStore) Load(ctx context.Context) (string, error) {
	token, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", repository.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return token, nil
}

// Clear removes the token.
func (s *CredentialStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
