package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"porter/internal/config"
	internalRedis "porter/internal/redis"
	"porter/internal/repository"
	"porter/internal/repository/file"
	"porter/internal/repository/postgres"
)

// Storage holds the credential repository and the connections behind it.
type Storage struct {
	Credentials repository.CredentialRepository
	Redis       *redis.Client // nil unless Redis is configured
	DB          *sql.DB       // nil unless the postgres backend is selected
}

// NewStorage builds the credential repository selected by configuration.
func NewStorage(ctx context.Context, cfg *config.Config, nrApp *newrelic.Application) (*Storage, error) {
	s := &Storage{}

	if cfg.Redis.Enabled || cfg.Credential.Backend == config.CredentialBackendRedis {
		client, err := NewRedisClient(ctx, cfg.Redis, nrApp)
		if err != nil {
			return nil, err
		}
		s.Redis = client
		log.Println("Connected to Redis")
	}

	switch cfg.Credential.Backend {
	case config.CredentialBackendFile:
		repo, err := file.NewCredentialRepository(cfg.Credential.File, cfg.Credential.Key)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Credentials = repo
		log.Printf("Storing credentials in %s (sealed=%t)", cfg.Credential.File, len(cfg.Credential.Key) > 0)

	case config.CredentialBackendRedis:
		s.Credentials = internalRedis.NewCredentialStore(s.Redis, cfg.Credential.Namespace)

	case config.CredentialBackendPostgres:
		db, err := NewDatabase(ctx, cfg.Database, nrApp)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.DB = db
		log.Println("Connected to PostgreSQL")

		repo := postgres.NewCredentialRepository(db, cfg.Credential.Namespace)
		if err := repo.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to prepare credentials table: %w", err)
		}
		s.Credentials = repo

	default:
		s.Close()
		return nil, fmt.Errorf("unknown credential backend %q", cfg.Credential.Backend)
	}

	return s, nil
}

// Close releases the underlying connections.
func (s *Storage) Close() {
	if s.Redis != nil {
		s.Redis.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
