package config

import (
	"encoding/hex"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Credential backends.
const (
	CredentialBackendFile     = "file"
	CredentialBackendRedis    = "redis"
	CredentialBackendPostgres = "postgres"
)

// Config holds all configuration for the client.
type Config struct {
	API        APIConfig
	Server     ServerConfig
	Session    SessionConfig
	Credential CredentialConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	NewRelic   NewRelicConfig
}

// APIConfig holds backend API configuration.
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// ServerConfig holds the local view server configuration.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// SessionConfig holds session lifecycle settings.
type SessionConfig struct {
	VerifyTimeout time.Duration
	// GateWait bounds how long a protected view waits for startup verification.
	GateWait time.Duration
}

// CredentialConfig selects and configures the token persistence backend.
type CredentialConfig struct {
	Backend   string
	File      string
	Key       []byte // optional 32-byte secretbox key for the file backend
	Namespace string // prefixes the well-known key in shared backends
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis configuration. Redis is used when it is the
// credential backend or when Enabled is set for action replay protection.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// Load loads configuration from environment variables. A .env file in the
// working directory is read first when present; real environment variables win.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to read .env: %v", err)
	}

	return &Config{
		API: APIConfig{
			BaseURL: getEnv("API_BASE_URL", "http://localhost:8001"),
			Timeout: getDurationEnv("API_TIMEOUT", 15*time.Second),
		},
		Server: ServerConfig{
			Addr:         getEnv("SERVER_ADDR", "127.0.0.1:3000"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Session: SessionConfig{
			VerifyTimeout: getDurationEnv("VERIFY_TIMEOUT", 10*time.Second),
			GateWait:      getDurationEnv("GATE_WAIT", 5*time.Second),
		},
		Credential: CredentialConfig{
			Backend:   getEnv("CREDENTIAL_BACKEND", CredentialBackendFile),
			File:      getEnv("CREDENTIAL_FILE", defaultCredentialFile()),
			Key:       getHexEnv("CREDENTIAL_KEY"),
			Namespace: getEnv("CREDENTIAL_NAMESPACE", ""),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "porter_client"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "porter-client"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
	}
}

func defaultCredentialFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "porter", "credentials")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getHexEnv decodes a hex value. Malformed values are ignored with a warning.
func getHexEnv(key string) []byte {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	b, err := hex.DecodeString(value)
	if err != nil {
		log.Printf("ignoring %s: not valid hex", key)
		return nil
	}
	return b
}
