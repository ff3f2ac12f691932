// Package config provides configuration management for fieldmemo.
// It loads settings from environment variables with the FIELDMEMO_ prefix
// and provides sensible defaults for all configuration options.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Storage engines.
const (
	EngineSQLite   = "sqlite"
	EnginePostgres = "postgres"
)

// Security modes.
const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

// Config holds all configuration settings for fieldmemo.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Security  SecurityConfig
	Logging   LoggingConfig
	Ingest    IngestConfig
	RateLimit RateLimitConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    // Server port (default: 6464)
	Host string // Server host (default: 127.0.0.1)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	StorageEngine string // Storage engine type: sqlite, postgres (default: sqlite)
	DataPath      string // Path to data directory (default: ./data)
	PostgresDSN   string // Connection string, required for the postgres engine
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	SecurityMode string // Security mode: development, production (default: development)
	APIToken     string // API authentication token
}

// LoggingConfig controls zerolog output.
type LoggingConfig struct {
	Level  string // debug, info, warn, error (default: info)
	Format string // console, json (default: console)
}

// IngestConfig contains ingestion settings.
type IngestConfig struct {
	ComponentsFile     string        // YAML registry seeded at startup, optional
	BreakerMaxFailures int           // Consecutive store failures before failing fast (default: 5)
	BreakerTimeout     time.Duration // Open period before a trial request (default: 30s)
}

// RateLimitConfig controls the HTTP token bucket.
type RateLimitConfig struct {
	RPS   float64 // Requests per second (default: 10)
	Burst int     // Bucket size (default: 20)
}

// LoadConfig loads configuration from environment variables with sensible
// defaults and validates the result.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvInt("FIELDMEMO_PORT", 6464),
			Host: getEnv("FIELDMEMO_HOST", "127.0.0.1"),
		},
		Storage: StorageConfig{
			StorageEngine: getEnv("FIELDMEMO_STORAGE_ENGINE", EngineSQLite),
			DataPath:      getEnv("FIELDMEMO_DATA_PATH", "./data"),
			PostgresDSN:   getEnv("FIELDMEMO_POSTGRES_DSN", ""),
		},
		Security: SecurityConfig{
			SecurityMode: getEnv("FIELDMEMO_SECURITY_MODE", ModeDevelopment),
			APIToken:     getEnv("FIELDMEMO_API_TOKEN", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("FIELDMEMO_LOG_LEVEL", "info"),
			Format: getEnv("FIELDMEMO_LOG_FORMAT", "console"),
		},
		Ingest: IngestConfig{
			ComponentsFile:     getEnv("FIELDMEMO_COMPONENTS_FILE", ""),
			BreakerMaxFailures: getEnvInt("FIELDMEMO_BREAKER_MAX_FAILURES", 5),
			BreakerTimeout:     getEnvDuration("FIELDMEMO_BREAKER_TIMEOUT", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			RPS:   getEnvFloat("FIELDMEMO_RATE_LIMIT_RPS", 10),
			Burst: getEnvInt("FIELDMEMO_RATE_LIMIT_BURST", 20),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail later at startup.
func (c *Config) Validate() error {
	switch c.Storage.StorageEngine {
	case EngineSQLite:
	case EnginePostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("config: FIELDMEMO_POSTGRES_DSN is required for the postgres storage engine")
		}
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.StorageEngine)
	}

	switch c.Security.SecurityMode {
	case ModeDevelopment:
	case ModeProduction:
		if c.Security.APIToken == "" {
			return errors.New("config: FIELDMEMO_API_TOKEN is required in production mode")
		}
	default:
		return fmt.Errorf("config: unknown security mode %q", c.Security.SecurityMode)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Server.Port)
	}
	return nil
}

// Addr returns the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// SQLitePath returns the database file inside the data directory.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.Storage.DataPath, "fieldmemo.db")
}

// IsProduction reports whether API authentication is enforced.
func (c *Config) IsProduction() bool {
	return c.Security.SecurityMode == ModeProduction
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value.
// If the environment variable exists but cannot be parsed as an integer,
// it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("45s", "2m").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
