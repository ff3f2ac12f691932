package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/fieldmemo/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"FIELDMEMO_PORT", "FIELDMEMO_HOST", "FIELDMEMO_STORAGE_ENGINE", "FIELDMEMO_DATA_PATH",
		"FIELDMEMO_POSTGRES_DSN", "FIELDMEMO_SECURITY_MODE", "FIELDMEMO_API_TOKEN",
		"FIELDMEMO_LOG_LEVEL", "FIELDMEMO_LOG_FORMAT", "FIELDMEMO_COMPONENTS_FILE",
		"FIELDMEMO_BREAKER_MAX_FAILURES", "FIELDMEMO_BREAKER_TIMEOUT",
		"FIELDMEMO_RATE_LIMIT_RPS", "FIELDMEMO_RATE_LIMIT_BURST",
	} {
		// t.Setenv registers the restore; Unsetenv then clears it for the test.
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host, "Default host must be 127.0.0.1 for security")
	assert.Equal(t, 6464, cfg.Server.Port)
	assert.Equal(t, config.EngineSQLite, cfg.Storage.StorageEngine)
	assert.Equal(t, filepath.Join("./data", "fieldmemo.db"), cfg.SQLitePath())
	assert.Equal(t, config.ModeDevelopment, cfg.Security.SecurityMode)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 5, cfg.Ingest.BreakerMaxFailures)
	assert.Equal(t, 30*time.Second, cfg.Ingest.BreakerTimeout)
	assert.Equal(t, 10.0, cfg.RateLimit.RPS)
	assert.Equal(t, 20, cfg.RateLimit.Burst)
	assert.Equal(t, "127.0.0.1:6464", cfg.Addr())
}

func TestLoadConfig_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("FIELDMEMO_HOST", "0.0.0.0")
	t.Setenv("FIELDMEMO_PORT", "8080")
	t.Setenv("FIELDMEMO_LOG_FORMAT", "json")
	t.Setenv("FIELDMEMO_COMPONENTS_FILE", "/etc/fieldmemo/components.yaml")
	t.Setenv("FIELDMEMO_BREAKER_TIMEOUT", "2m")
	t.Setenv("FIELDMEMO_RATE_LIMIT_RPS", "2.5")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/etc/fieldmemo/components.yaml", cfg.Ingest.ComponentsFile)
	assert.Equal(t, 2*time.Minute, cfg.Ingest.BreakerTimeout)
	assert.Equal(t, 2.5, cfg.RateLimit.RPS)
}

func TestLoadConfig_UnparsableValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("FIELDMEMO_BREAKER_MAX_FAILURES", "many")
	t.Setenv("FIELDMEMO_BREAKER_TIMEOUT", "soon")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Ingest.BreakerMaxFailures)
	assert.Equal(t, 30*time.Second, cfg.Ingest.BreakerTimeout)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown engine", map[string]string{"FIELDMEMO_STORAGE_ENGINE": "mysql"}},
		{"postgres without dsn", map[string]string{"FIELDMEMO_STORAGE_ENGINE": "postgres"}},
		{"production without token", map[string]string{"FIELDMEMO_SECURITY_MODE": "production"}},
		{"unknown mode", map[string]string{"FIELDMEMO_SECURITY_MODE": "open"}},
		{"port out of range", map[string]string{"FIELDMEMO_PORT": "70000"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_ProductionWithToken(t *testing.T) {
	clearEnv(t)
	t.Setenv("FIELDMEMO_SECURITY_MODE", "production")
	t.Setenv("FIELDMEMO_API_TOKEN", "s3cret")
	t.Setenv("FIELDMEMO_STORAGE_ENGINE", "postgres")
	t.Setenv("FIELDMEMO_POSTGRES_DSN", "postgres://localhost/fieldmemo")

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, config.EnginePostgres, cfg.Storage.StorageEngine)
}
