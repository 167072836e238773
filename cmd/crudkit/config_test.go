package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoadConfig_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "data/crudkit.db", cfg.Database.DSN)
	assert.Empty(t, cfg.Database.Seeds)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.Auth.Secret)
	assert.Equal(t, "api", cfg.API.Root)
	assert.Equal(t, "chi", cfg.API.Router)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)

	configContent := `
server:
  host: "127.0.0.1"
  port: 9000
  read_timeout: 60s
  shutdown_timeout: 15s

database:
  driver: memory
  seeds: /etc/crudkit/seeds.yaml

log:
  level: "debug"
  format: "text"

auth:
  secret: s3cret
  issuer: crudkit

api:
  root: /v1
  router: mux

metrics:
  enabled: false
`
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Empty(t, cfg.Database.DSN, "memory driver needs no DSN")
	assert.Equal(t, "/etc/crudkit/seeds.yaml", cfg.Database.Seeds)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "s3cret", cfg.Auth.Secret)
	assert.Equal(t, "crudkit", cfg.Auth.Issuer)
	assert.Equal(t, "/v1", cfg.API.Root)
	assert.Equal(t, "mux", cfg.API.Router)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)

	t.Setenv("CRUDKIT_SERVER_HOST", "192.168.1.1")
	t.Setenv("CRUDKIT_SERVER_PORT", "3000")
	t.Setenv("CRUDKIT_DATABASE_DSN", "/custom/path.db")
	t.Setenv("CRUDKIT_LOG_LEVEL", "warn")
	t.Setenv("CRUDKIT_AUTH_SECRET", "from-env")
	t.Setenv("CRUDKIT_API_ROUTER", "mux")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.1", cfg.Server.Host)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "/custom/path.db", cfg.Database.DSN)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "from-env", cfg.Auth.Secret)
	assert.Equal(t, "mux", cfg.API.Router)
}

func TestLoadConfig_DataDirDerivesDSN(t *testing.T) {
	clearEnv(t)

	t.Setenv("CRUDKIT_DATA_DIR", "/var/lib/crudkit")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/crudkit/crudkit.db", cfg.Database.DSN)
}

func TestLoadConfig_ExplicitDSNOverridesDataDir(t *testing.T) {
	clearEnv(t)

	t.Setenv("CRUDKIT_DATA_DIR", "/var/lib/crudkit")
	t.Setenv("CRUDKIT_DATABASE_DSN", "/custom/path.db")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "/custom/path.db", cfg.Database.DSN)
}

func TestLoadConfig_FileNotFound_UsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	clearEnv(t)

	tmpFile := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("invalid: yaml: content: [[["), 0644))

	_, err := LoadConfig(tmpFile)
	assert.Error(t, err)
}

// =============================================================================
// Logger Setup Tests
// =============================================================================

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		level  string
		format string
		want   slog.Level
	}{
		{"info", "json", slog.LevelInfo},
		{"info", "text", slog.LevelInfo},
		{"debug", "json", slog.LevelDebug},
		{"DEBUG", "TEXT", slog.LevelDebug},
		{"warn", "json", slog.LevelWarn},
		{"warning", "text", slog.LevelWarn},
		{"error", "json", slog.LevelError},
		{"invalid", "json", slog.LevelInfo},
		{"", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			logger := SetupLogger(&Config{Log: LogConfig{Level: tt.level, Format: tt.format}})
			require.NotNil(t, logger)

			ctx := context.Background()
			assert.True(t, logger.Enabled(ctx, tt.want))
			assert.False(t, logger.Enabled(ctx, tt.want-1))
		})
	}
}

// =============================================================================
// Config Validation Tests
// =============================================================================

func TestConfig_Address(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
	}

	assert.Equal(t, "localhost:8080", cfg.Server.Address())
}

// =============================================================================
// Test Helpers
// =============================================================================

func clearEnv(t *testing.T) {
	t.Helper()
	envVars := []string{
		"CRUDKIT_SERVER_HOST",
		"CRUDKIT_SERVER_PORT",
		"CRUDKIT_DATABASE_DRIVER",
		"CRUDKIT_DATABASE_DSN",
		"CRUDKIT_DATABASE_SEEDS",
		"CRUDKIT_DATA_DIR",
		"CRUDKIT_LOG_LEVEL",
		"CRUDKIT_LOG_FORMAT",
		"CRUDKIT_AUTH_SECRET",
		"CRUDKIT_API_ROOT",
		"CRUDKIT_API_ROUTER",
		"CRUDKIT_METRICS_ENABLED",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}
}
