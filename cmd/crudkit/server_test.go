package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func testConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		DataDir: t.TempDir(),
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            0,
			ShutdownTimeout: 5 * time.Second,
		},
		Database: DatabaseConfig{Driver: "memory"},
		API:      APIConfig{Root: "api", Router: "chi"},
		Metrics:  MetricsConfig{Enabled: true},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

// =============================================================================
// NewServer Tests
// =============================================================================

func TestNewServer_Memory(t *testing.T) {
	s, err := NewServer(testConfig(t), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Shutdown(context.Background()) })

	rec := get(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, s.Handler(), "/api/widgets")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = get(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestNewServer_SQLiteCreatesDataDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "sqlite3"
	cfg.Database.DSN = filepath.Join(cfg.DataDir, "nested", "crudkit.db")

	s, err := NewServer(cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Shutdown(context.Background()) })

	_, err = os.Stat(filepath.Join(cfg.DataDir, "nested"))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/ready").Code)
}

func TestNewServer_Seeds(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Seeds = filepath.Join(cfg.DataDir, "seeds.yaml")
	require.NoError(t, os.WriteFile(cfg.Database.Seeds, []byte("widgets:\n  - name: Sprocket\n"), 0644))

	s, err := NewServer(cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Shutdown(context.Background()) })

	rec := get(t, s.Handler(), "/api/widgets")
	assert.Contains(t, rec.Body.String(), "Sprocket")
}

func TestNewServer_Errors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(cfg *Config)
		exitCode int
	}{
		{
			name:     "unsupported driver",
			mutate:   func(cfg *Config) { cfg.Database.Driver = "oracle" },
			exitCode: ExitDatabaseError,
		},
		{
			name: "invalid seeds",
			mutate: func(cfg *Config) {
				cfg.Database.Seeds = filepath.Join(cfg.DataDir, "seeds.yaml")
				os.WriteFile(cfg.Database.Seeds, []byte("widgets:\n  - name: \"\"\n"), 0644)
			},
			exitCode: ExitSeedError,
		},
		{
			name: "missing seeds",
			mutate: func(cfg *Config) {
				cfg.Database.Seeds = filepath.Join(cfg.DataDir, "absent.yaml")
			},
			exitCode: ExitSeedError,
		},
		{
			name:     "unknown router",
			mutate:   func(cfg *Config) { cfg.API.Router = "gin" },
			exitCode: ExitConfigError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)

			_, err := NewServer(cfg, discardLogger())
			require.Error(t, err)

			var serverErr *ServerError
			require.True(t, errors.As(err, &serverErr))
			assert.Equal(t, tt.exitCode, serverErr.ExitCode)
		})
	}
}

func TestNewServer_AuthSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.Secret = "shared"

	s, err := NewServer(cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Shutdown(context.Background()) })

	assert.Equal(t, http.StatusUnauthorized, get(t, s.Handler(), "/api/widgets").Code)
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/health").Code)
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestServer_StartStopsOnContextCancel(t *testing.T) {
	s, err := NewServer(testConfig(t), discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

// =============================================================================
// ServerError Tests
// =============================================================================

func TestServerError(t *testing.T) {
	cause := errors.New("boom")
	err := &ServerError{Op: "Start", Err: cause, ExitCode: ExitHTTPServerError}

	assert.Equal(t, "Start: boom", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestEnsureDataDir_SkipsNonFileDSN(t *testing.T) {
	for _, cfg := range []DatabaseConfig{
		{Driver: "memory", DSN: "/should/not/exist/db"},
		{Driver: "sqlite3", DSN: ":memory:"},
		{Driver: "pgx", DSN: "postgres://localhost/db"},
	} {
		assert.NoError(t, ensureDataDir(cfg))
	}
	_, err := os.Stat("/should/not/exist")
	assert.True(t, os.IsNotExist(err))
}
