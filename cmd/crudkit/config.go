package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	DataDir  string         `mapstructure:"data_dir"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Auth     AuthConfig     `mapstructure:"auth"`
	API      APIConfig      `mapstructure:"api"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	// Driver is "sqlite3", "pgx" or "memory".
	Driver string `mapstructure:"driver"`

	// DSN defaults to {data_dir}/crudkit.db for sqlite3.
	DSN string `mapstructure:"dsn"`

	// Seeds is an optional YAML seed file applied at startup.
	Seeds string `mapstructure:"seeds"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuthConfig holds bearer authentication configuration.
// Authentication is disabled when Secret is empty.
type AuthConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// APIConfig holds API routing configuration.
type APIConfig struct {
	Root      string `mapstructure:"root"`
	Router    string `mapstructure:"router"`
	PublicURL string `mapstructure:"public_url"`
}

// MetricsConfig holds Prometheus configuration.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("data_dir", "./data")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.seeds", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("api.root", "api")
	v.SetDefault("api.router", "chi")
	v.SetDefault("api.public_url", "")
	v.SetDefault("metrics.enabled", true)

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var parseErr viper.ConfigParseError
			if errors.As(err, &parseErr) {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("CRUDKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite3" {
		cfg.Database.DSN = filepath.Join(cfg.DataDir, "crudkit.db")
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
// Unknown levels fall back to info; any format other than "text" is JSON.
func SetupLogger(cfg *Config) *slog.Logger {
	level := slog.LevelInfo
	name := strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if name == "warning" {
		name = "warn"
	}
	if name != "" {
		if err := level.UnmarshalText([]byte(name)); err != nil {
			level = slog.LevelInfo
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Log.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
