// Package config provides SDK and CLI configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Token store backends.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config holds all configuration.
// All fields are populated from environment variables.
type Config struct {
	// API endpoints
	BaseURL string `env:"SODULAR_BASE_URL" envDefault:"http://localhost:5005/api/v1"`
	// Realtime endpoint; derived from BaseURL when empty.
	WSURL string `env:"SODULAR_WS_URL"`

	DatabaseID string        `env:"SODULAR_DATABASE_ID"`
	Profile    string        `env:"SODULAR_PROFILE" envDefault:"default"`
	Timeout    time.Duration `env:"SODULAR_TIMEOUT" envDefault:"30s"`

	// Token persistence
	TokenStore      string `env:"SODULAR_TOKEN_STORE" envDefault:"file"`
	TokenFile       string `env:"SODULAR_TOKEN_FILE"`
	TokenPassphrase string `env:"SODULAR_TOKEN_PASSPHRASE"`

	// Cache (Redis): redis token store and realtime event sink
	RedisURL string `env:"REDIS_URL"`

	// Database (PostgreSQL): postgres token store
	DatabaseURL string `env:"DATABASE_URL"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"warn"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// Load parses environment variables and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.TokenFile == "" {
		cfg.TokenFile = DefaultTokenFile()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultTokenFile returns ~/.sodular/tokens.json, or a relative path when
// the home directory is unknown.
func DefaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".sodular", "tokens.json")
	}
	return filepath.Join(home, ".sodular", "tokens.json")
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("SODULAR_BASE_URL must be an http(s) URL, got %q", c.BaseURL))
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("SODULAR_TIMEOUT must be positive"))
	}

	switch c.TokenStore {
	case StoreMemory:
	case StoreFile:
		if c.TokenFile == "" {
			errs = append(errs, errors.New("SODULAR_TOKEN_FILE is required for the file token store"))
		}
	case StoreRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis token store"))
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres token store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown SODULAR_TOKEN_STORE %q", c.TokenStore))
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// RealtimeURL returns WSURL, or the BaseURL origin when WSURL is unset.
func (c *Config) RealtimeURL() string {
	if c.WSURL != "" {
		return c.WSURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return c.BaseURL
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host}).String()
}
