// Package config loads gcal-oauth settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-training/gcal-oauth/pkg/core"
	"github.com/go-training/gcal-oauth/pkg/logger"
	"github.com/go-training/gcal-oauth/pkg/store"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration.
type Config struct {
	ClientID     string        `env:"GCAL_CLIENT_ID"`
	ClientSecret string        `env:"GCAL_CLIENT_SECRET"`
	Port         int           `env:"GCAL_OAUTH_PORT"    envDefault:"8080"`
	Timeout      time.Duration `env:"GCAL_OAUTH_TIMEOUT" envDefault:"5m"`
	Scopes       []string      `env:"GCAL_OAUTH_SCOPES"  envSeparator:","`
	NoBrowser    bool          `env:"GCAL_NO_BROWSER"`

	StoreType      string `env:"GCAL_STORE"           envDefault:"bolt"`
	BoltPath       string `env:"GCAL_BOLT_PATH"`
	RedisAddr      string `env:"GCAL_REDIS_ADDR"      envDefault:"localhost:6379"`
	RedisPassword  string `env:"GCAL_REDIS_PASSWORD"`
	RedisDB        int    `env:"GCAL_REDIS_DB"`
	RedisKey       string `env:"GCAL_REDIS_KEY"`
	KeyringService string `env:"GCAL_KEYRING_SERVICE" envDefault:"gcal-oauth"`

	LogLevel string `env:"LOG_LEVEL"`
}

// Load parses the environment. An unset GCAL_BOLT_PATH resolves to
// DefaultBoltPath.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.BoltPath == "" {
		cfg.BoltPath = DefaultBoltPath()
	}
	return cfg, nil
}

// DefaultBoltPath returns the token database under the user config dir.
func DefaultBoltPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "gcal-oauth", "tokens.db")
}

// Validate checks ranges and enumerations. Missing client credentials are
// not an error here; commands that need them check Credentials().Validate.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("GCAL_OAUTH_PORT must be between 1 and 65535, got %d", c.Port))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("GCAL_OAUTH_TIMEOUT must not be negative, got %s", c.Timeout))
	}
	if t := store.StoreType(strings.ToLower(strings.TrimSpace(c.StoreType))); !t.IsValid() {
		errs = append(errs, fmt.Errorf("GCAL_STORE must be one of memory, redis, bolt, keyring, got %q", c.StoreType))
	}
	if c.LogLevel != "" {
		if _, ok := logger.ParseLevel(c.LogLevel); !ok {
			errs = append(errs, fmt.Errorf("LOG_LEVEL %q is not a valid level", c.LogLevel))
		}
	}
	return errors.Join(errs...)
}

// Credentials returns the OAuth client credentials.
func (c Config) Credentials() core.Credentials {
	return core.Credentials{ClientID: c.ClientID, ClientSecret: c.ClientSecret}
}

// StoreConfig maps the store settings onto the store factory.
func (c Config) StoreConfig() store.Config {
	return store.Config{
		Type: store.ParseStoreType(c.StoreType),
		Redis: store.RedisOptions{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
			Key:      c.RedisKey,
		},
		Bolt:    store.BoltOptions{Path: c.BoltPath},
		Keyring: store.KeyringOptions{Service: c.KeyringService},
	}
}
