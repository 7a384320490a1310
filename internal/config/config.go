// Package config loads server settings from TABLETOP_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// Registry backends
const (
	RegistryMemory = "memory"
	RegistryRedis  = "redis"
)

// Config is the server process configuration
type Config struct {
	ListenAddr string `env:"TABLETOP_LISTEN_ADDR" envDefault:":51234"`
	AdminAddr  string `env:"TABLETOP_ADMIN_ADDR"  envDefault:":8080"`

	// PasswordFile enables personal passwords. Without it any name may join
	// with a role password.
	PasswordFile        string `env:"TABLETOP_PASSWORD_FILE"`
	AdditionalUsersFile string `env:"TABLETOP_ADDITIONAL_USERS_FILE"`
	PlayerPassword      string `env:"TABLETOP_PLAYER_PASSWORD"`
	GMPassword          string `env:"TABLETOP_GM_PASSWORD"`

	Version     string `env:"TABLETOP_VERSION"     envDefault:"DEVELOPMENT"`
	Development bool   `env:"TABLETOP_DEVELOPMENT" envDefault:"false"`
	PolicyFile  string `env:"TABLETOP_POLICY_FILE"`
	Language    string `env:"TABLETOP_LANGUAGE"    envDefault:"en"`
	// Timezone is the zone play-time windows are evaluated in; empty means
	// the process's local zone
	Timezone string `env:"TABLETOP_TIMEZONE"`

	HandshakeTimeout time.Duration `env:"TABLETOP_HANDSHAKE_TIMEOUT" envDefault:"10s"`
	ReservationTTL   time.Duration `env:"TABLETOP_RESERVATION_TTL"   envDefault:"30s"`

	Registry       string `env:"TABLETOP_REGISTRY"         envDefault:"memory"`
	RedisURL       string `env:"TABLETOP_REDIS_URL"`
	RedisKeyPrefix string `env:"TABLETOP_REDIS_KEY_PREFIX" envDefault:"tabletop"`

	// AdminSecret signs admin API tokens. The admin API is disabled when empty.
	AdminSecret string `env:"TABLETOP_ADMIN_SECRET"`
	LogLevel    string `env:"TABLETOP_LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment and validates the result
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the settings are usable together
func (c Config) Validate() error {
	switch c.Registry {
	case RegistryMemory:
	case RegistryRedis:
		if c.RedisURL == "" {
			return errors.New("TABLETOP_REDIS_URL is required when TABLETOP_REGISTRY is redis")
		}
	default:
		return fmt.Errorf("invalid TABLETOP_REGISTRY %q: must be %q or %q", c.Registry, RegistryMemory, RegistryRedis)
	}

	if c.PasswordFile == "" && c.PlayerPassword == "" && c.GMPassword == "" {
		return errors.New("no way to join: set TABLETOP_PASSWORD_FILE or a role password")
	}
	if c.AdditionalUsersFile != "" && c.PasswordFile == "" {
		return errors.New("TABLETOP_ADDITIONAL_USERS_FILE requires TABLETOP_PASSWORD_FILE")
	}
	if c.HandshakeTimeout <= 0 {
		return errors.New("TABLETOP_HANDSHAKE_TIMEOUT must be positive")
	}
	if c.ReservationTTL < c.HandshakeTimeout {
		return errors.New("TABLETOP_RESERVATION_TTL must not be shorter than TABLETOP_HANDSHAKE_TIMEOUT")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location loads Timezone; nil means local time
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return nil, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TABLETOP_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SlogLevel parses LogLevel
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid TABLETOP_LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}
