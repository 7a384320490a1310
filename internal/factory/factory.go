package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mcoot/tabletop/internal/api"
	"github.com/mcoot/tabletop/internal/config"
	"github.com/mcoot/tabletop/internal/dependencies/clock"
	"github.com/mcoot/tabletop/internal/dependencies/random"
	"github.com/mcoot/tabletop/internal/metrics"
	"github.com/mcoot/tabletop/internal/server"
	"github.com/mcoot/tabletop/internal/services/auth"
	"github.com/mcoot/tabletop/internal/services/handshake"
	"github.com/mcoot/tabletop/internal/services/messages"
	"github.com/mcoot/tabletop/internal/storage"
	"github.com/mcoot/tabletop/internal/storage/memory"
	"github.com/mcoot/tabletop/internal/storage/passwordfile"
	"github.com/mcoot/tabletop/internal/storage/personal"
	redisstorage "github.com/mcoot/tabletop/internal/storage/redis"
)

// Registry type constants
const (
	RegistryTypeMemory = "memory"
	RegistryTypeRedis  = "redis"
)

// App contains all wired application components
type App struct {
	// Storage
	Database storage.PlayerDatabase
	Registry storage.SessionRegistry

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	// Observability
	Prometheus *prometheus.Registry
	Metrics    *metrics.Metrics

	// Services
	Messages    *messages.Catalog
	AuthService *auth.Service
	Handshake   *handshake.Server
	Listener    *server.Server

	logger  *slog.Logger
	closers []io.Closer
}

// Config holds configuration for the application factory
type Config struct {
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// PasswordFile selects the password-file player database (optional)
	// If empty, any name may join with a role password
	PasswordFile string
	// AdditionalUsersFile is merged into PasswordFile on startup, then deleted
	AdditionalUsersFile string
	Handshake           handshake.Config
	// Language selects the handshake message language; empty means English
	Language string
	// Location is the zone play-time windows are evaluated in; nil means local
	Location *time.Location
	// Policy is sent with every handshake response; nil sends {}
	Policy json.RawMessage
	// RegistryType selects the session registry ("memory" or "redis")
	// If empty, defaults to "memory"
	RegistryType string
	// RedisConfig holds Redis connection settings (required if RegistryType is "redis")
	RedisConfig *redisstorage.Config
	Auth        auth.Config
	Listener    server.Config
}

// FromEnv translates process configuration into a factory Config, reading
// the policy file if one is set
func FromEnv(c config.Config, logger *slog.Logger) (Config, error) {
	loc, err := c.Location()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Logger:              logger,
		Location:            loc,
		PasswordFile:        c.PasswordFile,
		AdditionalUsersFile: c.AdditionalUsersFile,
		Handshake: handshake.Config{
			PlayerSecret:   c.PlayerPassword,
			GMSecret:       c.GMPassword,
			Version:        c.Version,
			Development:    c.Development,
			ReservationTTL: c.ReservationTTL,
		},
		Language:     c.Language,
		RegistryType: c.Registry,
		Auth:         auth.Config{Secret: c.AdminSecret},
		Listener: server.Config{
			Addr:             c.ListenAddr,
			HandshakeTimeout: c.HandshakeTimeout,
		},
	}

	if c.Registry == config.RegistryRedis {
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = c.RedisURL
		redisCfg.KeyPrefix = c.RedisKeyPrefix
		cfg.RedisConfig = &redisCfg
	}

	if c.PolicyFile != "" {
		policy, err := LoadPolicy(c.PolicyFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Policy = policy
	}

	return cfg, nil
}

// LoadPolicy reads a JSON policy document
func LoadPolicy(path string) (json.RawMessage, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	if !json.Valid(b) {
		return nil, fmt.Errorf("policy file %s is not valid JSON", path)
	}
	return json.RawMessage(b), nil
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	clk := clock.NewIn(cfg.Location)
	rnd := random.New()

	// Create registry based on type
	var (
		registry storage.SessionRegistry
		closers  []io.Closer
	)
	registryType := cfg.RegistryType
	if registryType == "" {
		registryType = RegistryTypeMemory
	}

	switch registryType {
	case RegistryTypeMemory:
		registry = memory.NewRegistry(clk)
	case RegistryTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when RegistryType is redis")
		}
		redisRegistry, err := redisstorage.New(*cfg.RedisConfig)
		if err != nil {
			return nil, err
		}
		registry = redisRegistry
		closers = append(closers, redisRegistry)
	default:
		return nil, errors.New("invalid RegistryType: must be 'memory' or 'redis'")
	}

	app, err := newWithDependencies(cfg, registry, clk, rnd, logger)
	if err != nil {
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, err
	}
	app.closers = closers
	return app, nil
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(cfg Config, registry storage.SessionRegistry, clk clock.Clock, rnd random.Random, logger *slog.Logger) (*App, error) {
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promRegistry)

	var db storage.PlayerDatabase
	if cfg.PasswordFile != "" {
		store, err := passwordfile.Load(cfg.PasswordFile, cfg.AdditionalUsersFile,
			passwordfile.WithLogger(logger),
			passwordfile.WithRandom(rnd),
			passwordfile.WithFlushObserver(m))
		if err != nil {
			return nil, err
		}
		db = store
	} else {
		db = personal.New()
	}

	catalog, err := messages.New(cfg.Language)
	if err != nil {
		return nil, err
	}

	policy := cfg.Policy
	if policy == nil {
		policy = json.RawMessage(`{}`)
	}

	authService := auth.New(clk, cfg.Auth)
	hs := handshake.New(db, registry, clk, cfg.Handshake,
		handshake.WithLogger(logger),
		handshake.WithMetrics(m),
		handshake.WithMessages(catalog),
		handshake.WithPolicy(handshake.StaticPolicy(policy)))

	listenerCfg := cfg.Listener
	if listenerCfg.Addr == "" {
		listenerCfg.Addr = server.DefaultConfig().Addr
	}
	listener := server.New(hs, server.Idle, listenerCfg, m, logger)

	return &App{
		Database:    db,
		Registry:    registry,
		Clock:       clk,
		Random:      rnd,
		Prometheus:  promRegistry,
		Metrics:     m,
		Messages:    catalog,
		AuthService: authService,
		Handshake:   hs,
		Listener:    listener,
		logger:      logger,
	}, nil
}

// Router builds the admin API handler
func (a *App) Router() http.Handler {
	return api.NewRouter(api.RouterConfig{
		Logger:      a.logger,
		AuthService: a.AuthService,
		Database:    a.Database,
		Registry:    a.Registry,
		Gatherer:    a.Prometheus,
	})
}

// Close releases external connections
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
