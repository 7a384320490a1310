package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcoot/tabletop/internal/api/handler"
	"github.com/mcoot/tabletop/internal/api/middleware"
	"github.com/mcoot/tabletop/internal/services/auth"
	"github.com/mcoot/tabletop/internal/storage"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger      *slog.Logger
	AuthService *auth.Service
	Database    storage.PlayerDatabase
	Registry    storage.SessionRegistry
	// Gatherer backs /metrics; nil leaves the endpoint out
	Gatherer prometheus.Gatherer
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create handlers
	playerHandler := handler.NewPlayerHandler(cfg.Database)
	sessionHandler := handler.NewSessionHandler(cfg.Registry)

	// Create middleware
	authMiddleware := middleware.Auth(cfg.AuthService)
	loggingMiddleware := middleware.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(recoveryMiddleware)
	api.Use(loggingMiddleware)

	// Health check endpoint (no auth)
	api.HandleFunc("/health", sessionHandler.Health).Methods(http.MethodGet)

	// Token introspection
	authed := api.PathPrefix("/auth").Subrouter()
	authed.Use(authMiddleware)
	authed.HandleFunc("/me", handler.Me).Methods(http.MethodGet)

	// Player administration
	players := api.PathPrefix("/players").Subrouter()
	players.Use(authMiddleware)
	players.HandleFunc("", playerHandler.List).Methods(http.MethodGet)
	players.HandleFunc("", playerHandler.Create).Methods(http.MethodPost)
	players.HandleFunc("/{name}", playerHandler.Get).Methods(http.MethodGet)
	players.HandleFunc("/{name}", playerHandler.Delete).Methods(http.MethodDelete)
	players.HandleFunc("/{name}/disable", playerHandler.Disable).Methods(http.MethodPost)
	players.HandleFunc("/{name}/enable", playerHandler.Enable).Methods(http.MethodPost)
	players.HandleFunc("/{name}/playtimes", playerHandler.GetPlayTimes).Methods(http.MethodGet)
	players.HandleFunc("/{name}/playtimes", playerHandler.SetPlayTimes).Methods(http.MethodPut)

	// Connected sessions
	sessions := api.PathPrefix("/sessions").Subrouter()
	sessions.Use(authMiddleware)
	sessions.HandleFunc("", sessionHandler.List).Methods(http.MethodGet)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	return r
}
