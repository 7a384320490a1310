package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/mcoot/tabletop/internal/api"
	"github.com/mcoot/tabletop/internal/config"
	"github.com/mcoot/tabletop/internal/factory"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	level, _ := cfg.SlogLevel()

	// Set up logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Build factory config from environment
	factoryCfg, err := factory.FromEnv(cfg, logger)
	if err != nil {
		logger.Error("failed to build configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Create application factory
	app, err := factory.New(factoryCfg)
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("close error", slog.String("error", err.Error()))
		}
	}()

	if err := app.Listener.Listen(); err != nil {
		logger.Error("failed to listen", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.Listener.Serve(ctx)
	})

	if cfg.AdminSecret != "" {
		serverConfig := api.DefaultServerConfig()
		serverConfig.Addr = cfg.AdminAddr
		admin := api.NewServer(app.Router(), serverConfig, logger)

		g.Go(func() error {
			return admin.Start()
		})
		g.Go(func() error {
			<-ctx.Done()
			return admin.Shutdown(context.Background())
		})
	} else {
		logger.Info("admin API disabled: TABLETOP_ADMIN_SECRET is not set")
	}

	logger.Info("server started",
		slog.String("addr", app.Listener.Addr().String()),
		slog.String("version", cfg.Version))

	if err := g.Wait(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		stop()
		_ = app.Close()
		os.Exit(1)
	}

	logger.Info("server stopped")
}
