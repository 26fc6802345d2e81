package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mcoot/marketid/internal/api"
	"github.com/mcoot/marketid/internal/config"
	"github.com/mcoot/marketid/internal/factory"
	"github.com/mcoot/marketid/internal/web"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Error("failed to read .env", slog.String("error", err.Error()))
		os.Exit(1)
	}

	cfg, err := config.Load(os.Getenv)
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if cfg.Factory.AuthConfig.Secret == "" {
		logger.Warn("JWT_SECRET not set, sessions will not survive a restart")
	}

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Create application factory
	factoryCfg := cfg.Factory
	factoryCfg.Logger = logger
	app, err := factory.New(ctx, factoryCfg)
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer app.Close()

	if cfg.AdminEmail != "" {
		if _, err := app.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			logger.Error("failed to provision admin", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	staticDir := cfg.StaticDir
	if staticDir == "" {
		staticDir = findStaticDir()
	}

	// Create API router
	apiRouter := api.NewRouter(api.RouterConfig{
		Logger:      logger,
		Registry:    app.Registry,
		AuthService: app.AuthService,
		GuardConfig: cfg.Guard,
	})

	// Create web router
	webRouter := web.NewRouter(web.RouterConfig{
		Logger:       logger,
		Registry:     app.Registry,
		AuthService:  app.AuthService,
		GuardConfig:  cfg.Guard,
		ClientConfig: cfg.Client,
		StaticDir:    staticDir,
	})

	// Combine routers
	mux := http.NewServeMux()
	mux.Handle("/api/", apiRouter)
	mux.Handle("/", webRouter)

	// Create server
	server := api.NewServer(mux, cfg.Server, logger)

	go sweep(ctx, app, cfg.CleanupInterval, logger)

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("server started",
		slog.String("addr", server.Addr()),
		slog.String("storage", storageName(factoryCfg.StorageType)),
		slog.String("backup", storageName(factoryCfg.BackupType)))

	// Wait for shutdown or error
	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	logger.Info("server stopped")
}

// sweep evicts idle clients, expired token bookkeeping and expired backups
// until ctx ends
func sweep(ctx context.Context, app *factory.App, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted := app.Registry.CleanupIdle()
			app.AuthService.CleanExpiredTokens()
			app.Backup.Sweep()
			if evicted > 0 {
				logger.Info("evicted idle clients", slog.Int("count", evicted))
			}
		}
	}
}

func storageName(kind string) string {
	if kind == "" {
		return factory.StorageTypeMemory
	}
	return kind
}

// findStaticDir looks for the static files directory
func findStaticDir() string {
	// Try common locations
	candidates := []string{
		"internal/web/static",
		"./internal/web/static",
		filepath.Join(os.Getenv("PWD"), "internal/web/static"),
	}

	for _, dir := range candidates {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}

	// No static directory; the pages are self-contained
	return ""
}
