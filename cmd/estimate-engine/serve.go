package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/terra-clan/estimate-engine/internal/api"
	"github.com/terra-clan/estimate-engine/internal/cache"
	"github.com/terra-clan/estimate-engine/internal/config"
	"github.com/terra-clan/estimate-engine/internal/health"
	"github.com/terra-clan/estimate-engine/internal/project"
	"github.com/terra-clan/estimate-engine/internal/reconcile"
	"github.com/terra-clan/estimate-engine/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(os.Stdout)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	slog.Info("starting estimate-engine",
		"version", Version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"cache", cfg.Cache.Type,
		"auth", cfg.Auth.Enabled,
	)

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	if cfg.Database.AutoMigrate {
		slog.Info("running database migrations")
		if err := storage.MigrateFromDSN(initCtx, cfg.Database.DSN); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	repo, err := openRepository(initCtx, cfg.Database)
	if err != nil {
		return err
	}
	defer repo.Close()

	projectCache, err := openCache(initCtx, cfg.Cache)
	if err != nil {
		return err
	}
	defer projectCache.Close()

	sections, err := loadSections(cfg)
	if err != nil {
		return err
	}

	checks := health.NewRegistry(5 * time.Second)
	checks.Register("postgres", health.CheckerFunc(repo.Ping))
	if cfg.Cache.Type == config.CacheRedis {
		checks.Register("redis", health.CheckerFunc(projectCache.Ping))
	}

	manager := project.NewService(repo, projectCache, sections, cfg.Cache.TTL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reconcile.NewReconciler(manager, cfg.Reconcile.Interval).Start(ctx)

	server := api.NewServer(cfg.Server, cfg.Auth, manager, sections, repo, checks)
	httpServer := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     server.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("HTTP server error: %w", err)
	}

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("estimate-engine stopped")
	return nil
}

func openRepository(ctx context.Context, cfg config.DatabaseConfig) (*storage.PostgresRepository, error) {
	repo, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{
		DSN:          cfg.DSN,
		MaxOpenConns: int32(cfg.MaxOpenConns),
		MaxIdleConns: int32(cfg.MaxIdleConns),
		MaxLifetime:  cfg.MaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create database repository: %w", err)
	}
	slog.Info("database connected successfully")
	return repo, nil
}

func openCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, error) {
	switch cfg.Type {
	case config.CacheRedis:
		c, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Address:  cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
			TTL:      cfg.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return c, nil
	case config.CacheNone:
		return cache.Nop{}, nil
	default:
		return cache.NewMemoryCache(cfg.TTL), nil
	}
}
