package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/geoatlas/internal/cache"
	"github.com/JonMunkholm/geoatlas/internal/config"
	"github.com/JonMunkholm/geoatlas/internal/core"
	_ "github.com/JonMunkholm/geoatlas/internal/core/datasets" // Register all datasets
	"github.com/JonMunkholm/geoatlas/internal/logging"
	"github.com/JonMunkholm/geoatlas/internal/store"
	"github.com/JonMunkholm/geoatlas/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_driver", cfg.Database.Driver,
		"bulk_chunk_size", cfg.Bulk.ChunkSize,
		"bulk_max_concurrent", cfg.Bulk.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"redis_cache", cfg.Cache.RedisAddr != "",
	)

	ctx := context.Background()

	db, err := store.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			slog.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
	}
	if v, err := db.MigrationVersion(ctx); err == nil {
		slog.Info("connected to database", "driver", db.Driver(), "schema_version", v)
	}

	mapCache, err := cache.New(ctx, cfg.Cache)
	if err != nil {
		slog.Error("failed to connect to cache", "error", err)
		os.Exit(1)
	}
	if c, ok := mapCache.(io.Closer); ok {
		defer c.Close()
	}

	service, err := core.NewService(db, cfg, core.WithCache(mapCache))
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	slog.Info("datasets registered", "count", core.DatasetCount())
	for _, def := range core.All() {
		slog.Debug("dataset", "key", def.Info.Key, "table", def.Info.Table, "monthly", def.Info.Monthly)
	}

	server := web.NewServer(service, cfg)

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let running bulk imports finish their chunks (with timeout)
		if status := service.ImportLimiterStatus(); status.Active > 0 {
			slog.Info("waiting for bulk imports to complete", "active", status.Active)
			if err := service.WaitForImports(shutdownCtx); err != nil {
				slog.Warn("bulk imports did not complete in time", "error", err)
			} else {
				slog.Info("all bulk imports completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
