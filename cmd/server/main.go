package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/roadregistry/importer/internal/config"
	"github.com/roadregistry/importer/internal/core"
	_ "github.com/roadregistry/importer/internal/core/datasets" // Register record types
	"github.com/roadregistry/importer/internal/database"
	"github.com/roadregistry/importer/internal/dict"
	"github.com/roadregistry/importer/internal/logging"
	"github.com/roadregistry/importer/internal/web"
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
		"addr", cfg.Server.Addr(),
		"driver", cfg.Database.Driver,
		"workers", cfg.Import.Workers,
		"batch_size", cfg.Import.BatchSize,
	)

	db, err := database.Open(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	if err := db.CreateSchema(ctx); err != nil {
		slog.Error("failed to create schema", "error", err)
		os.Exit(1)
	}

	dicts := dict.New(db)
	if err := dicts.CreateSchema(ctx); err != nil {
		slog.Error("failed to create dictionary schema", "error", err)
		os.Exit(1)
	}
	if err := dicts.Populate(ctx); err != nil {
		slog.Error("failed to populate dictionaries", "error", err)
		os.Exit(1)
	}

	tracker := dict.NewTracker(dicts,
		&dict.SQLRegularizationSource{DB: db},
		cfg.Dictionary.UncuratedYears)

	service := core.NewService(db, dicts, core.ServiceOptions{
		Workers:       cfg.Import.Workers,
		BatchSize:     cfg.Import.BatchSize,
		MaxConcurrent: cfg.Import.MaxConcurrent,
		MaxWaitTime:   cfg.Import.MaxWaitTime,
		Timeout:       cfg.Import.Timeout,
	})

	slog.Info("record types registered", "count", len(core.RecordTypes()))

	server := web.NewServer(service, dicts, tracker, web.Options{
		MaxFileSize: cfg.Import.MaxFileSize,
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for active imports to complete (with timeout)
		if active := service.Limiter().ActiveCount(); active > 0 {
			slog.Info("waiting for imports to complete", "active", active)
			if err := service.Limiter().WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(cfg.Server.Addr()); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
