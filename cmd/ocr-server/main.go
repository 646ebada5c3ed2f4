// Package main provides the OCR API server entrypoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spherical/doc-ocr/cmd/ocr-server/handlers"
	"github.com/spherical/doc-ocr/internal/cache"
	"github.com/spherical/doc-ocr/internal/config"
	"github.com/spherical/doc-ocr/internal/engine"
	"github.com/spherical/doc-ocr/internal/engine/surya"
	"github.com/spherical/doc-ocr/internal/extract"
	"github.com/spherical/doc-ocr/internal/observability"
	"github.com/spherical/doc-ocr/internal/raster"
	"github.com/spherical/doc-ocr/internal/scan"
	"github.com/spherical/doc-ocr/internal/store"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		cfgPath = os.Args[2]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: cfg.Observability.ServiceName,
	})

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx := context.Background()

	logger.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("backend", cfg.Recognition.Backend).
		Str("cache", cfg.Cache.Driver).
		Str("storage", cfg.Storage.Driver).
		Msg("Starting OCR API")

	registry, err := engine.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build engines: %w", err)
	}
	defer registry.Close()

	converter := raster.NewConverter(raster.Options{
		DPI:          cfg.Raster.DPI,
		MaxPages:     cfg.Raster.MaxPages,
		MaxDimension: cfg.Raster.MaxDimension,
		MaxBytes:     cfg.Server.MaxUploadBytes,
	})

	pipeline := extract.NewService(extract.Options{
		BatchSize:           cfg.Pipeline.BatchSize,
		ConfidenceThreshold: cfg.Pipeline.ConfidenceThreshold,
		KeepEmptyElements:   cfg.Pipeline.KeepEmptyElements,
	}, logger)

	checks := map[string]handlers.Check{
		"layout_service": surya.NewClient(surya.Config{
			BaseURL: cfg.Services.BaseURL,
			Timeout: cfg.Services.Timeout,
		}, logger).Health,
	}

	var opts []scan.Option

	cacheClient, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	resultCache := cache.NewResultCache(cacheClient, cfg.Cache.TTL)
	defer resultCache.Close()
	opts = append(opts, scan.WithCache(resultCache))

	var results *handlers.ResultsHandler
	db, driver, err := store.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	if db != nil {
		defer db.Close()
		if err := store.Migrate(ctx, db, driver); err != nil {
			return err
		}
		repo := store.NewResultRepository(db)
		opts = append(opts, scan.WithStore(repo))
		results = handlers.NewResultsHandler(logger, repo, resultCache)
		checks["storage"] = db.PingContext
	}

	scanner := scan.NewService(converter, registry, pipeline, logger, opts...)

	router := NewRouter(logger, RouterConfig{RequestTimeout: cfg.Server.RequestTimeout},
		handlers.NewOCRHandler(logger, scanner, cfg.Server.MaxUploadBytes),
		handlers.NewHealthHandler(cfg.Observability.ServiceName, checks),
		results,
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Str("engines", strings.Join(registry.Names(), ",")).Msg("HTTP server listening")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
		if err := srv.Close(); err != nil {
			logger.Error().Err(err).Msg("Forced shutdown failed")
		}
	}

	logger.Info().Msg("Server stopped")
	return nil
}
