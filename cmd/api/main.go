package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"catalog-backend/internal/config"
	"catalog-backend/internal/infrastructure/observability"
	"catalog-backend/internal/interfaces/http/rest"
	"catalog-backend/internal/repository"

	"go.uber.org/zap"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.MustLoad()

	logger, err := observability.NewLogger(observability.LoggerConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded",
		zap.String("environment", string(cfg.Environment)),
		zap.Strings("sources", cfg.LoadedFrom),
		zap.String("dataDir", cfg.Storage.DataDir),
		zap.Bool("caching", cfg.Cache.Enabled),
		zap.Bool("backups", cfg.Storage.EnableBackups),
	)

	var metrics *observability.Collector
	if cfg.Metrics.Enabled {
		metrics = observability.NewCollector(cfg.Metrics.Namespace)
	}

	registry := repository.New(cfg, repository.Deps{Logger: logger, Metrics: metrics})
	if err := registry.InitializeAll(ctx); err != nil {
		logger.Fatal("Failed to initialize entity files", zap.Error(err))
	}
	for name, report := range registry.Validate(ctx) {
		if !report.IsValid {
			logger.Warn("Entity file failed validation",
				zap.String("file", name),
				zap.Strings("errors", report.Errors),
			)
		}
	}
	if err := registry.Start(ctx); err != nil {
		logger.Fatal("Failed to start cache managers", zap.Error(err))
	}

	router := rest.NewRouter(registry, metrics, cfg.Metrics.Path, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting server", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}
	if err := registry.Close(); err != nil {
		logger.Error("Failed to stop cache managers", zap.Error(err))
	}

	logger.Info("Server stopped")
}
