package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/ptype-inference-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/ptype-inference-service/internal/adapter/kafka"
	"github.com/couchcryptid/ptype-inference-service/internal/adapter/model"
	"github.com/couchcryptid/ptype-inference-service/internal/adapter/netcdf"
	"github.com/couchcryptid/ptype-inference-service/internal/adapter/nomads"
	"github.com/couchcryptid/ptype-inference-service/internal/adapter/store"
	"github.com/couchcryptid/ptype-inference-service/internal/config"
	"github.com/couchcryptid/ptype-inference-service/internal/domain"
	"github.com/couchcryptid/ptype-inference-service/internal/observability"
	"github.com/couchcryptid/ptype-inference-service/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	gridStore, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		logger.Error("failed to open run store", "error", err, "path", cfg.DBPath)
		os.Exit(1)
	}

	// Feature scaling is optional; the serving backend may standardize
	// inputs itself.
	var scaler *domain.StandardScaler
	if cfg.ScalerPath != "" {
		scaler, err = domain.LoadScaler(cfg.ScalerPath)
		if err != nil {
			logger.Error("failed to load scaler", "error", err, "path", cfg.ScalerPath)
			os.Exit(1)
		}
		logger.Info("feature scaler loaded", "path", cfg.ScalerPath, "features", len(scaler.Mean))
	} else {
		logger.Info("feature scaling disabled")
	}

	downloader := nomads.NewClient(cfg.DownloadBaseURL, cfg.FieldDir, cfg.DownloadRPS, logger)
	fields := pipeline.NewSpoolingSource(downloader, netcdf.NewSource(cfg.FieldDir, logger))
	classifier := model.NewClient(cfg.ModelEndpoint, cfg.ModelTimeout, logger)

	heights := domain.HeightLevels{
		Low:      cfg.HeightLow,
		High:     cfg.HeightHigh,
		Interval: cfg.HeightInterval,
	}

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	runner := pipeline.NewRunner(fields, classifier, gridStore, scaler, cfg.PressureLevels, heights, cfg.InterpWorkers, logger, metrics)

	p := pipeline.New(reader, runner, writer, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, gridStore, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start inference pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
	if err := gridStore.Close(); err != nil {
		logger.Error("run store close error", "error", err)
	}

	logger.Info("shutdown complete")
}
