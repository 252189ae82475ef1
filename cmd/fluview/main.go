package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/fluview-etl/internal/adapter/delphi"
	httpadapter "github.com/couchcryptid/fluview-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/fluview-etl/internal/adapter/kafka"
	"github.com/couchcryptid/fluview-etl/internal/blob"
	"github.com/couchcryptid/fluview-etl/internal/config"
	"github.com/couchcryptid/fluview-etl/internal/observability"
	"github.com/couchcryptid/fluview-etl/internal/pipeline"
	"github.com/couchcryptid/fluview-etl/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	logger.Info("store opened", "driver", cfg.StorageDriver)

	fetcher := delphi.NewClient(cfg, metrics, logger)

	// Kafka publishing is feature-flagged via KAFKA_ENABLED.
	var publisher pipeline.Publisher
	var kafkaPublisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		kafkaPublisher = kafkaadapter.NewPublisher(cfg, logger)
		publisher = kafkaPublisher
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("kafka publishing disabled")
	}

	// Run archiving is feature-flagged via ARCHIVE_DRIVER.
	var archive pipeline.Archiver
	if cfg.ArchiveEnabled() {
		b, err := blob.Open(ctx, cfg)
		if err != nil {
			logger.Error("failed to open archive store", "error", err)
			os.Exit(1)
		}
		archive = b
		logger.Info("run archiving enabled", "driver", b.Driver())
	} else {
		logger.Info("run archiving disabled")
	}

	runner := pipeline.NewRunner(fetcher, st, publisher, archive, metrics, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, runner, st, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}
	if err := st.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}
