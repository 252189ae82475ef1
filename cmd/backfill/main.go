// Command backfill runs one ETL cycle from the command line, without
// starting the HTTP service. It is meant for seeding a fresh database or
// re-pulling a historical window after an upstream correction.
//
// Usage:
//
//	go run ./cmd/backfill -region all
//	go run ./cmd/backfill -region ma -start 2024-10-01 -end 2025-03-31
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/fluview-etl/internal/adapter/delphi"
	kafkaadapter "github.com/couchcryptid/fluview-etl/internal/adapter/kafka"
	"github.com/couchcryptid/fluview-etl/internal/blob"
	"github.com/couchcryptid/fluview-etl/internal/config"
	"github.com/couchcryptid/fluview-etl/internal/observability"
	"github.com/couchcryptid/fluview-etl/internal/pipeline"
	"github.com/couchcryptid/fluview-etl/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("backfill failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	region := flag.String("region", "all", `region to ingest: a two-letter state code, or "all"`)
	start := flag.String("start", "", "start date YYYY-MM-DD (requires -end)")
	end := flag.String("end", "", "end date YYYY-MM-DD (requires -start)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	var publisher pipeline.Publisher
	if cfg.KafkaEnabled {
		kp := kafkaadapter.NewPublisher(cfg, logger)
		defer func() { _ = kp.Close() }()
		publisher = kp
	}

	var archive pipeline.Archiver
	if cfg.ArchiveEnabled() {
		b, err := blob.Open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("open archive store: %w", err)
		}
		archive = b
	}

	fetcher := delphi.NewClient(cfg, metrics, logger)
	runner := pipeline.NewRunner(fetcher, st, publisher, archive, metrics, logger)

	report, err := runner.Run(ctx, pipeline.RunRequest{
		Region:    *region,
		StartDate: *start,
		EndDate:   *end,
	})
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
