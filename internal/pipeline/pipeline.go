// Package pipeline orchestrates one ETL run: fetch raw FluView records
// per region, normalize them, upsert them into the store, and fan the
// loaded rows out to the optional Kafka and archive sinks.
package pipeline

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/couchcryptid/fluview-etl/internal/blob"
	"github.com/couchcryptid/fluview-etl/internal/domain"
	"github.com/couchcryptid/fluview-etl/internal/epiweek"
	"github.com/couchcryptid/fluview-etl/internal/export"
	"github.com/couchcryptid/fluview-etl/internal/observability"
)

// defaultRegion is used when a run request names no region at all.
const defaultRegion = "ma"

// usStates lists the 50 state codes plus DC that an "all" run covers.
var usStates = []string{
	"AL", "AK", "AZ", "AR", "CA", "CO", "CT", "DE", "DC", "FL",
	"GA", "HI", "ID", "IL", "IN", "IA", "KS", "KY", "LA", "ME",
	"MD", "MA", "MI", "MN", "MS", "MO", "MT", "NE", "NV", "NH",
	"NJ", "NM", "NY", "NC", "ND", "OH", "OK", "OR", "PA", "RI",
	"SC", "SD", "TN", "TX", "UT", "VT", "VA", "WA", "WV", "WI",
	"WY",
}

// ErrInvalidDateRange reports a run request whose start date falls after
// its end date.
var ErrInvalidDateRange = errors.New("start_date must be <= end_date")

// Fetcher pulls raw surveillance records for one region over an epiweek
// window given as "YYYYWW-YYYYWW". An empty window means the fetcher's
// default history.
type Fetcher interface {
	Fetch(ctx context.Context, region, weeks string) ([]domain.RawRecord, error)
}

// Saver upserts normalized observations and reports how many rows landed.
type Saver interface {
	Save(ctx context.Context, obs []domain.Observation) (int, error)
}

// Publisher forwards loaded observations to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, obs []domain.Observation) error
}

// Archiver persists the CSV snapshot of a completed run.
type Archiver interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (blob.Info, error)
}

// RunRequest selects what one ETL run ingests. Region is a two-letter
// state code, or "all"/"*" for every state; empty falls back to the
// default region. StartDate and EndDate are "YYYY-MM-DD" and bound the
// fetch window only when both are set.
type RunRequest struct {
	Region    string `json:"region"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// RunReport summarizes a completed run: rows upserted across all regions
// and the Mondays of the earliest and latest epiweeks seen. The week
// fields are nil when the run loaded nothing.
type RunReport struct {
	RunID      string      `json:"run_id"`
	RowsLoaded int         `json:"rows_loaded"`
	FirstWeek  *domain.Day `json:"first_week"`
	LastWeek   *domain.Day `json:"last_week"`
}

// Runner drives the fetch, normalize, save sequence region by region. A
// failed region aborts the run; rows saved for earlier regions stay
// persisted. The sinks never fail a run: publish and archive problems
// are logged and counted only.
type Runner struct {
	fetcher   Fetcher
	store     Saver
	publisher Publisher // nil disables Kafka publishing
	archive   Archiver  // nil disables run archiving
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewRunner creates a Runner. publisher and archive may be nil, which
// disables the corresponding sink.
func NewRunner(fetcher Fetcher, store Saver, publisher Publisher, archive Archiver, metrics *observability.Metrics, logger *slog.Logger) *Runner {
	return &Runner{
		fetcher:   fetcher,
		store:     store,
		publisher: publisher,
		archive:   archive,
		metrics:   metrics,
		logger:    logger,
	}
}

// Run executes one ETL cycle and returns its report. Regions are
// processed sequentially; the first fetch or save failure aborts the run
// with the partial report. An empty upstream result is not a failure.
func (r *Runner) Run(ctx context.Context, req RunRequest) (RunReport, error) {
	runID := newRunID()
	logger := r.logger.With("run_id", runID)
	logger.Info("etl run started", "region", req.Region, "start_date", req.StartDate, "end_date", req.EndDate)

	report := RunReport{RunID: runID}

	weeks, err := weeksParam(req.StartDate, req.EndDate)
	if err != nil {
		r.metrics.RunsTotal.WithLabelValues("error").Inc()
		return report, err
	}
	if weeks != "" {
		logger.Info("date range converted to epiweek range", "epiweeks", weeks)
	}

	regions := expandRegions(req.Region)
	logger.Info("processing regions", "count", len(regions))

	var loaded []domain.Observation
	for _, region := range regions {
		if err := ctx.Err(); err != nil {
			r.metrics.RunsTotal.WithLabelValues("error").Inc()
			return report, err
		}

		rows, saved, err := r.runRegion(ctx, logger, region, weeks)
		if err != nil {
			r.metrics.RunsTotal.WithLabelValues("error").Inc()
			return report, fmt.Errorf("region %s: %w", region, err)
		}
		report.RowsLoaded += saved
		loaded = append(loaded, rows...)
	}

	if len(loaded) == 0 {
		logger.Warn("etl run loaded no data")
		r.metrics.RunsTotal.WithLabelValues("success").Inc()
		return report, nil
	}

	report.FirstWeek, report.LastWeek = weekBounds(loaded)

	r.publish(ctx, logger, loaded)
	r.archiveRun(ctx, logger, runID, loaded)

	r.metrics.RunsTotal.WithLabelValues("success").Inc()
	logger.Info("etl run completed", "rows_loaded", report.RowsLoaded, "first_week", report.FirstWeek, "last_week", report.LastWeek)
	return report, nil
}

// runRegion fetches, normalizes, and saves one region. It returns the
// normalized rows and the upsert count; both are empty when the upstream
// has no data for the window.
func (r *Runner) runRegion(ctx context.Context, logger *slog.Logger, region, weeks string) ([]domain.Observation, int, error) {
	logger.Info("fetching region", "region", region)
	raw, err := r.fetcher.Fetch(ctx, region, weeks)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch: %w", err)
	}

	result := domain.Normalize(raw)
	for _, d := range result.Dropped {
		r.metrics.RowsDropped.Inc()
		logger.Warn("dropped raw record", "region", region, "index", d.Index, "reason", string(d.Reason), "detail", d.Detail)
	}
	if len(result.Observations) == 0 {
		logger.Warn("no data returned for region", "region", region)
		return nil, 0, nil
	}

	start := time.Now()
	saved, err := r.store.Save(ctx, result.Observations)
	r.metrics.SaveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, saved, fmt.Errorf("save: %w", err)
	}
	r.metrics.RowsLoaded.Add(float64(saved))
	logger.Info("saved region rows", "region", region, "rows", saved)
	return result.Observations, saved, nil
}

func (r *Runner) publish(ctx context.Context, logger *slog.Logger, obs []domain.Observation) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, obs); err != nil {
		r.metrics.PublishFailures.Inc()
		logger.Warn("publishing observations failed", "rows", len(obs), "error", err)
	}
}

func (r *Runner) archiveRun(ctx context.Context, logger *slog.Logger, runID string, obs []domain.Observation) {
	if r.archive == nil {
		return
	}

	rows := make([]domain.Observation, len(obs))
	copy(rows, obs)
	export.SortForExport(rows)

	var buf bytes.Buffer
	if err := export.EncodeCSV(&buf, rows); err != nil {
		r.metrics.ArchiveWrites.WithLabelValues("error").Inc()
		logger.Warn("encoding run archive failed", "error", err)
		return
	}

	key := "runs/" + runID + ".csv"
	info, err := r.archive.Put(ctx, key, "text/csv", &buf)
	if err != nil {
		r.metrics.ArchiveWrites.WithLabelValues("error").Inc()
		logger.Warn("writing run archive failed", "key", key, "error", err)
		return
	}
	r.metrics.ArchiveWrites.WithLabelValues("success").Inc()
	logger.Info("run archive written", "key", info.Key, "size_bytes", info.Size)
}

// weeksParam converts a calendar date window into the "YYYYWW-YYYYWW"
// form the upstream API takes. The window applies only when both dates
// are set; otherwise the fetcher falls back to its default history.
func weeksParam(startDate, endDate string) (string, error) {
	if startDate == "" || endDate == "" {
		return "", nil
	}

	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return "", fmt.Errorf("parse start_date: %w", err)
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return "", fmt.Errorf("parse end_date: %w", err)
	}
	if start.After(end) {
		return "", ErrInvalidDateRange
	}
	return epiweek.FormatRange(epiweek.FromDate(start), epiweek.FromDate(end)), nil
}

// expandRegions resolves the region selector: "all" or "*" cover every
// state, anything else is a single code sent uppercase. Empty falls back
// to the default region.
func expandRegions(region string) []string {
	region = strings.TrimSpace(region)
	if region == "" {
		region = defaultRegion
	}
	if lower := strings.ToLower(region); lower == "all" || lower == "*" {
		return usStates
	}
	return []string{strings.ToUpper(region)}
}

// weekBounds returns the Mondays of the earliest and latest epiweeks in
// obs. Rows reaching this point carry epiweeks that already round-tripped
// through validation, so the conversions do not fail in practice.
func weekBounds(obs []domain.Observation) (first, last *domain.Day) {
	minWeek, maxWeek := 0, 0
	for _, o := range obs {
		if minWeek == 0 || o.Epiweek < minWeek {
			minWeek = o.Epiweek
		}
		if o.Epiweek > maxWeek {
			maxWeek = o.Epiweek
		}
	}

	if monday, err := epiweek.Monday(minWeek); err == nil {
		d := domain.NewDay(monday)
		first = &d
	}
	if monday, err := epiweek.Monday(maxWeek); err == nil {
		d := domain.NewDay(monday)
		last = &d
	}
	return first, last
}

// newRunID mints a lexically sortable identifier for one run, stamped
// with the service clock so test clocks show up in archive keys.
func newRunID() string {
	return ulid.MustNew(ulid.Timestamp(domain.Now()), rand.Reader).String()
}
