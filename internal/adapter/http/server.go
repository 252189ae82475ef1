// Package http serves the dashboard API: ETL run triggering, filtered
// reads and aggregations, CSV export, and the operational endpoints.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/fluview-etl/internal/domain"
	"github.com/couchcryptid/fluview-etl/internal/epiweek"
	"github.com/couchcryptid/fluview-etl/internal/export"
	"github.com/couchcryptid/fluview-etl/internal/pipeline"
)

// defaultPageSize caps /data responses when the caller sends no limit.
const defaultPageSize = 50

// RunTrigger starts one ETL run and reports what it loaded.
type RunTrigger interface {
	Run(ctx context.Context, req pipeline.RunRequest) (pipeline.RunReport, error)
}

// Reader is the slice of the store the read endpoints need.
type Reader interface {
	ReadAll(ctx context.Context) ([]domain.Observation, error)
	Ping(ctx context.Context) error
}

// Server exposes the ETL and dashboard HTTP endpoints.
type Server struct {
	httpServer *http.Server
	runner     RunTrigger
	store      Reader
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the run, read, export, health,
// readiness, and metrics routes.
func NewServer(addr string, runner RunTrigger, store Reader, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 10 * time.Second,
			// An all-state run holds its response open while every
			// region is fetched and saved.
			WriteTimeout: 15 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		runner: runner,
		store:  store,
		logger: logger,
	}

	mux.HandleFunc("POST /etl/run", s.handleRunETL)
	mux.HandleFunc("GET /data", s.handleData)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /map", s.handleMap)
	mux.HandleFunc("GET /download.csv", s.handleDownloadCSV)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleRunETL(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := pipeline.RunRequest{
		Region:    q.Get("region"),
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
	}

	report, err := s.runner.Run(r.Context(), req)
	if err != nil {
		s.logger.Error("etl run failed", "region", req.Region, "error", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type dataResponse struct {
	Total int                  `json:"total"`
	Rows  []domain.Observation `json:"rows"`
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := intParam(q, "limit", defaultPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	offset, err := intParam(q, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if limit < 0 || offset < 0 {
		writeError(w, http.StatusBadRequest, errors.New("limit and offset must be >= 0"))
		return
	}

	opts, err := filterFromQuery(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	obs, err := s.readAll(w, r)
	if err != nil {
		return
	}

	rows := domain.Filter(obs, opts)
	domain.SortByDate(rows)
	writeJSON(w, http.StatusOK, dataResponse{Total: len(rows), Rows: paginate(rows, offset, limit)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	opts, err := filterFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	obs, err := s.readAll(w, r)
	if err != nil {
		return
	}
	writeJSON(w, http.StatusOK, domain.SummaryStats(domain.Filter(obs, opts)))
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("start_date") == "" || q.Get("end_date") == "" {
		writeError(w, http.StatusBadRequest, errors.New("start_date and end_date are required"))
		return
	}

	opts, err := filterFromQuery(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	// The map always covers every region for one metric.
	opts.Region = ""
	opts.Metric = q.Get("metric")
	if opts.Metric == "" {
		opts.Metric = domain.MetricILI
	}

	obs, err := s.readAll(w, r)
	if err != nil {
		return
	}
	writeJSON(w, http.StatusOK, domain.RegionMeans(domain.Filter(obs, opts)))
}

func (s *Server) handleDownloadCSV(w http.ResponseWriter, r *http.Request) {
	opts, err := filterFromQuery(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	obs, err := s.readAll(w, r)
	if err != nil {
		return
	}
	rows := domain.Filter(obs, opts)
	export.SortForExport(rows)

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="cleaned.csv"`)
	if err := export.EncodeCSV(w, rows); err != nil {
		// Headers are already out; all we can do is log.
		s.logger.Error("streaming csv export failed", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// readAll fetches every stored observation, writing the 500 response
// itself so handlers can bail with a bare return.
func (s *Server) readAll(w http.ResponseWriter, r *http.Request) ([]domain.Observation, error) {
	obs, err := s.store.ReadAll(r.Context())
	if err != nil {
		s.logger.Error("reading observations failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return nil, err
	}
	return obs, nil
}

// filterFromQuery builds the observation filter from region, start_date,
// and end_date query params. Date bounds are inclusive and compared at
// epiweek granularity, matching how rows are keyed.
func filterFromQuery(q url.Values) (domain.FilterOptions, error) {
	opts := domain.FilterOptions{Region: q.Get("region")}

	if v := q.Get("start_date"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			return opts, fmt.Errorf("parse start_date: %w", err)
		}
		opts.StartWeek = epiweek.FromDate(d)
	}
	if v := q.Get("end_date"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			return opts, fmt.Errorf("parse end_date: %w", err)
		}
		opts.EndWeek = epiweek.FromDate(d)
	}
	return opts, nil
}

func intParam(q url.Values, name string, fallback int) (int, error) {
	v := q.Get(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

// paginate slices rows the way a list slice would: out-of-range offsets
// yield an empty page, never an error.
func paginate(rows []domain.Observation, offset, limit int) []domain.Observation {
	if offset >= len(rows) {
		return []domain.Observation{}
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
