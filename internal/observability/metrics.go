package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and histograms for the ETL service.
type Metrics struct {
	RunsTotal   *prometheus.CounterVec // labels: outcome={success,error}
	RowsLoaded  prometheus.Counter
	RowsDropped prometheus.Counter

	// Upstream fetch metrics.
	FetchRequests *prometheus.CounterVec // labels: outcome={success,empty,error}
	FetchDuration prometheus.Histogram

	// Storage metrics.
	SaveDuration prometheus.Histogram

	// Optional sink metrics.
	PublishFailures prometheus.Counter
	ArchiveWrites   *prometheus.CounterVec // labels: outcome={success,error}
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fluview_etl",
			Name:      "runs_total",
			Help:      "ETL runs by outcome.",
		}, []string{"outcome"}),
		RowsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fluview_etl",
			Name:      "rows_loaded_total",
			Help:      "Total observation rows upserted into the store.",
		}),
		RowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fluview_etl",
			Name:      "rows_dropped_total",
			Help:      "Total raw records dropped during normalization.",
		}),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fluview_etl",
			Name:      "fetch_requests_total",
			Help:      "Delphi API fetches by outcome.",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fluview_etl",
			Name:      "fetch_duration_seconds",
			Help:      "Delphi API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		SaveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fluview_etl",
			Name:      "save_duration_seconds",
			Help:      "Duration of one store save (all rows for a region).",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fluview_etl",
			Name:      "publish_failures_total",
			Help:      "Observation batches that failed to publish to Kafka.",
		}),
		ArchiveWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fluview_etl",
			Name:      "archive_writes_total",
			Help:      "Run archive writes by outcome.",
		}, []string{"outcome"}),
	}

	prometheus.MustRegister(
		m.RunsTotal,
		m.RowsLoaded,
		m.RowsDropped,
		m.FetchRequests,
		m.FetchDuration,
		m.SaveDuration,
		m.PublishFailures,
		m.ArchiveWrites,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		RunsTotal:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "fluview_etl", Name: "runs_total"}, []string{"outcome"}),
		RowsLoaded:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "fluview_etl", Name: "rows_loaded_total"}),
		RowsDropped:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "fluview_etl", Name: "rows_dropped_total"}),
		FetchRequests:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "fluview_etl", Name: "fetch_requests_total"}, []string{"outcome"}),
		FetchDuration:   prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "fluview_etl", Name: "fetch_duration_seconds"}),
		SaveDuration:    prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "fluview_etl", Name: "save_duration_seconds"}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "fluview_etl", Name: "publish_failures_total"}),
		ArchiveWrites:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "fluview_etl", Name: "archive_writes_total"}, []string{"outcome"}),
	}
}
