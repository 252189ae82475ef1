package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/fluview-etl/internal/adapter/http"
	"github.com/couchcryptid/fluview-etl/internal/domain"
	"github.com/couchcryptid/fluview-etl/internal/pipeline"
)

type mockRunner struct {
	report pipeline.RunReport
	err    error
	got    pipeline.RunRequest
	calls  int
}

func (m *mockRunner) Run(_ context.Context, req pipeline.RunRequest) (pipeline.RunReport, error) {
	m.calls++
	m.got = req
	return m.report, m.err
}

type mockStore struct {
	rows    []domain.Observation
	readErr error
	pingErr error
}

func (m *mockStore) ReadAll(_ context.Context) ([]domain.Observation, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	return m.rows, nil
}

func (m *mockStore) Ping(_ context.Context) error { return m.pingErr }

func newTestServer(runner *mockRunner, store *mockStore) *httpadapter.Server {
	return httpadapter.NewServer(":0", runner, store, slog.Default())
}

func observation(t *testing.T, date, region string, value float64, epi int) domain.Observation {
	t.Helper()
	d, err := domain.ParseDay(date)
	require.NoError(t, err)
	v := value
	return domain.Observation{
		Date:     d,
		Region:   region,
		Value:    &v,
		Metric:   domain.MetricILI,
		SourceID: strings.ToLower(region) + "-" + strconv.Itoa(epi),
		Epiweek:  epi,
	}
}

// fixtureStore holds two weeks of data for MA and NY.
func fixtureStore(t *testing.T) *mockStore {
	t.Helper()
	return &mockStore{rows: []domain.Observation{
		observation(t, "2025-01-06", "MA", 1.5, 202502),
		observation(t, "2025-01-13", "MA", 3.5, 202503),
		observation(t, "2025-01-06", "NY", 2.5, 202502),
		observation(t, "2025-01-13", "NY", 4.5, 202503),
	}}
}

func doGet(t *testing.T, srv *httpadapter.Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestRunETLReturnsReport(t *testing.T) {
	first, err := domain.ParseDay("2025-01-06")
	require.NoError(t, err)
	last, err := domain.ParseDay("2025-01-13")
	require.NoError(t, err)
	runner := &mockRunner{report: pipeline.RunReport{
		RunID:      "run-1",
		RowsLoaded: 2,
		FirstWeek:  &first,
		LastWeek:   &last,
	}}
	srv := newTestServer(runner, &mockStore{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/etl/run?region=ma&start_date=2025-01-01&end_date=2025-01-14", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pipeline.RunRequest{Region: "ma", StartDate: "2025-01-01", EndDate: "2025-01-14"}, runner.got)

	var report pipeline.RunReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, 2, report.RowsLoaded)
	require.NotNil(t, report.FirstWeek)
	assert.Equal(t, "2025-01-06", report.FirstWeek.String())
}

func TestRunETLFailureReturns400(t *testing.T) {
	runner := &mockRunner{err: pipeline.ErrInvalidDateRange}
	srv := newTestServer(runner, &mockStore{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/etl/run?start_date=2025-02-01&end_date=2025-01-01", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "start_date must be <= end_date", body["error"])
}

func TestDataSortsAndPaginates(t *testing.T) {
	srv := newTestServer(&mockRunner{}, fixtureStore(t))

	rec := doGet(t, srv, "/data?limit=2&offset=1")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Total int                  `json:"total"`
		Rows  []domain.Observation `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 4, body.Total)
	require.Len(t, body.Rows, 2)
	assert.Equal(t, "ny-202502", body.Rows[0].SourceID)
	assert.Equal(t, "ma-202503", body.Rows[1].SourceID)
}

func TestDataAppliesFilters(t *testing.T) {
	srv := newTestServer(&mockRunner{}, fixtureStore(t))

	rec := doGet(t, srv, "/data?region=ma&start_date=2025-01-13&end_date=2025-01-13")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Total int                  `json:"total"`
		Rows  []domain.Observation `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Total)
	require.Len(t, body.Rows, 1)
	assert.Equal(t, "ma-202503", body.Rows[0].SourceID)
}

func TestDataOffsetPastEndIsEmptyPage(t *testing.T) {
	srv := newTestServer(&mockRunner{}, fixtureStore(t))

	rec := doGet(t, srv, "/data?offset=100")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":4`)
	assert.Contains(t, rec.Body.String(), `"rows":[]`)
}

func TestDataRejectsBadPagination(t *testing.T) {
	srv := newTestServer(&mockRunner{}, fixtureStore(t))

	assert.Equal(t, http.StatusBadRequest, doGet(t, srv, "/data?limit=abc").Code)
	assert.Equal(t, http.StatusBadRequest, doGet(t, srv, "/data?limit=-1").Code)
	assert.Equal(t, http.StatusBadRequest, doGet(t, srv, "/data?offset=-5").Code)
}

func TestDataRejectsBadDate(t *testing.T) {
	srv := newTestServer(&mockRunner{}, fixtureStore(t))

	rec := doGet(t, srv, "/data?start_date=last-week")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "parse start_date")
}

func TestStatsFiltersByRegion(t *testing.T) {
	srv := newTestServer(&mockRunner{}, fixtureStore(t))

	rec := doGet(t, srv, "/stats?region=ma")
	assert.Equal(t, http.StatusOK, rec.Code)

	var stats domain.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.Count)
	require.NotNil(t, stats.Min)
	assert.Equal(t, 1.5, *stats.Min)
	require.NotNil(t, stats.Max)
	assert.Equal(t, 3.5, *stats.Max)
	require.NotNil(t, stats.Start)
	assert.Equal(t, "2025-01-06", stats.Start.String())
	assert.Equal(t, []string{"MA"}, stats.Regions)
}

func TestStatsEmptyStoreKeepsExplicitNulls(t *testing.T) {
	srv := newTestServer(&mockRunner{}, &mockStore{})

	rec := doGet(t, srv, "/stats")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":0`)
	assert.Contains(t, rec.Body.String(), `"min":null`)
	assert.Contains(t, rec.Body.String(), `"regions":[]`)
}

func TestStatsStoreFailureReturns500(t *testing.T) {
	srv := newTestServer(&mockRunner{}, &mockStore{readErr: errors.New("disk gone")})

	rec := doGet(t, srv, "/stats")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMapRequiresDateRange(t *testing.T) {
	srv := newTestServer(&mockRunner{}, fixtureStore(t))

	for _, target := range []string{"/map", "/map?start_date=2025-01-01", "/map?end_date=2025-01-31"} {
		rec := doGet(t, srv, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "target %s", target)
		assert.Contains(t, rec.Body.String(), "start_date and end_date are required")
	}
}

func TestMapReturnsRegionMeans(t *testing.T) {
	srv := newTestServer(&mockRunner{}, fixtureStore(t))

	rec := doGet(t, srv, "/map?start_date=2025-01-01&end_date=2025-01-31")
	assert.Equal(t, http.StatusOK, rec.Code)

	var means map[string]float64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &means))
	assert.Equal(t, map[string]float64{"MA": 2.5, "NY": 3.5}, means)
}

func TestMapUnknownMetricIsEmptyObject(t *testing.T) {
	srv := newTestServer(&mockRunner{}, fixtureStore(t))

	rec := doGet(t, srv, "/map?start_date=2025-01-01&end_date=2025-01-31&metric=rsv")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "{}", rec.Body.String())
}

func TestDownloadCSV(t *testing.T) {
	srv := newTestServer(&mockRunner{}, fixtureStore(t))

	rec := doGet(t, srv, "/download.csv?region=ma")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="cleaned.csv"`, rec.Header().Get("Content-Disposition"))

	want := "date,region,value,metric,source_id,epiweek\n" +
		"2025-01-06,MA,1.5,ili,ma-202502,202502\n" +
		"2025-01-13,MA,3.5,ili,ma-202503,202503\n"
	assert.Equal(t, want, rec.Body.String())
}

func TestDownloadCSVEmptyStoreStillWritesHeader(t *testing.T) {
	srv := newTestServer(&mockRunner{}, &mockStore{})

	rec := doGet(t, srv, "/download.csv")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "date,region,value,metric,source_id,epiweek\n", rec.Body.String())
}

func TestHealthzReturns200(t *testing.T) {
	srv := newTestServer(&mockRunner{}, &mockStore{})

	rec := doGet(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenStoreAnswers(t *testing.T) {
	srv := newTestServer(&mockRunner{}, &mockStore{})

	rec := doGet(t, srv, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenStoreIsDown(t *testing.T) {
	srv := newTestServer(&mockRunner{}, &mockStore{pingErr: fmt.Errorf("connection refused")})

	rec := doGet(t, srv, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "connection refused", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(&mockRunner{}, &mockStore{})

	rec := doGet(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
