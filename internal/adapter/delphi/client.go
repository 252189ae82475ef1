// Package delphi fetches raw FluView records from the CMU Delphi Epidata
// API (https://api.delphi.cmu.edu/epidata/fluview/).
package delphi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/fluview-etl/internal/config"
	"github.com/couchcryptid/fluview-etl/internal/domain"
	"github.com/couchcryptid/fluview-etl/internal/epiweek"
	"github.com/couchcryptid/fluview-etl/internal/observability"
)

// defaultStartWeek opens the default fetch window. FluView coverage is
// thin before the 2013-2014 season, so earlier weeks add noise, not data.
const defaultStartWeek = 201401

// resultSuccess is the Epidata result code for a successful query.
const resultSuccess = 1

// APIError is a non-success Epidata result that is not the benign
// "no results" case. The zero result codes and messages come straight from
// the upstream response.
type APIError struct {
	Result  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fluview error: %s (result %d)", e.Message, e.Result)
}

// Client issues FluView queries against the Delphi Epidata API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a FluView client from DELPHI_* configuration.
func NewClient(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL: cfg.DelphiBaseURL,
		apiKey:  cfg.DelphiAPIKey,
		httpClient: &http.Client{
			Timeout: cfg.DelphiTimeout,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// envelope is the Epidata response wrapper. Non-success results carry a
// message; "no results" style messages are a valid empty outcome.
type envelope struct {
	Result  int                `json:"result"`
	Message string             `json:"message"`
	Epidata []domain.RawRecord `json:"epidata"`
}

// Fetch returns the raw records for one region over an epiweek window given
// as "YYYYWW-YYYYWW". An empty window uses the default from 2014 week 1
// through week 52 of the current ISO year. The region is sent lowercase;
// FluView accepts state codes that way. No retries: a transport or HTTP
// failure surfaces as-is.
func (c *Client) Fetch(ctx context.Context, region, weeks string) ([]domain.RawRecord, error) {
	if weeks == "" {
		weeks = epiweek.FormatRange(defaultStartWeek, domain.CurrentISOYear()*100+52)
	}

	params := url.Values{
		"regions":  {strings.ToLower(region)},
		"epiweeks": {weeks},
	}
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.FetchRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("fluview request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.FetchRequests.WithLabelValues("error").Inc()
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fluview API error: status %d: %s", resp.StatusCode, body)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		c.metrics.FetchRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if env.Result == resultSuccess {
		if len(env.Epidata) == 0 {
			c.metrics.FetchRequests.WithLabelValues("empty").Inc()
			return nil, nil
		}
		c.metrics.FetchRequests.WithLabelValues("success").Inc()
		return env.Epidata, nil
	}

	msg := strings.ToLower(env.Message)
	if strings.Contains(msg, "no results") || strings.Contains(msg, "no data") {
		c.metrics.FetchRequests.WithLabelValues("empty").Inc()
		c.logger.Debug("fluview returned no data", "region", region, "epiweeks", weeks)
		return nil, nil
	}

	c.metrics.FetchRequests.WithLabelValues("error").Inc()
	return nil, &APIError{Result: env.Result, Message: env.Message}
}
