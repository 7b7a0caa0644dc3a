// Package client provides the Socrata (SODA 2.x) HTTP client used to read
// rows from a resource endpoint such as
// https://data.cityofchicago.org/resource/ydr8-5enu.json.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/permits-export/pkg/pagination"
	"github.com/Sternrassler/permits-export/pkg/record"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for Socrata requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "permits_requests_total",
		Help: "Total Socrata requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "permits_request_duration_seconds",
		Help:    "Socrata request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "permits_errors_total",
		Help: "Total Socrata request errors by class",
	}, []string{"class"})
)

// maxErrorBody bounds how much of an error response is read for its message.
const maxErrorBody = 64 << 10

// Client is a Socrata resource client.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the open-data portal, e.g. "https://data.cityofchicago.org"
	BaseURL string

	// User-Agent header sent with every request
	UserAgent string

	// AppToken is sent as X-App-Token when set
	AppToken string

	// Timeout for a single request
	Timeout time.Duration
}

// DefaultConfig returns the configuration for the Chicago Data Portal.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:   "https://data.cityofchicago.org",
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
	}
}

// New creates a new Socrata client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %s)", cfg.Timeout)
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url must be absolute (got %q)", cfg.BaseURL)
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: base,
		config:  cfg,
		logger:  log.With().Str("component", "socrata-client").Logger(),
	}, nil
}

// ResourceURL returns the JSON resource URL for a dataset.
func (c *Client) ResourceURL(dataset string) string {
	u := *c.baseURL
	u.Path = u.Path + "/resource/" + dataset + ".json"
	return u.String()
}

// Do executes a request and returns the response body of a 2xx response.
// Any other status is returned as an *APIError.
func (c *Client) Do(req *http.Request) ([]byte, error) {
	startTime := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(startTime).Seconds())
	}()

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if c.config.AppToken != "" {
		req.Header.Set("X-App-Token", c.config.AppToken)
	}

	c.logger.Debug().
		Str("url", req.URL.String()).
		Str("method", req.Method).
		Msg("Executing Socrata request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues("network_error").Inc()
		c.logger.Error().Err(err).Str("url", req.URL.String()).Msg("HTTP request failed")
		return nil, &APIError{
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		class := classifyStatus(resp.StatusCode)
		if class == "" {
			class = ErrorClassClient
		}
		errorsTotal.WithLabelValues(string(class)).Inc()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    errorMessage(resp.Status, body),
		}

		c.logger.Warn().
			Str("url", req.URL.String()).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Socrata request error")

		return nil, apiErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read response body",
			Err:        err,
		}
	}

	c.logger.Debug().
		Str("url", req.URL.String()).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("duration", time.Since(startTime)).
		Msg("Socrata request complete")

	return body, nil
}

// Get performs a GET against a dataset's resource endpoint with SoQL parameters.
func (c *Client) Get(ctx context.Context, dataset string, params url.Values) ([]byte, error) {
	if dataset == "" {
		return nil, ErrEmptyDataset
	}

	u := c.ResourceURL(dataset)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return c.Do(req)
}

// FetchPage fetches one page of rows. It implements pagination.PageFetcher.
func (c *Client) FetchPage(ctx context.Context, dataset string, req pagination.PageRequest) ([]record.Record, error) {
	body, err := c.Get(ctx, dataset, PageParams(req))
	if err != nil {
		return nil, err
	}

	page, err := record.DecodePage(body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, &APIError{
			StatusCode: http.StatusOK,
			ErrorClass: ErrorClassDecode,
			Message:    "malformed response body",
			Err:        err,
		}
	}
	return page, nil
}

// PageParams builds the SoQL query parameters for a page request.
func PageParams(req pagination.PageRequest) url.Values {
	params := url.Values{}
	params.Set("$limit", strconv.Itoa(req.Limit))
	params.Set("$offset", strconv.Itoa(req.Offset))
	if req.Order != "" {
		params.Set("$order", req.Order)
	}
	if req.Where != "" {
		params.Set("$where", req.Where)
	}
	if req.Select != "" {
		params.Set("$select", req.Select)
	}
	return params
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// errorMessage extracts the message of a Socrata error body, falling back to
// the HTTP status text.
func errorMessage(status string, body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		if payload.Code != "" {
			return payload.Code + ": " + payload.Message
		}
		return payload.Message
	}
	return status
}
