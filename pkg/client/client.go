// Package client provides the HTTP client used to talk to the call history
// API and to fetch recording files.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout is how long a request may wait for response headers.
const DefaultTimeout = 50 * time.Second

// DefaultUserAgent is sent when Config.UserAgent is empty.
const DefaultUserAgent = "cdr-recordings"

// Prometheus metrics for HTTP client operations.
var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdr_http_requests_total",
		Help: "Total HTTP requests by host and status",
	}, []string{"host", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cdr_http_request_duration_seconds",
		Help:    "Time until response headers arrive, by host",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 50},
	}, []string{"host"})

	httpErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cdr_http_errors_total",
		Help: "Total HTTP errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// Config holds the client configuration.
type Config struct {
	// BaseURL is prefixed to relative request paths. Empty means every
	// request must use an absolute URL.
	BaseURL string

	// Token is sent as "Authorization: Bearer <Token>" when non-empty.
	Token string

	// UserAgent header value.
	UserAgent string

	// Timeout bounds dialing and the wait for response headers.
	// Streaming a response body is not bounded.
	Timeout time.Duration
}

// DefaultConfig returns the configuration for an authenticated API client.
func DefaultConfig(baseURL, token string) Config {
	return Config{
		BaseURL:   baseURL,
		Token:     token,
		UserAgent: DefaultUserAgent,
		Timeout:   DefaultTimeout,
	}
}

// Client issues single-attempt HTTP requests bound to a base URL and token.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	logger     zerolog.Logger
}

// New creates a new client. Only an unparsable base URL is rejected.
func New(cfg Config) (*Client, error) {
	var base *url.URL
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("base url must be absolute: %q", cfg.BaseURL)
		}
		base = u
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.Timeout
	transport.DialContext = (&net.Dialer{
		Timeout:   cfg.Timeout,
		KeepAlive: 30 * time.Second,
	}).DialContext

	return &Client{
		httpClient: &http.Client{Transport: transport},
		baseURL:    base,
		config:     cfg,
		logger:     log.With().Str("component", "http-client").Logger(),
	}, nil
}

// ResolveURL turns a path into an absolute URL. Absolute URLs are returned
// unchanged; relative paths are appended to the base URL.
func (c *Client) ResolveURL(path string) (string, error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	if c.baseURL == nil {
		return "", fmt.Errorf("relative url %q without base url", path)
	}
	return strings.TrimRight(c.baseURL.String(), "/") + "/" + strings.TrimLeft(path, "/"), nil
}

// NewRequest builds a request for path, resolved against the base URL.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	target, err := c.ResolveURL(path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

// Do sends req once. Transport failures are returned as *APIError with
// ErrorClassNetwork; any HTTP status is returned as a response and left to
// the caller (see CheckResponse).
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	host := req.URL.Host

	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	c.logger.Info().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Msg("Sending request")

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	httpRequestDuration.WithLabelValues(host).Observe(time.Since(startTime).Seconds())

	if err != nil {
		httpErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		httpRequestsTotal.WithLabelValues(host, "network_error").Inc()
		c.logger.Warn().Err(err).Str("url", req.URL.String()).Msg("HTTP request failed")
		return nil, &APIError{
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}

	httpRequestsTotal.WithLabelValues(host, strconv.Itoa(resp.StatusCode)).Inc()
	if class := classifyStatus(resp.StatusCode); class != "" {
		httpErrorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("url", req.URL.String()).
			Int("status_code", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("HTTP error response")
	}

	return resp, nil
}

// PostJSON encodes payload as JSON and posts it to path.
func (c *Client) PostJSON(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}

	req, err := c.NewRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	return c.Do(req)
}

// Get performs a GET request for path or absolute URL.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
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

// classifyStatus maps an HTTP status code to an error class, "" for success.
func classifyStatus(status int) ErrorClass {
	switch {
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}
