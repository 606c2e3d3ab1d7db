// Package client provides the Evergreen API client used by the export:
// the paginated project patch listing and the per-patch GraphQL lookup,
// with retries, an optional Redis detail cache and Prometheus metrics.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dbradf/evg-patch-history/pkg/cache"
	"github.com/dbradf/evg-patch-history/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for Evergreen client operations.
var (
	evgRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evg_requests_total",
		Help: "Total Evergreen requests by endpoint and status",
	}, []string{"endpoint", "status"})

	evgRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "evg_request_duration_seconds",
		Help:    "Evergreen request duration in seconds by endpoint, retries included",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	evgErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evg_errors_total",
		Help: "Total Evergreen errors by class",
	}, []string{"class"})
)

const (
	// DefaultAPIServerHost is the public Evergreen API root.
	DefaultAPIServerHost = "https://evergreen.mongodb.com/api"

	// DefaultUIServerHost is the public Evergreen UI root, which also
	// serves the GraphQL endpoint.
	DefaultUIServerHost = "https://evergreen.mongodb.com"

	// maxBodyBytes caps how much of a response body is read.
	maxBodyBytes = 32 << 20

	// maxMessageBytes caps the body excerpt kept in an APIError.
	maxMessageBytes = 256
)

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// Client is the Evergreen client. One Client is shared by the listing
// and by every lookup of a run.
type Client struct {
	httpClient *http.Client
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger
	restBase   string
	graphqlURL string
}

// Config holds the client configuration.
type Config struct {
	// Redis enables the patch detail cache when set (optional).
	Redis *redis.Client

	// Credentials sent as Api-User / Api-Key.
	User   string
	APIKey string

	// APIServerHost is the REST root, e.g. "https://evergreen.mongodb.com/api".
	APIServerHost string

	// UIServerHost is the UI root; GraphQL lives at /graphql/query below it.
	UIServerHost string

	// UserAgent header.
	UserAgent string

	// Timeout per HTTP request.
	Timeout time.Duration

	// PageLimit is the page size requested from the patch listing.
	PageLimit int

	// Retry
	MaxRetries     int // attempts per request, initial request included
	InitialBackoff time.Duration

	// CacheTTL is how long resolved details stay in Redis.
	CacheTTL time.Duration
}

// DefaultConfig returns a default configuration pointing at the public
// Evergreen deployment. Credentials still have to be filled in.
func DefaultConfig(redis *redis.Client, userAgent string) Config {
	return Config{
		Redis:          redis,
		APIServerHost:  DefaultAPIServerHost,
		UIServerHost:   DefaultUIServerHost,
		UserAgent:      userAgent,
		Timeout:        30 * time.Second,
		PageLimit:      100,
		MaxRetries:     3,
		InitialBackoff: 1 * time.Second,
		CacheTTL:       1 * time.Hour,
	}
}

// New creates a new Evergreen client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.User == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("evergreen user and api key are required")
	}

	apiHost, err := parseHost("api_server_host", cfg.APIServerHost)
	if err != nil {
		return nil, err
	}

	uiHost, err := parseHost("ui_server_host", cfg.UIServerHost)
	if err != nil {
		return nil, err
	}

	if cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("max_retries must be >= 1 (got %d)", cfg.MaxRetries)
	}

	if cfg.PageLimit < 1 {
		return nil, fmt.Errorf("page_limit must be >= 1 (got %d)", cfg.PageLimit)
	}

	if cfg.Redis != nil && cfg.CacheTTL <= 0 {
		return nil, fmt.Errorf("cache_ttl must be > 0 when redis is configured (got %s)", cfg.CacheTTL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := logging.NewLogger("evergreen-client")

	var cacheManager *cache.Manager
	if cfg.Redis != nil {
		cacheManager = cache.NewManager(cfg.Redis)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cache:      cacheManager,
		config:     cfg,
		logger:     logger,
		restBase:   apiHost + "/rest/v2",
		graphqlURL: uiHost + "/graphql/query",
	}, nil
}

func parseHost(name, raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%s must be an absolute http(s) URL (got %q)", name, raw)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// response is a fully read HTTP response.
type response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// do performs one logical request with retries. endpoint is a low
// cardinality label used for metrics and logs.
func (c *Client) do(ctx context.Context, endpoint, method, target string, body []byte) (*response, error) {
	startTime := time.Now()
	defer func() {
		evgRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	var out *response
	var errClass ErrorClass

	retryErr := retryWithBackoff(ctx, c.retryConfig(), func() error {
		errClass = ""

		req, err := c.newRequest(ctx, method, target, body)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		c.logger.Debug().
			Str("endpoint", endpoint).
			Str("method", method).
			Msg("Executing Evergreen request")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errClass = c.classifyError(nil, err)
			evgErrorsTotal.WithLabelValues(string(errClass)).Inc()
			evgRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			errClass = ErrorClassNetwork
			evgErrorsTotal.WithLabelValues(string(errClass)).Inc()
			return fmt.Errorf("read response body: %w", err)
		}

		evgRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode >= 400 {
			errClass = c.classifyError(resp, nil)
			evgErrorsTotal.WithLabelValues(string(errClass)).Inc()

			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", resp.StatusCode).
				Str("error_class", string(errClass)).
				Msg("Evergreen request error")

			return &APIError{
				StatusCode: resp.StatusCode,
				ErrorClass: errClass,
				Message:    errorMessage(resp.Status, data),
			}
		}

		out = &response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header.Clone(),
			Body:       data,
		}
		return nil
	}, func(error) ErrorClass {
		return errClass
	})

	if retryErr != nil {
		return nil, retryErr
	}
	return out, nil
}

func (c *Client) newRequest(ctx context.Context, method, target string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Api-User", c.config.User)
	req.Header.Set("Api-Key", c.config.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) retryConfig() RetryConfig {
	config := DefaultRetryConfig()
	config.MaxAttempts = c.config.MaxRetries
	if c.config.InitialBackoff > 0 {
		config.InitialBackoff = c.config.InitialBackoff
	}
	return config
}

// classifyError categorizes an error for observability and handling.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// errorMessage keeps a short, single line tail of an error body.
func errorMessage(status string, body []byte) string {
	msg := strings.Join(strings.Fields(string(body)), " ")
	if len(msg) > maxMessageBytes {
		cut := maxMessageBytes
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "..."
	}
	if msg == "" {
		return status
	}
	return status + ": " + msg
}

// Close releases idle connections. The Redis client passed in Config
// belongs to the caller and is left open.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
