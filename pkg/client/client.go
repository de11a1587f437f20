// Package client provides the governed HTTP client for the filings-search
// API: every call passes through rate limit governance, typed error
// classification and retry with backoff.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/filingsapi/go-filings-client/pkg/cache"
	"github.com/filingsapi/go-filings-client/pkg/ratelimit"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filings_requests_total",
		Help: "Total API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "filings_request_duration_seconds",
		Help:    "API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filings_errors_total",
		Help: "Total API errors by kind",
	}, []string{"kind"})
)

// DefaultBaseURL is the production filings-search API endpoint.
const DefaultBaseURL = "https://api.filingsearch.io"

const (
	defaultTimeout  = 30 * time.Second
	maxResponseBody = 10 * 1024 * 1024 // 10MB
)

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API endpoint; defaults to DefaultBaseURL.
	BaseURL string

	// APIKey authenticates every request. Required.
	APIKey string

	// UserAgent identifies the calling application.
	UserAgent string

	// HTTPClient is the underlying transport; a default 30s-timeout client
	// is used when nil.
	HTTPClient *http.Client

	// Governor tunes rate limit governance.
	Governor ratelimit.GovernorConfig

	// Observer receives governance lifecycle events. Optional.
	Observer ratelimit.Observer

	// Retry tunes the backoff policy applied to transient errors.
	Retry RetryConfig

	// Redis enables cross-process rate limit state sharing and, together
	// with CacheTTL, response caching. Optional.
	Redis *redis.Client

	// CacheTTL enables response caching for the given duration when Redis
	// is configured. Zero disables caching.
	CacheTTL time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(apiKey string) Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		APIKey:    apiKey,
		UserAgent: "go-filings-client/1.0",
		Governor:  ratelimit.DefaultGovernorConfig(),
		Retry:     DefaultRetryConfig(),
	}
}

// Client is the governed filings-search API client. It is safe for
// concurrent use; all callers share one rate limit budget.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	cfg        Config
	tracker    *ratelimit.Tracker
	governor   *ratelimit.Governor
	cache      *cache.Manager
	logger     zerolog.Logger
}

// New creates a client. Configuration problems are reported as
// KindConfiguration errors.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, &Error{Kind: KindConfiguration, Message: "api key is required"}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "go-filings-client/1.0"
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	baseURL, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, &Error{Kind: KindConfiguration, Message: "invalid base URL", Err: err}
	}

	logger := log.With().Str("component", "filings-client").Logger()

	var store ratelimit.Store
	if cfg.Redis != nil {
		store = ratelimit.NewRedisStore(cfg.Redis)
	}
	tracker := ratelimit.NewTracker(store, logger)

	governor, err := ratelimit.NewGovernor(tracker, cfg.Governor, cfg.Observer, logger)
	if err != nil {
		return nil, &Error{Kind: KindConfiguration, Message: "invalid governor config", Err: err}
	}

	var cacheManager *cache.Manager
	if cfg.Redis != nil && cfg.CacheTTL > 0 {
		cacheManager = cache.NewManager(cfg.Redis)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		cfg:        cfg,
		tracker:    tracker,
		governor:   governor,
		cache:      cacheManager,
		logger:     logger,
	}, nil
}

// Request describes an API call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// Response is a completed API call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// RequestID is the correlation id generated for this call, matching the
	// request_id field of log events emitted while it ran.
	RequestID string
}

// Do performs a governed API request: cache lookup, rate limit gate, HTTP
// exchange, header tracking, error classification and retry. Transient
// failures surface only after retries are exhausted; permanent failures
// surface immediately.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	requestID := uuid.NewString()
	logger := c.logger.With().
		Str("request_id", requestID).
		Str("endpoint", req.Path).
		Logger()

	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(req.Path).Observe(time.Since(start).Seconds())
	}()

	var payload []byte
	if req.Body != nil {
		var err error
		payload, err = json.Marshal(req.Body)
		if err != nil {
			return nil, &Error{Kind: KindValidation, Message: "marshal request body", RequestID: requestID, Err: err}
		}
	}

	cacheKey := cache.Key{Method: req.Method, Path: req.Path, Payload: payload}
	if c.cache != nil {
		entry, err := c.cache.Get(ctx, cacheKey)
		if err == nil {
			logger.Debug().Msg("Serving response from cache")
			requestsTotal.WithLabelValues(req.Path, "cached").Inc()
			return &Response{
				StatusCode: entry.StatusCode,
				Header:     entry.Headers,
				Body:       entry.Data,
				RequestID:  requestID,
			}, nil
		}
		if err != cache.ErrCacheMiss {
			logger.Warn().Err(err).Msg("Cache get error")
		}
	}

	if err := c.governor.Acquire(ctx, requestID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContextCancelled, err)
	}

	logger.Debug().Str("method", req.Method).Msg("Executing API request")

	var result *Response
	err := retryWithBackoff(ctx, logger, c.cfg.Retry, func() error {
		httpReq, err := c.buildRequest(ctx, req, payload)
		if err != nil {
			return &Error{Kind: KindValidation, Message: "build request", RequestID: requestID, Err: err}
		}

		httpResp, err := c.httpClient.Do(httpReq)
		if err != nil {
			errorsTotal.WithLabelValues(string(KindNetwork)).Inc()
			requestsTotal.WithLabelValues(req.Path, "network_error").Inc()
			logger.Warn().Err(err).Msg("HTTP request failed")
			return networkError(err, requestID)
		}
		defer func() { _ = httpResp.Body.Close() }()

		// Every completed response feeds the tracker, error statuses
		// included, and wakes one queued waiter.
		c.tracker.UpdateFromHeaders(ctx, httpResp.Header)

		body, err := readBody(httpResp.Body)
		if err != nil {
			errorsTotal.WithLabelValues(string(KindNetwork)).Inc()
			return networkError(err, requestID)
		}

		requestsTotal.WithLabelValues(req.Path, strconv.Itoa(httpResp.StatusCode)).Inc()

		if httpResp.StatusCode >= http.StatusBadRequest {
			apiErr := classifyResponse(httpResp.StatusCode, body, httpResp.Header, requestID)
			errorsTotal.WithLabelValues(string(apiErr.Kind)).Inc()
			logger.Warn().
				Int("status", httpResp.StatusCode).
				Str("kind", string(apiErr.Kind)).
				Msg("API request error")
			return apiErr
		}

		result = &Response{
			StatusCode: httpResp.StatusCode,
			Header:     httpResp.Header,
			Body:       body,
			RequestID:  requestID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if c.cache != nil && result.StatusCode == http.StatusOK {
		entry := cache.NewEntry(result.Body, result.StatusCode, result.Header, c.cfg.CacheTTL)
		if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			logger.Warn().Err(err).Msg("Failed to cache response")
		}
	}

	return result, nil
}

// Get performs a governed GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post performs a governed POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
}

// RateLimitState returns the most recent rate limit snapshot, or nil when no
// response carrying rate limit headers has been observed yet.
func (c *Client) RateLimitState() *ratelimit.State {
	return c.tracker.State()
}

// QueuedRequests returns the number of callers currently queued waiting for
// rate limit reset.
func (c *Client) QueuedRequests() int {
	return c.tracker.QueuedCount()
}

func (c *Client) buildRequest(ctx context.Context, req *Request, payload []byte) (*http.Request, error) {
	u := c.baseURL.JoinPath(req.Path)
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Authorization", c.cfg.APIKey)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	return httpReq, nil
}

// readBody reads a response body with a size cap to avoid unbounded memory
// growth on a misbehaving upstream.
func readBody(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, maxResponseBody+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if len(body) > maxResponseBody {
		return nil, fmt.Errorf("response too large: exceeds %d bytes", maxResponseBody)
	}
	return body, nil
}
