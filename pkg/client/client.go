// Package client is the HTTP gateway to a Redmine server. It sends XML
// requests, maps response statuses to apierr kinds, revalidates cached GET
// responses and refuses requests while the server has asked for back-off.
// It never retries.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/redmine-connector/pkg/apierr"
	"github.com/Sternrassler/redmine-connector/pkg/cache"
	"github.com/Sternrassler/redmine-connector/pkg/ratelimit"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for gateway operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redmine_requests_total",
		Help: "Total Redmine requests by method and status",
	}, []string{"method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "redmine_request_duration_seconds",
		Help:    "Redmine request duration in seconds by method",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"method"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "redmine_errors_total",
		Help: "Total Redmine errors by class",
	}, []string{"class"})
)

// Header names.
const (
	HeaderAPIKey    = "X-Redmine-API-Key"
	HeaderRequestID = "X-Request-Id"
)

const contentTypeXML = "application/xml"

// Client is the Redmine gateway.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cache      *cache.Manager
	backoff    *ratelimit.Tracker
	principal  string
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the server root, e.g. "https://redmine.example.com".
	BaseURL string

	// APIKey is sent as X-Redmine-API-Key when set.
	APIKey string

	// UserAgent header.
	UserAgent string

	// Timeout bounds each request.
	Timeout time.Duration

	// Redis enables the response cache and shares back-off windows between
	// processes. Optional.
	Redis *redis.Client
}

// DefaultConfig returns a configuration for baseURL without cache.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: "redmine-connector/1.0",
		Timeout:   30 * time.Second,
	}
}

// New creates a gateway.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, apierr.Newf(apierr.KindIllegalArgument,
			"base url must be an absolute http(s) url (got %q)", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, apierr.New(apierr.KindIllegalArgument, "user-agent is required")
	}

	if cfg.Timeout < 0 {
		return nil, apierr.Newf(apierr.KindIllegalArgument, "timeout must be >= 0 (got %s)", cfg.Timeout)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := log.With().Str("component", "redmine-gateway").Str("server", base.Host).Logger()

	var store redis.Cmdable
	var manager *cache.Manager
	if cfg.Redis != nil {
		store = cfg.Redis
		if manager, err = cache.NewManager(cfg.Redis); err != nil {
			return nil, err
		}
	}

	principal := "anonymous"
	if cfg.APIKey != "" {
		principal = uuid.NewSHA1(uuid.NameSpaceURL, []byte(base.String()+"#"+cfg.APIKey)).String()
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(base.String(), "/"),
		cache:      manager,
		backoff:    ratelimit.NewTracker(store, base.Host, logger),
		principal:  principal,
		config:     cfg,
		logger:     logger,
	}, nil
}

// BaseURL returns the normalized server root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get fetches path, e.g. "/issues.xml?offset=0&limit=25".
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post sends an XML body to path.
func (c *Client) Post(ctx context.Context, path string, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

// Put sends an XML body to path.
func (c *Client) Put(ctx context.Context, path string, body []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPut, path, body)
}

// Delete removes the resource at path.
func (c *Client) Delete(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

// do performs one request. On success the body is returned. On a 422 the body
// is returned together with an unprocessable entity error.
func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	op := method + " " + path

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(method).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Back-off gate
	allowed, wait, err := c.backoff.ShouldAllowRequest(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Back-off check failed, sending request")
	} else if !allowed {
		errorsTotal.WithLabelValues(string(ErrorClassThrottled)).Inc()
		requestsTotal.WithLabelValues(method, "throttled").Inc()
		return nil, &apierr.Error{
			Kind:    apierr.KindThrottled,
			Op:      op,
			Message: fmt.Sprintf("server asked to back off, retry in %s", wait.Round(time.Second)),
		}
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindIllegalArgument, "create request", err)
	}
	requestID := req.Header.Get(HeaderRequestID)

	// Step 2: Conditional request for cached GETs
	var cacheKey cache.Key
	var cached *cache.Entry
	if method == http.MethodGet && c.cache != nil {
		cacheKey = cache.KeyForURL(req.URL, c.principal)
		cached, err = c.cache.Get(ctx, cacheKey)
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("path", path).Msg("Cache get error")
		}
		if cached.Revalidatable() {
			cache.AddConditionalHeaders(req, cached)
			c.logger.Debug().Str("path", path).Str("etag", cached.ETag).Msg("Making conditional request")
		}
	}

	c.logger.Trace().
		Str("method", method).
		Str("path", path).
		Str("request_id", requestID).
		Int("body_bytes", len(body)).
		Msg("Executing Redmine request")

	// Step 3: Send
	resp, err := c.httpClient.Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(method, "network_error").Inc()
		c.logger.Error().Err(err).Str("method", method).Str("path", path).Str("request_id", requestID).Msg("HTTP request failed")
		return nil, &apierr.Error{Kind: apierr.KindIO, Op: op, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(method, "network_error").Inc()
		return nil, &apierr.Error{Kind: apierr.KindIO, Op: op, StatusCode: resp.StatusCode, Message: "read response body", Err: err}
	}

	status := strconv.Itoa(resp.StatusCode)
	requestsTotal.WithLabelValues(method, status).Inc()

	// Step 4: Record back-off requests
	opened, err := c.backoff.UpdateFromResponse(ctx, resp.StatusCode, resp.Header)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to record back-off window")
	}

	// Step 5: 304 Not Modified
	if resp.StatusCode == http.StatusNotModified && cached != nil {
		cache.NotModified.Inc()
		c.logger.Debug().Str("path", path).Msg("304 Not Modified - using cache")
		if expires := resp.Header.Get("Expires"); expires != "" {
			if t, err := http.ParseTime(expires); err == nil && t.After(cached.Expires) {
				if err := c.cache.UpdateTTL(ctx, cacheKey, t); err != nil {
					c.logger.Warn().Err(err).Msg("Failed to update cache TTL")
				}
			}
		}
		return cached.Body, nil
	}

	// Step 6: Failures
	if resp.StatusCode >= 300 {
		class := classifyStatus(resp.StatusCode)
		if class == "" {
			class = ErrorClassClient
		}
		errorsTotal.WithLabelValues(string(class)).Inc()

		apiErr := statusError(op, resp, respBody)
		if opened {
			apiErr.Kind = apierr.KindThrottled
		}

		event := c.logger.Warn()
		if resp.StatusCode >= 500 {
			event = c.logger.Error()
		}
		event.Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Str("request_id", requestID).
			Msg("Redmine request error")

		if apiErr.Kind == apierr.KindUnprocessableEntity {
			return respBody, apiErr
		}
		return nil, apiErr
	}

	// Step 7: Success
	c.afterSuccess(ctx, req, resp, respBody)

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Int("bytes", len(respBody)).
		Dur("duration", time.Since(startTime)).
		Msg("Redmine request complete")

	return respBody, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", contentTypeXML)
	if body != nil {
		req.Header.Set("Content-Type", contentTypeXML)
	}
	if c.config.APIKey != "" {
		req.Header.Set(HeaderAPIKey, c.config.APIKey)
	}
	req.Header.Set(HeaderRequestID, uuid.NewString())

	return req, nil
}

// afterSuccess stores fresh GET responses and drops every cached variant
// (includes, principals) of a resource that was just changed.
func (c *Client) afterSuccess(ctx context.Context, req *http.Request, resp *http.Response, body []byte) {
	if c.cache == nil {
		return
	}

	switch req.Method {
	case http.MethodGet:
		if resp.StatusCode != http.StatusOK {
			return
		}
		entry, err := cache.NewEntry(resp, body)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to create cache entry")
			return
		}
		if !entry.Revalidatable() {
			return
		}
		if err := c.cache.Set(ctx, cache.KeyForURL(req.URL, c.principal), entry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
			return
		}
		c.logger.Debug().Str("path", req.URL.Path).Dur("ttl", entry.TTL()).Msg("Cached response")

	case http.MethodPut, http.MethodDelete:
		if err := c.cache.InvalidateResource(ctx, cache.Key{Path: req.URL.Path}); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to invalidate cached resource")
		}
	}
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

// Principal returns the cache identity of the configured API key.
func (c *Client) Principal() string {
	return c.principal
}

// GetCache returns the cache manager, nil without Redis.
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}
