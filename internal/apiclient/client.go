package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/erauner12/shopbook/internal/metrics"
)

const (
	// MaxRetries is the maximum number of 429 backoff attempts
	MaxRetries = 3

	// DefaultBackoff is the initial backoff duration for exponential backoff
	DefaultBackoff = 1 * time.Second

	// DefaultTimeout bounds a single attempt. Generous so a cold-starting
	// backend does not look unreachable.
	DefaultTimeout = 30 * time.Second

	// DefaultRefreshPath is the token refresh endpoint relative to the base URL
	DefaultRefreshPath = "/auth/token/refresh/"
)

// Config configures a Client
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	RefreshPath string

	// RateLimit throttles outbound attempts (requests per second). Zero disables.
	RateLimit float64
	RateBurst int

	// HTTPClient overrides the transport (tests). Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client is the request pipeline every backend call goes through.
// Automatically injects:
// - Authorization: Bearer <access token> (when stored)
// - X-Barbershop-Id: <tenant id> (when an active tenant is set)
// - X-Correlation-ID: <uuid> (one per logical call)
//
// Handles:
// - 401 Unauthorized: one shared refresh, retry once; otherwise clear credentials and notify hooks
// - 403 "Subscription expired": notify hooks, return ErrTenantSuspended
// - 429 Too Many Requests: respect Retry-After, exponential backoff
type Client struct {
	baseURL     string
	refreshPath string
	httpClient  *http.Client
	creds       CredentialSource
	hooks       Hooks
	limiter     *rate.Limiter

	refreshes singleflight.Group

	tenantMu sync.RWMutex
	tenantID string
}

// New creates a request pipeline. hooks may be nil.
func New(cfg Config, creds CredentialSource, hooks Hooks) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	refreshPath := cfg.RefreshPath
	if refreshPath == "" {
		refreshPath = DefaultRefreshPath
	}

	if hooks == nil {
		hooks = noopHooks{}
	}

	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		refreshPath: refreshPath,
		httpClient:  httpClient,
		creds:       creds,
		hooks:       hooks,
	}

	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return c
}

// SetTenant sets the tenant header for all subsequent requests. Empty clears it.
func (c *Client) SetTenant(id string) {
	c.tenantMu.Lock()
	c.tenantID = id
	c.tenantMu.Unlock()

	log.Debug().Str("tenantId", id).Msg("tenant header updated")
}

// Tenant returns the tenant id currently attached to requests
func (c *Client) Tenant() string {
	c.tenantMu.RLock()
	defer c.tenantMu.RUnlock()
	return c.tenantID
}

// Do executes a request with header injection and the 401/403/429 handling.
// Non-2xx responses are returned as errors (ErrStatus and friends).
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	// Generate correlation ID for request tracing
	correlationID := uuid.New().String()

	logger := log.With().
		Str("method", req.Method).
		Str("path", req.Path).
		Str("correlationId", correlationID).
		Logger()

	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}

	return c.doWithRetry(ctx, attempt{original: req, body: body, correlationID: correlationID}, &logger)
}

// DoJSON executes req and decodes a successful body into out (may be nil)
func (c *Client) DoJSON(ctx context.Context, req Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := resp.Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", req.Method, req.Path, err)
	}
	return nil
}

// doWithRetry sends one attempt and dispatches on the status code
func (c *Client) doWithRetry(ctx context.Context, at attempt, logger *zerolog.Logger) (*Response, error) {
	creds, err := c.creds.Credentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	httpReq, err := c.build(ctx, at, creds.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	// Execute request
	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	duration := time.Since(start)
	metrics.RequestDuration.WithLabelValues(at.original.Method).Observe(duration.Seconds())

	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			logger.Debug().Msg("request cancelled by caller")
			return nil, ctx.Err()
		}
		metrics.RequestsTotal.WithLabelValues(at.original.Method, "network").Inc()
		logger.Error().Err(err).Dur("duration", duration).Msg("HTTP request failed")
		return nil, ErrNetwork{Err: err}
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		metrics.RequestsTotal.WithLabelValues(at.original.Method, "network").Inc()
		logger.Error().Err(err).Msg("failed to read response body")
		return nil, ErrNetwork{Err: err}
	}

	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}
	metrics.RequestsTotal.WithLabelValues(at.original.Method, statusClass(resp.StatusCode)).Inc()

	logger.Debug().
		Int("status", resp.StatusCode).
		Dur("duration", duration).
		Int("attempt", at.n).
		Msg("HTTP request completed")

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return out, nil

	case resp.StatusCode == http.StatusUnauthorized: // 401
		return c.handleUnauthorized(ctx, at, creds.AccessToken, out, logger)

	case resp.StatusCode == http.StatusForbidden: // 403
		return nil, c.handleForbidden(out, logger)

	case resp.StatusCode == http.StatusTooManyRequests: // 429
		return c.handleRateLimit(ctx, at, out, logger)

	case resp.StatusCode == http.StatusConflict: // 409
		logger.Warn().Msg("409 Conflict - returning to caller")
		return nil, ErrStatus{StatusCode: out.StatusCode, Body: out.Body}

	default:
		return nil, ErrStatus{StatusCode: out.StatusCode, Body: out.Body}
	}
}

// handleUnauthorized refreshes once and re-issues the original request.
// sentToken is the bearer token the failed attempt carried ("" = anonymous).
func (c *Client) handleUnauthorized(ctx context.Context, at attempt, sentToken string, resp *Response, logger *zerolog.Logger) (*Response, error) {
	statusErr := ErrStatus{StatusCode: resp.StatusCode, Body: resp.Body}

	if sentToken == "" {
		// Anonymous call: nothing to refresh, nothing to clear
		logger.Debug().Msg("401 on anonymous request - not refreshing")
		return nil, statusErr
	}

	if at.retried {
		logger.Warn().Msg("401 Unauthorized after refresh - returning to caller")
		return nil, statusErr
	}

	logger.Warn().Msg("401 Unauthorized - refreshing access token")

	if _, err := c.refresh(ctx, sentToken, logger); err != nil {
		var rejected ErrRefreshRejected
		switch {
		case errors.Is(err, errNoRefreshToken), errors.As(err, &rejected):
			c.forceLogout(ctx, err, logger)
			return nil, statusErr
		default:
			// Network or server trouble during refresh is not an auth verdict
			logger.Warn().Err(err).Msg("refresh could not complete - keeping credentials")
			return nil, err
		}
	}

	next := at.next()
	next.retried = true
	return c.doWithRetry(ctx, next, logger)
}

// forceLogout clears credentials and the tenant header and notifies hooks
func (c *Client) forceLogout(ctx context.Context, cause error, logger *zerolog.Logger) {
	metrics.ForcedLogoutsTotal.Inc()
	logger.Warn().Err(cause).Msg("session cannot be refreshed - clearing credentials")

	if err := c.creds.Clear(context.WithoutCancel(ctx)); err != nil {
		logger.Error().Err(err).Msg("failed to clear credentials")
	}
	c.SetTenant("")
	c.hooks.OnUnauthorized(SessionExpiredReason)
}

// handleForbidden distinguishes tenant suspension from a plain 403
func (c *Client) handleForbidden(resp *Response, logger *zerolog.Logger) error {
	statusErr := ErrStatus{StatusCode: resp.StatusCode, Body: resp.Body}

	var payload struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(resp.Body, &payload) == nil && payload.Detail == SubscriptionExpiredDetail {
		metrics.TenantSuspensionsTotal.Inc()
		logger.Warn().Str("tenantId", c.Tenant()).Msg("403 Subscription expired - tenant suspended")
		c.hooks.OnTenantSuspended(payload.Detail)
		return ErrTenantSuspended{Detail: payload.Detail, Status: statusErr}
	}

	return statusErr
}

// handleRateLimit handles 429 Too Many Requests with exponential backoff
func (c *Client) handleRateLimit(ctx context.Context, at attempt, resp *Response, logger *zerolog.Logger) (*Response, error) {
	// Parse Retry-After header (seconds or HTTP-date)
	retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))

	if at.throttled >= MaxRetries {
		logger.Warn().Msg("Rate limited - max retries exceeded")
		return nil, ErrRateLimited{RetryAfter: int(retryAfter.Seconds())}
	}

	// Apply exponential backoff if no Retry-After header
	if retryAfter == 0 {
		retryAfter = DefaultBackoff * time.Duration(1<<at.throttled)
	}

	logger.Warn().
		Dur("retryAfter", retryAfter).
		Int("throttled", at.throttled).
		Msg("Rate limited - backing off")

	next := at.next()
	next.throttled++

	// Wait before retry
	timer := time.NewTimer(retryAfter)
	defer timer.Stop()
	select {
	case <-timer.C:
		return c.doWithRetry(ctx, next, logger)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// build creates the HTTP request for one attempt. Caller headers are copied;
// the managed headers override them when a stored value exists.
func (c *Client) build(ctx context.Context, at attempt, accessToken string) (*http.Request, error) {
	var body io.Reader
	if at.body != nil {
		body = bytes.NewReader(at.body)
	}

	req, err := http.NewRequestWithContext(ctx, at.original.Method, c.url(at.original.Path), body)
	if err != nil {
		return nil, err
	}

	if len(at.original.Query) > 0 {
		req.URL.RawQuery = at.original.Query.Encode()
	}

	for k, v := range at.original.Header {
		req.Header[k] = append([]string(nil), v...)
	}

	if at.body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderCorrelationID, at.correlationID)

	if accessToken != "" {
		req.Header.Set(HeaderAuthorization, "Bearer "+accessToken)
	}
	if tenant := c.Tenant(); tenant != "" {
		req.Header.Set(HeaderTenant, tenant)
	}

	return req, nil
}

func (c *Client) url(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	default:
		return json.Marshal(b)
	}
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

// parseRetryAfter parses the Retry-After header
// Supports both integer seconds and HTTP-date format
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	// Try parsing as integer (seconds)
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	// Try parsing as HTTP-date
	if t, err := http.ParseTime(value); err == nil {
		duration := time.Until(t)
		if duration > 0 {
			return duration
		}
	}

	// Fallback
	return 0
}
