// Package analyzer provides the client for the performance analysis
// backend. One backend serves three scan modes on separate endpoints; the
// full Lighthouse run is slow enough to need its own deadline, and hitting
// that deadline is reported through a dedicated sentinel so callers can
// suggest the quick scan instead of showing a generic failure.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sitemetrics/perfhub/internal/payload"
)

// ErrScanTimeout is returned when a full scan exceeds its deadline. Callers
// match it with errors.Is; the error text is never what distinguishes a
// timeout from an ordinary failure.
var ErrScanTimeout = eris.New("analyzer: full scan timed out")

// FullScanTimeout caps a full Lighthouse run.
const FullScanTimeout = 300 * time.Second

// Client defines the analyzer backend operations.
type Client interface {
	// Run executes one scan and returns the raw payload for the
	// classifier. Full scans are aborted with ErrScanTimeout after
	// FullScanTimeout.
	Run(ctx context.Context, kind payload.Kind, req Request) (map[string]any, error)
	// Health pings the backend.
	Health(ctx context.Context) error
}

// Request is the scan request body shared by all three endpoints.
type Request struct {
	URL           string `json:"url"`
	ScanStartedAt string `json:"scanStartedAt"`
	AnalyzerKey   string `json:"analyzerKey"`
}

// NewRequest builds the request body for a scan of url starting now.
func NewRequest(normalizedURL string, kind payload.Kind, startedAt time.Time) Request {
	return Request{
		URL:           normalizedURL,
		ScanStartedAt: startedAt.UTC().Format(time.RFC3339),
		AnalyzerKey:   kind.AnalyzerKey(),
	}
}

// BackendError carries the backend's own error field so the UI can show it
// verbatim, with the generic fallback left to the caller.
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("analyzer: backend status %d", e.Status)
	}
	return fmt.Sprintf("analyzer: backend status %d: %s", e.Status, e.Message)
}

// Option configures the analyzer client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithFullScanTimeout overrides the full scan deadline (for testing).
func WithFullScanTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.fullTimeout = d
	}
}

// WithLimiter replaces the default request rate limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *httpClient) {
		c.limiter = l
	}
}

type httpClient struct {
	baseURL     string
	http        *http.Client
	limiter     *rate.Limiter
	fullTimeout time.Duration
}

// NewClient creates an analyzer backend client.
func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL:     baseURL,
		fullTimeout: FullScanTimeout,
		limiter:     rate.NewLimiter(rate.Every(500*time.Millisecond), 2),
		http: &http.Client{
			// No client-level timeout: per-call deadlines come from the
			// context so the full scan cap stays in one place.
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func endpointFor(kind payload.Kind) string {
	switch kind {
	case payload.KindFull:
		return "/api/performance"
	case payload.KindCWV:
		return "/api/core-web-vitals"
	default:
		return "/api/performance-snapshot"
	}
}

func (c *httpClient) Run(ctx context.Context, kind payload.Kind, scan Request) (map[string]any, error) {
	runCtx := ctx
	if kind == payload.KindFull {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeoutCause(ctx, c.fullTimeout, ErrScanTimeout)
		defer cancel()
	}

	if err := c.limiter.Wait(runCtx); err != nil {
		return nil, c.scanErr(runCtx, err, "analyzer: rate limit wait")
	}

	reqBody, err := json.Marshal(scan)
	if err != nil {
		return nil, eris.Wrap(err, "analyzer: marshal request")
	}

	req, err := http.NewRequestWithContext(runCtx, http.MethodPost, c.baseURL+endpointFor(kind), bytes.NewReader(reqBody))
	if err != nil {
		return nil, eris.Wrap(err, "analyzer: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	body, statusCode, err := c.retryDo(runCtx, req, reqBody)
	if err != nil {
		return nil, c.scanErr(runCtx, err, "analyzer: request failed")
	}

	if statusCode != http.StatusOK {
		return nil, &BackendError{Status: statusCode, Message: backendMessage(body)}
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, eris.Wrap(err, "analyzer: unmarshal payload")
	}
	return raw, nil
}

func (c *httpClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return eris.Wrap(err, "analyzer: create health request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "analyzer: health request")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("analyzer: health status %d", resp.StatusCode)
	}
	return nil
}

// scanErr swaps in the timeout sentinel when the run context expired on the
// full scan deadline; signal identity, not error text, is what callers key
// off.
func (c *httpClient) scanErr(runCtx context.Context, err error, msg string) error {
	if cause := context.Cause(runCtx); cause != nil && errors.Is(cause, ErrScanTimeout) {
		return eris.Wrap(ErrScanTimeout, msg)
	}
	return eris.Wrap(err, msg)
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes an HTTP request with exponential backoff retries on
// transient failures (429, 500, 502, 503). Returns the response body and
// status code on success, or the last error after exhausting retries.
func (c *httpClient) retryDo(ctx context.Context, req *http.Request, reqBody []byte) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		retryReq := req.Clone(ctx)
		retryReq.Body = io.NopCloser(bytes.NewReader(reqBody))

		resp, err := c.http.Do(retryReq)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "analyzer: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("analyzer: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

// backendMessage pulls the error text out of a failure body, tolerating the
// field spellings the backend has used.
func backendMessage(body []byte) string {
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	if parsed.Error != "" {
		return parsed.Error
	}
	return parsed.Message
}
