// Package billing talks to the billing service: subscription status for
// the paywall gate, checkout session creation, and payment-return
// verification. Access decisions live in internal/paywall; this package
// only reports what the server says.
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// PurchaseType identifies what a payment unlocks. Values match the
// service's purchaseType field and the report_type query parameter.
type PurchaseType string

const (
	PurchaseLighthouse PurchaseType = "lighthouse"
	PurchaseCWV        PurchaseType = "cwv"
)

// ParsePurchaseType maps a report_type/type query value to a PurchaseType.
func ParsePurchaseType(s string) (PurchaseType, bool) {
	switch PurchaseType(s) {
	case PurchaseLighthouse:
		return PurchaseLighthouse, true
	case PurchaseCWV:
		return PurchaseCWV, true
	}
	return "", false
}

// Status is the account state consulted by the paywall gate.
type Status struct {
	ProSubscriber    bool     `json:"isProSubscriber"`
	Credits          int      `json:"credits"`
	PurchasedReports []string `json:"purchasedReports"`
}

// HasReport reports whether reportID appears in the purchased list.
func (s *Status) HasReport(reportID string) bool {
	if s == nil || reportID == "" {
		return false
	}
	for _, id := range s.PurchasedReports {
		if id == reportID {
			return true
		}
	}
	return false
}

// VerifyResult is the server's verdict on a checkout session. Paid is the
// only field the gate trusts for state transitions.
type VerifyResult struct {
	Paid         bool         `json:"paid"`
	PurchaseType PurchaseType `json:"purchaseType"`
	ReportID     string       `json:"reportId"`
	CreditsAdded int          `json:"creditsAdded"`
}

// CheckoutRequest asks the service for a hosted payment page.
type CheckoutRequest struct {
	PurchaseType PurchaseType `json:"purchaseType"`
	ReportID     string       `json:"reportId"`
	ReturnURL    string       `json:"returnUrl"`
}

// Client defines the billing service operations.
type Client interface {
	// FetchStatus returns subscription state and purchased reports for
	// the bearer token's account. An empty token is allowed; the service
	// answers with the anonymous (free) status.
	FetchStatus(ctx context.Context, token string) (*Status, error)
	// VerifySession asks whether a checkout session completed payment.
	VerifySession(ctx context.Context, sessionID string) (*VerifyResult, error)
	// CreateCheckout creates a payment session and returns its hosted URL.
	CreateCheckout(ctx context.Context, token string, req CheckoutRequest) (string, error)
	// Health pings the service.
	Health(ctx context.Context) error
}

// Option configures the billing client.
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

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a billing service client.
func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) FetchStatus(ctx context.Context, token string) (*Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/billing/status", nil)
	if err != nil {
		return nil, eris.Wrap(err, "billing: create status request")
	}
	setAuth(req, token)

	body, err := c.do(ctx, req, nil)
	if err != nil {
		return nil, err
	}

	var status Status
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, eris.Wrap(err, "billing: unmarshal status")
	}
	return &status, nil
}

func (c *httpClient) VerifySession(ctx context.Context, sessionID string) (*VerifyResult, error) {
	if sessionID == "" {
		return nil, eris.New("billing: session id is required")
	}

	u := c.baseURL + "/api/billing/verify-session?session_id=" + url.QueryEscape(sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "billing: create verify request")
	}

	body, err := c.do(ctx, req, nil)
	if err != nil {
		return nil, err
	}

	var result VerifyResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "billing: unmarshal verify result")
	}
	return &result, nil
}

func (c *httpClient) CreateCheckout(ctx context.Context, token string, checkout CheckoutRequest) (string, error) {
	if checkout.PurchaseType == "" {
		return "", eris.New("billing: purchase type is required")
	}

	reqBody, err := json.Marshal(checkout)
	if err != nil {
		return "", eris.Wrap(err, "billing: marshal checkout request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/billing/checkout", bytes.NewReader(reqBody))
	if err != nil {
		return "", eris.Wrap(err, "billing: create checkout request")
	}
	req.Header.Set("Content-Type", "application/json")
	setAuth(req, token)

	body, err := c.do(ctx, req, reqBody)
	if err != nil {
		return "", err
	}

	var parsed struct {
		CheckoutURL string `json:"checkoutUrl"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", eris.Wrap(err, "billing: unmarshal checkout response")
	}
	if parsed.CheckoutURL == "" {
		return "", eris.New("billing: checkout response missing checkoutUrl")
	}
	return parsed.CheckoutURL, nil
}

func (c *httpClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/billing/health", nil)
	if err != nil {
		return eris.Wrap(err, "billing: create health request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "billing: health request")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("billing: health status %d", resp.StatusCode)
	}
	return nil
}

func setAuth(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// do executes the request with exponential backoff retries on transient
// failures (429, 502, 503; 500 is excluded so a checkout is never created
// twice against a flaky backend). Returns the body on any 2xx.
func (c *httpClient) do(ctx context.Context, req *http.Request, reqBody []byte) ([]byte, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		retryReq := req.Clone(ctx)
		if reqBody != nil {
			retryReq.Body = io.NopCloser(bytes.NewReader(reqBody))
		}

		resp, err := c.http.Do(retryReq)
		if err != nil {
			lastErr = eris.Wrap(err, "billing: request failed")
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, eris.Wrap(readErr, "billing: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("billing: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, eris.Errorf("billing: status %d: %s", resp.StatusCode, string(body))
		}

		return body, nil
	}

	return nil, lastErr
}
