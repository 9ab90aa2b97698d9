package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sitemetrics/perfhub/internal/advice"
	"github.com/sitemetrics/perfhub/internal/analyzer"
	"github.com/sitemetrics/perfhub/internal/billing"
	"github.com/sitemetrics/perfhub/internal/payload"
	"github.com/sitemetrics/perfhub/internal/paywall"
	"github.com/sitemetrics/perfhub/internal/session"
	"github.com/sitemetrics/perfhub/internal/store"
)

type mockAnalyzer struct {
	mock.Mock
}

func (m *mockAnalyzer) Run(ctx context.Context, kind payload.Kind, req analyzer.Request) (map[string]any, error) {
	args := m.Called(ctx, kind, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]any), args.Error(1)
}

func (m *mockAnalyzer) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type mockBilling struct {
	mock.Mock
}

func (m *mockBilling) FetchStatus(ctx context.Context, token string) (*billing.Status, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Status), args.Error(1)
}

func (m *mockBilling) VerifySession(ctx context.Context, sessionID string) (*billing.VerifyResult, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.VerifyResult), args.Error(1)
}

func (m *mockBilling) CreateCheckout(ctx context.Context, token string, req billing.CheckoutRequest) (string, error) {
	args := m.Called(ctx, token, req)
	return args.String(0), args.Error(1)
}

func (m *mockBilling) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// blockingAnalyzer parks Run until released, for in-flight tests.
type blockingAnalyzer struct {
	entered chan struct{}
	release chan struct{}
	result  map[string]any
}

func (b *blockingAnalyzer) Run(ctx context.Context, kind payload.Kind, req analyzer.Request) (map[string]any, error) {
	b.entered <- struct{}{}
	select {
	case <-b.release:
		return b.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *blockingAnalyzer) Health(ctx context.Context) error { return nil }

// memStore is a behavioral in-memory Store for handler tests.
type memStore struct {
	mu      sync.Mutex
	reports map[string]store.StoredReport
}

func newMemStore() *memStore {
	return &memStore{reports: make(map[string]store.StoredReport)}
}

func (s *memStore) SaveReport(ctx context.Context, rep *store.StoredReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rep
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.reports[cp.ID] = cp
	return nil
}

func (s *memStore) GetReport(ctx context.Context, id string) (*store.StoredReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rep, ok := s.reports[id]
	if !ok {
		return nil, nil
	}
	return &rep, nil
}

func (s *memStore) ListReports(ctx context.Context, filter store.ReportFilter) ([]store.StoredReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.StoredReport
	for _, rep := range s.reports {
		if filter.Kind != "" && rep.Kind != filter.Kind {
			continue
		}
		out = append(out, rep)
	}
	return out, nil
}

func (s *memStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, rep := range s.reports {
		if rep.CreatedAt.Before(cutoff) {
			delete(s.reports, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) MarkPurchase(ctx context.Context, purchaseType, reportID string, at time.Time) error {
	return nil
}

func (s *memStore) LatestPurchaseByType(ctx context.Context, purchaseType string) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

func (s *memStore) HasReportPurchase(ctx context.Context, reportID string) (bool, error) {
	return false, nil
}

func (s *memStore) Migrate(ctx context.Context) error { return nil }
func (s *memStore) Ping(ctx context.Context) error    { return nil }
func (s *memStore) Close() error                      { return nil }

// newTestServer wires a Server with in-memory state and a wide-open rate
// limit so tests never trip it.
func newTestServer(t *testing.T, an analyzer.Client, bc billing.Client) (*Server, *memStore) {
	t.Helper()
	st := newMemStore()
	srv := New(an, bc, paywall.NewGate(bc, paywall.NewMemoryRecords()), st, session.NewManager(), advice.Default(), Config{
		ReportsDir:     t.TempDir(),
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	})
	return srv, st
}

func quickPayload() map[string]any {
	return map[string]any{
		"summary": map[string]any{
			"totalRequests":         float64(40),
			"estimatedPageWeightKB": float64(900),
			"renderBlockingCount":   float64(3),
			"serverResponseTime":    float64(420),
		},
		"issues": []any{
			map[string]any{
				"severity":       "high",
				"title":          "Large images",
				"recommendation": "Compress hero images.",
			},
		},
	}
}

func fullPayload() map[string]any {
	return map[string]any{
		"desktop": map[string]any{
			"lighthouse":    map[string]any{"performance": float64(88), "accessibility": float64(95), "bestPractices": float64(92), "seo": float64(100)},
			"coreWebVitals": map[string]any{"lcpMs": float64(2100), "clsNum": 0.04, "inpMs": float64(120)},
		},
		"mobile": map[string]any{
			"lighthouse":    map[string]any{"performance": float64(62)},
			"coreWebVitals": map[string]any{"lcpMs": float64(4100), "clsNum": 0.12, "inpMs": float64(300)},
		},
		"audits": []any{
			map[string]any{"id": "render-blocking-resources", "title": "Eliminate render-blocking resources", "score": 0.4, "displayValue": "450 ms"},
		},
	}
}

func anonymousStatus() *billing.Status {
	return &billing.Status{}
}

func subscriberStatus() *billing.Status {
	return &billing.Status{ProSubscriber: true}
}
