package paywall

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sitemetrics/perfhub/internal/billing"
)

type mockBillingClient struct {
	mock.Mock
}

func (m *mockBillingClient) FetchStatus(ctx context.Context, token string) (*billing.Status, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Status), args.Error(1)
}

func (m *mockBillingClient) VerifySession(ctx context.Context, sessionID string) (*billing.VerifyResult, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.VerifyResult), args.Error(1)
}

func (m *mockBillingClient) CreateCheckout(ctx context.Context, token string, req billing.CheckoutRequest) (string, error) {
	args := m.Called(ctx, token, req)
	return args.String(0), args.Error(1)
}

func (m *mockBillingClient) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// failingRecords errors on every call; used to prove the gate degrades
// instead of propagating record-store failures.
type failingRecords struct {
	err error
}

func (f *failingRecords) MarkPurchase(context.Context, string, string, time.Time) error {
	return f.err
}

func (f *failingRecords) LatestPurchaseByType(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, f.err
}

func (f *failingRecords) HasReportPurchase(context.Context, string) (bool, error) {
	return false, f.err
}
