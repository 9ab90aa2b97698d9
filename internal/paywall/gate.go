// Package paywall decides whether a scan may run. Quick scans are always
// free; CWV and full Lighthouse scans are gated behind a subscription, a
// per-report purchase, or a recent type-keyed purchase record. Outcomes are
// states, not errors: a locked scan is a normal answer, and billing outages
// degrade to the anonymous status rather than failing the request.
package paywall

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sitemetrics/perfhub/internal/billing"
	"github.com/sitemetrics/perfhub/internal/payload"
)

// AccessState is the gate's verdict for one scan attempt.
type AccessState string

const (
	AccessFree       AccessState = "free"
	AccessPurchased  AccessState = "purchased"
	AccessSubscriber AccessState = "subscriber"
	AccessLocked     AccessState = "locked"
)

// Allows reports whether the state permits running the scan.
func (s AccessState) Allows() bool {
	return s != AccessLocked
}

// PurchaseTypeFor maps a gated scan mode to its purchase type. Quick scans
// have no purchase type because they are never gated.
func PurchaseTypeFor(kind payload.Kind) (billing.PurchaseType, bool) {
	switch kind {
	case payload.KindFull:
		return billing.PurchaseLighthouse, true
	case payload.KindCWV:
		return billing.PurchaseCWV, true
	}
	return "", false
}

// GateRequest identifies the scan being attempted.
type GateRequest struct {
	Mode     payload.Kind
	ReportID string
	Token    string
}

// Gate evaluates access for scan requests.
type Gate struct {
	billing billing.Client
	records Records
}

// NewGate creates a Gate. A nil records falls back to in-memory records.
func NewGate(billingClient billing.Client, records Records) *Gate {
	if records == nil {
		records = NewMemoryRecords()
	}
	return &Gate{billing: billingClient, records: records}
}

// CheckCanRunReport returns the access state for one scan attempt. The
// order is fixed: quick is free; a subscription grants access regardless of
// per-report purchases; then the billing service's purchased-report list;
// then locally recorded per-report purchases; then the type-keyed record
// window. Billing and record failures are logged and treated as absent, so
// the worst outcome of an outage is Locked.
func (g *Gate) CheckCanRunReport(ctx context.Context, req GateRequest) AccessState {
	if req.Mode == payload.KindQuick {
		return AccessFree
	}
	purchaseType, _ := PurchaseTypeFor(req.Mode)

	status, err := g.billing.FetchStatus(ctx, req.Token)
	if err != nil {
		zap.L().Warn("paywall: billing status fetch failed", zap.Error(err))
		status = nil
	}
	if status != nil && status.ProSubscriber {
		return AccessSubscriber
	}
	if status.HasReport(req.ReportID) {
		return AccessPurchased
	}

	// Record stores that persist per-report purchases answer for reports
	// bought before the type window closed, even with billing down.
	if rr, ok := g.records.(ReportRecords); ok && req.ReportID != "" {
		has, err := rr.HasReportPurchase(ctx, req.ReportID)
		if err != nil {
			zap.L().Warn("paywall: report purchase lookup failed", zap.Error(err))
		} else if has {
			return AccessPurchased
		}
	}

	at, ok, err := g.records.LatestPurchaseByType(ctx, string(purchaseType))
	if err != nil {
		zap.L().Warn("paywall: purchase record lookup failed", zap.Error(err))
	} else if ok && time.Since(at) < PurchaseWindow {
		return AccessPurchased
	}

	return AccessLocked
}

// ApplyPaymentReturn turns a payment-return callback into an access state.
// Only a server-verified payment with the expected purchase type unlocks;
// anything else leaves the scan Locked. A confirmed payment is recorded for
// the type window even if the write fails, since the server already took
// the money.
func (g *Gate) ApplyPaymentReturn(ctx context.Context, result *billing.VerifyResult, expected billing.PurchaseType) AccessState {
	if result == nil || !result.Paid {
		return AccessLocked
	}
	if expected != "" && result.PurchaseType != expected {
		return AccessLocked
	}

	if err := g.records.MarkPurchase(ctx, string(result.PurchaseType), result.ReportID, time.Now().UTC()); err != nil {
		zap.L().Warn("paywall: purchase record write failed",
			zap.String("purchase_type", string(result.PurchaseType)),
			zap.Error(err))
	}
	return AccessPurchased
}
