package paywall

import (
	"context"
	"sync"
	"time"
)

// PurchaseWindow is how long a type-keyed purchase record stays valid.
const PurchaseWindow = 24 * time.Hour

// Records is the purchase memory behind the legacy type-keyed window. The
// store package provides the persistent implementation; MemoryRecords
// covers single-process use.
type Records interface {
	// MarkPurchase records a verified purchase of the given type.
	MarkPurchase(ctx context.Context, purchaseType, reportID string, at time.Time) error
	// LatestPurchaseByType returns the most recent purchase time for the
	// type, with ok false when none exists.
	LatestPurchaseByType(ctx context.Context, purchaseType string) (time.Time, bool, error)
}

// ReportRecords is the optional extension for record stores that also keep
// per-report purchases. When the gate's Records implements it, a report
// bought earlier stays unlocked after the type window closes, without a
// round trip to billing.
type ReportRecords interface {
	// HasReportPurchase reports whether a purchase for the report exists.
	HasReportPurchase(ctx context.Context, reportID string) (bool, error)
}

// MemoryRecords keeps purchase records in process memory. Records vanish on
// restart, matching what the window is for: a short-lived unlock, not an
// entitlement ledger.
type MemoryRecords struct {
	mu       sync.Mutex
	byType   map[string]time.Time
	byReport map[string]bool
}

// NewMemoryRecords creates an empty in-memory record set.
func NewMemoryRecords() *MemoryRecords {
	return &MemoryRecords{
		byType:   make(map[string]time.Time),
		byReport: make(map[string]bool),
	}
}

// MarkPurchase implements Records.
func (m *MemoryRecords) MarkPurchase(_ context.Context, purchaseType, reportID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byType[purchaseType]; !ok || at.After(existing) {
		m.byType[purchaseType] = at
	}
	if reportID != "" {
		m.byReport[reportID] = true
	}
	return nil
}

// HasReportPurchase implements ReportRecords.
func (m *MemoryRecords) HasReportPurchase(_ context.Context, reportID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byReport[reportID], nil
}

// LatestPurchaseByType implements Records.
func (m *MemoryRecords) LatestPurchaseByType(_ context.Context, purchaseType string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.byType[purchaseType]
	return at, ok, nil
}
