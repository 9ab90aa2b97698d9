// Package store persists scan reports and purchase records. SQLite is the
// default backend for single-binary deployments; Postgres covers shared
// ones. Reports are stored as raw payload JSON keyed by their deterministic
// id, and view models are rebuilt on read so stored data never drifts from
// the renderer.
package store

import (
	"context"
	"time"

	"github.com/sitemetrics/perfhub/internal/payload"
)

// StoredReport is one persisted scan result.
type StoredReport struct {
	ID        string         `json:"id"`
	URL       string         `json:"url"`
	Kind      payload.Kind   `json:"kind"`
	StartedAt time.Time      `json:"startedAt"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"createdAt"`
}

// ReportFilter specifies criteria for listing reports.
type ReportFilter struct {
	Kind   payload.Kind `json:"kind,omitempty"`
	URL    string       `json:"url,omitempty"`
	Limit  int          `json:"limit,omitempty"`
	Offset int          `json:"offset,omitempty"`
}

// Store defines the persistence interface. The purchase methods satisfy
// paywall.Records directly.
type Store interface {
	// Reports. SaveReport upserts: ids are derived from the scan triple,
	// so a re-run of the same scan overwrites its own row. GetReport
	// returns nil without error for unknown ids.
	SaveReport(ctx context.Context, rep *StoredReport) error
	GetReport(ctx context.Context, id string) (*StoredReport, error)
	ListReports(ctx context.Context, filter ReportFilter) ([]StoredReport, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// Purchases
	MarkPurchase(ctx context.Context, purchaseType, reportID string, at time.Time) error
	LatestPurchaseByType(ctx context.Context, purchaseType string) (time.Time, bool, error)
	HasReportPurchase(ctx context.Context, reportID string) (bool, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
