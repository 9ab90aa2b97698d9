package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitemetrics/perfhub/internal/payload"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func sampleReport(id string, kind payload.Kind) *StoredReport {
	return &StoredReport{
		ID:        id,
		URL:       "https://acme.com",
		Kind:      kind,
		StartedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Payload: map[string]any{
			"summary": map[string]any{"totalRequests": float64(40)},
		},
	}
}

// storeTestSuite exercises the Store contract; every backend must pass it.
func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("SaveAndGetReport", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		rep := sampleReport("abc123def4567890", payload.KindQuick)
		require.NoError(t, s.SaveReport(ctx, rep))

		got, err := s.GetReport(ctx, "abc123def4567890")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, rep.ID, got.ID)
		assert.Equal(t, "https://acme.com", got.URL)
		assert.Equal(t, payload.KindQuick, got.Kind)
		assert.True(t, rep.StartedAt.Equal(got.StartedAt))
		assert.Equal(t, rep.Payload, got.Payload)
		assert.False(t, got.CreatedAt.IsZero())
	})

	t.Run("GetReport_Missing", func(t *testing.T) {
		s := newStore(t)

		got, err := s.GetReport(context.Background(), "nope")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("SaveReport_UpsertOverwrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		rep := sampleReport("abc123def4567890", payload.KindQuick)
		require.NoError(t, s.SaveReport(ctx, rep))

		rep.Payload = map[string]any{"summary": map[string]any{"totalRequests": float64(80)}}
		require.NoError(t, s.SaveReport(ctx, rep))

		got, err := s.GetReport(ctx, "abc123def4567890")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, map[string]any{"totalRequests": float64(80)}, got.Payload["summary"])

		list, err := s.ListReports(ctx, ReportFilter{})
		require.NoError(t, err)
		assert.Len(t, list, 1, "upsert must not duplicate rows")
	})

	t.Run("ListReports_Filters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		quick := sampleReport("1111111111111111", payload.KindQuick)
		full := sampleReport("2222222222222222", payload.KindFull)
		other := sampleReport("3333333333333333", payload.KindFull)
		other.URL = "https://other.com"

		for _, rep := range []*StoredReport{quick, full, other} {
			require.NoError(t, s.SaveReport(ctx, rep))
		}

		all, err := s.ListReports(ctx, ReportFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		fulls, err := s.ListReports(ctx, ReportFilter{Kind: payload.KindFull})
		require.NoError(t, err)
		assert.Len(t, fulls, 2)

		acme, err := s.ListReports(ctx, ReportFilter{URL: "https://acme.com", Kind: payload.KindFull})
		require.NoError(t, err)
		require.Len(t, acme, 1)
		assert.Equal(t, "2222222222222222", acme[0].ID)

		limited, err := s.ListReports(ctx, ReportFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, limited, 2)

		offset, err := s.ListReports(ctx, ReportFilter{Limit: 2, Offset: 2})
		require.NoError(t, err)
		assert.Len(t, offset, 1)
	})

	t.Run("DeleteOlderThan", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		old := sampleReport("1111111111111111", payload.KindQuick)
		old.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
		fresh := sampleReport("2222222222222222", payload.KindQuick)

		require.NoError(t, s.SaveReport(ctx, old))
		require.NoError(t, s.SaveReport(ctx, fresh))

		n, err := s.DeleteOlderThan(ctx, time.Now().UTC().Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err := s.GetReport(ctx, "1111111111111111")
		require.NoError(t, err)
		assert.Nil(t, got)

		got, err = s.GetReport(ctx, "2222222222222222")
		require.NoError(t, err)
		assert.NotNil(t, got)
	})

	t.Run("Purchases", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, ok, err := s.LatestPurchaseByType(ctx, "lighthouse")
		require.NoError(t, err)
		assert.False(t, ok)

		older := time.Now().UTC().Add(-2 * time.Hour).Truncate(time.Second)
		newer := time.Now().UTC().Truncate(time.Second)
		require.NoError(t, s.MarkPurchase(ctx, "lighthouse", "abc123def4567890", older))
		require.NoError(t, s.MarkPurchase(ctx, "lighthouse", "2222222222222222", newer))
		require.NoError(t, s.MarkPurchase(ctx, "cwv", "", newer))

		at, ok, err := s.LatestPurchaseByType(ctx, "lighthouse")
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, newer.Equal(at.UTC()), "want %v, got %v", newer, at)

		has, err := s.HasReportPurchase(ctx, "abc123def4567890")
		require.NoError(t, err)
		assert.True(t, has)

		has, err = s.HasReportPurchase(ctx, "unknown")
		require.NoError(t, err)
		assert.False(t, has)

		has, err = s.HasReportPurchase(ctx, "")
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("Ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(context.Background()))
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}
