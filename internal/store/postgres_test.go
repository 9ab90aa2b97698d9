package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitemetrics/perfhub/internal/payload"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetReport_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, url, kind, started_at, payload, created_at FROM reports WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	rep, err := s.GetReport(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, rep)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetReport(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	startedAt := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	createdAt := startedAt.Add(30 * time.Second)

	mock.ExpectQuery(`SELECT id, url, kind, started_at, payload, created_at FROM reports WHERE id = \$1`).
		WithArgs("abc123def4567890").
		WillReturnRows(pgxmock.NewRows([]string{"id", "url", "kind", "started_at", "payload", "created_at"}).
			AddRow("abc123def4567890", "https://acme.com", "full", startedAt, []byte(`{"lighthouse":{"performance":91}}`), createdAt))

	rep, err := s.GetReport(context.Background(), "abc123def4567890")
	require.NoError(t, err)
	require.NotNil(t, rep)
	assert.Equal(t, payload.KindFull, rep.Kind)
	assert.Equal(t, "https://acme.com", rep.URL)
	assert.Equal(t, map[string]any{"lighthouse": map[string]any{"performance": float64(91)}}, rep.Payload)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveReport_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT`).
		WithArgs("abc123def4567890", "https://acme.com", "quick", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveReport(context.Background(), sampleReport("abc123def4567890", payload.KindQuick))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListReports_FilterByKind(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, url, kind, started_at, payload, created_at FROM reports WHERE true AND kind = \$1 ORDER BY created_at DESC LIMIT \$2`).
		WithArgs("cwv", 100).
		WillReturnRows(pgxmock.NewRows([]string{"id", "url", "kind", "started_at", "payload", "created_at"}).
			AddRow("1111111111111111", "https://acme.com", "cwv", time.Now().UTC(), []byte(`{}`), time.Now().UTC()))

	reports, err := s.ListReports(context.Background(), ReportFilter{Kind: payload.KindCWV})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, payload.KindCWV, reports[0].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteOlderThan(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM reports WHERE created_at < \$1`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := s.DeleteOlderThan(context.Background(), time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkPurchase(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO purchases`).
		WithArgs(pgxmock.AnyArg(), "lighthouse", "abc123def4567890", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.MarkPurchase(context.Background(), "lighthouse", "abc123def4567890", time.Now().UTC())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestPurchaseByType(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	at := time.Now().UTC().Add(-1 * time.Hour)
	mock.ExpectQuery(`SELECT purchased_at FROM purchases WHERE purchase_type = \$1`).
		WithArgs("cwv").
		WillReturnRows(pgxmock.NewRows([]string{"purchased_at"}).AddRow(at))

	got, ok, err := s.LatestPurchaseByType(context.Background(), "cwv")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, at.Equal(got))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LatestPurchaseByType_None(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT purchased_at FROM purchases WHERE purchase_type = \$1`).
		WithArgs("cwv").
		WillReturnError(pgx.ErrNoRows)

	_, ok, err := s.LatestPurchaseByType(context.Background(), "cwv")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_HasReportPurchase(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(1\) FROM purchases WHERE report_id = \$1`).
		WithArgs("abc123def4567890").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))

	has, err := s.HasReportPurchase(context.Background(), "abc123def4567890")
	require.NoError(t, err)
	assert.True(t, has)
	assert.NoError(t, mock.ExpectationsWereMet())
}
