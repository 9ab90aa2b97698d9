package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sitemetrics/perfhub/internal/payload"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Timestamps are always written from Go so both sides of every comparison
// share the driver's encoding.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS reports (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL,
	kind       TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	payload    TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS purchases (
	id            TEXT PRIMARY KEY,
	purchase_type TEXT NOT NULL,
	report_id     TEXT,
	purchased_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_url ON reports(url);
CREATE INDEX IF NOT EXISTS idx_reports_kind ON reports(kind);
CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);
CREATE INDEX IF NOT EXISTS idx_purchases_type_time ON purchases(purchase_type, purchased_at);
CREATE INDEX IF NOT EXISTS idx_purchases_report ON purchases(report_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveReport(ctx context.Context, rep *StoredReport) error {
	payloadJSON, err := json.Marshal(rep.Payload)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal payload")
	}

	createdAt := rep.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (id, url, kind, started_at, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET url = excluded.url, kind = excluded.kind,
		 started_at = excluded.started_at, payload = excluded.payload, created_at = excluded.created_at`,
		rep.ID, rep.URL, string(rep.Kind), rep.StartedAt.UTC(), string(payloadJSON), createdAt,
	)
	return eris.Wrapf(err, "sqlite: save report %s", rep.ID)
}

func (s *SQLiteStore) GetReport(ctx context.Context, id string) (*StoredReport, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, url, kind, started_at, payload, created_at FROM reports WHERE id = ?`,
		id,
	)
	rep, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rep, err
}

func (s *SQLiteStore) ListReports(ctx context.Context, filter ReportFilter) ([]StoredReport, error) {
	query := `SELECT id, url, kind, started_at, payload, created_at FROM reports WHERE 1=1`
	var args []any

	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	if filter.URL != "" {
		query += ` AND url = ?`
		args = append(args, filter.URL)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reports")
	}
	defer rows.Close()

	var reports []StoredReport
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *rep)
	}
	return reports, eris.Wrap(rows.Err(), "sqlite: list reports iterate")
}

func (s *SQLiteStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM reports WHERE created_at < ?`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete old reports")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) MarkPurchase(ctx context.Context, purchaseType, reportID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO purchases (id, purchase_type, report_id, purchased_at) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), purchaseType, reportID, at.UTC(),
	)
	return eris.Wrapf(err, "sqlite: mark purchase %s", purchaseType)
}

func (s *SQLiteStore) LatestPurchaseByType(ctx context.Context, purchaseType string) (time.Time, bool, error) {
	var at time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT purchased_at FROM purchases WHERE purchase_type = ? ORDER BY purchased_at DESC LIMIT 1`,
		purchaseType,
	).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, eris.Wrap(err, "sqlite: latest purchase")
	}
	return at, true, nil
}

func (s *SQLiteStore) HasReportPurchase(ctx context.Context, reportID string) (bool, error) {
	if reportID == "" {
		return false, nil
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM purchases WHERE report_id = ?`,
		reportID,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: has report purchase")
	}
	return n > 0, nil
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanReport(row scannable) (*StoredReport, error) {
	var rep StoredReport
	var kind, payloadJSON string

	err := row.Scan(&rep.ID, &rep.URL, &kind, &rep.StartedAt, &payloadJSON, &rep.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan report")
	}

	rep.Kind = payload.Kind(kind)
	if err := json.Unmarshal([]byte(payloadJSON), &rep.Payload); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal payload")
	}
	return &rep, nil
}
