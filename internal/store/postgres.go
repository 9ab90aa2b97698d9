package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sitemetrics/perfhub/internal/payload"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"save_report": `INSERT INTO reports (id, url, kind, started_at, payload, created_at) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET url = excluded.url, kind = excluded.kind,
		started_at = excluded.started_at, payload = excluded.payload, created_at = excluded.created_at`,
	"get_report":      `SELECT id, url, kind, started_at, payload, created_at FROM reports WHERE id = $1`,
	"mark_purchase":   `INSERT INTO purchases (id, purchase_type, report_id, purchased_at) VALUES ($1, $2, $3, $4)`,
	"latest_purchase": `SELECT purchased_at FROM purchases WHERE purchase_type = $1 ORDER BY purchased_at DESC LIMIT 1`,
	"has_purchase":    `SELECT COUNT(1) FROM purchases WHERE report_id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS reports (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL,
	kind       TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_reports_url ON reports(url);
CREATE INDEX IF NOT EXISTS idx_reports_kind ON reports(kind);
CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);

CREATE TABLE IF NOT EXISTS purchases (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	purchase_type TEXT NOT NULL,
	report_id     TEXT,
	purchased_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_purchases_type_time ON purchases(purchase_type, purchased_at DESC);
CREATE INDEX IF NOT EXISTS idx_purchases_report ON purchases(report_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveReport(ctx context.Context, rep *StoredReport) error {
	payloadJSON, err := json.Marshal(rep.Payload)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal payload")
	}

	createdAt := rep.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO reports (id, url, kind, started_at, payload, created_at) VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET url = excluded.url, kind = excluded.kind,
		 started_at = excluded.started_at, payload = excluded.payload, created_at = excluded.created_at`,
		rep.ID, rep.URL, string(rep.Kind), rep.StartedAt.UTC(), payloadJSON, createdAt,
	)
	return eris.Wrapf(err, "postgres: save report %s", rep.ID)
}

func (s *PostgresStore) GetReport(ctx context.Context, id string) (*StoredReport, error) {
	var rep StoredReport
	var kind string
	var payloadJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, url, kind, started_at, payload, created_at FROM reports WHERE id = $1`,
		id,
	).Scan(&rep.ID, &rep.URL, &kind, &rep.StartedAt, &payloadJSON, &rep.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get report %s", id)
	}

	rep.Kind = payload.Kind(kind)
	if err := json.Unmarshal(payloadJSON, &rep.Payload); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal payload")
	}
	return &rep, nil
}

func (s *PostgresStore) ListReports(ctx context.Context, filter ReportFilter) ([]StoredReport, error) {
	query := `SELECT id, url, kind, started_at, payload, created_at FROM reports WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Kind != "" {
		query += fmt.Sprintf(` AND kind = $%d`, argIdx)
		args = append(args, string(filter.Kind))
		argIdx++
	}
	if filter.URL != "" {
		query += fmt.Sprintf(` AND url = $%d`, argIdx)
		args = append(args, filter.URL)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reports")
	}
	defer rows.Close()

	var reports []StoredReport
	for rows.Next() {
		var rep StoredReport
		var kind string
		var payloadJSON []byte
		if err := rows.Scan(&rep.ID, &rep.URL, &kind, &rep.StartedAt, &payloadJSON, &rep.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan report")
		}
		rep.Kind = payload.Kind(kind)
		if err := json.Unmarshal(payloadJSON, &rep.Payload); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal payload")
		}
		reports = append(reports, rep)
	}
	return reports, eris.Wrap(rows.Err(), "postgres: list reports iterate")
}

func (s *PostgresStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM reports WHERE created_at < $1`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete old reports")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) MarkPurchase(ctx context.Context, purchaseType, reportID string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO purchases (id, purchase_type, report_id, purchased_at) VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), purchaseType, reportID, at.UTC(),
	)
	return eris.Wrapf(err, "postgres: mark purchase %s", purchaseType)
}

func (s *PostgresStore) LatestPurchaseByType(ctx context.Context, purchaseType string) (time.Time, bool, error) {
	var at time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT purchased_at FROM purchases WHERE purchase_type = $1 ORDER BY purchased_at DESC LIMIT 1`,
		purchaseType,
	).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, eris.Wrap(err, "postgres: latest purchase")
	}
	return at, true, nil
}

func (s *PostgresStore) HasReportPurchase(ctx context.Context, reportID string) (bool, error) {
	if reportID == "" {
		return false, nil
	}
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(1) FROM purchases WHERE report_id = $1`,
		reportID,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrap(err, "postgres: has report purchase")
	}
	return n > 0, nil
}
