// Package state exports analysis results to SQLite or PostgreSQL.
//
// Exports are write-only history: nothing read back here feeds the pipeline.
package state

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/leapstack-labs/churnwatch/pkg/core"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Dialect names a supported database. Values double as goose dialects.
type Dialect string

// Supported dialects.
const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Run kinds.
const (
	KindRisk       = "risk"
	KindPrediction = "prediction"
)

// DefaultListLimit bounds ListRuns when no limit is given.
const DefaultListLimit = 20

// Run is one exported analysis.
type Run struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Source     string    `json:"source"`
	Period     string    `json:"period"`
	Parameters string    `json:"parameters"`
	Records    int       `json:"records"`
	CreatedAt  time.Time `json:"created_at"`
}

// RunInfo describes what produced an export.
type RunInfo struct {
	Source     string
	Period     string
	Parameters string
}

// Store writes result exports.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
	now     func() time.Time
}

// ParseDSN resolves an export target. postgres:// and postgresql:// URLs
// select PostgreSQL; sqlite://path, sqlite:path or a bare path select SQLite.
func ParseDSN(dsn string) (Dialect, string, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return "", "", fmt.Errorf("export dsn is empty")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DialectPostgres, dsn, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		dsn = strings.TrimPrefix(dsn, "sqlite://")
	case strings.HasPrefix(dsn, "sqlite:"):
		dsn = strings.TrimPrefix(dsn, "sqlite:")
	case strings.Contains(dsn, "://"):
		return "", "", fmt.Errorf("unsupported export scheme in %q", dsn)
	}
	if dsn == "" {
		return "", "", fmt.Errorf("sqlite export requires a path")
	}
	return DialectSQLite, dsn, nil
}

// Open connects to dsn and applies pending migrations.
// If logger is nil, a discard logger is used.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	dialect, conn, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	driver := "pgx"
	if dialect == DialectSQLite {
		driver = "sqlite"
		conn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open(driver, conn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", dialect, err)
	}

	s := NewWithDB(db, dialect, logger)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logger.Debug("export store ready", slog.String("dialect", string(dialect)))
	return s, nil
}

// NewWithDB wraps an already open connection. Migrations are not run.
func NewWithDB(db *sql.DB, dialect Dialect, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		db:      db,
		dialect: dialect,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Dialect returns the store's dialect.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveRiskRun exports flags as one run.
func (s *Store) SaveRiskRun(ctx context.Context, info RunInfo, flags []core.RiskFlag) (*Run, error) {
	insert := s.rebind(`INSERT INTO risk_flags
		(run_id, customer_id, period, total_tons, avg_tons_last_3, drop_pct, drop_value)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)

	return s.saveRun(ctx, KindRisk, info, len(flags), func(tx *sql.Tx, runID string) error {
		for _, f := range flags {
			if _, err := tx.ExecContext(ctx, insert,
				runID, f.CustomerID, f.Period.String(), f.TotalTons, f.AvgTonsLast3, f.DropPct, f.DropValue,
			); err != nil {
				return fmt.Errorf("failed to insert risk flag for %s: %w", f.CustomerID, err)
			}
		}
		return nil
	})
}

// SavePredictionRun exports churn predictions as one run.
func (s *Store) SavePredictionRun(ctx context.Context, info RunInfo, preds []core.ChurnPrediction) (*Run, error) {
	insert := s.rebind(`INSERT INTO churn_predictions
		(run_id, customer_id, period, probability, total_tons, periods_since_last_purchase)
		VALUES (?, ?, ?, ?, ?, ?)`)

	return s.saveRun(ctx, KindPrediction, info, len(preds), func(tx *sql.Tx, runID string) error {
		for _, p := range preds {
			if _, err := tx.ExecContext(ctx, insert,
				runID, p.CustomerID, p.Period.String(), p.Probability, p.TotalTons, p.PeriodsSinceLastPurchase,
			); err != nil {
				return fmt.Errorf("failed to insert prediction for %s: %w", p.CustomerID, err)
			}
		}
		return nil
	})
}

func (s *Store) saveRun(ctx context.Context, kind string, info RunInfo, n int, rows func(*sql.Tx, string) error) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &Run{
		ID:         uuid.New().String(),
		Kind:       kind,
		Source:     info.Source,
		Period:     info.Period,
		Parameters: info.Parameters,
		Records:    n,
		CreatedAt:  s.now(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin export: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO analysis_runs
		(id, kind, source, period, parameters, records, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		run.ID, run.Kind, run.Source, run.Period, run.Parameters, run.Records, run.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	if err := rows(tx, run.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit export: %w", err)
	}

	s.logger.Info("results exported",
		slog.String("run", run.ID), slog.String("kind", kind), slog.Int("records", n))
	return run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 uses DefaultListLimit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id, kind, source, period, parameters, records, created_at
		FROM analysis_runs ORDER BY created_at DESC, id LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Kind, &r.Source, &r.Period, &r.Parameters, &r.Records, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// rebind rewrites ? placeholders as $1, $2... for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
