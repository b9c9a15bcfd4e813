package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/churnwatch/pkg/core"
	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

const rawTable = "raw_sales"

// CSVReader loads CSV files through an in-memory DuckDB database so that
// delimiter, quoting and column types are sniffed by read_csv_auto.
type CSVReader struct{}

// NewCSVReader creates a CSVReader.
func NewCSVReader() *CSVReader {
	return &CSVReader{}
}

// Read loads path into a scratch table and returns its cells as text along
// with the inferred column types.
func (r *CSVReader) Read(ctx context.Context, path string) (*core.Table, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	query := fmt.Sprintf(
		"CREATE TABLE %s AS SELECT * FROM read_csv_auto('%s', header=true)",
		rawTable,
		strings.ReplaceAll(absPath, "'", "''"),
	)
	if _, err := db.ExecContext(ctx, query); err != nil {
		return nil, fmt.Errorf("failed to load CSV: %w", err)
	}

	table := &core.Table{}
	if err := describe(ctx, db, table); err != nil {
		return nil, err
	}
	if err := readRows(ctx, db, table); err != nil {
		return nil, err
	}
	return table, nil
}

// EngineVersion reports the version of the embedded DuckDB engine that
// loads CSV files.
func EngineVersion(ctx context.Context) (string, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return "", fmt.Errorf("failed to open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	var version string
	if err := db.QueryRowContext(ctx, "SELECT version()").Scan(&version); err != nil {
		return "", fmt.Errorf("failed to query duckdb version: %w", err)
	}
	return version, nil
}

func describe(ctx context.Context, db *sql.DB, table *core.Table) error {
	rows, err := db.QueryContext(ctx,
		"SELECT column_name, data_type FROM information_schema.columns WHERE table_name = ? ORDER BY ordinal_position",
		rawTable)
	if err != nil {
		return fmt.Errorf("failed to describe CSV: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return fmt.Errorf("failed to scan column: %w", err)
		}
		table.Columns = append(table.Columns, name)
		table.Types = append(table.Types, typ)
	}
	return rows.Err()
}

func readRows(ctx context.Context, db *sql.DB, table *core.Table) error {
	if len(table.Columns) == 0 {
		return nil
	}
	casts := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		casts[i] = fmt.Sprintf("CAST(%s AS VARCHAR)", quoteIdent(c))
	}
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s", strings.Join(casts, ", "), rawTable))
	if err != nil {
		return fmt.Errorf("failed to read CSV rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	values := make([]sql.NullString, len(table.Columns))
	dest := make([]any, len(values))
	for i := range values {
		dest[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
		row := make([]string, len(values))
		for i, v := range values {
			if v.Valid {
				row[i] = v.String
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return rows.Err()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
