// Package store owns the application database the assistant answers
// questions from. It runs validated SQL and introspects the live schema.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/askdb/askdb/internal/schema"
	"github.com/askdb/askdb/internal/sqlsafety"
)

type Result struct {
	Columns      []string
	Rows         [][]any
	RowsAffected int64
	Duration     time.Duration
}

// RowCount returns the number of result rows.
func (r Result) RowCount() int {
	return len(r.Rows)
}

// Store wraps a single DuckDB database. An empty path opens an in-memory
// database, which the test profile uses.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Exec runs a statement without collecting rows. Used for seeding and DDL.
func (s *Store) Exec(ctx context.Context, sqlText string) error {
	if _, err := s.db.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("exec statement: %w", err)
	}
	return nil
}

// Execute runs sqlText. SELECT and WITH statements collect the full result
// set; a positive rowLimit wraps them so oversized results are truncated
// inside the engine instead of in memory. Any other statement runs as a
// write and reports rows affected, since DML cannot appear in a FROM
// subquery.
func (s *Store) Execute(ctx context.Context, sqlText string, rowLimit int) (Result, error) {
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return Result{}, fmt.Errorf("sql is required")
	}
	switch sqlsafety.StatementOf(sqlText) {
	case sqlsafety.StatementSelect, sqlsafety.StatementWith:
		return s.queryRows(ctx, sqlText, rowLimit)
	default:
		return s.execStatement(ctx, sqlText)
	}
}

func (s *Store) queryRows(ctx context.Context, sqlText string, rowLimit int) (Result, error) {
	if rowLimit > 0 {
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, rowLimit)
	}

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, sqlText)
	if err != nil {
		return Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate rows: %w", err)
	}

	return Result{
		Columns:  columns,
		Rows:     resultRows,
		Duration: time.Since(start),
	}, nil
}

func (s *Store) execStatement(ctx context.Context, sqlText string) (Result, error) {
	start := time.Now()
	res, err := s.db.ExecContext(ctx, sqlText)
	if err != nil {
		return Result{}, fmt.Errorf("execute statement: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		affected = 0
	}
	return Result{RowsAffected: affected, Duration: time.Since(start)}, nil
}

// Describe introspects the main schema through information_schema. Tables
// and columns come back in a stable order so the canonical schema text is
// deterministic.
func (s *Store) Describe(ctx context.Context) (schema.Description, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT table_name, column_name
		FROM information_schema.columns
		WHERE table_schema = 'main'
		ORDER BY table_name, ordinal_position`)
	if err != nil {
		return schema.Description{}, fmt.Errorf("describe schema: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var desc schema.Description
	var current *schema.Table
	for rows.Next() {
		var tableName, columnName string
		if err := rows.Scan(&tableName, &columnName); err != nil {
			return schema.Description{}, fmt.Errorf("scan schema row: %w", err)
		}
		if current == nil || current.Name != tableName {
			desc.Tables = append(desc.Tables, schema.Table{Name: tableName})
			current = &desc.Tables[len(desc.Tables)-1]
		}
		current.Columns = append(current.Columns, columnName)
	}
	if err := rows.Err(); err != nil {
		return schema.Description{}, fmt.Errorf("iterate schema rows: %w", err)
	}
	return desc, nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
