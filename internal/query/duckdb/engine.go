package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"
)

// ResultsView is the view that evaluation parquet reports are exposed under.
const ResultsView = "results"

// SummarySQL aggregates every run found in the reports. Rates are over
// matched examples only, so they can differ from the run's metrics.txt.
const SummarySQL = `SELECT run_id,
	COUNT(*) AS evaluated,
	AVG(CAST(correct AS DOUBLE)) AS accuracy,
	AVG(CAST(exact_match AS DOUBLE)) AS exact_match_rate,
	COUNT(*) FILTER (WHERE generated_output = 'sql error') AS sql_errors
FROM results
GROUP BY run_id
ORDER BY run_id`

type Request struct {
	SQL      string
	Files    []string
	RowLimit int
}

type Result struct {
	Columns      []string
	Rows         [][]any
	ScannedFiles int
	Duration     time.Duration
}

// Engine runs ad-hoc SQL over evaluation parquet reports with an in-memory
// DuckDB database.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

func (e *Engine) Execute(ctx context.Context, request Request) (Result, error) {
	sqlText := stripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return Result{}, fmt.Errorf("sql is required")
	}
	if len(request.Files) == 0 {
		return Result{}, fmt.Errorf("no report files given")
	}
	for _, path := range request.Files {
		if _, err := os.Stat(path); err != nil {
			return Result{}, fmt.Errorf("stat report %q: %w", path, err)
		}
	}

	start := time.Now()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return Result{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()
	// The view only exists on the connection that created it.
	db.SetMaxOpenConns(1)

	viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s, union_by_name = true)`,
		quoteIdent(ResultsView), quoteStringArray(request.Files))
	if _, err := db.ExecContext(ctx, viewSQL); err != nil {
		return Result{}, fmt.Errorf("create %s view: %w", ResultsView, err)
	}

	if request.RowLimit > 0 {
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, request.RowLimit)
	}

	rows, err := db.QueryContext(ctx, sqlText)
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
		Columns:      columns,
		Rows:         resultRows,
		ScannedFiles: len(request.Files),
		Duration:     time.Since(start),
	}, nil
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

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
