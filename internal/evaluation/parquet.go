package evaluation

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
)

type parquetResult struct {
	RunID           string `parquet:"run_id"`
	ID              string `parquet:"id"`
	EnglishQuery    string `parquet:"english_query"`
	Variation       string `parquet:"variation"`
	SQLQuery        string `parquet:"sql_query"`
	GeneratedSQL    string `parquet:"generated_sql"`
	Output          string `parquet:"output"`
	GeneratedOutput string `parquet:"generated_output"`
	Correct         bool   `parquet:"correct"`
	ExactMatch      bool   `parquet:"exact_match"`
}

// WriteParquet writes one row per evaluated example so runs can be queried
// with columnar tools.
func WriteParquet(path, runID string, entries []ResultEntry) error {
	rows := make([]parquetResult, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, parquetResult{
			RunID:           runID,
			ID:              string(entry.ID),
			EnglishQuery:    entry.EnglishQuery,
			Variation:       entry.EvaluationExample.Variation,
			SQLQuery:        entry.EvaluationExample.SQLQuery,
			GeneratedSQL:    entry.EvaluationExample.GeneratedSQL,
			Output:          entry.EvaluationExample.Output,
			GeneratedOutput: entry.EvaluationExample.GeneratedOutput,
			Correct:         entry.Correct,
			ExactMatch:      entry.ExactMatch,
		})
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parquet dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create parquet file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := parquet.NewGenericWriter[parquetResult](file)
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return file.Close()
}
