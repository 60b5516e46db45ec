package evaluation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/nlsql/nlsql/internal/dataset"
)

const (
	EvaluationDataFile = "evaluation_data.json"
	MetricsFile        = "metrics.txt"
	ParquetFile        = "evaluation_data.parquet"
)

type EvaluationExample struct {
	Labels          json.RawMessage `json:"labels"`
	ArabicQuery     string          `json:"Arabic-Query"`
	SQLQuery        string          `json:"SQL-Query"`
	Output          string          `json:"output"`
	Variation       string          `json:"variation"`
	GeneratedSQL    string          `json:"Generated-SQL"`
	GeneratedOutput string          `json:"Generated-Output"`
}

type ResultEntry struct {
	EnglishQuery      string            `json:"English-Query"`
	ArabicQuery       string            `json:"Arabic-Query"`
	SQLQuery          string            `json:"SQL-Query"`
	Importancy        json.RawMessage   `json:"importancy"`
	ID                json.RawMessage   `json:"id"`
	EvaluationExample EvaluationExample `json:"evaluation-example"`

	Correct    bool `json:"-"`
	ExactMatch bool `json:"-"`
}

func newResultEntry(match dataset.Match, nl, generatedSQL, result string) ResultEntry {
	return ResultEntry{
		EnglishQuery: match.Group.EnglishQuery,
		ArabicQuery:  match.Group.ArabicQuery,
		SQLQuery:     match.Group.SQLQuery,
		Importancy:   match.Group.Importancy,
		ID:           match.Group.ID,
		EvaluationExample: EvaluationExample{
			Labels:          match.Example.Labels,
			ArabicQuery:     match.Example.ArabicQuery,
			SQLQuery:        match.Example.SQLQuery,
			Output:          match.Example.Output,
			Variation:       nl,
			GeneratedSQL:    generatedSQL,
			GeneratedOutput: result,
		},
	}
}

type Metrics struct {
	Accuracy               float64
	ExactMatchRate         float64
	AverageGenerationTime  float64
	ExecutionSuccessRate   float64
	TotalTime              time.Duration
	TotalEvaluatedExamples int
	TotalQueries           int
}

func computeMetrics(t tally, evaluated int, totalTime time.Duration) (Metrics, error) {
	accuracy, err := CheckAccuracy(t.correct, t.total)
	if err != nil {
		return Metrics{}, err
	}
	n := float64(t.total)
	return Metrics{
		Accuracy:               accuracy,
		ExactMatchRate:         float64(t.exact) / n,
		AverageGenerationTime:  t.generationTime / n,
		ExecutionSuccessRate:   float64(t.executable) / n,
		TotalTime:              totalTime,
		TotalEvaluatedExamples: evaluated,
		TotalQueries:           t.total,
	}, nil
}

// MetricLines renders the six report lines in their fixed order.
func MetricLines(m Metrics) []string {
	return []string{
		fmt.Sprintf("Accuracy: %.2f", m.Accuracy),
		fmt.Sprintf("Exact Match Rate: %.2f", m.ExactMatchRate),
		fmt.Sprintf("Average SQL Generation Time: %.2f seconds", m.AverageGenerationTime),
		fmt.Sprintf("Execution Success Rate: %.2f", m.ExecutionSuccessRate),
		fmt.Sprintf("Total Evaluation Time: %s", FormatElapsed(m.TotalTime)),
		fmt.Sprintf("Total Evaluated Examples: %d", m.TotalEvaluatedExamples),
	}
}

func WriteMetrics(w io.Writer, m Metrics) error {
	for _, line := range MetricLines(m) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func WriteMetricsFile(path string, m Metrics) error {
	var buf bytes.Buffer
	if err := WriteMetrics(&buf, m); err != nil {
		return fmt.Errorf("render metrics: %w", err)
	}
	if err := writeFile(path, buf.Bytes()); err != nil {
		return fmt.Errorf("write metrics file: %w", err)
	}
	return nil
}

// WriteEvaluationData writes entries as a 4-space indented JSON array with
// non-ASCII text left unescaped.
func WriteEvaluationData(path string, entries []ResultEntry) error {
	if entries == nil {
		entries = []ResultEntry{}
	}
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "    ")
	if err := encoder.Encode(entries); err != nil {
		return fmt.Errorf("encode evaluation data: %w", err)
	}
	if err := writeFile(path, bytes.TrimRight(buf.Bytes(), "\n")); err != nil {
		return fmt.Errorf("write evaluation data: %w", err)
	}
	return nil
}

// FormatElapsed renders whole seconds as H:MM:SS, prefixed with a day count
// once the duration reaches 24 hours.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	seconds := int64(d / time.Second)
	days := seconds / 86400
	seconds %= 86400
	clock := fmt.Sprintf("%d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
	switch {
	case days == 1:
		return "1 day, " + clock
	case days > 1:
		return fmt.Sprintf("%d days, %s", days, clock)
	default:
		return clock
	}
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
