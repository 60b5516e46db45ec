package evaluation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/nlsql/nlsql/internal/dataset"
	"github.com/nlsql/nlsql/internal/nl2sql"
	"github.com/nlsql/nlsql/internal/observability"
)

// SQLErrorOutput replaces the generated output of statements that failed to
// execute.
const SQLErrorOutput = "sql error"

type Processor interface {
	Process(ctx context.Context, nl string) (nl2sql.Outcome, error)
}

type Config struct {
	DevDatasetPath  string
	ExamplesPath    string
	OutputDir       string
	ParquetEnabled  bool
	MetricsTextfile string
}

type Evaluator struct {
	Session Processor
	Config  Config
	Logger  *slog.Logger
	// Stdout receives progress lines and the final metrics.
	Stdout io.Writer
	Clock  func() time.Time
}

type Report struct {
	RunID   string
	Entries []ResultEntry
	Metrics Metrics
}

func (e *Evaluator) Run(ctx context.Context) (Report, error) {
	e.ensureDefaults()
	if e.Session == nil {
		return Report{}, fmt.Errorf("session is required")
	}

	runID := uuid.NewString()
	ctx = observability.ContextWithRunID(ctx, runID)
	logger := e.Logger.With(slog.String("run_id", runID))

	devEntries, err := dataset.LoadDevEntries(e.Config.DevDatasetPath)
	if err != nil {
		return Report{}, err
	}
	groups, err := dataset.LoadGroups(e.Config.ExamplesPath)
	if err != nil {
		return Report{}, err
	}
	if len(devEntries) == 0 {
		return Report{}, ErrNoQueries
	}
	index := dataset.NewVariantIndex(groups)
	logger.InfoContext(ctx, "evaluation started",
		slog.Int("queries", len(devEntries)),
		slog.Int("example_groups", len(groups)),
		slog.Int("variants", index.Len()),
	)

	start := e.Clock()
	t := tally{total: len(devEntries)}
	entries := make([]ResultEntry, 0)

	for i, devEntry := range devEntries {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		n := i + 1
		nl := devEntry.Input

		outcome, err := e.Session.Process(ctx, nl)
		if err != nil {
			return Report{}, fmt.Errorf("process query %d: %w", n, err)
		}
		t.generationTime += outcome.Elapsed.Seconds()

		result := outcome.Output
		if outcome.Failed {
			_, _ = fmt.Fprintf(e.Stdout, "SQL error at query %d: %s\n", n, outcome.SQL)
			result = SQLErrorOutput
		} else {
			t.executable++
		}

		if match, ok := index.Lookup(nl); ok {
			entry := newResultEntry(match, nl, outcome.SQL, result)
			entry.Correct, entry.ExactMatch = score(match.Example.SQLQuery, match.Example.Output, outcome.SQL, result)
			if entry.Correct {
				t.correct++
			}
			if entry.ExactMatch {
				t.exact++
			}
			entries = append(entries, entry)
		} else {
			logger.DebugContext(ctx, "no labeled example for query", slog.Int("index", n), slog.String("input", nl))
		}

		accuracy, _ := CheckAccuracy(t.correct, n)
		_, _ = fmt.Fprintf(e.Stdout, "%.2f%% (%d/%d) | accuracy: %.2f%%\n",
			float64(n)/float64(t.total)*100, n, t.total, accuracy*100)
	}

	totalTime := e.Clock().Sub(start)
	metrics, err := computeMetrics(t, len(entries), totalTime)
	if err != nil {
		return Report{}, err
	}

	if err := WriteEvaluationData(filepath.Join(e.Config.OutputDir, EvaluationDataFile), entries); err != nil {
		return Report{}, err
	}
	if e.Config.ParquetEnabled {
		if err := WriteParquet(filepath.Join(e.Config.OutputDir, ParquetFile), runID, entries); err != nil {
			return Report{}, err
		}
	}
	if err := WriteMetricsFile(filepath.Join(e.Config.OutputDir, MetricsFile), metrics); err != nil {
		return Report{}, err
	}
	if err := WriteMetrics(e.Stdout, metrics); err != nil {
		return Report{}, fmt.Errorf("print metrics: %w", err)
	}

	observability.SetRunMetrics(observability.RunMetrics{
		Accuracy:                 metrics.Accuracy,
		ExactMatchRate:           metrics.ExactMatchRate,
		ExecutionSuccessRate:     metrics.ExecutionSuccessRate,
		AverageGenerationSeconds: metrics.AverageGenerationTime,
		TotalQueries:             metrics.TotalQueries,
		EvaluatedExamples:        metrics.TotalEvaluatedExamples,
		Duration:                 totalTime,
	})
	if err := observability.WriteTextfile(e.Config.MetricsTextfile); err != nil {
		logger.WarnContext(ctx, "failed to export run metrics", slog.Any("error", err))
	}

	logger.InfoContext(ctx, "evaluation finished",
		slog.Float64("accuracy", metrics.Accuracy),
		slog.Float64("exact_match_rate", metrics.ExactMatchRate),
		slog.Int("evaluated_examples", metrics.TotalEvaluatedExamples),
		slog.String("duration", totalTime.String()),
	)
	return Report{RunID: runID, Entries: entries, Metrics: metrics}, nil
}

func (e *Evaluator) ensureDefaults() {
	if e.Logger == nil {
		e.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if e.Stdout == nil {
		e.Stdout = io.Discard
	}
	if e.Clock == nil {
		e.Clock = time.Now
	}
	if e.Config.OutputDir == "" {
		e.Config.OutputDir = "output"
	}
}
