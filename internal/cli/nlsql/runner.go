package nlsql

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nlsql/nlsql/internal/config"
	"github.com/nlsql/nlsql/internal/evaluation"
	"github.com/nlsql/nlsql/internal/nl2sql"
	"github.com/nlsql/nlsql/internal/query"
	"github.com/nlsql/nlsql/internal/query/duckdb"
	"github.com/nlsql/nlsql/internal/query/sqldb"
)

type Options struct {
	Config config.Config
	Logger *slog.Logger
	Stdout io.Writer
	Stderr io.Writer

	// Translator and Executor replace the ones built from Config when set.
	Translator nl2sql.Translator
	Executor   query.Executor
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	logger := defaults.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cfg := defaults.Config

	fs := flag.NewFlagSet("nlsql", flag.ContinueOnError)
	fs.SetOutput(stderr)

	devDataset := fs.String("dev-dataset", cfg.Eval.DevDatasetPath, "JSON array of {\"input\": ...} queries to evaluate")
	examples := fs.String("examples", cfg.Eval.ExamplesPath, "JSON file of labeled example groups")
	outputDir := fs.String("output-dir", cfg.Eval.OutputDir, "directory for evaluation_data.json and metrics.txt")
	parquetEnabled := fs.Bool("parquet", cfg.Eval.ParquetEnabled, "also write evaluation_data.parquet")
	noExecute := fs.Bool("no-execute", false, "translate only; skip running the generated SQL (translate command)")
	reportSQL := fs.String("report-sql", duckdb.SummarySQL, "query run over the results view (report command)")
	reportLimit := fs.Int("limit", 0, "maximum rows printed by the report command (0 = unlimited)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	command := strings.TrimSpace(fs.Arg(0))
	switch command {
	case "evaluate":
		if fs.NArg() != 1 {
			writeUsage(stderr)
			return 2
		}
	case "translate":
		if strings.TrimSpace(strings.Join(fs.Args()[1:], " ")) == "" {
			_, _ = fmt.Fprintln(stderr, "translate requires a natural-language query")
			writeUsage(stderr)
			return 2
		}
	case "report":
		files := fs.Args()[1:]
		if len(files) == 0 {
			files = []string{filepath.Join(*outputDir, evaluation.ParquetFile)}
		}
		return runReport(ctx, stdout, stderr, duckdb.Request{SQL: *reportSQL, Files: files, RowLimit: *reportLimit})
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	translator := defaults.Translator
	if translator == nil {
		built, err := nl2sql.NewTranslator(nl2sql.Config{
			Provider:  cfg.Model.Provider,
			BaseURL:   cfg.Model.BaseURL,
			APIKey:    cfg.Model.APIKey,
			Model:     cfg.Model.Name,
			MaxLength: cfg.Model.MaxLength,
			Timeout:   cfg.Model.Timeout,
		})
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "initialize translator: %v\n", err)
			return 1
		}
		translator = built
	}

	executor := defaults.Executor
	if command == "translate" && *noExecute {
		executor = nil
	} else if executor == nil {
		built, err := sqldb.New(sqldb.Config{
			Driver:       cfg.Database.Driver,
			DSN:          cfg.Database.DSN,
			User:         cfg.Database.User,
			Password:     cfg.Database.Password,
			Host:         cfg.Database.Host,
			Port:         cfg.Database.Port,
			Name:         cfg.Database.Name,
			QueryTimeout: cfg.Database.QueryTimeout,
		}, logger)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "initialize executor: %v\n", err)
			return 1
		}
		executor = built
	}

	session, err := nl2sql.NewSession(translator, executor)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "initialize session: %v\n", err)
		return 1
	}

	switch command {
	case "evaluate":
		evaluator := &evaluation.Evaluator{
			Session: session,
			Config: evaluation.Config{
				DevDatasetPath:  *devDataset,
				ExamplesPath:    *examples,
				OutputDir:       *outputDir,
				ParquetEnabled:  *parquetEnabled,
				MetricsTextfile: cfg.Observability.MetricsTextfile,
			},
			Logger: logger,
			Stdout: stdout,
		}
		if _, err := evaluator.Run(ctx); err != nil {
			logger.Error("evaluation failed", slog.Any("error", err))
			_, _ = fmt.Fprintf(stderr, "evaluation failed: %v\n", err)
			return 1
		}
	case "translate":
		nl := strings.TrimSpace(strings.Join(fs.Args()[1:], " "))
		outcome, err := session.Process(ctx, nl)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "translate failed: %v\n", err)
			return 1
		}
		writeOutcome(stdout, outcome, executor != nil)
	}
	return 0
}

func runReport(ctx context.Context, stdout, stderr io.Writer, request duckdb.Request) int {
	result, err := duckdb.NewEngine().Execute(ctx, request)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "report failed: %v\n", err)
		return 1
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, strings.Join(result.Columns, "\t"))
	for _, row := range result.Rows {
		cells := make([]string, len(row))
		for i, value := range row {
			cells[i] = formatCell(value)
		}
		_, _ = fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		_, _ = fmt.Fprintf(stderr, "write report: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "\n%d rows from %d files in %s\n",
		len(result.Rows), result.ScannedFiles, result.Duration.Round(time.Millisecond))
	return 0
}

func formatCell(value any) string {
	switch typed := value.(type) {
	case nil:
		return "NULL"
	case float64:
		return fmt.Sprintf("%.4f", typed)
	default:
		return fmt.Sprint(typed)
	}
}

func writeOutcome(w io.Writer, outcome nl2sql.Outcome, executed bool) {
	_, _ = fmt.Fprintf(w, "SQL: %s\n", outcome.SQL)
	if executed {
		output := outcome.Output
		if outcome.Failed {
			output = evaluation.SQLErrorOutput
		}
		_, _ = fmt.Fprintf(w, "Output:\n%s\n", output)
	}
	_, _ = fmt.Fprintf(w, "Generation time: %.2f seconds\n", outcome.Elapsed.Seconds())
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: nlsql [flags] <command>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  evaluate          translate and score every query in the dev dataset")
	_, _ = fmt.Fprintln(w, "  translate <text>  translate one query and run the generated SQL")
	_, _ = fmt.Fprintln(w, "  report [files]    query evaluation parquet reports with DuckDB")
}
