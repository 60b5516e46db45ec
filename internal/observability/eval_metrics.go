package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	queryExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlsql_query_executions_total",
			Help: "Total number of generated SQL executions by status.",
		},
		[]string{"status"},
	)
	translationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nlsql_translations_total",
			Help: "Total number of natural-language translations by status.",
		},
		[]string{"status"},
	)
	generationLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nlsql_generation_latency_seconds",
			Help:    "SQL generation latency in seconds, excluding execution.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)
	evalAccuracy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nlsql_eval_accuracy",
			Help: "Accuracy of the last evaluation run.",
		},
	)
	evalExactMatchRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nlsql_eval_exact_match_rate",
			Help: "Exact match rate of the last evaluation run.",
		},
	)
	evalExecutionSuccessRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nlsql_eval_execution_success_rate",
			Help: "Fraction of generated SQL that executed without error in the last run.",
		},
	)
	evalAverageGenerationSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nlsql_eval_average_generation_seconds",
			Help: "Average SQL generation time of the last evaluation run.",
		},
	)
	evalTotalQueries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nlsql_eval_total_queries",
			Help: "Number of dataset inputs processed by the last evaluation run.",
		},
	)
	evalEvaluatedExamples = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nlsql_eval_evaluated_examples",
			Help: "Number of inputs matched to a labeled example in the last run.",
		},
	)
	evalDurationSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nlsql_eval_duration_seconds",
			Help: "Wall-clock duration of the last evaluation run.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		queryExecutionsTotal,
		translationsTotal,
		generationLatencySeconds,
		evalAccuracy,
		evalExactMatchRate,
		evalExecutionSuccessRate,
		evalAverageGenerationSeconds,
		evalTotalQueries,
		evalEvaluatedExamples,
		evalDurationSeconds,
	)
}

type RunMetrics struct {
	Accuracy                 float64
	ExactMatchRate           float64
	ExecutionSuccessRate     float64
	AverageGenerationSeconds float64
	TotalQueries             int
	EvaluatedExamples        int
	Duration                 time.Duration
}

func ObserveQueryExecution(ok bool) {
	queryExecutionsTotal.WithLabelValues(statusLabel(ok)).Inc()
}

func ObserveTranslation(ok bool, elapsed time.Duration) {
	translationsTotal.WithLabelValues(statusLabel(ok)).Inc()
	if ok {
		generationLatencySeconds.Observe(elapsed.Seconds())
	}
}

func SetRunMetrics(m RunMetrics) {
	evalAccuracy.Set(m.Accuracy)
	evalExactMatchRate.Set(m.ExactMatchRate)
	evalExecutionSuccessRate.Set(m.ExecutionSuccessRate)
	evalAverageGenerationSeconds.Set(m.AverageGenerationSeconds)
	evalTotalQueries.Set(float64(m.TotalQueries))
	evalEvaluatedExamples.Set(float64(m.EvaluatedExamples))
	evalDurationSeconds.Set(m.Duration.Seconds())
}

// WriteTextfile dumps the default registry in the node_exporter textfile
// format. An empty path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func statusLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}
