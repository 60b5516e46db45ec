package nl2sql

import (
	"context"
	"fmt"
	"time"

	"github.com/nlsql/nlsql/internal/observability"
	"github.com/nlsql/nlsql/internal/query"
)

// Outcome is the result of translating one natural-language query.
// Elapsed covers SQL generation only; execution is not timed.
type Outcome struct {
	SQL     string
	Output  string
	Failed  bool
	Elapsed time.Duration
}

// Session holds an initialized translator and the optional executor that
// generated SQL is forwarded to. It is created once and shared by reference.
type Session struct {
	translator Translator
	executor   query.Executor
	clock      func() time.Time
}

func NewSession(translator Translator, executor query.Executor) (*Session, error) {
	if translator == nil {
		return nil, fmt.Errorf("translator is required")
	}
	return &Session{translator: translator, executor: executor, clock: time.Now}, nil
}

// Generate returns the most probable SQL for nl and the time it took.
func (s *Session) Generate(ctx context.Context, nl string) (string, time.Duration, error) {
	start := s.clock()
	result, err := s.translator.Translate(ctx, Request{NaturalLanguage: nl})
	elapsed := s.clock().Sub(start)
	observability.ObserveTranslation(err == nil, elapsed)
	if err != nil {
		return "", elapsed, fmt.Errorf("generate sql: %w", err)
	}
	return result.SQL, elapsed, nil
}

// Process generates SQL for nl and, when the session has an executor, runs it.
// Only translation errors are returned; execution failures are reported
// through Outcome.Failed.
func (s *Session) Process(ctx context.Context, nl string) (Outcome, error) {
	sqlText, elapsed, err := s.Generate(ctx, nl)
	if err != nil {
		return Outcome{}, err
	}
	outcome := Outcome{SQL: sqlText, Elapsed: elapsed}
	if s.executor != nil {
		outcome.Output, outcome.Failed = s.executor.Execute(ctx, sqlText)
	}
	return outcome, nil
}
