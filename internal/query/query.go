package query

import "context"

// ErrorSentinel is returned as the result text whenever execution fails.
const ErrorSentinel = "error"

// Executor runs one SQL statement and returns the newline-joined first
// column of the result rows. Failures of any kind are reported only through
// the boolean, with ErrorSentinel as the text.
type Executor interface {
	Execute(ctx context.Context, sqlText string) (string, bool)
}

type ExecutorFunc func(ctx context.Context, sqlText string) (string, bool)

func (f ExecutorFunc) Execute(ctx context.Context, sqlText string) (string, bool) {
	return f(ctx, sqlText)
}
