package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nlsql/nlsql/internal/cli/nlsql"
	"github.com/nlsql/nlsql/internal/config"
	"github.com/nlsql/nlsql/internal/observability"
)

func main() {
	cfg, err := config.LoadFromEnv("nlsql")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := nlsql.Run(ctx, os.Args[1:], nlsql.Options{
		Config: cfg,
		Logger: logger,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	stop()
	os.Exit(code)
}
