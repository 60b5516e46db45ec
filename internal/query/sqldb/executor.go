package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/nlsql/nlsql/internal/config"
	"github.com/nlsql/nlsql/internal/observability"
	"github.com/nlsql/nlsql/internal/query"
)

const (
	DriverMySQL    = config.DriverMySQL
	DriverPostgres = config.DriverPostgres
	DriverDuckDB   = config.DriverDuckDB
)

// ErrNoResultSet is returned for statements that produce no columns to fetch.
var ErrNoResultSet = errors.New("no result set to fetch from")

type Config struct {
	Driver       string
	DSN          string
	User         string
	Password     string
	Host         string
	Port         int
	Name         string
	QueryTimeout time.Duration
}

// Opener returns a database handle that the executor owns for exactly one
// statement and closes afterwards.
type Opener func(ctx context.Context) (*sql.DB, error)

type Executor struct {
	open    Opener
	timeout time.Duration
	logger  *slog.Logger
}

var _ query.Executor = (*Executor)(nil)

func New(cfg Config, logger *slog.Logger) (*Executor, error) {
	driver := strings.TrimSpace(cfg.Driver)
	dsn, err := BuildDSN(cfg)
	if err != nil {
		return nil, err
	}
	open := func(context.Context) (*sql.DB, error) {
		db, err := sql.Open(driver, dsn)
		if err != nil {
			return nil, fmt.Errorf("open %s db: %w", driver, err)
		}
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(0)
		return db, nil
	}
	return NewWithOpener(open, cfg.QueryTimeout, logger)
}

func NewWithOpener(open Opener, timeout time.Duration, logger *slog.Logger) (*Executor, error) {
	if open == nil {
		return nil, fmt.Errorf("opener is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Executor{open: open, timeout: timeout, logger: logger}, nil
}

func (e *Executor) Execute(ctx context.Context, sqlText string) (string, bool) {
	text, err := e.run(ctx, sqlText)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to execute query",
			slog.String("run_id", observability.RunIDFromContext(ctx)),
			slog.String("sql", sqlText),
			slog.Any("error", err),
		)
		observability.ObserveQueryExecution(false)
		return query.ErrorSentinel, true
	}
	observability.ObserveQueryExecution(true)
	return text, false
}

func (e *Executor) run(ctx context.Context, sqlText string) (string, error) {
	if strings.TrimSpace(sqlText) == "" {
		return "", fmt.Errorf("sql is required")
	}

	db, err := e.open(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = db.Close() }()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	// Never committed.
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, sqlText)
	if err != nil {
		return "", fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return "", fmt.Errorf("query columns: %w", err)
	}
	if len(columns) == 0 {
		return "", ErrNoResultSet
	}

	lines := make([]string, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return "", fmt.Errorf("scan row: %w", err)
		}
		lines = append(lines, formatValue(values[0]))
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate rows: %w", err)
	}
	return strings.Join(lines, "\n"), nil
}

// BuildDSN returns cfg.DSN when set, otherwise a driver-specific DSN built
// from the individual connection fields.
func BuildDSN(cfg Config) (string, error) {
	driver := strings.TrimSpace(cfg.Driver)
	if strings.TrimSpace(cfg.DSN) != "" {
		switch driver {
		case DriverMySQL, DriverPostgres, DriverDuckDB:
			return strings.TrimSpace(cfg.DSN), nil
		}
	}

	switch driver {
	case DriverMySQL:
		mc := mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = hostPort(cfg.Host, cfg.Port, 3306)
		mc.DBName = cfg.Name
		return mc.FormatDSN(), nil
	case DriverPostgres:
		u := url.URL{
			Scheme: "postgres",
			Host:   hostPort(cfg.Host, cfg.Port, 5432),
			Path:   "/" + cfg.Name,
		}
		if cfg.User != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
		}
		return u.String(), nil
	case DriverDuckDB:
		// Empty DSN opens an in-memory database.
		return "", nil
	default:
		return "", fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
}

func hostPort(host string, port, fallback int) string {
	if strings.TrimSpace(host) == "" {
		host = "127.0.0.1"
	}
	if port <= 0 {
		port = fallback
	}
	return net.JoinHostPort(strings.TrimSpace(host), strconv.Itoa(port))
}

func formatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case []byte:
		return string(typed)
	case string:
		return typed
	case time.Time:
		return typed.Format(time.DateTime)
	default:
		return fmt.Sprint(typed)
	}
}
