package sqldb

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"

	"github.com/nlsql/nlsql/internal/config"
	"github.com/nlsql/nlsql/internal/observability"
	"github.com/nlsql/nlsql/internal/query"
)

func TestExecuteJoinsFirstColumn(t *testing.T) {
	executor, mock := newMockExecutor(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name, id FROM students`)).
		WillReturnRows(sqlmock.NewRows([]string{"name", "id"}).
			AddRow("Ali", 1).
			AddRow("Sara", 2).
			AddRow(nil, 3))
	mock.ExpectRollback()
	mock.ExpectClose()

	text, failed := executor.Execute(context.Background(), "SELECT name, id FROM students")
	if failed {
		t.Fatal("Execute() reported failure")
	}
	if text != "Ali\nSara\n" {
		t.Fatalf("Execute() = %q", text)
	}
	assertSQLMock(t, mock)
}

func TestExecuteEmptyResultIsEmptyText(t *testing.T) {
	executor, mock := newMockExecutor(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name FROM students WHERE 1 = 0`)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectRollback()
	mock.ExpectClose()

	text, failed := executor.Execute(context.Background(), "SELECT name FROM students WHERE 1 = 0")
	if failed || text != "" {
		t.Fatalf("Execute() = (%q, %v)", text, failed)
	}
	assertSQLMock(t, mock)
}

func TestExecuteReturnsSentinelOnQueryError(t *testing.T) {
	executor, mock := newMockExecutor(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELEC name FROM students`)).
		WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()
	mock.ExpectClose()

	text, failed := executor.Execute(context.Background(), "SELEC name FROM students")
	if !failed {
		t.Fatal("Execute() should report failure")
	}
	if text != query.ErrorSentinel {
		t.Fatalf("Execute() text = %q, want %q", text, query.ErrorSentinel)
	}
	assertSQLMock(t, mock)
}

func TestExecuteReturnsSentinelOnRowError(t *testing.T) {
	executor, mock := newMockExecutor(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name FROM students`)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).
			AddRow("Ali").
			AddRow("Sara").
			RowError(1, errors.New("connection reset")))
	mock.ExpectRollback()
	mock.ExpectClose()

	text, failed := executor.Execute(context.Background(), "SELECT name FROM students")
	if !failed || text != query.ErrorSentinel {
		t.Fatalf("Execute() = (%q, %v), want sentinel failure", text, failed)
	}
	assertSQLMock(t, mock)
}

func TestExecuteRollsBackAfterSuccessfulQuery(t *testing.T) {
	executor, mock := newMockExecutor(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM students`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))
	mock.ExpectRollback()
	mock.ExpectClose()

	if text, failed := executor.Execute(context.Background(), "SELECT COUNT(*) FROM students"); failed || text != "2" {
		t.Fatalf("Execute() = (%q, %v)", text, failed)
	}
	assertSQLMock(t, mock)
}

func TestExecuteTreatsStatementWithoutResultSetAsFailure(t *testing.T) {
	executor, mock := newMockExecutor(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`DELETE FROM students`)).
		WillReturnRows(sqlmock.NewRows([]string{}))
	mock.ExpectRollback()
	mock.ExpectClose()

	text, failed := executor.Execute(context.Background(), "DELETE FROM students")
	if !failed || text != query.ErrorSentinel {
		t.Fatalf("Execute() = (%q, %v), want sentinel failure", text, failed)
	}
	assertSQLMock(t, mock)
}

func TestExecuteReturnsSentinelWhenBeginFails(t *testing.T) {
	executor, mock := newMockExecutor(t)

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))
	mock.ExpectClose()

	text, failed := executor.Execute(context.Background(), "SELECT 1")
	if !failed || text != query.ErrorSentinel {
		t.Fatalf("Execute() = (%q, %v), want sentinel failure", text, failed)
	}
	assertSQLMock(t, mock)
}

func TestExecuteLogsRunIDOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	mock.ExpectBegin()
	mock.ExpectQuery(`SELEC`).WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()
	mock.ExpectClose()

	var logs bytes.Buffer
	executor, err := NewWithOpener(func(context.Context) (*sql.DB, error) {
		return db, nil
	}, 0, slog.New(slog.NewTextHandler(&logs, nil)))
	if err != nil {
		t.Fatalf("NewWithOpener() error = %v", err)
	}

	ctx := observability.ContextWithRunID(context.Background(), "run-42")
	if _, failed := executor.Execute(ctx, "SELEC"); !failed {
		t.Fatal("Execute() should report failure")
	}
	if !strings.Contains(logs.String(), "run_id=run-42") || !strings.Contains(logs.String(), "failed to execute query") {
		t.Fatalf("logs = %s", logs.String())
	}
	assertSQLMock(t, mock)
}

func TestExecuteReturnsSentinelWhenOpenFails(t *testing.T) {
	executor, err := NewWithOpener(func(context.Context) (*sql.DB, error) {
		return nil, errors.New("connection refused")
	}, 0, nil)
	if err != nil {
		t.Fatalf("NewWithOpener() error = %v", err)
	}

	text, failed := executor.Execute(context.Background(), "SELECT 1")
	if !failed || text != query.ErrorSentinel {
		t.Fatalf("Execute() = (%q, %v), want sentinel failure", text, failed)
	}
}

func TestExecuteRejectsEmptySQLWithoutConnecting(t *testing.T) {
	opened := 0
	executor, err := NewWithOpener(func(context.Context) (*sql.DB, error) {
		opened++
		return nil, errors.New("unexpected open")
	}, 0, nil)
	if err != nil {
		t.Fatalf("NewWithOpener() error = %v", err)
	}

	text, failed := executor.Execute(context.Background(), "   ")
	if !failed || text != query.ErrorSentinel {
		t.Fatalf("Execute() = (%q, %v), want sentinel failure", text, failed)
	}
	if opened != 0 {
		t.Fatalf("opened = %d, want 0", opened)
	}
}

func TestExecuteOpensConnectionPerCall(t *testing.T) {
	opened := 0
	executor, err := NewWithOpener(func(context.Context) (*sql.DB, error) {
		opened++
		db, mock, err := sqlmock.New()
		if err != nil {
			return nil, err
		}
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT 1`).WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow("1"))
		mock.ExpectRollback()
		return db, nil
	}, 0, nil)
	if err != nil {
		t.Fatalf("NewWithOpener() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if text, failed := executor.Execute(context.Background(), "SELECT 1"); failed || text != "1" {
			t.Fatalf("Execute() = (%q, %v)", text, failed)
		}
	}
	if opened != 2 {
		t.Fatalf("opened = %d, want 2", opened)
	}
}

func TestExecuteAgainstDuckDBFile(t *testing.T) {
	path := seedDuckDB(t)
	executor, err := New(Config{Driver: DriverDuckDB, DSN: path}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	text, failed := executor.Execute(context.Background(), "SELECT name FROM students ORDER BY id")
	if failed || text != "Ali\nSara" {
		t.Fatalf("Execute() = (%q, %v)", text, failed)
	}

	text, failed = executor.Execute(context.Background(), "SELECT COUNT(*) FROM students")
	if failed || text != "2" {
		t.Fatalf("Execute(count) = (%q, %v)", text, failed)
	}

	text, failed = executor.Execute(context.Background(), "SELECT name FROM missing_table")
	if !failed || text != query.ErrorSentinel {
		t.Fatalf("Execute(missing table) = (%q, %v)", text, failed)
	}
}

func TestExecuteLeavesDuckDBFileUnchanged(t *testing.T) {
	path := seedDuckDB(t)
	executor, err := New(Config{Driver: DriverDuckDB, DSN: path}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for _, stmt := range []string{
		"DELETE FROM students",
		"UPDATE students SET name = 'X'",
		"INSERT INTO students VALUES (3, 'Omar', 2.1)",
		"DROP TABLE students",
	} {
		executor.Execute(context.Background(), stmt)
	}

	text, failed := executor.Execute(context.Background(), "SELECT name FROM students ORDER BY id")
	if failed || text != "Ali\nSara" {
		t.Fatalf("Execute() after writes = (%q, %v), want original rows", text, failed)
	}
}

func TestExecuteDuckDBDDLIsRolledBack(t *testing.T) {
	path := seedDuckDB(t)
	executor, err := New(Config{Driver: DriverDuckDB, DSN: path}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	executor.Execute(context.Background(), "CREATE TABLE courses (id INTEGER)")
	if _, failed := executor.Execute(context.Background(), "SELECT COUNT(*) FROM courses"); !failed {
		t.Fatal("courses table should not exist after rollback")
	}
}

func TestDriverConstantsMatchConfig(t *testing.T) {
	for _, driver := range []string{config.DriverMySQL, config.DriverPostgres, config.DriverDuckDB} {
		if _, err := BuildDSN(Config{Driver: driver, Host: "db", Name: "university_info"}); err != nil {
			t.Fatalf("BuildDSN(%q) error = %v", driver, err)
		}
	}
}

func TestBuildDSNForMySQL(t *testing.T) {
	dsn, err := BuildDSN(Config{
		Driver:   DriverMySQL,
		User:     "root",
		Password: "",
		Host:     "127.0.0.1",
		Name:     "university_info",
	})
	if err != nil {
		t.Fatalf("BuildDSN() error = %v", err)
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("mysql.ParseDSN(%q) error = %v", dsn, err)
	}
	if parsed.User != "root" || parsed.Passwd != "" {
		t.Fatalf("credentials = %q/%q", parsed.User, parsed.Passwd)
	}
	if parsed.Net != "tcp" || parsed.Addr != "127.0.0.1:3306" {
		t.Fatalf("address = %s(%s)", parsed.Net, parsed.Addr)
	}
	if parsed.DBName != "university_info" {
		t.Fatalf("DBName = %q", parsed.DBName)
	}
}

func TestBuildDSNForPostgres(t *testing.T) {
	dsn, err := BuildDSN(Config{
		Driver:   DriverPostgres,
		User:     "eval",
		Password: "secret",
		Host:     "db",
		Name:     "university_info",
	})
	if err != nil {
		t.Fatalf("BuildDSN() error = %v", err)
	}
	if dsn != "postgres://eval:secret@db:5432/university_info" {
		t.Fatalf("BuildDSN() = %q", dsn)
	}
}

func TestBuildDSNPrefersExplicitDSN(t *testing.T) {
	dsn, err := BuildDSN(Config{Driver: DriverPostgres, DSN: " postgres://x ", Host: "ignored"})
	if err != nil {
		t.Fatalf("BuildDSN() error = %v", err)
	}
	if dsn != "postgres://x" {
		t.Fatalf("BuildDSN() = %q", dsn)
	}
}

func TestBuildDSNRejectsUnknownDriver(t *testing.T) {
	if _, err := BuildDSN(Config{Driver: "sqlite3"}); err == nil {
		t.Fatal("expected unsupported driver error")
	}
	if _, err := New(Config{Driver: "sqlite3", DSN: "file.db"}, nil); err == nil {
		t.Fatal("expected New() to reject unsupported driver")
	}
}

func seedDuckDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "university.duckdb")
	seed, err := sql.Open("duckdb", path)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	for _, stmt := range []string{
		`CREATE TABLE students (id INTEGER, name VARCHAR, gpa DOUBLE)`,
		`INSERT INTO students VALUES (1, 'Ali', 3.5), (2, 'Sara', 3.9)`,
	} {
		if _, err := seed.Exec(stmt); err != nil {
			t.Fatalf("seed %q error = %v", stmt, err)
		}
	}
	if err := seed.Close(); err != nil {
		t.Fatalf("seed.Close() error = %v", err)
	}
	return path
}

func newMockExecutor(t *testing.T) (*Executor, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	executor, err := NewWithOpener(func(context.Context) (*sql.DB, error) {
		return db, nil
	}, 0, nil)
	if err != nil {
		t.Fatalf("NewWithOpener() error = %v", err)
	}
	return executor, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
