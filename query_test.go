package mymcp

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"

	"github.com/rickchristie/mysql-mcp/internal/classify"
	"github.com/rickchristie/mysql-mcp/internal/denylist"
	"github.com/rickchristie/mysql-mcp/internal/errprompt"
	"github.com/rickchristie/mysql-mcp/internal/protection"
	"github.com/rickchristie/mysql-mcp/internal/sanitize"
	"github.com/rickchristie/mysql-mcp/internal/timeout"
)

// newTestEngine wires a MySQLMcp directly around a sqlmock database so the
// full pipeline can be exercised without a MySQL server. Queries are matched
// by exact string equality.
func newTestEngine(t *testing.T, config Config) (*MySQLMcp, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if config.Query.MaxSQLLength == 0 {
		config.Query.MaxSQLLength = 100000
	}
	if config.Query.MaxResultLength == 0 {
		config.Query.MaxResultLength = 100000
	}
	if config.Query.DefaultTimeoutSeconds == 0 {
		config.Query.DefaultTimeoutSeconds = 30
	}

	parser, err := classify.NewParser()
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}
	san, err := sanitize.NewSanitizer(mapSanitizationRules(config.Sanitization))
	if err != nil {
		t.Fatalf("failed to create sanitizer: %v", err)
	}
	matcher, err := errprompt.NewMatcher(mapErrorPromptRules(config.ErrorPrompts))
	if err != nil {
		t.Fatalf("failed to create error prompt matcher: %v", err)
	}

	p := &MySQLMcp{
		config:    config,
		db:        db,
		semaphore: make(chan struct{}, 5),
		parser:    parser,
		protection: protection.NewChecker(protection.Config{
			AllowInsert: config.Permissions.AllowInsert,
			AllowUpdate: config.Permissions.AllowUpdate,
			AllowDelete: config.Permissions.AllowDelete,
			AllowDDL:    config.Permissions.AllowDDL,
		}),
		denylist: denylist.NewChecker(parser, mapDenylistEntries(config.Denylist),
			config.Schema.DefaultSchema, config.Schema.MultiDB),
		sanitizer:  san,
		errPrompts: matcher,
		timeoutMgr: timeout.NewManager(timeout.Config{
			DefaultTimeout: time.Duration(config.Query.DefaultTimeoutSeconds) * time.Second,
		}),
		logger: zerolog.Nop(),
	}
	return p, mock
}

func assertNoQueryError(t *testing.T, output *QueryOutput) {
	t.Helper()
	if output.Error != "" {
		t.Fatalf("unexpected query error: %s", output.Error)
	}
}

func assertQueryError(t *testing.T, output *QueryOutput, substr string) {
	t.Helper()
	if output.Error == "" {
		t.Fatal("expected query error, got none")
	}
	if !strings.Contains(output.Error, substr) {
		t.Fatalf("expected error containing %q, got %q", substr, output.Error)
	}
}

func assertExpectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestQuerySelectReadOnlyDiscipline(t *testing.T) {
	t.Parallel()

	p, mock := newTestEngine(t, Config{})

	mock.ExpectExec("SET SESSION TRANSACTION READ ONLY").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, name FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), "alice").
			AddRow(int64(2), "bob"))
	mock.ExpectRollback()
	mock.ExpectExec("SET SESSION TRANSACTION READ WRITE").
		WillReturnResult(sqlmock.NewResult(0, 0))

	output := p.Query(context.Background(), QueryInput{SQL: "SELECT id, name FROM users"})
	assertNoQueryError(t, output)
	if output.Statement != "select" {
		t.Errorf("expected statement select, got %q", output.Statement)
	}
	if len(output.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(output.Rows))
	}
	if output.Rows[0]["name"] != "alice" {
		t.Errorf("unexpected first row: %v", output.Rows[0])
	}
	assertExpectationsMet(t, mock)
}

func TestQueryInsertCommitsInWriteMode(t *testing.T) {
	t.Parallel()

	p, mock := newTestEngine(t, Config{
		Permissions: PermissionsConfig{AllowInsert: true},
	})

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users (name) VALUES ('carol')").
		WillReturnResult(sqlmock.NewResult(123, 1))
	mock.ExpectCommit()

	output := p.Query(context.Background(), QueryInput{SQL: "INSERT INTO users (name) VALUES ('carol')"})
	assertNoQueryError(t, output)
	if output.Statement != "insert" {
		t.Errorf("expected statement insert, got %q", output.Statement)
	}
	if output.RowsAffected != 1 {
		t.Errorf("expected 1 affected row, got %d", output.RowsAffected)
	}
	if output.LastInsertID != 123 {
		t.Errorf("expected last insert ID 123, got %d", output.LastInsertID)
	}
	assertExpectationsMet(t, mock)
}

func TestQueryWriteFailureRollsBack(t *testing.T) {
	t.Parallel()

	p, mock := newTestEngine(t, Config{
		Permissions: PermissionsConfig{AllowInsert: true},
	})

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users (id) VALUES (1)").
		WillReturnError(errors.New("Error 1062: Duplicate entry '1' for key 'PRIMARY'"))
	mock.ExpectRollback()

	output := p.Query(context.Background(), QueryInput{SQL: "INSERT INTO users (id) VALUES (1)"})
	assertQueryError(t, output, "Duplicate entry")
	assertExpectationsMet(t, mock)
}

func TestQueryBlockedInsertNeverReachesDatabase(t *testing.T) {
	t.Parallel()

	// No sqlmock expectations: a permission-rejected statement must be
	// stopped before any connection work, including transaction begin.
	p, mock := newTestEngine(t, Config{})

	output := p.Query(context.Background(), QueryInput{SQL: "INSERT INTO users (name) VALUES ('x')"})
	assertQueryError(t, output, "INSERT statements are not allowed")
	assertExpectationsMet(t, mock)
}

func TestQueryStrictReadOnlyOverridesAllowFlags(t *testing.T) {
	t.Parallel()

	p, mock := newTestEngine(t, Config{
		Permissions:    PermissionsConfig{AllowInsert: true, AllowUpdate: true, AllowDelete: true, AllowDDL: true},
		StrictReadOnly: true,
	})

	output := p.Query(context.Background(), QueryInput{SQL: "DELETE FROM users"})
	assertQueryError(t, output, "strict read-only mode")
	assertExpectationsMet(t, mock)
}

func TestQueryStrictReadOnlyRejectsSelectIntoOutfile(t *testing.T) {
	t.Parallel()

	p, mock := newTestEngine(t, Config{StrictReadOnly: true})

	output := p.Query(context.Background(), QueryInput{SQL: "SELECT * FROM users INTO OUTFILE '/tmp/dump.csv'"})
	assertQueryError(t, output, "INTO OUTFILE")
	assertExpectationsMet(t, mock)
}

func TestExecuteForcedStrictMode(t *testing.T) {
	t.Parallel()

	// Allow flags are enabled, but the caller forces strict read-only.
	p, mock := newTestEngine(t, Config{
		Permissions: PermissionsConfig{AllowUpdate: true},
	})

	output := p.Execute(context.Background(), ModeStrictReadOnly, QueryInput{SQL: "UPDATE users SET name = 'x'"})
	assertQueryError(t, output, "strict read-only mode")
	assertExpectationsMet(t, mock)
}

func TestQueryMultiStatementRejected(t *testing.T) {
	t.Parallel()

	p, mock := newTestEngine(t, Config{})

	output := p.Query(context.Background(), QueryInput{SQL: "SELECT 1; DROP TABLE users"})
	assertQueryError(t, output, "multi-statement")
	assertExpectationsMet(t, mock)
}

func TestQueryDenylistedTableBlockedBeforeExecution(t *testing.T) {
	t.Parallel()

	p, mock := newTestEngine(t, Config{
		Schema:   SchemaConfig{DefaultSchema: "app"},
		Denylist: []DenylistEntry{{Table: "secrets"}},
	})

	output := p.Query(context.Background(), QueryInput{SQL: "SELECT * FROM secrets"})
	assertQueryError(t, output, "denylisted")
	assertExpectationsMet(t, mock)
}

func TestQueryParseErrorFailsClosed(t *testing.T) {
	t.Parallel()

	p, mock := newTestEngine(t, Config{})

	output := p.Query(context.Background(), QueryInput{SQL: "SELEKT * FORM users"})
	if output.Error == "" {
		t.Fatal("expected parse error")
	}
	assertExpectationsMet(t, mock)
}

func TestQueryTooLongRejected(t *testing.T) {
	t.Parallel()

	p, mock := newTestEngine(t, Config{
		Query: QueryConfig{MaxSQLLength: 30},
	})

	long := "SELECT * FROM users WHERE name = 'aaaaaaaaaaaaaaaaaaaaaaaa'"
	output := p.Query(context.Background(), QueryInput{SQL: long})
	assertQueryError(t, output, "too long")
	assertExpectationsMet(t, mock)
}

func TestQueryErrorPromptAppended(t *testing.T) {
	t.Parallel()

	p, mock := newTestEngine(t, Config{
		ErrorPrompts: []ErrorPromptRule{
			{Pattern: "(?i)denylisted", Message: "This table is off limits. Query a different table."},
		},
		Schema:   SchemaConfig{DefaultSchema: "app"},
		Denylist: []DenylistEntry{{Table: "audit_log"}},
	})

	output := p.Query(context.Background(), QueryInput{SQL: "DELETE FROM audit_log"})
	assertQueryError(t, output, "off limits")
	assertExpectationsMet(t, mock)
}

func TestQuerySanitizationApplied(t *testing.T) {
	t.Parallel()

	p, mock := newTestEngine(t, Config{
		Sanitization: []SanitizationRule{
			{Pattern: `\b\d{3}-\d{2}-\d{4}\b`, Replacement: "[REDACTED]"},
		},
	})

	mock.ExpectExec("SET SESSION TRANSACTION READ ONLY").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT ssn FROM employees").
		WillReturnRows(sqlmock.NewRows([]string{"ssn"}).AddRow("123-45-6789"))
	mock.ExpectRollback()
	mock.ExpectExec("SET SESSION TRANSACTION READ WRITE").
		WillReturnResult(sqlmock.NewResult(0, 0))

	output := p.Query(context.Background(), QueryInput{SQL: "SELECT ssn FROM employees"})
	assertNoQueryError(t, output)
	if output.Rows[0]["ssn"] != "[REDACTED]" {
		t.Errorf("expected sanitized value, got %v", output.Rows[0]["ssn"])
	}
	assertExpectationsMet(t, mock)
}

func TestQueryResultTruncation(t *testing.T) {
	t.Parallel()

	p, mock := newTestEngine(t, Config{
		Query: QueryConfig{MaxResultLength: 50},
	})

	rows := sqlmock.NewRows([]string{"data"})
	for i := 0; i < 10; i++ {
		rows.AddRow(strings.Repeat("x", 40))
	}
	mock.ExpectExec("SET SESSION TRANSACTION READ ONLY").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT data FROM blobs").WillReturnRows(rows)
	mock.ExpectRollback()
	mock.ExpectExec("SET SESSION TRANSACTION READ WRITE").
		WillReturnResult(sqlmock.NewResult(0, 0))

	output := p.Query(context.Background(), QueryInput{SQL: "SELECT data FROM blobs"})
	assertQueryError(t, output, "Result is too long")
	if output.Rows != nil {
		t.Error("expected rows to be dropped after truncation")
	}
	assertExpectationsMet(t, mock)
}

func TestExecuteUnrestrictedSkipsTransaction(t *testing.T) {
	t.Parallel()

	p, mock := newTestEngine(t, Config{})

	mock.ExpectQuery("SELECT 1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(int64(1)))

	output := p.Execute(context.Background(), ModeUnrestricted, QueryInput{SQL: "SELECT 1"})
	assertNoQueryError(t, output)
	if len(output.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(output.Rows))
	}
	assertExpectationsMet(t, mock)
}

func TestExecutionModeString(t *testing.T) {
	t.Parallel()

	modes := map[ExecutionMode]string{
		ModeUnrestricted:   "unrestricted",
		ModeReadOnly:       "read-only",
		ModeStrictReadOnly: "strict-read-only",
		ModeWrite:          "write",
	}
	for mode, want := range modes {
		if got := mode.String(); got != want {
			t.Errorf("mode %d: expected %q, got %q", mode, want, got)
		}
	}
}
