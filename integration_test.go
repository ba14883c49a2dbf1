package mymcp_test

import (
	"context"
	"os"
	"strings"
	"testing"

	mymcp "github.com/rickchristie/mysql-mcp"
	"github.com/rs/zerolog"
)

// integrationEngine connects to the MySQL server named by
// GOMYMCP_TEST_MYSQL_DSN, or skips the test when it is unset.
func integrationEngine(t *testing.T, config mymcp.Config) *mymcp.MySQLMcp {
	t.Helper()
	dsn := os.Getenv("GOMYMCP_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("GOMYMCP_TEST_MYSQL_DSN not set, skipping integration test")
	}

	if config.Pool.MaxConns == 0 {
		config.Pool.MaxConns = 5
	}
	if config.Query.DefaultTimeoutSeconds == 0 {
		config.Query = mymcp.QueryConfig{
			DefaultTimeoutSeconds:       30,
			ListTablesTimeoutSeconds:    10,
			DescribeTableTimeoutSeconds: 10,
		}
	}

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	p, err := mymcp.New(context.Background(), dsn, config, logger)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	t.Cleanup(func() { p.Close(context.Background()) })

	if err := p.Ping(context.Background()); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}
	return p
}

func TestIntegration_ReadOnlySelect(t *testing.T) {
	p := integrationEngine(t, mymcp.Config{})

	output := p.Query(context.Background(), mymcp.QueryInput{SQL: "SELECT 1 AS one"})
	if output.Error != "" {
		t.Fatalf("unexpected error: %s", output.Error)
	}
	if len(output.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(output.Rows))
	}
	if output.Statement != "select" {
		t.Fatalf("expected statement select, got %q", output.Statement)
	}
}

func TestIntegration_WriteBlockedByDefault(t *testing.T) {
	p := integrationEngine(t, mymcp.Config{})

	output := p.Query(context.Background(), mymcp.QueryInput{
		SQL: "CREATE TABLE gomymcp_integration_should_not_exist (id INT)",
	})
	if output.Error == "" {
		t.Fatal("expected DDL to be blocked without allow_ddl")
	}
	if !strings.Contains(output.Error, "not allowed") {
		t.Fatalf("unexpected error: %s", output.Error)
	}
}

func TestIntegration_MultiStatementRejected(t *testing.T) {
	p := integrationEngine(t, mymcp.Config{})

	// Parse-level gate: multi-statement input fails before touching the server.
	output := p.Query(context.Background(), mymcp.QueryInput{SQL: "SELECT 1; SELECT 2"})
	if output.Error == "" || !strings.Contains(output.Error, "multi-statement") {
		t.Fatalf("expected multi-statement rejection, got %q", output.Error)
	}
}
