package mymcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterMCPTools registers Query, ListTables, and DescribeTable
// as MCP tools on the given MCP server.
func RegisterMCPTools(mcpServer *server.MCPServer, myMcp *MySQLMcp) {
	// Query tool
	queryTool := mcp.NewTool("query",
		mcp.WithDescription("Execute a SQL query against the MySQL database. Read results are returned as JSON; writes report affected rows."),
		mcp.WithString("sql",
			mcp.Required(),
			mcp.Description("The SQL query to execute (exactly one statement)"),
		),
	)

	mcpServer.AddTool(queryTool, myMcp.loggedToolHandler("query", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sqlText, err := req.RequireString("sql")
		if err != nil {
			return mcp.NewToolResultError("sql parameter is required"), nil
		}
		output := myMcp.Query(ctx, QueryInput{SQL: sqlText})
		return queryToolResult(output), nil
	}))

	// ListTables tool
	listTablesTool := mcp.NewTool("list_tables",
		mcp.WithDescription("List all tables and views in the database that are accessible to the current user."),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(listTablesTool, myMcp.loggedToolHandler("list_tables", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		output, err := myMcp.ListTables(ctx, ListTablesInput{})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		jsonBytes, err := json.MarshalIndent(output.Tables, "", "  ")
		if err != nil {
			return mcp.NewToolResultError("failed to marshal list tables result"), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	}))

	// DescribeTable tool
	describeTableTool := mcp.NewTool("describe_table",
		mcp.WithDescription("Describe the schema of a table including columns, types, indexes, and foreign keys."),
		mcp.WithString("table",
			mcp.Required(),
			mcp.Description("The table name to describe"),
		),
		mcp.WithString("schema",
			mcp.Description("The schema name (defaults to the configured default schema)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
	)

	mcpServer.AddTool(describeTableTool, myMcp.loggedToolHandler("describe_table", func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		table, err := req.RequireString("table")
		if err != nil {
			return mcp.NewToolResultError("table parameter is required"), nil
		}
		schema := req.GetString("schema", "")

		output, err := myMcp.DescribeTable(ctx, DescribeTableInput{Table: table, Schema: schema})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		jsonBytes, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			return mcp.NewToolResultError("failed to marshal describe table result"), nil
		}
		return mcp.NewToolResultText(string(jsonBytes)), nil
	}))
}

// queryToolResult converts a QueryOutput into the caller-facing tool result.
// Blocked and failed queries become a single text block with the reason and
// isError set; successful reads carry the rows as pretty-printed JSON plus an
// execution time block; successful writes carry a per-operation summary.
func queryToolResult(output *QueryOutput) *mcp.CallToolResult {
	if output.Error != "" {
		return mcp.NewToolResultError(output.Error)
	}

	if summary, ok := writeSummary(output); ok {
		return mcp.NewToolResultText(summary)
	}

	jsonBytes, err := json.MarshalIndent(output.Rows, "", "  ")
	if err != nil {
		return mcp.NewToolResultError("failed to marshal query result")
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: string(jsonBytes)},
			mcp.TextContent{Type: "text", Text: fmt.Sprintf("Query execution time: %d ms", output.Elapsed.Milliseconds())},
		},
	}
}

// writeSummary formats the human-readable result of a write statement.
// Returns false for read statements.
func writeSummary(output *QueryOutput) (string, bool) {
	switch output.Statement {
	case "insert", "replace":
		return fmt.Sprintf("Insert successful. Affected rows: %d, Last insert ID: %d", output.RowsAffected, output.LastInsertID), true
	case "update":
		// The driver reports the changed-row count as affected rows unless
		// clientFoundRows is set on the DSN.
		return fmt.Sprintf("Update successful. Affected rows: %d, Changed rows: %d", output.RowsAffected, output.RowsAffected), true
	case "delete":
		return fmt.Sprintf("Delete successful. Affected rows: %d", output.RowsAffected), true
	case "create", "alter", "drop", "truncate", "rename", "ddl":
		return fmt.Sprintf("Statement executed successfully. Affected rows: %d", output.RowsAffected), true
	}
	return "", false
}

// loggedToolHandler wraps a tool handler to log request and response lengths.
func (p *MySQLMcp) loggedToolHandler(tool string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		reqLen := requestLength(req)
		result, err := handler(ctx, req)
		respLen := resultLength(result)
		p.logger.Info().
			Str("tool", tool).
			Int("request_bytes", reqLen).
			Int("response_bytes", respLen).
			Msg("tool call")
		return result, err
	}
}

// requestLength returns the JSON-encoded byte length of the request arguments.
func requestLength(req mcp.CallToolRequest) int {
	args := req.GetArguments()
	if len(args) == 0 {
		return 0
	}
	b, err := json.Marshal(args)
	if err != nil {
		return 0
	}
	return len(b)
}

// resultLength returns the total byte length of text content in a CallToolResult.
func resultLength(result *mcp.CallToolResult) int {
	if result == nil {
		return 0
	}
	total := 0
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			total += len(tc.Text)
		}
	}
	return total
}
