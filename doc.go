// Package mymcp provides safe, controlled MySQL access for AI agents
// through the Model Context Protocol (MCP).
//
// It exposes three tools (Query, ListTables, and DescribeTable) with a full
// execution pipeline: statement classification, write protection, table
// denylisting, data sanitization, result truncation, and dynamic agent
// steering via error prompts.
//
// Every query is parsed with the Vitess MySQL parser before it touches a
// connection. Multi-statement input is rejected, the statement kind is
// classified from the AST, and table references are checked against the
// configured denylist. Queries that fail any check never reach the database.
//
// Read queries run inside a read-only transaction that is always rolled
// back. Write queries require explicit permission flags and run in their own
// transaction, committed on success and rolled back on failure. Strict
// read-only mode additionally rejects SELECT ... INTO OUTFILE/DUMPFILE.
//
// # Library Usage
//
//	p, err := mymcp.New(ctx, dsn, mymcp.Config{
//		Pool: mymcp.PoolConfig{MaxConns: 10},
//		Schema: mymcp.SchemaConfig{DefaultSchema: "app"},
//		Query: mymcp.QueryConfig{
//			DefaultTimeoutSeconds:       30,
//			ListTablesTimeoutSeconds:    10,
//			DescribeTableTimeoutSeconds: 10,
//		},
//	}, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer p.Close(ctx)
//
//	// Use directly
//	output := p.Query(ctx, mymcp.QueryInput{SQL: "SELECT * FROM users LIMIT 10"})
//
//	// Or register as MCP tools
//	mymcp.RegisterMCPTools(mcpServer, p)
//
// For full documentation, configuration reference, and examples, see:
// https://github.com/rickchristie/mysql-mcp
package mymcp
