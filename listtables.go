package mymcp

import (
	"context"
	"fmt"
	"time"
)

const listTablesSQL = `
SELECT
    table_schema,
    table_name,
    table_type,
    COALESCE(engine, ''),
    COALESCE(table_rows, 0)
FROM information_schema.tables
WHERE table_schema NOT IN ('mysql', 'information_schema', 'performance_schema', 'sys')
ORDER BY table_schema, table_name;
`

const listTablesSchemaSQL = `
SELECT
    table_schema,
    table_name,
    table_type,
    COALESCE(engine, ''),
    COALESCE(table_rows, 0)
FROM information_schema.tables
WHERE table_schema = ?
ORDER BY table_schema, table_name;
`

// ListTables returns all tables and views visible to the current user,
// minus denylisted tables. In single-database mode only the default schema
// is listed. Does NOT go through the query pipeline; runs unrestricted on a
// leased connection.
func (p *MySQLMcp) ListTables(ctx context.Context, input ListTablesInput) (*ListTablesOutput, error) {
	startTime := time.Now()

	// 1. Acquire semaphore
	select {
	case p.semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("ListTables: failed to acquire query slot: all %d connection slots are in use, context cancelled while waiting: %w", cap(p.semaphore), ctx.Err())
	}
	defer func() { <-p.semaphore }()

	// 2. Apply configurable timeout
	queryCtx, cancel := context.WithTimeout(ctx, time.Duration(p.config.Query.ListTablesTimeoutSeconds)*time.Second)
	defer cancel()

	// 3. Acquire connection and execute
	conn, err := p.db.Conn(queryCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	query := listTablesSQL
	var args []interface{}
	if !p.config.Schema.MultiDB && p.config.Schema.DefaultSchema != "" {
		query = listTablesSchemaSQL
		args = append(args, p.config.Schema.DefaultSchema)
	}

	rows, err := conn.QueryContext(queryCtx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListTables query failed: %w", err)
	}
	defer rows.Close()

	tables := []TableEntry{}
	for rows.Next() {
		var entry TableEntry
		if err := rows.Scan(&entry.Schema, &entry.Name, &entry.Type, &entry.Engine, &entry.RowEstimate); err != nil {
			return nil, fmt.Errorf("ListTables scan failed: %w", err)
		}
		// Denylisted tables are invisible to the agent, not merely blocked.
		if p.denylist.Matches(entry.Schema, entry.Name) {
			continue
		}
		tables = append(tables, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListTables rows error: %w", err)
	}

	p.logger.Info().
		Dur("duration", time.Since(startTime)).
		Int("table_count", len(tables)).
		Msg("ListTables executed")

	return &ListTablesOutput{Tables: tables}, nil
}
