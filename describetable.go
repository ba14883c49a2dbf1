package mymcp

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQL queries for DescribeTable

const columnsSQL = `
SELECT
    column_name,
    column_type,
    CASE is_nullable WHEN 'YES' THEN 1 ELSE 0 END,
    COALESCE(column_key, ''),
    COALESCE(column_default, ''),
    COALESCE(extra, '')
FROM information_schema.columns
WHERE table_schema = ? AND table_name = ?
ORDER BY ordinal_position;
`

const indexesSQL = `
SELECT
    index_name,
    column_name,
    non_unique
FROM information_schema.statistics
WHERE table_schema = ? AND table_name = ?
ORDER BY index_name, seq_in_index;
`

const foreignKeysSQL = `
SELECT
    constraint_name,
    column_name,
    referenced_table_schema,
    referenced_table_name,
    referenced_column_name
FROM information_schema.key_column_usage
WHERE table_schema = ? AND table_name = ?
  AND referenced_table_name IS NOT NULL
ORDER BY constraint_name, ordinal_position;
`

// DescribeTable returns column, index, and foreign key metadata for one
// table. The schema argument defaults to the configured default schema;
// in multi-database mode it is required. Denylisted tables are refused.
func (p *MySQLMcp) DescribeTable(ctx context.Context, input DescribeTableInput) (*DescribeTableOutput, error) {
	startTime := time.Now()

	if input.Table == "" {
		return nil, fmt.Errorf("DescribeTable: table must be non-empty")
	}
	schema := input.Schema
	if schema == "" {
		if p.config.Schema.MultiDB {
			return nil, fmt.Errorf("DescribeTable: schema is required in multi-database mode")
		}
		schema = p.config.Schema.DefaultSchema
	}
	if p.denylist.Matches(schema, input.Table) {
		return nil, fmt.Errorf("DescribeTable: table %q is denylisted", schema+"."+input.Table)
	}

	// Acquire semaphore
	select {
	case p.semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("DescribeTable: failed to acquire query slot: all %d connection slots are in use, context cancelled while waiting: %w", cap(p.semaphore), ctx.Err())
	}
	defer func() { <-p.semaphore }()

	queryCtx, cancel := context.WithTimeout(ctx, time.Duration(p.config.Query.DescribeTableTimeoutSeconds)*time.Second)
	defer cancel()

	conn, err := p.db.Conn(queryCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	output := &DescribeTableOutput{Schema: schema, Name: input.Table}

	if output.Columns, err = p.describeColumns(queryCtx, conn, schema, input.Table); err != nil {
		return nil, err
	}
	if len(output.Columns) == 0 {
		return nil, fmt.Errorf("DescribeTable: table %q not found in schema %q", input.Table, schema)
	}
	if output.Indexes, err = p.describeIndexes(queryCtx, conn, schema, input.Table); err != nil {
		return nil, err
	}
	if output.ForeignKeys, err = p.describeForeignKeys(queryCtx, conn, schema, input.Table); err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("schema", schema).
		Str("table", input.Table).
		Dur("duration", time.Since(startTime)).
		Msg("DescribeTable executed")

	return output, nil
}

func (p *MySQLMcp) describeColumns(ctx context.Context, conn *sql.Conn, schema, table string) ([]ColumnInfo, error) {
	rows, err := conn.QueryContext(ctx, columnsSQL, schema, table)
	if err != nil {
		return nil, fmt.Errorf("DescribeTable columns query failed: %w", err)
	}
	defer rows.Close()

	columns := []ColumnInfo{}
	for rows.Next() {
		var col ColumnInfo
		var nullable int
		if err := rows.Scan(&col.Name, &col.Type, &nullable, &col.Key, &col.Default, &col.Extra); err != nil {
			return nil, fmt.Errorf("DescribeTable columns scan failed: %w", err)
		}
		col.Nullable = nullable == 1
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func (p *MySQLMcp) describeIndexes(ctx context.Context, conn *sql.Conn, schema, table string) ([]IndexInfo, error) {
	rows, err := conn.QueryContext(ctx, indexesSQL, schema, table)
	if err != nil {
		return nil, fmt.Errorf("DescribeTable indexes query failed: %w", err)
	}
	defer rows.Close()

	// information_schema.statistics has one row per indexed column;
	// fold them into one IndexInfo per index, preserving column order.
	indexes := []IndexInfo{}
	byName := map[string]int{}
	for rows.Next() {
		var name, column string
		var nonUnique int
		if err := rows.Scan(&name, &column, &nonUnique); err != nil {
			return nil, fmt.Errorf("DescribeTable indexes scan failed: %w", err)
		}
		if i, ok := byName[name]; ok {
			indexes[i].Columns = append(indexes[i].Columns, column)
			continue
		}
		byName[name] = len(indexes)
		indexes = append(indexes, IndexInfo{Name: name, Columns: []string{column}, IsUnique: nonUnique == 0})
	}
	return indexes, rows.Err()
}

func (p *MySQLMcp) describeForeignKeys(ctx context.Context, conn *sql.Conn, schema, table string) ([]ForeignKeyInfo, error) {
	rows, err := conn.QueryContext(ctx, foreignKeysSQL, schema, table)
	if err != nil {
		return nil, fmt.Errorf("DescribeTable foreign keys query failed: %w", err)
	}
	defer rows.Close()

	fks := []ForeignKeyInfo{}
	for rows.Next() {
		var fk ForeignKeyInfo
		if err := rows.Scan(&fk.Name, &fk.Column, &fk.ReferencedSchema, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
			return nil, fmt.Errorf("DescribeTable foreign keys scan failed: %w", err)
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}
