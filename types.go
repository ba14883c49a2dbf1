package mymcp

import "time"

// QueryInput is the input for the Query tool. Params are bound to `?`
// placeholders in order.
type QueryInput struct {
	SQL    string        `json:"sql"`
	Params []interface{} `json:"params,omitempty"`
}

// QueryOutput is the output of the Query tool. All errors (MySQL errors,
// permission rejections, denylist blocks, Go errors) are placed in Error.
// The error message is evaluated against error_prompts and matching prompt
// messages are appended. Callers only need to check Error, never a Go error.
type QueryOutput struct {
	Statement    string                   `json:"statement"`
	Columns      []string                 `json:"columns"`
	Rows         []map[string]interface{} `json:"rows"`
	RowsAffected int64                    `json:"rows_affected"`
	LastInsertID int64                    `json:"last_insert_id"`
	Elapsed      time.Duration            `json:"elapsed_ns"`
	Error        string                   `json:"error,omitempty"`
}

// ListTablesInput is the input for the ListTables tool.
type ListTablesInput struct{}

// TableEntry represents a single table/view in the ListTables output.
type TableEntry struct {
	Schema      string `json:"schema"`
	Name        string `json:"name"`
	Type        string `json:"type"` // "BASE TABLE", "VIEW", "SYSTEM VIEW"
	Engine      string `json:"engine,omitempty"`
	RowEstimate int64  `json:"row_estimate"`
}

// ListTablesOutput is the output of the ListTables tool.
type ListTablesOutput struct {
	Tables []TableEntry `json:"tables"`
	Error  string       `json:"error,omitempty"`
}

// DescribeTableInput is the input for the DescribeTable tool.
type DescribeTableInput struct {
	Table  string `json:"table"`
	Schema string `json:"schema"`
}

// ColumnInfo describes a single column.
type ColumnInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Key      string `json:"key,omitempty"` // PRI, UNI, MUL
	Default  string `json:"default,omitempty"`
	Extra    string `json:"extra,omitempty"` // auto_increment, on update ...
}

// IndexInfo describes a single index.
type IndexInfo struct {
	Name     string   `json:"name"`
	Columns  []string `json:"columns"`
	IsUnique bool     `json:"is_unique"`
}

// ForeignKeyInfo describes a single foreign key column mapping.
type ForeignKeyInfo struct {
	Name             string `json:"name"`
	Column           string `json:"column"`
	ReferencedSchema string `json:"referenced_schema"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

// DescribeTableOutput is the output of the DescribeTable tool.
type DescribeTableOutput struct {
	Schema      string           `json:"schema"`
	Name        string           `json:"name"`
	Columns     []ColumnInfo     `json:"columns"`
	Indexes     []IndexInfo      `json:"indexes"`
	ForeignKeys []ForeignKeyInfo `json:"foreign_keys"`
	Error       string           `json:"error,omitempty"`
}
