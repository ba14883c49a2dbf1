package mymcp

// Config is the base configuration used by library mode via New().
type Config struct {
	Pool         PoolConfig         `json:"pool"`
	Permissions  PermissionsConfig  `json:"permissions"`
	Schema       SchemaConfig       `json:"schema"`
	Denylist     []DenylistEntry    `json:"denylist"`
	Query        QueryConfig        `json:"query"`
	ErrorPrompts []ErrorPromptRule  `json:"error_prompts"`
	Sanitization []SanitizationRule `json:"sanitization"`

	// StrictReadOnly forces every statement through the strict read-only
	// gate. Allow flags are ignored while it is set and output-redirecting
	// SELECT forms are rejected.
	StrictReadOnly bool `json:"strict_read_only"`
}

// ServerConfig embeds Config and adds server-only fields for CLI mode.
type ServerConfig struct {
	Config
	Connection ConnectionConfig `json:"connection"`
	Server     ServerSettings   `json:"server"`
	Logging    LoggingConfig    `json:"logging"`
}

// ConnectionConfig holds database connection parameters used by CLI mode.
// DBName may be empty, in which case the server runs in multi-database mode
// unless the config says otherwise.
type ConnectionConfig struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	DBName string `json:"dbname"`
}

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	MaxConns        int    `json:"max_conns"`
	MaxIdleConns    int    `json:"max_idle_conns"`
	MaxConnLifetime string `json:"max_conn_lifetime"`
	MaxConnIdleTime string `json:"max_conn_idle_time"`
}

// PermissionsConfig controls which write operations are allowed.
// All fields default to false (blocked). Set to true to allow.
type PermissionsConfig struct {
	AllowInsert bool `json:"allow_insert"`
	AllowUpdate bool `json:"allow_update"`
	AllowDelete bool `json:"allow_delete"`
	AllowDDL    bool `json:"allow_ddl"`
}

// SchemaConfig controls how unqualified table names are resolved for
// denylist matching.
type SchemaConfig struct {
	// DefaultSchema is the schema an unqualified table name resolves to
	// when MultiDB is false.
	DefaultSchema string `json:"default_schema"`
	// MultiDB marks the connection as not pinned to one schema. Unqualified
	// table references are then ambiguous and are blocked whenever a
	// denylist is configured.
	MultiDB bool `json:"multi_db"`
}

// DenylistEntry names a table that must never be queried. A schema-less
// entry matches the table in any schema.
type DenylistEntry struct {
	Schema string `json:"schema,omitempty"`
	Table  string `json:"table"`
}

// ServerSettings holds HTTP server settings for CLI mode.
type ServerSettings struct {
	Port               int    `json:"port"`
	HealthCheckEnabled bool   `json:"health_check_enabled"`
	HealthCheckPath    string `json:"health_check_path"`
}

// LoggingConfig holds logging settings for CLI mode.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stdout, or file path
}

// QueryConfig holds query execution settings.
type QueryConfig struct {
	DefaultTimeoutSeconds       int           `json:"default_timeout_seconds"`
	ListTablesTimeoutSeconds    int           `json:"list_tables_timeout_seconds"`
	DescribeTableTimeoutSeconds int           `json:"describe_table_timeout_seconds"`
	MaxSQLLength                int           `json:"max_sql_length"`
	MaxResultLength             int           `json:"max_result_length"`
	TimeoutRules                []TimeoutRule `json:"timeout_rules"`
}

// TimeoutRule maps a SQL pattern to a specific timeout duration.
type TimeoutRule struct {
	Pattern        string `json:"pattern"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// ErrorPromptRule maps an error message pattern to a guidance message.
type ErrorPromptRule struct {
	Pattern string `json:"pattern"`
	Message string `json:"message"`
}

// SanitizationRule defines a regex-based field sanitization rule.
type SanitizationRule struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
	Description string `json:"description"`
}
