package mymcp

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"

	"github.com/rickchristie/mysql-mcp/internal/classify"
	"github.com/rickchristie/mysql-mcp/internal/denylist"
	"github.com/rickchristie/mysql-mcp/internal/errprompt"
	"github.com/rickchristie/mysql-mcp/internal/protection"
	"github.com/rickchristie/mysql-mcp/internal/sanitize"
	"github.com/rickchristie/mysql-mcp/internal/timeout"
)

// MySQLMcp is the core engine that provides Query, ListTables, and
// DescribeTable tools. All exported methods are safe for concurrent use from
// multiple goroutines. Configuration is captured at construction and never
// changes, so every query is evaluated against one immutable snapshot.
type MySQLMcp struct {
	config     Config
	db         *sql.DB
	semaphore  chan struct{}
	parser     *classify.Parser
	protection *protection.Checker
	denylist   *denylist.Checker
	sanitizer  *sanitize.Sanitizer
	errPrompts *errprompt.Matcher
	timeoutMgr *timeout.Manager
	logger     zerolog.Logger
}

// New creates a new MySQLMcp instance.
// dsn is the MySQL DSN (must include credentials) in go-sql-driver format.
// Panics on invalid config. Returns error only for runtime failures
// (e.g., opening the pool).
func New(ctx context.Context, dsn string, config Config, logger zerolog.Logger) (*MySQLMcp, error) {
	// --- Config validation (panics on invalid config) ---

	if dsn == "" {
		panic("mymcp: dsn must be non-empty")
	}
	if config.Pool.MaxConns <= 0 {
		panic("mymcp: pool.max_conns must be > 0")
	}
	if config.Query.DefaultTimeoutSeconds <= 0 {
		panic("mymcp: query.default_timeout_seconds must be > 0")
	}
	if config.Query.ListTablesTimeoutSeconds <= 0 {
		panic("mymcp: query.list_tables_timeout_seconds must be > 0")
	}
	if config.Query.DescribeTableTimeoutSeconds <= 0 {
		panic("mymcp: query.describe_table_timeout_seconds must be > 0")
	}

	// Apply defaults for zero values
	if config.Query.MaxSQLLength == 0 {
		config.Query.MaxSQLLength = 100000
	}
	if config.Query.MaxResultLength == 0 {
		config.Query.MaxResultLength = 100000
	}
	if config.Query.MaxSQLLength < 0 {
		panic("mymcp: query.max_sql_length must be > 0")
	}
	if config.Query.MaxResultLength < 0 {
		panic("mymcp: query.max_result_length must be > 0")
	}

	for _, e := range config.Denylist {
		if e.Table == "" {
			panic("mymcp: denylist entries must name a table")
		}
	}
	if len(config.Denylist) > 0 && !config.Schema.MultiDB && config.Schema.DefaultSchema == "" {
		panic("mymcp: schema.default_schema must be set when a denylist is configured and schema.multi_db is false")
	}

	for _, rule := range config.Query.TimeoutRules {
		if rule.TimeoutSeconds <= 0 {
			panic(fmt.Sprintf("mymcp: timeout_rule with pattern %q has timeout_seconds <= 0", rule.Pattern))
		}
	}

	// --- Configure the driver ---

	dsnConfig, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	if dsnConfig.MultiStatements {
		// The single-statement parse gate assumes the wire protocol matches:
		// a DSN that re-enables stacked statements would widen the boundary.
		panic("mymcp: multiStatements must not be enabled in the DSN")
	}
	dsnConfig.ParseTime = true

	db, err := sql.Open("mysql", dsnConfig.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open connection pool: %w", err)
	}
	db.SetMaxOpenConns(config.Pool.MaxConns)
	if config.Pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.Pool.MaxIdleConns)
	}
	if config.Pool.MaxConnLifetime != "" {
		d, err := time.ParseDuration(config.Pool.MaxConnLifetime)
		if err != nil {
			panic(fmt.Sprintf("mymcp: invalid pool.max_conn_lifetime %q: %v", config.Pool.MaxConnLifetime, err))
		}
		db.SetConnMaxLifetime(d)
	}
	if config.Pool.MaxConnIdleTime != "" {
		d, err := time.ParseDuration(config.Pool.MaxConnIdleTime)
		if err != nil {
			panic(fmt.Sprintf("mymcp: invalid pool.max_conn_idle_time %q: %v", config.Pool.MaxConnIdleTime, err))
		}
		db.SetConnMaxIdleTime(d)
	}

	// --- Initialize internal components ---

	parser, err := classify.NewParser()
	if err != nil {
		db.Close()
		return nil, err
	}

	protectionChecker := protection.NewChecker(protection.Config{
		AllowInsert: config.Permissions.AllowInsert,
		AllowUpdate: config.Permissions.AllowUpdate,
		AllowDelete: config.Permissions.AllowDelete,
		AllowDDL:    config.Permissions.AllowDDL,
	})
	denylistChecker := denylist.NewChecker(parser, mapDenylistEntries(config.Denylist),
		config.Schema.DefaultSchema, config.Schema.MultiDB)

	san, err := sanitize.NewSanitizer(mapSanitizationRules(config.Sanitization))
	if err != nil {
		panic("mymcp: " + err.Error())
	}
	matcher, err := errprompt.NewMatcher(mapErrorPromptRules(config.ErrorPrompts))
	if err != nil {
		panic("mymcp: " + err.Error())
	}
	timeoutRules := make([]timeout.Rule, len(config.Query.TimeoutRules))
	for i, r := range config.Query.TimeoutRules {
		timeoutRules[i] = timeout.Rule{
			Pattern: r.Pattern,
			Timeout: time.Duration(r.TimeoutSeconds) * time.Second,
		}
	}
	tmgr := timeout.NewManager(timeout.Config{
		DefaultTimeout: time.Duration(config.Query.DefaultTimeoutSeconds) * time.Second,
		Rules:          timeoutRules,
	})

	return &MySQLMcp{
		config:     config,
		db:         db,
		semaphore:  make(chan struct{}, config.Pool.MaxConns),
		parser:     parser,
		protection: protectionChecker,
		denylist:   denylistChecker,
		sanitizer:  san,
		errPrompts: matcher,
		timeoutMgr: tmgr,
		logger:     logger,
	}, nil
}

// Ping verifies database connectivity.
func (p *MySQLMcp) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the connection pool. Accepts context for API
// forward-compatibility; database/sql close does not support context-based
// shutdown.
func (p *MySQLMcp) Close(ctx context.Context) error {
	return p.db.Close()
}

// mapDenylistEntries converts mymcp DenylistEntry to internal denylist.Entry.
func mapDenylistEntries(entries []DenylistEntry) []denylist.Entry {
	result := make([]denylist.Entry, len(entries))
	for i, e := range entries {
		result[i] = denylist.Entry{Schema: e.Schema, Table: e.Table}
	}
	return result
}

// mapSanitizationRules converts mymcp SanitizationRules to internal sanitize.Rules.
func mapSanitizationRules(rules []SanitizationRule) []sanitize.Rule {
	result := make([]sanitize.Rule, len(rules))
	for i, r := range rules {
		result[i] = sanitize.Rule{
			Pattern:     r.Pattern,
			Replacement: r.Replacement,
		}
	}
	return result
}

// mapErrorPromptRules converts mymcp ErrorPromptRules to internal errprompt.Rules.
func mapErrorPromptRules(rules []ErrorPromptRule) []errprompt.Rule {
	result := make([]errprompt.Rule, len(rules))
	for i, r := range rules {
		result[i] = errprompt.Rule{
			Pattern: r.Pattern,
			Message: r.Message,
		}
	}
	return result
}
