package mymcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/rickchristie/mysql-mcp/internal/classify"
)

// ExecutionMode is the transaction discipline a statement runs under.
type ExecutionMode int

const (
	// ModeUnrestricted executes directly with no transaction wrapper.
	// Used for trusted internal queries (e.g. schema introspection).
	ModeUnrestricted ExecutionMode = iota
	// ModeReadOnly forces the session read-only, runs the statement in a
	// transaction, and always rolls back. Write statement kinds are rejected
	// unless their allow flag is enabled.
	ModeReadOnly
	// ModeStrictReadOnly is ModeReadOnly but ignores allow flags: only
	// genuine read statements run, and output-redirecting SELECT forms are
	// rejected.
	ModeStrictReadOnly
	// ModeWrite runs the statement in an explicit transaction, committing on
	// success and rolling back on failure. Only allow-flagged DML/DDL runs
	// under this mode.
	ModeWrite
)

func (m ExecutionMode) String() string {
	switch m {
	case ModeUnrestricted:
		return "unrestricted"
	case ModeReadOnly:
		return "read-only"
	case ModeStrictReadOnly:
		return "strict-read-only"
	case ModeWrite:
		return "write"
	default:
		return "unknown"
	}
}

// Query executes the full query pipeline, routing the statement to the
// execution mode the configuration allows. All errors (MySQL errors,
// permission rejections, denylist blocks, Go errors) are converted to
// output.Error and evaluated against error_prompts. Callers only need to
// check output.Error, never a Go error.
func (p *MySQLMcp) Query(ctx context.Context, input QueryInput) *QueryOutput {
	return p.run(ctx, input, nil)
}

// Execute runs the pipeline under an explicit execution mode instead of the
// configuration-routed one. Library callers use this when they need a
// guarantee stronger than the config (e.g. ModeStrictReadOnly regardless of
// allow flags).
func (p *MySQLMcp) Execute(ctx context.Context, mode ExecutionMode, input QueryInput) *QueryOutput {
	return p.run(ctx, input, &mode)
}

func (p *MySQLMcp) run(ctx context.Context, input QueryInput, forced *ExecutionMode) *QueryOutput {
	startTime := time.Now()
	query := input.SQL

	// 1. Acquire semaphore (respects context cancellation to prevent deadlock)
	select {
	case p.semaphore <- struct{}{}:
	case <-ctx.Done():
		return p.handleError(fmt.Errorf("failed to acquire query slot: all %d connection slots are in use, context cancelled while waiting: %w", cap(p.semaphore), ctx.Err()))
	}
	defer func() { <-p.semaphore }()

	// 2. Check SQL length (before any parsing)
	if len(query) > p.config.Query.MaxSQLLength {
		return p.handleError(fmt.Errorf("SQL query too long: %d bytes exceeds maximum of %d bytes", len(query), p.config.Query.MaxSQLLength))
	}

	// 3. Parse and classify. Exactly one statement or fail closed.
	stmt, err := p.parser.ParseOne(query)
	if err != nil {
		return p.handleError(err)
	}
	stmtType := classify.TypeOf(stmt)

	// 4. Denylist policy decision
	if decision := p.denylist.Evaluate(query); decision.Blocked {
		return p.handleError(errors.New(decision.Reason))
	}

	// 5. Mode routing and permission gate. Gates run before any connection
	// is acquired: a blocked statement never reaches a transaction.
	mode := p.routeMode(stmtType)
	if forced != nil {
		mode = *forced
	}
	switch mode {
	case ModeReadOnly:
		if err := p.protection.CheckReadOnly(stmtType); err != nil {
			return p.handleError(err)
		}
	case ModeStrictReadOnly:
		if err := p.protection.CheckStrictReadOnly(stmtType, stmt, query); err != nil {
			return p.handleError(err)
		}
	case ModeWrite:
		if err := p.protection.CheckWrite(stmtType); err != nil {
			return p.handleError(err)
		}
	case ModeUnrestricted:
		// Parse gate only.
	}

	// 6. Determine timeout
	queryTimeout, timeoutRule := p.timeoutMgr.GetTimeoutWithPattern(query)
	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// 7. Lease exactly one connection for the whole query lifecycle.
	conn, err := p.db.Conn(queryCtx)
	if err != nil {
		return p.handleError(err)
	}
	defer conn.Close()

	var output *QueryOutput
	switch mode {
	case ModeWrite:
		output, err = p.executeWrite(queryCtx, conn, stmtType, input)
	case ModeUnrestricted:
		output, err = p.executeDirect(queryCtx, conn, input)
	default:
		output, err = p.executeReadOnly(ctx, queryCtx, conn, input)
	}
	if err != nil {
		return p.handleError(err)
	}

	output.Statement = string(stmtType)
	output.Elapsed = time.Since(startTime)

	// 8. Apply sanitization and max result length truncation
	sanitized := p.sanitizer.HasRules()
	output.Rows = p.sanitizer.SanitizeRows(output.Rows)
	p.truncateIfNeeded(output)

	// 9. Log successful query execution
	logEvent := p.logger.Info().
		Str("sql", truncateForLog(query, 200)).
		Str("mode", mode.String()).
		Str("statement", output.Statement).
		Dur("duration", output.Elapsed).
		Int("row_count", len(output.Rows)).
		Int64("rows_affected", output.RowsAffected)
	if timeoutRule != "" {
		logEvent = logEvent.Str("timeout_rule", timeoutRule)
	}
	if sanitized {
		logEvent = logEvent.Bool("sanitized", true)
	}
	logEvent.Msg("query executed")

	return output
}

// routeMode picks the execution discipline for a classified statement.
// Strict read-only overrides every allow flag; otherwise allow-flagged
// writes commit and everything else runs under read-only rollback
// discipline.
func (p *MySQLMcp) routeMode(t classify.Type) ExecutionMode {
	if p.config.StrictReadOnly {
		return ModeStrictReadOnly
	}
	if (t.IsWrite() || t.IsDDL()) && p.protection.CheckWrite(t) == nil {
		return ModeWrite
	}
	return ModeReadOnly
}

// executeDirect runs the statement without a transaction wrapper. The leased
// connection is still released by the caller on every exit path.
func (p *MySQLMcp) executeDirect(queryCtx context.Context, conn *sql.Conn, input QueryInput) (*QueryOutput, error) {
	rows, err := conn.QueryContext(queryCtx, input.SQL, input.Params...)
	if err != nil {
		return nil, err
	}
	return collectRows(rows)
}

// executeReadOnly forces the session read-only, runs the statement in a
// transaction, and always rolls back. This discipline must never persist a
// mutation even if one somehow executed. The session is restored to
// read-write before the connection goes back to the pool.
func (p *MySQLMcp) executeReadOnly(ctx, queryCtx context.Context, conn *sql.Conn, input QueryInput) (*QueryOutput, error) {
	if _, err := conn.ExecContext(queryCtx, "SET SESSION TRANSACTION READ ONLY"); err != nil {
		return nil, fmt.Errorf("failed to set session read-only: %w", err)
	}
	// Restore with the parent context: if the query timed out, queryCtx is
	// already cancelled and the restore would fail.
	defer func() {
		if _, err := conn.ExecContext(ctx, "SET SESSION TRANSACTION READ WRITE"); err != nil {
			p.logger.Warn().Err(err).Msg("failed to restore session to read-write")
		}
	}()

	tx, err := conn.BeginTx(queryCtx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			p.logger.Warn().Err(err).Msg("read-only rollback failed")
		}
	}()

	rows, err := tx.QueryContext(queryCtx, input.SQL, input.Params...)
	if err != nil {
		return nil, err
	}
	return collectRows(rows)
}

// executeWrite runs the statement in an explicit transaction: commit on
// success, rollback on any failure.
func (p *MySQLMcp) executeWrite(queryCtx context.Context, conn *sql.Conn, stmtType classify.Type, input QueryInput) (*QueryOutput, error) {
	tx, err := conn.BeginTx(queryCtx, nil)
	if err != nil {
		return nil, err
	}

	result, err := tx.ExecContext(queryCtx, input.SQL, input.Params...)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			p.logger.Warn().Err(rbErr).Msg("write rollback failed")
		}
		return nil, err
	}

	affected, _ := result.RowsAffected()
	var lastID int64
	if stmtType == classify.TypeInsert || stmtType == classify.TypeReplace {
		lastID, _ = result.LastInsertId()
	}

	if err := tx.Commit(); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			p.logger.Warn().Err(rbErr).Msg("write rollback failed")
		}
		return nil, fmt.Errorf("commit failed: %w", err)
	}

	return &QueryOutput{
		Columns:      []string{},
		Rows:         []map[string]interface{}{},
		RowsAffected: affected,
		LastInsertID: lastID,
	}, nil
}

// collectRows reads all rows from sql.Rows and returns a QueryOutput.
func collectRows(rows *sql.Rows) (*QueryOutput, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	resultRows := make([]map[string]interface{}, 0)
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = convertValue(values[i])
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &QueryOutput{Columns: columns, Rows: resultRows}, nil
}

// convertValue converts a driver-returned value to a JSON-friendly Go type.
// The MySQL driver hands back []byte for text, blob, decimal, and JSON
// columns alike; decoding to string keeps the result readable.
func convertValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case float64:
		if math.IsNaN(val) {
			return "NaN"
		}
		if math.IsInf(val, 1) {
			return "Infinity"
		}
		if math.IsInf(val, -1) {
			return "-Infinity"
		}
		return val
	default:
		return val
	}
}

// handleError converts any error into a QueryOutput with error message.
// The error message is evaluated against error_prompts; matching prompt
// messages are appended.
func (p *MySQLMcp) handleError(err error) *QueryOutput {
	errMsg := err.Error()
	prompt := p.errPrompts.Match(errMsg)
	patterns := p.errPrompts.MatchedPatterns(errMsg)

	logEvent := p.logger.Error().Err(err)
	if len(patterns) > 0 {
		logEvent = logEvent.Strs("error_prompts", patterns)
	}
	logEvent.Msg("query error")

	if prompt != "" {
		errMsg = errMsg + "\n\n" + prompt
	}
	return &QueryOutput{Error: errMsg}
}

// truncateIfNeeded truncates query output rows if they exceed MaxResultLength (in characters).
func (p *MySQLMcp) truncateIfNeeded(output *QueryOutput) {
	jsonBytes, _ := json.Marshal(output.Rows)
	jsonStr := string(jsonBytes)
	if utf8.RuneCountInString(jsonStr) <= p.config.Query.MaxResultLength {
		return
	}
	runes := []rune(jsonStr)
	truncated := string(runes[:p.config.Query.MaxResultLength])
	output.Rows = nil
	output.Error = truncated + "...[truncated] Result is too long! Add limits in your query!"
}

// truncateForLog truncates a string for log output to avoid oversized log entries.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	truncateAt := maxLen
	for truncateAt > 0 && !utf8.RuneStart(s[truncateAt]) {
		truncateAt--
	}
	return s[:truncateAt] + "...[truncated]"
}
