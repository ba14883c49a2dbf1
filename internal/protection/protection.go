package protection

import (
	"fmt"
	"regexp"

	"vitess.io/vitess/go/vt/sqlparser"

	"github.com/rickchristie/mysql-mcp/internal/classify"
)

// Config holds the per-operation allow flags. All fields default to false
// (blocked). Set to true to allow.
type Config struct {
	AllowInsert bool
	AllowUpdate bool
	AllowDelete bool
	AllowDDL    bool
}

// Checker validates classified statements against the allow flags for a
// given execution discipline. Stateless apart from its config; safe for
// concurrent use.
type Checker struct {
	config Config
}

// NewChecker creates a new Checker with the given config.
func NewChecker(config Config) *Checker {
	return &Checker{config: config}
}

// intoFilePattern is a textual backstop for output-redirecting SELECT forms.
// The structural check on the AST is authoritative; the pattern catches
// dialect corners the parser might normalize away.
var intoFilePattern = regexp.MustCompile(`(?i)\bINTO\s+(OUTFILE|DUMPFILE)\b`)

// CheckReadOnly returns nil if the statement may run under read-only
// transaction discipline. Read statements always pass. DML and DDL pass only
// when the corresponding allow flag is set (the transaction is still rolled
// back afterwards). Everything else is denied outright.
func (c *Checker) CheckReadOnly(t classify.Type) error {
	if t.IsRead() {
		return nil
	}
	if t.IsWrite() || t.IsDDL() {
		return c.checkWriteFlags(t)
	}
	return denyStatementKind(t)
}

// CheckStrictReadOnly returns nil only for genuine read statements. Allow
// flags are ignored entirely: this gate exists for callers that must
// guarantee zero mutation regardless of server configuration. Output
// redirection (SELECT ... INTO OUTFILE/DUMPFILE) is rejected even though it
// is lexically a SELECT.
func (c *Checker) CheckStrictReadOnly(t classify.Type, stmt sqlparser.Statement, sql string) error {
	if !t.IsRead() {
		return fmt.Errorf("%s statements are not allowed in strict read-only mode: only read statements are permitted", t)
	}
	if hasSelectInto(stmt) || intoFilePattern.MatchString(sql) {
		return fmt.Errorf("SELECT INTO OUTFILE/DUMPFILE is not allowed in strict read-only mode: redirects query output outside the result set")
	}
	return nil
}

// CheckWrite returns nil if the statement may run under an explicit
// commit/rollback transaction. Only DML (and DDL, when allowed) qualifies;
// read statements take the read-only path instead.
func (c *Checker) CheckWrite(t classify.Type) error {
	if t.IsWrite() || t.IsDDL() {
		return c.checkWriteFlags(t)
	}
	return fmt.Errorf("%s statements are not allowed in write mode: only INSERT, UPDATE, DELETE, and allowed DDL run in a write transaction", t)
}

func (c *Checker) checkWriteFlags(t classify.Type) error {
	switch t {
	case classify.TypeInsert, classify.TypeReplace:
		if !c.config.AllowInsert {
			return fmt.Errorf("INSERT statements are not allowed: set permissions.allow_insert to enable")
		}
	case classify.TypeUpdate:
		if !c.config.AllowUpdate {
			return fmt.Errorf("UPDATE statements are not allowed: set permissions.allow_update to enable")
		}
	case classify.TypeDelete:
		if !c.config.AllowDelete {
			return fmt.Errorf("DELETE statements are not allowed: set permissions.allow_delete to enable")
		}
	case classify.TypeCreate, classify.TypeAlter, classify.TypeDrop,
		classify.TypeTruncate, classify.TypeRename, classify.TypeDDL:
		if !c.config.AllowDDL {
			return fmt.Errorf("DDL statements are not allowed: set permissions.allow_ddl to enable")
		}
	default:
		return denyStatementKind(t)
	}
	return nil
}

// denyStatementKind is the fail-closed default for statement kinds that have
// no allow flag: session control, transaction control, and anything unknown.
func denyStatementKind(t classify.Type) error {
	return fmt.Errorf("%s statements are not allowed: no permission flag covers this statement kind", t)
}

// hasSelectInto reports whether any SELECT in the statement redirects its
// output. Walking the whole tree catches subquery and UNION branches.
func hasSelectInto(stmt sqlparser.Statement) bool {
	if stmt == nil {
		return false
	}
	found := false
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		if sel, ok := node.(*sqlparser.Select); ok && sel.Into != nil {
			found = true
			return false, nil
		}
		return true, nil
	}, stmt)
	return found
}
