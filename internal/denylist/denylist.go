package denylist

import (
	"fmt"
	"strings"

	"vitess.io/vitess/go/vt/sqlparser"

	"github.com/rickchristie/mysql-mcp/internal/classify"
)

// Entry is a single denylist entry. A schema-less entry matches the named
// table in any schema; a schema-qualified entry matches only that schema.
type Entry struct {
	Schema string
	Table  string
}

// Table is a single table reference extracted from a statement.
// Schema is empty when the reference is unqualified.
type Table struct {
	Schema string
	Table  string
}

// String returns the schema-qualified name, or the bare table name when
// no schema is known.
func (t Table) String() string {
	if t.Schema == "" {
		return t.Table
	}
	return t.Schema + "." + t.Table
}

// Decision is the outcome of evaluating one query against the denylist.
// Produced fresh per query, never cached.
type Decision struct {
	Blocked bool
	Reason  string
}

// Checker evaluates queries against a denylist. The entries, default schema,
// and multi-database flag are captured once at construction and never change,
// so all methods are safe for concurrent use.
type Checker struct {
	parser        *classify.Parser
	entries       []Entry
	defaultSchema string
	multiDB       bool
}

// NewChecker creates a Checker. Entries and the default schema are
// normalized (trimmed, unquoted, lower-cased) up front so per-query matching
// is a plain comparison.
func NewChecker(parser *classify.Parser, entries []Entry, defaultSchema string, multiDB bool) *Checker {
	normalized := make([]Entry, len(entries))
	for i, e := range entries {
		normalized[i] = Entry{
			Schema: NormalizeIdentifier(e.Schema),
			Table:  NormalizeIdentifier(e.Table),
		}
	}
	return &Checker{
		parser:        parser,
		entries:       normalized,
		defaultSchema: NormalizeIdentifier(defaultSchema),
		multiDB:       multiDB,
	}
}

// Evaluate decides whether the query references a denylisted table.
// Any failure to parse resolves to blocked: an unparseable query cannot be
// proven safe.
func (c *Checker) Evaluate(sql string) Decision {
	if len(c.entries) == 0 {
		return Decision{}
	}

	stmt, err := c.parser.ParseOne(sql)
	if err != nil {
		return Decision{Blocked: true, Reason: fmt.Sprintf("query blocked: %v", err)}
	}

	refs := ExtractTables(stmt)
	if len(refs) == 0 {
		return Decision{}
	}

	for _, ref := range refs {
		if ref.Schema == "" {
			if c.multiDB {
				// No session state is tracked across calls, so an unqualified
				// name in multi-database mode is ambiguous. Ambiguity under a
				// security check resolves to deny.
				return Decision{
					Blocked: true,
					Reason: fmt.Sprintf(
						"query blocked: table %q is referenced without a schema qualifier in multi-database mode; qualify it as schema.%s",
						ref.Table, ref.Table),
				}
			}
			ref.Schema = c.defaultSchema
		}
		if c.Matches(ref.Schema, ref.Table) {
			return Decision{
				Blocked: true,
				Reason:  fmt.Sprintf("query blocked: table %q is denylisted", ref.String()),
			}
		}
	}
	return Decision{}
}

// Matches reports whether the given resolved (schema, table) pair is
// denylisted. Inputs are normalized before comparison.
func (c *Checker) Matches(schema, table string) bool {
	schema = NormalizeIdentifier(schema)
	table = NormalizeIdentifier(table)
	for _, e := range c.entries {
		if e.Table != table {
			continue
		}
		if e.Schema == "" || e.Schema == schema {
			return true
		}
	}
	return false
}

// ExtractTables walks every node of a parsed statement and collects each
// table reference, wherever it appears: FROM clause, joins, subqueries, and
// the target of INSERT/UPDATE/DELETE alike. The traversal is structural
// rather than grammar-aware: it over-reports (a CTE name looks like a table
// reference) but never under-reports, which is the conservative bias a
// denylist needs. The result is deduplicated by (schema, table); an absent
// schema is a distinct key from any schema.
func ExtractTables(stmt sqlparser.Statement) []Table {
	seen := make(map[Table]struct{})
	var refs []Table

	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		tn, ok := node.(sqlparser.TableName)
		if !ok || tn.Name.String() == "" {
			return true, nil
		}
		ref := Table{
			Schema: NormalizeIdentifier(tn.Qualifier.String()),
			Table:  NormalizeIdentifier(tn.Name.String()),
		}
		if _, dup := seen[ref]; !dup {
			seen[ref] = struct{}{}
			refs = append(refs, ref)
		}
		return true, nil
	}, stmt)

	return refs
}

// NormalizeIdentifier strips whitespace and backtick quoting and lower-cases
// the identifier, so `Users`, USERS, and users compare equal.
func NormalizeIdentifier(ident string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(ident), "`"))
}
