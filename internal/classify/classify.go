package classify

import (
	"fmt"
	"strings"

	"vitess.io/vitess/go/vt/sqlparser"
)

// Type is the lower-cased statement kind of a single SQL statement.
type Type string

const (
	TypeSelect   Type = "select"
	TypeInsert   Type = "insert"
	TypeReplace  Type = "replace"
	TypeUpdate   Type = "update"
	TypeDelete   Type = "delete"
	TypeCreate   Type = "create"
	TypeAlter    Type = "alter"
	TypeDrop     Type = "drop"
	TypeTruncate Type = "truncate"
	TypeRename   Type = "rename"
	TypeDDL      Type = "ddl"
	TypeShow     Type = "show"
	TypeDescribe Type = "describe"
	TypeExplain  Type = "explain"
	TypeUse      Type = "use"
	TypeSet      Type = "set"
	TypeBegin    Type = "begin"
	TypeCommit   Type = "commit"
	TypeRollback Type = "rollback"
	TypeUnknown  Type = "unknown"
)

// IsRead returns true for statement kinds that only read data or metadata.
func (t Type) IsRead() bool {
	switch t {
	case TypeSelect, TypeShow, TypeDescribe, TypeExplain:
		return true
	}
	return false
}

// IsWrite returns true for DML statement kinds that mutate rows.
// REPLACE counts as a write of the insert family.
func (t Type) IsWrite() bool {
	switch t {
	case TypeInsert, TypeReplace, TypeUpdate, TypeDelete:
		return true
	}
	return false
}

// IsDDL returns true for statement kinds that change schema objects.
func (t Type) IsDDL() bool {
	switch t {
	case TypeCreate, TypeAlter, TypeDrop, TypeTruncate, TypeRename, TypeDDL:
		return true
	}
	return false
}

// Parser wraps a vitess MySQL-dialect parser and enforces the
// single-statement rule. Safe for concurrent use.
type Parser struct {
	parser *sqlparser.Parser
}

// NewParser creates a new Parser for the MySQL dialect.
func NewParser() (*Parser, error) {
	p, err := sqlparser.New(sqlparser.Options{})
	if err != nil {
		return nil, fmt.Errorf("classify: failed to initialize SQL parser: %w", err)
	}
	return &Parser{parser: p}, nil
}

// ParseOne parses SQL into exactly one statement. Empty input, malformed SQL,
// and multi-statement input all fail. Multi-statement rejection is a security
// control: stacked statements are a classic bypass vector for statement-type
// filters, so the count is checked before any statement is parsed.
func (p *Parser) ParseOne(sql string) (sqlparser.Statement, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, fmt.Errorf("SQL parse error: empty query")
	}

	pieces, err := p.parser.SplitStatementToPieces(sql)
	if err != nil {
		return nil, fmt.Errorf("SQL parse error: %w", err)
	}
	if len(pieces) == 0 {
		return nil, fmt.Errorf("SQL parse error: empty query")
	}
	if len(pieces) > 1 {
		return nil, fmt.Errorf("multi-statement queries are not allowed: found %d statements", len(pieces))
	}

	stmt, err := p.parser.Parse(pieces[0])
	if err != nil {
		return nil, fmt.Errorf("SQL parse error: %w", err)
	}
	return stmt, nil
}

// Classify parses SQL and returns its statement kind. The same
// single-statement rule as ParseOne applies; a parse failure is returned as
// an error, never silently classified.
func (p *Parser) Classify(sql string) (Type, error) {
	stmt, err := p.ParseOne(sql)
	if err != nil {
		return TypeUnknown, err
	}
	return TypeOf(stmt), nil
}

// TypeOf returns the statement kind of an already-parsed statement.
func TypeOf(stmt sqlparser.Statement) Type {
	switch s := stmt.(type) {
	case *sqlparser.Select:
		return TypeSelect
	case *sqlparser.Union:
		return TypeSelect
	case *sqlparser.Insert:
		if s.Action == sqlparser.ReplaceAct {
			return TypeReplace
		}
		return TypeInsert
	case *sqlparser.Update:
		return TypeUpdate
	case *sqlparser.Delete:
		return TypeDelete
	case *sqlparser.CreateTable, *sqlparser.CreateView, *sqlparser.CreateDatabase:
		return TypeCreate
	case *sqlparser.AlterTable, *sqlparser.AlterView, *sqlparser.AlterDatabase:
		return TypeAlter
	case *sqlparser.DropTable, *sqlparser.DropView, *sqlparser.DropDatabase:
		return TypeDrop
	case *sqlparser.TruncateTable:
		return TypeTruncate
	case *sqlparser.RenameTable:
		return TypeRename
	case *sqlparser.Show:
		return TypeShow
	case *sqlparser.ExplainTab:
		return TypeDescribe
	case *sqlparser.ExplainStmt:
		return TypeExplain
	case *sqlparser.Use:
		return TypeUse
	case *sqlparser.Set:
		return TypeSet
	case *sqlparser.Begin:
		return TypeBegin
	case *sqlparser.Commit:
		return TypeCommit
	case *sqlparser.Rollback:
		return TypeRollback
	case sqlparser.DDLStatement:
		// CREATE INDEX and friends parse to DDL kinds without a dedicated case.
		return TypeDDL
	default:
		return TypeUnknown
	}
}
