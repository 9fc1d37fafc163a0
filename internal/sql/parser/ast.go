package parser

import (
	"fmt"

	"github.com/tuannm99/novarel/internal/record"
)

// StatementKind names the concrete statement type.
type StatementKind int

const (
	KindCreateTable StatementKind = iota
	KindInsert
	KindSelect
	KindUpdate
	KindDelete
	KindDropTable
	KindExplain
)

func (k StatementKind) String() string {
	switch k {
	case KindCreateTable:
		return "CREATE TABLE"
	case KindInsert:
		return "INSERT"
	case KindSelect:
		return "SELECT"
	case KindUpdate:
		return "UPDATE"
	case KindDelete:
		return "DELETE"
	case KindDropTable:
		return "DROP TABLE"
	case KindExplain:
		return "EXPLAIN"
	default:
		return fmt.Sprintf("StatementKind(%d)", int(k))
	}
}

// Statement is the root interface for all SQL statements.
// The set of implementations is closed: only this package can add one.
type Statement interface {
	stmtNode()
	Kind() StatementKind
}

// ParseError reports text that does not match any statement shape.
type ParseError struct {
	Reason string
	SQL    string
}

func (e *ParseError) Error() string { return "parse error: " + e.Reason }

// ----- predicates -----

// Where is the single "column op literal" predicate a statement may carry.
type Where struct {
	Column string
	Op     record.Operator
	Value  any
}

func (w Where) String() string { return fmt.Sprintf("%s %s %v", w.Column, w.Op, w.Value) }

// Join is an equality join "JOIN Table ON LeftTable.LeftColumn = RightTable.RightColumn",
// kept as written.
type Join struct {
	Table       string
	LeftTable   string
	LeftColumn  string
	RightTable  string
	RightColumn string
}

// ----- CREATE TABLE -----
type CreateTableStmt struct {
	TableName string
	Columns   []record.Column
}

func (*CreateTableStmt) stmtNode()           {}
func (*CreateTableStmt) Kind() StatementKind { return KindCreateTable }

func (s *CreateTableStmt) Schema() record.Schema {
	return record.Schema{TableName: s.TableName, Columns: s.Columns}
}

// ----- INSERT -----
type InsertStmt struct {
	TableName string
	Columns   []string
	Values    []any
}

func (*InsertStmt) stmtNode()           {}
func (*InsertStmt) Kind() StatementKind { return KindInsert }

// ----- SELECT -----
type SelectStmt struct {
	TableName string
	Columns   []string // nil means *
	Where     *Where
	Join      *Join
}

func (*SelectStmt) stmtNode()           {}
func (*SelectStmt) Kind() StatementKind { return KindSelect }

// ----- UPDATE -----
type Assignment struct {
	Column string
	Value  any
}

type UpdateStmt struct {
	TableName   string
	Assignments []Assignment
	Where       *Where
}

func (*UpdateStmt) stmtNode()           {}
func (*UpdateStmt) Kind() StatementKind { return KindUpdate }

// ----- DELETE -----
type DeleteStmt struct {
	TableName string
	Where     *Where
}

func (*DeleteStmt) stmtNode()           {}
func (*DeleteStmt) Kind() StatementKind { return KindDelete }

// ----- DROP TABLE -----
type DropTableStmt struct {
	TableName string
}

func (*DropTableStmt) stmtNode()           {}
func (*DropTableStmt) Kind() StatementKind { return KindDropTable }

// ----- EXPLAIN -----
type ExplainStmt struct {
	Query string
}

func (*ExplainStmt) stmtNode()           {}
func (*ExplainStmt) Kind() StatementKind { return KindExplain }
