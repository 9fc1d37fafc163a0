package executor

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/tuannm99/novarel/internal/engine"
	"github.com/tuannm99/novarel/internal/heap"
	"github.com/tuannm99/novarel/internal/record"
	"github.com/tuannm99/novarel/internal/sql/parser"
)

// Catalog is the part of a database the executor needs. It is a seam for
// unit-testing Executor without touching the filesystem.
type Catalog interface {
	CreateTable(schema record.Schema) (*heap.Table, error)
	GetTable(name string) (*heap.Table, bool)
	DropTable(name string) error
	SaveTable(name string) error
}

var _ Catalog = (*engine.Database)(nil)

// ErrInvalidStatement reports a statement that parsed but cannot be executed as written.
var ErrInvalidStatement = errors.New("invalid statement")

// Executor runs statements against a Catalog. It is not safe for concurrent use.
type Executor struct {
	DB Catalog
}

func NewExecutor(db Catalog) *Executor {
	return &Executor{DB: db}
}

// ExecSQL is the top-level entry: SQL string -> Result.
// Only a *parser.ParseError is returned as an error.
func (e *Executor) ExecSQL(sql string) (*Result, error) {
	stmt, err := parser.Parse(sql)
	if err != nil {
		return nil, err
	}
	return e.Execute(stmt), nil
}

// Execute always returns a Result; failures and panics become Success=false.
func (e *Executor) Execute(stmt parser.Statement) (res *Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("executor: recovered panic", "stmt", fmt.Sprintf("%T", stmt), "panic", r)
			res = failure(fmt.Errorf("internal error: %v", r))
		}
		res.Stats.ExecutionTime = time.Since(start)
	}()

	res, err := e.exec(stmt)
	if err != nil {
		return failure(err)
	}
	return res
}

func (e *Executor) exec(stmt parser.Statement) (*Result, error) {
	switch s := stmt.(type) {
	case *parser.CreateTableStmt:
		return e.execCreateTable(s)
	case *parser.InsertStmt:
		return e.execInsert(s)
	case *parser.SelectStmt:
		return e.execSelect(s)
	case *parser.UpdateStmt:
		return e.execUpdate(s)
	case *parser.DeleteStmt:
		return e.execDelete(s)
	case *parser.DropTableStmt:
		return e.execDropTable(s)
	case *parser.ExplainStmt:
		return e.execExplain(s)
	default:
		return nil, fmt.Errorf("%w: unsupported statement type %T", ErrInvalidStatement, stmt)
	}
}

func (e *Executor) table(name string) (*heap.Table, error) {
	tbl, ok := e.DB.GetTable(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrTableNotFound, name)
	}
	return tbl, nil
}

func (e *Executor) execCreateTable(s *parser.CreateTableStmt) (*Result, error) {
	if _, err := e.DB.CreateTable(s.Schema()); err != nil {
		return nil, err
	}
	return success(fmt.Sprintf("Table %s created successfully", s.TableName)), nil
}

func (e *Executor) execDropTable(s *parser.DropTableStmt) (*Result, error) {
	if err := e.DB.DropTable(s.TableName); err != nil {
		return nil, err
	}
	return success(fmt.Sprintf("Table %s dropped successfully", s.TableName)), nil
}

func (e *Executor) execExplain(s *parser.ExplainStmt) (*Result, error) {
	return success(fmt.Sprintf("EXPLAIN: Analysis of query '%s' would be shown here", s.Query)), nil
}

func (e *Executor) execInsert(s *parser.InsertStmt) (*Result, error) {
	tbl, err := e.table(s.TableName)
	if err != nil {
		return nil, err
	}

	values := make(record.Row, len(s.Columns))
	for i, col := range s.Columns {
		if _, dup := values[col]; dup {
			return nil, fmt.Errorf("%w: column %s listed twice in INSERT", ErrInvalidStatement, col)
		}
		values[col] = s.Values[i]
	}

	id, pos, err := tbl.Insert(values)
	if err != nil {
		return nil, err
	}
	if err := e.DB.SaveTable(tbl.Name); err != nil {
		_ = tbl.Delete(id)
		return nil, fmt.Errorf("insert rolled back: %w", err)
	}

	res := success(fmt.Sprintf("1 row inserted (ID: %d)", pos))
	res.RowsAffected = 1
	res.LastInsertID = &id
	return res, nil
}

// matching returns the rows selected by an optional WHERE.
func matching(tbl *heap.Table, w *parser.Where) ([]heap.Entry, error) {
	if w == nil {
		return tbl.Scan(), nil
	}
	return tbl.Filter(w.Column, w.Op, w.Value)
}

func (e *Executor) execSelect(s *parser.SelectStmt) (*Result, error) {
	tbl, err := e.table(s.TableName)
	if err != nil {
		return nil, err
	}

	entries, err := matching(tbl, s.Where)
	if err != nil {
		return nil, err
	}
	scanned := tbl.Len()

	var (
		rows  []resolver
		cols  []string
		known func(string) bool
	)
	if s.Join != nil {
		right, err := e.table(s.Join.Table)
		if err != nil {
			return nil, err
		}
		j, err := orientJoin(tbl, right, s.Join)
		if err != nil {
			return nil, err
		}
		rows = j.run(entries)
		scanned += right.Len()
		cols = j.columns()
		known = j.has
	} else {
		rows = make([]resolver, len(entries))
		for i, en := range entries {
			rows[i] = plainRow{table: tbl.Name, row: en.Row}
		}
		cols = tbl.Schema.ColumnNames()
		known = func(name string) bool { return hasColumn(tbl, name) }
	}

	if s.Columns != nil {
		for _, c := range s.Columns {
			if !known(c) {
				return nil, fmt.Errorf("%w: %s", record.ErrUnknownColumn, c)
			}
		}
		cols = s.Columns
	}

	data := make([]map[string]any, len(rows))
	for i, r := range rows {
		out := make(map[string]any, len(cols))
		for _, c := range cols {
			out[c] = r.lookup(c)
		}
		data[i] = out
	}

	res := success(fmt.Sprintf("Query returned %d row(s)", len(data)))
	res.Columns = cols
	res.Data = data
	res.Stats.RowsScanned = scanned
	res.Stats.RowsReturned = len(data)
	return res, nil
}

func (e *Executor) execUpdate(s *parser.UpdateStmt) (*Result, error) {
	tbl, err := e.table(s.TableName)
	if err != nil {
		return nil, err
	}

	updates := make(record.Row, len(s.Assignments))
	for _, a := range s.Assignments {
		updates[a.Column] = a.Value
	}

	entries, err := matching(tbl, s.Where)
	if err != nil {
		return nil, err
	}
	ids := make([]record.RowID, len(entries))
	for i, en := range entries {
		ids[i] = en.ID
	}

	n, err := tbl.UpdateMany(ids, updates)
	if err != nil {
		return nil, err
	}
	if err := e.DB.SaveTable(tbl.Name); err != nil {
		return nil, err
	}

	res := success(fmt.Sprintf("%d row(s) updated", n))
	res.RowsAffected = n
	res.Stats.RowsScanned = tbl.Len()
	return res, nil
}

func (e *Executor) execDelete(s *parser.DeleteStmt) (*Result, error) {
	tbl, err := e.table(s.TableName)
	if err != nil {
		return nil, err
	}
	scanned := tbl.Len()

	var n int
	if s.Where == nil {
		n = tbl.Truncate()
	} else {
		entries, err := tbl.Filter(s.Where.Column, s.Where.Op, s.Where.Value)
		if err != nil {
			return nil, err
		}
		ids := make([]record.RowID, len(entries))
		for i, en := range entries {
			ids[i] = en.ID
		}
		// highest identity first
		slices.Reverse(ids)

		var errs []error
		for _, id := range ids {
			if err := tbl.Delete(id); err != nil {
				errs = append(errs, err)
				continue
			}
			n++
		}
		if err := errors.Join(errs...); err != nil {
			return nil, err
		}
	}

	if err := e.DB.SaveTable(tbl.Name); err != nil {
		return nil, err
	}

	res := success(fmt.Sprintf("%d row(s) deleted", n))
	res.RowsAffected = n
	res.Stats.RowsScanned = scanned
	return res, nil
}
