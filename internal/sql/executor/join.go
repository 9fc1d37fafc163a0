package executor

import (
	"fmt"
	"strings"

	"github.com/tuannm99/novarel/internal/heap"
	"github.com/tuannm99/novarel/internal/record"
	"github.com/tuannm99/novarel/internal/sql/parser"
)

// resolver is a result row before projection.
type resolver interface {
	lookup(name string) any
}

// plainRow is a single-table row. "table.col" resolves to col.
type plainRow struct {
	table string
	row   record.Row
}

func (r plainRow) lookup(name string) any {
	if v, ok := r.row[name]; ok {
		return v
	}
	if col, ok := strings.CutPrefix(name, r.table+"."); ok {
		return r.row[col]
	}
	return nil
}

// mergedRow holds "table.column" keys for both sides of a join.
// Unqualified names try the key itself, then the left table, then the right table.
type mergedRow struct {
	left, right string
	row         map[string]any
}

func (r mergedRow) lookup(name string) any {
	for _, k := range []string{name, r.left + "." + name, r.right + "." + name} {
		if v, ok := r.row[k]; ok {
			return v
		}
	}
	return nil
}

func hasColumn(tbl *heap.Table, name string) bool {
	if tbl.Schema.Column(name) != nil {
		return true
	}
	col, ok := strings.CutPrefix(name, tbl.Name+".")
	return ok && tbl.Schema.Column(col) != nil
}

// joinPlan is a nested-loop equality join with the FROM table on the left.
type joinPlan struct {
	left, right       *heap.Table
	leftCol, rightCol string
}

// orientJoin maps the ON condition onto (left, right). The condition may name the
// tables in either order.
func orientJoin(left, right *heap.Table, j *parser.Join) (*joinPlan, error) {
	p := &joinPlan{left: left, right: right}
	switch {
	case j.LeftTable == left.Name && j.RightTable == right.Name:
		p.leftCol, p.rightCol = j.LeftColumn, j.RightColumn
	case j.RightTable == left.Name && j.LeftTable == right.Name:
		p.leftCol, p.rightCol = j.RightColumn, j.LeftColumn
	default:
		return nil, fmt.Errorf("%w: join condition %s.%s = %s.%s must reference %s and %s",
			ErrInvalidStatement, j.LeftTable, j.LeftColumn, j.RightTable, j.RightColumn, left.Name, right.Name)
	}

	if left.Schema.Column(p.leftCol) == nil {
		return nil, fmt.Errorf("%w: %s.%s", record.ErrUnknownColumn, left.Name, p.leftCol)
	}
	if right.Schema.Column(p.rightCol) == nil {
		return nil, fmt.Errorf("%w: %s.%s", record.ErrUnknownColumn, right.Name, p.rightCol)
	}
	return p, nil
}

// run compares every left row with every right row. Cost is O(|left| x |right|).
func (p *joinPlan) run(leftRows []heap.Entry) []resolver {
	rightRows := p.right.Scan()

	var out []resolver
	for _, l := range leftRows {
		lv := l.Row[p.leftCol]
		for _, r := range rightRows {
			if !record.Equal(lv, r.Row[p.rightCol]) {
				continue
			}
			out = append(out, p.merge(l.Row, r.Row))
		}
	}
	return out
}

func (p *joinPlan) merge(l, r record.Row) mergedRow {
	m := make(map[string]any, p.left.Schema.NumCols()+p.right.Schema.NumCols())
	for _, c := range p.left.Schema.Columns {
		m[p.left.Name+"."+c.Name] = l[c.Name]
	}
	for _, c := range p.right.Schema.Columns {
		m[p.right.Name+"."+c.Name] = r[c.Name]
	}
	return mergedRow{left: p.left.Name, right: p.right.Name, row: m}
}

// columns lists qualified names, left table first.
func (p *joinPlan) columns() []string {
	out := make([]string, 0, p.left.Schema.NumCols()+p.right.Schema.NumCols())
	for _, c := range p.left.Schema.Columns {
		out = append(out, p.left.Name+"."+c.Name)
	}
	for _, c := range p.right.Schema.Columns {
		out = append(out, p.right.Name+"."+c.Name)
	}
	return out
}

func (p *joinPlan) has(name string) bool {
	return hasColumn(p.left, name) || hasColumn(p.right, name)
}
