package heap

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/btree"

	"github.com/tuannm99/novarel/internal/index"
	"github.com/tuannm99/novarel/internal/record"
)

var (
	ErrDuplicateKey    = errors.New("duplicate key")
	ErrUniqueViolation = errors.New("unique constraint violated")
	ErrRowNotFound     = errors.New("row not found")
)

const arenaDegree = 32

// Table holds the rows of one table plus its primary key and unique indexes.
//
// Rows live in a B-tree keyed by RowID. Indexes store RowIDs, so deleting a row
// never shifts the identity of any other row. Position (rank in RowID order) is
// derived on demand.
type Table struct {
	Name   string
	Schema record.Schema

	rows      *btree.BTreeG[Entry]
	nextRowID record.RowID

	pk      *index.Equality
	uniques map[string]*index.Equality
}

func NewTable(schema record.Schema) *Table {
	t := &Table{
		Name:    schema.TableName,
		Schema:  schema,
		rows:    btree.NewG(arenaDegree, entryLess),
		uniques: make(map[string]*index.Equality),
	}
	for _, c := range schema.Columns {
		if c.PrimaryKey {
			t.pk = index.NewEquality(c.Name)
		}
		if c.Unique {
			t.uniques[c.Name] = index.NewEquality(c.Name)
		}
	}
	return t
}

func (t *Table) Len() int { return t.rows.Len() }

func (t *Table) NextRowID() record.RowID { return t.nextRowID }

// Insert validates values, enforces primary key and unique constraints and appends the row.
// It returns the new row's identity and its position.
func (t *Table) Insert(values record.Row) (record.RowID, int, error) {
	if err := values.Validate(t.Schema); err != nil {
		slog.Debug("heap: insert rejected", "table", t.Name, "err", err)
		return 0, -1, err
	}
	if err := t.checkConstraints(values, nil); err != nil {
		slog.Debug("heap: insert rejected", "table", t.Name, "err", err)
		return 0, -1, err
	}

	id := t.nextRowID
	t.nextRowID++

	row := values.Clone()
	t.rows.ReplaceOrInsert(Entry{ID: id, Row: row})
	t.indexRow(id, row)

	return id, t.rows.Len() - 1, nil
}

// checkConstraints fails when values would duplicate a key held by a row outside targets.
func (t *Table) checkConstraints(values record.Row, targets map[record.RowID]struct{}) error {
	if t.pk != nil {
		if v, ok := values[t.pk.Column]; ok && t.conflicts(t.pk, v, targets) {
			return fmt.Errorf("%w: primary key %s=%v already exists", ErrDuplicateKey, t.pk.Column, v)
		}
	}
	for _, name := range t.uniqueColumns() {
		ix := t.uniques[name]
		if v, ok := values[name]; ok && t.conflicts(ix, v, targets) {
			return fmt.Errorf("%w on %s: value %v already exists", ErrUniqueViolation, name, v)
		}
	}
	return nil
}

func (t *Table) conflicts(ix *index.Equality, v any, targets map[record.RowID]struct{}) bool {
	for _, id := range ix.Lookup(v) {
		if _, own := targets[id]; !own {
			return true
		}
	}
	return false
}

// uniqueColumns returns unique column names in schema order so errors are deterministic.
func (t *Table) uniqueColumns() []string {
	out := make([]string, 0, len(t.uniques))
	for _, c := range t.Schema.Columns {
		if _, ok := t.uniques[c.Name]; ok {
			out = append(out, c.Name)
		}
	}
	return out
}

func (t *Table) indexRow(id record.RowID, row record.Row) {
	if t.pk != nil {
		t.pk.Add(row[t.pk.Column], id)
	}
	for name, ix := range t.uniques {
		ix.Add(row[name], id)
	}
}

func (t *Table) unindexRow(id record.RowID, row record.Row) {
	if t.pk != nil {
		t.pk.Remove(row[t.pk.Column], id)
	}
	for name, ix := range t.uniques {
		ix.Remove(row[name], id)
	}
}

// Get returns a copy of the row with the given identity.
func (t *Table) Get(id record.RowID) (record.Row, bool) {
	e, ok := t.rows.Get(Entry{ID: id})
	if !ok {
		return nil, false
	}
	return e.Row.Clone(), true
}

// GetByPrimaryKey is an O(1) point lookup through the primary key index.
func (t *Table) GetByPrimaryKey(key any) (record.Row, bool) {
	id, ok := t.RowIDByPrimaryKey(key)
	if !ok {
		return nil, false
	}
	return t.Get(id)
}

func (t *Table) RowIDByPrimaryKey(key any) (record.RowID, bool) {
	if t.pk == nil {
		return 0, false
	}
	ids := t.pk.Lookup(key)
	if len(ids) == 0 {
		return 0, false
	}
	return ids[0], true
}

// LookupUnique resolves key through the unique index of column.
func (t *Table) LookupUnique(column string, key any) ([]record.RowID, bool) {
	if t.pk != nil && t.pk.Column == column {
		return t.pk.Lookup(key), true
	}
	ix, ok := t.uniques[column]
	if !ok {
		return nil, false
	}
	return ix.Lookup(key), true
}

// Position returns the current 0-based rank of id, or -1.
func (t *Table) Position(id record.RowID) int {
	pos, i := -1, 0
	t.rows.Ascend(func(e Entry) bool {
		if e.ID == id {
			pos = i
			return false
		}
		i++
		return e.ID < id
	})
	return pos
}

// Scan returns a snapshot of every row in insertion order.
func (t *Table) Scan() []Entry {
	out := make([]Entry, 0, t.rows.Len())
	t.rows.Ascend(func(e Entry) bool {
		out = append(out, Entry{ID: e.ID, Row: e.Row.Clone()})
		return true
	})
	return out
}

// Filter is a full linear scan keeping rows where "column op value" holds.
func (t *Table) Filter(column string, op record.Operator, value any) ([]Entry, error) {
	if t.Schema.Column(column) == nil {
		return nil, fmt.Errorf("%w: %s", record.ErrUnknownColumn, column)
	}

	var (
		out    []Entry
		cmpErr error
	)
	t.rows.Ascend(func(e Entry) bool {
		ok, err := record.Compare(e.Row[column], op, value)
		if err != nil {
			cmpErr = fmt.Errorf("where %s %s %v: %w", column, op, value, err)
			return false
		}
		if ok {
			out = append(out, Entry{ID: e.ID, Row: e.Row.Clone()})
		}
		return true
	})
	if cmpErr != nil {
		return nil, cmpErr
	}
	return out, nil
}

// Update applies updates to a single row.
func (t *Table) Update(id record.RowID, updates record.Row) error {
	_, err := t.UpdateMany([]record.RowID{id}, updates)
	return err
}

// UpdateMany applies the same assignments to every row in ids. All assignments and
// constraints are checked up front, so a failing call leaves the table untouched.
// Rows are updated from the highest identity downward.
func (t *Table) UpdateMany(ids []record.RowID, updates record.Row) (int, error) {
	for name, v := range updates {
		c := t.Schema.Column(name)
		if c == nil {
			return 0, fmt.Errorf("%w: %s", record.ErrUnknownColumn, name)
		}
		if err := c.Validate(v); err != nil {
			return 0, err
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	targets := make(map[record.RowID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := t.rows.Get(Entry{ID: id}); !ok {
			return 0, fmt.Errorf("%w: id %d", ErrRowNotFound, id)
		}
		targets[id] = struct{}{}
	}
	if err := t.checkConstraints(updates, targets); err != nil {
		return 0, err
	}
	if len(targets) > 1 {
		if err := t.checkSharedKeys(updates); err != nil {
			return 0, err
		}
	}

	order := make([]record.RowID, 0, len(targets))
	for id := range targets {
		order = append(order, id)
	}
	slices.Sort(order)
	slices.Reverse(order)

	for _, id := range order {
		e, _ := t.rows.Get(Entry{ID: id})
		old := e.Row.Clone()
		for name, v := range updates {
			e.Row[name] = v
		}
		t.reindex(id, old, e.Row)
	}
	return len(order), nil
}

// checkSharedKeys rejects setting a constrained column to one non-NULL value on several rows.
func (t *Table) checkSharedKeys(updates record.Row) error {
	if t.pk != nil {
		if v, ok := updates[t.pk.Column]; ok && v != nil {
			return fmt.Errorf("%w: primary key %s=%v already exists", ErrDuplicateKey, t.pk.Column, v)
		}
	}
	for _, name := range t.uniqueColumns() {
		if v, ok := updates[name]; ok && v != nil {
			return fmt.Errorf("%w on %s: value %v already exists", ErrUniqueViolation, name, v)
		}
	}
	return nil
}

func (t *Table) reindex(id record.RowID, old, cur record.Row) {
	if t.pk != nil {
		col := t.pk.Column
		if !record.Equal(old[col], cur[col]) {
			t.pk.Remove(old[col], id)
			t.pk.Add(cur[col], id)
		}
	}
	for name, ix := range t.uniques {
		if !record.Equal(old[name], cur[name]) {
			ix.Remove(old[name], id)
			ix.Add(cur[name], id)
		}
	}
}

// Delete removes the row's index entries, then the row.
func (t *Table) Delete(id record.RowID) error {
	e, ok := t.rows.Get(Entry{ID: id})
	if !ok {
		return fmt.Errorf("%w: id %d", ErrRowNotFound, id)
	}
	t.unindexRow(id, e.Row)
	t.rows.Delete(e)
	return nil
}

// Truncate removes every row and clears all indexes. It returns the number of rows removed.
func (t *Table) Truncate() int {
	n := t.rows.Len()
	t.rows.Clear(false)
	if t.pk != nil {
		t.pk.Reset()
	}
	for _, ix := range t.uniques {
		ix.Reset()
	}
	return n
}
