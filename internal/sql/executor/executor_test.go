package executor

import (
	"errors"
	"strconv"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novarel/internal/engine"
	"github.com/tuannm99/novarel/internal/heap"
	"github.com/tuannm99/novarel/internal/record"
	"github.com/tuannm99/novarel/internal/sql/parser"
)

// ---- fakes ----

type fakeCatalog struct {
	tables     map[string]*heap.Table
	saveErr    error
	panicOnGet bool
	saved      []string
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{tables: map[string]*heap.Table{}}
}

func (f *fakeCatalog) CreateTable(schema record.Schema) (*heap.Table, error) {
	if _, ok := f.tables[schema.TableName]; ok {
		return nil, engine.ErrTableExists
	}
	tbl := heap.NewTable(schema)
	f.tables[schema.TableName] = tbl
	return tbl, nil
}

func (f *fakeCatalog) GetTable(name string) (*heap.Table, bool) {
	if f.panicOnGet {
		panic("boom")
	}
	tbl, ok := f.tables[name]
	return tbl, ok
}

func (f *fakeCatalog) DropTable(name string) error {
	delete(f.tables, name)
	return nil
}

func (f *fakeCatalog) SaveTable(name string) error {
	f.saved = append(f.saved, name)
	return f.saveErr
}

// ---- helpers ----

func newTestExecutor(t *testing.T) (*Executor, *engine.Database, string) {
	t.Helper()
	dir := t.TempDir()
	db, err := engine.Open(dir)
	require.NoError(t, err)
	return NewExecutor(db), db, dir
}

func mustExec(t *testing.T, e *Executor, sql string) *Result {
	t.Helper()
	res, err := e.ExecSQL(sql)
	require.NoError(t, err, sql)
	require.True(t, res.Success, "%s: %s", sql, res.Message)
	return res
}

func mustFail(t *testing.T, e *Executor, sql string) *Result {
	t.Helper()
	res, err := e.ExecSQL(sql)
	require.NoError(t, err, sql)
	require.False(t, res.Success, sql)
	require.Error(t, res.Err)
	return res
}

func ids(res *Result) []any {
	out := make([]any, len(res.Data))
	for i, row := range res.Data {
		out[i] = row["id"]
	}
	return out
}

// ---- scenarios ----

func TestExec_InsertDuplicateAndSelect(t *testing.T) {
	e, db, _ := newTestExecutor(t)

	res := mustExec(t, e, "CREATE TABLE t (id INT PRIMARY KEY, name TEXT UNIQUE)")
	assert.Equal(t, "Table t created successfully", res.Message)

	res = mustExec(t, e, "INSERT INTO t (id, name) VALUES (1, 'Alice')")
	assert.Equal(t, "1 row inserted (ID: 0)", res.Message)
	require.NotNil(t, res.LastInsertID)
	assert.Equal(t, record.RowID(0), *res.LastInsertID)
	assert.Equal(t, 1, res.RowsAffected)

	res = mustFail(t, e, "INSERT INTO t (id, name) VALUES (1, 'Other')")
	assert.Contains(t, res.Message, "already exists")
	assert.ErrorIs(t, res.Err, heap.ErrDuplicateKey)

	tbl, ok := db.GetTable("t")
	require.True(t, ok)
	assert.Equal(t, 1, tbl.Len())
	other, _ := tbl.LookupUnique("name", "Other")
	assert.Empty(t, other)

	res = mustExec(t, e, "SELECT * FROM t WHERE id = 1")
	require.Len(t, res.Data, 1)
	assert.Equal(t, "Alice", res.Data[0]["name"])
	assert.Equal(t, []string{"id", "name"}, res.Columns)
	assert.Equal(t, "Query returned 1 row(s)", res.Message)
	assert.Equal(t, 1, res.Stats.RowsScanned)
	assert.Equal(t, 1, res.Stats.RowsReturned)
	assert.Nil(t, res.Stats.IndexUsed)
}

func TestExec_UpdateReleasesUniqueValue(t *testing.T) {
	e, db, _ := newTestExecutor(t)
	mustExec(t, e, "CREATE TABLE t (id INT PRIMARY KEY, name TEXT UNIQUE)")
	mustExec(t, e, "INSERT INTO t (id, name) VALUES (1, 'Alice')")

	res := mustExec(t, e, "UPDATE t SET name = 'Bob' WHERE id = 1")
	assert.Equal(t, "1 row(s) updated", res.Message)

	res = mustExec(t, e, "SELECT * FROM t WHERE id = 1")
	require.Len(t, res.Data, 1)
	assert.Equal(t, "Bob", res.Data[0]["name"])

	tbl, _ := db.GetTable("t")
	got, ok := tbl.LookupUnique("name", "Alice")
	require.True(t, ok)
	assert.Empty(t, got)

	// the released value is usable again
	mustExec(t, e, "INSERT INTO t (id, name) VALUES (2, 'Alice')")
}

func TestExec_DeleteShiftsPositionsButKeepsKeys(t *testing.T) {
	e, db, _ := newTestExecutor(t)
	mustExec(t, e, "CREATE TABLE t (id INT PRIMARY KEY, name TEXT UNIQUE)")
	mustExec(t, e, "INSERT INTO t (id, name) VALUES (1, 'a')")
	mustExec(t, e, "INSERT INTO t (id, name) VALUES (2, 'b')")
	mustExec(t, e, "INSERT INTO t (id, name) VALUES (3, 'c')")

	res := mustExec(t, e, "DELETE FROM t WHERE id = 2")
	assert.Equal(t, "1 row(s) deleted", res.Message)

	res = mustExec(t, e, "SELECT * FROM t")
	assert.Equal(t, []any{int64(1), int64(3)}, ids(res))

	tbl, _ := db.GetTable("t")
	row, ok := tbl.GetByPrimaryKey(int64(3))
	require.True(t, ok)
	assert.Equal(t, "c", row["name"])

	id, ok := tbl.RowIDByPrimaryKey(int64(3))
	require.True(t, ok)
	assert.Equal(t, 1, tbl.Position(id))

	_, ok = tbl.GetByPrimaryKey(int64(2))
	assert.False(t, ok)

	res = mustExec(t, e, "INSERT INTO t (id, name) VALUES (4, 'd')")
	assert.Equal(t, "1 row inserted (ID: 2)", res.Message)
}

func TestExec_DeleteByRangeLeavesOthersAddressable(t *testing.T) {
	e, db, _ := newTestExecutor(t)
	mustExec(t, e, "CREATE TABLE t (id INT PRIMARY KEY, v INT)")
	for i := 1; i <= 10; i++ {
		mustExec(t, e, "INSERT INTO t (id, v) VALUES ("+strconv.Itoa(i)+", "+strconv.Itoa(i%3)+")")
	}

	res := mustExec(t, e, "DELETE FROM t WHERE v = 0")
	assert.Equal(t, "3 row(s) deleted", res.Message)
	assert.Equal(t, 10, res.Stats.RowsScanned)

	tbl, _ := db.GetTable("t")
	assert.Equal(t, 7, tbl.Len())
	for i := 1; i <= 10; i++ {
		_, ok := tbl.GetByPrimaryKey(int64(i))
		assert.Equal(t, i%3 != 0, ok, "id %d", i)
	}
}

func TestExec_DeleteAllClearsIndexes(t *testing.T) {
	e, db, _ := newTestExecutor(t)
	mustExec(t, e, "CREATE TABLE t (id INT PRIMARY KEY, name TEXT UNIQUE)")
	mustExec(t, e, "INSERT INTO t (id, name) VALUES (1, 'a')")
	mustExec(t, e, "INSERT INTO t (id, name) VALUES (2, 'b')")

	res := mustExec(t, e, "DELETE FROM t")
	assert.Equal(t, "2 row(s) deleted", res.Message)

	tbl, _ := db.GetTable("t")
	assert.Equal(t, 0, tbl.Len())
	mustExec(t, e, "INSERT INTO t (id, name) VALUES (1, 'a')")
}

func TestExec_UpdateIsAllOrNothing(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	mustExec(t, e, "CREATE TABLE t (id INT PRIMARY KEY, name TEXT UNIQUE)")
	mustExec(t, e, "INSERT INTO t (id, name) VALUES (1, 'a')")
	mustExec(t, e, "INSERT INTO t (id, name) VALUES (2, 'b')")

	res := mustFail(t, e, "UPDATE t SET name = 'same'")
	assert.ErrorIs(t, res.Err, heap.ErrUniqueViolation)
	assert.Contains(t, res.Message, "unique constraint violated on name")

	res = mustFail(t, e, "UPDATE t SET name = 'b' WHERE id = 1")
	assert.ErrorIs(t, res.Err, heap.ErrUniqueViolation)

	res = mustExec(t, e, "SELECT name FROM t")
	assert.Equal(t, []map[string]any{{"name": "a"}, {"name": "b"}}, res.Data)

	res = mustExec(t, e, "UPDATE t SET name = 'z' WHERE id = 99")
	assert.Equal(t, "0 row(s) updated", res.Message)
}

func TestExec_UpdateValidatesAssignments(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	mustExec(t, e, "CREATE TABLE t (id INT PRIMARY KEY, name TEXT NOT NULL)")
	mustExec(t, e, "INSERT INTO t (id, name) VALUES (1, 'a')")

	res := mustFail(t, e, "UPDATE t SET age = 3")
	assert.ErrorIs(t, res.Err, record.ErrUnknownColumn)

	res = mustFail(t, e, "UPDATE t SET name = 5")
	assert.ErrorIs(t, res.Err, record.ErrTypeMismatch)

	res = mustFail(t, e, "UPDATE t SET name = NULL")
	assert.Contains(t, res.Message, "cannot be NULL")
}

func TestExec_InsertValidationMessages(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	mustExec(t, e, "CREATE TABLE t (id INT PRIMARY KEY, name TEXT NOT NULL UNIQUE, active BOOLEAN)")

	res := mustFail(t, e, "INSERT INTO t (id) VALUES (1)")
	assert.ErrorIs(t, res.Err, record.ErrMissingColumns)
	assert.Contains(t, res.Message, "missing required column(s): name (TEXT)")

	res = mustFail(t, e, "INSERT INTO t (id, name) VALUES ('x', 'y')")
	assert.ErrorIs(t, res.Err, record.ErrTypeMismatch)
	assert.Contains(t, res.Message, "column 'id'")

	res = mustFail(t, e, "INSERT INTO t (id, name, active) VALUES (1, 'y', 'yes')")
	assert.Contains(t, res.Message, "expected BOOLEAN, got TEXT")

	res = mustFail(t, e, "INSERT INTO t (id, name, nope) VALUES (1, 'y', 1)")
	assert.ErrorIs(t, res.Err, record.ErrUnknownColumn)

	mustExec(t, e, "INSERT INTO t (id, name, active) VALUES (1, 'y', true)")
	res = mustFail(t, e, "INSERT INTO t (id, name) VALUES (2, 'y')")
	assert.Contains(t, res.Message, "unique constraint violated on name")

	res = mustFail(t, e, "INSERT INTO t (id, id, name) VALUES (3, 4, 'q')")
	assert.Contains(t, res.Message, "listed twice")
}

func TestExec_MissingTable(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	for _, sql := range []string{
		"SELECT * FROM nope",
		"INSERT INTO nope (a) VALUES (1)",
		"UPDATE nope SET a = 1",
		"DELETE FROM nope",
		"DROP TABLE nope",
	} {
		res := mustFail(t, e, sql)
		assert.ErrorIs(t, res.Err, engine.ErrTableNotFound, sql)
		assert.Equal(t, "table not found: nope", res.Message, sql)
	}
}

func TestExec_WherePredicates(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	mustExec(t, e, "CREATE TABLE t (id INT PRIMARY KEY, name TEXT, active BOOLEAN)")
	mustExec(t, e, "INSERT INTO t (id, name, active) VALUES (1, 'a', true)")
	mustExec(t, e, "INSERT INTO t (id, name, active) VALUES (2, 'b', false)")
	mustExec(t, e, "INSERT INTO t (id, name) VALUES (3, 'c')")

	assert.Equal(t, []any{int64(2), int64(3)}, ids(mustExec(t, e, "SELECT id FROM t WHERE id > 1")))
	assert.Equal(t, []any{int64(1), int64(2)}, ids(mustExec(t, e, "SELECT id FROM t WHERE id <= 2.5")))
	assert.Equal(t, []any{int64(1), int64(3)}, ids(mustExec(t, e, "SELECT id FROM t WHERE name != 'b'")))
	assert.Equal(t, []any{int64(1)}, ids(mustExec(t, e, "SELECT id FROM t WHERE active = TRUE")))
	assert.Equal(t, []any{int64(3)}, ids(mustExec(t, e, "SELECT id FROM t WHERE active = NULL")))
	assert.Empty(t, mustExec(t, e, "SELECT id FROM t WHERE name = 1").Data)

	res := mustFail(t, e, "SELECT * FROM t WHERE name > 5")
	assert.ErrorIs(t, res.Err, record.ErrTypeMismatch)

	res = mustFail(t, e, "SELECT * FROM t WHERE age = 5")
	assert.ErrorIs(t, res.Err, record.ErrUnknownColumn)
}

func TestExec_KeywordsInsideQuotedValues(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	mustExec(t, e, "CREATE TABLE t (id INT PRIMARY KEY, name TEXT)")
	mustExec(t, e, "INSERT INTO t (id, name) VALUES (1, 'x JOIN y')")
	mustExec(t, e, "INSERT INTO t (id, name) VALUES (2, 'plain')")

	assert.Equal(t, []any{int64(1)}, ids(mustExec(t, e, "SELECT id FROM t WHERE name = 'x JOIN y'")))

	res := mustExec(t, e, "UPDATE t SET name = 'a WHERE b' WHERE id = 2")
	assert.Equal(t, 1, res.RowsAffected)
	res = mustExec(t, e, "SELECT name FROM t WHERE id = 2")
	assert.Equal(t, []map[string]any{{"name": "a WHERE b"}}, res.Data)
}

func TestExec_Projection(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	mustExec(t, e, "CREATE TABLE t (id INT PRIMARY KEY, name TEXT, active BOOLEAN)")
	mustExec(t, e, "INSERT INTO t (id, name) VALUES (1, 'a')")

	res := mustExec(t, e, "SELECT * FROM t")
	assert.Equal(t, []map[string]any{{"id": int64(1), "name": "a", "active": nil}}, res.Data)

	res = mustExec(t, e, "SELECT name, t.id FROM t")
	assert.Equal(t, []string{"name", "t.id"}, res.Columns)
	assert.Equal(t, []map[string]any{{"name": "a", "t.id": int64(1)}}, res.Data)

	res = mustFail(t, e, "SELECT nope FROM t")
	assert.ErrorIs(t, res.Err, record.ErrUnknownColumn)
}

func setupJoin(t *testing.T) *Executor {
	t.Helper()
	e, _, _ := newTestExecutor(t)
	mustExec(t, e, "CREATE TABLE users (id INT PRIMARY KEY, name TEXT)")
	mustExec(t, e, "CREATE TABLE pets (id INT PRIMARY KEY, owner_id INT, name TEXT)")
	mustExec(t, e, "INSERT INTO users (id, name) VALUES (1, 'ann')")
	mustExec(t, e, "INSERT INTO users (id, name) VALUES (2, 'ben')")
	mustExec(t, e, "INSERT INTO users (id, name) VALUES (3, 'cat')")
	mustExec(t, e, "INSERT INTO pets (id, owner_id, name) VALUES (10, 1, 'rex')")
	mustExec(t, e, "INSERT INTO pets (id, owner_id, name) VALUES (11, 1, 'tom')")
	mustExec(t, e, "INSERT INTO pets (id, owner_id, name) VALUES (12, 2, 'kit')")
	mustExec(t, e, "INSERT INTO pets (id, owner_id, name) VALUES (13, 99, 'lost')")
	return e
}

func TestExec_JoinMergesQualifiedKeys(t *testing.T) {
	e := setupJoin(t)

	res := mustExec(t, e, "SELECT * FROM users JOIN pets ON users.id = pets.owner_id")
	require.Len(t, res.Data, 3)
	assert.Equal(t, 7, res.Stats.RowsScanned)
	assert.Equal(t, 3, res.Stats.RowsReturned)
	assert.Equal(t, []string{"users.id", "users.name", "pets.id", "pets.owner_id", "pets.name"}, res.Columns)

	for _, row := range res.Data {
		require.Contains(t, row, "users.id")
		require.Contains(t, row, "pets.owner_id")
		assert.Equal(t, row["users.id"], row["pets.owner_id"])
	}
	assert.Equal(t, "rex", res.Data[0]["pets.name"])
	assert.Equal(t, "kit", res.Data[2]["pets.name"])
}

func TestExec_JoinReversedCondition(t *testing.T) {
	e := setupJoin(t)

	a := mustExec(t, e, "SELECT * FROM users JOIN pets ON users.id = pets.owner_id")
	b := mustExec(t, e, "SELECT * FROM users JOIN pets ON pets.owner_id = users.id")
	assert.Equal(t, a.Data, b.Data)

	res := mustFail(t, e, "SELECT * FROM users JOIN pets ON users.id = owners.id")
	assert.Contains(t, res.Message, "must reference users and pets")

	res = mustFail(t, e, "SELECT * FROM users JOIN pets ON users.id = pets.nope")
	assert.ErrorIs(t, res.Err, record.ErrUnknownColumn)

	res = mustFail(t, e, "SELECT * FROM users JOIN owners ON users.id = owners.id")
	assert.ErrorIs(t, res.Err, engine.ErrTableNotFound)
}

func TestExec_JoinUnqualifiedPrefersLeft(t *testing.T) {
	e := setupJoin(t)

	res := mustExec(t, e, "SELECT name, pets.name, owner_id FROM users JOIN pets ON users.id = pets.owner_id")
	require.Len(t, res.Data, 3)
	assert.Equal(t, map[string]any{"name": "ann", "pets.name": "rex", "owner_id": int64(1)}, res.Data[0])
}

func TestExec_JoinWithWhereFiltersLeft(t *testing.T) {
	e := setupJoin(t)

	res := mustExec(t, e, "SELECT pets.name FROM users WHERE name = 'ben' JOIN pets ON users.id = pets.owner_id")
	assert.Equal(t, []map[string]any{{"pets.name": "kit"}}, res.Data)

	res = mustExec(t, e, "SELECT pets.name FROM users JOIN pets ON users.id = pets.owner_id WHERE id >= 2")
	assert.Equal(t, []map[string]any{{"pets.name": "kit"}}, res.Data)
}

func TestExec_CreateDropExplain(t *testing.T) {
	e, db, _ := newTestExecutor(t)
	mustExec(t, e, "CREATE TABLE t (id INT)")

	res := mustFail(t, e, "CREATE TABLE t (id INT)")
	assert.ErrorIs(t, res.Err, engine.ErrTableExists)
	assert.Contains(t, res.Message, "table already exists")

	res = mustExec(t, e, "DROP TABLE t")
	assert.Equal(t, "Table t dropped successfully", res.Message)
	assert.Empty(t, db.ListTables())

	res = mustExec(t, e, "EXPLAIN SELECT * FROM t")
	assert.Equal(t, "EXPLAIN: Analysis of query 'SELECT * FROM t' would be shown here", res.Message)
}

func TestExec_ParseErrorIsReturned(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	res, err := e.ExecSQL("SELEKT * FROM t")
	require.Nil(t, res)
	var pe *parser.ParseError
	require.True(t, errors.As(err, &pe))
}

func TestExec_PersistAndReload(t *testing.T) {
	e, db, dir := newTestExecutor(t)
	mustExec(t, e, "CREATE TABLE t (id INT PRIMARY KEY, name TEXT UNIQUE, active BOOLEAN)")
	for i := 1; i <= 6; i++ {
		mustExec(t, e, "INSERT INTO t (id, name, active) VALUES ("+strconv.Itoa(i)+", 'n"+strconv.Itoa(i)+"', true)")
	}
	mustExec(t, e, "UPDATE t SET active = false WHERE id > 3")
	mustExec(t, e, "DELETE FROM t WHERE id = 2")
	mustExec(t, e, "UPDATE t SET name = 'renamed' WHERE id = 5")

	before := rowsOf(t, db, "t")

	db2, err := engine.Open(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, before, rowsOf(t, db2, "t"))

	tbl, _ := db2.GetTable("t")
	row, ok := tbl.GetByPrimaryKey(int64(5))
	require.True(t, ok)
	assert.Equal(t, "renamed", row["name"])
}

func rowsOf(t *testing.T, db *engine.Database, name string) []record.Row {
	t.Helper()
	tbl, ok := db.GetTable(name)
	require.True(t, ok)
	var out []record.Row
	for _, en := range tbl.Scan() {
		out = append(out, en.Row)
	}
	return out
}

// ---- seam tests ----

func TestExecute_SaveFailureIsReported(t *testing.T) {
	cat := newFakeCatalog()
	cat.saveErr = errors.New("disk full")
	e := NewExecutor(cat)

	mustExec(t, e, "CREATE TABLE t (id INT)")
	res := mustFail(t, e, "INSERT INTO t (id) VALUES (1)")
	assert.Equal(t, "insert rolled back: disk full", res.Message)
	assert.Equal(t, []string{"t"}, cat.saved)
}

func TestExecute_InsertRolledBackWhenSaveFails(t *testing.T) {
	cat := newFakeCatalog()
	e := NewExecutor(cat)
	mustExec(t, e, "CREATE TABLE t (id INT PRIMARY KEY, name TEXT)")

	cat.saveErr = errors.New("disk full")
	mustFail(t, e, "INSERT INTO t (id, name) VALUES (1, 'a')")
	assert.Equal(t, 0, cat.tables["t"].Len())

	// the primary key is free again, so a retry succeeds
	cat.saveErr = nil
	res := mustExec(t, e, "INSERT INTO t (id, name) VALUES (1, 'a')")
	assert.Equal(t, 1, res.RowsAffected)
	assert.Equal(t, 1, cat.tables["t"].Len())
}

func TestExecute_RecoversPanics(t *testing.T) {
	cat := newFakeCatalog()
	cat.panicOnGet = true
	e := NewExecutor(cat)

	res, err := e.ExecSQL("SELECT * FROM t")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "internal error: boom")
	assert.NotNil(t, res.Data)
}

func TestExecute_NilStatement(t *testing.T) {
	e := NewExecutor(newFakeCatalog())
	res := e.Execute(nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "unsupported statement")
	assert.ErrorIs(t, res.Err, ErrInvalidStatement)
}

func TestResult_JSONShape(t *testing.T) {
	e := NewExecutor(newFakeCatalog())
	mustExec(t, e, "CREATE TABLE t (id INT)")
	res := mustExec(t, e, "SELECT * FROM t")

	b, err := json.Marshal(res)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, true, m["success"])
	assert.Equal(t, []any{}, m["data"])
	stats, ok := m["stats"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, stats, "rows_scanned")
	assert.Contains(t, stats, "rows_returned")
	assert.Contains(t, stats, "execution_time_ms")
	assert.Contains(t, stats, "index_used")
	assert.Nil(t, stats["index_used"])

	var back Result
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, res.Message, back.Message)
	assert.Equal(t, res.Stats.RowsScanned, back.Stats.RowsScanned)
}
