package console

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novarel"
	"github.com/tuannm99/novarel/internal/sql/executor"
)

func newConsole(t *testing.T) (*Console, *bytes.Buffer) {
	t.Helper()
	db, err := novarel.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var out bytes.Buffer
	return New(db, &out, nil), &out
}

func feedAll(c *Console, lines ...string) bool {
	for _, l := range lines {
		if !c.Feed(l) {
			return false
		}
	}
	return true
}

func TestConsole_ExecutesCompleteStatements(t *testing.T) {
	c, out := newConsole(t)

	require.True(t, feedAll(c,
		"CREATE TABLE users (id INT PRIMARY KEY, name TEXT);",
		"INSERT INTO users (id, name) VALUES (1, 'alice');",
		"SELECT * FROM users;",
	))

	s := out.String()
	assert.Contains(t, s, "OK: Table users created successfully")
	assert.Contains(t, s, "OK: 1 row inserted (ID: 0)")
	assert.Contains(t, s, "id | name")
	assert.Contains(t, s, "1  | alice")
	assert.Contains(t, s, "(1 rows)")
	assert.Contains(t, s, "Rows scanned:  1")
}

func TestConsole_MultiLine(t *testing.T) {
	c, out := newConsole(t)

	c.Feed("CREATE TABLE t")
	assert.Equal(t, contPrompt, c.Prompt())
	assert.Empty(t, out.String())

	c.Feed("(id INT);")
	assert.Equal(t, prompt, c.Prompt())
	assert.Contains(t, out.String(), "Table t created successfully")
}

func TestConsole_SeveralStatementsOnOneLine(t *testing.T) {
	c, out := newConsole(t)
	c.Feed("CREATE TABLE t (id INT); INSERT INTO t (id) VALUES (7); SELECT * FROM t;")

	s := out.String()
	assert.Contains(t, s, "created successfully")
	assert.Contains(t, s, "1 row inserted")
	assert.Contains(t, s, "Query returned 1 row(s)")
}

func TestConsole_Errors(t *testing.T) {
	c, out := newConsole(t)

	c.Feed("SELEKT 1;")
	assert.Contains(t, out.String(), "PARSE ERROR: unknown command")

	out.Reset()
	c.Feed("SELECT * FROM ghosts;")
	assert.Contains(t, out.String(), "ERROR: table not found: ghosts")
}

func TestConsole_MetaCommands(t *testing.T) {
	c, out := newConsole(t)

	c.Feed("TABLES")
	assert.Contains(t, out.String(), "No tables found.")

	c.Feed("CREATE TABLE b (id INT PRIMARY KEY NOT NULL, tag TEXT UNIQUE);")
	c.Feed("CREATE TABLE a (x BOOLEAN);")

	out.Reset()
	c.Feed("tables;")
	assert.Contains(t, out.String(), "Tables (2):\n  a\n  b\n")

	out.Reset()
	c.Feed("SCHEMA b")
	assert.Contains(t, out.String(), "id: INT (PRIMARY KEY, NOT NULL)")
	assert.Contains(t, out.String(), "tag: TEXT (UNIQUE)")

	out.Reset()
	c.Feed("SCHEMA nope")
	assert.Contains(t, out.String(), "table not found")

	out.Reset()
	c.Feed(`\bogus`)
	assert.Contains(t, out.String(), `unknown command: \bogus`)

	out.Reset()
	c.Feed("help")
	assert.Contains(t, out.String(), "Console commands:")

	assert.False(t, c.Feed("exit"))
}

func TestConsole_Export(t *testing.T) {
	c, out := newConsole(t)
	dir := t.TempDir()

	c.Feed("CREATE TABLE t (id INT, name TEXT);")
	c.Feed("INSERT INTO t (id, name) VALUES (1, 'x');")

	out.Reset()
	c.Feed("EXPORT t " + dir)
	require.Contains(t, out.String(), "OK: exported t to")

	b, err := os.ReadFile(filepath.Join(dir, "t.csv"))
	require.NoError(t, err)
	assert.Equal(t, "id,name\n1,x\n", string(b))
}

type execOnly struct{}

func (execOnly) Exec(string) (*executor.Result, error) {
	return &executor.Result{Success: true, Message: "ok"}, nil
}

func TestConsole_RemoteModeHasNoCatalog(t *testing.T) {
	var out bytes.Buffer
	c := New(execOnly{}, &out, nil)

	c.Feed("TABLES")
	assert.Contains(t, out.String(), "only available in embedded mode")
}

func TestConsole_History(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hist")
	db, err := novarel.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var out bytes.Buffer
	c := New(db, &out, NewHistory(path))
	c.Feed("CREATE TABLE t")
	c.Feed("  (id INT);")

	out.Reset()
	c.Feed(`\history`)
	assert.Contains(t, out.String(), "    1  CREATE TABLE t (id INT);")

	h := NewHistory(path)
	require.NoError(t, h.Load(0))
	assert.Equal(t, []string{"CREATE TABLE t (id INT);"}, h.Lines())
}

func TestHistory_LoadKeepsNewest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hist")
	require.NoError(t, os.WriteFile(path, []byte("a;\n\nb;\nc;\n"), 0o644))

	h := NewHistory(path)
	require.NoError(t, h.Load(2))
	assert.Equal(t, []string{"b;", "c;"}, h.Lines())

	require.NoError(t, NewHistory(filepath.Join(t.TempDir(), "missing")).Load(0))
}

func TestPrintResult_ClipsAndNulls(t *testing.T) {
	var out bytes.Buffer
	PrintResult(&out, &executor.Result{
		Success: true,
		Message: "Query returned 1 row(s)",
		Data:    []map[string]any{{"a": nil, "b": strings.Repeat("x", 40)}},
	})

	s := out.String()
	assert.Contains(t, s, "NULL")
	assert.Contains(t, s, strings.Repeat("x", 27)+"...")
	assert.NotContains(t, s, "Execution Plan")
}

func TestPrintResult_Failure(t *testing.T) {
	var out bytes.Buffer
	PrintResult(&out, &executor.Result{Success: false, Message: "boom"})
	assert.Equal(t, "ERROR: boom\n", out.String())
}
