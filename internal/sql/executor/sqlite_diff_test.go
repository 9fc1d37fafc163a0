package executor

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// The same statements run against SQLite must produce the same row sets.

var diffSetup = []string{
	"CREATE TABLE users (id INT PRIMARY KEY, name TEXT, age INT)",
	"CREATE TABLE orders (order_id INT PRIMARY KEY, user_id INT, total INT)",
	"INSERT INTO users (id, name, age) VALUES (1, 'ann', 31)",
	"INSERT INTO users (id, name, age) VALUES (2, 'bob', 25)",
	"INSERT INTO users (id, name, age) VALUES (3, 'cid', 40)",
	"INSERT INTO users (id, name, age) VALUES (4, 'dee', 19)",
	"INSERT INTO orders (order_id, user_id, total) VALUES (100, 1, 50)",
	"INSERT INTO orders (order_id, user_id, total) VALUES (101, 1, 75)",
	"INSERT INTO orders (order_id, user_id, total) VALUES (102, 3, 20)",
	"INSERT INTO orders (order_id, user_id, total) VALUES (103, 9, 10)",
}

type diffQuery struct {
	ours    string
	sqlite  string // empty means same as ours
	columns []string
}

var diffQueries = []diffQuery{
	{ours: "SELECT id, name FROM users", columns: []string{"id", "name"}},
	{ours: "SELECT id, name FROM users WHERE age > 30", columns: []string{"id", "name"}},
	{ours: "SELECT id FROM users WHERE name != 'bob'", columns: []string{"id"}},
	{ours: "SELECT id, age FROM users WHERE age <= 25", columns: []string{"id", "age"}},
	{ours: "SELECT name FROM users WHERE id = 3", columns: []string{"name"}},
	{ours: "SELECT name FROM users WHERE name < 'c'", columns: []string{"name"}},
	{
		ours:    "SELECT users.name, orders.total FROM users JOIN orders ON users.id = orders.user_id",
		columns: []string{"users.name", "orders.total"},
	},
	{
		ours:    "SELECT users.name, orders.total FROM users JOIN orders ON orders.user_id = users.id WHERE age >= 35",
		sqlite:  "SELECT users.name, orders.total FROM users JOIN orders ON orders.user_id = users.id WHERE users.age >= 35",
		columns: []string{"users.name", "orders.total"},
	},
}

var diffMutations = []string{
	"UPDATE users SET age = 26 WHERE name = 'bob'",
	"DELETE FROM users WHERE age < 20",
	"UPDATE orders SET total = 0 WHERE total >= 60",
	"DELETE FROM orders WHERE user_id = 9",
}

func TestExec_MatchesSQLite(t *testing.T) {
	e, _, _ := newTestExecutor(t)

	lite, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = lite.Close() })

	for _, stmt := range diffSetup {
		mustExec(t, e, stmt)
		_, err := lite.Exec(stmt)
		require.NoError(t, err, stmt)
	}

	compareAll := func(stage string) {
		for _, q := range diffQueries {
			liteSQL := q.sqlite
			if liteSQL == "" {
				liteSQL = q.ours
			}
			want := queryLite(t, lite, liteSQL)
			got := projectRows(mustExec(t, e, q.ours), q.columns)
			require.ElementsMatch(t, want, got, "%s: %s", stage, q.ours)
		}
	}

	compareAll("initial")

	for _, stmt := range diffMutations {
		mustExec(t, e, stmt)
		_, err := lite.Exec(stmt)
		require.NoError(t, err, stmt)
	}

	compareAll("after mutations")
}

func queryLite(t *testing.T, db *sql.DB, q string) [][]any {
	t.Helper()
	rows, err := db.Query(q)
	require.NoError(t, err, q)
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	require.NoError(t, err)

	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		require.NoError(t, rows.Scan(ptrs...))
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		out = append(out, vals)
	}
	require.NoError(t, rows.Err())
	return out
}

func projectRows(res *Result, cols []string) [][]any {
	var out [][]any
	for _, row := range res.Data {
		vals := make([]any, len(cols))
		for i, c := range cols {
			vals[i] = row[c]
		}
		out = append(out, vals)
	}
	return out
}
