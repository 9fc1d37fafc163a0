// Package console implements the interactive novarel shell.
package console

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/tuannm99/novarel/internal/export"
	"github.com/tuannm99/novarel/internal/record"
	"github.com/tuannm99/novarel/internal/sql/executor"
	"github.com/tuannm99/novarel/internal/sql/parser"
)

const (
	prompt     = "novarel> "
	contPrompt = "   ...> "
)

// Backend executes one statement. *novarel.DB and *sqlclient.Client both satisfy it.
type Backend interface {
	Exec(sql string) (*executor.Result, error)
}

// Catalog is the extra surface needed by the TABLES, SCHEMA and EXPORT commands.
// Only the embedded backend provides it.
type Catalog interface {
	ListTables() []string
	Schema(table string) (record.Schema, error)
	ExportTable(table, dir string, opts export.DumpOptions) (string, error)
}

type Console struct {
	backend Backend
	out     io.Writer
	history *History

	// ExportOptions is the format used by EXPORT.
	ExportOptions export.DumpOptions

	buf strings.Builder
}

func New(backend Backend, out io.Writer, history *History) *Console {
	if history == nil {
		history = NewHistory("")
	}
	return &Console{
		backend:       backend,
		out:           out,
		history:       history,
		ExportOptions: export.NewDumpOptions(),
	}
}

// Prompt is the primary prompt, or the continuation prompt while a statement is pending.
func (c *Console) Prompt() string {
	if c.buf.Len() > 0 {
		return contPrompt
	}
	return prompt
}

// Reset drops any partially entered statement.
func (c *Console) Reset() { c.buf.Reset() }

// Feed handles one line of input. SQL accumulates until a ';' outside quotes;
// meta commands are only recognized at the start of a statement. It returns
// false once the user asked to exit.
func (c *Console) Feed(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}

	if c.buf.Len() == 0 {
		if handled, keepGoing := c.meta(line); handled {
			return keepGoing
		}
	}

	if c.buf.Len() > 0 {
		c.buf.WriteByte('\n')
	}
	c.buf.WriteString(line)

	if !parser.StatementComplete(c.buf.String()) {
		return true
	}

	script := c.buf.String()
	c.buf.Reset()
	_ = c.history.Append(script)

	for _, stmt := range parser.SplitStatements(script) {
		c.exec(stmt)
	}
	return true
}

func (c *Console) exec(sql string) {
	res, err := c.backend.Exec(sql)
	if err != nil {
		var pe *parser.ParseError
		if errors.As(err, &pe) {
			fmt.Fprintf(c.out, "PARSE ERROR: %s\n", pe.Reason)
			return
		}
		fmt.Fprintf(c.out, "ERROR: %v\n", err)
		return
	}
	PrintResult(c.out, res)
}

// meta runs a console command. handled is false when line is SQL.
func (c *Console) meta(line string) (handled, keepGoing bool) {
	fields := strings.Fields(strings.TrimSuffix(line, ";"))
	if len(fields) == 0 {
		return false, true
	}

	switch strings.ToUpper(fields[0]) {
	case "EXIT", "QUIT", `\Q`:
		fmt.Fprintln(c.out, "Goodbye!")
		return true, false
	case "HELP", `\HELP`, `\?`:
		fmt.Fprint(c.out, helpText)
	case "CLEAR":
		fmt.Fprint(c.out, "\033[H\033[2J")
	case `\HISTORY`:
		c.history.Print(c.out, 50)
	case "TABLES":
		if len(fields) != 1 {
			return false, true
		}
		c.listTables()
	case "SCHEMA":
		if len(fields) != 2 {
			fmt.Fprintln(c.out, "usage: SCHEMA <table>")
			break
		}
		c.showSchema(fields[1])
	case "EXPORT":
		if len(fields) < 2 || len(fields) > 3 {
			fmt.Fprintln(c.out, "usage: EXPORT <table> [dir]")
			break
		}
		dir := "."
		if len(fields) == 3 {
			dir = fields[2]
		}
		c.exportTable(fields[1], dir)
	default:
		if strings.HasPrefix(fields[0], `\`) {
			fmt.Fprintf(c.out, "unknown command: %s\n", fields[0])
			break
		}
		return false, true
	}
	return true, true
}

func (c *Console) catalog() (Catalog, bool) {
	cat, ok := c.backend.(Catalog)
	if !ok {
		fmt.Fprintln(c.out, "ERROR: command is only available in embedded mode")
	}
	return cat, ok
}

func (c *Console) listTables() {
	cat, ok := c.catalog()
	if !ok {
		return
	}
	tables := cat.ListTables()
	if len(tables) == 0 {
		fmt.Fprintln(c.out, "No tables found.")
		return
	}
	fmt.Fprintf(c.out, "Tables (%d):\n", len(tables))
	for _, name := range tables {
		fmt.Fprintf(c.out, "  %s\n", name)
	}
}

func (c *Console) showSchema(table string) {
	cat, ok := c.catalog()
	if !ok {
		return
	}
	schema, err := cat.Schema(table)
	if err != nil {
		fmt.Fprintf(c.out, "ERROR: %v\n", err)
		return
	}
	PrintSchema(c.out, schema)
}

func (c *Console) exportTable(table, dir string) {
	cat, ok := c.catalog()
	if !ok {
		return
	}
	path, err := cat.ExportTable(table, dir, c.ExportOptions)
	if err != nil {
		fmt.Fprintf(c.out, "ERROR: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "OK: exported %s to %s\n", table, path)
}

// Run drives the console from a readline instance until EOF or EXIT.
func (c *Console) Run(rl *readline.Instance) error {
	for _, line := range c.history.Lines() {
		_ = rl.SaveHistory(line)
	}

	for {
		rl.SetPrompt(c.Prompt())
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			// Ctrl+C clears the pending statement
			if c.buf.Len() > 0 {
				c.Reset()
			} else {
				fmt.Fprintln(c.out, "^C")
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(c.out)
			return nil
		}
		if err != nil {
			return err
		}

		if !c.Feed(line) {
			return nil
		}
	}
}

const helpText = `SQL commands (end with ';', multi-line input is supported):
  CREATE TABLE name (col TYPE [PRIMARY KEY] [UNIQUE] [NOT NULL], ...)
  INSERT INTO name (col1, col2) VALUES (val1, val2)
  SELECT * | cols FROM name [WHERE col op value] [JOIN other ON a.x = b.y]
  UPDATE name SET col = val [, ...] [WHERE col op value]
  DELETE FROM name [WHERE col op value]
  DROP TABLE name
  EXPLAIN <statement>

Console commands:
  TABLES                 list all tables
  SCHEMA <table>         show table schema
  EXPORT <table> [dir]   write the table to a file
  \history               print history
  CLEAR                  clear screen
  HELP                   show this help
  EXIT | QUIT | \q       quit

Types: INT, TEXT, BOOLEAN. Operators: = != < > <= >=
`
