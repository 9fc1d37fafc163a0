package console

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/tuannm99/novarel/internal/record"
	"github.com/tuannm99/novarel/internal/sql/executor"
)

const maxCellWidth = 30

// PrintResult renders one statement result: the status line, a table of rows
// and, when a scan happened, the execution plan stats.
func PrintResult(w io.Writer, res *executor.Result) {
	if !res.Success {
		fmt.Fprintf(w, "ERROR: %s\n", res.Message)
		return
	}
	fmt.Fprintf(w, "OK: %s\n", res.Message)

	if len(res.Data) > 0 {
		printRows(w, resultColumns(res), res.Data)
	}
	if res.Stats.RowsScanned > 0 || res.Stats.IndexUsed != nil {
		printStats(w, res.Stats)
	}
}

// resultColumns falls back to the sorted keys of the first row when the
// result carries no column list.
func resultColumns(res *executor.Result) []string {
	if len(res.Columns) > 0 {
		return res.Columns
	}
	cols := make([]string, 0, len(res.Data[0]))
	for k := range res.Data[0] {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func printRows(w io.Writer, cols []string, rows []map[string]any) {
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = len(c)
	}
	cells := make([][]string, len(rows))
	for r, row := range rows {
		cells[r] = make([]string, len(cols))
		for i, c := range cols {
			s := formatCell(row[c])
			cells[r][i] = s
			widths[i] = max(widths[i], len(s))
		}
	}
	for i := range widths {
		widths[i] = min(widths[i], maxCellWidth)
	}

	printRow := func(values []string) {
		for i, v := range values {
			if i > 0 {
				fmt.Fprint(w, " | ")
			}
			fmt.Fprint(w, padRight(clip(v, widths[i]), widths[i]))
		}
		fmt.Fprintln(w)
	}

	printRow(cols)
	for i := range cols {
		if i > 0 {
			fmt.Fprint(w, "-+-")
		}
		fmt.Fprint(w, strings.Repeat("-", widths[i]))
	}
	fmt.Fprintln(w)
	for _, row := range cells {
		printRow(row)
	}
	fmt.Fprintf(w, "(%d rows)\n", len(rows))
}

func printStats(w io.Writer, st executor.Stats) {
	fmt.Fprintln(w, "Execution Plan:")
	fmt.Fprintf(w, "  Rows scanned:  %d\n", st.RowsScanned)
	fmt.Fprintf(w, "  Rows returned: %d\n", st.RowsReturned)
	if st.IndexUsed != nil {
		fmt.Fprintf(w, "  Index used:    %s\n", *st.IndexUsed)
	}
	fmt.Fprintf(w, "  Time:          %.2fms\n", float64(st.ExecutionTime)/float64(time.Millisecond))
}

// PrintSchema lists the columns of a table with their constraints.
func PrintSchema(w io.Writer, schema record.Schema) {
	fmt.Fprintf(w, "Schema for table '%s':\n", schema.TableName)
	for _, c := range schema.Columns {
		var attrs []string
		if c.PrimaryKey {
			attrs = append(attrs, "PRIMARY KEY")
		}
		if c.Unique {
			attrs = append(attrs, "UNIQUE")
		}
		if !c.Nullable {
			attrs = append(attrs, "NOT NULL")
		}
		if len(attrs) > 0 {
			fmt.Fprintf(w, "  %s: %s (%s)\n", c.Name, c.Type, strings.Join(attrs, ", "))
		} else {
			fmt.Fprintf(w, "  %s: %s\n", c.Name, c.Type)
		}
	}
}

func formatCell(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprint(v)
}

func clip(s string, w int) string {
	if len(s) <= w {
		return s
	}
	if w <= 3 {
		return s[:w]
	}
	return s[:w-3] + "..."
}

func padRight(s string, w int) string {
	if len(s) >= w {
		return s
	}
	return s + strings.Repeat(" ", w-len(s))
}
