package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tuannm99/novarel/internal/record"
)

var (
	spaceRe  = regexp.MustCompile(`\s+`)
	identRe  = regexp.MustCompile(`^\w+$`)
	colRefRe = regexp.MustCompile(`^\w+(\.\w+)?$`)

	createTableRe = regexp.MustCompile(`(?i)^CREATE TABLE (\w+) ?\((.*)\)$`)
	insertRe      = regexp.MustCompile(`(?i)^INSERT INTO (\w+) ?\((.*?)\) ?VALUES ?\((.*)\)$`)
	selectRe      = regexp.MustCompile(`(?i)^SELECT (.*?) FROM (\w+)(?: (.*))?$`)
	updateRe      = regexp.MustCompile(`(?i)^UPDATE (\w+) SET (.+)$`)
	deleteRe      = regexp.MustCompile(`(?i)^DELETE FROM (\w+)(?: WHERE (.*))?$`)
	dropTableRe   = regexp.MustCompile(`(?i)^DROP TABLE (\w+)$`)
	explainRe     = regexp.MustCompile(`(?i)^EXPLAIN (.+)$`)

	// operators are listed two-character first so "<=" never parses as "<".
	whereExprRe  = regexp.MustCompile(`^(\w+) ?(!=|<=|>=|=|<|>) ?(.+)$`)
	selectJoinRe = regexp.MustCompile(`(?i)^JOIN (\w+) ON (\w+)\.(\w+) ?= ?(\w+)\.(\w+)$`)
)

// Parse parses a single SQL statement into an AST.
// Whitespace runs are collapsed and one trailing ';' is optional.
func Parse(sql string) (Statement, error) {
	s := spaceRe.ReplaceAllString(strings.TrimSpace(sql), " ")
	s = strings.TrimSpace(strings.TrimSuffix(s, ";"))
	if s == "" {
		return nil, &ParseError{Reason: "empty query", SQL: sql}
	}

	up := strings.ToUpper(s)

	switch {
	case strings.HasPrefix(up, "CREATE TABLE"):
		return parseCreateTable(s)
	case strings.HasPrefix(up, "INSERT"):
		return parseInsert(s)
	case strings.HasPrefix(up, "SELECT"):
		return parseSelect(s)
	case strings.HasPrefix(up, "UPDATE"):
		return parseUpdate(s)
	case strings.HasPrefix(up, "DELETE"):
		return parseDelete(s)
	case strings.HasPrefix(up, "DROP TABLE"):
		return parseDropTable(s)
	case strings.HasPrefix(up, "EXPLAIN"):
		return parseExplain(s)
	default:
		return nil, &ParseError{Reason: fmt.Sprintf("unknown command: %s", s), SQL: s}
	}
}

func errorf(sql, format string, args ...any) *ParseError {
	return &ParseError{Reason: fmt.Sprintf(format, args...), SQL: sql}
}

func parseCreateTable(sql string) (Statement, error) {
	m := createTableRe.FindStringSubmatch(sql)
	if m == nil {
		return nil, errorf(sql, "invalid CREATE TABLE syntax")
	}

	defs := splitComma(m[2])
	if len(defs) == 0 {
		return nil, errorf(sql, "invalid CREATE TABLE syntax: empty column list")
	}

	cols := make([]record.Column, 0, len(defs))
	for _, def := range defs {
		col, err := parseColumnDef(def)
		if err != nil {
			return nil, errorf(sql, "%v", err)
		}
		cols = append(cols, col)
	}

	stmt := &CreateTableStmt{TableName: m[1], Columns: cols}
	if err := stmt.Schema().Validate(); err != nil {
		return nil, errorf(sql, "%v", err)
	}
	return stmt, nil
}

// parseColumnDef reads "<name> <TYPE> [PRIMARY KEY] [UNIQUE] [NOT NULL]".
// Constraints may appear in any order; anything else is rejected.
func parseColumnDef(def string) (record.Column, error) {
	toks := strings.Fields(def)
	if len(toks) < 2 {
		return record.Column{}, fmt.Errorf("invalid column definition: %s", def)
	}
	if !identRe.MatchString(toks[0]) {
		return record.Column{}, fmt.Errorf("invalid column name: %s", toks[0])
	}
	dt, err := record.ParseDataType(toks[1])
	if err != nil {
		return record.Column{}, err
	}

	col := record.Column{Name: toks[0], Type: dt, Nullable: true}
	for i := 2; i < len(toks); i++ {
		tok := strings.ToUpper(toks[i])
		next := ""
		if i+1 < len(toks) {
			next = strings.ToUpper(toks[i+1])
		}

		switch {
		case tok == "PRIMARY" && next == "KEY":
			col.PrimaryKey = true
			i++
		case tok == "NOT" && next == "NULL":
			col.Nullable = false
			i++
		case tok == "UNIQUE":
			col.Unique = true
		case tok == "NULL":
			col.Nullable = true
		default:
			return record.Column{}, fmt.Errorf("invalid column definition: %s: unexpected %q", def, toks[i])
		}
	}
	return col, nil
}

func parseInsert(sql string) (Statement, error) {
	m := insertRe.FindStringSubmatch(sql)
	if m == nil {
		return nil, errorf(sql, "invalid INSERT syntax")
	}

	cols := splitComma(m[2])
	if len(cols) == 0 {
		return nil, errorf(sql, "invalid INSERT syntax: empty column list")
	}
	for _, c := range cols {
		if !identRe.MatchString(c) {
			return nil, errorf(sql, "invalid column name: %s", c)
		}
	}

	rawVals := splitComma(m[3])
	if len(cols) != len(rawVals) {
		return nil, errorf(sql, "column and value count mismatch")
	}
	vals := make([]any, len(rawVals))
	for i, rv := range rawVals {
		vals[i] = parseLiteral(rv)
	}

	return &InsertStmt{TableName: m[1], Columns: cols, Values: vals}, nil
}

func parseSelect(sql string) (Statement, error) {
	m := selectRe.FindStringSubmatch(sql)
	if m == nil {
		return nil, errorf(sql, "invalid SELECT syntax")
	}

	stmt := &SelectStmt{TableName: m[2]}
	if proj := strings.TrimSpace(m[1]); proj != "*" {
		stmt.Columns = splitComma(proj)
		if len(stmt.Columns) == 0 {
			return nil, errorf(sql, "invalid SELECT syntax: empty column list")
		}
		for _, c := range stmt.Columns {
			if !colRefRe.MatchString(c) {
				return nil, errorf(sql, "invalid column name: %s", c)
			}
		}
	}

	rest := m[3]
	if rest == "" {
		return stmt, nil
	}

	wi := indexKeyword(rest, "WHERE")
	ji := indexKeyword(rest, "JOIN")
	first := len(rest)
	if wi >= 0 {
		first = wi
	}
	if ji >= 0 && ji < first {
		first = ji
	}
	if head := strings.TrimSpace(rest[:first]); head != "" {
		return nil, errorf(sql, "unexpected text after table name: %s", head)
	}

	var whereText, joinText string
	switch {
	case wi < 0:
		joinText = rest[ji:]
	case ji < 0:
		whereText = rest[wi+len("WHERE"):]
	case ji < wi:
		joinText, whereText = rest[ji:wi], rest[wi+len("WHERE"):]
	default:
		// a later JOIN ends the predicate only when it is a complete join clause.
		whereText = rest[wi+len("WHERE"):]
		if selectJoinRe.MatchString(strings.TrimSpace(rest[ji:])) {
			whereText, joinText = rest[wi+len("WHERE"):ji], rest[ji:]
		}
	}

	if wi >= 0 {
		clause := strings.TrimSpace(whereText)
		if clause == "" {
			return nil, errorf(sql, "invalid WHERE clause: missing predicate")
		}
		w, err := parseWhere(sql, clause)
		if err != nil {
			return nil, err
		}
		stmt.Where = w
	}

	if joinText = strings.TrimSpace(joinText); joinText != "" {
		jm := selectJoinRe.FindStringSubmatch(joinText)
		if jm == nil {
			return nil, errorf(sql, "invalid JOIN clause: %s", joinText)
		}
		stmt.Join = &Join{
			Table:       jm[1],
			LeftTable:   jm[2],
			LeftColumn:  jm[3],
			RightTable:  jm[4],
			RightColumn: jm[5],
		}
	}
	return stmt, nil
}

func parseUpdate(sql string) (Statement, error) {
	m := updateRe.FindStringSubmatch(sql)
	if m == nil {
		return nil, errorf(sql, "invalid UPDATE syntax")
	}

	setText, whereText := m[2], ""
	if wi := indexKeyword(setText, "WHERE"); wi >= 0 {
		setText, whereText = setText[:wi], strings.TrimSpace(setText[wi+len("WHERE"):])
		if whereText == "" {
			return nil, errorf(sql, "invalid WHERE clause: missing predicate")
		}
	}

	assignStrs := splitComma(setText)
	if len(assignStrs) == 0 {
		return nil, errorf(sql, "invalid SET clause: no assignments")
	}
	assigns := make([]Assignment, 0, len(assignStrs))
	for _, a := range assignStrs {
		kv := strings.SplitN(a, "=", 2)
		if len(kv) != 2 {
			return nil, errorf(sql, "invalid SET clause: %s", a)
		}
		col := strings.TrimSpace(kv[0])
		val := strings.TrimSpace(kv[1])
		if !identRe.MatchString(col) || val == "" {
			return nil, errorf(sql, "invalid SET clause: %s", a)
		}
		assigns = append(assigns, Assignment{Column: col, Value: parseLiteral(val)})
	}

	w, err := parseWhere(sql, whereText)
	if err != nil {
		return nil, err
	}
	return &UpdateStmt{TableName: m[1], Assignments: assigns, Where: w}, nil
}

func parseDelete(sql string) (Statement, error) {
	m := deleteRe.FindStringSubmatch(sql)
	if m == nil {
		return nil, errorf(sql, "invalid DELETE syntax")
	}

	w, err := parseWhere(sql, m[2])
	if err != nil {
		return nil, err
	}
	return &DeleteStmt{TableName: m[1], Where: w}, nil
}

func parseDropTable(sql string) (Statement, error) {
	m := dropTableRe.FindStringSubmatch(sql)
	if m == nil {
		return nil, errorf(sql, "invalid DROP TABLE syntax")
	}
	return &DropTableStmt{TableName: m[1]}, nil
}

func parseExplain(sql string) (Statement, error) {
	m := explainRe.FindStringSubmatch(sql)
	if m == nil {
		return nil, errorf(sql, "invalid EXPLAIN syntax")
	}
	return &ExplainStmt{Query: m[1]}, nil
}

// parseWhere parses the text after WHERE. An empty clause means no predicate.
func parseWhere(sql, clause string) (*Where, error) {
	if clause == "" {
		return nil, nil
	}
	m := whereExprRe.FindStringSubmatch(strings.TrimSpace(clause))
	if m == nil {
		return nil, errorf(sql, "invalid WHERE clause: %s", clause)
	}
	op, err := record.ParseOperator(m[2])
	if err != nil {
		return nil, errorf(sql, "%v", err)
	}
	return &Where{Column: m[1], Op: op, Value: parseLiteral(m[3])}, nil
}

// parseLiteral never fails: unrecognized text is kept as a string.
func parseLiteral(rv string) any {
	rv = strings.TrimSpace(rv)

	if len(rv) >= 2 && (rv[0] == '\'' || rv[0] == '"') && rv[len(rv)-1] == rv[0] {
		return rv[1 : len(rv)-1]
	}

	switch strings.ToUpper(rv) {
	case "TRUE":
		return true
	case "FALSE":
		return false
	case "NULL":
		return nil
	}

	if strings.Contains(rv, ".") {
		if f, err := strconv.ParseFloat(rv, 64); err == nil {
			return f
		}
		return rv
	}
	if i, err := strconv.ParseInt(rv, 10, 64); err == nil {
		return i
	}
	return rv
}

// indexKeyword returns the offset of the first whole-word, case-insensitive
// occurrence of kw outside quoted literals, or -1.
func indexKeyword(s, kw string) int {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case (i == 0 || s[i-1] == ' ') &&
			i+len(kw) <= len(s) &&
			strings.EqualFold(s[i:i+len(kw)], kw) &&
			(i+len(kw) == len(s) || s[i+len(kw)] == ' '):
			return i
		}
	}
	return -1
}

// splitComma splits a comma-separated list, ignoring commas inside single or double quotes.
// Parts are trimmed and empty parts dropped.
func splitComma(s string) []string {
	return splitOutsideQuotes(s, ',')
}

// SplitStatements splits a script on semicolons that are not inside a quoted
// literal. Empty statements are dropped.
func SplitStatements(script string) []string {
	return splitOutsideQuotes(script, ';')
}

// StatementComplete reports whether s contains a ';' outside quotes.
func StatementComplete(s string) bool {
	var quote rune
	for _, r := range s {
		switch {
		case (r == '\'' || r == '"') && (quote == 0 || quote == r):
			if quote == 0 {
				quote = r
			} else {
				quote = 0
			}
		case r == ';' && quote == 0:
			return true
		}
	}
	return false
}

func splitOutsideQuotes(s string, sep rune) []string {
	parts := []string{}
	cur := strings.Builder{}
	var quote rune
	flush := func() {
		if p := strings.TrimSpace(cur.String()); p != "" {
			parts = append(parts, p)
		}
		cur.Reset()
	}

	for _, r := range s {
		switch {
		case (r == '\'' || r == '"') && (quote == 0 || quote == r):
			if quote == 0 {
				quote = r
			} else {
				quote = 0
			}
			cur.WriteRune(r)
		case r == sep && quote == 0:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return parts
}
