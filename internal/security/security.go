// Package security holds input checks callers may run before handing text to the
// parser. Nothing in the engine calls it.
package security

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrSuspiciousInput   = errors.New("suspicious input")
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

const (
	MaxIdentifierLength  = 64
	DefaultMaxSQLLength  = 10000
	DefaultMaxTextLength = 255
)

// dangerousKeywords are checked in order against the uppercased value.
var dangerousKeywords = []string{
	"DROP", "DELETE", "INSERT", "UPDATE", "ALTER", "CREATE",
	"EXEC", "EXECUTE", "UNION", "SELECT", "SCRIPT", "JAVASCRIPT",
	"--", "/*", "*/", "@@", "DECLARE", "CAST",
}

var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)['"` + "`" + `;].*?(?:DROP|DELETE|INSERT|UPDATE|ALTER|CREATE)`),
	regexp.MustCompile(`(?i)(?:or|and)\s+(?:1|'[^']*'\s*)?[=<>!]`),
	regexp.MustCompile(`--\s*$`),
	regexp.MustCompile(`(?s)/\*.*?\*/`),
	regexp.MustCompile(`(?i);\s*(?:DROP|DELETE|INSERT|UPDATE)`),
	regexp.MustCompile(`(?i)\b(?:xp_|sp_)[a-z_]+`),
	regexp.MustCompile(`(?i)@@[a-z_]+`),
}

// IsDangerous reports whether a user-supplied value looks like an injection attempt,
// with a short reason. It is meant for values, not whole statements.
func IsDangerous(value string) (bool, string) {
	up := strings.ToUpper(value)

	for _, kw := range dangerousKeywords {
		if !strings.Contains(up, kw) {
			continue
		}
		// a bare mention of "script" is fine unless it comes with statement syntax
		if kw == "SCRIPT" && !strings.ContainsAny(value, ";") && !strings.Contains(value, "--") && !strings.Contains(value, "/*") {
			continue
		}
		slog.Warn("security: dangerous keyword", "keyword", kw, "value", truncate(value, 50))
		return true, fmt.Sprintf("Dangerous keyword '%s' detected", kw)
	}

	for _, re := range dangerousPatterns {
		if re.MatchString(value) {
			slog.Warn("security: dangerous pattern", "pattern", re.String(), "value", truncate(value, 50))
			return true, "Potentially malicious pattern detected"
		}
	}
	return false, ""
}

var nonIdentRe = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// IdentifierKind selects the sanitizer used by SanitizeIdentifier.
type IdentifierKind string

const (
	IdentTable  IdentifierKind = "table"
	IdentColumn IdentifierKind = "column"
)

// SanitizeTableName strips everything but ASCII letters, digits and '_' and caps the
// length at MaxIdentifierLength.
func SanitizeTableName(name string) (string, error) {
	return sanitizeName(name, "table name")
}

func SanitizeColumnName(name string) (string, error) {
	return sanitizeName(name, "column name")
}

func sanitizeName(name, what string) (string, error) {
	s := nonIdentRe.ReplaceAllString(name, "")
	if s == "" {
		return "", fmt.Errorf("%w: %s contains invalid characters", ErrInvalidIdentifier, what)
	}
	if len(s) > MaxIdentifierLength {
		s = s[:MaxIdentifierLength]
	}
	return s, nil
}

// SanitizeIdentifier dispatches on kind. Unknown kinds only strip characters.
func SanitizeIdentifier(id string, kind IdentifierKind) (string, error) {
	switch kind {
	case IdentTable:
		return SanitizeTableName(id)
	case IdentColumn:
		return SanitizeColumnName(id)
	default:
		return nonIdentRe.ReplaceAllString(id, ""), nil
	}
}

// StringLimits bounds ValidateString.
type StringLimits struct {
	MinLength  int
	MaxLength  int
	AllowEmpty bool
}

var DefaultStringLimits = StringLimits{MinLength: 1, MaxLength: DefaultMaxTextLength}

func ValidateString(value any, field string, lim StringLimits) error {
	if value == nil {
		if lim.AllowEmpty {
			return nil
		}
		return fmt.Errorf("%w: %s cannot be None", ErrInvalidInput, field)
	}
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("%w: %s must be a string", ErrInvalidInput, field)
	}
	if !lim.AllowEmpty && strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrInvalidInput, field)
	}
	if len(s) < lim.MinLength {
		return fmt.Errorf("%w: %s must be at least %d characters", ErrInvalidInput, field, lim.MinLength)
	}
	if lim.MaxLength > 0 && len(s) > lim.MaxLength {
		return fmt.Errorf("%w: %s must be at most %d characters", ErrInvalidInput, field, lim.MaxLength)
	}
	if bad, reason := IsDangerous(s); bad {
		return fmt.Errorf("%w: %s contains suspicious content: %s", ErrSuspiciousInput, field, reason)
	}
	return nil
}

// ValidateInteger converts value to int64. Floats are truncated.
func ValidateInteger(value any, field string) (int64, error) {
	return ValidateIntegerRange(value, field, math.MinInt64, math.MaxInt64)
}

func ValidateIntegerRange(value any, field string, minValue, maxValue int64) (int64, error) {
	if value == nil {
		return 0, fmt.Errorf("%w: %s cannot be None", ErrInvalidInput, field)
	}

	var (
		n  int64
		ok = true
	)
	switch x := value.(type) {
	case int64:
		n = x
	case int:
		n = int64(x)
	case int32:
		n = int64(x)
	case float64:
		n = int64(x)
	case bool:
		if x {
			n = 1
		}
	case json.Number:
		i, err := strconv.ParseInt(x.String(), 10, 64)
		n, ok = i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		n, ok = i, err == nil
	default:
		ok = false
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s must be a valid integer", ErrInvalidInput, field)
	}

	if n < minValue {
		return 0, fmt.Errorf("%w: %s must be at least %d", ErrInvalidInput, field, minValue)
	}
	if n > maxValue {
		return 0, fmt.Errorf("%w: %s must be at most %d", ErrInvalidInput, field, maxValue)
	}
	return n, nil
}

// ValidateBoolean accepts bools, 0/1 and the usual yes/no spellings.
func ValidateBoolean(value any, field string) (bool, error) {
	switch x := value.(type) {
	case nil:
		return false, fmt.Errorf("%w: %s cannot be None", ErrInvalidInput, field)
	case bool:
		return x, nil
	case string:
		switch strings.ToLower(x) {
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off":
			return false, nil
		}
	case int:
		if x == 0 || x == 1 {
			return x == 1, nil
		}
	case int64:
		if x == 0 || x == 1 {
			return x == 1, nil
		}
	case float64:
		if x == 0 || x == 1 {
			return x == 1, nil
		}
	}
	return false, fmt.Errorf("%w: %s must be a boolean value", ErrInvalidInput, field)
}

var suspiciousStatement = []struct {
	re     *regexp.Regexp
	reason string
}{
	{regexp.MustCompile(`;\s*drop\s+table`), "DROP TABLE command in statement"},
	{regexp.MustCompile(`;\s*delete\s+from`), "DELETE command in statement"},
	{regexp.MustCompile(`\bunion\b.*\bselect\b`), "UNION SELECT in statement (potential injection)"},
	{regexp.MustCompile(`'\s*or\s*'?1'?\s*=\s*'1`), "Classic OR 1=1 injection pattern"},
	{regexp.MustCompile(`exec\s*\(`), "EXEC() function call"},
	{regexp.MustCompile(`\bscript\b|javascript`), "Script code in SQL"},
}

// ValidateStatement screens a whole statement before parsing. maxLen <= 0 means
// DefaultMaxSQLLength.
func ValidateStatement(sql string, maxLen int) error {
	if maxLen <= 0 {
		maxLen = DefaultMaxSQLLength
	}
	if strings.TrimSpace(sql) == "" {
		return fmt.Errorf("%w: SQL statement cannot be empty", ErrInvalidInput)
	}
	if len(sql) > maxLen {
		return fmt.Errorf("%w: SQL statement exceeds maximum length of %d", ErrInvalidInput, maxLen)
	}

	lower := strings.ToLower(sql)
	for _, p := range suspiciousStatement {
		if p.re.MatchString(lower) {
			slog.Warn("security: suspicious statement", "reason", p.reason, "sql", truncate(sql, 50))
			return fmt.Errorf("%w: Suspicious SQL: %s", ErrSuspiciousInput, p.reason)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
