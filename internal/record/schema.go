package record

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// DataType is the declared type of a column. It is stored by name in table documents.
type DataType string

const (
	TypeInt     DataType = "INT"
	TypeText    DataType = "TEXT"
	TypeBoolean DataType = "BOOLEAN"
)

// ParseDataType maps a type name (case-insensitive) to a DataType.
func ParseDataType(s string) (DataType, error) {
	switch DataType(strings.ToUpper(strings.TrimSpace(s))) {
	case TypeInt:
		return TypeInt, nil
	case TypeText:
		return TypeText, nil
	case TypeBoolean:
		return TypeBoolean, nil
	default:
		return "", fmt.Errorf("unknown data type: %s", s)
	}
}

func (t *DataType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	dt, err := ParseDataType(s)
	if err != nil {
		return err
	}
	*t = dt
	return nil
}

type Column struct {
	Name       string   `json:"name"`
	Type       DataType `json:"data_type"`
	PrimaryKey bool     `json:"primary_key"`
	Unique     bool     `json:"unique"`
	Nullable   bool     `json:"nullable"`
}

// UnmarshalJSON treats a missing "nullable" key as nullable, matching a column declared without NOT NULL.
func (c *Column) UnmarshalJSON(b []byte) error {
	type plain Column
	var col plain
	if err := json.Unmarshal(b, &col); err != nil {
		return err
	}
	var flag struct {
		Nullable *bool `json:"nullable"`
	}
	if err := json.Unmarshal(b, &flag); err != nil {
		return err
	}
	*c = Column(col)
	if flag.Nullable == nil {
		c.Nullable = true
	}
	return nil
}

// Validate checks v against the column without any coercion.
func (c Column) Validate(v any) error {
	if v == nil {
		if c.Nullable {
			return nil
		}
		return fmt.Errorf("%w: column '%s' cannot be NULL", ErrTypeMismatch, c.Name)
	}

	ok := false
	switch c.Type {
	case TypeInt:
		_, ok = v.(int64)
	case TypeText:
		_, ok = v.(string)
	case TypeBoolean:
		_, ok = v.(bool)
	}
	if !ok {
		return fmt.Errorf("%w: invalid type for column '%s': expected %s, got %s",
			ErrTypeMismatch, c.Name, c.Type, TypeName(v))
	}
	return nil
}

// Cast converts loosely typed input (JSON bodies, json.Number) into the column's Go representation.
func (c Column) Cast(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch c.Type {
	case TypeInt:
		switch x := v.(type) {
		case int64:
			return x, nil
		case int:
			return int64(x), nil
		case int32:
			return int64(x), nil
		case float64:
			if x != math.Trunc(x) {
				return nil, fmt.Errorf("%w: column '%s' expects INT, got %v", ErrTypeMismatch, c.Name, x)
			}
			return int64(x), nil
		case json.Number:
			if i, err := x.Int64(); err == nil {
				return i, nil
			}
			f, err := x.Float64()
			if err != nil || f != math.Trunc(f) {
				return nil, fmt.Errorf("%w: column '%s' expects INT, got %s", ErrTypeMismatch, c.Name, x)
			}
			return int64(f), nil
		case string:
			i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: column '%s' expects INT, got %q", ErrTypeMismatch, c.Name, x)
			}
			return i, nil
		case bool:
			if x {
				return int64(1), nil
			}
			return int64(0), nil
		}
	case TypeText:
		switch x := v.(type) {
		case string:
			return x, nil
		case json.Number:
			return x.String(), nil
		default:
			return fmt.Sprint(x), nil
		}
	case TypeBoolean:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(x)) {
			case "true", "1", "yes":
				return true, nil
			default:
				return false, nil
			}
		case int64:
			return x != 0, nil
		case int:
			return x != 0, nil
		case float64:
			return x != 0, nil
		case json.Number:
			f, err := x.Float64()
			if err != nil {
				return nil, err
			}
			return f != 0, nil
		}
	}
	return nil, fmt.Errorf("%w: cannot cast %s to %s for column '%s'", ErrTypeMismatch, TypeName(v), c.Type, c.Name)
}

// Schema is an ordered list of columns owned by one table.
type Schema struct {
	TableName string   `json:"table_name"`
	Columns   []Column `json:"columns"`
}

// Validate enforces unique column names, known types and at most one primary key.
func (s Schema) Validate() error {
	if s.TableName == "" {
		return fmt.Errorf("%w: missing table name", ErrInvalidSchema)
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("%w: table %s has no columns", ErrInvalidSchema, s.TableName)
	}

	seen := make(map[string]struct{}, len(s.Columns))
	pk := ""
	for _, c := range s.Columns {
		if c.Name == "" {
			return fmt.Errorf("%w: empty column name", ErrInvalidSchema)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("%w: duplicate column %s", ErrInvalidSchema, c.Name)
		}
		seen[c.Name] = struct{}{}

		if _, err := ParseDataType(string(c.Type)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSchema, err)
		}
		if c.PrimaryKey {
			if pk != "" {
				return fmt.Errorf("%w: multiple primary keys (%s, %s)", ErrInvalidSchema, pk, c.Name)
			}
			pk = c.Name
		}
	}
	return nil
}

func (s Schema) NumCols() int { return len(s.Columns) }

// Column returns the named column, or nil.
func (s Schema) Column(name string) *Column {
	for i := range s.Columns {
		if s.Columns[i].Name == name {
			return &s.Columns[i]
		}
	}
	return nil
}

// PrimaryKey returns the primary key column, or nil when the table has none.
func (s Schema) PrimaryKey() *Column {
	for i := range s.Columns {
		if s.Columns[i].PrimaryKey {
			return &s.Columns[i]
		}
	}
	return nil
}

func (s Schema) ColumnNames() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// TypeName is the SQL-ish name of a runtime value, used in error messages.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "NULL"
	case int64, int, int32:
		return "INT"
	case float64, float32:
		return "FLOAT"
	case string:
		return "TEXT"
	case bool:
		return "BOOLEAN"
	default:
		return fmt.Sprintf("%T", v)
	}
}
