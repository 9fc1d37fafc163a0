package record

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidSchema  = errors.New("invalid schema")
	ErrMissingColumns = errors.New("missing required column(s)")
	ErrTypeMismatch   = errors.New("type mismatch")
	ErrUnknownColumn  = errors.New("unknown column")
)

// RowID is the permanent identity of a row inside its table. It is never reused.
type RowID uint64

// Row maps column names to values.
type Row map[string]any

func (r Row) Get(name string) any { return r[name] }

// Clone returns a copy of r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Validate checks r against schema. Missing non-nullable columns are reported together
// before any type mismatch.
func (r Row) Validate(schema Schema) error {
	for name := range r {
		if schema.Column(name) == nil {
			return fmt.Errorf("%w: %s", ErrUnknownColumn, name)
		}
	}

	var missing []string
	for _, c := range schema.Columns {
		if _, ok := r[c.Name]; !ok && !c.Nullable {
			missing = append(missing, fmt.Sprintf("%s (%s)", c.Name, c.Type))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	for _, c := range schema.Columns {
		v, ok := r[c.Name]
		if !ok {
			continue
		}
		if err := c.Validate(v); err != nil {
			return err
		}
	}
	return nil
}
