package record

import (
	"fmt"
	"strings"
)

// Operator is a WHERE comparison operator.
type Operator string

const (
	OpEq  Operator = "="
	OpNe  Operator = "!="
	OpLt  Operator = "<"
	OpGt  Operator = ">"
	OpLte Operator = "<="
	OpGte Operator = ">="
)

func ParseOperator(s string) (Operator, error) {
	switch op := Operator(strings.TrimSpace(s)); op {
	case OpEq, OpNe, OpLt, OpGt, OpLte, OpGte:
		return op, nil
	default:
		return "", fmt.Errorf("unsupported operator %q", s)
	}
}

// Equal reports whether a and b hold the same value. INT and float literals compare numerically.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if c, ok := order(a, b); ok {
		return c == 0
	}
	return false
}

// Compare evaluates "a op b".
//
// Equality operators never fail: values of different types are simply unequal.
// Ordering operators are false when either side is NULL and fail on incompatible types.
func Compare(a any, op Operator, b any) (bool, error) {
	switch op {
	case OpEq:
		return Equal(a, b), nil
	case OpNe:
		return !Equal(a, b), nil
	}

	if a == nil || b == nil {
		return false, nil
	}
	c, ok := order(a, b)
	if !ok {
		return false, fmt.Errorf("%w: cannot compare %s %s %s", ErrTypeMismatch, TypeName(a), op, TypeName(b))
	}

	switch op {
	case OpLt:
		return c < 0, nil
	case OpGt:
		return c > 0, nil
	case OpLte:
		return c <= 0, nil
	case OpGte:
		return c >= 0, nil
	default:
		return false, fmt.Errorf("unsupported operator %q", op)
	}
}

// order returns -1, 0 or 1, and false when a and b are not comparable.
func order(a, b any) (int, bool) {
	if af, aNum := number(a); aNum {
		bf, bNum := number(b)
		if !bNum {
			return 0, false
		}
		// exact path for the common int64/int64 case
		if ai, ok := a.(int64); ok {
			if bi, ok := b.(int64); ok {
				return cmp3(ai, bi), true
			}
		}
		return cmp3(af, bf), true
	}

	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		default:
			return 1, true
		}
	}
	return 0, false
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

func cmp3[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
