package filter

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Operator is a comparison operator.
type Operator string

const (
	OpEq       Operator = "=="
	OpNeq      Operator = "!="
	OpGt       Operator = ">"
	OpGte      Operator = ">="
	OpLt       Operator = "<"
	OpLte      Operator = "<="
	OpContains Operator = "contains"
)

// flip mirrors an ordering operator so that `5 < x` can be stored as `x > 5`.
func (op Operator) flip() Operator {
	switch op {
	case OpGt:
		return OpLt
	case OpGte:
		return OpLte
	case OpLt:
		return OpGt
	case OpLte:
		return OpGte
	}
	return op
}

// Number coerces row values to float64. Numeric strings (postgres NUMERIC
// columns arrive as text) are parsed with decimal to avoid float drift.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case decimal.Decimal:
		return n.InexactFloat64(), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return d.InexactFloat64(), true
	case []byte:
		return Number(string(n))
	}
	return 0, false
}

func compare(op Operator, left, right any) (bool, error) {
	switch op {
	case OpEq:
		return equal(left, right), nil
	case OpNeq:
		return !equal(left, right), nil
	case OpGt, OpGte, OpLt, OpLte:
		return ordered(op, left, right)
	case OpContains:
		ls, ok := left.(string)
		if !ok {
			return false, nil
		}
		return strings.Contains(ls, fmt.Sprint(right)), nil
	}
	return false, fmt.Errorf("filter: unknown operator %q", op)
}

func equal(left, right any) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	if lb, ok := left.(bool); ok {
		rb, ok := right.(bool)
		return ok && lb == rb
	}
	if lf, ok := Number(left); ok {
		if rf, ok := Number(right); ok {
			return math.Abs(lf-rf) < 1e-9
		}
	}
	return fmt.Sprint(left) == fmt.Sprint(right)
}

func ordered(op Operator, left, right any) (bool, error) {
	if lt, ok := left.(time.Time); ok {
		rt, ok := right.(time.Time)
		if !ok {
			return false, fmt.Errorf("filter: %s compares time with %T", op, right)
		}
		return orderedFloat(op, float64(lt.UnixNano()), float64(rt.UnixNano())), nil
	}
	if left == nil || right == nil {
		return false, nil
	}
	lf, lok := Number(left)
	rf, rok := Number(right)
	if !lok || !rok {
		return false, fmt.Errorf("filter: %s needs numbers, got %T and %T", op, left, right)
	}
	return orderedFloat(op, lf, rf), nil
}

func orderedFloat(op Operator, l, r float64) bool {
	switch op {
	case OpGt:
		return l > r
	case OpGte:
		return l >= r
	case OpLt:
		return l < r
	default:
		return l <= r
	}
}
