package filter

import "fmt"

// Resolver looks up a dotted field path in a row. A missing field reports
// false and compares as null.
type Resolver interface {
	Resolve(path []string) (any, bool)
}

// Evaluate runs a compiled predicate against one row. A nil Expr matches
// every row.
func Evaluate(expr Expr, r Resolver) (bool, error) {
	switch e := expr.(type) {
	case nil:
		return true, nil
	case *AndExpr:
		ok, err := Evaluate(e.Left, r)
		if err != nil || !ok {
			return false, err
		}
		return Evaluate(e.Right, r)
	case *OrExpr:
		ok, err := Evaluate(e.Left, r)
		if err != nil || ok {
			return ok, err
		}
		return Evaluate(e.Right, r)
	case *NotExpr:
		ok, err := Evaluate(e.Expr, r)
		return !ok, err
	case *Comparison:
		return compare(e.Op, value(e.Left, r), value(e.Right, r))
	}
	return false, fmt.Errorf("filter: unknown expression %T", expr)
}

func value(op Operand, r Resolver) any {
	switch o := op.(type) {
	case *Literal:
		return o.Value
	case *Field:
		v, _ := r.Resolve(o.Path)
		return v
	}
	return nil
}
