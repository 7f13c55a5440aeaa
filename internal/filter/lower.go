package filter

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotLowerable is returned when a predicate cannot be pushed to the store.
var ErrNotLowerable = errors.New("filter: predicate cannot be pushed down")

// Constraint is one restriction a store applies before its result cap.
// A leaf compares Column with Value. A group sets Any (the row satisfies
// at least one conjunction) or Not (the row does not satisfy the
// conjunction); its leaf fields are empty.
type Constraint struct {
	Column string
	Op     Operator
	Value  any

	Any [][]Constraint
	Not []Constraint
}

// IsGroup reports whether c combines nested constraints.
func (c Constraint) IsGroup() bool { return c.Any != nil || c.Not != nil }

func (c Constraint) String() string {
	switch {
	case c.Any != nil:
		alts := make([]string, len(c.Any))
		for i, a := range c.Any {
			alts[i] = conjunction(a)
		}
		return "(" + strings.Join(alts, " OR ") + ")"
	case c.Not != nil:
		return "NOT (" + conjunction(c.Not) + ")"
	}
	return fmt.Sprintf("%s %s %v", c.Column, c.Op, c.Value)
}

func conjunction(cs []Constraint) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.String()
	}
	return strings.Join(parts, " AND ")
}

// Lower turns a predicate into a conjunction of store constraints. Every
// comparison must be between a top-level column and a literal; `contains`
// needs the column on the left.
func Lower(expr Expr) ([]Constraint, error) {
	switch e := expr.(type) {
	case nil:
		return nil, nil
	case *AndExpr:
		left, err := Lower(e.Left)
		if err != nil {
			return nil, err
		}
		right, err := Lower(e.Right)
		if err != nil {
			return nil, err
		}
		return append(left, right...), nil
	case *OrExpr:
		left, err := Lower(e.Left)
		if err != nil {
			return nil, err
		}
		right, err := Lower(e.Right)
		if err != nil {
			return nil, err
		}
		return []Constraint{{Any: append(alternatives(left), alternatives(right)...)}}, nil
	case *NotExpr:
		inner, err := Lower(e.Expr)
		if err != nil {
			return nil, err
		}
		if len(inner) == 1 && inner[0].Not != nil {
			return inner[0].Not, nil
		}
		return []Constraint{{Not: inner}}, nil
	case *Comparison:
		return lowerComparison(e)
	}
	return nil, fmt.Errorf("%w: %T", ErrNotLowerable, expr)
}

// alternatives splices a nested OR into its parent so `a OR b OR c` lowers
// to one group.
func alternatives(cs []Constraint) [][]Constraint {
	if len(cs) == 1 && cs[0].Any != nil {
		return cs[0].Any
	}
	return [][]Constraint{cs}
}

func lowerComparison(c *Comparison) ([]Constraint, error) {
	f, lit, op := asFieldLiteral(c)
	if f == nil {
		return nil, fmt.Errorf("%w: comparison needs one field and one literal", ErrNotLowerable)
	}
	if len(f.Path) != 1 {
		return nil, fmt.Errorf("%w: nested field %s", ErrNotLowerable, f)
	}
	if op == OpContains {
		if _, ok := c.Left.(*Field); !ok {
			return nil, fmt.Errorf("%w: contains needs the field on the left", ErrNotLowerable)
		}
		if _, ok := lit.Value.(string); !ok {
			return nil, fmt.Errorf("%w: contains needs a string", ErrNotLowerable)
		}
	}
	return []Constraint{{Column: f.Path[0], Op: op, Value: lit.Value}}, nil
}

func asFieldLiteral(c *Comparison) (*Field, *Literal, Operator) {
	if f, ok := c.Left.(*Field); ok {
		if lit, ok := c.Right.(*Literal); ok {
			return f, lit, c.Op
		}
	}
	if lit, ok := c.Left.(*Literal); ok {
		if f, ok := c.Right.(*Field); ok {
			return f, lit, c.Op.flip()
		}
	}
	return nil, nil, ""
}

// Match reports whether a plain column map satisfies every constraint.
func Match(cs []Constraint, row map[string]any) bool {
	for _, c := range cs {
		if !holds(c, row) {
			return false
		}
	}
	return true
}

func holds(c Constraint, row map[string]any) bool {
	switch {
	case c.Any != nil:
		for _, alt := range c.Any {
			if Match(alt, row) {
				return true
			}
		}
		return false
	case c.Not != nil:
		return !Match(c.Not, row)
	}
	ok, err := compare(c.Op, row[c.Column], c.Value)
	return err == nil && ok
}
