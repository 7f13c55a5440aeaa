package filter

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Expr is a compiled filter predicate.
type Expr interface {
	exprNode()
}

// AndExpr / OrExpr combine two predicates.
type AndExpr struct{ Left, Right Expr }
type OrExpr struct{ Left, Right Expr }

// NotExpr negates a predicate.
type NotExpr struct{ Expr Expr }

// Comparison is <operand> <op> <operand>.
type Comparison struct {
	Left  Operand
	Op    Operator
	Right Operand
}

func (*AndExpr) exprNode()    {}
func (*OrExpr) exprNode()     {}
func (*NotExpr) exprNode()    {}
func (*Comparison) exprNode() {}

// Operand is a literal or a dotted field path into the row.
type Operand interface {
	operandNode()
}

// Literal holds a constant: string, float64, bool or nil.
type Literal struct{ Value any }

// Field holds a path such as ["swiper", "username"].
type Field struct{ Path []string }

func (*Literal) operandNode() {}
func (*Field) operandNode()   {}

func (f *Field) String() string { return strings.Join(f.Path, ".") }

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokOp
	tokString
	tokNumber
	tokLParen
	tokRParen
	tokEOF
)

type token struct {
	kind tokenKind
	val  string
	pos  int
}

func lex(src string) ([]token, error) {
	var out []token
	for i := 0; i < len(src); {
		ch := rune(src[i])
		switch {
		case unicode.IsSpace(ch):
			i++
		case ch == '(':
			out = append(out, token{tokLParen, "(", i})
			i++
		case ch == ')':
			out = append(out, token{tokRParen, ")", i})
			i++
		case ch == '=' || ch == '!' || ch == '<' || ch == '>':
			if i+1 < len(src) && src[i+1] == '=' {
				out = append(out, token{tokOp, src[i : i+2], i})
				i += 2
				continue
			}
			if ch == '=' || ch == '!' {
				return nil, fmt.Errorf("filter: dangling %q at %d", ch, i)
			}
			out = append(out, token{tokOp, string(ch), i})
			i++
		case ch == '"' || ch == '\'':
			j := i + 1
			var sb strings.Builder
			for j < len(src) && rune(src[j]) != ch {
				if src[j] == '\\' && j+1 < len(src) {
					j++
				}
				sb.WriteByte(src[j])
				j++
			}
			if j >= len(src) {
				return nil, fmt.Errorf("filter: unterminated string at %d", i)
			}
			out = append(out, token{tokString, sb.String(), i})
			i = j + 1
		case unicode.IsDigit(ch) || (ch == '-' && i+1 < len(src) && unicode.IsDigit(rune(src[i+1]))):
			j := i + 1
			for j < len(src) && (unicode.IsDigit(rune(src[j])) || src[j] == '.') {
				j++
			}
			out = append(out, token{tokNumber, src[i:j], i})
			i = j
		case unicode.IsLetter(ch) || ch == '_':
			j := i + 1
			for j < len(src) {
				c := rune(src[j])
				if !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '_' && c != '.' {
					break
				}
				j++
			}
			out = append(out, token{tokIdent, src[i:j], i})
			i = j
		default:
			return nil, fmt.Errorf("filter: unexpected %q at %d", ch, i)
		}
	}
	return append(out, token{kind: tokEOF, pos: len(src)}), nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) keyword(kw string) bool {
	t := p.peek()
	if t.kind == tokIdent && strings.EqualFold(t.val, kw) {
		p.pos++
		return true
	}
	return false
}

// Parse compiles a predicate. An empty string yields a nil Expr, which
// Evaluate treats as "always true".
func Parse(src string) (Expr, error) {
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	e, err := p.or()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("filter: unexpected %q at %d", t.val, t.pos)
	}
	return e, nil
}

func (p *parser) or() (Expr, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.keyword("OR") {
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		left = &OrExpr{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) and() (Expr, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.keyword("AND") {
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = &AndExpr{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) unary() (Expr, error) {
	if p.keyword("NOT") {
		inner, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &NotExpr{Expr: inner}, nil
	}
	if p.peek().kind == tokLParen {
		p.next()
		inner, err := p.or()
		if err != nil {
			return nil, err
		}
		if t := p.next(); t.kind != tokRParen {
			return nil, fmt.Errorf("filter: expected ) at %d", t.pos)
		}
		return inner, nil
	}
	return p.comparison()
}

func (p *parser) comparison() (Expr, error) {
	left, err := p.operand()
	if err != nil {
		return nil, err
	}
	var op Operator
	switch t := p.peek(); {
	case t.kind == tokOp:
		op = Operator(t.val)
	case t.kind == tokIdent && strings.EqualFold(t.val, "contains"):
		op = OpContains
	default:
		return nil, fmt.Errorf("filter: expected operator at %d, got %q", t.pos, t.val)
	}
	p.next()
	right, err := p.operand()
	if err != nil {
		return nil, err
	}
	return &Comparison{Left: left, Op: op, Right: right}, nil
}

func (p *parser) operand() (Operand, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return &Literal{Value: t.val}, nil
	case tokNumber:
		f, err := strconv.ParseFloat(t.val, 64)
		if err != nil {
			return nil, fmt.Errorf("filter: bad number %q", t.val)
		}
		return &Literal{Value: f}, nil
	case tokIdent:
		switch strings.ToLower(t.val) {
		case "true":
			return &Literal{Value: true}, nil
		case "false":
			return &Literal{Value: false}, nil
		case "null":
			return &Literal{Value: nil}, nil
		}
		return &Field{Path: strings.Split(t.val, ".")}, nil
	}
	return nil, fmt.Errorf("filter: expected operand at %d, got %q", t.pos, t.val)
}
