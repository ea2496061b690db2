// Package expr is the sandboxed arithmetic evaluator behind rate rules.
//
// The grammar is closed on purpose: decimal literals, + - * / with unary
// sign, parentheses, and the functions min, max and round. Identifiers must
// come from the fixed variable whitelist. Anything else fails validation, so
// a policy document can never smuggle code into an evaluation.
package expr

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"kyde/internal/core"
)

// AllowedNames is the closed set of variables a policy formula may read.
var AllowedNames = map[string]struct{}{
	"kwh":               {},
	"qty":               {},
	"price_ct_per_kwh":  {},
	"feedin_ct_per_kwh": {},
	"amount_eur_prev":   {},
	"base_sum":          {},
	"percent":           {},
	"value":             {},
}

var allowedFuncs = map[string]struct{}{
	"min":   {},
	"max":   {},
	"round": {},
}

// Expr is a parsed formula ready for repeated evaluation.
type Expr struct {
	root node
	src  string
}

// Source returns the original formula text.
func (e *Expr) Source() string {
	return e.src
}

// Parse validates src against the sandbox grammar and whitelist.
func Parse(src string) (*Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, src: src}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, core.Validationf("unexpected token %q in %q", p.toks[p.pos].text, src)
	}
	return &Expr{root: root, src: src}, nil
}

// Eval evaluates the expression over vars. Unknown variables evaluate to
// zero; the whitelist was already enforced at parse time.
func (e *Expr) Eval(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	return e.root.eval(vars)
}

// Eval is the one-shot parse-and-evaluate helper.
func Eval(src string, vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	ex, err := Parse(src)
	if err != nil {
		return decimal.Zero, err
	}
	return ex.Eval(vars)
}

// --- AST --------------------------------------------------------------------

type node interface {
	eval(vars map[string]decimal.Decimal) (decimal.Decimal, error)
}

type literalNode struct {
	value decimal.Decimal
}

func (n literalNode) eval(map[string]decimal.Decimal) (decimal.Decimal, error) {
	return n.value, nil
}

type varNode struct {
	name string
}

func (n varNode) eval(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	return vars[n.name], nil
}

type unaryNode struct {
	neg     bool
	operand node
}

func (n unaryNode) eval(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	v, err := n.operand.eval(vars)
	if err != nil {
		return decimal.Zero, err
	}
	if n.neg {
		return v.Neg(), nil
	}
	return v, nil
}

type binaryNode struct {
	op          byte
	left, right node
}

func (n binaryNode) eval(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	l, err := n.left.eval(vars)
	if err != nil {
		return decimal.Zero, err
	}
	r, err := n.right.eval(vars)
	if err != nil {
		return decimal.Zero, err
	}
	switch n.op {
	case '+':
		return l.Add(r), nil
	case '-':
		return l.Sub(r), nil
	case '*':
		return l.Mul(r), nil
	case '/':
		// Division by zero yields zero, matching the policy DSL contract.
		if r.IsZero() {
			return decimal.Zero, nil
		}
		return l.Div(r), nil
	}
	return decimal.Zero, core.Validationf("operator %q not allowed", string(n.op))
}

type callNode struct {
	fn   string
	args []node
}

func (n callNode) eval(vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	args := make([]decimal.Decimal, 0, len(n.args))
	for _, a := range n.args {
		v, err := a.eval(vars)
		if err != nil {
			return decimal.Zero, err
		}
		args = append(args, v)
	}
	switch n.fn {
	case "min":
		if len(args) == 0 {
			return decimal.Zero, core.Validationf("min needs at least one argument")
		}
		out := args[0]
		for _, v := range args[1:] {
			if v.LessThan(out) {
				out = v
			}
		}
		return out, nil
	case "max":
		if len(args) == 0 {
			return decimal.Zero, core.Validationf("max needs at least one argument")
		}
		out := args[0]
		for _, v := range args[1:] {
			if v.GreaterThan(out) {
				out = v
			}
		}
		return out, nil
	case "round":
		// Half-up rounding to the given scale, scale 0 when omitted.
		switch len(args) {
		case 1:
			return args[0].Round(0), nil
		case 2:
			return args[0].Round(int32(args[1].IntPart())), nil
		}
		return decimal.Zero, core.Validationf("round takes 1 or 2 arguments, got %d", len(args))
	}
	return decimal.Zero, core.Validationf("function %q not allowed", n.fn)
}

// --- Lexer ------------------------------------------------------------------

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokIdent
	tokOp    // + - * /
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '+' || c == '-' || c == '*' || c == '/':
			toks = append(toks, token{tokOp, string(c)})
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == ',':
			toks = append(toks, token{tokComma, ","})
			i++
		case c >= '0' && c <= '9' || c == '.':
			j := i
			for j < len(src) && (src[j] >= '0' && src[j] <= '9' || src[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNumber, src[i:j]})
			i = j
		case isIdentStart(c):
			j := i
			for j < len(src) && isIdentPart(src[j]) {
				j++
			}
			toks = append(toks, token{tokIdent, src[i:j]})
			i = j
		default:
			return nil, core.Validationf("character %q not allowed in expression %q", string(c), src)
		}
	}
	return toks, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}

// --- Parser -----------------------------------------------------------------

type parser struct {
	toks []token
	pos  int
	src  string
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) next() (token, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}
	return t, ok
}

// expr := term (('+'|'-') term)*
func (p *parser) parseExpr() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokOp || (t.text != "+" && t.text != "-") {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: t.text[0], left: left, right: right}
	}
}

// term := unary (('*'|'/') unary)*
func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokOp || (t.text != "*" && t.text != "/") {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: t.text[0], left: left, right: right}
	}
}

// unary := ('+'|'-') unary | primary
func (p *parser) parseUnary() (node, error) {
	t, ok := p.peek()
	if ok && t.kind == tokOp && (t.text == "+" || t.text == "-") {
		p.pos++
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{neg: t.text == "-", operand: operand}, nil
	}
	return p.parsePrimary()
}

// primary := NUMBER | IDENT | IDENT '(' args ')' | '(' expr ')'
func (p *parser) parsePrimary() (node, error) {
	t, ok := p.next()
	if !ok {
		return nil, core.Validationf("unexpected end of expression %q", p.src)
	}
	switch t.kind {
	case tokNumber:
		v, err := decimal.NewFromString(t.text)
		if err != nil {
			return nil, core.Validationf("literal %q is not numeric", t.text)
		}
		return literalNode{value: v}, nil
	case tokIdent:
		if nx, ok := p.peek(); ok && nx.kind == tokLParen {
			return p.parseCall(t.text)
		}
		name := strings.ToLower(t.text)
		if _, ok := AllowedNames[name]; !ok {
			return nil, core.Validationf("name %q not allowed", t.text)
		}
		return varNode{name: name}, nil
	case tokLParen:
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if nx, ok := p.next(); !ok || nx.kind != tokRParen {
			return nil, core.Validationf("missing closing parenthesis in %q", p.src)
		}
		return inner, nil
	}
	return nil, core.Validationf("unexpected token %q in %q", t.text, p.src)
}

func (p *parser) parseCall(name string) (node, error) {
	fn := strings.ToLower(name)
	if _, ok := allowedFuncs[fn]; !ok {
		return nil, core.Validationf("function %q not allowed", name)
	}
	// consume '('
	p.pos++
	var args []node
	if nx, ok := p.peek(); ok && nx.kind == tokRParen {
		p.pos++
		return callNode{fn: fn, args: args}, nil
	}
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		t, ok := p.next()
		if !ok {
			return nil, core.Validationf("unterminated call to %s in %q", fn, p.src)
		}
		if t.kind == tokRParen {
			break
		}
		if t.kind != tokComma {
			return nil, core.Validationf("unexpected token %q in call to %s", t.text, fn)
		}
	}
	if fn == "round" && (len(args) < 1 || len(args) > 2) {
		return nil, fmt.Errorf("%w: round takes 1 or 2 arguments, got %d", core.ErrValidation, len(args))
	}
	return callNode{fn: fn, args: args}, nil
}
