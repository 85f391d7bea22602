package epi

import (
	"fmt"
	"strconv"
	"strings"
)

// evalFn is a compiled numeric function over (person, optional second
// person) plus the engine clock. Boolean results use 0/1.
type evalFn func(e *Engine, p, p2 *Person) float64

// Expression is a compiled, cached numeric expression. The textual form is
// kept for diagnostics. A failed compile leaves err set; the containing rule
// is then marked as a warning and skipped.
type Expression struct {
	text string
	fn   evalFn
	err  error

	// set when the expression is a bare list-variable reference
	listFn func(e *Engine, p, p2 *Person) []float64
}

func (x *Expression) Text() string { return x.text }
func (x *Expression) Err() error   { return x.err }

func (x *Expression) Value(e *Engine, p, p2 *Person) float64 {
	if x == nil || x.fn == nil {
		return 0
	}
	return x.fn(e, p, p2)
}

// ListValue returns the expression's value as a list: the referenced list
// variable if there is one, otherwise a single-element list.
func (x *Expression) ListValue(e *Engine, p, p2 *Person) []float64 {
	if x == nil {
		return nil
	}
	if x.listFn != nil {
		return x.listFn(e, p, p2)
	}
	return []float64{x.Value(e, p, p2)}
}

// compileExpression parses and compiles one expression against the engine's
// factor catalogue.
func (e *Engine) compileExpression(text string) *Expression {
	x := &Expression{text: text}
	text = strings.TrimSpace(text)
	if text == "" {
		x.err = fmt.Errorf("empty expression")
		return x
	}
	toks, err := lexExpr(text)
	if err != nil {
		x.err = err
		return x
	}
	p := &exprParser{e: e, toks: toks}
	fn := p.parseOr()
	if p.err == nil && p.pos != len(p.toks) {
		p.fail("trailing input at %q", p.toks[p.pos].s)
	}
	if p.err != nil {
		x.err = fmt.Errorf("expression %q: %w", text, p.err)
		return x
	}
	x.fn = fn
	x.listFn = e.listVarFn(text)
	return x
}

type tokKind int

const (
	tokNum tokKind = iota
	tokIdent
	tokOp
)

type token struct {
	kind tokKind
	s    string
	f    float64
}

func lexExpr(s string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c >= '0' && c <= '9':
			j := i
			for j < len(s) && (s[j] >= '0' && s[j] <= '9' || s[j] == '.') {
				j++
			}
			f, err := strconv.ParseFloat(s[i:j], 64)
			if err != nil {
				return nil, fmt.Errorf("bad number %q", s[i:j])
			}
			toks = append(toks, token{kind: tokNum, f: f, s: s[i:j]})
			i = j
		case isIdentStart(c):
			j := i
			for j < len(s) && isIdentChar(s[j]) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, s: s[i:j]})
			i = j
		default:
			twoChar := false
			for _, op := range []string{"==", "!=", "<=", ">=", "&&", "||"} {
				if strings.HasPrefix(s[i:], op) {
					toks = append(toks, token{kind: tokOp, s: op})
					i += 2
					twoChar = true
					break
				}
			}
			if twoChar {
				break
			}
			switch c {
			case '<', '>', '+', '-', '*', '/', '(', ')', ',', '&', '|', '!', '=':
				op := string(c)
				if c == '=' {
					op = "=="
				}
				toks = append(toks, token{kind: tokOp, s: op})
				i++
			default:
				return nil, fmt.Errorf("unexpected character %q", string(c))
			}
		}
	}
	return toks, nil
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9' || c == '.'
}

type exprParser struct {
	e    *Engine
	toks []token
	pos  int
	err  error
}

func (p *exprParser) fail(format string, args ...any) {
	if p.err == nil {
		p.err = fmt.Errorf(format, args...)
	}
}

func (p *exprParser) peek() (token, bool) {
	if p.pos < len(p.toks) {
		return p.toks[p.pos], true
	}
	return token{}, false
}

func (p *exprParser) accept(kind tokKind, s string) bool {
	if t, ok := p.peek(); ok && t.kind == kind && t.s == s {
		p.pos++
		return true
	}
	return false
}

func truth(v float64) bool { return v != 0 }

func boolTo(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

func (p *exprParser) parseOr() evalFn {
	left := p.parseAnd()
	for p.accept(tokIdent, "or") || p.accept(tokOp, "|") || p.accept(tokOp, "||") {
		right := p.parseAnd()
		l, r := left, right
		left = func(e *Engine, a, b *Person) float64 {
			return boolTo(truth(l(e, a, b)) || truth(r(e, a, b)))
		}
	}
	return left
}

func (p *exprParser) parseAnd() evalFn {
	left := p.parseNot()
	for p.accept(tokIdent, "and") || p.accept(tokOp, "&") || p.accept(tokOp, "&&") {
		right := p.parseNot()
		l, r := left, right
		left = func(e *Engine, a, b *Person) float64 {
			return boolTo(truth(l(e, a, b)) && truth(r(e, a, b)))
		}
	}
	return left
}

func (p *exprParser) parseNot() evalFn {
	if p.accept(tokIdent, "not") || p.accept(tokOp, "!") {
		inner := p.parseNot()
		return func(e *Engine, a, b *Person) float64 {
			return boolTo(!truth(inner(e, a, b)))
		}
	}
	return p.parseCmp()
}

func (p *exprParser) parseCmp() evalFn {
	left := p.parseSum()
	t, ok := p.peek()
	if !ok || t.kind != tokOp {
		return left
	}
	switch t.s {
	case "==", "!=", "<", "<=", ">", ">=":
		p.pos++
		right := p.parseSum()
		op := t.s
		l, r := left, right
		return func(e *Engine, a, b *Person) float64 {
			lv, rv := l(e, a, b), r(e, a, b)
			switch op {
			case "==":
				return boolTo(lv == rv)
			case "!=":
				return boolTo(lv != rv)
			case "<":
				return boolTo(lv < rv)
			case "<=":
				return boolTo(lv <= rv)
			case ">":
				return boolTo(lv > rv)
			default:
				return boolTo(lv >= rv)
			}
		}
	}
	return left
}

func (p *exprParser) parseSum() evalFn {
	left := p.parseTerm()
	for {
		if p.accept(tokOp, "+") {
			l, r := left, p.parseTerm()
			left = func(e *Engine, a, b *Person) float64 { return l(e, a, b) + r(e, a, b) }
		} else if p.accept(tokOp, "-") {
			l, r := left, p.parseTerm()
			left = func(e *Engine, a, b *Person) float64 { return l(e, a, b) - r(e, a, b) }
		} else {
			return left
		}
	}
}

func (p *exprParser) parseTerm() evalFn {
	left := p.parseUnary()
	for {
		if p.accept(tokOp, "*") {
			l, r := left, p.parseUnary()
			left = func(e *Engine, a, b *Person) float64 { return l(e, a, b) * r(e, a, b) }
		} else if p.accept(tokOp, "/") {
			l, r := left, p.parseUnary()
			left = func(e *Engine, a, b *Person) float64 {
				d := r(e, a, b)
				if d == 0 {
					return 0
				}
				return l(e, a, b) / d
			}
		} else {
			return left
		}
	}
}

func (p *exprParser) parseUnary() evalFn {
	if p.accept(tokOp, "-") {
		inner := p.parseUnary()
		return func(e *Engine, a, b *Person) float64 { return -inner(e, a, b) }
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() evalFn {
	zero := func(*Engine, *Person, *Person) float64 { return 0 }
	t, ok := p.peek()
	if !ok {
		p.fail("unexpected end of expression")
		return zero
	}
	switch t.kind {
	case tokNum:
		p.pos++
		v := t.f
		return func(*Engine, *Person, *Person) float64 { return v }
	case tokOp:
		if t.s == "(" {
			p.pos++
			inner := p.parseOr()
			if !p.accept(tokOp, ")") {
				p.fail("missing ')'")
			}
			return inner
		}
		p.fail("unexpected %q", t.s)
		return zero
	}
	// Identifier: function call or factor.
	p.pos++
	name := t.s
	if name == "state" {
		return p.parseStatePredicate()
	}
	if p.accept(tokOp, "(") {
		var args []evalFn
		if !p.accept(tokOp, ")") {
			for {
				args = append(args, p.parseOr())
				if p.accept(tokOp, ")") {
					break
				}
				if !p.accept(tokOp, ",") {
					p.fail("missing ',' in call to %s", name)
					return zero
				}
			}
		}
		fn, err := p.e.resolveCall(name, args)
		if err != nil {
			p.fail("%v", err)
			return zero
		}
		return fn
	}
	fn, err := p.e.resolveFactor(name)
	if err != nil {
		p.fail("%v", err)
		return zero
	}
	return fn
}

// parseStatePredicate compiles `state(C.S)` into a 0/1 test of the person's
// current state in condition C.
func (p *exprParser) parseStatePredicate() evalFn {
	zero := func(*Engine, *Person, *Person) float64 { return 0 }
	if !p.accept(tokOp, "(") {
		p.fail("state requires parentheses")
		return zero
	}
	t, ok := p.peek()
	if !ok || t.kind != tokIdent {
		p.fail("state() requires a C.S argument")
		return zero
	}
	p.pos++
	if !p.accept(tokOp, ")") {
		p.fail("missing ')' after state(%s", t.s)
		return zero
	}
	cond, state, err := p.e.resolveConditionState(t.s)
	if err != nil {
		p.fail("%v", err)
		return zero
	}
	return func(e *Engine, a, b *Person) float64 {
		return boolTo(a.State(cond) == state)
	}
}

// resolveCall binds the small set of function-style factors.
func (e *Engine) resolveCall(name string, args []evalFn) (evalFn, error) {
	arity := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("%s expects %d args, got %d", name, n, len(args))
		}
		return nil
	}
	switch name {
	case "uniform":
		switch len(args) {
		case 0:
			return func(e *Engine, _, _ *Person) float64 { return e.rng.Uniform() }, nil
		case 2:
			lo, hi := args[0], args[1]
			return func(e *Engine, a, b *Person) float64 {
				return e.rng.UniformRange(lo(e, a, b), hi(e, a, b))
			}, nil
		}
		return nil, fmt.Errorf("uniform expects 0 or 2 args")
	case "normal":
		if err := arity(2); err != nil {
			return nil, err
		}
		mu, sd := args[0], args[1]
		return func(e *Engine, a, b *Person) float64 {
			return e.rng.Normal(mu(e, a, b), sd(e, a, b))
		}, nil
	case "exponential":
		if err := arity(1); err != nil {
			return nil, err
		}
		mean := args[0]
		return func(e *Engine, a, b *Person) float64 {
			return e.rng.Exponential(mean(e, a, b))
		}, nil
	}
	return nil, fmt.Errorf("unrecognized function %q", name)
}
