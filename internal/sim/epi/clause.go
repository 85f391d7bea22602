package epi

// Clause is the compiled `if` guard of a rule: a boolean combination of
// comparison expressions. A nil Clause always applies.
type Clause struct {
	expr *Expression
}

func (e *Engine) compileClause(text string) *Clause {
	if text == "" {
		return nil
	}
	return &Clause{expr: e.compileExpression(text)}
}

func (c *Clause) Err() error {
	if c == nil {
		return nil
	}
	return c.expr.Err()
}

func (c *Clause) Applies(e *Engine, p, p2 *Person) bool {
	if c == nil {
		return true
	}
	return c.expr.Value(e, p, p2) != 0
}
