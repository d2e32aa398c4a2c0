package template

import (
	"fmt"
	"strconv"
)

// scope is the evaluation environment: the resolved context plus loop frames
// stacked on top during iteration.
type scope struct {
	vars   map[string]interface{}
	parent *scope
}

func newScope(ctx map[string]interface{}) *scope {
	return &scope{vars: ctx}
}

func (s *scope) child(vars map[string]interface{}) *scope {
	return &scope{vars: vars, parent: s}
}

func (s *scope) lookup(name string) (interface{}, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

type expression interface {
	eval(sc *scope) (interface{}, error)
}

type literalExpr struct {
	value interface{}
}

func (e *literalExpr) eval(*scope) (interface{}, error) {
	return e.value, nil
}

type varExpr struct {
	name string
}

func (e *varExpr) eval(sc *scope) (interface{}, error) {
	if v, ok := sc.lookup(e.name); ok {
		return v, nil
	}
	return undefined{name: e.name}, nil
}

type listExpr struct {
	items []expression
}

func (e *listExpr) eval(sc *scope) (interface{}, error) {
	items := make([]interface{}, 0, len(e.items))
	for _, item := range e.items {
		v, err := item.eval(sc)
		if err != nil {
			return nil, err
		}
		if v, err = requireDefined(v); err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, nil
}

// getAttrExpr covers dotted access: user.name, item.port. A missing
// attribute yields an undefined sentinel carrying the full path.
type getAttrExpr struct {
	target expression
	name   string
}

func (e *getAttrExpr) eval(sc *scope) (interface{}, error) {
	target, err := e.target.eval(sc)
	if err != nil {
		return nil, err
	}
	if u, ok := isUndefined(target); ok {
		return undefined{name: u.name + "." + e.name}, nil
	}
	v, found, err := lookupIn(target, e.name)
	if err != nil {
		return nil, err
	}
	if !found {
		return undefined{name: describeExpr(e.target) + "." + e.name}, nil
	}
	return v, nil
}

// indexExpr covers bracketed access: hostvars['web1'], seq[0].
type indexExpr struct {
	target expression
	index  expression
}

func (e *indexExpr) eval(sc *scope) (interface{}, error) {
	target, err := e.target.eval(sc)
	if err != nil {
		return nil, err
	}
	key, err := e.index.eval(sc)
	if err != nil {
		return nil, err
	}
	if key, err = requireDefined(key); err != nil {
		return nil, err
	}
	// an undefined target extends the path, same as dotted access, so a
	// downstream default can still catch it
	if u, ok := isUndefined(target); ok {
		return undefined{name: fmt.Sprintf("%s[%v]", u.name, key)}, nil
	}
	v, found, err := lookupIn(target, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return undefined{name: fmt.Sprintf("%s[%v]", describeExpr(e.target), key)}, nil
	}
	return v, nil
}

type filterExpr struct {
	target expression
	name   string
	args   []expression
}

func (e *filterExpr) eval(sc *scope) (interface{}, error) {
	target, err := e.target.eval(sc)
	if err != nil {
		return nil, err
	}

	args := make([]interface{}, 0, len(e.args))
	for _, arg := range e.args {
		v, err := arg.eval(sc)
		if err != nil {
			return nil, err
		}
		if v, err = requireDefined(v); err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	// default is the only filter that may observe an undefined value
	if e.name == "default" || e.name == "d" {
		return applyDefault(target, args)
	}

	fn, ok := builtinFilters[e.name]
	if !ok {
		return nil, &UnknownFilterError{Name: e.name}
	}
	if target, err = requireDefined(target); err != nil {
		return nil, err
	}
	return fn(target, args)
}

type notExpr struct {
	expr expression
}

func (e *notExpr) eval(sc *scope) (interface{}, error) {
	v, err := e.expr.eval(sc)
	if err != nil {
		return nil, err
	}
	if v, err = requireDefined(v); err != nil {
		return nil, err
	}
	return !Truthy(v), nil
}

type binaryExpr struct {
	op    string
	left  expression
	right expression
}

func (e *binaryExpr) eval(sc *scope) (interface{}, error) {
	left, err := e.left.eval(sc)
	if err != nil {
		return nil, err
	}
	if left, err = requireDefined(left); err != nil {
		return nil, err
	}

	// short-circuit boolean operators
	switch e.op {
	case "and":
		if !Truthy(left) {
			return false, nil
		}
		right, err := e.right.eval(sc)
		if err != nil {
			return nil, err
		}
		if right, err = requireDefined(right); err != nil {
			return nil, err
		}
		return Truthy(right), nil
	case "or":
		if Truthy(left) {
			return true, nil
		}
		right, err := e.right.eval(sc)
		if err != nil {
			return nil, err
		}
		if right, err = requireDefined(right); err != nil {
			return nil, err
		}
		return Truthy(right), nil
	}

	right, err := e.right.eval(sc)
	if err != nil {
		return nil, err
	}
	if right, err = requireDefined(right); err != nil {
		return nil, err
	}

	switch e.op {
	case "==":
		return Equal(left, right), nil
	case "!=":
		return !Equal(left, right), nil
	case "<", "<=", ">", ">=":
		cmp, ok := compareValues(left, right)
		if !ok {
			return nil, fmt.Errorf("cannot order %s and %s values", KindOf(left), KindOf(right))
		}
		switch e.op {
		case "<":
			return cmp < 0, nil
		case "<=":
			return cmp <= 0, nil
		case ">":
			return cmp > 0, nil
		default:
			return cmp >= 0, nil
		}
	case "in":
		return contains(left, right)
	case "not in":
		found, err := contains(left, right)
		if err != nil {
			return nil, err
		}
		return !found, nil
	default:
		return nil, fmt.Errorf("unsupported operator %q", e.op)
	}
}

// describeExpr reconstructs a readable name for error messages.
func describeExpr(e expression) string {
	switch ex := e.(type) {
	case *varExpr:
		return ex.name
	case *getAttrExpr:
		return describeExpr(ex.target) + "." + ex.name
	case *indexExpr:
		return describeExpr(ex.target) + "[...]"
	default:
		return "expression"
	}
}

// exprParser is a recursive descent parser over expression tokens.
type exprParser struct {
	toks []token
	i    int
}

func (p *exprParser) peek() token {
	return p.toks[p.i]
}

func (p *exprParser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *exprParser) acceptOp(op string) bool {
	if t := p.peek(); t.kind == tokOp && t.text == op {
		p.i++
		return true
	}
	return false
}

func (p *exprParser) acceptIdent(word string) bool {
	if t := p.peek(); t.kind == tokIdent && t.text == word {
		p.i++
		return true
	}
	return false
}

func (p *exprParser) expectOp(op string) error {
	if !p.acceptOp(op) {
		return &TemplateSyntaxError{Pos: p.peek().pos, Detail: fmt.Sprintf("expected %q", op)}
	}
	return nil
}

// parseExpr parses a full expression string. base is the template offset of
// the expression for error positions.
func parseExpr(src string, base int) (expression, error) {
	toks, err := tokenizeExpr(src, base)
	if err != nil {
		return nil, err
	}
	p := &exprParser{toks: toks}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, &TemplateSyntaxError{Pos: t.pos, Detail: fmt.Sprintf("unexpected %q", t.text)}
	}
	return expr, nil
}

func (p *exprParser) parseOr() (expression, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptIdent("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{op: "or", left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parseAnd() (expression, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.acceptIdent("and") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &binaryExpr{op: "and", left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parseNot() (expression, error) {
	if t := p.peek(); t.kind == tokIdent && t.text == "not" {
		// "not in" belongs to the comparison level, not here
		if p.i+1 < len(p.toks) && p.toks[p.i+1].kind == tokIdent && p.toks[p.i+1].text == "in" {
			return p.parseComparison()
		}
		p.next()
		expr, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &notExpr{expr: expr}, nil
	}
	return p.parseComparison()
}

func (p *exprParser) parseComparison() (expression, error) {
	left, err := p.parsePipeline()
	if err != nil {
		return nil, err
	}

	var op string
	if t := p.peek(); t.kind == tokOp {
		switch t.text {
		case "==", "!=", "<", "<=", ">", ">=":
			op = t.text
			p.next()
		}
	} else if t.kind == tokIdent {
		switch t.text {
		case "in":
			op = "in"
			p.next()
		case "not":
			if p.i+1 < len(p.toks) && p.toks[p.i+1].kind == tokIdent && p.toks[p.i+1].text == "in" {
				op = "not in"
				p.next()
				p.next()
			}
		}
	}
	if op == "" {
		return left, nil
	}

	right, err := p.parsePipeline()
	if err != nil {
		return nil, err
	}
	return &binaryExpr{op: op, left: left, right: right}, nil
}

// parsePipeline parses a value threaded through zero or more filters:
// value | filterA | filterB(arg).
func (p *exprParser) parsePipeline() (expression, error) {
	expr, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	for p.acceptOp("|") {
		name := p.next()
		if name.kind != tokIdent {
			return nil, &TemplateSyntaxError{Pos: name.pos, Detail: "expected filter name after '|'"}
		}
		var args []expression
		if p.acceptOp("(") {
			for !p.acceptOp(")") {
				arg, err := p.parseOr()
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
				if !p.acceptOp(",") {
					if err := p.expectOp(")"); err != nil {
						return nil, err
					}
					break
				}
			}
		}
		expr = &filterExpr{target: expr, name: name.text, args: args}
	}
	return expr, nil
}

func (p *exprParser) parsePostfix() (expression, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.acceptOp("."):
			name := p.next()
			if name.kind != tokIdent {
				return nil, &TemplateSyntaxError{Pos: name.pos, Detail: "expected attribute name after '.'"}
			}
			expr = &getAttrExpr{target: expr, name: name.text}
		case p.acceptOp("["):
			index, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp("]"); err != nil {
				return nil, err
			}
			expr = &indexExpr{target: expr, index: index}
		default:
			return expr, nil
		}
	}
}

func (p *exprParser) parsePrimary() (expression, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return &literalExpr{value: t.text}, nil
	case tokNumber:
		if i, err := strconv.Atoi(t.text); err == nil {
			return &literalExpr{value: i}, nil
		}
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, &TemplateSyntaxError{Pos: t.pos, Detail: fmt.Sprintf("invalid number %q", t.text)}
		}
		return &literalExpr{value: f}, nil
	case tokIdent:
		switch t.text {
		case "true", "True":
			return &literalExpr{value: true}, nil
		case "false", "False":
			return &literalExpr{value: false}, nil
		case "none", "None", "null":
			return &literalExpr{value: nil}, nil
		}
		return &varExpr{name: t.text}, nil
	case tokOp:
		switch t.text {
		case "(":
			expr, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return expr, nil
		case "[":
			var items []expression
			for !p.acceptOp("]") {
				item, err := p.parseOr()
				if err != nil {
					return nil, err
				}
				items = append(items, item)
				if !p.acceptOp(",") {
					if err := p.expectOp("]"); err != nil {
						return nil, err
					}
					break
				}
			}
			return &listExpr{items: items}, nil
		}
	}
	return nil, &TemplateSyntaxError{Pos: t.pos, Detail: fmt.Sprintf("unexpected %q", t.text)}
}
