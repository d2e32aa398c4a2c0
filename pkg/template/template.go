// Package template implements the expression and control-flow engine used to
// render task parameters against a resolved variable context. Templates mix
// literal text with {{ expression }} substitutions, {% if %}/{% for %}
// control blocks and {# comments #}. Rendering is atomic: a template either
// renders fully or fails without emitting partial output.
package template

import (
	"fmt"
	"strings"
)

// Mapper lets a context value answer key lookups itself instead of being a
// plain map. Accessors such as hostvars implement it to resolve lazily and to
// report their own errors for unknown keys.
type Mapper interface {
	// TemplateGet returns the value for key. found=false means the key is
	// undefined (recoverable through the default filter); a non-nil error
	// aborts evaluation.
	TemplateGet(key string) (interface{}, bool, error)
}

// TemplateSyntaxError reports a malformed template, detected at parse time
// before any rendering occurs.
type TemplateSyntaxError struct {
	Pos    int
	Detail string
}

func (e *TemplateSyntaxError) Error() string {
	return fmt.Sprintf("template syntax error at offset %d: %s", e.Pos, e.Detail)
}

// UnknownFilterError reports a pipeline referencing a filter that is not
// registered.
type UnknownFilterError struct {
	Name string
}

func (e *UnknownFilterError) Error() string {
	return fmt.Sprintf("unknown filter %q", e.Name)
}

// UndefinedVariableError reports an expression using a variable no scope
// defines. Only the default filter suppresses it.
type UndefinedVariableError struct {
	Name string
}

func (e *UndefinedVariableError) Error() string {
	return fmt.Sprintf("variable %q is undefined", e.Name)
}

// Template is a parsed template ready for repeated execution.
type Template struct {
	src   string
	nodes []node
}

// Parse parses src, failing fast with TemplateSyntaxError on unbalanced
// blocks or malformed expressions.
func Parse(src string) (*Template, error) {
	segs, err := scanTemplate(src)
	if err != nil {
		return nil, err
	}
	p := &nodeParser{segs: segs}
	nodes, err := p.parseAll()
	if err != nil {
		return nil, err
	}
	return &Template{src: src, nodes: nodes}, nil
}

// Execute renders the template against the given context and returns the
// output string. On error no partial output is returned.
func (t *Template) Execute(ctx map[string]interface{}) (string, error) {
	var sb strings.Builder
	if err := renderNodes(t.nodes, &sb, newScope(ctx)); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// ExecuteValue renders the template, preserving the native type when the
// template consists of exactly one expression with no surrounding text.
func (t *Template) ExecuteValue(ctx map[string]interface{}) (interface{}, error) {
	if out, ok := t.soleExpression(); ok {
		v, err := out.expr.eval(newScope(ctx))
		if err != nil {
			return nil, err
		}
		return requireDefined(v)
	}
	return t.Execute(ctx)
}

func (t *Template) soleExpression() (*outputNode, bool) {
	var out *outputNode
	for _, n := range t.nodes {
		switch typed := n.(type) {
		case *textNode:
			if typed.text != "" {
				return nil, false
			}
		case *outputNode:
			if out != nil {
				return nil, false
			}
			out = typed
		default:
			return nil, false
		}
	}
	return out, out != nil
}

// TemplateString renders a template string against ctx.
func TemplateString(src string, ctx map[string]interface{}) (string, error) {
	if !strings.Contains(src, "{") {
		return src, nil
	}
	t, err := Parse(src)
	if err != nil {
		return "", err
	}
	return t.Execute(ctx)
}

// EvaluateExpression evaluates a bare expression (no surrounding brackets)
// against ctx and returns its native value.
func EvaluateExpression(expr string, ctx map[string]interface{}) (interface{}, error) {
	parsed, err := parseExpr(strings.TrimSpace(expr), 0)
	if err != nil {
		return nil, err
	}
	v, err := parsed.eval(newScope(ctx))
	if err != nil {
		return nil, err
	}
	return requireDefined(v)
}

// EvaluateCondition evaluates a guard expression and reports its truth
// value.
func EvaluateCondition(expr string, ctx map[string]interface{}) (bool, error) {
	v, err := EvaluateExpression(expr, ctx)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}

// Render walks an arbitrary structure and renders every string leaf against
// ctx, preserving the container shape. String leaves that consist of a single
// expression keep their native type.
func Render(value interface{}, ctx map[string]interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		t, err := Parse(v)
		if err != nil {
			return nil, err
		}
		return t.ExecuteValue(ctx)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			rendered, err := Render(item, ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to render value for key %q: %w", k, err)
			}
			out[k] = rendered
		}
		return out, nil
	case map[interface{}]interface{}:
		out := make(map[interface{}]interface{}, len(v))
		for k, item := range v {
			rendered, err := Render(item, ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to render value for key %v: %w", k, err)
			}
			out[k] = rendered
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			rendered, err := Render(item, ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to render element %d: %w", i, err)
			}
			out[i] = rendered
		}
		return out, nil
	default:
		return value, nil
	}
}
