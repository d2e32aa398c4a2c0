package pkg

import (
	"fmt"

	"github.com/bvankempen/rigging/pkg/common"
	"github.com/bvankempen/rigging/pkg/config"
	"github.com/bvankempen/rigging/pkg/template"
)

// Closure binds a host's execution state to the play-scoped variable state
// and the resolver, giving templating a single entry point.
type Closure struct {
	HostContext *HostContext
	PlayContext *PlayContext
	Resolver    *Resolver
	Config      *config.Config
}

// GetFacts computes the effective variable mapping for this closure's host
// at the current point in execution.
func (c *Closure) GetFacts() map[string]interface{} {
	if c == nil || c.HostContext == nil {
		return map[string]interface{}{}
	}
	return c.Resolver.Resolve(c.HostContext.Host, c.PlayContext)
}

// GetFact resolves a single key through the precedence tiers.
func (c *Closure) GetFact(key string) (interface{}, error) {
	return c.Resolver.Lookup(c.HostContext.Host, c.PlayContext, key)
}

// Fork returns a closure with an independent task-scoped play context.
func (c *Closure) Fork() *Closure {
	return &Closure{
		HostContext: c.HostContext,
		PlayContext: c.PlayContext.Fork(),
		Resolver:    c.Resolver,
		Config:      c.Config,
	}
}

// TemplateString renders a template string against the resolved context.
func (c *Closure) TemplateString(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	context := c.GetFacts()
	res, err := template.TemplateString(s, context)
	IncRender(c.HostContext.Host.Name, err != nil)
	if err != nil {
		return "", fmt.Errorf("failed to template string: %w", err)
	}
	if s != res {
		common.DebugOutput("Templated %q into %q", s, res)
	}
	return res, nil
}

// EvaluateExpression evaluates a bare expression against the resolved
// context and returns its native value.
func (c *Closure) EvaluateExpression(s string) (interface{}, error) {
	context := c.GetFacts()
	res, err := template.EvaluateExpression(s, context)
	IncRender(c.HostContext.Host.Name, err != nil)
	common.DebugOutput("Evaluated expression %q -> %v. Error: %v", s, res, err)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression: %w", err)
	}
	return res, nil
}

// RenderValue renders an arbitrary value, templating strings recursively
// inside maps and sequences.
func (c *Closure) RenderValue(v interface{}) (interface{}, error) {
	context := c.GetFacts()
	rendered, err := template.Render(v, context)
	IncRender(c.HostContext.Host.Name, err != nil)
	return rendered, err
}

// ShouldExecute evaluates a task's when guard. An empty guard always runs.
func (c *Closure) ShouldExecute(when string) (bool, error) {
	if when == "" {
		return true, nil
	}
	context := c.GetFacts()
	ok, err := template.EvaluateCondition(when, context)
	IncRender(c.HostContext.Host.Name, err != nil)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate condition %q: %w", when, err)
	}
	return ok, nil
}

// RenderParams renders every templated string inside the raw task
// parameters, preserving the structure. Rendering is atomic: on error no
// partial parameters are returned.
func (c *Closure) RenderParams(params map[string]interface{}) (map[string]interface{}, error) {
	if params == nil {
		return map[string]interface{}{}, nil
	}
	context := c.GetFacts()
	rendered, err := template.Render(params, context)
	IncRender(c.HostContext.Host.Name, err != nil)
	if err != nil {
		return nil, err
	}
	out, ok := rendered.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("rendered parameters are not a mapping (got %T)", rendered)
	}
	return out, nil
}
