package template

import (
	"fmt"
	"strings"
)

type node interface {
	render(sb *strings.Builder, sc *scope) error
}

type textNode struct {
	text string
}

func (n *textNode) render(sb *strings.Builder, _ *scope) error {
	sb.WriteString(n.text)
	return nil
}

type outputNode struct {
	expr expression
}

func (n *outputNode) render(sb *strings.Builder, sc *scope) error {
	v, err := n.expr.eval(sc)
	if err != nil {
		return err
	}
	if v, err = requireDefined(v); err != nil {
		return err
	}
	sb.WriteString(Stringify(v))
	return nil
}

type ifBranch struct {
	cond expression
	body []node
}

type ifNode struct {
	branches []ifBranch
	elseBody []node
}

func (n *ifNode) render(sb *strings.Builder, sc *scope) error {
	for _, branch := range n.branches {
		v, err := branch.cond.eval(sc)
		if err != nil {
			return err
		}
		if v, err = requireDefined(v); err != nil {
			return err
		}
		if Truthy(v) {
			return renderNodes(branch.body, sb, sc)
		}
	}
	return renderNodes(n.elseBody, sb, sc)
}

type forNode struct {
	loopVar string
	seq     expression
	body    []node
}

func (n *forNode) render(sb *strings.Builder, sc *scope) error {
	v, err := n.seq.eval(sc)
	if err != nil {
		return err
	}
	if v, err = requireDefined(v); err != nil {
		return err
	}
	items, ok := asSeq(v)
	if !ok {
		return fmt.Errorf("cannot iterate over a %s value", KindOf(v))
	}
	for i, item := range items {
		frame := sc.child(map[string]interface{}{
			n.loopVar: item,
			"loop": map[string]interface{}{
				"index":  i + 1,
				"index0": i,
				"first":  i == 0,
				"last":   i == len(items)-1,
				"length": len(items),
			},
		})
		if err := renderNodes(n.body, sb, frame); err != nil {
			return err
		}
	}
	return nil
}

func renderNodes(nodes []node, sb *strings.Builder, sc *scope) error {
	for _, n := range nodes {
		if err := n.render(sb, sc); err != nil {
			return err
		}
	}
	return nil
}

// nodeParser assembles segments into a node tree, matching control block
// delimiters as it goes.
type nodeParser struct {
	segs []segment
	i    int
}

func (p *nodeParser) parseAll() ([]node, error) {
	nodes, term, err := p.parseUntil()
	if err != nil {
		return nil, err
	}
	if term != nil {
		return nil, &TemplateSyntaxError{Pos: term.pos, Detail: fmt.Sprintf("unexpected %q outside of a block", term.content)}
	}
	return nodes, nil
}

// parseUntil consumes segments until one of the given terminator keywords is
// found at this nesting level. It returns the terminating segment, or nil at
// end of input.
func (p *nodeParser) parseUntil(terminators ...string) ([]node, *segment, error) {
	var nodes []node
	for p.i < len(p.segs) {
		seg := p.segs[p.i]
		p.i++
		switch seg.kind {
		case segText:
			nodes = append(nodes, &textNode{text: seg.content})
		case segComment:
			// dropped entirely
		case segExpr:
			if seg.content == "" {
				return nil, nil, &TemplateSyntaxError{Pos: seg.pos, Detail: "empty expression"}
			}
			expr, err := parseExpr(seg.content, seg.pos)
			if err != nil {
				return nil, nil, err
			}
			nodes = append(nodes, &outputNode{expr: expr})
		case segStmt:
			keyword := seg.content
			if idx := strings.IndexAny(seg.content, " \t"); idx >= 0 {
				keyword = seg.content[:idx]
			}
			for _, term := range terminators {
				if keyword == term {
					return nodes, &seg, nil
				}
			}
			switch keyword {
			case "if":
				n, err := p.parseIf(seg)
				if err != nil {
					return nil, nil, err
				}
				nodes = append(nodes, n)
			case "for":
				n, err := p.parseFor(seg)
				if err != nil {
					return nil, nil, err
				}
				nodes = append(nodes, n)
			case "elif", "else", "endif", "endfor":
				return nil, nil, &TemplateSyntaxError{Pos: seg.pos, Detail: fmt.Sprintf("unexpected %q", keyword)}
			default:
				return nil, nil, &TemplateSyntaxError{Pos: seg.pos, Detail: fmt.Sprintf("unknown statement %q", keyword)}
			}
		}
	}
	return nodes, nil, nil
}

func (p *nodeParser) parseIf(open segment) (node, error) {
	cond, err := parseExpr(strings.TrimSpace(strings.TrimPrefix(open.content, "if")), open.pos)
	if err != nil {
		return nil, err
	}

	n := &ifNode{}
	current := ifBranch{cond: cond}
	for {
		body, term, err := p.parseUntil("elif", "else", "endif")
		if err != nil {
			return nil, err
		}
		if term == nil {
			return nil, &TemplateSyntaxError{Pos: open.pos, Detail: "unclosed 'if' block, expected 'endif'"}
		}
		current.body = body
		n.branches = append(n.branches, current)

		keyword := term.content
		if idx := strings.IndexAny(term.content, " \t"); idx >= 0 {
			keyword = term.content[:idx]
		}
		switch keyword {
		case "elif":
			cond, err := parseExpr(strings.TrimSpace(strings.TrimPrefix(term.content, "elif")), term.pos)
			if err != nil {
				return nil, err
			}
			current = ifBranch{cond: cond}
		case "else":
			elseBody, endTerm, err := p.parseUntil("endif")
			if err != nil {
				return nil, err
			}
			if endTerm == nil {
				return nil, &TemplateSyntaxError{Pos: term.pos, Detail: "unclosed 'else' block, expected 'endif'"}
			}
			n.elseBody = elseBody
			return n, nil
		case "endif":
			return n, nil
		}
	}
}

func (p *nodeParser) parseFor(open segment) (node, error) {
	// for <var> in <expr>
	rest := strings.TrimSpace(strings.TrimPrefix(open.content, "for"))
	parts := strings.SplitN(rest, " in ", 2)
	if len(parts) != 2 {
		return nil, &TemplateSyntaxError{Pos: open.pos, Detail: "malformed 'for' statement, expected 'for <var> in <sequence>'"}
	}
	loopVar := strings.TrimSpace(parts[0])
	if !isIdentifier(loopVar) {
		return nil, &TemplateSyntaxError{Pos: open.pos, Detail: fmt.Sprintf("invalid loop variable %q", loopVar)}
	}
	seq, err := parseExpr(strings.TrimSpace(parts[1]), open.pos)
	if err != nil {
		return nil, err
	}

	body, term, err := p.parseUntil("endfor")
	if err != nil {
		return nil, err
	}
	if term == nil {
		return nil, &TemplateSyntaxError{Pos: open.pos, Detail: "unclosed 'for' block, expected 'endfor'"}
	}
	return &forNode{loopVar: loopVar, seq: seq, body: body}, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			continue
		}
		if i > 0 && c >= '0' && c <= '9' {
			continue
		}
		return false
	}
	return true
}
