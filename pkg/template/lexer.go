package template

import (
	"fmt"
	"strings"
	"unicode"
)

type segmentKind int

const (
	segText segmentKind = iota
	segExpr
	segStmt
	segComment
)

// segment is one region of a template: literal text, an {{ expression }},
// a {% statement %} or a {# comment #}.
type segment struct {
	kind    segmentKind
	content string
	pos     int
}

var openers = []struct {
	open  string
	close string
	kind  segmentKind
}{
	{"{{", "}}", segExpr},
	{"{%", "%}", segStmt},
	{"{#", "#}", segComment},
}

// scanTemplate splits the template source into segments. Unterminated
// brackets fail before any rendering happens.
func scanTemplate(src string) ([]segment, error) {
	var segs []segment
	pos := 0
	for pos < len(src) {
		next := -1
		var opener struct {
			open  string
			close string
			kind  segmentKind
		}
		for _, o := range openers {
			if i := strings.Index(src[pos:], o.open); i >= 0 && (next == -1 || i < next) {
				next = i
				opener = o
			}
		}
		if next == -1 {
			segs = append(segs, segment{kind: segText, content: src[pos:], pos: pos})
			break
		}
		if next > 0 {
			segs = append(segs, segment{kind: segText, content: src[pos : pos+next], pos: pos})
		}
		start := pos + next
		body := start + len(opener.open)
		end := strings.Index(src[body:], opener.close)
		if end == -1 {
			return nil, &TemplateSyntaxError{Pos: start, Detail: fmt.Sprintf("unterminated %q", opener.open)}
		}
		segs = append(segs, segment{
			kind:    opener.kind,
			content: strings.TrimSpace(src[body : body+end]),
			pos:     start,
		})
		pos = body + end + len(opener.close)
	}
	return segs, nil
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokString
	tokOp
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// multi-character operators first so tokenization is greedy
var operators = []string{"==", "!=", "<=", ">=", "<", ">", "|", ".", ",", "(", ")", "[", "]"}

// tokenizeExpr turns the inside of an expression or statement into tokens.
// base is the offset of the expression within the template, used for error
// positions.
func tokenizeExpr(src string, base int) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := rune(src[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '\'' || c == '"':
			quote := src[i]
			j := i + 1
			var sb strings.Builder
			for j < len(src) && src[j] != quote {
				if src[j] == '\\' && j+1 < len(src) {
					j++
					switch src[j] {
					case 'n':
						sb.WriteByte('\n')
					case 't':
						sb.WriteByte('\t')
					case 'r':
						sb.WriteByte('\r')
					case '\\', '\'', '"':
						sb.WriteByte(src[j])
					default:
						// unknown escapes keep the backslash
						sb.WriteByte('\\')
						sb.WriteByte(src[j])
					}
					j++
					continue
				}
				sb.WriteByte(src[j])
				j++
			}
			if j >= len(src) {
				return nil, &TemplateSyntaxError{Pos: base + i, Detail: "unterminated string literal"}
			}
			toks = append(toks, token{kind: tokString, text: sb.String(), pos: base + i})
			i = j + 1
		case unicode.IsDigit(c):
			j := i
			for j < len(src) && (unicode.IsDigit(rune(src[j])) || src[j] == '.') {
				j++
			}
			toks = append(toks, token{kind: tokNumber, text: src[i:j], pos: base + i})
			i = j
		case unicode.IsLetter(c) || c == '_':
			j := i
			for j < len(src) && (unicode.IsLetter(rune(src[j])) || unicode.IsDigit(rune(src[j])) || src[j] == '_') {
				j++
			}
			toks = append(toks, token{kind: tokIdent, text: src[i:j], pos: base + i})
			i = j
		default:
			matched := false
			for _, op := range operators {
				if strings.HasPrefix(src[i:], op) {
					toks = append(toks, token{kind: tokOp, text: op, pos: base + i})
					i += len(op)
					matched = true
					break
				}
			}
			if !matched {
				return nil, &TemplateSyntaxError{Pos: base + i, Detail: fmt.Sprintf("unexpected character %q", c)}
			}
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: base + len(src)})
	return toks, nil
}
