package template

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateString(t *testing.T) {
	ctx := map[string]interface{}{
		"name":    "web1",
		"port":    8080,
		"enabled": true,
		"tags":    []interface{}{"nginx", "git"},
		"server": map[string]interface{}{
			"host": "10.0.0.1",
			"tls":  map[string]interface{}{"cert": "/etc/ssl/web1.pem"},
		},
	}

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{
			name:     "plain text untouched",
			template: "no markers here",
			expected: "no markers here",
		},
		{
			name:     "simple substitution",
			template: "host={{ name }}",
			expected: "host=web1",
		},
		{
			name:     "number renders without decimal",
			template: "port={{ port }}",
			expected: "port=8080",
		},
		{
			name:     "dotted attribute access",
			template: "{{ server.host }}",
			expected: "10.0.0.1",
		},
		{
			name:     "nested attribute access",
			template: "{{ server.tls.cert }}",
			expected: "/etc/ssl/web1.pem",
		},
		{
			name:     "index access",
			template: "{{ tags[0] }}",
			expected: "nginx",
		},
		{
			name:     "string key index",
			template: "{{ server['host'] }}",
			expected: "10.0.0.1",
		},
		{
			name:     "filter pipeline",
			template: "{{ name | upper }}",
			expected: "WEB1",
		},
		{
			name:     "chained filters",
			template: "{{ tags | join(',') | upper }}",
			expected: "NGINX,GIT",
		},
		{
			name:     "comment stripped",
			template: "a{# ignored #}b",
			expected: "ab",
		},
		{
			name:     "if true branch",
			template: "{% if enabled %}on{% else %}off{% endif %}",
			expected: "on",
		},
		{
			name:     "if comparison",
			template: "{% if port > 80 %}high{% endif %}",
			expected: "high",
		},
		{
			name:     "elif branch",
			template: "{% if port == 80 %}http{% elif port == 8080 %}alt{% else %}other{% endif %}",
			expected: "alt",
		},
		{
			name:     "for loop with separator",
			template: "{% for t in tags %}{{ t }};{% endfor %}",
			expected: "nginx;git;",
		},
		{
			name:     "loop index is one based",
			template: "{% for t in tags %}{{ loop.index }}:{{ t }} {% endfor %}",
			expected: "1:nginx 2:git ",
		},
		{
			name:     "loop first and last",
			template: "{% for t in tags %}{% if not loop.first %},{% endif %}{{ t }}{% endfor %}",
			expected: "nginx,git",
		},
		{
			name:     "membership test",
			template: "{% if 'git' in tags %}yes{% endif %}",
			expected: "yes",
		},
		{
			name:     "boolean operators",
			template: "{% if enabled and port != 80 %}ok{% endif %}",
			expected: "ok",
		},
		{
			name:     "default on undefined",
			template: "{{ missing | default('fallback') }}",
			expected: "fallback",
		},
		{
			name:     "default untouched when defined",
			template: "{{ name | default('fallback') }}",
			expected: "web1",
		},
		{
			name:     "default short alias",
			template: "{{ missing | d('x') }}",
			expected: "x",
		},
		{
			name:     "default on undefined attribute path",
			template: "{{ server.missing.deeper | default('none') }}",
			expected: "none",
		},
		{
			name:     "default on undefined bracketed path",
			template: "{{ missing['a'] | default('x') }}",
			expected: "x",
		},
		{
			name:     "bracket and dot forms agree on undefined",
			template: "{{ missing.a | default('x') }}-{{ missing['a'] | default('x') }}",
			expected: "x-x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TemplateString(tt.template, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestUndefinedVariable(t *testing.T) {
	ctx := map[string]interface{}{
		"name":   "web1",
		"server": map[string]interface{}{"host": "10.0.0.1"},
	}

	tests := []struct {
		name     string
		template string
	}{
		{"bare undefined", "{{ missing }}"},
		{"undefined in concatenation", "x={{ missing }}"},
		{"undefined through non-default filter", "{{ missing | upper }}"},
		{"undefined attribute chain", "{{ server.nosuch.attr }}"},
		{"undefined bracketed access", "{{ missing['a'] }}"},
		{"undefined in condition", "{% if missing %}x{% endif %}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TemplateString(tt.template, ctx)
			var undefErr *UndefinedVariableError
			require.Error(t, err)
			assert.True(t, errors.As(err, &undefErr), "expected UndefinedVariableError, got %v", err)
		})
	}
}

func TestSyntaxErrors(t *testing.T) {
	tests := []struct {
		name     string
		template string
	}{
		{"unterminated expression", "{{ name"},
		{"unterminated statement", "{% if x %}y"},
		{"unterminated comment", "{# never closed"},
		{"endif without if", "{% endif %}"},
		{"endfor without for", "x{% endfor %}"},
		{"else outside if", "{% else %}"},
		{"malformed for", "{% for in tags %}{% endfor %}"},
		{"dangling operator", "{{ a == }}"},
		{"unbalanced paren", "{{ (a }}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.template)
			var synErr *TemplateSyntaxError
			require.Error(t, err)
			assert.True(t, errors.As(err, &synErr), "expected TemplateSyntaxError, got %v", err)
		})
	}
}

func TestStringLiteralEscapes(t *testing.T) {
	tests := []struct {
		name     string
		template string
		expected string
	}{
		{"newline escape", `{{ 'a\nb' }}`, "a\nb"},
		{"tab escape", `{{ "col1\tcol2" }}`, "col1\tcol2"},
		{"escaped single quote", `{{ 'it\'s' }}`, "it's"},
		{"escaped backslash", `{{ 'a\\b' }}`, `a\b`},
		{"unknown escape keeps backslash", `{{ 'a\db' }}`, `a\db`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TemplateString(tt.template, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestUnknownFilter(t *testing.T) {
	_, err := TemplateString("{{ name | nosuchfilter }}", map[string]interface{}{"name": "x"})
	var filterErr *UnknownFilterError
	require.Error(t, err)
	require.True(t, errors.As(err, &filterErr))
	assert.Equal(t, "nosuchfilter", filterErr.Name)
}

func TestAtomicRendering(t *testing.T) {
	// The failure sits after renderable text; no partial output may escape.
	out, err := TemplateString("prefix {{ missing }}", map[string]interface{}{})
	require.Error(t, err)
	assert.Equal(t, "", out)
}

func TestExecuteValue(t *testing.T) {
	ctx := map[string]interface{}{
		"count": 3,
		"flag":  true,
		"items": []interface{}{"a", "b"},
	}

	tests := []struct {
		name     string
		template string
		expected interface{}
	}{
		{"sole int keeps type", "{{ count }}", 3},
		{"sole bool keeps type", "{{ flag }}", true},
		{"sole list keeps type", "{{ items }}", []interface{}{"a", "b"}},
		{"surrounded expression is a string", "n={{ count }}", "n=3"},
		{"literal stays literal", "plain", "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl, err := Parse(tt.template)
			require.NoError(t, err)
			got, err := tmpl.ExecuteValue(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestEvaluateCondition(t *testing.T) {
	ctx := map[string]interface{}{
		"port":  8080,
		"name":  "web1",
		"empty": "",
		"list":  []interface{}{"a"},
		"none":  nil,
	}

	tests := []struct {
		name     string
		expr     string
		expected bool
	}{
		{"comparison", "port == 8080", true},
		{"negated comparison", "port != 8080", false},
		{"truthy string", "name", true},
		{"empty string is falsy", "empty", false},
		{"non-empty list is truthy", "list", true},
		{"none is falsy", "none", false},
		{"not", "not empty", true},
		{"and short-circuit", "empty and missing", false},
		{"or short-circuit", "name or missing", true},
		{"in operator", "'a' in list", true},
		{"not in operator", "'b' not in list", true},
		{"string comparison", "name == 'web1'", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvaluateCondition(tt.expr, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestRenderStructure(t *testing.T) {
	ctx := map[string]interface{}{"user": "deploy", "uid": 1000}

	in := map[string]interface{}{
		"name": "{{ user }}",
		"uid":  "{{ uid }}",
		"keys": []interface{}{"{{ user }}@a", "{{ user }}@b"},
		"deep": map[string]interface{}{"home": "/home/{{ user }}"},
		"raw":  42,
	}

	rendered, err := Render(in, ctx)
	require.NoError(t, err)

	out, ok := rendered.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "deploy", out["name"])
	assert.Equal(t, 1000, out["uid"])
	assert.Equal(t, []interface{}{"deploy@a", "deploy@b"}, out["keys"])
	assert.Equal(t, map[string]interface{}{"home": "/home/deploy"}, out["deep"])
	assert.Equal(t, 42, out["raw"])
}

func TestRenderIsIdempotent(t *testing.T) {
	ctx := map[string]interface{}{"packages": []interface{}{"nginx", "git"}}
	tmpl, err := Parse("{% for p in packages %}{{ loop.index }}:{{ p }};{% endfor %}")
	require.NoError(t, err)

	first, err := tmpl.Execute(ctx)
	require.NoError(t, err)
	second, err := tmpl.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1:nginx;2:git;", first)
	assert.Equal(t, first, second)
}

func TestRenderStructureFailsAtomically(t *testing.T) {
	in := map[string]interface{}{
		"ok":  "{{ user }}",
		"bad": "{{ missing }}",
	}
	_, err := Render(in, map[string]interface{}{"user": "deploy"})
	require.Error(t, err)
}

type stubMapper struct {
	values map[string]interface{}
	err    error
}

func (m *stubMapper) TemplateGet(key string) (interface{}, bool, error) {
	if m.err != nil {
		return nil, false, m.err
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func TestMapperLookup(t *testing.T) {
	ctx := map[string]interface{}{
		"hosts": &stubMapper{values: map[string]interface{}{
			"web1": map[string]interface{}{"addr": "10.0.0.1"},
		}},
	}

	out, err := TemplateString("{{ hosts['web1'].addr }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", out)

	// A missing mapper key behaves like any undefined variable.
	out, err = TemplateString("{{ hosts['db9'] | default('absent') }}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "absent", out)
}

func TestMapperErrorPropagates(t *testing.T) {
	boom := errors.New("no such host")
	ctx := map[string]interface{}{"hosts": &stubMapper{err: boom}}

	_, err := TemplateString("{{ hosts['web1'] }}", ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}
