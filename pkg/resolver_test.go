package pkg

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bvankempen/rigging/pkg/template"
)

// factTierCollector supplies the fact-tier value for the precedence fixture.
type factTierCollector struct{}

func (factTierCollector) Collect(context.Context, *Host, []string) (map[string]interface{}, error) {
	return map[string]interface{}{"k": "fact"}, nil
}

// precedenceFixture defines the same key at every tier so each test can peel
// tiers off from the top and watch the next one win.
func precedenceFixture(t *testing.T) (*Resolver, *Host, *PlayContext) {
	t.Helper()

	inv := NewInventory()
	inv.EnsureGroup("web").Vars["k"] = "group"
	inv.AddHost(&Host{Name: "web1", Vars: map[string]interface{}{"k": "host"}}, "web")
	require.NoError(t, inv.Finalize())

	facts := NewFactStore()
	_, err := facts.Gather(context.Background(), &Host{Name: "web1"}, factTierCollector{}, nil)
	require.NoError(t, err)

	play := &Play{
		Name:  "p",
		Hosts: "web",
		Vars:  map[string]interface{}{"k": "play"},
		Roles: []*Role{{
			Name:     "r",
			Vars:     map[string]interface{}{"k": "role"},
			Defaults: map[string]interface{}{"k": "default"},
		}},
	}

	pc := NewPlayContext(play, map[string]interface{}{"k": "extra"})
	pc.TaskVars = map[string]interface{}{"k": "task"}
	pc.PushBlock(map[string]interface{}{"k": "block"})

	host, err := inv.GetHost("web1")
	require.NoError(t, err)
	return NewResolver(inv, facts), host, pc
}

func TestPrecedenceOrder(t *testing.T) {
	resolver, host, pc := precedenceFixture(t)

	// peel tiers off top to bottom; after each removal the next tier wins
	steps := []struct {
		expected string
		tier     Tier
		peel     func()
	}{
		{"extra", TierExtraVars, func() { delete(pc.ExtraVars, "k") }},
		{"task", TierTaskVars, func() { delete(pc.TaskVars, "k") }},
		{"block", TierBlockVars, func() { pc.PopBlock() }},
		{"role", TierRoleVars, func() { delete(pc.RoleVars, "k") }},
		{"play", TierPlayVars, func() { delete(pc.PlayVars, "k") }},
		{"fact", TierHostFacts, func() { resolver.facts.Invalidate(host.Name) }},
		{"host", TierHostVars, func() { delete(host.Vars, "k") }},
		{"group", TierGroupVars, func() {
			groups, err := resolver.inventory.GroupPrecedence(host.Name)
			require.NoError(t, err)
			for _, g := range groups {
				delete(g.Vars, "k")
			}
		}},
		{"default", TierRoleDefaults, func() { delete(pc.RoleDefaults, "k") }},
	}

	for _, step := range steps {
		effective := resolver.Resolve(host, pc)
		assert.Equal(t, step.expected, effective["k"], "resolve at tier %s", step.tier)

		binding, err := resolver.Explain(host, pc, "k")
		require.NoError(t, err)
		assert.Equal(t, step.tier, binding.Tier)
		assert.Equal(t, step.expected, binding.Value)

		step.peel()
	}

	// nothing left defines k
	_, err := resolver.Lookup(host, pc, "k")
	var undefErr *template.UndefinedVariableError
	require.True(t, errors.As(err, &undefErr))
	assert.Equal(t, "k", undefErr.Name)
}

func TestResolveAndLookupAgree(t *testing.T) {
	resolver, host, pc := precedenceFixture(t)

	effective := resolver.Resolve(host, pc)
	for _, key := range []string{"k"} {
		looked, err := resolver.Lookup(host, pc, key)
		require.NoError(t, err)
		if diff := cmp.Diff(effective[key], looked); diff != "" {
			t.Errorf("Resolve and Lookup disagree for %q:\n%s", key, diff)
		}
	}
}

func TestInnermostBlockWins(t *testing.T) {
	resolver, host, pc := precedenceFixture(t)
	pc.PushBlock(map[string]interface{}{"k": "inner-block"})

	delete(pc.ExtraVars, "k")
	delete(pc.TaskVars, "k")

	binding, err := resolver.Explain(host, pc, "k")
	require.NoError(t, err)
	assert.Equal(t, TierBlockVars, binding.Tier)
	assert.Equal(t, "inner-block", binding.Value)

	pc.PopBlock()
	binding, err = resolver.Explain(host, pc, "k")
	require.NoError(t, err)
	assert.Equal(t, "block", binding.Value)
}

func TestAccessorVariables(t *testing.T) {
	inv := NewInventory()
	inv.AddHost(&Host{Name: "web1.example.com"}, "web")
	inv.AddHost(&Host{Name: "db1"}, "db")
	require.NoError(t, inv.Finalize())

	resolver := NewResolver(inv, NewFactStore())
	host, err := inv.GetHost("web1.example.com")
	require.NoError(t, err)

	effective := resolver.Resolve(host, nil)
	assert.Equal(t, "web1.example.com", effective["inventory_hostname"])
	assert.Equal(t, "web1", effective["inventory_hostname_short"])

	groups, ok := effective["groups"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{"web1.example.com"}, groups["web"])
	assert.ElementsMatch(t, []interface{}{"web1.example.com", "db1"}, groups["all"].([]interface{}))
}

func TestAccessorsAreNotOverridable(t *testing.T) {
	inv := NewInventory()
	inv.AddHost(&Host{Name: "h1"})
	require.NoError(t, inv.Finalize())
	resolver := NewResolver(inv, NewFactStore())
	host, err := inv.GetHost("h1")
	require.NoError(t, err)

	pc := NewPlayContext(nil, map[string]interface{}{"inventory_hostname": "spoofed"})
	effective := resolver.Resolve(host, pc)
	assert.Equal(t, "h1", effective["inventory_hostname"])
}

func TestHostvarsCrossHostLookup(t *testing.T) {
	inv := NewInventory()
	inv.EnsureGroup("web").Vars["region"] = "eu"
	inv.AddHost(&Host{Name: "web1", Vars: map[string]interface{}{"port": 8080}}, "web")
	inv.AddHost(&Host{Name: "web2"}, "web")
	require.NoError(t, inv.Finalize())

	facts := NewFactStore()
	facts.Set("web2", "kernel", "6.1")
	resolver := NewResolver(inv, facts)

	host, err := inv.GetHost("web1")
	require.NoError(t, err)
	effective := resolver.Resolve(host, nil)

	out, err := template.TemplateString("{{ hostvars['web2'].kernel }}", effective)
	require.NoError(t, err)
	assert.Equal(t, "6.1", out)

	// group-level vars are visible through hostvars
	out, err = template.TemplateString("{{ hostvars['web2'].region }}", effective)
	require.NoError(t, err)
	assert.Equal(t, "eu", out)

	// a host's own view through hostvars matches its direct inventory view
	direct := resolver.HostView(host)
	viaAccessor, found, err := (&HostVars{resolver: resolver}).TemplateGet("web1")
	require.NoError(t, err)
	require.True(t, found)
	if diff := cmp.Diff(direct, viaAccessor); diff != "" {
		t.Errorf("hostvars view differs from direct view:\n%s", diff)
	}
}

func TestHostvarsUnknownHost(t *testing.T) {
	inv := NewInventory()
	inv.AddHost(&Host{Name: "web1"})
	require.NoError(t, inv.Finalize())
	resolver := NewResolver(inv, NewFactStore())

	host, err := inv.GetHost("web1")
	require.NoError(t, err)
	effective := resolver.Resolve(host, nil)

	_, err = template.TemplateString("{{ hostvars['ghost'].x }}", effective)
	var unknownErr *UnknownHostError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "ghost", unknownErr.Host)
}

func TestHostViewExcludesPlayScope(t *testing.T) {
	inv := NewInventory()
	inv.AddHost(&Host{Name: "web1", Vars: map[string]interface{}{"port": 8080}})
	require.NoError(t, inv.Finalize())
	resolver := NewResolver(inv, NewFactStore())

	host, err := inv.GetHost("web1")
	require.NoError(t, err)
	view := resolver.HostView(host)

	assert.Equal(t, 8080, view["port"])
	assert.Equal(t, "web1", view["inventory_hostname"])
	assert.NotContains(t, view, "hostvars")
	assert.NotContains(t, view, "groups")
}

func TestUngatheredFactIsUndefinedCrossHost(t *testing.T) {
	inv := NewInventory()
	inv.AddHost(&Host{Name: "a"})
	inv.AddHost(&Host{Name: "b"})
	require.NoError(t, inv.Finalize())

	resolver := NewResolver(inv, NewFactStore())
	hostA, err := inv.GetHost("a")
	require.NoError(t, err)
	effective := resolver.Resolve(hostA, nil)

	// b exists but its facts were never gathered; the reference does not
	// block, it surfaces as an undefined variable
	_, err = template.TemplateString("{{ hostvars['b'].kernel }}", effective)
	var undefErr *template.UndefinedVariableError
	require.ErrorAs(t, err, &undefErr)

	// and a default still catches it
	out, err := template.TemplateString("{{ hostvars['b'].kernel | default('unknown') }}", effective)
	require.NoError(t, err)
	assert.Equal(t, "unknown", out)
}

func TestRegisteredResultVisibleCrossHost(t *testing.T) {
	inv := NewInventory()
	inv.AddHost(&Host{Name: "a"})
	inv.AddHost(&Host{Name: "b"})
	require.NoError(t, inv.Finalize())

	facts := NewFactStore()
	facts.Set("a", "deploy_result", map[string]interface{}{"rc": 0, "stdout": "ok"})
	resolver := NewResolver(inv, facts)

	hostB, err := inv.GetHost("b")
	require.NoError(t, err)
	effective := resolver.Resolve(hostB, nil)

	out, err := template.TemplateString("{{ hostvars['a'].deploy_result.stdout }}", effective)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}
