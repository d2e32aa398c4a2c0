package pkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bvankempen/rigging/pkg/config"
)

func closureFixture(t *testing.T) *Closure {
	t.Helper()
	inv := NewInventory()
	inv.EnsureGroup("web").Vars["region"] = "eu"
	inv.AddHost(&Host{Name: "web1", Vars: map[string]interface{}{"port": 8080}}, "web")
	require.NoError(t, inv.Finalize())

	host, err := inv.GetHost("web1")
	require.NoError(t, err)

	play := &Play{Hosts: "web", Vars: map[string]interface{}{"app": "shop"}}
	return &Closure{
		HostContext: NewHostContext(host),
		PlayContext: NewPlayContext(play, nil),
		Resolver:    NewResolver(inv, NewFactStore()),
		Config:      &config.Config{},
	}
}

func TestClosureTemplateString(t *testing.T) {
	c := closureFixture(t)

	out, err := c.TemplateString("{{ app }}-{{ inventory_hostname }}:{{ port }}")
	require.NoError(t, err)
	assert.Equal(t, "shop-web1:8080", out)

	out, err = c.TemplateString("")
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestClosureShouldExecute(t *testing.T) {
	c := closureFixture(t)

	ok, err := c.ShouldExecute("")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.ShouldExecute("region == 'eu'")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.ShouldExecute("port == 80")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.ShouldExecute("undefined_var")
	assert.Error(t, err)
}

func TestClosureRenderParams(t *testing.T) {
	c := closureFixture(t)

	params, err := c.RenderParams(map[string]interface{}{
		"name":  "{{ app }}",
		"port":  "{{ port }}",
		"paths": []interface{}{"/srv/{{ app }}"},
	})
	require.NoError(t, err)
	assert.Equal(t, "shop", params["name"])
	assert.Equal(t, 8080, params["port"])
	assert.Equal(t, []interface{}{"/srv/shop"}, params["paths"])

	params, err = c.RenderParams(nil)
	require.NoError(t, err)
	assert.Empty(t, params)

	_, err = c.RenderParams(map[string]interface{}{"bad": "{{ nope }}"})
	assert.Error(t, err)
}

func TestClosureForkIsolatesTaskVars(t *testing.T) {
	c := closureFixture(t)
	c.PlayContext.TaskVars = map[string]interface{}{}

	fork := c.Fork()
	fork.PlayContext.TaskVars["item"] = "x"
	fork.PlayContext.PushBlock(map[string]interface{}{"b": 1})

	_, err := c.GetFact("item")
	assert.Error(t, err)

	v, err := fork.GetFact("item")
	require.NoError(t, err)
	assert.Equal(t, "x", v)

	// play-level vars remain shared
	v, err = fork.GetFact("app")
	require.NoError(t, err)
	assert.Equal(t, "shop", v)
}
