package pkg

import (
	"strings"

	"github.com/bvankempen/rigging/pkg/common"
	"github.com/bvankempen/rigging/pkg/template"
)

// Tier is one rank in the fixed precedence ordering used to resolve
// conflicting variable definitions. Lower numeric value means higher
// precedence.
type Tier int

const (
	TierExtraVars Tier = iota + 1
	TierTaskVars
	TierBlockVars
	TierRoleVars
	TierPlayVars
	TierHostFacts
	TierHostVars
	TierGroupVars
	TierRoleDefaults
)

func (t Tier) String() string {
	switch t {
	case TierExtraVars:
		return "extra_vars"
	case TierTaskVars:
		return "task_vars"
	case TierBlockVars:
		return "block_vars"
	case TierRoleVars:
		return "role_vars"
	case TierPlayVars:
		return "play_vars"
	case TierHostFacts:
		return "host_facts"
	case TierHostVars:
		return "host_vars"
	case TierGroupVars:
		return "group_vars"
	case TierRoleDefaults:
		return "role_defaults"
	default:
		return "unknown"
	}
}

// Binding is a resolved variable together with the tier and source that
// supplied it. Used for explain-style introspection.
type Binding struct {
	Key    string
	Value  interface{}
	Tier   Tier
	Source string
}

// PlayContext carries the play-scoped variable state for evaluating one play
// against one host. It exists only for the duration of that pairing and is
// never shared between hosts.
type PlayContext struct {
	Play         *Play
	ExtraVars    map[string]interface{}
	PlayVars     map[string]interface{}
	RoleVars     map[string]interface{}
	RoleDefaults map[string]interface{}
	TaskVars     map[string]interface{}

	// blockVars is the enclosing block chain, outermost first. Lookups scan
	// it innermost first.
	blockVars []map[string]interface{}
}

// NewPlayContext builds the context for one (play, host) pairing. Role vars
// and defaults are aggregated over the play's roles in declaration order,
// later roles winning.
func NewPlayContext(play *Play, extraVars map[string]interface{}) *PlayContext {
	pc := &PlayContext{
		Play:         play,
		ExtraVars:    extraVars,
		PlayVars:     make(map[string]interface{}),
		RoleVars:     make(map[string]interface{}),
		RoleDefaults: make(map[string]interface{}),
	}
	if play != nil {
		for k, v := range play.Vars {
			pc.PlayVars[k] = v
		}
		for _, role := range play.Roles {
			for k, v := range role.Vars {
				pc.RoleVars[k] = v
			}
			for k, v := range role.Defaults {
				pc.RoleDefaults[k] = v
			}
		}
	}
	return pc
}

// PushBlock enters a block scope; its vars shadow enclosing blocks.
func (pc *PlayContext) PushBlock(vars map[string]interface{}) {
	pc.blockVars = append(pc.blockVars, vars)
}

// PopBlock leaves the innermost block scope.
func (pc *PlayContext) PopBlock() {
	if len(pc.blockVars) > 0 {
		pc.blockVars = pc.blockVars[:len(pc.blockVars)-1]
	}
}

// Fork returns a copy sharing the play-level maps but with its own task vars
// and block chain, so per-task state never leaks between tasks.
func (pc *PlayContext) Fork() *PlayContext {
	clone := *pc
	clone.TaskVars = make(map[string]interface{}, len(pc.TaskVars))
	for k, v := range pc.TaskVars {
		clone.TaskVars[k] = v
	}
	clone.blockVars = append([]map[string]interface{}(nil), pc.blockVars...)
	return &clone
}

// tierProvider exposes one precedence tier as a uniform lookup. Resolution
// is a single ordered scan over these.
type tierProvider struct {
	tier   Tier
	lookup func(key string) (interface{}, bool, string)
	merge  func(into map[string]interface{})
}

// Resolver computes effective variable mappings for (host, play context)
// pairs by merging all applicable scopes in precedence order.
type Resolver struct {
	inventory *Inventory
	facts     *FactStore
}

func NewResolver(inventory *Inventory, facts *FactStore) *Resolver {
	return &Resolver{inventory: inventory, facts: facts}
}

func staticProvider(tier Tier, source string, vars map[string]interface{}) tierProvider {
	return tierProvider{
		tier: tier,
		lookup: func(key string) (interface{}, bool, string) {
			v, ok := vars[key]
			return v, ok, source
		},
		merge: func(into map[string]interface{}) {
			for k, v := range vars {
				into[k] = v
			}
		},
	}
}

// providers returns the tiers applicable to (host, pc), highest precedence
// first.
func (r *Resolver) providers(host *Host, pc *PlayContext) []tierProvider {
	if pc == nil {
		pc = &PlayContext{}
	}

	blockChain := pc.blockVars
	blockProvider := tierProvider{
		tier: TierBlockVars,
		lookup: func(key string) (interface{}, bool, string) {
			// innermost block first
			for i := len(blockChain) - 1; i >= 0; i-- {
				if v, ok := blockChain[i][key]; ok {
					return v, true, "block"
				}
			}
			return nil, false, ""
		},
		merge: func(into map[string]interface{}) {
			for _, block := range blockChain {
				for k, v := range block {
					into[k] = v
				}
			}
		},
	}

	factsProvider := tierProvider{
		tier: TierHostFacts,
		lookup: func(key string) (interface{}, bool, string) {
			v, ok := r.facts.Lookup(host.Name, key)
			return v, ok, host.Name
		},
		merge: func(into map[string]interface{}) {
			if facts, ok := r.facts.Get(host.Name); ok {
				for k, v := range facts {
					into[k] = v
				}
			}
		},
	}

	groupProvider := tierProvider{
		tier: TierGroupVars,
		lookup: func(key string) (interface{}, bool, string) {
			groups, err := r.inventory.GroupPrecedence(host.Name)
			if err != nil {
				return nil, false, ""
			}
			// most specific group first
			for _, g := range groups {
				if v, ok := g.Vars[key]; ok {
					return v, true, g.Name
				}
			}
			return nil, false, ""
		},
		merge: func(into map[string]interface{}) {
			if merged, err := r.inventory.GroupVarsFor(host.Name); err == nil {
				for k, v := range merged {
					into[k] = v
				}
			}
		},
	}

	return []tierProvider{
		staticProvider(TierExtraVars, "extra", pc.ExtraVars),
		staticProvider(TierTaskVars, "task", pc.TaskVars),
		blockProvider,
		staticProvider(TierRoleVars, "role", pc.RoleVars),
		staticProvider(TierPlayVars, "play", pc.PlayVars),
		factsProvider,
		staticProvider(TierHostVars, host.Name, host.Vars),
		groupProvider,
		staticProvider(TierRoleDefaults, "role", pc.RoleDefaults),
	}
}

// Resolve produces the single effective variable mapping for (host, pc),
// including the read-only accessor variables. Tiers are merged lowest
// precedence first so higher tiers always win.
func (r *Resolver) Resolve(host *Host, pc *PlayContext) map[string]interface{} {
	providers := r.providers(host, pc)
	effective := make(map[string]interface{})
	for i := len(providers) - 1; i >= 0; i-- {
		providers[i].merge(effective)
	}
	r.injectAccessors(host, effective)
	IncResolution(host.Name)
	return effective
}

// Lookup resolves one key for (host, pc) by scanning tiers highest first.
// A key no tier defines fails with UndefinedVariableError.
func (r *Resolver) Lookup(host *Host, pc *PlayContext, key string) (interface{}, error) {
	b, err := r.Explain(host, pc, key)
	if err != nil {
		return nil, err
	}
	return b.Value, nil
}

// Explain is Lookup plus the tier and source identity that supplied the
// value.
func (r *Resolver) Explain(host *Host, pc *PlayContext, key string) (*Binding, error) {
	for _, provider := range r.providers(host, pc) {
		if v, ok, source := provider.lookup(key); ok {
			common.DebugOutput("Resolved %q for host %q from tier %s (%s)", key, host.Name, provider.tier, source)
			return &Binding{Key: key, Value: v, Tier: provider.tier, Source: source}, nil
		}
	}
	return nil, &template.UndefinedVariableError{Name: key}
}

// HostView is the cross-host view of a host's variables: only the
// inventory-level and fact-level tiers, since play/block/task scope belongs
// to the requesting execution, not the target host.
func (r *Resolver) HostView(host *Host) map[string]interface{} {
	view := make(map[string]interface{})
	if merged, err := r.inventory.GroupVarsFor(host.Name); err == nil {
		for k, v := range merged {
			view[k] = v
		}
	}
	for k, v := range host.Vars {
		view[k] = v
	}
	if facts, ok := r.facts.Get(host.Name); ok {
		for k, v := range facts {
			view[k] = v
		}
	}
	view["inventory_hostname"] = host.Name
	return view
}

// injectAccessors adds the read-only accessor variables. They are not
// overridable from any tier.
func (r *Resolver) injectAccessors(host *Host, effective map[string]interface{}) {
	effective["inventory_hostname"] = host.Name
	effective["inventory_hostname_short"] = shortHostname(host.Name)
	effective["groups"] = r.groupsMap()
	effective["hostvars"] = &HostVars{resolver: r}
}

func (r *Resolver) groupsMap() map[string]interface{} {
	groups := make(map[string]interface{})
	for _, name := range r.inventory.AllGroups() {
		hostNames, err := r.inventory.HostsInGroup(name)
		if err != nil {
			continue
		}
		members := make([]interface{}, len(hostNames))
		for i, hn := range hostNames {
			members[i] = hn
		}
		groups[name] = members
	}
	return groups
}

func shortHostname(name string) string {
	if idx := strings.Index(name, "."); idx > 0 {
		return name[:idx]
	}
	return name
}

// HostVars is the cross-host accessor injected as "hostvars". Indexing it
// with a host name yields that host's inventory- and fact-level variables;
// unknown hosts fail with UnknownHostError. It is read-only by construction.
type HostVars struct {
	resolver *Resolver
}

// TemplateGet implements template.Mapper.
func (hv *HostVars) TemplateGet(name string) (interface{}, bool, error) {
	host, err := hv.resolver.inventory.GetHost(name)
	if err != nil {
		return nil, false, err
	}
	return hv.resolver.HostView(host), true, nil
}
