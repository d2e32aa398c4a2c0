package pkg

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/bvankempen/rigging/pkg/common"
)

// AllGroup is the implicit universal ancestor of every group and host.
const AllGroup = "all"

// Host represents a single managed host in the inventory.
type Host struct {
	Name    string
	Address string
	IsLocal bool
	Vars    map[string]interface{}
}

func (h *Host) String() string {
	return h.Name
}

// Prepare initializes the host's maps and derives locality from the address.
func (h *Host) Prepare() {
	if h.Vars == nil {
		h.Vars = make(map[string]interface{})
	}
	if h.Address == "localhost" || h.Address == "127.0.0.1" || h.Address == "" {
		h.IsLocal = true
	}
}

// Group represents a group of hosts. Groups form a DAG through parent/child
// edges; "all" is the root.
type Group struct {
	Name string
	Vars map[string]interface{}

	hosts    []string
	children []string
	parents  []string
	index    int
}

// Inventory is the graph of hosts and groups with their static variable
// assignments. It is read-only after Finalize and safe for concurrent reads.
type Inventory struct {
	hosts      map[string]*Host
	hostOrder  []string
	groups     map[string]*Group
	groupOrder []string

	// topo holds all group names in ancestors-first topological order with
	// declaration order breaking ties; computed by Finalize.
	topo      []string
	finalized bool
}

// NewInventory creates an empty inventory containing only the implicit "all"
// group.
func NewInventory() *Inventory {
	inv := &Inventory{
		hosts:  make(map[string]*Host),
		groups: make(map[string]*Group),
	}
	inv.EnsureGroup(AllGroup)
	return inv
}

// EnsureGroup returns the named group, creating it in declaration order if it
// does not exist yet.
func (inv *Inventory) EnsureGroup(name string) *Group {
	if g, ok := inv.groups[name]; ok {
		return g
	}
	g := &Group{
		Name:  name,
		Vars:  make(map[string]interface{}),
		index: len(inv.groupOrder),
	}
	inv.groups[name] = g
	inv.groupOrder = append(inv.groupOrder, name)
	return g
}

// AddHost registers a host and attaches it to the given groups (or "all"
// when none are given). Registering the same name twice merges variables,
// later assignments winning.
func (inv *Inventory) AddHost(host *Host, groups ...string) *Host {
	host.Prepare()
	existing, ok := inv.hosts[host.Name]
	if !ok {
		inv.hosts[host.Name] = host
		inv.hostOrder = append(inv.hostOrder, host.Name)
		existing = host
	} else {
		if host.Address != "" {
			existing.Address = host.Address
			existing.IsLocal = host.IsLocal
		}
		for k, v := range host.Vars {
			existing.Vars[k] = v
		}
	}
	if len(groups) == 0 {
		groups = []string{AllGroup}
	}
	for _, groupName := range groups {
		g := inv.EnsureGroup(groupName)
		if !containsString(g.hosts, host.Name) {
			g.hosts = append(g.hosts, host.Name)
		}
	}
	return existing
}

// AddChild records a parent/child edge between two groups, creating either
// side as needed. Cycles are only detected by Finalize.
func (inv *Inventory) AddChild(parent, child string) {
	p := inv.EnsureGroup(parent)
	c := inv.EnsureGroup(child)
	if !containsString(p.children, child) {
		p.children = append(p.children, child)
	}
	if !containsString(c.parents, parent) {
		c.parents = append(c.parents, parent)
	}
}

// Finalize links parentless groups under "all", rejects cycles with
// CyclicGroupError and computes the topological group order used for
// variable precedence. It must be called once after loading.
func (inv *Inventory) Finalize() error {
	for _, name := range inv.groupOrder {
		if name == AllGroup {
			continue
		}
		g := inv.groups[name]
		if len(g.parents) == 0 {
			inv.AddChild(AllGroup, name)
		}
	}

	if cycle := inv.findCycle(); cycle != nil {
		return &CyclicGroupError{Cycle: cycle}
	}

	inv.topo = inv.topologicalOrder()
	inv.finalized = true
	common.LogDebug("Inventory finalized", map[string]interface{}{
		"hosts":  len(inv.hosts),
		"groups": len(inv.groups),
	})
	return nil
}

// findCycle runs a coloring DFS over child edges and returns the first cycle
// found, or nil.
func (inv *Inventory) findCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(inv.groups))
	var stack []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		color[name] = gray
		stack = append(stack, name)
		for _, child := range inv.groups[name].children {
			switch color[child] {
			case white:
				if visit(child) {
					return true
				}
			case gray:
				// found it: slice the stack from the first occurrence
				for i, n := range stack {
					if n == child {
						cycle = append(append([]string{}, stack[i:]...), child)
						return true
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
		return false
	}

	for _, name := range inv.groupOrder {
		if color[name] == white && visit(name) {
			return cycle
		}
	}
	return nil
}

// topologicalOrder returns all groups ancestors-first; among groups whose
// ancestors are all placed, declaration order decides. Must only run on an
// acyclic graph.
func (inv *Inventory) topologicalOrder() []string {
	indegree := make(map[string]int, len(inv.groups))
	for _, name := range inv.groupOrder {
		indegree[name] = len(inv.groups[name].parents)
	}

	ready := make([]string, 0, len(inv.groups))
	for _, name := range inv.groupOrder {
		if indegree[name] == 0 {
			ready = append(ready, name)
		}
	}

	order := make([]string, 0, len(inv.groups))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool {
			return inv.groups[ready[i]].index < inv.groups[ready[j]].index
		})
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)
		for _, child := range inv.groups[name].children {
			indegree[child]--
			if indegree[child] == 0 {
				ready = append(ready, child)
			}
		}
	}
	return order
}

// GetHost returns a host by name, failing with UnknownHostError.
func (inv *Inventory) GetHost(name string) (*Host, error) {
	host, ok := inv.hosts[name]
	if !ok {
		return nil, &UnknownHostError{Host: name}
	}
	return host, nil
}

// Hosts returns all hosts in declaration order.
func (inv *Inventory) Hosts() []*Host {
	hosts := make([]*Host, 0, len(inv.hostOrder))
	for _, name := range inv.hostOrder {
		hosts = append(hosts, inv.hosts[name])
	}
	return hosts
}

// AllGroups returns all group names in declaration order.
func (inv *Inventory) AllGroups() []string {
	return append([]string(nil), inv.groupOrder...)
}

// HostsInGroup returns the names of the group's transitive members in
// inventory declaration order.
func (inv *Inventory) HostsInGroup(name string) ([]string, error) {
	members, err := inv.MembersOf(name)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(members))
	for _, h := range members {
		names = append(names, h.Name)
	}
	return names, nil
}

// MembersOf returns the transitive host membership of a group, in inventory
// declaration order.
func (inv *Inventory) MembersOf(name string) ([]*Host, error) {
	if _, ok := inv.groups[name]; !ok {
		return nil, &UnknownGroupError{Group: name}
	}

	seen := make(map[string]bool)
	var collect func(groupName string)
	collect = func(groupName string) {
		g := inv.groups[groupName]
		for _, hostName := range g.hosts {
			seen[hostName] = true
		}
		for _, child := range g.children {
			collect(child)
		}
	}
	collect(name)

	// every host transitively belongs to all
	if name == AllGroup {
		for _, hostName := range inv.hostOrder {
			seen[hostName] = true
		}
	}

	var members []*Host
	for _, hostName := range inv.hostOrder {
		if seen[hostName] {
			members = append(members, inv.hosts[hostName])
		}
	}
	return members, nil
}

// GroupsOf returns the transitive group membership of a host including
// "all", in ancestors-first topological order.
func (inv *Inventory) GroupsOf(hostName string) ([]*Group, error) {
	if _, ok := inv.hosts[hostName]; !ok {
		return nil, &UnknownHostError{Host: hostName}
	}

	member := make(map[string]bool)
	member[AllGroup] = true
	for _, name := range inv.groupOrder {
		if containsString(inv.groups[name].hosts, hostName) {
			// the host's direct groups and all their ancestors
			inv.markAncestors(name, member)
		}
	}

	var groups []*Group
	for _, name := range inv.topoOrder() {
		if member[name] {
			groups = append(groups, inv.groups[name])
		}
	}
	return groups, nil
}

// GroupPrecedence returns the host's groups ordered most-specific first:
// children before parents, and among unrelated groups the later-declared one
// first. This is the scan order of the group variable tier.
func (inv *Inventory) GroupPrecedence(hostName string) ([]*Group, error) {
	groups, err := inv.GroupsOf(hostName)
	if err != nil {
		return nil, err
	}
	reversed := make([]*Group, len(groups))
	for i, g := range groups {
		reversed[len(groups)-1-i] = g
	}
	return reversed, nil
}

func (inv *Inventory) markAncestors(name string, member map[string]bool) {
	if member[name] {
		return
	}
	member[name] = true
	for _, parent := range inv.groups[name].parents {
		inv.markAncestors(parent, member)
	}
}

func (inv *Inventory) topoOrder() []string {
	if inv.finalized {
		return inv.topo
	}
	return inv.topologicalOrder()
}

// MatchHosts expands a host pattern into hosts, in inventory declaration
// order. Patterns are comma-separated and each element may be a group name,
// a host name or a glob over host names.
func (inv *Inventory) MatchHosts(pattern string) ([]*Host, error) {
	selected := make(map[string]bool)
	for _, part := range strings.Split(pattern, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		switch {
		case part == AllGroup || part == "*":
			for _, name := range inv.hostOrder {
				selected[name] = true
			}
		default:
			if _, ok := inv.groups[part]; ok {
				names, err := inv.HostsInGroup(part)
				if err != nil {
					return nil, err
				}
				for _, name := range names {
					selected[name] = true
				}
				continue
			}
			if _, ok := inv.hosts[part]; ok {
				selected[part] = true
				continue
			}
			if strings.ContainsAny(part, "*?[") {
				matchedAny := false
				for _, name := range inv.hostOrder {
					if matched, _ := path.Match(part, name); matched {
						selected[name] = true
						matchedAny = true
					}
				}
				if matchedAny {
					continue
				}
			}
			return nil, fmt.Errorf("pattern %q matches no host or group: %w", part, &UnknownHostError{Host: part})
		}
	}

	var hosts []*Host
	for _, name := range inv.hostOrder {
		if selected[name] {
			hosts = append(hosts, inv.hosts[name])
		}
	}
	return hosts, nil
}

// GroupVarsFor merges the group-scoped variables applicable to a host,
// ancestors first so a more specific group overrides a more general one.
func (inv *Inventory) GroupVarsFor(hostName string) (map[string]interface{}, error) {
	groups, err := inv.GroupsOf(hostName)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]interface{})
	for _, g := range groups {
		for k, v := range g.Vars {
			merged[k] = v
		}
	}
	return merged, nil
}

func containsString(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}
