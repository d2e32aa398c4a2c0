package pkg

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/shlex"
	"gopkg.in/yaml.v3"

	"github.com/bvankempen/rigging/pkg/common"
)

// LoadInventory reads an inventory file in either the nested YAML form or
// the flat INI-style form. Both normalize to the same graph.
func LoadInventory(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory file %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return ParseYAMLInventory(data)
	default:
		return ParseINIInventory(data)
	}
}

// ParseYAMLInventory parses the nested mapping form. Every top-level key is
// a group; a group may carry "hosts", "vars" and "children" sections.
// Children may be a list of group names or a nested mapping of inline group
// definitions. Parsing walks the yaml.Node tree directly because declaration
// order of groups and hosts is part of the precedence contract and a plain
// map decode would lose it.
func ParseYAMLInventory(data []byte) (*Inventory, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML inventory: %w", err)
	}

	inv := NewInventory()
	if len(doc.Content) > 0 {
		root := doc.Content[0]
		if root.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("inventory must be a mapping of groups")
		}
		for i := 0; i+1 < len(root.Content); i += 2 {
			if err := loadYAMLGroup(inv, root.Content[i].Value, root.Content[i+1]); err != nil {
				return nil, err
			}
		}
	}

	if err := inv.Finalize(); err != nil {
		return nil, err
	}
	return inv, nil
}

func isYAMLNull(node *yaml.Node) bool {
	return node == nil || node.Tag == "!!null"
}

func loadYAMLGroup(inv *Inventory, name string, node *yaml.Node) error {
	group := inv.EnsureGroup(name)
	if isYAMLNull(node) {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("group %q must be a mapping", name)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		value := node.Content[i+1]
		switch key {
		case "vars":
			var vars map[string]interface{}
			if err := value.Decode(&vars); err != nil {
				return fmt.Errorf("vars of group %q must be a mapping: %w", name, err)
			}
			for k, v := range vars {
				group.Vars[k] = v
			}
		case "hosts":
			if err := loadYAMLHosts(inv, name, value); err != nil {
				return err
			}
		case "children":
			if err := loadYAMLChildren(inv, name, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadYAMLHosts registers a group's hosts in document order.
func loadYAMLHosts(inv *Inventory, group string, node *yaml.Node) error {
	if isYAMLNull(node) {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("hosts of group %q must be a mapping", group)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		hostName := node.Content[i].Value
		host := &Host{Name: hostName, Vars: make(map[string]interface{})}

		var hostVars map[string]interface{}
		if !isYAMLNull(node.Content[i+1]) {
			if err := node.Content[i+1].Decode(&hostVars); err != nil {
				return fmt.Errorf("host %q in group %q must be a mapping: %w", hostName, group, err)
			}
		}
		for k, v := range hostVars {
			if k == "host" {
				if addr, ok := v.(string); ok {
					host.Address = addr
					continue
				}
			}
			host.Vars[k] = v
		}
		inv.AddHost(host, group)
	}
	return nil
}

// loadYAMLChildren records child edges in document order so that sibling
// declaration order stays deterministic.
func loadYAMLChildren(inv *Inventory, group string, node *yaml.Node) error {
	if isYAMLNull(node) {
		return nil
	}
	switch node.Kind {
	case yaml.SequenceNode:
		for _, child := range node.Content {
			if child.Kind != yaml.ScalarNode {
				return fmt.Errorf("children of group %q must be group names", group)
			}
			inv.AddChild(group, child.Value)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			childName := node.Content[i].Value
			inv.AddChild(group, childName)
			if err := loadYAMLGroup(inv, childName, node.Content[i+1]); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("children of group %q must be a list or mapping", group)
	}
	return nil
}

// ParseINIInventory parses the flat key=value-per-line form:
//
//	web1 host=10.0.0.1 port=80
//
//	[web]
//	web1
//
//	[web:vars]
//	x=1
//
//	[web:children]
//	api
//
// Host lines before the first section belong to "all". Quoted values are
// supported.
func ParseINIInventory(data []byte) (*Inventory, error) {
	inv := NewInventory()

	section := AllGroup
	mode := "hosts"
	for lineNo, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, fmt.Errorf("line %d: malformed section header %q", lineNo+1, line)
			}
			header := line[1 : len(line)-1]
			mode = "hosts"
			if idx := strings.Index(header, ":"); idx >= 0 {
				section = header[:idx]
				mode = header[idx+1:]
				if mode != "vars" && mode != "children" {
					return nil, fmt.Errorf("line %d: unknown section suffix %q", lineNo+1, mode)
				}
			} else {
				section = header
			}
			inv.EnsureGroup(section)
			continue
		}

		switch mode {
		case "hosts":
			if err := parseINIHostLine(inv, section, line); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo+1, err)
			}
		case "vars":
			key, value, err := parseINIAssignment(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo+1, err)
			}
			inv.EnsureGroup(section).Vars[key] = value
		case "children":
			inv.AddChild(section, line)
		}
	}

	if err := inv.Finalize(); err != nil {
		return nil, err
	}
	return inv, nil
}

func parseINIHostLine(inv *Inventory, group, line string) error {
	fields, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("malformed host line %q: %w", line, err)
	}
	if len(fields) == 0 {
		return nil
	}

	host := &Host{Name: fields[0], Vars: make(map[string]interface{})}
	for _, field := range fields[1:] {
		key, value, err := parseINIAssignment(field)
		if err != nil {
			return err
		}
		if key == "host" {
			if addr, ok := value.(string); ok {
				host.Address = addr
				continue
			}
		}
		host.Vars[key] = value
	}
	inv.AddHost(host, group)
	common.DebugOutput("Parsed inventory host %q in group %q", host.Name, group)
	return nil
}

func parseINIAssignment(s string) (string, interface{}, error) {
	idx := strings.Index(s, "=")
	if idx <= 0 {
		return "", nil, fmt.Errorf("expected key=value, got %q", s)
	}
	key := strings.TrimSpace(s[:idx])
	raw := strings.TrimSpace(s[idx+1:])
	return key, parseScalar(raw), nil
}

// parseScalar interprets an unquoted INI value the way the YAML form would:
// integers, floats and booleans keep their native type.
func parseScalar(raw string) interface{} {
	if strings.HasPrefix(raw, "\"") && strings.HasSuffix(raw, "\"") && len(raw) >= 2 {
		return raw[1 : len(raw)-1]
	}
	if strings.HasPrefix(raw, "'") && strings.HasSuffix(raw, "'") && len(raw) >= 2 {
		return raw[1 : len(raw)-1]
	}
	if i, err := strconv.Atoi(raw); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	switch strings.ToLower(raw) {
	case "true", "yes":
		return true
	case "false", "no":
		return false
	}
	return raw
}
