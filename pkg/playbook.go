package pkg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Play maps a host pattern to an ordered sequence of tasks.
type Play struct {
	Name        string                 `yaml:"name"`
	Hosts       string                 `yaml:"hosts"`
	Vars        map[string]interface{} `yaml:"vars"`
	Roles       []*Role                `yaml:"roles"`
	Tasks       []*Task                `yaml:"tasks"`
	Handlers    []*Task                `yaml:"handlers"`
	GatherFacts *bool                  `yaml:"gather_facts"`
}

func (p *Play) String() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Hosts
}

// ShouldGatherFacts reports whether facts are gathered before this play,
// falling back to the given default when the play does not say.
func (p *Play) ShouldGatherFacts(fallback bool) bool {
	if p.GatherFacts != nil {
		return *p.GatherFacts
	}
	return fallback
}

// Role bundles reusable variables and tasks. Role vars sit above play vars
// in precedence; role defaults sit at the very bottom.
type Role struct {
	Name     string                 `yaml:"name"`
	Vars     map[string]interface{} `yaml:"vars"`
	Defaults map[string]interface{} `yaml:"defaults"`
	Tasks    []*Task                `yaml:"tasks"`
}

// Task is a single unit of work: a module invocation with raw (untemplated)
// parameters, or a block of nested tasks sharing block-scoped vars.
type Task struct {
	Name     string                 `yaml:"name"`
	Module   string                 `yaml:"module"`
	Params   map[string]interface{} `yaml:"params"`
	Vars     map[string]interface{} `yaml:"vars"`
	When     string                 `yaml:"when"`
	Register string                 `yaml:"register"`
	Notify   []string               `yaml:"notify"`
	Loop     interface{}            `yaml:"loop"`
	Block    []*Task                `yaml:"block"`
}

func (t *Task) String() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Module
}

// IsBlock reports whether the task is a block of nested tasks.
func (t *Task) IsBlock() bool {
	return len(t.Block) > 0
}

// Validate checks structural consistency of the task tree.
func (t *Task) Validate() error {
	if t.IsBlock() {
		if t.Module != "" {
			return fmt.Errorf("task %q cannot set both 'module' and 'block'", t)
		}
		for _, child := range t.Block {
			if err := child.Validate(); err != nil {
				return err
			}
		}
		return nil
	}
	if t.Module == "" {
		return fmt.Errorf("task %q has no module", t.Name)
	}
	return nil
}

// LoadPlaybook reads an ordered sequence of plays from a YAML file.
func LoadPlaybook(path string) ([]*Play, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read playbook file %s: %w", path, err)
	}
	return ParsePlaybook(data)
}

// ParsePlaybook parses playbook YAML and validates its structure.
func ParsePlaybook(data []byte) ([]*Play, error) {
	var plays []*Play
	if err := yaml.Unmarshal(data, &plays); err != nil {
		return nil, fmt.Errorf("failed to parse playbook: %w", err)
	}

	for i, play := range plays {
		if play.Hosts == "" {
			return nil, fmt.Errorf("play %d (%s) has no hosts pattern", i, play)
		}
		for _, task := range play.Tasks {
			if err := task.Validate(); err != nil {
				return nil, fmt.Errorf("play %q: %w", play.String(), err)
			}
		}
		for _, handler := range play.Handlers {
			if handler.Name == "" {
				return nil, fmt.Errorf("play %q: handlers must be named", play.String())
			}
			if err := handler.Validate(); err != nil {
				return nil, fmt.Errorf("play %q: %w", play.String(), err)
			}
		}
		for _, role := range play.Roles {
			for _, task := range role.Tasks {
				if err := task.Validate(); err != nil {
					return nil, fmt.Errorf("play %q, role %q: %w", play.String(), role.Name, err)
				}
			}
		}
	}
	return plays, nil
}
