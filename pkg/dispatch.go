package pkg

import (
	"context"

	"github.com/bvankempen/rigging/pkg/common"
)

// TaskOutcome is the result record a module dispatcher returns for one
// rendered task invocation.
type TaskOutcome struct {
	Changed bool                   `json:"changed"`
	Failed  bool                   `json:"failed"`
	Msg     string                 `json:"msg,omitempty"`
	Stdout  string                 `json:"stdout,omitempty"`
	Stderr  string                 `json:"stderr,omitempty"`
	Rc      int                    `json:"rc"`
	Extra   map[string]interface{} `json:"-"`
}

// Facts returns the outcome as a variable mapping, the shape stored under a
// task's register key.
func (o *TaskOutcome) Facts() map[string]interface{} {
	facts := map[string]interface{}{
		"changed": o.Changed,
		"failed":  o.Failed,
		"msg":     o.Msg,
		"stdout":  o.Stdout,
		"stderr":  o.Stderr,
		"rc":      o.Rc,
	}
	for k, v := range o.Extra {
		facts[k] = v
	}
	return facts
}

// Dispatcher performs the side effect of a task module given fully rendered
// parameters. The module catalog and its transports live outside this core.
type Dispatcher interface {
	Dispatch(ctx context.Context, host *Host, module string, params map[string]interface{}) (*TaskOutcome, error)
}

// DryRunDispatcher logs each rendered invocation without performing any side
// effect. It is the default dispatcher of the CLI, which makes a run a pure
// resolve-and-render pass.
type DryRunDispatcher struct{}

func (DryRunDispatcher) Dispatch(_ context.Context, host *Host, module string, params map[string]interface{}) (*TaskOutcome, error) {
	common.LogInfo("Rendered task parameters", map[string]interface{}{
		"host":   host.Name,
		"module": module,
		"params": params,
	})
	return &TaskOutcome{Changed: false}, nil
}
