package pkg

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bvankempen/rigging/pkg/common"
	"github.com/bvankempen/rigging/pkg/config"
)

// TaskStatus is the outcome classification of one task on one host.
type TaskStatus string

const (
	TaskStatusOk      TaskStatus = "ok"
	TaskStatusChanged TaskStatus = "changed"
	TaskStatusFailed  TaskStatus = "failed"
	TaskStatusSkipped TaskStatus = "skipped"
)

// TaskResult is the result of evaluating one task against one host.
type TaskResult struct {
	Task     *Task
	Host     *Host
	Status   TaskStatus
	Error    error
	Outcome  *TaskOutcome
	Duration time.Duration
}

// HostRecap accumulates per-host task counts for the run summary.
type HostRecap struct {
	Ok      int
	Changed int
	Failed  int
	Skipped int
}

// RunRecap is the per-host summary of a run.
type RunRecap struct {
	mu    sync.Mutex
	Hosts map[string]*HostRecap
}

func newRunRecap() *RunRecap {
	return &RunRecap{Hosts: make(map[string]*HostRecap)}
}

func (r *RunRecap) record(host string, status TaskStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	recap, ok := r.Hosts[host]
	if !ok {
		recap = &HostRecap{}
		r.Hosts[host] = recap
	}
	switch status {
	case TaskStatusOk:
		recap.Ok++
	case TaskStatusChanged:
		recap.Ok++
		recap.Changed++
	case TaskStatusFailed:
		recap.Failed++
	case TaskStatusSkipped:
		recap.Skipped++
	}
}

// FailedHosts returns the hosts with at least one failed task, sorted.
func (r *RunRecap) FailedHosts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var failed []string
	for host, recap := range r.Hosts {
		if recap.Failed > 0 {
			failed = append(failed, host)
		}
	}
	sort.Strings(failed)
	return failed
}

// taskEntry is one leaf task with its enclosing block variable chain,
// outermost first.
type taskEntry struct {
	task   *Task
	blocks []map[string]interface{}
}

// flattenPlay expands roles and blocks into the ordered leaf task sequence
// for one play.
func flattenPlay(play *Play) []taskEntry {
	var entries []taskEntry
	var walk func(tasks []*Task, blocks []map[string]interface{})
	walk = func(tasks []*Task, blocks []map[string]interface{}) {
		for _, t := range tasks {
			if t.IsBlock() {
				chain := blocks
				if len(t.Vars) > 0 {
					chain = append(append([]map[string]interface{}(nil), blocks...), t.Vars)
				}
				walk(t.Block, chain)
				continue
			}
			entries = append(entries, taskEntry{task: t, blocks: blocks})
		}
	}
	for _, role := range play.Roles {
		walk(role.Tasks, nil)
	}
	walk(play.Tasks, nil)
	return entries
}

// Runner is the execution driver: it iterates hosts and tasks, resolves the
// variable context, renders parameters and hands them to the dispatcher.
type Runner struct {
	Inventory  *Inventory
	Facts      *FactStore
	Resolver   *Resolver
	Dispatcher Dispatcher
	Collector  Collector
	Config     *config.Config

	runID string
}

// NewRunner wires a runner over the given inventory and fact store.
func NewRunner(inventory *Inventory, facts *FactStore, dispatcher Dispatcher, collector Collector, cfg *config.Config) *Runner {
	return &Runner{
		Inventory:  inventory,
		Facts:      facts,
		Resolver:   NewResolver(inventory, facts),
		Dispatcher: dispatcher,
		Collector:  collector,
		Config:     cfg,
		runID:      uuid.New().String(),
	}
}

// RunID identifies this runner's run in logs.
func (r *Runner) RunID() string {
	return r.runID
}

// Run executes the playbook. Failures are host-scoped: a failed host stops
// executing its remaining tasks and is skipped in later plays, while other
// hosts continue. The returned error is reserved for run-level problems
// such as an unmatched host pattern.
func (r *Runner) Run(ctx context.Context, playbook []*Play, extraVars map[string]interface{}) (*RunRecap, error) {
	recap := newRunRecap()
	failedHosts := make(map[string]bool)

	for _, play := range playbook {
		hosts, err := r.Inventory.MatchHosts(play.Hosts)
		if err != nil {
			return recap, fmt.Errorf("play %q: %w", play.String(), err)
		}

		var active []*Host
		for _, host := range hosts {
			if failedHosts[host.Name] {
				common.LogDebug("Skipping failed host", map[string]interface{}{
					"host": host.Name,
					"play": play.String(),
				})
				continue
			}
			active = append(active, host)
		}

		common.LogInfo("Starting play", map[string]interface{}{
			"play":   play.String(),
			"hosts":  len(active),
			"run_id": r.runID,
		})

		if play.ShouldGatherFacts(r.Config.Executor.GatherFacts) && r.Collector != nil {
			r.gatherFacts(ctx, active)
		}

		r.forEachHost(ctx, active, func(hostCtx context.Context, host *Host) {
			if failed := r.runPlayOnHost(hostCtx, play, host, extraVars, recap); failed {
				recap.mu.Lock()
				failedHosts[host.Name] = true
				recap.mu.Unlock()
			}
		})
	}

	r.printRunRecap(recap)
	return recap, nil
}

// forEachHost evaluates hosts in parallel, bounded by executor.forks.
func (r *Runner) forEachHost(ctx context.Context, hosts []*Host, fn func(ctx context.Context, host *Host)) {
	forks := r.Config.Executor.Forks
	if forks < 1 {
		forks = 1
	}
	sem := make(chan struct{}, forks)
	var wg sync.WaitGroup
	for _, host := range hosts {
		wg.Add(1)
		sem <- struct{}{}
		go func(h *Host) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(ctx, h)
		}(host)
	}
	wg.Wait()
}

// gatherFacts populates fact snapshots for all hosts before the play runs.
// Collection failures are non-fatal: the host continues with an absent
// snapshot and later fact references surface as undefined variables.
func (r *Runner) gatherFacts(ctx context.Context, hosts []*Host) {
	r.forEachHost(ctx, hosts, func(hostCtx context.Context, host *Host) {
		if _, err := r.Facts.Gather(hostCtx, host, r.Collector, nil); err != nil {
			var collErr *CollectionError
			if errors.As(err, &collErr) {
				common.LogWarn("Fact gathering failed, continuing without facts", map[string]interface{}{
					"host":  host.Name,
					"error": collErr.Err.Error(),
				})
				return
			}
			common.LogWarn("Fact gathering failed", map[string]interface{}{
				"host":  host.Name,
				"error": err.Error(),
			})
		}
	})
}

// runPlayOnHost evaluates every task of the play against one host. It
// reports whether the host failed.
func (r *Runner) runPlayOnHost(ctx context.Context, play *Play, host *Host, extraVars map[string]interface{}, recap *RunRecap) bool {
	hostContext := NewHostContext(host)
	hostContext.InitializeHandlerTracker(play.Handlers)

	base := &Closure{
		HostContext: hostContext,
		PlayContext: NewPlayContext(play, extraVars),
		Resolver:    r.Resolver,
		Config:      r.Config,
	}

	hostFailed := false
	for _, entry := range flattenPlay(play) {
		select {
		case <-ctx.Done():
			common.LogWarn("Run cancelled", map[string]interface{}{
				"host": host.Name,
				"task": entry.task.String(),
			})
			return true
		default:
		}

		result := r.runTask(ctx, base, entry)
		recap.record(host.Name, result.Status)
		IncTask(entry.task.String(), entry.task.Module, host.Name, string(result.Status))

		if result.Status == TaskStatusFailed {
			common.LogError("Task failed", map[string]interface{}{
				"host":  host.Name,
				"task":  entry.task.String(),
				"error": result.Error.Error(),
			})
			hostFailed = true
			break
		}
	}

	if !hostFailed {
		r.flushHandlers(ctx, base, recap)
	}
	return hostFailed
}

// flushHandlers runs the handlers notified during the play, once each, in
// declaration order.
func (r *Runner) flushHandlers(ctx context.Context, base *Closure, recap *RunRecap) {
	tracker := base.HostContext.HandlerTracker
	if tracker == nil {
		return
	}
	for _, handler := range tracker.Pending() {
		common.LogInfo("Running handler", map[string]interface{}{
			"handler": handler.Name,
			"host":    base.HostContext.Host.Name,
		})
		result := r.runTask(ctx, base, taskEntry{task: handler})
		tracker.MarkExecuted(handler.Name)
		recap.record(base.HostContext.Host.Name, result.Status)
		if result.Status == TaskStatusFailed {
			common.LogError("Handler failed", map[string]interface{}{
				"handler": handler.Name,
				"host":    base.HostContext.Host.Name,
				"error":   result.Error.Error(),
			})
		}
	}
}

// runTask resolves, guards, renders and dispatches one task (possibly once
// per loop item) for one host.
func (r *Runner) runTask(ctx context.Context, base *Closure, entry taskEntry) TaskResult {
	task := entry.task
	host := base.HostContext.Host
	start := time.Now()

	closure := base.Fork()
	for _, blockVars := range entry.blocks {
		closure.PlayContext.PushBlock(blockVars)
	}
	for k, v := range task.Vars {
		closure.PlayContext.TaskVars[k] = v
	}

	fail := func(err error) TaskResult {
		return TaskResult{
			Task:     task,
			Host:     host,
			Status:   TaskStatusFailed,
			Error:    err,
			Duration: time.Since(start),
		}
	}

	shouldRun, err := closure.ShouldExecute(task.When)
	if err != nil {
		return fail(err)
	}
	if !shouldRun {
		common.LogDebug("Task skipped by when guard", map[string]interface{}{
			"host": host.Name,
			"task": task.String(),
		})
		return TaskResult{Task: task, Host: host, Status: TaskStatusSkipped, Duration: time.Since(start)}
	}

	items, hasLoop, err := r.loopItems(closure, task)
	if err != nil {
		return fail(err)
	}
	if !hasLoop {
		items = []interface{}{nil}
	}

	changed := false
	var lastOutcome *TaskOutcome
	for _, item := range items {
		if hasLoop {
			closure.PlayContext.TaskVars["item"] = item
		}

		params, err := closure.RenderParams(task.Params)
		if err != nil {
			return fail(fmt.Errorf("failed to render parameters: %w", err))
		}

		outcome, err := r.Dispatcher.Dispatch(ctx, host, task.Module, params)
		if err != nil {
			return fail(fmt.Errorf("module %q: %w", task.Module, err))
		}
		lastOutcome = outcome

		if task.Register != "" {
			r.Facts.Set(host.Name, task.Register, outcome.Facts())
		}
		if outcome.Failed {
			return fail(fmt.Errorf("module %q reported failure: %s", task.Module, outcome.Msg))
		}
		if outcome.Changed {
			changed = true
			if base.HostContext.HandlerTracker != nil {
				base.HostContext.HandlerTracker.NotifyHandlers(task.Notify)
			}
		}
	}

	status := TaskStatusOk
	if changed {
		status = TaskStatusChanged
	}
	return TaskResult{
		Task:     task,
		Host:     host,
		Status:   status,
		Outcome:  lastOutcome,
		Duration: time.Since(start),
	}
}

// loopItems materializes a task's loop: either a literal list whose string
// elements are templated, or an expression evaluating to a sequence.
func (r *Runner) loopItems(closure *Closure, task *Task) ([]interface{}, bool, error) {
	if task.Loop == nil {
		return nil, false, nil
	}

	switch loop := task.Loop.(type) {
	case string:
		value, err := closure.EvaluateExpression(loop)
		if err != nil {
			return nil, false, fmt.Errorf("failed to evaluate loop: %w", err)
		}
		items, ok := value.([]interface{})
		if !ok {
			return nil, false, fmt.Errorf("loop expression %q did not produce a sequence (got %T)", loop, value)
		}
		return items, true, nil
	case []interface{}:
		items := make([]interface{}, len(loop))
		for i, item := range loop {
			rendered, err := closure.RenderValue(item)
			if err != nil {
				return nil, false, fmt.Errorf("failed to render loop item %d: %w", i, err)
			}
			items[i] = rendered
		}
		return items, true, nil
	default:
		return nil, false, fmt.Errorf("loop must be a sequence or an expression, got %T", task.Loop)
	}
}

func (r *Runner) printRunRecap(recap *RunRecap) {
	names := make([]string, 0, len(recap.Hosts))
	for name := range recap.Hosts {
		names = append(names, name)
	}
	sort.Strings(names)

	if r.Config.Logging.Format == "plain" {
		fmt.Printf("\nPLAY RECAP *********************************************************\n")
		for _, name := range names {
			h := recap.Hosts[name]
			fmt.Printf("%-30s : ok=%-4d changed=%-4d failed=%-4d skipped=%-4d\n",
				name, h.Ok, h.Changed, h.Failed, h.Skipped)
		}
		return
	}
	for _, name := range names {
		h := recap.Hosts[name]
		common.LogInfo("Host recap", map[string]interface{}{
			"host":    name,
			"ok":      h.Ok,
			"changed": h.Changed,
			"failed":  h.Failed,
			"skipped": h.Skipped,
		})
	}
}
