// Package queue implements the step queue execution loop: GetNextStep
// drains server-side steps (applying state_update mutations, running
// shell_command, expanding control-flow steps) until it accumulates a batch
// of client-side steps (or exhausts the queue), which StepComplete then
// reports results for before the loop resumes.
//
// The drain loop's shape — iterate, validate, checkpoint at an interval,
// emit events throughout, wrap failures with execution context — is
// grounded on the teacher's state.stateGraph.execute, generalized from a
// single-current-node DAG walk to a FIFO queue drain that distinguishes
// server/client step types via workflow/registry.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowkernel/engine/observability"
	"github.com/flowkernel/engine/workflow/concurrent"
	"github.com/flowkernel/engine/workflow/config"
	"github.com/flowkernel/engine/workflow/depgraph"
	"github.com/flowkernel/engine/workflow/expr"
	"github.com/flowkernel/engine/workflow/model"
	"github.com/flowkernel/engine/workflow/registry"
	"github.com/flowkernel/engine/workflow/steps"
	"github.com/flowkernel/engine/workflow/transform"
	"github.com/flowkernel/engine/workflow/wfstate"
)

// ClientStep is one step handed to the external caller to execute —
// templates and expressions already rendered against the workflow's
// current scope. TaskID is non-empty only for steps generated by a
// parallel_foreach sub-agent task, letting the caller route the step to
// the right sub-agent instance.
type ClientStep struct {
	StepID string
	TaskID string
	Type   string
	Message string
	Tool    string
	Args    map[string]any
	Prompt  string
}

// StepResult is what the caller reports back for one delivered ClientStep.
type StepResult struct {
	StepID  string
	Updates []wfstate.Update
	Error   string
}

// ServerCompletedStep is one server-side step GetNextStep ran to completion
// synchronously during the call, surfaced alongside the client batch so the
// caller can observe (and log) work it never had to dispatch.
type ServerCompletedStep struct {
	StepID string
	TaskID string
	Type   string
	Output map[string]any
}

// SubAgentExpander expands a parallel_foreach step into the flattened steps
// of its isolated sub-agent task instances. Wired in by the engine package
// (workflow/subagent) to avoid a queue<->subagent import cycle; nil means
// parallel_foreach is unsupported.
type SubAgentExpander func(def model.StepDefinition, scope expr.Context, state wfstate.WorkflowState) ([]model.StepDefinition, error)

// run holds everything one workflow execution needs between calls.
type run struct {
	mu             sync.Mutex
	def            *model.WorkflowDefinition
	graph          *depgraph.Graph
	transformer    transform.Transformer
	queue          []model.StepDefinition
	pending        map[string]model.StepDefinition
	stepsProcessed int
}

// Executor drives any number of concurrently-running workflows, each
// identified by its run ID.
type Executor struct {
	cfg             config.QueueConfig
	observer        observability.Observer
	stateMgr        *concurrent.Manager
	checkpointStore concurrent.CheckpointStore
	subAgentExpand  SubAgentExpander

	mu   sync.Mutex
	runs map[string]*run
}

// NewExecutor creates an Executor. observer may be nil (NoOpObserver is
// used); the checkpoint store named by cfg.Checkpoint.Store must already be
// registered (the "memory" store always is).
func NewExecutor(cfg config.QueueConfig, observer observability.Observer) (*Executor, error) {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}

	store, err := concurrent.GetCheckpointStore(cfg.Checkpoint.Store)
	if err != nil {
		return nil, fmt.Errorf("resolving checkpoint store: %w", err)
	}

	return &Executor{
		cfg:             cfg,
		observer:        observer,
		stateMgr:        concurrent.NewManager(),
		checkpointStore: store,
		runs:            make(map[string]*run),
	}, nil
}

// SetSubAgentExpander wires in the parallel_foreach expander. Called once
// by the engine package during wiring.
func (e *Executor) SetSubAgentExpander(fn SubAgentExpander) {
	e.subAgentExpand = fn
}

// Start initializes a new workflow run from its definition and caller-
// supplied inputs: default_state then inputs are applied as the initial
// update batch, computed fields are fully recomputed, and the step queue is
// seeded with the workflow's top-level steps.
func (e *Executor) Start(ctx context.Context, def *model.WorkflowDefinition, inputs map[string]any) (string, error) {
	graph, err := depgraph.Build(def.Computed)
	if err != nil {
		return "", fmt.Errorf("building computed-field graph: %w", err)
	}

	state := wfstate.New(e.observer)

	var updates []wfstate.Update
	for k, v := range def.DefaultState {
		updates = append(updates, wfstate.Update{Path: "state." + k, Value: v})
	}
	for k, v := range inputs {
		updates = append(updates, wfstate.Update{Path: "inputs." + k, Value: v})
	}

	state, err = state.ApplyUpdates(updates)
	if err != nil {
		return "", fmt.Errorf("applying initial state: %w", err)
	}

	transformer := transform.NewJSTransformer()
	state, err = state.Recompute(graph, transformer, nil)
	if err != nil {
		return "", fmt.Errorf("initial computed-field recompute: %w", err)
	}

	runID := state.RunID
	e.stateMgr.Start(runID, state)

	r := &run{
		def:         def,
		graph:       graph,
		transformer: transformer,
		queue:       assignStepIDs(def.Steps),
		pending:     make(map[string]model.StepDefinition),
	}

	e.mu.Lock()
	e.runs[runID] = r
	e.mu.Unlock()

	e.observer.OnEvent(ctx, observability.Event{
		Type:      EventWorkflowStart,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "queue.Start",
		Data:      map[string]any{"run_id": runID, "step_count": len(r.queue)},
	})

	return runID, nil
}

func assignStepIDs(defs []model.StepDefinition) []model.StepDefinition {
	out := make([]model.StepDefinition, len(defs))
	for i, d := range defs {
		if d.ID == "" {
			d.ID = uuid.New().String()
		}
		out[i] = d
	}
	return out
}

// GetNextStep drains server-side steps and expands control-flow steps until
// it has a batch of client steps (bounded by MaxStepsPerBatch) or the queue
// is empty. done is true, and the workflow has finished, only when the queue
// is empty, the returned batch is empty, and no dispatched client step is
// still awaiting StepComplete.
func (e *Executor) GetNextStep(ctx context.Context, runID string) (batch []ClientStep, completed []ServerCompletedStep, done bool, err error) {
	r, err := e.getRun(runID)
	if err != nil {
		return nil, nil, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.queue) > 0 && len(batch) < e.cfg.MaxStepsPerBatch {
		if err := ctx.Err(); err != nil {
			return batch, completed, false, err
		}
		if r.stepsProcessed >= e.cfg.MaxTotalSteps {
			return batch, completed, false, fmt.Errorf("workflow %s exceeded max_total_steps (%d)", runID, e.cfg.MaxTotalSteps)
		}

		def := r.queue[0]
		r.queue = r.queue[1:]
		r.stepsProcessed++

		if err := steps.ValidateLoopControl(def); err != nil {
			return batch, completed, false, err
		}

		if steps.IsBreak(def) || steps.IsContinue(def) {
			r.queue = applyLoopControl(r.queue, def)
			continue
		}

		spec, ok := registry.Get(def.Type)
		if !ok {
			return batch, completed, false, fmt.Errorf("unknown step type %q", def.Type)
		}

		state, _, err := e.stateMgr.Read(runID)
		if err != nil {
			return batch, completed, false, err
		}
		scope := steps.BuildScope(def, mergeStateView(state), state.Inputs)

		if spec.ControlFlow {
			expanded, err := e.expand(def, scope, r, state)
			if err != nil {
				return batch, completed, false, err
			}
			r.queue = append(expanded, r.queue...)
			continue
		}

		switch spec.Side {
		case registry.SideServer:
			entry, err := e.runServerStep(ctx, runID, r, def, scope)
			if err != nil {
				return batch, completed, false, err
			}
			completed = append(completed, entry)
		case registry.SideClient:
			rendered, err := renderClientStep(def, scope)
			if err != nil {
				return batch, completed, false, err
			}
			r.pending[def.ID] = def
			batch = append(batch, rendered)

			e.observer.OnEvent(ctx, observability.Event{
				Type:      EventStepDispatched,
				Level:     observability.LevelVerbose,
				Timestamp: time.Now(),
				Source:    "queue.GetNextStep",
				Data:      map[string]any{"run_id": runID, "step_id": def.ID, "type": def.Type},
			})
		}

		e.checkpointIfDue(runID, r)
	}

	done = len(r.queue) == 0 && len(r.pending) == 0 && len(batch) == 0
	if done {
		e.observer.OnEvent(ctx, observability.Event{
			Type:      EventWorkflowDone,
			Level:     observability.LevelInfo,
			Timestamp: time.Now(),
			Source:    "queue.GetNextStep",
			Data:      map[string]any{"run_id": runID},
		})
	}
	return batch, completed, done, nil
}

// StepComplete records the result of a previously dispatched client step:
// its updates are applied and dependent computed fields recalculated before
// the queue can be drained further.
func (e *Executor) StepComplete(ctx context.Context, runID, stepID string, result StepResult) error {
	r, err := e.getRun(runID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	_, ok := r.pending[stepID]
	delete(r.pending, stepID)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("step %s is not pending completion on run %s", stepID, runID)
	}

	if result.Error != "" {
		e.observer.OnEvent(ctx, observability.Event{
			Type:      EventStepFailed,
			Level:     observability.LevelError,
			Timestamp: time.Now(),
			Source:    "queue.StepComplete",
			Data:      map[string]any{"run_id": runID, "step_id": stepID, "error": result.Error},
		})
		return fmt.Errorf("step %s reported error: %s", stepID, result.Error)
	}

	if len(result.Updates) == 0 {
		return nil
	}

	changed := make([]string, 0, len(result.Updates))
	for _, u := range result.Updates {
		changed = append(changed, u.Path)
	}

	_, _, err = e.stateMgr.Apply(runID, 0, func(s wfstate.WorkflowState) (wfstate.WorkflowState, error) {
		next, err := s.ApplyUpdates(result.Updates)
		if err != nil {
			return s, err
		}
		return next.Recompute(r.graph, r.transformer, changed)
	})
	if err != nil {
		return fmt.Errorf("applying result of step %s: %w", stepID, err)
	}

	e.observer.OnEvent(ctx, observability.Event{
		Type:      EventStepCompleted,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "queue.StepComplete",
		Data:      map[string]any{"run_id": runID, "step_id": stepID},
	})
	return nil
}

// runServerStep executes a server-side step directly, mutating state
// through the workflow's Manager so the update is serialized with any other
// concurrent caller of the same run.
func (e *Executor) runServerStep(ctx context.Context, runID string, r *run, def model.StepDefinition, scope expr.Context) (ServerCompletedStep, error) {
	switch def.Type {
	case "state_update":
		update, err := steps.RunStateUpdate(def, func(expression string) (any, error) {
			return expr.EvaluateScoped(expression, scope)
		})
		if err != nil {
			return ServerCompletedStep{}, err
		}
		_, _, err = e.stateMgr.Apply(runID, 0, func(s wfstate.WorkflowState) (wfstate.WorkflowState, error) {
			next, err := s.ApplyUpdates([]wfstate.Update{update})
			if err != nil {
				return s, err
			}
			return next.Recompute(r.graph, r.transformer, []string{update.Path})
		})
		if err != nil {
			return ServerCompletedStep{}, err
		}
		return ServerCompletedStep{
			StepID: def.ID, TaskID: def.SubAgentID, Type: def.Type,
			Output: map[string]any{"path": update.Path, "value": update.Value},
		}, nil

	case "shell_command":
		timeoutMS := def.TimeoutMS
		if timeoutMS <= 0 {
			timeoutMS = e.cfg.ShellTimeoutMS
		}
		rendered, err := steps.Interpolate(def.Command, scope)
		if err != nil {
			return ServerCompletedStep{}, fmt.Errorf("shell_command %s: rendering command: %w", def.ID, err)
		}
		def.Command = rendered

		result, err := steps.RunShellCommand(ctx, def, time.Duration(timeoutMS)*time.Millisecond)
		if err != nil {
			return ServerCompletedStep{}, fmt.Errorf("shell_command %s: %w", def.ID, err)
		}

		if update, ok := steps.ResolveShellStateUpdate(def.ShellStateUpdate, def.Command, result); ok {
			_, _, err := e.stateMgr.Apply(runID, 0, func(s wfstate.WorkflowState) (wfstate.WorkflowState, error) {
				next, err := s.ApplyUpdates([]wfstate.Update{update})
				if err != nil {
					return s, err
				}
				return next.Recompute(r.graph, r.transformer, []string{update.Path})
			})
			if err != nil {
				return ServerCompletedStep{}, fmt.Errorf("shell_command %s: applying state_update: %w", def.ID, err)
			}
		}

		e.observer.OnEvent(ctx, observability.Event{
			Type:      EventStepServerRun,
			Level:     observability.LevelVerbose,
			Timestamp: time.Now(),
			Source:    "queue.runServerStep",
			Data: map[string]any{
				"run_id": runID, "step_id": def.ID, "type": "shell_command",
				"exit_code": result.ExitCode,
			},
		})
		return ServerCompletedStep{
			StepID: def.ID, TaskID: def.SubAgentID, Type: def.Type,
			Output: map[string]any{
				"command": def.Command, "exit_code": result.ExitCode,
				"stdout": result.Stdout, "stderr": result.Stderr,
			},
		}, nil

	default:
		return ServerCompletedStep{}, fmt.Errorf("unsupported server step type %q", def.Type)
	}
}

func renderClientStep(def model.StepDefinition, scope expr.Context) (ClientStep, error) {
	out := ClientStep{StepID: def.ID, TaskID: def.SubAgentID, Type: def.Type}

	var err error
	switch def.Type {
	case "user_message", "agent_prompt", "agent_response":
		out.Message, err = steps.Interpolate(def.Message, scope)
	case "user_input":
		out.Prompt, err = steps.Interpolate(def.Prompt, scope)
	case "mcp_call", "internal_mcp_call":
		out.Tool = def.Tool
		out.Args, err = interpolateArgs(def.Args, scope)
	}
	if err != nil {
		return ClientStep{}, fmt.Errorf("rendering step %s: %w", def.ID, err)
	}
	return out, nil
}

func interpolateArgs(args map[string]any, scope expr.Context) (map[string]any, error) {
	if args == nil {
		return nil, nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		s, ok := v.(string)
		if !ok {
			out[k] = v
			continue
		}
		rendered, err := steps.Interpolate(s, scope)
		if err != nil {
			return nil, err
		}
		out[k] = rendered
	}
	return out, nil
}

// expand dispatches a control-flow step to its type-specific expander.
func (e *Executor) expand(def model.StepDefinition, scope expr.Context, r *run, state wfstate.WorkflowState) ([]model.StepDefinition, error) {
	switch def.Type {
	case "conditional":
		return steps.ExpandConditional(def, scope)
	case "while_loop":
		return steps.ExpandWhileLoop(def, scope)
	case "foreach":
		return steps.ExpandForeach(def, scope, func() ([]any, error) {
			return steps.ResolveItemsExpression(def.Items, scope)
		})
	case "parallel_foreach":
		if e.subAgentExpand == nil {
			return nil, fmt.Errorf("parallel_foreach step %s: no sub-agent expander configured", def.ID)
		}
		return e.subAgentExpand(def, scope, state)
	default:
		return nil, fmt.Errorf("unsupported control-flow step type %q", def.Type)
	}
}

// applyLoopControl performs the queue surgery a break/continue step
// triggers: scan forward for the next queued item sharing its
// LoopInstanceID (the loop's continuation/re-entry step) and drop
// everything before it — and the continuation itself too, for break.
func applyLoopControl(queue []model.StepDefinition, control model.StepDefinition) []model.StepDefinition {
	for i, item := range queue {
		if item.LoopInstanceID == control.LoopInstanceID {
			if steps.IsBreak(control) {
				return queue[i+1:]
			}
			return queue[i:]
		}
	}
	return queue
}

func mergeStateView(state wfstate.WorkflowState) map[string]any {
	view := make(map[string]any, len(state.State)+len(state.Computed))
	for k, v := range state.State {
		view[k] = v
	}
	for k, v := range state.Computed {
		view[k] = v
	}
	return view
}

func (e *Executor) getRun(runID string) (*run, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	r, ok := e.runs[runID]
	if !ok {
		return nil, fmt.Errorf("unknown workflow run: %s", runID)
	}
	return r, nil
}

func (e *Executor) checkpointIfDue(runID string, r *run) {
	if e.cfg.Checkpoint.Interval <= 0 {
		return
	}
	if r.stepsProcessed%e.cfg.Checkpoint.Interval != 0 {
		return
	}
	_ = e.stateMgr.Checkpoint(runID, e.checkpointStore)
}
