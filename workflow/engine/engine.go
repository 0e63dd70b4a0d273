// Package engine wires the workflow components into the single object the
// HTTP transport and the server entrypoint depend on: a Loader resolves a
// workflow by name, a schema.Validator checks it structurally, a
// queue.Executor drives its step-queue protocol, a subagent.Manager expands
// parallel_foreach steps (wired in via queue.Executor.SetSubAgentExpander,
// per workflow/queue's injection-point design), and an eventbus.Bus carries
// lifecycle notifications to whatever is watching a run.
package engine

import (
	"context"
	"fmt"

	"github.com/flowkernel/engine/observability"
	"github.com/flowkernel/engine/workflow/config"
	"github.com/flowkernel/engine/workflow/eventbus"
	"github.com/flowkernel/engine/workflow/loader"
	"github.com/flowkernel/engine/workflow/model"
	"github.com/flowkernel/engine/workflow/queue"
	"github.com/flowkernel/engine/workflow/schema"
	"github.com/flowkernel/engine/workflow/subagent"
)

// Lifecycle event topics published on Engine's event bus.
const (
	TopicWorkflowStart = "workflow.start"
	TopicWorkflowDone  = "workflow.done"
	TopicStepDispatch  = "workflow.step.dispatched"
	TopicStepComplete  = "workflow.step.completed"
	TopicStepFailed    = "workflow.step.failed"
)

// Engine is the composed entrypoint for running workflows. The zero value
// is not usable; construct with New.
type Engine struct {
	cfg       config.EngineConfig
	loader    *loader.Loader
	validator schema.Validator
	queue     *queue.Executor
	subagents *subagent.Manager
	events    *eventbus.Bus
}

// New builds an Engine rooted at projectRoot (see loader.New for its
// resolution rules). A nil validator defaults to schema.StructuralValidator,
// and a nil observer defaults to observability.NoOpObserver.
func New(cfg config.EngineConfig, projectRoot string, validator schema.Validator, observer observability.Observer) (*Engine, error) {
	l, err := loader.New(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("constructing loader: %w", err)
	}

	if validator == nil {
		validator = schema.StructuralValidator{}
	}

	exec, err := queue.NewExecutor(cfg.Queue, observer)
	if err != nil {
		return nil, fmt.Errorf("constructing queue executor: %w", err)
	}

	subagents := subagent.NewManager()
	exec.SetSubAgentExpander(subagents.Expand)

	return &Engine{
		cfg:       cfg,
		loader:    l,
		validator: validator,
		queue:     exec,
		subagents: subagents,
		events:    eventbus.New(cfg.EventBus.ChannelBufferSize),
	}, nil
}

// Subscribe registers interest in a lifecycle topic ("" for every topic).
func (e *Engine) Subscribe(topic string) *eventbus.Subscription {
	return e.events.Subscribe(topic)
}

// Config returns the engine's composed configuration.
func (e *Engine) Config() config.EngineConfig { return e.cfg }

// LoadByName resolves and structurally validates a workflow by name without
// starting a run.
func (e *Engine) LoadByName(name string) (*model.WorkflowDefinition, error) {
	def, err := e.loader.Load(name)
	if err != nil {
		return nil, err
	}
	if errs := e.validator.Validate(def); len(errs) > 0 {
		return nil, fmt.Errorf("workflow %q failed validation: %v", name, errs)
	}
	return def, nil
}

// ListWorkflows returns every workflow discoverable in the project and
// (if includeGlobal) global workflow directories.
func (e *Engine) ListWorkflows(includeGlobal bool) ([]loader.Info, error) {
	return e.loader.List(includeGlobal)
}

// StartByName loads, validates and starts a workflow by name, registering
// its sub-agent task definitions with the Manager and publishing a
// TopicWorkflowStart event.
func (e *Engine) StartByName(ctx context.Context, name string, inputs map[string]any) (string, *model.WorkflowDefinition, error) {
	def, err := e.LoadByName(name)
	if err != nil {
		return "", nil, err
	}

	runID, err := e.Start(ctx, def, inputs)
	if err != nil {
		return "", nil, err
	}
	return runID, def, nil
}

// Start starts an already-loaded workflow definition directly, bypassing
// name resolution — used for inline/ad hoc workflows and by StartByName.
func (e *Engine) Start(ctx context.Context, def *model.WorkflowDefinition, inputs map[string]any) (string, error) {
	runID, err := e.queue.Start(ctx, def, inputs)
	if err != nil {
		return "", err
	}

	e.subagents.RegisterRun(runID, def)
	e.events.Publish(ctx, TopicWorkflowStart, map[string]any{"run_id": runID, "workflow": def.Name})
	return runID, nil
}

// GetNextStep drains the next batch of client-visible steps (plus any
// server steps run to completion along the way), publishing a
// TopicStepDispatch event per returned client step and a TopicWorkflowDone
// event (plus forgetting the run's sub-agent task index) once the run
// finishes.
func (e *Engine) GetNextStep(ctx context.Context, runID string) ([]queue.ClientStep, []queue.ServerCompletedStep, bool, error) {
	batch, completed, done, err := e.queue.GetNextStep(ctx, runID)
	if err != nil {
		return nil, nil, false, err
	}

	for _, step := range batch {
		e.events.Publish(ctx, TopicStepDispatch, map[string]any{"run_id": runID, "step_id": step.StepID, "type": step.Type})
	}
	if done {
		e.subagents.Forget(runID)
		e.events.Publish(ctx, TopicWorkflowDone, map[string]any{"run_id": runID})
	}
	return batch, completed, done, nil
}

// StepComplete reports a client step's outcome, publishing a
// TopicStepComplete or TopicStepFailed event depending on result.Error.
func (e *Engine) StepComplete(ctx context.Context, runID, stepID string, result queue.StepResult) error {
	err := e.queue.StepComplete(ctx, runID, stepID, result)

	topic := TopicStepComplete
	if result.Error != "" || err != nil {
		topic = TopicStepFailed
	}
	e.events.Publish(ctx, topic, map[string]any{"run_id": runID, "step_id": stepID, "error": result.Error})

	return err
}
