// Package execctx implements the execution context a running workflow (or
// sub-agent) carries alongside its state: a frame stack for nested foreach/
// while_loop scopes, a single pending break/continue signal, and on-demand assembly of the scoped expr.Context a step's condition or
// template needs.
package execctx

import (
	"fmt"

	"github.com/flowkernel/engine/workflow/expr"
)

// Frame is one nested loop scope: the loop variable binding (e.g. "item"
// inside a foreach) plus loop metadata (index/total) exposed as "loop.*".
type Frame struct {
	VarName string
	Item    any
	Index   int
	Total   int
}

// Signal is what a break/continue step raises to unwind to the nearest
// enclosing loop.
type Signal int

const (
	SignalNone Signal = iota
	SignalBreak
	SignalContinue
)

// Context is the execution context for one workflow run (or one sub-agent
// task's isolated run). It is not safe for concurrent use by multiple
// goroutines — each workflow/sub-agent run owns exactly one.
type Context struct {
	RunID     string
	TaskID    string
	Inputs    map[string]any
	Global    map[string]any
	frames    []Frame
	lastSignal Signal
}

// New creates a Context for a top-level workflow run.
func New(runID string, inputs, global map[string]any) *Context {
	return &Context{RunID: runID, Inputs: inputs, Global: global}
}

// ForSubAgent creates an isolated Context for one parallel_foreach item,
// carrying its own task_id and loop frame but holding the same inputs and
// global maps the caller passes in, not copies (the sub-agent's own state mutations do not flow back
// into the parent — isolation is enforced by the caller constructing a
// fresh wfstate.WorkflowState per sub-agent, not by this type).
func ForSubAgent(taskID string, parentRunID string, inputs, global map[string]any, frame Frame) *Context {
	ctx := New(parentRunID, inputs, global)
	ctx.TaskID = taskID
	ctx.frames = []Frame{frame}
	return ctx
}

// PushFrame enters a new nested loop scope.
func (c *Context) PushFrame(f Frame) {
	c.frames = append(c.frames, f)
}

// PopFrame exits the innermost loop scope.
func (c *Context) PopFrame() error {
	if len(c.frames) == 0 {
		return fmt.Errorf("pop frame: no active loop scope")
	}
	c.frames = c.frames[:len(c.frames)-1]
	return nil
}

// Depth reports how many nested loop scopes are active.
func (c *Context) Depth() int {
	return len(c.frames)
}

// current returns the innermost active frame, or the zero Frame if none.
func (c *Context) current() Frame {
	if len(c.frames) == 0 {
		return Frame{}
	}
	return c.frames[len(c.frames)-1]
}

// RaiseSignal records a break/continue raised by the step currently
// executing. ConsumeSignal clears it once the nearest enclosing loop has handled it.
func (c *Context) RaiseSignal(s Signal) {
	c.lastSignal = s
}

// ConsumeSignal returns the pending signal and clears it.
func (c *Context) ConsumeSignal() Signal {
	s := c.lastSignal
	c.lastSignal = SignalNone
	return s
}

// Scope assembles the scoped expr.Context a condition/template/transform
// evaluates against: "this" is the innermost loop item, "loop" is its
// index/total metadata, "global" is shared state visible to every frame,
// and "inputs" is the run's declared inputs.
func (c *Context) Scope(stateView map[string]any) expr.Context {
	frame := c.current()

	this := map[string]any{}
	if frame.VarName != "" {
		this[frame.VarName] = frame.Item
		this["item"] = frame.Item
	}

	globalScope := map[string]any{}
	for k, v := range c.Global {
		globalScope[k] = v
	}
	for k, v := range stateView {
		globalScope[k] = v
	}

	return expr.Context{
		This: this,
		Global: globalScope,
		Loop: map[string]any{
			"index": frame.Index,
			"total": frame.Total,
		},
		Inputs: c.Inputs,
	}
}
