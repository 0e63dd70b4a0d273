package steps

import (
	"github.com/flowkernel/engine/workflow/expr"
	"github.com/flowkernel/engine/workflow/model"
)

// BuildScope assembles the expr.Context a step's condition/template/value
// evaluates against: "this"/"loop" come from the step's own carried scope
// (set by the foreach/parallel_foreach expansion that produced it), "global"
// is the workflow's live state view, "inputs" is the run's declared inputs.
func BuildScope(def model.StepDefinition, stateView, inputs map[string]any) expr.Context {
	return expr.Context{
		This:   def.ScopeThis,
		Global: stateView,
		Loop:   def.ScopeLoop,
		Inputs: inputs,
	}
}

// ExpandConditional evaluates a conditional step's condition and returns the
// matching branch, grounded on the route-selection idiom of the teacher's
// ProcessConditional (predicate picks a named route; no match falls back to
// Default) — specialized here to the binary then/else branches a workflow
// conditional step declares.
func ExpandConditional(def model.StepDefinition, scope expr.Context) ([]model.StepDefinition, error) {
	result, err := expr.EvaluateScoped(def.Condition, scope)
	if err != nil {
		return nil, &ConditionalError{StepID: def.ID, Err: err}
	}

	branch := def.Else
	if expr.Truthy(result) {
		branch = def.Then
	}

	return inheritScope(branch, def), nil
}

// inheritScope propagates a parent step's scope onto its nested steps so a
// conditional/loop body inherits its enclosing foreach binding.
func inheritScope(children []model.StepDefinition, parent model.StepDefinition) []model.StepDefinition {
	out := make([]model.StepDefinition, len(children))
	for i, c := range children {
		out[i] = c.WithScope(parent.ScopeThis, parent.ScopeLoop)
	}
	return out
}

// ConditionalError reports a conditional step whose condition failed to
// evaluate.
type ConditionalError struct {
	StepID string
	Err    error
}

func (e *ConditionalError) Error() string {
	return "conditional " + e.StepID + ": " + e.Err.Error()
}

func (e *ConditionalError) Unwrap() error { return e.Err }
