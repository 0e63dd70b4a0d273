package steps

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/flowkernel/engine/workflow/expr"
	"github.com/flowkernel/engine/workflow/model"
)

const defaultMaxIterations = 1000

func newLoopInstanceID() string {
	return "loop_" + uuid.New().String()[:8]
}

// ExpandWhileLoop re-evaluates a while_loop's condition and, while true,
// returns the loop body followed by a continuation step that re-enters this
// function on its next pass — a recursive one-level-at-a-time unroll rather
// than materializing every iteration up front, since the body's own state
// mutations must be visible to the next condition check.
//
// The continuation, and every break/continue step in the returned body
// (including those nested in conditional branches, see tagOne), carries the
// loop's LoopInstanceID, which the queue executor uses to perform a break/
// continue queue-surgery when one of those break/continue steps is reached:
// remove queued items up to (continue) or including (break) the next item
// bearing the same LoopInstanceID.
//
// Once IterationsDone reaches max_iterations the loop pops silently, the
// same as a false condition — max_iterations is a bound on how long the
// loop may run, not a failure condition.
func ExpandWhileLoop(def model.StepDefinition, scope expr.Context) ([]model.StepDefinition, error) {
	maxIterations := def.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	if def.IterationsDone >= maxIterations {
		return nil, nil
	}

	result, err := expr.EvaluateScoped(def.Condition, scope)
	if err != nil {
		return nil, fmt.Errorf("while_loop %s condition: %w", def.ID, err)
	}
	if !expr.Truthy(result) {
		return nil, nil
	}

	loopID := def.LoopInstanceID
	if loopID == "" {
		loopID = newLoopInstanceID()
	}

	body := tagLoopInstance(inheritScope(def.Body, def), loopID)

	continuation := def
	continuation.LoopInstanceID = loopID
	continuation.IterationsDone = def.IterationsDone + 1

	return append(body, continuation), nil
}

// ExpandForeach advances a sequential foreach by one item. itemsResolver is
// called exactly once, on the first expansion, to resolve def.Items (a
// literal list or a "{{ expr }}"-wrapped expression) — subsequent
// continuations reuse the resolved slice via RemainingItems/NextIndex so
// the items expression is never re-evaluated mid-loop.
func ExpandForeach(def model.StepDefinition, scope expr.Context, itemsResolver func() ([]any, error)) ([]model.StepDefinition, error) {
	items := def.RemainingItems
	if items == nil {
		resolved, err := itemsResolver()
		if err != nil {
			return nil, fmt.Errorf("foreach %s items: %w", def.ID, err)
		}
		items = resolved
	}

	if def.NextIndex >= len(items) {
		return nil, nil
	}

	loopID := def.LoopInstanceID
	if loopID == "" {
		loopID = newLoopInstanceID()
	}

	item := items[def.NextIndex]
	frameThis := map[string]any{"item": item}
	if def.VarName != "" {
		frameThis[def.VarName] = item
	}
	frameLoop := map[string]any{"index": def.NextIndex, "total": len(items)}

	bodyWithFrame := make([]model.StepDefinition, len(def.Body))
	for i, step := range def.Body {
		bodyWithFrame[i] = step.WithScope(mergeScope(def.ScopeThis, frameThis), mergeScope(def.ScopeLoop, frameLoop))
	}
	body := tagLoopInstance(bodyWithFrame, loopID)

	continuation := def
	continuation.RemainingItems = items
	continuation.NextIndex = def.NextIndex + 1
	continuation.LoopInstanceID = loopID

	return append(body, continuation), nil
}

// ResolveItemsExpression resolves a foreach step's Items field: either a
// literal list embedded by the loader, or a "{{ expr }}"-wrapped expression
// evaluated against scope.
func ResolveItemsExpression(itemsField string, scope expr.Context) ([]any, error) {
	expression, wrapped := expr.StripTemplateDelimiters(itemsField)
	if !wrapped {
		expression = itemsField
	}

	result, err := expr.EvaluateScoped(expression, scope)
	if err != nil {
		return nil, err
	}

	list, ok := result.([]any)
	if !ok {
		return nil, fmt.Errorf("items expression %q did not evaluate to a list", itemsField)
	}
	return list, nil
}

func tagLoopInstance(steps []model.StepDefinition, loopID string) []model.StepDefinition {
	out := make([]model.StepDefinition, len(steps))
	for i, s := range steps {
		out[i] = tagOne(s, loopID)
	}
	return out
}

// tagOne assigns loopID to break/continue steps and recurses into
// conditional branches (which share the enclosing loop's scope), but not
// into nested while_loop/foreach bodies, which manage their own break/
// continue scope once they start generating their own continuations.
func tagOne(s model.StepDefinition, loopID string) model.StepDefinition {
	switch s.Type {
	case "break", "continue":
		s.LoopInstanceID = loopID
	case "conditional":
		s.Then = tagLoopInstance(s.Then, loopID)
		s.Else = tagLoopInstance(s.Else, loopID)
	}
	return s
}

func mergeScope(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}
