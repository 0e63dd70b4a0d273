package steps

import (
	"fmt"

	"github.com/flowkernel/engine/workflow/model"
)

// IsBreak and IsContinue identify the two loop-control step types. Neither
// expands to children; the queue executor handles them by surgically
// trimming its own pending queue down to (continue) or through (break) the
// next item sharing the step's LoopInstanceID — see loop.go's ExpandWhileLoop
// and ExpandForeach for how that ID is attached.
func IsBreak(def model.StepDefinition) bool    { return def.Type == "break" }
func IsContinue(def model.StepDefinition) bool { return def.Type == "continue" }

// ValidateLoopControl reports an error if a break/continue step was reached
// with no enclosing loop to target (it was never tagged with a
// LoopInstanceID by an enclosing while_loop/foreach expansion).
func ValidateLoopControl(def model.StepDefinition) error {
	if (IsBreak(def) || IsContinue(def)) && def.LoopInstanceID == "" {
		return fmt.Errorf("%s step %q is not inside a loop", def.Type, def.ID)
	}
	return nil
}
