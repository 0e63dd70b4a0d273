// Package schema defines the workflow structural-validation surface. Full
// JSON Schema validation of step parameters (the original validator's
// jsonschema-backed per-step-type checks) is explicitly out of scope here;
// this package only validates the handful of structural invariants the
// engine itself depends on (every step has a known type, every
// sub_agent_task reference resolves), grounded on
// original_source/workflow/validator.py's REQUIRED_FIELDS/VALID_STEP_TYPES
// checks minus its jsonschema dependency.
package schema

import (
	"fmt"

	"github.com/flowkernel/engine/workflow/model"
	"github.com/flowkernel/engine/workflow/registry"
)

// Validator checks a loaded workflow definition before it is handed to the
// queue executor.
type Validator interface {
	Validate(def *model.WorkflowDefinition) []error
}

// NoopValidator accepts every workflow. Used when the caller has already
// validated elsewhere, or wants to accept experimental step types.
type NoopValidator struct{}

func (NoopValidator) Validate(*model.WorkflowDefinition) []error { return nil }

// StructuralValidator checks the invariants the engine cannot safely run
// without: every step's type is in the registry's closed catalog, every
// parallel_foreach's sub_agent_task reference resolves, every conditional/
// loop body is itself structurally valid.
type StructuralValidator struct{}

func (StructuralValidator) Validate(def *model.WorkflowDefinition) []error {
	var errs []error

	if def.Name == "" {
		errs = append(errs, fmt.Errorf("workflow must declare a name"))
	}
	if len(def.Steps) == 0 {
		errs = append(errs, fmt.Errorf("workflow %q declares no steps", def.Name))
	}

	taskNames := make(map[string]bool, len(def.SubAgentTasks))
	for _, t := range def.SubAgentTasks {
		taskNames[t.Name] = true
	}

	errs = append(errs, validateSteps(def.Steps, taskNames)...)
	return errs
}

func validateSteps(steps []model.StepDefinition, taskNames map[string]bool) []error {
	var errs []error
	for _, s := range steps {
		if _, ok := registry.Get(s.Type); !ok {
			errs = append(errs, fmt.Errorf("step %q: unknown step type %q", s.ID, s.Type))
			continue
		}
		if s.Type == "parallel_foreach" && s.SubAgentTask != "" && !taskNames[s.SubAgentTask] {
			errs = append(errs, fmt.Errorf("step %q: sub_agent_task %q is not declared", s.ID, s.SubAgentTask))
		}
		errs = append(errs, validateSteps(s.Then, taskNames)...)
		errs = append(errs, validateSteps(s.Else, taskNames)...)
		errs = append(errs, validateSteps(s.Body, taskNames)...)
	}
	return errs
}
