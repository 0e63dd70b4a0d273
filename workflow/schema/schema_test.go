package schema

import (
	"testing"

	"github.com/flowkernel/engine/workflow/model"
)

func TestStructuralValidatorRejectsUnknownStepType(t *testing.T) {
	def := &model.WorkflowDefinition{
		Name:  "bad",
		Steps: []model.StepDefinition{{ID: "s1", Type: "teleport"}},
	}
	errs := StructuralValidator{}.Validate(def)
	if len(errs) == 0 {
		t.Fatalf("expected validation error for unknown step type")
	}
}

func TestStructuralValidatorRejectsUnknownSubAgentTask(t *testing.T) {
	def := &model.WorkflowDefinition{
		Name: "fanout",
		Steps: []model.StepDefinition{
			{ID: "s1", Type: "parallel_foreach", SubAgentTask: "nope", Items: "{{ [] }}"},
		},
	}
	errs := StructuralValidator{}.Validate(def)
	if len(errs) == 0 {
		t.Fatalf("expected validation error for undeclared sub_agent_task")
	}
}

func TestStructuralValidatorAcceptsValidWorkflow(t *testing.T) {
	def := &model.WorkflowDefinition{
		Name: "ok",
		Steps: []model.StepDefinition{
			{ID: "s1", Type: "state_update", Path: "state.x", Value: 1},
		},
	}
	if errs := StructuralValidator{}.Validate(def); len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestNoopValidatorAlwaysAccepts(t *testing.T) {
	if errs := (NoopValidator{}).Validate(&model.WorkflowDefinition{}); errs != nil {
		t.Fatalf("expected nil, got %v", errs)
	}
}
