package queue

import (
	"context"
	"testing"

	"github.com/flowkernel/engine/workflow/config"
	"github.com/flowkernel/engine/workflow/model"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	e, err := NewExecutor(config.DefaultQueueConfig("test"), nil)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	return e
}

func TestStartSeedsQueueAndAppliesInputs(t *testing.T) {
	e := newTestExecutor(t)
	def := &model.WorkflowDefinition{
		Name:         "greet",
		Inputs:       []model.InputDefinition{{Name: "name", Type: "string"}},
		DefaultState: map[string]any{"greeted": false},
		Steps: []model.StepDefinition{
			{Type: "state_update", Path: "state.greeted", Value: true},
		},
	}

	runID, err := e.Start(context.Background(), def, map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if runID == "" {
		t.Fatalf("expected non-empty run id")
	}

	batch, completed, done, err := e.GetNextStep(context.Background(), runID)
	if err != nil {
		t.Fatalf("GetNextStep: %v", err)
	}
	if !done {
		t.Fatalf("expected workflow to finish after its one server step, got batch %+v", batch)
	}
	if len(completed) != 1 || completed[0].Type != "state_update" {
		t.Fatalf("expected one server-completed state_update entry, got %+v", completed)
	}

	state, _, err := e.stateMgr.Read(runID)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if state.State["greeted"] != true {
		t.Fatalf("expected state_update to have run, got %+v", state.State)
	}
	if state.Inputs["name"] != "Ada" {
		t.Fatalf("expected input bound, got %+v", state.Inputs)
	}
}

func TestGetNextStepBatchesClientSteps(t *testing.T) {
	e := newTestExecutor(t)
	def := &model.WorkflowDefinition{
		Name: "ask",
		Steps: []model.StepDefinition{
			{Type: "user_message", Message: "hello {{ inputs.name || 'there' }}"},
			{Type: "user_input", Prompt: "what next?"},
		},
	}

	runID, err := e.Start(context.Background(), def, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	batch, _, done, err := e.GetNextStep(context.Background(), runID)
	if err != nil {
		t.Fatalf("GetNextStep: %v", err)
	}
	if done {
		t.Fatalf("expected two pending client steps, not done")
	}
	if len(batch) != 2 {
		t.Fatalf("expected batch of 2, got %d", len(batch))
	}
	if batch[0].Message != "hello there" {
		t.Fatalf("expected default-filled message, got %q", batch[0].Message)
	}

	for _, step := range batch {
		if err := e.StepComplete(context.Background(), runID, step.StepID, StepResult{StepID: step.StepID}); err != nil {
			t.Fatalf("StepComplete(%s): %v", step.StepID, err)
		}
	}

	_, _, done, err = e.GetNextStep(context.Background(), runID)
	if err != nil {
		t.Fatalf("GetNextStep after completion: %v", err)
	}
	if !done {
		t.Fatalf("expected workflow to finish once both client steps complete")
	}
}

func TestConditionalExpandsThenBranch(t *testing.T) {
	e := newTestExecutor(t)
	def := &model.WorkflowDefinition{
		Name:         "branch",
		DefaultState: map[string]any{"count": 10},
		Steps: []model.StepDefinition{
			{
				Type:      "conditional",
				Condition: "global.count > 5",
				Then:      []model.StepDefinition{{Type: "state_update", Path: "state.big", Value: true}},
				Else:      []model.StepDefinition{{Type: "state_update", Path: "state.big", Value: false}},
			},
		},
	}

	runID, err := e.Start(context.Background(), def, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	_, _, done, err := e.GetNextStep(context.Background(), runID)
	if err != nil {
		t.Fatalf("GetNextStep: %v", err)
	}
	if !done {
		t.Fatalf("expected workflow to finish")
	}

	state, _, err := e.stateMgr.Read(runID)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if state.State["big"] != true {
		t.Fatalf("expected then-branch to run, got %+v", state.State)
	}
}

func TestBreakStopsLoopEarly(t *testing.T) {
	e := newTestExecutor(t)
	def := &model.WorkflowDefinition{
		Name:         "loopy",
		DefaultState: map[string]any{"n": 0},
		Steps: []model.StepDefinition{
			{
				Type:          "while_loop",
				ID:            "loop1",
				Condition:     "global.n < 5",
				MaxIterations: 10,
				Body: []model.StepDefinition{
					{Type: "state_update", Path: "state.n", Value: "{{ global.n + 1 }}"},
					{
						Type:      "conditional",
						Condition: "global.n >= 1",
						Then:      []model.StepDefinition{{Type: "break"}},
					},
				},
			},
		},
	}

	runID, err := e.Start(context.Background(), def, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 20; i++ {
		_, _, done, err := e.GetNextStep(context.Background(), runID)
		if err != nil {
			t.Fatalf("GetNextStep iteration %d: %v", i, err)
		}
		if done {
			break
		}
	}

	state, _, err := e.stateMgr.Read(runID)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if state.State["n"] != int64(1) {
		t.Fatalf("expected loop to break after first increment, got %+v", state.State["n"])
	}
}

func TestShellCommandStateUpdateWritesSelectedOutput(t *testing.T) {
	e := newTestExecutor(t)
	def := &model.WorkflowDefinition{
		Name: "capture_output",
		Steps: []model.StepDefinition{
			{
				Type:    "shell_command",
				ID:      "s1",
				Command: "echo hello",
				ShellStateUpdate: &model.ShellStateUpdate{
					Path: "state.greeting",
				},
			},
		},
	}

	runID, err := e.Start(context.Background(), def, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	_, completed, done, err := e.GetNextStep(context.Background(), runID)
	if err != nil {
		t.Fatalf("GetNextStep: %v", err)
	}
	if !done {
		t.Fatalf("expected workflow to finish after its one server step")
	}
	if len(completed) != 1 || completed[0].Type != "shell_command" {
		t.Fatalf("expected one server-completed shell_command entry, got %+v", completed)
	}

	state, _, err := e.stateMgr.Read(runID)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if state.State["greeting"] != "hello" {
		t.Fatalf("expected stdout (trimmed) stored at state.greeting, got %+v", state.State)
	}
}

func TestForeachProducesOrderedServerCompletedShellCommands(t *testing.T) {
	e := newTestExecutor(t)
	def := &model.WorkflowDefinition{
		Name: "foreach_shell",
		Steps: []model.StepDefinition{
			{
				Type:  "foreach",
				ID:    "loop1",
				Items: "{{ [1, 2, 3] }}",
				Body: []model.StepDefinition{
					{Type: "shell_command", Command: "echo X"},
				},
			},
		},
	}

	runID, err := e.Start(context.Background(), def, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	var serverCompleted []ServerCompletedStep
	for i := 0; i < 20; i++ {
		_, completed, done, err := e.GetNextStep(context.Background(), runID)
		if err != nil {
			t.Fatalf("GetNextStep iteration %d: %v", i, err)
		}
		serverCompleted = append(serverCompleted, completed...)
		if done {
			break
		}
	}

	var shellSteps []ServerCompletedStep
	for _, c := range serverCompleted {
		if c.Type == "shell_command" {
			shellSteps = append(shellSteps, c)
		}
	}
	if len(shellSteps) != 3 {
		t.Fatalf("expected exactly 3 server-completed shell_command entries, got %d (%+v)", len(shellSteps), shellSteps)
	}
	for i, s := range shellSteps {
		if s.Output["exit_code"] != 0 {
			t.Fatalf("entry %d: expected echo to succeed, got %+v", i, s.Output)
		}
	}
}

func TestWhileLoopStopsAtMaxIterations(t *testing.T) {
	e := newTestExecutor(t)
	def := &model.WorkflowDefinition{
		Name:         "bounded_loop",
		DefaultState: map[string]any{"n": 0},
		Steps: []model.StepDefinition{
			{
				Type:          "while_loop",
				ID:            "loop1",
				Condition:     "true",
				MaxIterations: 4,
				Body: []model.StepDefinition{
					{Type: "state_update", Path: "state.n", Value: "{{ global.n + 1 }}"},
				},
			},
		},
	}

	runID, err := e.Start(context.Background(), def, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := false
	for i := 0; i < 20 && !done; i++ {
		_, _, d, err := e.GetNextStep(context.Background(), runID)
		if err != nil {
			t.Fatalf("GetNextStep iteration %d: %v", i, err)
		}
		done = d
	}
	if !done {
		t.Fatalf("expected the workflow to complete once max_iterations was reached")
	}

	state, _, err := e.stateMgr.Read(runID)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if state.State["n"] != int64(4) {
		t.Fatalf("expected exactly 4 body expansions, got %+v", state.State["n"])
	}
}
