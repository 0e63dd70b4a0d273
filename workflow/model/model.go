// Package model defines the data types that flow through workflow loading,
// execution, and state management: workflow definitions, step definitions,
// and the handful of small value types steps and state share.
package model

// Tier identifies one of the three state tiers a workflow manages.
type Tier string

const (
	TierInputs   Tier = "inputs"
	TierState    Tier = "state"
	TierComputed Tier = "computed"
)

// OnErrorPolicy controls what a computed field does when its transform fails.
type OnErrorPolicy string

const (
	OnErrorUseFallback OnErrorPolicy = "use_fallback"
	OnErrorPropagate   OnErrorPolicy = "propagate"
	OnErrorIgnore      OnErrorPolicy = "ignore"
)

// InputDefinition declares a single input field accepted at workflow start.
type InputDefinition struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type" json:"type"`
	Required    bool   `yaml:"required" json:"required"`
	Default     any    `yaml:"default,omitempty" json:"default,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// ComputedFieldDefinition declares a field in the computed tier, derived from
// one or more source paths via a transform expression.
type ComputedFieldDefinition struct {
	Name      string        `yaml:"name" json:"name"`
	From      []string      `yaml:"from" json:"from"`
	Transform string        `yaml:"transform" json:"transform"`
	OnError   OnErrorPolicy `yaml:"on_error,omitempty" json:"on_error,omitempty"`
	Fallback  any           `yaml:"fallback,omitempty" json:"fallback,omitempty"`
}

// SubAgentTaskDefinition declares a sub-agent task template referenced by a
// parallel_foreach step.
type SubAgentTaskDefinition struct {
	Name           string            `yaml:"name" json:"name"`
	PromptTemplate string            `yaml:"prompt_template,omitempty" json:"prompt_template,omitempty"`
	Inputs         []InputDefinition `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Steps          []StepDefinition  `yaml:"steps" json:"steps"`
}

// ShellStateUpdate is shell_command's optional inline clause selecting what
// to write to state once the subprocess finishes. Value selects the source:
// "stdout" (the default when Value is nil), "stderr", "returncode",
// "full_output" (the whole {stdout, stderr, returncode, command} dict), or
// any other value, which is stored as a literal.
type ShellStateUpdate struct {
	Path  string `yaml:"path" json:"path"`
	Value any    `yaml:"value,omitempty" json:"value,omitempty"`
}

// StepDefinition is one node of a workflow's declarative step tree. Type
// determines which of the optional fields below are meaningful; unused
// fields are left zero.
type StepDefinition struct {
	ID   string `yaml:"id,omitempty" json:"id,omitempty"`
	Type string `yaml:"type" json:"type"`

	// state_update
	Path  string `yaml:"path,omitempty" json:"path,omitempty"`
	Value any    `yaml:"value,omitempty" json:"value,omitempty"`

	// shell_command
	Command          string            `yaml:"command,omitempty" json:"command,omitempty"`
	WorkingDir       string            `yaml:"working_dir,omitempty" json:"working_dir,omitempty"`
	TimeoutMS        int               `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty"`
	ShellStateUpdate *ShellStateUpdate `yaml:"state_update,omitempty" json:"state_update,omitempty"`

	// user_message / agent_prompt
	Message string `yaml:"message,omitempty" json:"message,omitempty"`

	// mcp_call / internal_mcp_call
	Tool string         `yaml:"tool,omitempty" json:"tool,omitempty"`
	Args map[string]any `yaml:"args,omitempty" json:"args,omitempty"`

	// user_input
	Prompt string `yaml:"prompt,omitempty" json:"prompt,omitempty"`

	// conditional
	Condition string           `yaml:"condition,omitempty" json:"condition,omitempty"`
	Then      []StepDefinition `yaml:"then,omitempty" json:"then,omitempty"`
	Else      []StepDefinition `yaml:"else,omitempty" json:"else,omitempty"`

	// while_loop
	MaxIterations int              `yaml:"max_iterations,omitempty" json:"max_iterations,omitempty"`
	Body          []StepDefinition `yaml:"body,omitempty" json:"body,omitempty"`

	// foreach / parallel_foreach
	Items        string `yaml:"items,omitempty" json:"items,omitempty"`
	VarName      string `yaml:"var_name,omitempty" json:"var_name,omitempty"`
	MaxParallel  int    `yaml:"max_parallel,omitempty" json:"max_parallel,omitempty"`
	WaitForAll   *bool  `yaml:"wait_for_all,omitempty" json:"wait_for_all,omitempty"`
	SubAgentTask string `yaml:"sub_agent_task,omitempty" json:"sub_agent_task,omitempty"`

	Steps []StepDefinition `yaml:"steps,omitempty" json:"steps,omitempty"`

	// Internal bookkeeping the control-flow expander attaches to generated
	// continuation/break/continue steps. Never present in an authored
	// workflow file.
	LoopInstanceID string         `yaml:"-" json:"-"`
	IterationsDone int            `yaml:"-" json:"-"`
	RemainingItems []any          `yaml:"-" json:"-"`
	NextIndex      int            `yaml:"-" json:"-"`
	ScopeThis      map[string]any `yaml:"-" json:"-"`
	ScopeLoop      map[string]any `yaml:"-" json:"-"`

	// SubAgentID identifies which parallel_foreach task instance a step
	// belongs to (e.g. "step3.item2"), assigned by workflow/subagent when it
	// expands a parallel_foreach step. Empty for every other step.
	SubAgentID string `yaml:"-" json:"-"`
}

// WithScope returns a copy of the step carrying an additional "this"/"loop"
// binding layered on top of whatever scope it already carries (nested
// foreach loops compose their bindings this way, innermost last).
func (s StepDefinition) WithScope(this, loop map[string]any) StepDefinition {
	next := s
	next.ScopeThis = mergeMaps(s.ScopeThis, this)
	next.ScopeLoop = mergeMaps(s.ScopeLoop, loop)
	return next
}

func mergeMaps(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

// WaitForAllValue reports the step's wait_for_all setting, defaulting to true
// when unset (per the workflow's parallel_foreach resumption semantics).
func (s StepDefinition) WaitForAllValue() bool {
	if s.WaitForAll == nil {
		return true
	}
	return *s.WaitForAll
}

// WorkflowDefinition is the root of a loaded workflow file.
type WorkflowDefinition struct {
	Name          string                     `yaml:"name" json:"name"`
	Description   string                     `yaml:"description,omitempty" json:"description,omitempty"`
	Inputs        []InputDefinition          `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	DefaultState  map[string]any             `yaml:"default_state,omitempty" json:"default_state,omitempty"`
	Computed      []ComputedFieldDefinition  `yaml:"computed,omitempty" json:"computed,omitempty"`
	SubAgentTasks []SubAgentTaskDefinition   `yaml:"sub_agent_tasks,omitempty" json:"sub_agent_tasks,omitempty"`
	Steps         []StepDefinition           `yaml:"steps" json:"steps"`
}

// SubAgentTask looks up a declared sub-agent task by name.
func (w *WorkflowDefinition) SubAgentTask(name string) (SubAgentTaskDefinition, bool) {
	for _, t := range w.SubAgentTasks {
		if t.Name == name {
			return t, true
		}
	}
	return SubAgentTaskDefinition{}, false
}
