// Package prompts holds the standard prompt templates handed to sub-agent
// task instances, ported from original_source/prompts/standards.py: each
// template tells a sub-agent to drive the workflow's get_next_step/
// step_complete loop under its own task_id until the workflow signals
// completion, rather than improvising what to do next.
package prompts

import (
	"os"
	"strings"

	"github.com/flowkernel/engine/workflow/expr"
	"github.com/flowkernel/engine/workflow/steps"
)

// Type names the standard prompt templates available via Render.
type Type string

const (
	ParallelForeach Type = "parallel_foreach"
	SubAgentBase    Type = "sub_agent_base"
	BatchProcessor  Type = "batch_processor"
	QualityCheck    Type = "quality_check"
	ErrorRecovery   Type = "error_recovery"
)

const parallelForeachTemplate = `You are a workflow sub-agent. Your role is to execute a specific task by following the
workflow system.

Process:
1. Call get_next_step with your task_id to get the next atomic action
2. Execute the action exactly as instructed
3. Update state as directed in the step
4. Repeat until get_next_step returns no more steps

Context: You are processing item {{ this.item }} (index {{ loop.index }} of {{ loop.total }}).
Your task_id is: {{ this.task_id }}
{{ this.debug_note }}

Important:
- Always use your task_id when calling workflow tools
- Follow step instructions exactly
- Update state only as directed
- Report errors immediately
- Do not skip steps or make shortcuts`

const subAgentBaseTemplate = `You are a workflow sub-agent executing a specific task within a larger workflow.

Your responsibilities:
1. Call get_next_step with your unique task_id
2. Execute each step exactly as instructed
3. Update workflow state only as directed
4. Continue until get_next_step returns no more steps

Your task_id: {{ this.task_id }}
Workflow context: {{ this.context }}`

const batchProcessorTemplate = `You are a batch processing sub-agent for a workflow system.

Your task: process a batch of items according to workflow instructions.

Your batch contains {{ this.batch_size }} items.
Batch context: {{ this.context }}

Use the exact task_id provided: {{ this.task_id }}`

const qualityCheckTemplate = `You are a quality assurance sub-agent for workflow execution.

Quality scope: {{ this.scope }}
Check context: {{ this.context }}
Use task_id="{{ this.task_id }}" for all workflow calls.`

const errorRecoveryTemplate = `You are an error recovery sub-agent for workflow systems.

Error context: {{ this.error_context }}
Recovery scope: {{ this.scope }}
Use exact task_id: {{ this.task_id }}`

var templates = map[Type]string{
	ParallelForeach: parallelForeachTemplate,
	SubAgentBase:    subAgentBaseTemplate,
	BatchProcessor:  batchProcessorTemplate,
	QualityCheck:    qualityCheckTemplate,
	ErrorRecovery:   errorRecoveryTemplate,
}

// Render fills a standard prompt template's "{{ this.* }}" references from
// vars, the way the original get_prompt() substitutes "{{ variable }}"
// placeholders. Unless vars sets debug_note itself, this.debug_note is set to
// a debug note when AROMCP_WORKFLOW_DEBUG=serial (same env var the original
// checks) and to "" otherwise; only the parallel_foreach template has a
// {{ this.debug_note }} placeholder, so the note appears in no other prompt.
func Render(promptType Type, vars map[string]any) (string, error) {
	template, ok := templates[promptType]
	if !ok {
		return "", &UnknownPromptError{Type: promptType}
	}

	this := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		this[k] = v
	}
	if _, ok := this["debug_note"]; !ok {
		this["debug_note"] = debugNote()
	}

	return steps.Interpolate(template, expr.Context{This: this})
}

func debugNote() string {
	if strings.EqualFold(os.Getenv("AROMCP_WORKFLOW_DEBUG"), "serial") {
		return "DEBUG MODE: process each sub-agent task serially in the main agent instead of spawning separate ones."
	}
	return ""
}

// UnknownPromptError reports a Render call for a Type with no registered
// template.
type UnknownPromptError struct {
	Type Type
}

func (e *UnknownPromptError) Error() string {
	return "unknown prompt type: " + string(e.Type)
}
