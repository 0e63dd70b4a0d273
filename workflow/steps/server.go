package steps

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/flowkernel/engine/workflow/execctx"
	"github.com/flowkernel/engine/workflow/expr"
	"github.com/flowkernel/engine/workflow/model"
	"github.com/flowkernel/engine/workflow/wfstate"
)

// ShellResult captures a shell_command step's outcome, returned to the
// caller so it can be surfaced back to the client if the workflow author
// wants it visible (the step itself runs entirely server-side).
type ShellResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// RunStateUpdate resolves a state_update step's path/value into a
// wfstate.Update. Value may itself be a "{{ expr }}" string, in which case
// evalExpr (an expr.EvaluateScoped closure bound to the step's scope) is
// used to resolve it before writing.
func RunStateUpdate(def model.StepDefinition, evalExpr func(expression string) (any, error)) (wfstate.Update, error) {
	value := def.Value
	if s, ok := def.Value.(string); ok {
		if expression, wrapped := expr.StripTemplateDelimiters(s); wrapped {
			resolved, err := evalExpr(expression)
			if err != nil {
				return wfstate.Update{}, fmt.Errorf("state_update %q: %w", def.Path, err)
			}
			value = resolved
		}
	}
	return wfstate.Update{Path: def.Path, Value: value}, nil
}

// RunShellCommand executes a shell_command step's command through the
// shell, bounded by the step's timeout (falling back to defaultTimeout when
// unset). Output is captured regardless of exit status; a non-zero exit
// code is reported in the result, not as a Go error — only a failure to
// start the process, or a context deadline, is a Go error.
func RunShellCommand(ctx context.Context, def model.StepDefinition, defaultTimeout time.Duration) (ShellResult, error) {
	timeout := defaultTimeout
	if def.TimeoutMS > 0 {
		timeout = time.Duration(def.TimeoutMS) * time.Millisecond
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", def.Command)
	if def.WorkingDir != "" {
		cmd.Dir = def.WorkingDir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() != nil {
		return ShellResult{}, fmt.Errorf("shell_command %q: %w", def.Command, runCtx.Err())
	}

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return ShellResult{}, fmt.Errorf("shell_command %q: %w", def.Command, err)
		}
	}

	return ShellResult{
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

// ResolveShellStateUpdate turns a shell_command's inline state_update clause
// and the command's result into a wfstate.Update, selecting stdout (the
// default), stderr, returncode, the full output dict, or a literal per
// update.Value. Returns false if update is nil (no clause present).
func ResolveShellStateUpdate(update *model.ShellStateUpdate, command string, result ShellResult) (wfstate.Update, bool) {
	if update == nil {
		return wfstate.Update{}, false
	}

	source := update.Value
	if source == nil {
		source = "stdout"
	}

	value := source
	if selector, ok := source.(string); ok {
		switch selector {
		case "stdout":
			value = strings.TrimSpace(result.Stdout)
		case "stderr":
			value = strings.TrimSpace(result.Stderr)
		case "returncode":
			value = result.ExitCode
		case "full_output":
			value = map[string]any{
				"stdout":     result.Stdout,
				"stderr":     result.Stderr,
				"returncode": result.ExitCode,
				"command":    command,
			}
		default:
			value = selector
		}
	}

	return wfstate.Update{Path: update.Path, Value: value}, true
}

// Scope is an alias for execctx.Frame, one loop iteration's binding.
type Scope = execctx.Frame
