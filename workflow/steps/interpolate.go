// Package steps implements server-side step execution (state_update,
// shell_command), control-flow expansion (conditional/while_loop/foreach/
// break/continue), and "{{ expr }}" template interpolation — the step
// processor component of the engine. parallel_foreach is expanded by
// workflow/subagent, not here.
package steps

import (
	"regexp"
	"strings"

	"github.com/flowkernel/engine/workflow/execctx"
	"github.com/flowkernel/engine/workflow/expr"
)

var templateRef = regexp.MustCompile(`\{\{\s*(.*?)\s*\}\}`)

// Interpolate substitutes every "{{ expr }}" reference in template with the
// string form of expr evaluated against scope. "{{ name || default }}"
// falls back to default when name resolves to null/undefined, matching the
// parallel_foreach input-defaulting syntax the original prompt templates use.
func Interpolate(template string, scope expr.Context) (string, error) {
	var evalErr error

	result := templateRef.ReplaceAllStringFunc(template, func(match string) string {
		inner := templateRef.FindStringSubmatch(match)[1]

		expression, fallback, hasFallback := splitDefault(inner)

		val, err := expr.EvaluateScoped(expression, scope)
		if err != nil {
			evalErr = err
			return match
		}
		if val == nil && hasFallback {
			return fallback
		}
		return stringify(val)
	})

	if evalErr != nil {
		return "", evalErr
	}
	return result, nil
}

// splitDefault splits "name || 'default'" into its expression and default
// literal, stripping surrounding quotes from the default if present.
func splitDefault(inner string) (expression, fallback string, hasFallback bool) {
	idx := strings.Index(inner, "||")
	if idx == -1 {
		return inner, "", false
	}
	expression = strings.TrimSpace(inner[:idx])
	fallback = strings.TrimSpace(inner[idx+2:])
	fallback = strings.Trim(fallback, `'"`)
	return expression, fallback, true
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return toJSONish(t)
	}
}

// RenderLoopFrame builds the scope.This exposed for a single foreach/
// parallel_foreach iteration.
func RenderLoopFrame(varName string, item any, index, total int) execctx.Frame {
	return execctx.Frame{VarName: varName, Item: item, Index: index, Total: total}
}
