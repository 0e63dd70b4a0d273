// Package expr implements the scoped expression language conditions,
// templates, and computed-field dependencies are written in. It is a thin
// wrapper around an embedded goja (pure-Go ECMAScript) runtime rather than
// a hand-rolled lexer/parser: a real JS engine is the spec-preferred
// backend, and it gives native coercion, truthiness, and string/array method
// semantics for free instead of re-implementing them (the original Python
// implementation hand-rolls a recursive-descent parser; goja is the Go
// ecosystem's equivalent of "a real JS engine").
package expr

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// Scope names recognized inside a scoped expression.
const (
	ScopeThis   = "this"
	ScopeGlobal = "global"
	ScopeLoop   = "loop"
	ScopeInputs = "inputs"
)

// Context supplies the named scopes available to a scoped expression. Any
// scope left nil is simply not defined in the expression's runtime — a
// reference into it resolves to null rather than raising, per the
// "unresolved identifiers yield null" rule.
type Context struct {
	This   map[string]any
	Global map[string]any
	Loop   map[string]any
	Inputs map[string]any
}

// Error wraps an evaluation failure with the offending expression text.
type Error struct {
	Expression string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("expression %q: %v", e.Expression, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Evaluate runs expression against a flat (backward-compatible) variable
// context: every key in vars is a top-level identifier.
func Evaluate(expression string, vars map[string]any) (any, error) {
	return evaluate(expression, vars)
}

// EvaluateScoped runs expression with this/global/loop/inputs bound as
// described by ctx.
func EvaluateScoped(expression string, ctx Context) (any, error) {
	vars := map[string]any{
		ScopeThis:   ctx.This,
		ScopeGlobal: ctx.Global,
		ScopeLoop:   ctx.Loop,
		ScopeInputs: ctx.Inputs,
	}
	return evaluate(expression, vars)
}

// StripTemplateDelimiters removes a surrounding "{{ ... }}" wrapper from a
// string if present, returning the trimmed expression and whether it was
// wrapped. Several step fields (items, conditions embedded in templates)
// accept either a bare value or a "{{ expr }}" wrapped expression.
func StripTemplateDelimiters(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") {
		inner := strings.TrimSpace(trimmed[2 : len(trimmed)-2])
		return inner, true
	}
	return s, false
}

// "this" is a reserved identifier: a plain vm.Set("this", ...) defines a
// global property that bare "this" references never see, since unqualified
// "this" resolves through the language's receiver binding instead of
// ordinary identifier lookup. So ctx.This is bound by wrapping the
// expression in a function and invoking it with .call() against an
// internal, non-reserved variable holding the intended receiver.
const thisReceiverVar = "__scope_this__"

func evaluate(expression string, vars map[string]any) (any, error) {
	vm := goja.New()

	thisVal := vars[ScopeThis]
	if err := vm.Set(thisReceiverVar, thisVal); err != nil {
		return nil, &Error{Expression: expression, Err: fmt.Errorf("binding this: %w", err)}
	}

	for name, val := range vars {
		if name == ScopeThis || val == nil {
			continue
		}
		if err := vm.Set(name, val); err != nil {
			return nil, &Error{Expression: expression, Err: fmt.Errorf("binding %q: %w", name, err)}
		}
	}

	wrapped := "(function(){\nreturn (\n" + expression + "\n);\n}).call(" + thisReceiverVar + ")"

	value, err := vm.RunString(wrapped)
	if err != nil {
		if isReferenceError(err) {
			return nil, nil
		}
		return nil, &Error{Expression: expression, Err: err}
	}

	return exportValue(value), nil
}

func isReferenceError(err error) bool {
	exc, ok := err.(*goja.Exception)
	if !ok {
		return false
	}
	val := exc.Value()
	obj, ok := val.(*goja.Object)
	if !ok {
		return false
	}
	name := obj.Get("name")
	return name != nil && name.String() == "ReferenceError"
}

func exportValue(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}

// Truthy applies JS-style truthiness to an already-evaluated value, for
// callers (conditional/while_loop steps) that need to branch on a result
// without re-entering the VM.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case []any:
		return true
	case map[string]any:
		return true
	default:
		return true
	}
}
