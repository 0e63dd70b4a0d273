// Package transform implements computed-field transform bodies: arbitrary
// JS expressions applied to one or more source values, with an on_error
// policy the caller applies around the result. It shares the same goja
// backend as workflow/expr, giving transform bodies exact semantic parity
// with condition/template expressions, as recommended for author-supplied
// transforms.
package transform

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/flowkernel/engine/workflow/model"
)

// Transformer evaluates a computed field's transform body against its
// resolved source values.
type Transformer interface {
	// Transform runs body with each name in sources bound as a top-level
	// variable, plus "values" bound to the ordered slice of source values
	// (for transforms that treat "from" as a positional list).
	Transform(body string, sources map[string]any, values []any) (any, error)
}

// JSTransformer is the production Transformer, backed by goja.
type JSTransformer struct{}

func NewJSTransformer() *JSTransformer { return &JSTransformer{} }

func (t *JSTransformer) Transform(body string, sources map[string]any, values []any) (any, error) {
	vm := goja.New()

	for name, val := range sources {
		if err := vm.Set(name, val); err != nil {
			return nil, fmt.Errorf("binding %q: %w", name, err)
		}
	}
	if err := vm.Set("values", values); err != nil {
		return nil, fmt.Errorf("binding values: %w", err)
	}

	result, err := vm.RunString(body)
	if err != nil {
		return nil, fmt.Errorf("transform %q: %w", body, err)
	}
	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return nil, nil
	}
	return result.Export(), nil
}

// Apply runs a computed field's transform, applying its on_error policy
// (use_fallback/propagate/ignore) around a failure. sources maps each of
// the field's "from" paths (trimmed to their leaf name) to its resolved
// value; values holds the same values in "from" order.
func Apply(t Transformer, field model.ComputedFieldDefinition, sources map[string]any, values []any) (any, bool, error) {
	result, err := t.Transform(field.Transform, sources, values)
	if err == nil {
		return result, true, nil
	}

	switch field.OnError {
	case model.OnErrorUseFallback, "":
		return field.Fallback, true, nil
	case model.OnErrorIgnore:
		return nil, false, nil
	case model.OnErrorPropagate:
		return nil, false, fmt.Errorf("computed field %q: %w", field.Name, err)
	default:
		return nil, false, fmt.Errorf("computed field %q: unknown on_error policy %q", field.Name, field.OnError)
	}
}
