package transform

import (
	"testing"

	"github.com/flowkernel/engine/workflow/model"
)

func TestJSTransformerBasic(t *testing.T) {
	tr := NewJSTransformer()
	got, err := tr.Transform("a + b", map[string]any{"a": 1, "b": 2}, []any{1, 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != int64(3) {
		t.Fatalf("got %v", got)
	}
}

func TestApplyUsesFallbackOnError(t *testing.T) {
	field := model.ComputedFieldDefinition{
		Name:      "bad",
		Transform: "nonexistent.property",
		OnError:   model.OnErrorUseFallback,
		Fallback:  "default",
	}
	result, keep, err := Apply(NewJSTransformer(), field, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !keep || result != "default" {
		t.Fatalf("got %v, %v", result, keep)
	}
}

func TestApplyPropagatesError(t *testing.T) {
	field := model.ComputedFieldDefinition{
		Name:      "bad",
		Transform: "nonexistent.property",
		OnError:   model.OnErrorPropagate,
	}
	_, _, err := Apply(NewJSTransformer(), field, nil, nil)
	if err == nil {
		t.Fatalf("expected propagated error")
	}
}

func TestApplyIgnoresError(t *testing.T) {
	field := model.ComputedFieldDefinition{
		Name:      "bad",
		Transform: "nonexistent.property",
		OnError:   model.OnErrorIgnore,
	}
	result, keep, err := Apply(NewJSTransformer(), field, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if keep || result != nil {
		t.Fatalf("expected field skipped, got %v, %v", result, keep)
	}
}
