package expr

import "testing"

func TestEvaluateFlatContext(t *testing.T) {
	got, err := Evaluate("count + 1", map[string]any{"count": 41})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != int64(42) {
		t.Fatalf("got %v (%T)", got, got)
	}
}

func TestEvaluateScopedContext(t *testing.T) {
	ctx := Context{
		This:   map[string]any{"item": "file.go", "index": 0},
		Loop:   map[string]any{"total": 3},
		Inputs: map[string]any{"prefix": "src/"},
	}

	got, err := EvaluateScoped("inputs.prefix + this.item", ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "src/file.go" {
		t.Fatalf("got %v", got)
	}
}

func TestUnresolvedIdentifierYieldsNil(t *testing.T) {
	got, err := Evaluate("missing_variable", map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestStripTemplateDelimiters(t *testing.T) {
	inner, wrapped := StripTemplateDelimiters("{{ loop.item.name }}")
	if !wrapped || inner != "loop.item.name" {
		t.Fatalf("got %q, %v", inner, wrapped)
	}

	inner, wrapped = StripTemplateDelimiters("plain_value")
	if wrapped || inner != "plain_value" {
		t.Fatalf("got %q, %v", inner, wrapped)
	}
}

func TestTruthy(t *testing.T) {
	cases := []struct {
		v    any
		want bool
	}{
		{nil, false},
		{"", false},
		{"x", true},
		{float64(0), false},
		{float64(1), true},
		{[]any{}, true},
	}
	for _, c := range cases {
		if got := Truthy(c.v); got != c.want {
			t.Errorf("Truthy(%v) = %v, want %v", c.v, got, c.want)
		}
	}
}
