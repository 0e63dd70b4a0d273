package wfstate

import (
	"testing"

	"github.com/flowkernel/engine/workflow/depgraph"
	"github.com/flowkernel/engine/workflow/model"
	"github.com/flowkernel/engine/workflow/transform"
)

func TestRecomputeDerivesFromState(t *testing.T) {
	fields := []model.ComputedFieldDefinition{
		{Name: "full_name", From: []string{"state.first", "state.last"}, Transform: "first + ' ' + last"},
	}
	graph, err := depgraph.Build(fields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := New(nil)
	s, err = s.ApplyUpdates([]Update{
		{Path: "state.first", Value: "Ada"},
		{Path: "state.last", Value: "Lovelace"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s, err = s.Recompute(graph, transform.NewJSTransformer(), []string{"state.first", "state.last"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := s.Read("computed.full_name")
	if !ok || got != "Ada Lovelace" {
		t.Fatalf("got %v, %v", got, ok)
	}
}

func TestRecomputeUsesFallbackOnError(t *testing.T) {
	fields := []model.ComputedFieldDefinition{
		{
			Name:      "ratio",
			From:      []string{"state.numerator", "state.denominator"},
			Transform: "if (denominator === 0) { throw new Error('div by zero') }; numerator / denominator",
			OnError:   model.OnErrorUseFallback,
			Fallback:  0,
		},
	}
	graph, err := depgraph.Build(fields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := New(nil)
	s, err = s.ApplyUpdates([]Update{
		{Path: "state.numerator", Value: 10},
		{Path: "state.denominator", Value: 0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s, err = s.Recompute(graph, transform.NewJSTransformer(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := s.Read("computed.ratio")
	if !ok || got != 0 {
		t.Fatalf("got %v, %v", got, ok)
	}
}
