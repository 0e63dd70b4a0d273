package depgraph

import (
	"testing"

	"github.com/flowkernel/engine/workflow/model"
)

func TestBuildRejectsCycle(t *testing.T) {
	fields := []model.ComputedFieldDefinition{
		{Name: "a", From: []string{"computed.b"}, Transform: "b"},
		{Name: "b", From: []string{"computed.a"}, Transform: "a"},
	}

	if _, err := Build(fields); err == nil {
		t.Fatalf("expected cycle error")
	}
}

func TestAffectedOnlyReturnsDependents(t *testing.T) {
	fields := []model.ComputedFieldDefinition{
		{Name: "full_name", From: []string{"state.first", "state.last"}, Transform: "first + last"},
		{Name: "greeting", From: []string{"computed.full_name"}, Transform: "'hi ' + full_name"},
		{Name: "unrelated", From: []string{"state.other"}, Transform: "other"},
	}

	g, err := Build(fields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	affected := g.Affected([]string{"state.first"})
	names := make([]string, len(affected))
	for i, f := range affected {
		names[i] = f.Name
	}

	if len(names) != 2 || names[0] != "full_name" || names[1] != "greeting" {
		t.Fatalf("unexpected affected set: %v", names)
	}
}

func TestAffectedOrdersDependenciesFirst(t *testing.T) {
	fields := []model.ComputedFieldDefinition{
		{Name: "b", From: []string{"computed.a"}, Transform: "a"},
		{Name: "a", From: []string{"state.x"}, Transform: "x"},
	}

	g, err := Build(fields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	all := g.All()
	if all[0].Name != "a" || all[1].Name != "b" {
		t.Fatalf("expected dependency-first order, got %v, %v", all[0].Name, all[1].Name)
	}
}
