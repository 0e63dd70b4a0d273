package wfstate

import "testing"

func TestUpdateAndRead(t *testing.T) {
	s := New(nil)

	next, err := s.Update(Update{Path: "state.user.name", Value: "alice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := next.Read("state.user.name")
	if !ok || got != "alice" {
		t.Fatalf("got %v, %v", got, ok)
	}

	if _, ok := s.Read("state.user.name"); ok {
		t.Fatalf("original state was mutated")
	}
}

func TestValidateUpdatePathRejectsRawAndComputed(t *testing.T) {
	s := New(nil)

	if _, err := s.Update(Update{Path: "raw.repo_url", Value: "x"}); err == nil {
		t.Fatalf("expected raw.* write to be rejected")
	}
	if _, err := s.Update(Update{Path: "computed.total", Value: 1}); err == nil {
		t.Fatalf("expected computed.* write to be rejected")
	}
}

func TestReadRawAliasesInputs(t *testing.T) {
	s := New(nil)
	next, err := s.Update(Update{Path: "inputs.repo_url", Value: "git@example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := next.Read("raw.repo_url")
	if !ok || got != "git@example.com" {
		t.Fatalf("raw.* alias did not resolve: %v, %v", got, ok)
	}
}

func TestApplyUpdatesRejectsWholeBatchOnError(t *testing.T) {
	s := New(nil)
	updates := []Update{
		{Path: "state.a", Value: 1},
		{Path: "computed.b", Value: 2},
	}

	result, err := s.ApplyUpdates(updates)
	if err == nil {
		t.Fatalf("expected error from invalid batch")
	}
	if _, ok := result.Read("state.a"); ok {
		t.Fatalf("partial update should not have been applied")
	}
}
