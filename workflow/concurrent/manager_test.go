package concurrent

import (
	"sync"
	"testing"

	"github.com/flowkernel/engine/workflow/wfstate"
)

func TestApplyIncrementsVersion(t *testing.T) {
	m := NewManager()
	m.Start("wf_1", wfstate.New(nil))

	_, version, err := m.Apply("wf_1", 1, func(s wfstate.WorkflowState) (wfstate.WorkflowState, error) {
		return s.Update(wfstate.Update{Path: "state.x", Value: 1})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if version != 2 {
		t.Fatalf("expected version 2, got %d", version)
	}
}

func TestApplyDetectsConflict(t *testing.T) {
	m := NewManager()
	m.Start("wf_1", wfstate.New(nil))

	if _, _, err := m.Apply("wf_1", 5, func(s wfstate.WorkflowState) (wfstate.WorkflowState, error) {
		return s, nil
	}); err == nil {
		t.Fatalf("expected conflict error")
	}
}

func TestConcurrentApplySerializesPerWorkflow(t *testing.T) {
	m := NewManager()
	m.Start("wf_1", wfstate.New(nil))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for {
				_, _, err := m.Apply("wf_1", 0, func(s wfstate.WorkflowState) (wfstate.WorkflowState, error) {
					count, _ := s.Read("state.count")
					v, _ := count.(int)
					return s.Update(wfstate.Update{Path: "state.count", Value: v + 1})
				})
				if err == nil {
					return
				}
			}
		}(i)
	}
	wg.Wait()

	state, _, _ := m.Read("wf_1")
	got, _ := state.Read("state.count")
	if got != 50 {
		t.Fatalf("expected 50, got %v", got)
	}
}

func TestCheckpointAndRestore(t *testing.T) {
	m := NewManager()
	m.Start("wf_1", wfstate.New(nil))
	m.Apply("wf_1", 0, func(s wfstate.WorkflowState) (wfstate.WorkflowState, error) {
		return s.Update(wfstate.Update{Path: "state.x", Value: "saved"})
	})

	store := NewMemoryCheckpointStore()
	if err := m.Checkpoint("wf_1", store); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m2 := NewManager()
	m2.Start("wf_1", wfstate.New(nil))
	restored, err := m2.Restore("wf_1", store)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok := restored.Read("state.x")
	if !ok || got != "saved" {
		t.Fatalf("got %v, %v", got, ok)
	}
}
