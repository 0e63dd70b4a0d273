// Package wfstate implements the three-tier reactive state model: inputs
// (seeded at workflow start, writable under inputs.*), state (read/write
// working memory), and computed (derived fields recalculated whenever their
// declared dependencies change). It is adapted from the teacher's single-tier
// immutable State type, generalized to three named tiers with tier-aware
// path validation.
package wfstate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flowkernel/engine/observability"
	"github.com/flowkernel/engine/workflow/model"
)

// Update is a single path/value write, the unit the queue executor and
// step processors submit in batches (mirroring the original executor's
// {"path": "state.x", "value": ...} update records).
type Update struct {
	Path  string
	Value any
}

// WorkflowState holds the three tiers for one workflow run. All mutating
// methods return a new WorkflowState; the receiver is never modified.
type WorkflowState struct {
	Inputs   map[string]any
	State    map[string]any
	Computed map[string]any

	Observer observability.Observer
	RunID    string
	Timestamp time.Time
}

// New creates an empty WorkflowState. If observer is nil, NoOpObserver is used.
func New(observer observability.Observer) WorkflowState {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}

	s := WorkflowState{
		Inputs:    make(map[string]any),
		State:     make(map[string]any),
		Computed:  make(map[string]any),
		Observer:  observer,
		RunID:     "wf_" + uuid.New().String()[:8],
		Timestamp: time.Now(),
	}

	observer.OnEvent(context.Background(), observability.Event{
		Type:      EventStateCreate,
		Level:     observability.LevelVerbose,
		Timestamp: s.Timestamp,
		Source:    "wfstate",
		Data:      map[string]any{"run_id": s.RunID},
	})

	return s
}

// Clone returns an independent deep copy of the state.
func (s WorkflowState) Clone() WorkflowState {
	clone := WorkflowState{
		Inputs:    deepClone(s.Inputs).(map[string]any),
		State:     deepClone(s.State).(map[string]any),
		Computed:  deepClone(s.Computed).(map[string]any),
		Observer:  s.Observer,
		RunID:     s.RunID,
		Timestamp: time.Now(),
	}

	s.Observer.OnEvent(context.Background(), observability.Event{
		Type:      EventStateClone,
		Level:     observability.LevelVerbose,
		Timestamp: clone.Timestamp,
		Source:    "wfstate",
		Data:      map[string]any{"run_id": s.RunID},
	})

	return clone
}

// tierMap returns the map backing the named tier, treating "raw" as an
// alias for "inputs" (read path only — see ValidateUpdatePath).
func (s WorkflowState) tierMap(tier string) (map[string]any, bool) {
	switch model.Tier(tier) {
	case model.TierInputs:
		return s.Inputs, true
	case model.TierState:
		return s.State, true
	case model.TierComputed:
		return s.Computed, true
	}
	if tier == "raw" {
		return s.Inputs, true
	}
	return nil, false
}

// Read resolves a fully-qualified "<tier>.<path>" reference, e.g.
// "state.user.name" or "inputs.repo_url" or "raw.repo_url".
func (s WorkflowState) Read(fullPath string) (any, bool) {
	segments := splitPath(fullPath)
	if len(segments) == 0 {
		return nil, false
	}

	tier, rest := segments[0], segments[1:]
	root, ok := s.tierMap(tier)
	if !ok {
		return nil, false
	}
	if len(rest) == 0 {
		return deepClone(root), true
	}
	return getPath(root, rest)
}

// ValidateUpdatePath reports whether fullPath may be written via Update.
// raw.* is a read-only alias for inputs.* (rejected here); computed.* is
// derived and never written directly.
func (s WorkflowState) ValidateUpdatePath(fullPath string) error {
	segments := splitPath(fullPath)
	if len(segments) < 2 {
		return fmt.Errorf("update path must be of the form '<tier>.<field>', got %q", fullPath)
	}

	switch segments[0] {
	case "raw":
		return fmt.Errorf("raw.* is a read-only alias for inputs.*; write inputs.%s instead", segments[1])
	case string(model.TierComputed):
		return fmt.Errorf("cannot write to computed.* directly; computed fields are derived")
	case string(model.TierInputs), string(model.TierState):
		return nil
	default:
		return fmt.Errorf("unknown state tier %q", segments[0])
	}
}

// Update applies a single path/value write and returns the resulting state.
// It does not recompute derived fields; callers fold recomputation in via
// the depgraph-driven Recompute after applying a batch.
func (s WorkflowState) Update(u Update) (WorkflowState, error) {
	if err := s.ValidateUpdatePath(u.Path); err != nil {
		s.Observer.OnEvent(context.Background(), observability.Event{
			Type:      EventStateRejected,
			Level:     observability.LevelWarning,
			Timestamp: time.Now(),
			Source:    "wfstate",
			Data:      map[string]any{"path": u.Path, "reason": err.Error()},
		})
		return s, err
	}

	segments := splitPath(u.Path)
	tier, rest := segments[0], segments[1:]
	root, _ := s.tierMap(tier)

	next := s.Clone()
	var nextRoot map[string]any
	switch tier {
	case string(model.TierInputs):
		nextRoot = next.Inputs
	case string(model.TierState):
		nextRoot = next.State
	}
	_ = root

	if err := setPath(nextRoot, rest, u.Value); err != nil {
		return s, fmt.Errorf("update %q: %w", u.Path, err)
	}

	next.Observer.OnEvent(context.Background(), observability.Event{
		Type:      EventStateUpdate,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "wfstate",
		Data:      map[string]any{"path": u.Path},
	})

	return next, nil
}

// ApplyUpdates folds a batch of updates, failing on the first invalid path
// (the whole batch is rejected — partial application of an invalid batch
// would leave state inconsistent with what the caller believes it applied).
func (s WorkflowState) ApplyUpdates(updates []Update) (WorkflowState, error) {
	current := s
	for i, u := range updates {
		next, err := current.Update(u)
		if err != nil {
			return s, fmt.Errorf("update %d (%s): %w", i, u.Path, err)
		}
		current = next
	}
	return current, nil
}

// SetComputed overwrites a single computed field. Only called internally by
// the dependency-driven recomputation pass.
func (s WorkflowState) SetComputed(name string, value any) WorkflowState {
	next := s.Clone()
	next.Computed[name] = value
	return next
}
