// Package concurrent wraps wfstate.WorkflowState with per-workflow locking,
// optimistic versioning, conflict detection, and checkpoint/restore — the
// concurrency layer multiple goroutines (or multiple external callers
// driving the same run_id) go through instead of touching WorkflowState
// directly.
//
// The per-workflow lock is lazily created under a package-level mutex,
// mirroring the original executor's _get_workflow_lock: a global lock
// guards the lock-table itself, while the contended path (reading/updating
// one workflow's state) only ever holds that workflow's own lock.
package concurrent

import (
	"fmt"
	"sync"

	"github.com/flowkernel/engine/workflow/wfstate"
)

// ConflictError is returned when Apply is called with an expectedVersion
// that no longer matches the stored version (another caller updated the
// workflow in between the caller's read and write).
type ConflictError struct {
	RunID            string
	ExpectedVersion  int64
	ActualVersion    int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("workflow %s: version conflict (expected %d, have %d)", e.RunID, e.ExpectedVersion, e.ActualVersion)
}

type entry struct {
	mu      sync.Mutex
	state   wfstate.WorkflowState
	version int64
}

// Manager owns the live state for every run_id it has been given.
type Manager struct {
	tableMu sync.Mutex
	entries map[string]*entry
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{entries: make(map[string]*entry)}
}

func (m *Manager) entryFor(runID string) *entry {
	m.tableMu.Lock()
	defer m.tableMu.Unlock()

	e, ok := m.entries[runID]
	if !ok {
		e = &entry{}
		m.entries[runID] = e
	}
	return e
}

// Start registers a freshly-initialized state under runID at version 1.
func (m *Manager) Start(runID string, initial wfstate.WorkflowState) {
	e := m.entryFor(runID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = initial
	e.version = 1
}

// Read returns the current state and version for runID.
func (m *Manager) Read(runID string) (wfstate.WorkflowState, int64, error) {
	m.tableMu.Lock()
	e, ok := m.entries[runID]
	m.tableMu.Unlock()
	if !ok {
		return wfstate.WorkflowState{}, 0, fmt.Errorf("unknown workflow run: %s", runID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.version, nil
}

// Apply runs fn against the current state under runID's lock, atomically
// with respect to any other Apply/Read on the same runID, then stores the
// result and increments the version. If expectedVersion is non-zero and
// does not match the stored version, fn is not run and a *ConflictError is
// returned instead — the optimistic-concurrency check the spec requires.
func (m *Manager) Apply(
	runID string,
	expectedVersion int64,
	fn func(wfstate.WorkflowState) (wfstate.WorkflowState, error),
) (wfstate.WorkflowState, int64, error) {
	e := m.entryFor(runID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if expectedVersion != 0 && expectedVersion != e.version {
		return e.state, e.version, &ConflictError{
			RunID:           runID,
			ExpectedVersion: expectedVersion,
			ActualVersion:   e.version,
		}
	}

	next, err := fn(e.state)
	if err != nil {
		return e.state, e.version, err
	}

	e.state = next
	e.version++
	return e.state, e.version, nil
}

// Checkpoint saves the current state for runID to store.
func (m *Manager) Checkpoint(runID string, store CheckpointStore) error {
	state, version, err := m.Read(runID)
	if err != nil {
		return err
	}
	return store.Save(Snapshot{RunID: runID, State: state, Version: version})
}

// Restore loads runID's state from store and makes it the live state,
// recomputing nothing further — callers that need computed fields
// refreshed after restore should call WorkflowState.Recompute themselves
// with a nil changedPaths to force a full recompute.
func (m *Manager) Restore(runID string, store CheckpointStore) (wfstate.WorkflowState, error) {
	snapshot, err := store.Load(runID)
	if err != nil {
		return wfstate.WorkflowState{}, err
	}

	e := m.entryFor(runID)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = snapshot.State
	e.version = snapshot.Version
	return e.state, nil
}

// Forget drops a workflow's in-memory entry (its checkpoints, if any, are
// untouched). Nothing in this module calls it; an entry stays in the table
// until a caller does.
func (m *Manager) Forget(runID string) {
	m.tableMu.Lock()
	defer m.tableMu.Unlock()
	delete(m.entries, runID)
}
