package concurrent

import (
	"fmt"
	"sync"

	"github.com/flowkernel/engine/workflow/wfstate"
)

// Snapshot is what gets persisted to a CheckpointStore: a workflow's state
// plus the optimistic version it was saved at.
type Snapshot struct {
	RunID   string
	State   wfstate.WorkflowState
	Version int64
}

// CheckpointStore provides persistence for workflow state snapshots,
// adapted from the teacher's orchestrate/state.CheckpointStore — same
// interface shape and named-registry pattern, repointed at the three-tier
// WorkflowState instead of the teacher's single-map State.
type CheckpointStore interface {
	Save(snapshot Snapshot) error
	Load(runID string) (Snapshot, error)
	Delete(runID string) error
	List() ([]string, error)
}

type memoryCheckpointStore struct {
	snapshots map[string]Snapshot
	mu        sync.RWMutex
}

// NewMemoryCheckpointStore creates a CheckpointStore with in-memory storage.
// Registered by default under the name "memory".
func NewMemoryCheckpointStore() CheckpointStore {
	return &memoryCheckpointStore{snapshots: make(map[string]Snapshot)}
}

func (m *memoryCheckpointStore) Save(snapshot Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snapshot.RunID] = snapshot
	return nil
}

func (m *memoryCheckpointStore) Load(runID string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[runID]
	if !ok {
		return Snapshot{}, fmt.Errorf("checkpoint not found: %s", runID)
	}
	return snap, nil
}

func (m *memoryCheckpointStore) Delete(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, runID)
	return nil
}

func (m *memoryCheckpointStore) List() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.snapshots))
	for id := range m.snapshots {
		ids = append(ids, id)
	}
	return ids, nil
}

var (
	checkpointStores = map[string]CheckpointStore{
		"memory": NewMemoryCheckpointStore(),
	}
	registryMu sync.RWMutex
)

// GetCheckpointStore retrieves a CheckpointStore by name from the registry.
func GetCheckpointStore(name string) (CheckpointStore, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	store, ok := checkpointStores[name]
	if !ok {
		return nil, fmt.Errorf("unknown checkpoint store: %s", name)
	}
	return store, nil
}

// RegisterCheckpointStore adds a named CheckpointStore to the global registry.
func RegisterCheckpointStore(name string, store CheckpointStore) {
	registryMu.Lock()
	defer registryMu.Unlock()
	checkpointStores[name] = store
}
