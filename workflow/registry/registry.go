// Package registry holds the closed catalog of step types the engine
// understands, grounded on the sync.RWMutex-guarded registry-with-lock
// idiom shared by tools.Registry and agent.Registry — specialized here to
// a fixed, built-in set of StepSpecs registered once at package init rather
// than a dynamically extensible one.
package registry

import (
	"fmt"
	"sync"
)

// Side classifies whether a step type executes on the server or must be
// handed to the external client to execute.
type Side string

const (
	SideServer Side = "server"
	SideClient Side = "client"
)

// StepSpec describes one step type's execution side and whether it expands
// into child steps (control-flow types) rather than executing directly.
type StepSpec struct {
	Type       string
	Side       Side
	ControlFlow bool
}

type registry struct {
	mu    sync.RWMutex
	specs map[string]StepSpec
}

var global = &registry{specs: make(map[string]StepSpec)}

// Register adds a StepSpec to the global registry. Panics on duplicate
// registration — step types are a fixed, compile-time-known set, so a
// duplicate registration is a programming error, not a runtime condition.
func Register(spec StepSpec) {
	global.mu.Lock()
	defer global.mu.Unlock()

	if _, exists := global.specs[spec.Type]; exists {
		panic(fmt.Sprintf("step type already registered: %s", spec.Type))
	}
	global.specs[spec.Type] = spec
}

// Get looks up a step type's spec.
func Get(stepType string) (StepSpec, bool) {
	global.mu.RLock()
	defer global.mu.RUnlock()
	spec, ok := global.specs[stepType]
	return spec, ok
}

// List returns every registered step type.
func List() []StepSpec {
	global.mu.RLock()
	defer global.mu.RUnlock()
	out := make([]StepSpec, 0, len(global.specs))
	for _, spec := range global.specs {
		out = append(out, spec)
	}
	return out
}

func init() {
	Register(StepSpec{Type: "state_update", Side: SideServer})
	Register(StepSpec{Type: "shell_command", Side: SideServer})
	Register(StepSpec{Type: "conditional", Side: SideServer, ControlFlow: true})
	Register(StepSpec{Type: "while_loop", Side: SideServer, ControlFlow: true})
	Register(StepSpec{Type: "foreach", Side: SideServer, ControlFlow: true})
	Register(StepSpec{Type: "break", Side: SideServer, ControlFlow: true})
	Register(StepSpec{Type: "continue", Side: SideServer, ControlFlow: true})
	Register(StepSpec{Type: "parallel_foreach", Side: SideServer, ControlFlow: true})

	Register(StepSpec{Type: "user_message", Side: SideClient})
	Register(StepSpec{Type: "agent_prompt", Side: SideClient})
	Register(StepSpec{Type: "agent_response", Side: SideClient})
	Register(StepSpec{Type: "user_input", Side: SideClient})
	Register(StepSpec{Type: "mcp_call", Side: SideClient})
	Register(StepSpec{Type: "internal_mcp_call", Side: SideClient})
}
