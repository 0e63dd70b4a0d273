package wfstate

import "github.com/flowkernel/engine/observability"

const (
	EventStateCreate    observability.EventType = "wfstate.create"
	EventStateClone      observability.EventType = "wfstate.clone"
	EventStateUpdate     observability.EventType = "wfstate.update"
	EventStateRecompute  observability.EventType = "wfstate.recompute"
	EventStateRejected   observability.EventType = "wfstate.update.rejected"
)
