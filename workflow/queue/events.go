package queue

import "github.com/flowkernel/engine/observability"

const (
	EventWorkflowStart     observability.EventType = "queue.workflow.start"
	EventWorkflowDone      observability.EventType = "queue.workflow.done"
	EventStepServerRun     observability.EventType = "queue.step.server_run"
	EventStepDispatched    observability.EventType = "queue.step.dispatched"
	EventStepCompleted     observability.EventType = "queue.step.completed"
	EventStepFailed        observability.EventType = "queue.step.failed"
)
