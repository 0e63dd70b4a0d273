package wfstate

import (
	"context"
	"strings"
	"time"

	"github.com/flowkernel/engine/observability"
	"github.com/flowkernel/engine/workflow/depgraph"
	"github.com/flowkernel/engine/workflow/model"
	"github.com/flowkernel/engine/workflow/transform"
)

// Recompute recalculates the computed fields affected by changedPaths (or
// every computed field, when changedPaths is nil — used on workflow start
// and checkpoint restore), in dependency order, and returns the resulting
// state.
func (s WorkflowState) Recompute(graph *depgraph.Graph, tr transform.Transformer, changedPaths []string) (WorkflowState, error) {
	var fields []model.ComputedFieldDefinition
	if changedPaths == nil {
		fields = graph.All()
	} else {
		fields = graph.Affected(changedPaths)
	}

	if len(fields) == 0 {
		return s, nil
	}

	current := s
	for _, field := range fields {
		sources := make(map[string]any, len(field.From))
		values := make([]any, 0, len(field.From))
		for _, from := range field.From {
			val, _ := current.Read(from)
			sources[leafName(from)] = val
			values = append(values, val)
		}

		result, keep, err := transform.Apply(tr, field, sources, values)
		if err != nil {
			return s, err
		}
		if !keep {
			continue
		}

		current = current.SetComputed(field.Name, result)
	}

	current.Observer.OnEvent(context.Background(), observability.Event{
		Type:      EventStateRecompute,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "wfstate",
		Data:      map[string]any{"fields": len(fields)},
	})

	return current, nil
}

func leafName(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx == -1 {
		return path
	}
	return path[idx+1:]
}
