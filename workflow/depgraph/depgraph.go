// Package depgraph resolves the dependency graph between computed fields and
// the state/input paths (and other computed fields) they read from. It
// rejects cyclic definitions at load time and, given a set of changed paths,
// returns the computed fields that must be recalculated, in dependency order.
//
// The cycle-detection walk (three-coloring DFS tracking a visited set and
// the current path) is grounded on the visited/path bookkeeping in the
// teacher's graph executor, adapted from runtime cycle detection over a
// node/edge DAG to load-time cycle rejection over a computed-field graph.
package depgraph

import (
	"fmt"
	"strings"

	"github.com/flowkernel/engine/workflow/model"
)

type color int

const (
	white color = iota
	gray
	black
)

// Graph is the resolved dependency graph for one workflow's computed fields.
type Graph struct {
	fields map[string]model.ComputedFieldDefinition
	// order is a topological order of computed field names such that every
	// field appears after all computed fields it depends on.
	order []string
}

// Build validates and orders a workflow's computed field declarations.
// Returns an error naming the cycle if one exists.
func Build(fields []model.ComputedFieldDefinition) (*Graph, error) {
	g := &Graph{fields: make(map[string]model.ComputedFieldDefinition, len(fields))}
	for _, f := range fields {
		if _, dup := g.fields[f.Name]; dup {
			return nil, fmt.Errorf("duplicate computed field %q", f.Name)
		}
		g.fields[f.Name] = f
	}

	colors := make(map[string]color, len(fields))
	order := make([]string, 0, len(fields))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch colors[name] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("cyclic computed field dependency: %s -> %s", strings.Join(path, " -> "), name)
		}

		colors[name] = gray
		for _, dep := range g.fields[name].From {
			depName, isComputed := computedDepName(dep)
			if !isComputed {
				continue
			}
			if _, known := g.fields[depName]; !known {
				return fmt.Errorf("computed field %q depends on unknown computed field %q", name, depName)
			}
			if err := visit(depName, append(path, name)); err != nil {
				return err
			}
		}
		colors[name] = black
		order = append(order, name)
		return nil
	}

	for _, f := range fields {
		if err := visit(f.Name, nil); err != nil {
			return nil, err
		}
	}

	g.order = order
	return g, nil
}

// computedDepName reports whether a "from" path references another computed
// field (prefixed "computed.") and, if so, its bare name.
func computedDepName(path string) (string, bool) {
	const prefix = "computed."
	if strings.HasPrefix(path, prefix) {
		return strings.TrimPrefix(path, prefix), true
	}
	return "", false
}

// Affected returns the computed fields that must be recalculated given a set
// of changed paths (full "<tier>.<field>" paths), in dependency order so
// that a field's dependencies are always recomputed before it is.
func (g *Graph) Affected(changedPaths []string) []model.ComputedFieldDefinition {
	changed := make(map[string]bool, len(changedPaths))
	for _, p := range changedPaths {
		changed[p] = true
	}

	dirty := make(map[string]bool)
	for _, name := range g.order {
		f := g.fields[name]
		if fieldDependsOnAny(f, changed, dirty) {
			dirty[name] = true
		}
	}

	result := make([]model.ComputedFieldDefinition, 0, len(dirty))
	for _, name := range g.order {
		if dirty[name] {
			result = append(result, g.fields[name])
		}
	}
	return result
}

func fieldDependsOnAny(f model.ComputedFieldDefinition, changed map[string]bool, dirty map[string]bool) bool {
	for _, dep := range f.From {
		if changed[dep] {
			return true
		}
		if depName, isComputed := computedDepName(dep); isComputed && dirty[depName] {
			return true
		}
	}
	return false
}

// All returns every computed field in dependency order, for full recompute
// (used when a workflow starts or a checkpoint is restored).
func (g *Graph) All() []model.ComputedFieldDefinition {
	result := make([]model.ComputedFieldDefinition, 0, len(g.order))
	for _, name := range g.order {
		result = append(result, g.fields[name])
	}
	return result
}
