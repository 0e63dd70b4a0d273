package wfstate

import (
	"fmt"
	"strconv"
	"strings"
)

// splitPath splits a dotted path ("foo.bar.0.baz") into segments. Numeric
// segments address slice elements; all others address map keys.
func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// getPath walks root following segments, returning the value found and
// whether the full path resolved.
func getPath(root any, segments []string) (any, bool) {
	current := root
	for _, seg := range segments {
		switch typed := current.(type) {
		case map[string]any:
			v, ok := typed[seg]
			if !ok {
				return nil, false
			}
			current = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(typed) {
				return nil, false
			}
			current = typed[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// setPath writes value at the nested location described by segments,
// creating intermediate maps as needed. root must be a map[string]any.
func setPath(root map[string]any, segments []string, value any) error {
	if len(segments) == 0 {
		return fmt.Errorf("empty path")
	}

	current := root
	for i, seg := range segments[:len(segments)-1] {
		next, exists := current[seg]
		if !exists {
			created := make(map[string]any)
			current[seg] = created
			current = created
			continue
		}

		switch typed := next.(type) {
		case map[string]any:
			current = typed
		default:
			return fmt.Errorf("cannot descend into non-object at segment %q (path element %d)", seg, i)
		}
	}

	current[segments[len(segments)-1]] = value
	return nil
}

// deepClone returns an independent copy of a value built from nested
// map[string]any/[]any/scalars, the shapes loader and state mutation produce.
func deepClone(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, val := range typed {
			out[k] = deepClone(val)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, val := range typed {
			out[i] = deepClone(val)
		}
		return out
	default:
		return v
	}
}
