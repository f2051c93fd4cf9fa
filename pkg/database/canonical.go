package database

import (
	"encoding/json"
	"strconv"

	"github.com/agentstation/rebase/pkg/errors"
)

// Canonical converts a Go value into the tree form a store holds:
// map[string]any for objects, float64 for numbers, string, bool, or nil.
// Slices become objects keyed by index, and empty objects become nil since a
// location without children holds no data.
func Canonical(v any) (any, error) {
	switch v.(type) {
	case nil:
		return nil, nil
	case string, bool, float64:
		return v, nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, &errors.ValidationError{Field: "value", Value: v, Message: "value is not representable as JSON: " + err.Error()}
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, &errors.ValidationError{Field: "value", Value: v, Message: err.Error()}
	}
	return prune(tree), nil
}

func prune(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, c := range x {
			c = prune(c)
			if c == nil {
				delete(x, k)
				continue
			}
			x[k] = c
		}
		if len(x) == 0 {
			return nil
		}
		return x
	case []any:
		m := make(map[string]any, len(x))
		for i, c := range x {
			m[strconv.Itoa(i)] = c
		}
		return prune(m)
	default:
		return v
	}
}

// Export converts stored objects whose keys are exactly 0..n-1 back into
// slices, recursively. Other values are returned as is.
func Export(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(m))
	for k, c := range m {
		out[k] = Export(c)
	}
	if arr, ok := asArray(out); ok {
		return arr
	}
	return out
}

func asArray(m map[string]any) ([]any, bool) {
	if len(m) == 0 {
		return nil, false
	}
	arr := make([]any, len(m))
	for k, c := range m {
		i, ok := intKey(k)
		if !ok || i < 0 || int(i) >= len(m) {
			return nil, false
		}
		arr[i] = c
	}
	return arr, true
}

// Clone deep-copies a tree value.
func Clone(v any) any {
	switch x := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, c := range x {
			m[k] = Clone(c)
		}
		return m
	case []any:
		s := make([]any, len(x))
		for i, c := range x {
			s[i] = Clone(c)
		}
		return s
	default:
		return v
	}
}
