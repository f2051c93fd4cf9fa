// Package snapshot converts store snapshots into the plain values handed to
// listeners and state setters.
package snapshot

import (
	"github.com/agentstation/rebase/pkg/database"
)

// KeyField is the field added to object children to carry their own key.
const KeyField = "key"

// Normalize returns the snapshot's data in keyed form, or as a slice in the
// store's traversal order when asArray is set. Object children get a "key"
// field holding their key; scalar children are left alone. Absent data
// becomes an empty map or an empty slice. The result never aliases the
// snapshot's value.
func Normalize(snap database.Snapshot, asArray bool) any {
	if asArray {
		return toArray(snap)
	}
	return toKeyed(snap)
}

func toKeyed(snap database.Snapshot) any {
	if snap == nil || snap.Val() == nil {
		return map[string]any{}
	}
	m, ok := snap.Val().(map[string]any)
	if !ok {
		return database.Clone(snap.Val())
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = annotate(k, v)
	}
	return out
}

func toArray(snap database.Snapshot) []any {
	out := []any{}
	if snap == nil {
		return out
	}
	snap.ForEach(func(child database.Snapshot) bool {
		out = append(out, annotate(child.Key(), child.Val()))
		return false
	})
	return out
}

func annotate(key string, v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return database.Clone(v)
	}
	c := database.Clone(m).(map[string]any)
	c[KeyField] = key
	return c
}
