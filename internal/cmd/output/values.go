package output

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/agentstation/rebase/internal/snapshot"
	"github.com/agentstation/rebase/pkg/database"
)

// maxCell is the width past which table cells are truncated unless wide.
const maxCell = 60

// Values lays out store data as a table. Objects give one row per child in
// key order, arrays one row per element with its position, and anything
// else a single value row.
func Values(data any, wide bool) Data {
	switch v := data.(type) {
	case map[string]any:
		out := Data{Headers: []string{"Key", "Value"}}
		for _, k := range database.SortedKeys(v) {
			out.Rows = append(out.Rows, []string{k, cell(withoutKey(v[k]), wide)})
		}
		return out

	case []any:
		out := Data{
			Headers:         []string{"#", "Key", "Value"},
			ColumnAlignment: []Align{AlignRight, AlignLeft, AlignLeft},
		}
		for i, e := range v {
			key := ""
			if m, ok := e.(map[string]any); ok {
				key, _ = m[snapshot.KeyField].(string)
			}
			out.Rows = append(out.Rows, []string{strconv.Itoa(i), key, cell(withoutKey(e), wide)})
		}
		return out
	}
	return Data{Headers: []string{"Value"}, Rows: [][]string{{cell(data, wide)}}}
}

// withoutKey drops the key annotation the row already shows.
func withoutKey(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	if _, annotated := m[snapshot.KeyField]; !annotated {
		return v
	}
	c := make(map[string]any, len(m)-1)
	for k, e := range m {
		if k != snapshot.KeyField {
			c[k] = e
		}
	}
	return c
}

func cell(v any, wide bool) string {
	var s string
	switch v := v.(type) {
	case nil:
		s = "null"
	case string:
		s = v
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			s = fmt.Sprintf("%v", v)
		} else {
			s = string(b)
		}
	default:
		s = fmt.Sprintf("%v", v)
	}
	if !wide && len(s) > maxCell {
		s = s[:maxCell-3] + "..."
	}
	return s
}
