package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentstation/rebase/pkg/database"
)

func TestNormalize(t *testing.T) {
	ordered := &database.DataSnapshot{
		SnapKey: "users",
		Value: map[string]any{
			"b": map[string]any{"name": "Bea"},
			"a": map[string]any{"name": "Al"},
			"n": 3.0,
		},
		Children: []*database.DataSnapshot{
			{SnapKey: "n", Value: 3.0},
			{SnapKey: "b", Value: map[string]any{"name": "Bea"}},
			{SnapKey: "a", Value: map[string]any{"name": "Al"}},
		},
	}

	tests := []struct {
		name    string
		snap    database.Snapshot
		asArray bool
		want    any
	}{
		{
			name: "keyed annotates object children",
			snap: ordered,
			want: map[string]any{
				"a": map[string]any{"name": "Al", "key": "a"},
				"b": map[string]any{"name": "Bea", "key": "b"},
				"n": 3.0,
			},
		},
		{
			name:    "array follows traversal order",
			snap:    ordered,
			asArray: true,
			want: []any{
				3.0,
				map[string]any{"name": "Bea", "key": "b"},
				map[string]any{"name": "Al", "key": "a"},
			},
		},
		{
			name: "absent keyed is empty map",
			snap: database.NewSnapshot("gone", nil),
			want: map[string]any{},
		},
		{
			name:    "absent array is empty slice",
			snap:    database.NewSnapshot("gone", nil),
			asArray: true,
			want:    []any{},
		},
		{
			name: "scalar root is returned as is",
			snap: database.NewSnapshot("name", "Ada"),
			want: "Ada",
		},
		{
			name:    "scalar root has no children",
			snap:    database.NewSnapshot("name", "Ada"),
			asArray: true,
			want:    []any{},
		},
		{
			name: "nil snapshot",
			snap: nil,
			want: map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.snap, tt.asArray))
		})
	}
}

func TestNormalizeDoesNotAlias(t *testing.T) {
	value := map[string]any{"a": map[string]any{"x": 1.0}}
	snap := database.NewSnapshot("root", value)

	keyed := Normalize(snap, false).(map[string]any)
	keyed["a"].(map[string]any)["x"] = 2.0

	arr := Normalize(snap, true).([]any)
	arr[0].(map[string]any)["x"] = 3.0

	assert.Equal(t, map[string]any{"a": map[string]any{"x": 1.0}}, value)
	_, annotated := value["a"].(map[string]any)[KeyField]
	assert.False(t, annotated)
}
