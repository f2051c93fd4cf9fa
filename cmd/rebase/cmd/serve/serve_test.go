package serve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/rebase/pkg/errors"
)

func TestParseRules(t *testing.T) {
	tests := []struct {
		input   string
		wantNil bool
		wantErr bool
	}{
		{input: "", wantNil: true},
		{input: "open", wantNil: true},
		{input: "authenticated"},
		{input: "owner:users"},
		{input: "owner", wantErr: true},
		{input: "owner:", wantErr: true},
		{input: "everyone", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			rules, err := ParseRules(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsValidationError(err))
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, rules)
			} else {
				assert.NotNil(t, rules)
			}
		})
	}
}
