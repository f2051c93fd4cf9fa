package app

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentstation/rebase/pkg/errors"
)

func TestExitStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		wantHint bool
	}{
		{"success", nil, 0, false},
		{"interrupted", fmt.Errorf("listen: %w", context.Canceled), ExitInterrupted, false},
		{"fetch timeout", errors.NewTimeoutError("fetch", "2s", "no data"), ExitUnavailable, true},
		{"deadline", context.DeadlineExceeded, ExitUnavailable, true},
		{"closed", fmt.Errorf("post: %w", errors.ErrClosed), ExitUnavailable, true},
		{"denied", errors.NewStoreError("set", "locked", errors.CodePermissionDenied, "denied"), ExitDenied, true},
		{"bad token", errors.NewAuthenticationError("custom", "invalid token", nil), ExitDenied, true},
		{"bad url", errors.NewInvalidURLError("ftp://x", "unknown scheme"), ExitUsage, true},
		{"bad endpoint", errors.NewInvalidEndpointError("a.b", "illegal character"), ExitUsage, true},
		{"bad query", errors.NewInvalidOptionsError("queries", "a directive", "x"), ExitUsage, false},
		{"missing url", errors.NewConfigError("client", "no store URL", nil), ExitUsage, true},
		{"unbound", errors.NewUnboundBindingError("scores", "listenTo", 3), ExitFailure, true},
		{"anything else", fmt.Errorf("boom"), ExitFailure, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, hint := ExitStatus(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.wantHint, hint != "")
		})
	}
}

func TestReportError(t *testing.T) {
	var buf bytes.Buffer
	status := reportError(&buf, errors.NewInvalidEndpointError("users.ada", "illegal character"))
	assert.Equal(t, ExitUsage, status)
	assert.Contains(t, buf.String(), "Error: ")
	assert.Contains(t, buf.String(), "Hint: endpoints are slash-separated")

	buf.Reset()
	assert.Equal(t, ExitInterrupted, reportError(&buf, context.Canceled))
	assert.Equal(t, "interrupted\n", buf.String())

	buf.Reset()
	assert.Zero(t, reportError(&buf, nil))
	assert.Empty(t, buf.String())
}
