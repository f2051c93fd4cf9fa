package app

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/agentstation/rebase/pkg/errors"
)

// Exit statuses of the rebase command.
const (
	ExitFailure     = 1
	ExitUsage       = 2
	ExitDenied      = 3
	ExitUnavailable = 4
	ExitInterrupted = 130
)

type exitRule struct {
	match  func(error) bool
	status int
	hint   string
}

// exitRules are tried in order; the first match decides.
var exitRules = []exitRule{
	{errors.IsCanceled, ExitInterrupted, ""},
	{errors.IsTimeout, ExitUnavailable, "raise --timeout or --fetch-timeout, or check that the store is reachable"},
	{errors.IsClosed, ExitUnavailable, "the connection to the store was closed"},
	{errors.IsAuthentication, ExitDenied, "sign in with --token or REBASE_TOKEN"},
	{errors.IsPermissionDenied, ExitDenied, "the store's rules refused the operation; sign in with --token or REBASE_TOKEN"},
	{errors.IsInvalidURL, ExitUsage, "store URLs look like ws://host:port or memory://name"},
	{errors.IsInvalidEndpoint, ExitUsage, "endpoints are slash-separated paths without . # $ [ ]"},
	{errors.IsInvalidOptions, ExitUsage, ""},
	{errors.IsValidationError, ExitUsage, ""},
	{isConfigError, ExitUsage, "set --url or REBASE_URL"},
	{errors.IsUnbound, ExitFailure, "the binding was already removed"},
}

func isConfigError(err error) bool {
	var ce *errors.ConfigError
	return stderrors.As(err, &ce)
}

// ExitStatus returns the process exit status for err and a hint for the
// user, which may be empty. A nil error exits 0.
func ExitStatus(err error) (int, string) {
	if err == nil {
		return 0, ""
	}
	for _, r := range exitRules {
		if r.match(err) {
			return r.status, r.hint
		}
	}
	return ExitFailure, ""
}

// reportError writes err and its hint to w and returns the exit status.
func reportError(w io.Writer, err error) int {
	status, hint := ExitStatus(err)
	if status == 0 {
		return 0
	}
	if status == ExitInterrupted {
		_, _ = fmt.Fprintln(w, "interrupted")
		return status
	}
	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
	if hint != "" {
		_, _ = fmt.Fprintf(w, "Hint: %s\n", hint)
	}
	return status
}

// ExitOnError prints err with a hint to stderr and exits with the status
// ExitStatus assigns it. It returns when err is nil.
func ExitOnError(err error) {
	if status := reportError(os.Stderr, err); status != 0 {
		os.Exit(status)
	}
}
