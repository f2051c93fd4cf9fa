// Package cmdutil provides flags and helpers shared by rebase commands.
package cmdutil

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentstation/rebase/internal/cmd/output"
	"github.com/agentstation/rebase/pkg/query"
)

// ReadFlags holds the flags of commands that read a location.
type ReadFlags struct {
	Queries []string
	AsArray bool
}

// AddReadFlags adds query and array flags to a command.
func AddReadFlags(cmd *cobra.Command) *ReadFlags {
	flags := &ReadFlags{}

	cmd.Flags().StringArrayVar(&flags.Queries, "query", nil,
		"Query directive as name=value, repeatable (e.g. orderByChild=score, limitToLast=3)")
	cmd.Flags().BoolVar(&flags.AsArray, "array", false,
		"Return children as an ordered array")

	return flags
}

// Set parses the query flags in the order given.
func (f *ReadFlags) Set() (query.Set, error) {
	if len(f.Queries) == 0 {
		return nil, nil
	}
	return query.ParsePairs(f.Queries)
}

// ParseValue reads a command line value as JSON. Text that is not JSON is
// taken as a plain string, so `rebase post name ada` stores "ada".
func ParseValue(raw string) any {
	var v any
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(&v); err != nil || dec.More() {
		return raw
	}
	return v
}

// Print writes data to the command's output in format, detecting the
// format from the terminal when it is empty.
func Print(cmd *cobra.Command, format string, data any) error {
	f, err := output.ParseFormat(format)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	return output.NewFormatter(output.DetectFormat(f, w)).Format(w, data)
}
