// Package fetch implements the fetch command.
package fetch

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstation/rebase"
	"github.com/agentstation/rebase/cmd/application"
	"github.com/agentstation/rebase/internal/cmd/cmdutil"
)

// NewCommand creates the fetch command.
func NewCommand(app application.Application) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:     "fetch <endpoint>",
		GroupID: "data",
		Short:   "Read a location once",
		Long: `Fetch reads the data at an endpoint once and prints it.

Object children carry their own key in a "key" field. With --array the
children are returned as a list in query order.`,
		Example: `  rebase fetch users
  rebase fetch scores --query orderByChild=score --query limitToLast=3 --array
  rebase fetch config -o yaml --timeout 500ms`,
		Args: cobra.ExactArgs(1),
	}
	read := cmdutil.AddReadFlags(cmd)
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long (default: the client's fetch timeout)")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		queries, err := read.Set()
		if err != nil {
			return err
		}
		client, err := app.Client()
		if err != nil {
			return err
		}

		res, err := client.Fetch(args[0], rebase.FetchOptions{
			Context: cmd,
			Timeout: &rebase.FetchTimeout{Period: timeout},
			AsArray: read.AsArray,
			Queries: queries,
		})
		if err != nil {
			return err
		}
		data, err := res.Wait(cmd.Context())
		if err != nil {
			return err
		}
		return cmdutil.Print(cmd, app.OutputFormat(), data)
	}
	return cmd
}
