// Package listen implements the listen command.
package listen

import (
	"sync"

	"github.com/spf13/cobra"

	"github.com/agentstation/rebase"
	"github.com/agentstation/rebase/cmd/application"
	"github.com/agentstation/rebase/internal/cmd/cmdutil"
	"github.com/agentstation/rebase/pkg/errors"
	"github.com/agentstation/rebase/pkg/logging"
)

// NewCommand creates the listen command.
func NewCommand(app application.Application) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:     "listen <endpoint>",
		GroupID: "data",
		Short:   "Print a location's value now and on every change",
		Long: `Listen prints the data at an endpoint, then prints it again every time it
changes, until interrupted or until --count values have been printed.`,
		Example: `  rebase listen chat/messages --query limitToLast=10 --array -o json
  rebase listen counter --count 2`,
		Args: cobra.ExactArgs(1),
	}
	read := cmdutil.AddReadFlags(cmd)
	cmd.Flags().IntVar(&count, "count", 0, "stop after this many values (0 = until interrupted)")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		queries, err := read.Set()
		if err != nil {
			return err
		}
		client, err := app.Client()
		if err != nil {
			return err
		}

		var (
			once     sync.Once
			stop     = make(chan error, 1)
			received int
		)
		finish := func(err error) {
			once.Do(func() { stop <- err })
		}

		binding, err := client.ListenTo(args[0], rebase.ListenOptions{
			Context: cmd,
			Then: func(data any) {
				if err := cmdutil.Print(cmd, app.OutputFormat(), data); err != nil {
					finish(err)
					return
				}
				received++
				if count > 0 && received >= count {
					finish(nil)
				}
			},
			Failure: finish,
			AsArray: read.AsArray,
			Queries: queries,
		})
		if err != nil {
			return err
		}
		logger := logging.FromContext(logging.WithEndpoint(cmd.Context(), args[0]))
		logger.Debug().Uint64("binding_id", binding.ID).Msg("Listening")

		select {
		case err = <-stop:
		case <-cmd.Context().Done():
		}
		// A cancelled listener may already be gone.
		switch rmErr := client.RemoveBinding(binding); {
		case rmErr == nil:
		case errors.IsUnbound(rmErr):
			logger.Debug().Err(rmErr).Msg("Binding already removed")
		default:
			logger.Warn().Err(rmErr).Msg("Removing binding failed")
		}
		return err
	}
	return cmd
}
