// Package write implements the post and push commands.
package write

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/agentstation/rebase"
	"github.com/agentstation/rebase/cmd/application"
	"github.com/agentstation/rebase/internal/cmd/cmdutil"
	"github.com/agentstation/rebase/pkg/logging"
)

// Pushed describes the location a push created.
type Pushed struct {
	Key  string `json:"key"`
	Path string `json:"path"`
}

// NewPostCommand creates the post command.
func NewPostCommand(app application.Application) *cobra.Command {
	var priority string

	cmd := &cobra.Command{
		Use:     "post <endpoint> <value>",
		GroupID: "data",
		Short:   "Replace the value at a location",
		Long: `Post replaces the data at an endpoint with a JSON value. Text that is not
JSON is stored as a string; null deletes the location.`,
		Example: `  rebase post users/ada '{"name":"Ada","born":1815}'
  rebase post status online
  rebase post queue/job-1 '{"task":"build"}' --priority 10`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}

			opts := rebase.PostOptions{Data: cmdutil.ParseValue(args[1])}
			if cmd.Flags().Changed("priority") {
				opts.Priority = cmdutil.ParseValue(priority)
			}
			done := make(chan error, 1)
			opts.Then = func(err error) { done <- err }

			if err := client.Post(args[0], opts); err != nil {
				return err
			}
			if err := wait(cmd.Context(), done); err != nil {
				return err
			}
			logging.FromContext(logging.WithEndpoint(cmd.Context(), args[0])).Debug().Msg("Value written")
			return nil
		},
	}
	cmd.Flags().StringVar(&priority, "priority", "", "priority stored with the value (number or string)")
	return cmd
}

// NewPushCommand creates the push command.
func NewPushCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:     "push <endpoint> <value>",
		GroupID: "data",
		Short:   "Add a value under a new key",
		Long: `Push stores a JSON value under a new, chronologically ordered key below the
endpoint and prints the new key.`,
		Example: `  rebase push messages '{"from":"ada","text":"hello"}'`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}

			done := make(chan error, 1)
			ref, err := client.Push(args[0], rebase.PushOptions{
				Data: cmdutil.ParseValue(args[1]),
				Then: func(err error) { done <- err },
			})
			if err != nil {
				return err
			}
			if err := wait(cmd.Context(), done); err != nil {
				return err
			}
			logging.FromContext(logging.WithEndpoint(cmd.Context(), ref.Path())).Debug().Msg("Value pushed")
			return cmdutil.Print(cmd, app.OutputFormat(), Pushed{Key: ref.Key(), Path: ref.Path()})
		},
	}
}

func wait(ctx context.Context, done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
