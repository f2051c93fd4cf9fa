package app

import (
	"github.com/spf13/cobra"

	"github.com/agentstation/rebase/cmd/rebase/cmd/fetch"
	"github.com/agentstation/rebase/cmd/rebase/cmd/listen"
	"github.com/agentstation/rebase/cmd/rebase/cmd/serve"
	"github.com/agentstation/rebase/cmd/rebase/cmd/token"
	"github.com/agentstation/rebase/cmd/rebase/cmd/write"
)

// registerCommands registers all subcommands with the root command.
func (a *App) registerCommands(rootCmd *cobra.Command) {
	// Data commands
	rootCmd.AddCommand(fetch.NewCommand(a))
	rootCmd.AddCommand(listen.NewCommand(a))
	rootCmd.AddCommand(write.NewPostCommand(a))
	rootCmd.AddCommand(write.NewPushCommand(a))

	// Server commands
	rootCmd.AddCommand(serve.NewCommand(a))
	rootCmd.AddCommand(token.NewCommand(a))

	rootCmd.AddCommand(a.NewVersionCommand())
}

// NewVersionCommand creates the version command.
func (a *App) NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("rebase %s\n", a.version)
			if a.config.Verbose {
				cmd.Printf("  commit:   %s\n", a.commit)
				cmd.Printf("  built:    %s\n", a.date)
				cmd.Printf("  built by: %s\n", a.builtBy)
			}
		},
	}
}
