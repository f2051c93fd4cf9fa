package app

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Execute runs the rebase CLI application with the given arguments.
func (a *App) Execute(ctx context.Context, args []string) error {
	rootCmd := a.createRootCommand()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

// createRootCommand creates the root cobra command with all subcommands.
func (a *App) createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "rebase",
		Short:   "Realtime store CLI",
		Version: a.version,
		Long: `rebase reads, writes and watches locations of a realtime store.

It talks to a store served over websockets (ws:// or wss:// URLs), and can
serve an in-memory store itself with "rebase serve".`,
		PersistentPreRunE: a.setupCommand,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	rootCmd.AddGroup(&cobra.Group{
		ID:    "data",
		Title: "Data Commands:",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "server",
		Title: "Server Commands:",
	})

	a.addGlobalFlags(rootCmd.PersistentFlags())

	rootCmd.SetVersionTemplate("rebase {{.Version}}\n")

	a.registerCommands(rootCmd)

	return rootCmd
}

// addGlobalFlags defines the persistent flags. Connection flags default to
// the loaded configuration so an unset flag keeps the env or file value.
func (a *App) addGlobalFlags(flags *pflag.FlagSet) {
	flags.StringVar(&a.config.ConfigFile, "config", "", "config file (default is $HOME/.rebase.yaml)")
	flags.BoolP("verbose", "v", a.config.Verbose, "verbose output (shortcut for --log-level=debug)")
	flags.BoolP("quiet", "q", a.config.Quiet, "minimal output (shortcut for --log-level=warn)")
	flags.Bool("no-color", a.config.NoColor, "disable colored output")
	flags.StringP("format", "o", "", "output format: table, json, yaml, wide")
	flags.String("log-level", "", "log level: trace, debug, info, warn, error (overrides -v/-q)")

	flags.StringVar(&a.config.URL, "url", a.config.URL, "store URL, e.g. ws://localhost:8080 (env REBASE_URL)")
	flags.StringVar(&a.config.Token, "token", a.config.Token, "custom token to sign in with (env REBASE_TOKEN)")
	flags.DurationVar(&a.config.FetchTimeout, "fetch-timeout", a.config.FetchTimeout, "default fetch timeout")
}

// setupCommand is called before any command runs.
func (a *App) setupCommand(cmd *cobra.Command, _ []string) error {
	// These flags are defined in addGlobalFlags, so errors indicate programming errors
	verbose := mustGetBool(cmd, "verbose")
	quiet := mustGetBool(cmd, "quiet")
	noColor := mustGetBool(cmd, "no-color")
	format := mustGetString(cmd, "format")
	logLevel := mustGetString(cmd, "log-level")

	a.config.UpdateFromFlags(verbose, quiet, noColor, format, logLevel)

	// Reinitialize logger with updated config
	logger := NewLogger(a.config)
	a.logger = &logger
	cmd.SetContext(a.commandContext(cmd))

	return nil
}

// mustGetBool retrieves a boolean flag value or panics if the flag doesn't exist.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}

// mustGetString retrieves a string flag value or panics if the flag doesn't exist.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}
