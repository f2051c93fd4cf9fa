package app

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentstation/rebase/pkg/logging"
)

// ContextWithSignals returns a context cancelled on SIGINT or SIGTERM, which
// ends a running listen or serve.
func ContextWithSignals(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// commandContext is the context cmd runs with. It carries the app logger
// tagged with the command path, so commands log through logging.FromContext.
func (a *App) commandContext(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logging.WithLogger(ctx, a.logger)
	return logging.WithCommand(ctx, cmd.CommandPath())
}
