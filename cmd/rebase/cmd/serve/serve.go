// Package serve implements the serve command.
package serve

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstation/rebase/cmd/application"
	"github.com/agentstation/rebase/internal/config"
	"github.com/agentstation/rebase/internal/server"
	"github.com/agentstation/rebase/pkg/database/memory"
	"github.com/agentstation/rebase/pkg/errors"
)

// shutdownTimeout bounds connection draining after an interrupt.
const shutdownTimeout = 30 * time.Second

// NewCommand creates the serve command.
func NewCommand(app application.Application) *cobra.Command {
	cfg := server.DefaultConfig()
	var (
		seed   string
		secret string
		rules  string
	)

	cmd := &cobra.Command{
		Use:     "serve",
		GroupID: "server",
		Short:   "Serve an in-memory store over websockets",
		Long: `Serve starts an in-memory realtime store and serves it at ws://host:port/ws.

Every connection gets its own session: sign-in state and listeners are per
connection while the data is shared. The store lives as long as the process.

Access rules:
  open            anyone may read and write (default)
  authenticated   only signed-in sessions may read and write
  owner:<prefix>  anyone may read; sessions write only below <prefix>/<uid>`,
		Example: `  rebase serve
  rebase serve --port 9000 --seed fixtures.yaml
  rebase serve --rules authenticated --secret "$REBASE_SECRET"
  rebase serve --access-key s3cret   # clients dial ws://:s3cret@host:port`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				secret = config.GetString("REBASE_SECRET")
			}
			cfg.AuthEnabled = cfg.AuthKey != ""
			return run(cmd.Context(), app, cfg, seed, secret, rules)
		},
	}

	cmd.Flags().IntVarP(&cfg.Port, "port", "p", cfg.Port, "Server port")
	cmd.Flags().StringVar(&cfg.Host, "host", cfg.Host, "Bind address")
	cmd.Flags().StringVar(&cfg.Path, "path", cfg.Path, "Websocket path")

	cmd.Flags().StringVar(&seed, "seed", "", "YAML or JSON file with the initial data")
	cmd.Flags().StringVar(&secret, "secret", "", "custom token signing secret, at least 16 bytes (env REBASE_SECRET)")
	cmd.Flags().StringVar(&rules, "rules", "open", "access rules: open, authenticated, owner:<prefix>")

	cmd.Flags().StringVar(&cfg.AuthKey, "access-key", "", "require this key to connect")
	cmd.Flags().StringVar(&cfg.AuthHeader, "access-header", cfg.AuthHeader, "header carrying the access key")
	cmd.Flags().BoolVar(&cfg.CORSEnabled, "cors", false, "Enable CORS")
	cmd.Flags().StringSliceVar(&cfg.CORSOrigins, "cors-origins", nil, "Allowed origins (comma-separated); also restricts websocket upgrades")
	cmd.Flags().IntVar(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "Requests per minute per IP (0 to disable)")

	cmd.Flags().DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "HTTP read timeout")
	cmd.Flags().DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "HTTP write timeout")
	cmd.Flags().DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "HTTP idle timeout")

	return cmd
}

func run(ctx context.Context, app application.Application, cfg server.Config, seed, secret, rules string) error {
	logger := app.Logger()

	opts := []memory.Option{memory.WithLogger(logger)}
	if seed != "" {
		opts = append(opts, memory.WithSeedFile(seed))
	}
	if secret != "" {
		opts = append(opts, memory.WithSecret([]byte(secret)))
	}
	r, err := ParseRules(rules)
	if err != nil {
		return err
	}
	if r != nil {
		opts = append(opts, memory.WithRules(r))
	}

	store, err := memory.New(opts...)
	if err != nil {
		return err
	}
	defer store.Close()

	srv, err := server.New(store, cfg, logger)
	if err != nil {
		return err
	}
	srv.Start()

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", httpServer.Addr).
			Str("path", cfg.Path).
			Str("rules", rules).
			Bool("access_key", cfg.AuthEnabled).
			Msg("Server starting")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err, ok := <-serverErr:
		if ok {
			_ = srv.Shutdown(context.Background())
			return errors.WrapResource("listen", "server", httpServer.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Websocket connections are hijacked, so close them before draining HTTP.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Closing connections timed out")
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.WrapResource("shutdown", "server", httpServer.Addr, err)
	}
	logger.Info().Msg("Server stopped gracefully")
	return nil
}

// ParseRules reads an access rule name as accepted by --rules.
func ParseRules(s string) (memory.Rules, error) {
	switch name, prefix, _ := strings.Cut(s, ":"); name {
	case "", "open":
		return nil, nil
	case "authenticated":
		return memory.AuthenticatedOnly, nil
	case "owner":
		if prefix == "" {
			return nil, errors.NewValidationError("rules", s, "owner rules need a prefix, e.g. owner:users")
		}
		return memory.OwnerOnly(prefix), nil
	}
	return nil, errors.NewValidationError("rules", s, "must be open, authenticated or owner:<prefix>")
}
