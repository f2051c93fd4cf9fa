// Package token implements the token command.
package token

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstation/rebase/cmd/application"
	"github.com/agentstation/rebase/internal/cmd/cmdutil"
	"github.com/agentstation/rebase/internal/config"
	"github.com/agentstation/rebase/pkg/database/memory"
	"github.com/agentstation/rebase/pkg/errors"
)

// Minted is a custom token and what it grants.
type Minted struct {
	UID     string `json:"uid"`
	Token   string `json:"token"`
	Expires string `json:"expires"`
}

// NewCommand creates the token command.
func NewCommand(app application.Application) *cobra.Command {
	var (
		secret string
		ttl    time.Duration
		claims []string
	)

	cmd := &cobra.Command{
		Use:     "token <uid>",
		GroupID: "server",
		Short:   "Mint a custom sign-in token",
		Long: `Token signs a custom token for uid with the secret a served store was
started with. Clients sign in with it through --token or REBASE_TOKEN.`,
		Example: `  rebase token robot-1 --secret "$REBASE_SECRET" --ttl 24h --claim role=worker`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = config.GetString("REBASE_SECRET")
			}
			if secret == "" {
				return errors.NewConfigError("secret", "a signing secret is required; use --secret or REBASE_SECRET", nil)
			}
			extra, err := parseClaims(claims)
			if err != nil {
				return err
			}

			signer, err := memory.New(memory.WithLogger(app.Logger()), memory.WithSecret([]byte(secret)))
			if err != nil {
				return err
			}
			defer signer.Close()

			tok, err := signer.MintToken(args[0], ttl, extra)
			if err != nil {
				return err
			}
			out := Minted{UID: args[0], Token: tok, Expires: "never"}
			if ttl > 0 {
				out.Expires = time.Now().Add(ttl).UTC().Format(time.RFC3339)
			}
			return cmdutil.Print(cmd, app.OutputFormat(), out)
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret, at least 16 bytes (env REBASE_SECRET)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime (0 = never expires)")
	cmd.Flags().StringArrayVar(&claims, "claim", nil, "extra claim as name=value, repeatable")
	return cmd
}

func parseClaims(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, errors.NewValidationError("claim", pair, "must be name=value")
		}
		out[strings.TrimSpace(name)] = cmdutil.ParseValue(raw)
	}
	return out, nil
}
