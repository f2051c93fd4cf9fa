// Package app wires configuration, logging and the store client for the
// rebase CLI.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/rebase"
	"github.com/agentstation/rebase/cmd/application"
	"github.com/agentstation/rebase/pkg/errors"

	// ws:// and wss:// URLs
	_ "github.com/agentstation/rebase/pkg/database/remote"
)

// signInTimeout bounds the custom token sign-in made when the client is
// created.
const signInTimeout = 10 * time.Second

// App represents the rebase application with all its dependencies.
type App struct {
	version string
	commit  string
	date    string
	builtBy string

	config *Config
	logger *zerolog.Logger

	// client is created on first use
	mu     sync.RWMutex
	client rebase.Client
}

var _ application.Application = (*App)(nil)

// New creates a new App instance with the given version information.
// Configuration is loaded from the environment, .env files and the config
// file, and can be replaced with functional options.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
	}

	config, err := LoadConfig()
	if err != nil {
		return nil, errors.WrapResource("load", "config", "", err)
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Commit returns the git commit hash.
func (a *App) Commit() string {
	return a.commit
}

// Date returns the build date.
func (a *App) Date() string {
	return a.date
}

// BuiltBy returns the build system identifier.
func (a *App) BuiltBy() string {
	return a.builtBy
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// OutputFormat returns the configured output format.
func (a *App) OutputFormat() string {
	return a.config.Format
}

// Client returns the store client, connecting to the configured URL on the
// first call. It is safe for concurrent use and creates one client only.
func (a *App) Client() (rebase.Client, error) {
	a.mu.RLock()
	if a.client != nil {
		c := a.client
		a.mu.RUnlock()
		return c, nil
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()

	// Double-check after acquiring write lock
	if a.client != nil {
		return a.client, nil
	}

	if a.config.URL == "" {
		return nil, errors.NewConfigError("url", "no store URL configured; use --url or REBASE_URL", nil)
	}

	c, err := rebase.New(a.config.URL,
		rebase.WithLogger(a.logger),
		rebase.WithFetchTimeout(a.config.FetchTimeout),
	)
	if err != nil {
		return nil, errors.WrapResource("create", "client", a.config.URL, err)
	}

	if a.config.Token != "" {
		ctx, cancel := context.WithTimeout(context.Background(), signInTimeout)
		defer cancel()
		data, err := c.AuthWithCustomToken(ctx, a.config.Token)
		if err != nil {
			c.Reset()
			return nil, errors.WrapResource("sign in", "client", a.config.URL, err)
		}
		a.logger.Debug().Str("uid", data.UID).Msg("Signed in with custom token")
	}

	a.client = c
	return c, nil
}

// Shutdown releases the client, if one was created.
func (a *App) Shutdown(_ context.Context) error {
	a.mu.Lock()
	c := a.client
	a.client = nil
	a.mu.Unlock()

	if c != nil {
		c.Reset()
	}
	return nil
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		a.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithClient sets a custom client (useful for testing).
func WithClient(c rebase.Client) Option {
	return func(a *App) error {
		a.client = c
		return nil
	}
}
