// Package application provides the application interface for rebase commands.
//
// Commands accept an Application rather than the concrete app type, so they
// can be tested with Mock:
//
//	mock := &application.Mock{
//	    ClientFunc: func() (rebase.Client, error) {
//	        return rebase.New("", rebase.WithDatabase(db))
//	    },
//	}
//	cmd := fetch.NewCommand(mock)
package application

import (
	"github.com/rs/zerolog"

	"github.com/agentstation/rebase"
)

// Application provides what commands need from the application.
//
// Thread Safety: All methods must be safe for concurrent access.
type Application interface {
	// Client returns the store client, connecting on first use.
	Client() (rebase.Client, error)

	// Logger returns the configured logger instance.
	Logger() *zerolog.Logger

	// OutputFormat returns the configured output format (json, yaml, table).
	OutputFormat() string

	// Version returns the application version string.
	Version() string

	// Commit returns the git commit hash.
	Commit() string

	// Date returns the build date.
	Date() string

	// BuiltBy returns the build system identifier.
	BuiltBy() string
}
