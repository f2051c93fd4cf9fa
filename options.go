package rebase

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/rebase/pkg/database"
	"github.com/agentstation/rebase/pkg/errors"
	"github.com/agentstation/rebase/pkg/query"
)

// DefaultFetchTimeout is the period of a fetch timeout that does not set one.
const DefaultFetchTimeout = 2 * time.Second

// Option is a function that configures a Client
type Option func(*config) error

// config is the configuration for a Client
type config struct {
	db           database.Database
	dialer       database.Dialer
	logger       *zerolog.Logger
	fetchTimeout time.Duration
}

func defaultConfig() *config {
	return &config{fetchTimeout: DefaultFetchTimeout}
}

// WithDatabase uses an already open database instead of dialing the URL.
// The client does not close it on Reset.
func WithDatabase(db database.Database) Option {
	return func(c *config) error {
		if db == nil {
			return errors.NewInvalidOptionsError("database", "a non-nil database", db)
		}
		c.db = db
		return nil
	}
}

// WithDialer opens the connection URL with d instead of the backend
// registered for the URL's scheme.
func WithDialer(d database.Dialer) Option {
	return func(c *config) error {
		c.dialer = d
		return nil
	}
}

// WithLogger configures the logger used for binding lifecycle and
// unreported write failures.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *config) error {
		c.logger = logger
		return nil
	}
}

// WithFetchTimeout configures the default period of fetch timeouts.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *config) error {
		if d <= 0 {
			return errors.NewInvalidOptionsError("fetch timeout", "a positive duration", d)
		}
		c.fetchTimeout = d
		return nil
	}
}

// ListenOptions configures ListenTo.
type ListenOptions struct {
	// Context is the keyed value the binding belongs to. Required.
	Context any

	// Then receives the normalized data on every change. Required.
	Then func(data any)

	// Failure receives the error if the store cancels the listener.
	Failure func(err error)

	AsArray bool
	Queries query.Set
}

// BindOptions configures BindToState.
type BindOptions struct {
	// Context receives {State: data} on every change. Required.
	Context State

	// State names the state field to replace. Required.
	State string

	// Failure receives the error if the store cancels the listener.
	Failure func(err error)

	AsArray bool
	Queries query.Set
}

// SyncOptions configures SyncState.
type SyncOptions struct {
	// Context receives {State: data} on every change and is the container
	// whose setter is intercepted. It must be comparable; use a pointer.
	Context State

	// State names the synced state field. Required.
	State string

	// Then is called once, after the first change notification.
	Then func()

	// Failure receives synced write failures and listener cancellation.
	// Without it they are logged.
	Failure func(err error)

	AsArray bool
	Queries query.Set
}

// FetchOptions configures Fetch.
type FetchOptions struct {
	// Context is the keyed value the read belongs to. Required.
	Context any

	// Then receives the normalized data. Required unless Timeout is set.
	Then func(data any)

	// Failure receives a failed read.
	Failure func(err error)

	// Timeout races the read against a timer. The outcome is then only
	// reported through the returned Result.
	Timeout *FetchTimeout

	AsArray bool
	Queries query.Set
}

// FetchTimeout sets the period of a fetch timeout. A zero Period uses the
// client's default.
type FetchTimeout struct {
	Period time.Duration
}

// PostOptions configures Post.
type PostOptions struct {
	// Data is the value to store. Required.
	Data any

	// Priority, when set, is stored with the value.
	Priority any

	// Then receives the write's outcome, nil on success.
	Then func(err error)
}

// PushOptions configures Push.
type PushOptions struct {
	// Data is the value to store under the new key. Required.
	Data any

	// Then receives the write's outcome, nil on success.
	Then func(err error)
}
