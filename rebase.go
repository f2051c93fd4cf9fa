// Package rebase binds locations of a realtime store to application state.
//
// A Client offers one-shot reads (Fetch), writes (Post, Push) and three kinds
// of live binding: ListenTo hands every change to a callback, BindToState
// replaces a state field on every change, and SyncState additionally turns
// writes to that field into store writes. Bindings stay live until they are
// removed with RemoveBinding or the client is Reset.
package rebase

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/agentstation/rebase/internal/dispatch"
	"github.com/agentstation/rebase/internal/interceptor"
	"github.com/agentstation/rebase/internal/registry"
	"github.com/agentstation/rebase/pkg/database"
	"github.com/agentstation/rebase/pkg/errors"
	"github.com/agentstation/rebase/pkg/logging"
)

// State is a host state container. SetState merges update into the
// container's state and calls done, when not nil, once it has been applied.
type State interface {
	SetState(update map[string]any, done func())
}

// StateSetter is a state setter the host installs in place of its own.
type StateSetter func(update map[string]any, done func())

// Method is the kind of a binding.
type Method string

// Binding kinds.
const (
	MethodListenTo    Method = "listenTo"
	MethodBindToState Method = "bindToState"
	MethodSyncState   Method = "syncState"
)

// Binding identifies a live binding. It is returned on bind and passed back
// to RemoveBinding.
type Binding struct {
	Endpoint string
	Method   Method
	ID       uint64
}

// Client binds store locations to application state.
type Client interface {
	// ListenTo calls opts.Then with the endpoint's data now and on every change.
	ListenTo(endpoint string, opts ListenOptions) (Binding, error)

	// BindToState sets opts.State on opts.Context now and on every change.
	BindToState(endpoint string, opts BindOptions) (Binding, error)

	// SyncState binds like BindToState and returns a setter that writes the
	// synced field to the store instead of to local state.
	SyncState(endpoint string, opts SyncOptions) (Binding, StateSetter, error)

	// Fetch reads the endpoint once.
	Fetch(endpoint string, opts FetchOptions) (*Result, error)

	// Post replaces the endpoint's value.
	Post(endpoint string, opts PostOptions) error

	// Push stores opts.Data under a new key below the endpoint and returns
	// the new location.
	Push(endpoint string, opts PushOptions) (database.Reference, error)

	// RemoveBinding detaches exactly the given binding.
	RemoveBinding(b Binding) error

	// Reset detaches every binding and closes the client.
	Reset()

	// URL returns the connection URL, empty after Reset.
	URL() string

	// Endpoints returns the endpoints with live bindings, sorted.
	Endpoints() []string

	// Database returns the underlying connection.
	Database() database.Database

	Authenticator
}

// client is the internal implementation of the Client interface
type client struct {
	mu     sync.RWMutex
	url    string
	closed bool
	layers map[uint64]*interceptor.Layer

	db       database.Database
	ownsDB   bool
	registry *registry.Registry
	chains   *interceptor.Chains
	nextID   atomic.Uint64

	// writes issues store writes one at a time, in call order, and runs
	// their completion callbacks.
	writes *dispatch.Dispatcher

	// ctx scopes store calls made on the caller's behalf; Reset cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	config *config
	logger *zerolog.Logger
}

var (
	instanceMu sync.Mutex
	instance   *client
)

// New creates a client for the database at rawURL. With WithDatabase,
// rawURL may be empty.
func New(rawURL string, opts ...Option) (Client, error) {
	return newClient(rawURL, opts...)
}

// CreateClass returns the process-wide client, creating it for rawURL on
// the first call. Later calls return the same client whatever URL they
// pass, until Reset.
func CreateClass(rawURL string, opts ...Option) (Client, error) {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	if instance != nil {
		return instance, nil
	}
	c, err := newClient(rawURL, opts...)
	if err != nil {
		return nil, err
	}
	instance = c
	return c, nil
}

// Reset resets the process-wide client, if there is one.
func Reset() {
	instanceMu.Lock()
	c := instance
	instance = nil
	instanceMu.Unlock()

	if c != nil {
		c.Reset()
	}
}

func newClient(rawURL string, opts ...Option) (*client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("applying option: %w", err)
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = logging.Default()
	}

	db := cfg.db
	owns := false
	if db == nil || rawURL != "" {
		u, dialer, err := resolveURL(rawURL, cfg.dialer)
		if err != nil {
			return nil, err
		}
		if db == nil {
			db, err = dialer.Dial(context.Background(), u)
			if err != nil {
				return nil, errors.WrapResource("dial", "database", rawURL, err)
			}
			owns = true
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	writes := dispatch.New(logger)
	c := &client{
		url:      rawURL,
		layers:   make(map[uint64]*interceptor.Layer),
		db:       db,
		ownsDB:   owns,
		registry: registry.New(db, logger),
		chains:   interceptor.New(writes, logger),
		writes:   writes,
		ctx:      ctx,
		cancel:   cancel,
		config:   cfg,
		logger:   logger,
	}

	logger.Debug().Str("url", rawURL).Bool("owns_database", owns).Msg("Client created")
	return c, nil
}

func resolveURL(raw string, dialer database.Dialer) (*url.URL, database.Dialer, error) {
	if dialer == nil {
		return database.ParseURL(raw)
	}
	u, err := database.CheckURL(raw)
	if err != nil {
		return nil, nil, err
	}
	return u, dialer, nil
}

// Reset detaches every listener, clears bindings and interceptors, forgets
// the URL and closes a database the client dialed itself. Calls made after
// Reset fail with ErrClosed.
func (c *client) Reset() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.url = ""
	c.layers = make(map[uint64]*interceptor.Layer)
	c.mu.Unlock()

	instanceMu.Lock()
	if instance == c {
		instance = nil
	}
	instanceMu.Unlock()

	detached := c.registry.ResetAll()
	c.chains.Clear()
	c.cancel()
	c.writes.Close()

	if c.ownsDB {
		if err := c.db.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("Closing database failed")
		}
	}

	c.logger.Info().Int("listeners", detached).Msg("Client reset")
}

func (c *client) URL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.url
}

func (c *client) Endpoints() []string {
	return c.registry.Endpoints()
}

func (c *client) Database() database.Database {
	return c.db
}

// ready fails once the client has been reset.
func (c *client) ready(op string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return fmt.Errorf("%s: %w", op, errors.ErrClosed)
	}
	return nil
}
