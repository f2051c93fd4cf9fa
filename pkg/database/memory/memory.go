// Package memory is an in-process realtime database. It keeps a JSON tree in
// memory, evaluates queries, delivers value events in write order, and
// provides email/password and custom token authentication.
//
// It backs the CLI's serve command and is the reference backend for tests.
// A store is shared by any number of sessions; each session has its own
// authentication state and its own listeners.
//
//	db, _ := memory.New(memory.WithSeed(map[string]any{"users": nil}))
//	defer db.Close()
//	_ = db.Ref("users/ada").Set(ctx, map[string]any{"name": "Ada"})
package memory

import (
	"context"
	"crypto/rand"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/rebase/internal/cache"
	"github.com/agentstation/rebase/internal/dispatch"
	"github.com/agentstation/rebase/pkg/database"
	"github.com/agentstation/rebase/pkg/errors"
	"github.com/agentstation/rebase/pkg/logging"
)

// Scheme is the URL scheme served by this backend: memory://<name>.
const Scheme = "memory"

func init() {
	database.Register(Scheme, database.DialerFunc(func(_ context.Context, u *url.URL) (database.Database, error) {
		return Open(u.Host)
	}))
}

// DB is a session on a store. It implements database.Database.
type DB struct {
	store *store
	owner bool
	auth  *authSession

	mu     sync.Mutex
	closed bool
}

var _ database.Database = (*DB)(nil)

// New creates a private store and returns its owning session. Closing the
// owning session closes the store.
func New(opts ...Option) (*DB, error) {
	s, err := newStore("", opts...)
	if err != nil {
		return nil, err
	}
	db := s.session()
	db.owner = true
	return db, nil
}

var (
	namedMu sync.Mutex
	named   = make(map[string]*store)
)

// Open returns a new session on the process-wide store called name,
// creating the store with opts on first use. Options are ignored for a
// store that already exists.
func Open(name string, opts ...Option) (*DB, error) {
	namedMu.Lock()
	defer namedMu.Unlock()

	if s, ok := named[name]; ok && !s.isClosed() {
		return s.session(), nil
	}
	s, err := newStore(name, opts...)
	if err != nil {
		return nil, err
	}
	named[name] = s
	return s.session(), nil
}

// Drop closes the named store and forgets it.
func Drop(name string) {
	namedMu.Lock()
	s, ok := named[name]
	delete(named, name)
	namedMu.Unlock()
	if ok {
		s.close()
	}
}

// Session returns a new session on the same store with its own
// authentication state.
func (db *DB) Session() *DB {
	return db.store.session()
}

// Name returns the store name, empty for private stores.
func (db *DB) Name() string {
	return db.store.name
}

// Ref returns a reference to path.
func (db *DB) Ref(path string) database.Reference {
	return &ref{query: query{db: db, path: database.CleanPath(path)}}
}

// Auth returns the session's authentication surface.
func (db *DB) Auth() database.Auth {
	return db.auth
}

// MintToken signs a custom token for uid that AuthWithCustomToken accepts.
// A zero ttl produces a token without expiry.
func (db *DB) MintToken(uid string, ttl time.Duration, claims map[string]any) (string, error) {
	return db.store.mintToken(uid, ttl, claims)
}

// Close ends the session: its listeners are cancelled with ErrClosed.
// Closing the owning session of a private store also closes the store.
func (db *DB) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	db.mu.Unlock()

	db.auth.close()
	if db.owner {
		db.store.close()
		return nil
	}
	db.store.closeSession(db)
	return nil
}

func (db *DB) isClosed() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.closed
}

// options configures a store.
type options struct {
	logger     *zerolog.Logger
	secret     []byte
	rules      Rules
	seed       any
	bcryptCost int
	resetTTL   time.Duration
	onReset    func(email, password string)
}

// Option configures a store.
type Option func(*options) error

// WithLogger sets the store logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}

// WithSecret sets the HMAC secret used to sign and verify custom tokens.
// A random secret is generated when none is given.
func WithSecret(secret []byte) Option {
	return func(o *options) error {
		if len(secret) < 16 {
			return errors.NewValidationError("secret", len(secret), "secret must be at least 16 bytes")
		}
		o.secret = secret
		return nil
	}
}

// WithRules installs access rules. Without rules every operation is allowed.
func WithRules(rules Rules) Option {
	return func(o *options) error {
		o.rules = rules
		return nil
	}
}

// WithSeed sets the initial contents of the store.
func WithSeed(value any) Option {
	return func(o *options) error {
		v, err := database.Canonical(value)
		if err != nil {
			return err
		}
		o.seed = v
		return nil
	}
}

// WithBcryptCost sets the cost used to hash passwords.
func WithBcryptCost(cost int) Option {
	return func(o *options) error {
		o.bcryptCost = cost
		return nil
	}
}

// WithPasswordReset sets how long temporary passwords issued by
// ResetPassword stay valid, and the function that delivers them.
func WithPasswordReset(ttl time.Duration, deliver func(email, password string)) Option {
	return func(o *options) error {
		if ttl <= 0 {
			return errors.NewValidationError("ttl", ttl, "must be positive")
		}
		o.resetTTL = ttl
		o.onReset = deliver
		return nil
	}
}

func newStore(name string, opts ...Option) (*store, error) {
	o := &options{
		bcryptCost: defaultBcryptCost,
		resetTTL:   24 * time.Hour,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.logger == nil {
		o.logger = logging.Default()
	}
	if o.secret == nil {
		o.secret = make([]byte, 32)
		if _, err := rand.Read(o.secret); err != nil {
			return nil, errors.WrapResource("generate", "secret", name, err)
		}
	}

	logger := logging.ForStore(o.logger, name)
	s := &store{
		name:     name,
		root:     o.seed,
		prios:    make(map[string]any),
		regs:     make(map[string]map[database.ListenerID]*registration),
		users:    make(map[string]*user),
		resets:   cache.New[string](o.resetTTL, time.Hour),
		sessions: make(map[*DB]struct{}),
		opts:     o,
		logger:   logger,
	}
	s.events = dispatch.New(s.logger)
	return s, nil
}

// Flush blocks until every event queued so far has been delivered. It must
// not be called from a listener.
func (db *DB) Flush() {
	db.store.events.Flush()
}
