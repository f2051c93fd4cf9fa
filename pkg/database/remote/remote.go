// Package remote is a database client for stores served over a websocket by
// `rebase serve`. It registers itself for the ws:// and wss:// URL schemes.
//
// Requests and results are JSON frames correlated by id. Value listeners are
// registered on the server under an id chosen by the client; their events
// are delivered from a single goroutine, in the order they arrive.
package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/rebase/internal/dispatch"
	"github.com/agentstation/rebase/pkg/database"
	"github.com/agentstation/rebase/pkg/errors"
	"github.com/agentstation/rebase/pkg/logging"
)

// URL schemes served by this backend.
const (
	Scheme       = "ws"
	SecureScheme = "wss"
)

// DefaultPath is the websocket path used when the URL has none.
const DefaultPath = "/ws"

const (
	// Time allowed to write a frame to the server.
	writeWait = 10 * time.Second

	// Maximum frame size accepted from the server.
	maxFrameSize = 32 << 20
)

func init() {
	dialer := database.DialerFunc(func(ctx context.Context, u *url.URL) (database.Database, error) {
		return Dial(ctx, u.String())
	})
	database.Register(Scheme, dialer)
	database.Register(SecureScheme, dialer)
}

// DB is a connection to a served store.
type DB struct {
	conn   *websocket.Conn
	events *dispatch.Dispatcher
	logger *zerolog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error

	mu        sync.Mutex
	closed    bool
	err       error
	nextID    uint64
	pending   map[uint64]chan *Frame
	listeners map[uint64]*listener

	auth *authState
	done chan struct{}
}

var _ database.Database = (*DB)(nil)

type listener struct {
	path   string
	fn     database.Listener
	cancel database.CancelFunc
}

// options configures a connection.
type options struct {
	logger *zerolog.Logger
	dialer *websocket.Dialer
}

// Option configures a connection.
type Option func(*options) error

// WithLogger sets the connection logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}

// WithDialer sets the websocket dialer, for TLS settings or proxies.
func WithDialer(d *websocket.Dialer) Option {
	return func(o *options) error {
		if d == nil {
			return errors.NewValidationError("dialer", nil, "cannot be nil")
		}
		o.dialer = d
		return nil
	}
}

// Dial connects to the store served at rawURL.
func Dial(ctx context.Context, rawURL string, opts ...Option) (*DB, error) {
	o := &options{dialer: websocket.DefaultDialer}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.logger == nil {
		o.logger = logging.Default()
	}

	u, err := database.CheckURL(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != Scheme && u.Scheme != SecureScheme {
		return nil, errors.NewInvalidURLError(rawURL, "expected a ws or wss url")
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = DefaultPath
	}
	header := http.Header{}
	if key := accessKey(u); key != "" {
		header.Set("Authorization", "Bearer "+key)
		u.User = nil
	}

	conn, resp, err := o.dialer.DialContext(ctx, u.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errors.NewStoreError("dial", "", errors.CodeUnavailable, err.Error())
	}
	conn.SetReadLimit(maxFrameSize)

	logger := logging.ForStore(o.logger, u.Host)
	db := &DB{
		conn:      conn,
		events:    dispatch.New(logger),
		logger:    logger,
		pending:   make(map[uint64]chan *Frame),
		listeners: make(map[uint64]*listener),
		done:      make(chan struct{}),
	}
	db.auth = newAuthState(db)
	go db.readPump()

	logger.Debug().Str("url", u.Redacted()).Msg("Connected")
	return db, nil
}

// accessKey returns the server access key carried in the URL userinfo,
// ws://:key@host or ws://key@host.
func accessKey(u *url.URL) string {
	if u.User == nil {
		return ""
	}
	if p, ok := u.User.Password(); ok {
		return p
	}
	return u.User.Username()
}

// Ref returns a reference to path.
func (db *DB) Ref(path string) database.Reference {
	return &ref{view: view{db: db, path: database.CleanPath(path)}}
}

// Auth returns the connection's authentication surface.
func (db *DB) Auth() database.Auth {
	return db.auth
}

// Close closes the connection. Pending requests fail and listeners are
// cancelled with a closed error.
func (db *DB) Close() error {
	db.closeOnce.Do(func() {
		db.writeMu.Lock()
		_ = db.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = db.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		db.writeMu.Unlock()

		db.terminate(errors.NewStoreError("close", "", errors.CodeClosed, "connection closed"))
		db.closeErr = db.conn.Close()
		<-db.done
	})
	return db.closeErr
}

// Flush blocks until every event received so far has been delivered. It must
// not be called from a listener.
func (db *DB) Flush() {
	db.events.Flush()
}

func (db *DB) readPump() {
	defer close(db.done)
	for {
		_, data, err := db.conn.ReadMessage()
		if err != nil {
			db.mu.Lock()
			closing := db.closed
			db.mu.Unlock()
			if !closing && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				db.logger.Warn().Err(err).Msg("Connection lost")
			}
			db.terminate(errors.NewStoreError("read", "", errors.CodeUnavailable, "connection lost: "+err.Error()))
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			db.logger.Warn().Err(err).Msg("Malformed frame ignored")
			continue
		}
		db.handle(&f)
	}
}

func (db *DB) handle(f *Frame) {
	switch f.Type {
	case FrameResult:
		db.mu.Lock()
		ch, ok := db.pending[f.ID]
		delete(db.pending, f.ID)
		db.mu.Unlock()
		if ok {
			ch <- f
		}

	case FrameEvent:
		id := f.Listener
		snap := f.Snapshot
		db.events.Enqueue(func() {
			if l := db.listener(id); l != nil {
				l.fn(snapshotOr(snap, l.path))
			}
		})

	case FrameCancel:
		if l := db.removeListener(f.Listener); l != nil {
			err := f.Error.Decode("listen", l.path)
			db.events.Enqueue(func() { l.cancelWith(err) })
		}

	default:
		db.logger.Debug().Str("type", f.Type).Msg("Unknown frame ignored")
	}
}

// terminate fails pending requests and cancels listeners with err. Only the
// first call has an effect.
func (db *DB) terminate(err error) {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return
	}
	db.closed = true
	db.err = err
	pending := db.pending
	listeners := db.listeners
	db.pending = make(map[uint64]chan *Frame)
	db.listeners = make(map[uint64]*listener)
	db.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	for _, l := range listeners {
		db.events.Enqueue(func() {
			l.cancelWith(errors.NewStoreError("listen", l.path, storeCode(err), "listener cancelled: "+err.Error()))
		})
	}
	db.events.Close()
	db.auth.close()
	db.logger.Debug().Int("listeners", len(listeners)).Msg("Connection closed")
}

func storeCode(err error) string {
	if se, ok := err.(*errors.StoreError); ok {
		return se.Code
	}
	return ""
}

func (l *listener) cancelWith(err error) {
	if l.cancel != nil {
		l.cancel(err)
	}
}

// send writes req to the connection.
func (db *DB) send(req *Request) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	_ = db.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := db.conn.WriteJSON(req); err != nil {
		return errors.NewStoreError(req.Op, req.Path, errors.CodeUnavailable, err.Error())
	}
	return nil
}

// start registers a pending result for req and sends it.
func (db *DB) start(req *Request) (chan *Frame, error) {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil, db.closedError(req.Op, req.Path)
	}
	db.nextID++
	req.ID = db.nextID
	ch := make(chan *Frame, 1)
	db.pending[req.ID] = ch
	db.mu.Unlock()

	if err := db.send(req); err != nil {
		db.forget(req.ID)
		return nil, err
	}
	return ch, nil
}

// wait blocks for the result of a started request.
func (db *DB) wait(ctx context.Context, req *Request, ch chan *Frame) (*Frame, error) {
	select {
	case f, ok := <-ch:
		if !ok {
			return nil, db.closedError(req.Op, req.Path)
		}
		if f.Error != nil {
			return nil, f.Error.Decode(req.Op, req.Path)
		}
		return f, nil
	case <-ctx.Done():
		db.forget(req.ID)
		return nil, ctx.Err()
	}
}

// call sends req and waits for its result.
func (db *DB) call(ctx context.Context, req *Request) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch, err := db.start(req)
	if err != nil {
		return nil, err
	}
	return db.wait(ctx, req, ch)
}

// notify sends req without waiting for a result.
func (db *DB) notify(req *Request) {
	db.mu.Lock()
	closed := db.closed
	db.mu.Unlock()
	if closed {
		return
	}
	if err := db.send(req); err != nil {
		db.logger.Debug().Err(err).Str("op", req.Op).Msg("Request not sent")
	}
}

func (db *DB) forget(id uint64) {
	db.mu.Lock()
	delete(db.pending, id)
	db.mu.Unlock()
}

func (db *DB) addListener(l *listener) (uint64, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return 0, false
	}
	db.nextID++
	db.listeners[db.nextID] = l
	return db.nextID, true
}

func (db *DB) listener(id uint64) *listener {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.listeners[id]
}

func (db *DB) removeListener(id uint64) *listener {
	db.mu.Lock()
	defer db.mu.Unlock()
	l, ok := db.listeners[id]
	if !ok {
		return nil
	}
	delete(db.listeners, id)
	return l
}

// closedError reports use of a closed connection for op at path, with the
// code of the failure that closed it.
func (db *DB) closedError(op, path string) error {
	db.mu.Lock()
	err := db.err
	db.mu.Unlock()
	if err == nil {
		return errors.NewStoreError(op, path, errors.CodeClosed, "connection closed")
	}
	return errors.NewStoreError(op, path, storeCode(err), err.Error())
}

func snapshotOr(s *database.DataSnapshot, path string) database.Snapshot {
	if s == nil {
		return database.NewSnapshot(database.LastSegment(path), nil)
	}
	return s
}
