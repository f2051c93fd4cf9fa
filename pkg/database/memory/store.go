package memory

import (
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/agentstation/rebase/internal/cache"
	"github.com/agentstation/rebase/internal/dispatch"
	"github.com/agentstation/rebase/pkg/database"
	"github.com/agentstation/rebase/pkg/errors"
)

// store holds the tree shared by all sessions.
type store struct {
	name string

	mu       sync.RWMutex
	root     any
	prios    map[string]any
	regs     map[string]map[database.ListenerID]*registration
	nextID   uint64
	sessions map[*DB]struct{}
	closed   bool

	usersMu sync.Mutex
	users   map[string]*user
	resets  *cache.Cache[string]

	opts   *options
	logger *zerolog.Logger
	events *dispatch.Dispatcher
}

// registration is one listener attached with On.
type registration struct {
	id       database.ListenerID
	session  *DB
	path     string
	criteria criteria
	fn       database.Listener
	cancel   database.CancelFunc
	last     *database.DataSnapshot
	removed  atomic.Bool
}

func (s *store) session() *DB {
	db := &DB{store: s}
	db.auth = newAuthSession(db)
	s.mu.Lock()
	s.sessions[db] = struct{}{}
	s.mu.Unlock()
	return db
}

func (s *store) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// get returns the stored value at path without copying.
func (s *store) get(path string) any {
	node := s.root
	for _, part := range database.SplitPath(path) {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = m[part]
	}
	return node
}

// put replaces the value at path. v must be canonical; nil deletes.
func (s *store) put(path string, v any) {
	s.root = putIn(s.root, database.SplitPath(path), v)

	// Priorities belong to the data they were set with.
	for p := range s.prios {
		if p == path || strings.HasPrefix(p, path+"/") || path == "" || s.get(p) == nil {
			delete(s.prios, p)
		}
	}
}

func putIn(node any, parts []string, v any) any {
	if len(parts) == 0 {
		return v
	}
	m, ok := node.(map[string]any)
	if !ok {
		if v == nil {
			return node
		}
		m = make(map[string]any)
	}
	child := putIn(m[parts[0]], parts[1:], v)
	if child == nil {
		delete(m, parts[0])
	} else {
		m[parts[0]] = child
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// write stores v (and its priority) at path and notifies affected listeners.
func (s *store) write(path string, v any, priority any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.NewStoreError("set", path, errors.CodeClosed, "store is closed")
	}
	s.put(path, v)
	if priority != nil && v != nil {
		s.prios[path] = priority
	}
	s.notifyLocked(path)
	return nil
}

// related reports whether a change at one path can affect the other.
func related(a, b string) bool {
	return a == b || a == "" || b == "" ||
		strings.HasPrefix(b, a+"/") || strings.HasPrefix(a, b+"/")
}

// notifyLocked queues an event for every listener whose query result changed.
func (s *store) notifyLocked(changed string) {
	for path, regs := range s.regs {
		if !related(path, changed) {
			continue
		}
		for _, r := range regs {
			snap := s.evaluate(r.path, r.criteria)
			if reflect.DeepEqual(snap, r.last) {
				continue
			}
			r.last = snap
			s.deliver(r, snap.Clone())
		}
	}
}

func (s *store) deliver(r *registration, snap *database.DataSnapshot) {
	s.events.Enqueue(func() {
		if r.removed.Load() {
			return
		}
		r.fn(snap)
	})
}

func (s *store) fail(r *registration, err error) {
	if r.cancel == nil {
		return
	}
	if !s.events.Enqueue(func() { r.cancel(err) }) {
		go r.cancel(err)
	}
}

// addLocked registers a listener and queues its initial event.
func (s *store) addLocked(r *registration) {
	s.nextID++
	r.id = database.ListenerID(s.nextID)
	if s.regs[r.path] == nil {
		s.regs[r.path] = make(map[database.ListenerID]*registration)
	}
	s.regs[r.path][r.id] = r

	snap := s.evaluate(r.path, r.criteria)
	r.last = snap
	s.deliver(r, snap.Clone())
}

func (s *store) removeLocked(path string, id database.ListenerID) *registration {
	regs := s.regs[path]
	r, ok := regs[id]
	if !ok {
		return nil
	}
	r.removed.Store(true)
	delete(regs, id)
	if len(regs) == 0 {
		delete(s.regs, path)
	}
	return r
}

// revalidate cancels the session's listeners that its current auth can no
// longer read.
func (s *store) revalidate(db *DB) {
	rules := s.opts.rules
	if rules == nil {
		return
	}
	auth := db.auth.GetAuth()

	s.mu.Lock()
	defer s.mu.Unlock()
	for path, regs := range s.regs {
		for id, r := range regs {
			if r.session != db || rules(Read, path, auth) {
				continue
			}
			s.removeLocked(path, id)
			s.fail(r, errors.NewStoreError("listen", path, errors.CodePermissionDenied, "read access revoked"))
		}
	}
}

func (s *store) closeSession(db *DB) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, db)
	for path, regs := range s.regs {
		for id, r := range regs {
			if r.session != db {
				continue
			}
			s.removeLocked(path, id)
			s.fail(r, errors.NewStoreError("listen", path, errors.CodeClosed, "session closed"))
		}
	}
}

func (s *store) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	count := 0
	for path, regs := range s.regs {
		for id, r := range regs {
			s.removeLocked(path, id)
			s.fail(r, errors.NewStoreError("listen", path, errors.CodeClosed, "store closed"))
			count++
		}
	}
	s.sessions = make(map[*DB]struct{})
	s.mu.Unlock()

	s.events.Close()
	s.resets.Clear()
	s.logger.Debug().Int("listeners", count).Msg("Store closed")
}
