// Package registry tracks the store references and listener registrations
// behind live bindings.
//
// Each (endpoint, method) pair owns one reference, created on first use and
// shared by every binding of that pair. Each binding id maps to the listener
// it attached to that reference. The reference is dropped with its last
// listener.
package registry

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/rebase/pkg/database"
	"github.com/agentstation/rebase/pkg/errors"
)

// Key identifies a reference slot.
type Key struct {
	Endpoint string
	Method   string
}

type entry struct {
	ref       database.Reference
	listeners map[uint64]database.ListenerID
}

// Registry is safe for concurrent use. Listener detachment happens outside
// the registry lock.
type Registry struct {
	mu      sync.RWMutex
	db      database.Database
	entries map[Key]*entry
	logger  *zerolog.Logger
}

// New creates an empty registry over db.
func New(db database.Database, logger *zerolog.Logger) *Registry {
	return &Registry{
		db:      db,
		entries: make(map[Key]*entry),
		logger:  logger,
	}
}

// Ensure returns the reference for (endpoint, method), creating it on first use.
func (r *Registry) Ensure(endpoint, method string) database.Reference {
	k := Key{Endpoint: endpoint, Method: method}

	r.mu.RLock()
	e, ok := r.entries[k]
	r.mu.RUnlock()
	if ok {
		return e.ref
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[k]; ok {
		return e.ref
	}
	e = &entry{
		ref:       r.db.Ref(endpoint),
		listeners: make(map[uint64]database.ListenerID),
	}
	r.entries[k] = e
	return e.ref
}

// Record stores the listener attached for binding id. If the pair's
// reference was dropped since Ensure, it is recreated.
func (r *Registry) Record(endpoint, method string, id uint64, lid database.ListenerID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := Key{Endpoint: endpoint, Method: method}
	e, ok := r.entries[k]
	if !ok {
		e = &entry{
			ref:       r.db.Ref(endpoint),
			listeners: make(map[uint64]database.ListenerID),
		}
		r.entries[k] = e
	}
	if _, dup := e.listeners[id]; dup {
		return errors.NewAlreadyExistsError("binding", endpoint)
	}
	e.listeners[id] = lid
	return nil
}

// Detach removes the listener recorded for binding id and drops the
// reference when no listener remains. Unknown pairs and ids yield an
// UnboundBindingError.
func (r *Registry) Detach(endpoint, method string, id uint64) error {
	k := Key{Endpoint: endpoint, Method: method}

	r.mu.Lock()
	e, ok := r.entries[k]
	if !ok {
		r.mu.Unlock()
		return errors.NewUnboundBindingError(endpoint, method, id)
	}
	lid, ok := e.listeners[id]
	if !ok {
		r.mu.Unlock()
		return errors.NewUnboundBindingError(endpoint, method, id)
	}
	delete(e.listeners, id)
	if len(e.listeners) == 0 {
		delete(r.entries, k)
	}
	r.mu.Unlock()

	e.ref.Off(database.EventValue, lid)
	return nil
}

// ResetAll detaches every listener and clears the registry. A failing
// detach is logged and does not stop the others. It returns the number of
// listeners detached.
func (r *Registry) ResetAll() int {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[Key]*entry)
	r.mu.Unlock()

	count := 0
	for k, e := range entries {
		for id, lid := range e.listeners {
			if r.detach(k, id, e.ref, lid) {
				count++
			}
		}
	}
	return count
}

func (r *Registry) detach(k Key, id uint64, ref database.Reference, lid database.ListenerID) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn().
				Str("endpoint", k.Endpoint).
				Str("method", k.Method).
				Uint64("binding_id", id).
				Interface("panic", rec).
				Msg("Detaching listener failed")
			ok = false
		}
	}()
	ref.Off(database.EventValue, lid)
	return true
}

// Len returns the number of live references.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Endpoints returns the distinct endpoints with a live reference, sorted.
func (r *Registry) Endpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{}, len(r.entries))
	out := make([]string, 0, len(r.entries))
	for k := range r.entries {
		if _, ok := seen[k.Endpoint]; ok {
			continue
		}
		seen[k.Endpoint] = struct{}{}
		out = append(out, k.Endpoint)
	}
	sort.Strings(out)
	return out
}

// Listeners returns the binding ids recorded for (endpoint, method), sorted.
func (r *Registry) Listeners(endpoint, method string) []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[Key{Endpoint: endpoint, Method: method}]
	if !ok {
		return nil
	}
	out := make([]uint64, 0, len(e.listeners))
	for id := range e.listeners {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Ref returns the live reference for (endpoint, method), if any.
func (r *Registry) Ref(endpoint, method string) (database.Reference, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[Key{Endpoint: endpoint, Method: method}]
	if !ok {
		return nil, false
	}
	return e.ref, true
}
