// Package interceptor diverts writes to synced state fields into store writes.
//
// Every state container has a chain of layers. The bottom of the chain is
// the container's own setter; each sync binding pushes a layer on top. A
// layer takes its field out of an update and writes every leaf of the new
// value to the store, one write per leaf, then hands the remaining fields to
// the layer beneath it. Writes go through a queue shared with the client's
// other writes, so they reach the store in call order. Local state for the synced field changes only when
// the store echoes the write back through the binding's listener.
package interceptor

import (
	"context"
	"reflect"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/rebase/pkg/database"
	"github.com/agentstation/rebase/pkg/errors"
)

// Setter applies a partial state update. done, when not nil, runs once the
// update has been applied.
type Setter func(update map[string]any, done func())

// Queue runs write jobs one at a time, in the order they were queued. It
// reports false once it no longer accepts jobs.
type Queue interface {
	Enqueue(job func()) bool
}

// Chains holds the layer chains of every intercepted state container.
type Chains struct {
	mu     sync.Mutex
	chains map[any]*chain
	writes Queue
	logger *zerolog.Logger
}

type chain struct {
	base   Setter
	layers []*Layer
}

// Layer is one sync binding's interception of a state field.
type Layer struct {
	owner   *Chains
	key     any
	field   string
	ref     database.Reference
	ctx     context.Context
	failure func(error)

	// below is the fallthrough captured when the layer was removed.
	below    Setter
	detached bool
}

// New creates an empty set of chains whose layers write through writes.
func New(writes Queue, logger *zerolog.Logger) *Chains {
	return &Chains{
		chains: make(map[any]*chain),
		writes: writes,
		logger: logger,
	}
}

// Push adds a layer for field on top of key's chain. base is the container's
// own setter and is only used when the chain is created. key must be
// comparable. Writes use ctx and report errors to failure, or log them when
// failure is nil.
func (c *Chains) Push(ctx context.Context, key any, base Setter, field string, ref database.Reference, failure func(error)) *Layer {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.chains[key]
	if !ok {
		ch = &chain{base: base}
		c.chains[key] = ch
	}
	l := &Layer{owner: c, key: key, field: field, ref: ref, ctx: ctx, failure: failure}
	ch.layers = append(ch.layers, l)
	return l
}

// Remove unlinks exactly this layer. Layers above it fall through to the
// layer below it. A chain without layers is discarded. Removing twice is a
// no-op.
func (c *Chains) Remove(l *Layer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.chains[l.key]
	if !ok {
		return
	}
	for i, x := range ch.layers {
		if x != l {
			continue
		}
		l.below = ch.beneath(i)
		l.detached = true
		ch.layers = append(ch.layers[:i], ch.layers[i+1:]...)
		break
	}
	if len(ch.layers) == 0 {
		delete(c.chains, l.key)
	}
}

// Clear discards every chain.
func (c *Chains) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, ch := range c.chains {
		for i, l := range ch.layers {
			l.below = ch.beneath(i)
			l.detached = true
		}
		delete(c.chains, key)
	}
}

// Len returns the number of intercepted containers.
func (c *Chains) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.chains)
}

// Depth returns the number of layers on key's chain.
func (c *Chains) Depth(key any) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.chains[key]; ok {
		return len(ch.layers)
	}
	return 0
}

// beneath returns the setter under layer i. Callers hold the lock.
func (ch *chain) beneath(i int) Setter {
	if i == 0 {
		return ch.base
	}
	return ch.layers[i-1].Set
}

// next resolves the fallthrough for l at call time and reports whether l
// still intercepts.
func (l *Layer) next() (Setter, bool) {
	c := l.owner
	c.mu.Lock()
	defer c.mu.Unlock()

	if l.detached {
		return l.below, false
	}
	if ch, ok := c.chains[l.key]; ok {
		for i, x := range ch.layers {
			if x == l {
				return ch.beneath(i), true
			}
		}
	}
	return l.below, false
}

// Field returns the intercepted state field.
func (l *Layer) Field() string { return l.field }

// Set is the wrapped setter the host installs in place of its own.
func (l *Layer) Set(update map[string]any, done func()) {
	next, active := l.next()
	value, synced := update[l.field]
	if !synced || !active {
		if next != nil {
			next(update, done)
		}
		return
	}

	rest := make(map[string]any, len(update))
	for k, v := range update {
		if k != l.field {
			rest[k] = v
		}
	}

	var writesDone func()
	if len(rest) == 0 {
		writesDone = done
	}
	if !l.owner.writes.Enqueue(func() { l.write(value, writesDone) }) {
		l.fail(l.ref.Path(), errors.WrapStore("set", l.ref.Path(), errors.ErrClosed))
		if writesDone != nil {
			writesDone()
		}
	}

	if len(rest) > 0 && next != nil {
		next(rest, done)
	}
}

// write stores every leaf of value below the layer's reference, in key
// order, one write per leaf.
func (l *Layer) write(value any, done func()) {
	Leaves(value, func(path string, leaf any) {
		ref := l.ref
		if path != "" {
			ref = ref.Child(path)
		}
		if err := ref.Set(l.ctx, leaf); err != nil {
			l.fail(ref.Path(), err)
		}
	})
	if done != nil {
		done()
	}
}

func (l *Layer) fail(path string, err error) {
	if l.failure != nil {
		l.failure(err)
		return
	}
	l.owner.logger.Warn().
		Err(err).
		Str("path", path).
		Str("state", l.field).
		Msg("Synced state write failed")
}

// Leaves calls emit for every leaf of v with its slash-separated path
// relative to v. Objects (maps, structs) are descended into; scalars, nil
// and slices are leaves. An empty object has no leaves.
func Leaves(v any, emit func(path string, leaf any)) {
	leaves("", v, emit)
}

func leaves(prefix string, v any, emit func(string, any)) {
	m, ok := object(v)
	if !ok {
		emit(prefix, v)
		return
	}
	for _, k := range database.SortedKeys(m) {
		leaves(database.JoinPath(prefix, k), m[k], emit)
	}
}

func object(v any) (map[string]any, bool) {
	switch x := v.(type) {
	case map[string]any:
		return x, true
	case nil, string, bool, []any:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct && rv.Kind() != reflect.Map {
		return nil, false
	}
	tree, err := database.Canonical(v)
	if err != nil {
		return nil, false
	}
	if tree == nil {
		return map[string]any{}, true
	}
	m, ok := tree.(map[string]any)
	return m, ok
}
