package rebase

import (
	"reflect"
	"sync"

	"github.com/agentstation/rebase/internal/snapshot"
	"github.com/agentstation/rebase/pkg/database"
	"github.com/agentstation/rebase/pkg/errors"
	"github.com/agentstation/rebase/pkg/logging"
	"github.com/agentstation/rebase/pkg/query"
)

// ListenTo calls opts.Then with the endpoint's normalized data, once with
// the current data and again on every change.
func (c *client) ListenTo(endpoint string, opts ListenOptions) (Binding, error) {
	if err := ValidateEndpoint(endpoint); err != nil {
		return Binding{}, err
	}
	if err := validateContext(opts.Context); err != nil {
		return Binding{}, err
	}
	if opts.Then == nil {
		return Binding{}, errors.NewInvalidOptionsError("then", "a callback", nil)
	}
	if err := validateQueries(opts.Queries); err != nil {
		return Binding{}, err
	}

	listener := func(snap database.Snapshot) {
		opts.Then(snapshot.Normalize(snap, opts.AsArray))
	}
	return c.bind(endpoint, MethodListenTo, opts.Queries, listener, opts.Failure)
}

// BindToState replaces opts.State on opts.Context with the endpoint's
// normalized data, once with the current data and again on every change.
func (c *client) BindToState(endpoint string, opts BindOptions) (Binding, error) {
	if err := ValidateEndpoint(endpoint); err != nil {
		return Binding{}, err
	}
	if err := validateState(opts.Context, opts.State); err != nil {
		return Binding{}, err
	}
	if err := validateQueries(opts.Queries); err != nil {
		return Binding{}, err
	}

	listener := func(snap database.Snapshot) {
		opts.Context.SetState(map[string]any{
			opts.State: snapshot.Normalize(snap, opts.AsArray),
		}, nil)
	}
	return c.bind(endpoint, MethodBindToState, opts.Queries, listener, opts.Failure)
}

// SyncState binds opts.State like BindToState and returns the setter the
// host must use from now on. Through it, writes to opts.State become store
// writes below the endpoint, one per leaf, and reach local state only when
// the store reports the change back. Other fields pass through to the
// setter beneath it unchanged. opts.Then runs after the first notification.
func (c *client) SyncState(endpoint string, opts SyncOptions) (Binding, StateSetter, error) {
	if err := ValidateEndpoint(endpoint); err != nil {
		return Binding{}, nil, err
	}
	if err := validateState(opts.Context, opts.State); err != nil {
		return Binding{}, nil, err
	}
	if !reflect.TypeOf(opts.Context).Comparable() {
		return Binding{}, nil, errors.NewInvalidOptionsError("context", "a comparable state container, such as a pointer", reflect.TypeOf(opts.Context).String())
	}
	if err := validateQueries(opts.Queries); err != nil {
		return Binding{}, nil, err
	}
	if err := c.ready("syncState"); err != nil {
		return Binding{}, nil, err
	}

	base := opts.Context.SetState
	layer := c.chains.Push(c.ctx, opts.Context, base, opts.State, c.db.Ref(endpoint), opts.Failure)

	var once sync.Once
	listener := func(snap database.Snapshot) {
		base(map[string]any{
			opts.State: snapshot.Normalize(snap, opts.AsArray),
		}, nil)
		if opts.Then != nil {
			once.Do(opts.Then)
		}
	}

	b, err := c.bind(endpoint, MethodSyncState, opts.Queries, listener, opts.Failure)
	if err != nil {
		c.chains.Remove(layer)
		return Binding{}, nil, err
	}

	c.mu.Lock()
	c.layers[b.ID] = layer
	c.mu.Unlock()

	return b, StateSetter(layer.Set), nil
}

// bind attaches listener to the endpoint's shared reference for method and
// records the registration under a fresh binding id.
func (c *client) bind(endpoint string, method Method, queries query.Set, listener database.Listener, failure func(error)) (Binding, error) {
	if err := c.ready(string(method)); err != nil {
		return Binding{}, err
	}

	b := Binding{Endpoint: endpoint, Method: method, ID: c.nextID.Add(1)}
	logger := logging.ForBinding(c.logger, endpoint, string(method), b.ID)
	cancel := func(err error) {
		logger.Warn().Err(err).Msg("Listener cancelled")
		if failure != nil {
			failure(err)
		}
	}

	ref := c.registry.Ensure(endpoint, string(method))
	lid := query.Apply(ref, queries).On(database.EventValue, listener, cancel)
	if err := c.registry.Record(endpoint, string(method), b.ID, lid); err != nil {
		ref.Off(database.EventValue, lid)
		return Binding{}, err
	}

	// A Reset that ran since ready has already swept the registry.
	if err := c.ready(string(method)); err != nil {
		_ = c.registry.Detach(endpoint, string(method), b.ID)
		return Binding{}, err
	}

	logger.Debug().Int("queries", len(queries)).Msg("Binding created")
	return b, nil
}

// RemoveBinding detaches the listener behind b. Sibling bindings on the same
// endpoint stay live. Removing a sync binding unlinks its setter layer, so
// its setter passes every write through from then on.
func (c *client) RemoveBinding(b Binding) error {
	if err := ValidateEndpoint(b.Endpoint); err != nil {
		return err
	}
	if err := c.registry.Detach(b.Endpoint, string(b.Method), b.ID); err != nil {
		return err
	}

	if b.Method == MethodSyncState {
		c.mu.Lock()
		layer, ok := c.layers[b.ID]
		delete(c.layers, b.ID)
		c.mu.Unlock()
		if ok {
			c.chains.Remove(layer)
		}
	}

	logging.ForBinding(c.logger, b.Endpoint, string(b.Method), b.ID).Debug().Msg("Binding removed")
	return nil
}
