package rebase

import (
	"context"
	"sync"
	"time"

	"github.com/agentstation/rebase/internal/snapshot"
	"github.com/agentstation/rebase/pkg/database"
	"github.com/agentstation/rebase/pkg/errors"
	"github.com/agentstation/rebase/pkg/query"
)

// Result is the eventual outcome of a Fetch. It settles exactly once.
type Result struct {
	once sync.Once
	done chan struct{}
	data any
	err  error
}

func newResult() *Result {
	return &Result{done: make(chan struct{})}
}

// settle records the outcome and reports whether this call decided it.
func (r *Result) settle(data any, err error) bool {
	won := false
	r.once.Do(func() {
		r.data, r.err = data, err
		close(r.done)
		won = true
	})
	return won
}

// Done is closed once the result has settled.
func (r *Result) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the result settles or ctx is done.
func (r *Result) Wait(ctx context.Context) (any, error) {
	select {
	case <-r.done:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Fetch reads the endpoint once without registering a binding.
//
// Without opts.Timeout the read's data goes to opts.Then and a failure to
// opts.Failure. With opts.Timeout the read races a timer of the given
// period; the outcome, a TimeoutError if the timer wins, is only reported
// through the returned Result and a late read is dropped. Either way the
// Result settles exactly once.
func (c *client) Fetch(endpoint string, opts FetchOptions) (*Result, error) {
	if err := ValidateEndpoint(endpoint); err != nil {
		return nil, err
	}
	if err := validateContext(opts.Context); err != nil {
		return nil, err
	}
	if opts.Timeout == nil && opts.Then == nil {
		return nil, errors.NewInvalidOptionsError("then", "a callback", nil)
	}
	if err := validateQueries(opts.Queries); err != nil {
		return nil, err
	}
	if err := c.ready("fetch"); err != nil {
		return nil, err
	}

	q := query.Apply(c.db.Ref(endpoint), opts.Queries)
	res := newResult()

	if opts.Timeout != nil {
		period := opts.Timeout.Period
		if period <= 0 {
			period = c.config.fetchTimeout
		}
		go c.fetchWithTimeout(endpoint, q, opts.AsArray, period, res)
		return res, nil
	}

	c.afterWrites(func() {
		data, err := c.read(endpoint, q, opts.AsArray)
		res.settle(data, err)
		if err != nil {
			if opts.Failure != nil {
				opts.Failure(err)
				return
			}
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Fetch failed")
			return
		}
		opts.Then(data)
	})
	return res, nil
}

func (c *client) fetchWithTimeout(endpoint string, q database.Query, asArray bool, period time.Duration, res *Result) {
	// The read is cancelled only after the timer has settled the result.
	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()

	c.afterWrites(func() {
		data, err := c.readCtx(ctx, endpoint, q, asArray)
		res.settle(data, err)
	})

	timer := time.NewTimer(period)
	defer timer.Stop()
	select {
	case <-res.Done():
	case <-timer.C:
		if res.settle(nil, errors.NewTimeoutError("fetch", period.String(), "no response from "+endpoint)) {
			c.logger.Debug().Str("endpoint", endpoint).Dur("period", period).Msg("Fetch timed out")
		}
	}
}

// afterWrites starts read on its own goroutine once every write queued
// before it has been issued, so a fetch sees the client's earlier writes.
func (c *client) afterWrites(read func()) {
	if !c.writes.Enqueue(func() { go read() }) {
		go read()
	}
}

func (c *client) read(endpoint string, q database.Query, asArray bool) (any, error) {
	return c.readCtx(c.ctx, endpoint, q, asArray)
}

func (c *client) readCtx(ctx context.Context, endpoint string, q database.Query, asArray bool) (any, error) {
	snap, err := q.Once(ctx, database.EventValue)
	if err != nil {
		return nil, errors.WrapStore("fetch", endpoint, err)
	}
	return snapshot.Normalize(snap, asArray), nil
}
