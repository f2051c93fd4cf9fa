// Package dispatch runs callbacks on a single goroutine, in the order they
// were queued. Stores use it to deliver events; clients use it to issue
// writes.
package dispatch

import (
	"sync"

	"github.com/rs/zerolog"
)

// Dispatcher runs callbacks one at a time, in the order they were queued.
// The queue is unbounded so a slow listener never drops or reorders events.
type Dispatcher struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
	logger *zerolog.Logger
}

// New starts a dispatcher.
func New(logger *zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		done:   make(chan struct{}),
		logger: logger,
	}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

// Enqueue adds fn to the queue. It reports false once the dispatcher is closed.
func (d *Dispatcher) Enqueue(fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.queue = append(d.queue, fn)
	d.cond.Signal()
	return true
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.call(fn)
	}
}

func (d *Dispatcher) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Msg("Queued callback panicked")
		}
	}()
	fn()
}

// Close stops accepting callbacks; queued ones still run.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
}

// Done is closed once the dispatcher has been closed and drained.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Flush blocks until every callback queued before the call has run. It
// must not be called from a callback.
func (d *Dispatcher) Flush() {
	ch := make(chan struct{})
	if !d.Enqueue(func() { close(ch) }) {
		<-d.done
		return
	}
	<-ch
}
