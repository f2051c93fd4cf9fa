package rebase

import (
	"fmt"

	"github.com/agentstation/rebase/pkg/database"
	"github.com/agentstation/rebase/pkg/errors"
)

// Post replaces the endpoint's value with opts.Data, and its priority when
// opts.Priority is set. The write runs in the background after every write
// issued before it; opts.Then receives its outcome.
func (c *client) Post(endpoint string, opts PostOptions) error {
	if err := ValidateEndpoint(endpoint); err != nil {
		return err
	}
	if err := validateData(opts.Data); err != nil {
		return err
	}
	if err := c.ready("post"); err != nil {
		return err
	}

	ref := c.db.Ref(endpoint)
	return c.enqueue("post", func() {
		var err error
		if opts.Priority != nil {
			err = ref.SetWithPriority(c.ctx, opts.Data, opts.Priority)
		} else {
			err = ref.Set(c.ctx, opts.Data)
		}
		c.complete("post", endpoint, errors.WrapStore("post", endpoint, err), opts.Then)
	})
}

// Push stores opts.Data under a new store-assigned key below the endpoint
// and returns the new location right away. The write is queued like Post's;
// opts.Then receives its outcome.
func (c *client) Push(endpoint string, opts PushOptions) (database.Reference, error) {
	if err := ValidateEndpoint(endpoint); err != nil {
		return nil, err
	}
	if err := validateData(opts.Data); err != nil {
		return nil, err
	}
	if err := c.ready("push"); err != nil {
		return nil, err
	}

	child := c.db.Ref(endpoint).Push()
	err := c.enqueue("push", func() {
		err := child.Set(c.ctx, opts.Data)
		c.complete("push", child.Path(), errors.WrapStore("push", child.Path(), err), opts.Then)
	})
	if err != nil {
		return nil, err
	}
	return child, nil
}

// enqueue adds a write to the client's write queue. It fails when Reset
// closed the queue after ready passed.
func (c *client) enqueue(op string, write func()) error {
	if !c.writes.Enqueue(write) {
		return fmt.Errorf("%s: %w", op, errors.ErrClosed)
	}
	return nil
}

func (c *client) complete(op, path string, err error, then func(error)) {
	if then != nil {
		then(err)
		return
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("operation", op).Str("path", path).Msg("Write failed")
	}
}
