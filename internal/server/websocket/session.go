package websocket

import (
	"github.com/agentstation/rebase/pkg/database"
	"github.com/agentstation/rebase/pkg/database/remote"
	"github.com/agentstation/rebase/pkg/errors"
	"github.com/agentstation/rebase/pkg/query"
)

// serve runs one request against the client's session and queues its result.
func (c *Client) serve(req *remote.Request) {
	result := &remote.Frame{Type: remote.FrameResult, ID: req.ID}
	if err := c.run(req, result); err != nil {
		result.Error = remote.EncodeError(err)
		c.logger.Debug().
			Err(err).
			Str("op", req.Op).
			Str("path", req.Path).
			Msg("Request failed")
	}
	if req.ID != 0 {
		c.push(result)
	}
}

func (c *Client) run(req *remote.Request, result *remote.Frame) error {
	switch req.Op {
	case remote.OpOnce:
		q, err := c.scope(req)
		if err != nil {
			return err
		}
		snap, err := q.Once(c.ctx, database.EventValue)
		if err != nil {
			return err
		}
		result.Snapshot = toData(snap)
		return nil

	case remote.OpOn:
		return c.listen(req)

	case remote.OpOff:
		c.mu.Lock()
		reg, ok := c.listeners[req.Listener]
		delete(c.listeners, req.Listener)
		c.mu.Unlock()
		if ok {
			reg.query.Off(database.EventValue, reg.id)
		}
		return nil

	case remote.OpSet:
		ref := c.db.Ref(req.Path)
		if req.Priority != nil {
			return ref.SetWithPriority(c.ctx, req.Value, req.Priority)
		}
		return ref.Set(c.ctx, req.Value)
	}

	auth := c.db.Auth()
	if auth == nil {
		return errors.NewAuthenticationError("", "authentication is not supported by this store", errors.ErrNotImplemented)
	}
	switch req.Op {
	case remote.OpAuthPassword:
		data, err := auth.AuthWithPassword(c.ctx, database.Credentials{Email: req.Email, Password: req.Password})
		result.Auth = data
		return err
	case remote.OpAuthToken:
		data, err := auth.AuthWithCustomToken(c.ctx, req.Token)
		result.Auth = data
		return err
	case remote.OpAuthOAuth:
		data, err := auth.AuthWithOAuthToken(c.ctx, req.Provider, req.Token)
		result.Auth = data
		return err
	case remote.OpUnauth:
		auth.Unauth()
		return nil
	case remote.OpCreateUser:
		uid, err := auth.CreateUser(c.ctx, database.Credentials{Email: req.Email, Password: req.Password})
		result.UID = uid
		return err
	case remote.OpRemoveUser:
		return auth.RemoveUser(c.ctx, database.Credentials{Email: req.Email, Password: req.Password})
	case remote.OpResetPassword:
		return auth.ResetPassword(c.ctx, req.Email)
	case remote.OpChangePassword:
		return auth.ChangePassword(c.ctx, database.PasswordChange{
			Email:       req.Email,
			OldPassword: req.Password,
			NewPassword: req.NewPassword,
		})
	default:
		return errors.NewStoreError(req.Op, req.Path, errors.CodeInvalid, "unknown operation "+req.Op)
	}
}

// listen registers a value listener whose events and cancellation are
// forwarded to the peer under the peer's listener id.
func (c *Client) listen(req *remote.Request) error {
	if req.Listener == 0 {
		return errors.NewStoreError(req.Op, req.Path, errors.CodeInvalid, "listener id required")
	}
	c.mu.Lock()
	_, taken := c.listeners[req.Listener]
	c.mu.Unlock()
	if taken {
		return errors.NewStoreError(req.Op, req.Path, errors.CodeInvalid, "listener id already registered")
	}

	q, err := c.scope(req)
	if err != nil {
		return err
	}
	lid := req.Listener
	id := q.On(database.EventValue,
		func(snap database.Snapshot) {
			c.push(&remote.Frame{Type: remote.FrameEvent, Listener: lid, Snapshot: toData(snap)})
		},
		func(err error) {
			c.mu.Lock()
			delete(c.listeners, lid)
			c.mu.Unlock()
			c.push(&remote.Frame{Type: remote.FrameCancel, Listener: lid, Error: remote.EncodeError(err)})
		})

	if id == 0 {
		// Refused; the cancellation is already on its way to the peer.
		return nil
	}
	c.mu.Lock()
	c.listeners[lid] = registration{query: q, id: id}
	c.mu.Unlock()
	return nil
}

// scope applies the request's query directives to its path.
func (c *Client) scope(req *remote.Request) (database.Query, error) {
	s, err := remote.DecodeQuery(req.Query)
	if err != nil {
		return nil, errors.NewStoreError(req.Op, req.Path, errors.CodeInvalid, err.Error())
	}
	return query.Apply(c.db.Ref(req.Path), s), nil
}

// toData converts a snapshot to its wire form, keeping child order.
func toData(s database.Snapshot) *database.DataSnapshot {
	if s == nil {
		return nil
	}
	if ds, ok := s.(*database.DataSnapshot); ok {
		return ds
	}
	out := &database.DataSnapshot{
		SnapKey:      s.Key(),
		Value:        s.Val(),
		SnapPriority: s.Priority(),
	}
	s.ForEach(func(child database.Snapshot) bool {
		out.Children = append(out.Children, toData(child))
		return false
	})
	return out
}
