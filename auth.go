package rebase

import (
	"context"

	"github.com/agentstation/rebase/pkg/database"
	"github.com/agentstation/rebase/pkg/errors"
)

// Authenticator is the store's authentication surface. Client passes every
// call through to the database unchanged.
type Authenticator interface {
	database.Auth
}

// auth returns the database's auth surface, or an error wrapping
// ErrNotImplemented when the backend has none.
func (c *client) auth(op string) (database.Auth, error) {
	a := c.db.Auth()
	if a == nil {
		return nil, errors.NewAuthenticationError("", op+" is not supported by this database", errors.ErrNotImplemented)
	}
	return a, nil
}

func (c *client) AuthWithPassword(ctx context.Context, creds database.Credentials) (*database.AuthData, error) {
	a, err := c.auth("password sign-in")
	if err != nil {
		return nil, err
	}
	return a.AuthWithPassword(ctx, creds)
}

func (c *client) AuthWithCustomToken(ctx context.Context, token string) (*database.AuthData, error) {
	a, err := c.auth("custom token sign-in")
	if err != nil {
		return nil, err
	}
	return a.AuthWithCustomToken(ctx, token)
}

func (c *client) AuthWithOAuthToken(ctx context.Context, provider, token string) (*database.AuthData, error) {
	a, err := c.auth("oauth token sign-in")
	if err != nil {
		return nil, err
	}
	return a.AuthWithOAuthToken(ctx, provider, token)
}

func (c *client) AuthWithOAuthPopup(ctx context.Context, provider string) (*database.AuthData, error) {
	a, err := c.auth("oauth popup sign-in")
	if err != nil {
		return nil, err
	}
	return a.AuthWithOAuthPopup(ctx, provider)
}

func (c *client) AuthWithOAuthRedirect(ctx context.Context, provider string) error {
	a, err := c.auth("oauth redirect sign-in")
	if err != nil {
		return err
	}
	return a.AuthWithOAuthRedirect(ctx, provider)
}

// OnAuth returns 0 when the database has no auth surface.
func (c *client) OnAuth(listener database.AuthListener) database.AuthListenerID {
	a, err := c.auth("auth listeners")
	if err != nil {
		return 0
	}
	return a.OnAuth(listener)
}

func (c *client) OffAuth(id database.AuthListenerID) {
	if a, err := c.auth("auth listeners"); err == nil {
		a.OffAuth(id)
	}
}

func (c *client) Unauth() {
	if a, err := c.auth("sign-out"); err == nil {
		a.Unauth()
	}
}

func (c *client) GetAuth() *database.AuthData {
	a, err := c.auth("auth state")
	if err != nil {
		return nil
	}
	return a.GetAuth()
}

func (c *client) CreateUser(ctx context.Context, creds database.Credentials) (string, error) {
	a, err := c.auth("user creation")
	if err != nil {
		return "", err
	}
	return a.CreateUser(ctx, creds)
}

func (c *client) RemoveUser(ctx context.Context, creds database.Credentials) error {
	a, err := c.auth("user removal")
	if err != nil {
		return err
	}
	return a.RemoveUser(ctx, creds)
}

func (c *client) ResetPassword(ctx context.Context, email string) error {
	a, err := c.auth("password reset")
	if err != nil {
		return err
	}
	return a.ResetPassword(ctx, email)
}

func (c *client) ChangePassword(ctx context.Context, change database.PasswordChange) error {
	a, err := c.auth("password change")
	if err != nil {
		return err
	}
	return a.ChangePassword(ctx, change)
}
