package database

import (
	"context"
	"time"
)

// AuthData describes an authenticated session.
type AuthData struct {
	UID      string         `json:"uid"`
	Provider string         `json:"provider"`
	Email    string         `json:"email,omitempty"`
	Token    string         `json:"token,omitempty"`
	Expires  time.Time      `json:"expires,omitzero"`
	Claims   map[string]any `json:"claims,omitempty"`
}

// AuthListenerID identifies a registration made with Auth.OnAuth.
type AuthListenerID uint64

// AuthListener is called with the current session, or nil when signed out.
type AuthListener func(*AuthData)

// Credentials identify an email/password account.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PasswordChange carries the fields needed to change an account password.
type PasswordChange struct {
	Email       string `json:"email"`
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// Auth is the authentication surface of a store. The rebase client passes
// these calls through unchanged.
type Auth interface {
	AuthWithPassword(ctx context.Context, creds Credentials) (*AuthData, error)
	AuthWithCustomToken(ctx context.Context, token string) (*AuthData, error)
	AuthWithOAuthToken(ctx context.Context, provider, token string) (*AuthData, error)
	AuthWithOAuthPopup(ctx context.Context, provider string) (*AuthData, error)
	AuthWithOAuthRedirect(ctx context.Context, provider string) error

	// OnAuth registers a listener that is called with the current state and on
	// every change.
	OnAuth(listener AuthListener) AuthListenerID
	OffAuth(id AuthListenerID)

	Unauth()
	GetAuth() *AuthData

	CreateUser(ctx context.Context, creds Credentials) (uid string, err error)
	RemoveUser(ctx context.Context, creds Credentials) error
	ResetPassword(ctx context.Context, email string) error
	ChangePassword(ctx context.Context, change PasswordChange) error
}
