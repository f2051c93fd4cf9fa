package remote

import (
	"context"
	"sync"

	"github.com/agentstation/rebase/pkg/database"
	"github.com/agentstation/rebase/pkg/errors"
)

// authState mirrors the server session's authentication. The server only
// changes it in response to requests, so the state is updated from results.
type authState struct {
	db *DB

	mu        sync.Mutex
	current   *database.AuthData
	listeners map[database.AuthListenerID]database.AuthListener
	nextID    database.AuthListenerID
}

var _ database.Auth = (*authState)(nil)

func newAuthState(db *DB) *authState {
	return &authState{
		db:        db,
		listeners: make(map[database.AuthListenerID]database.AuthListener),
	}
}

func (a *authState) signIn(ctx context.Context, req *Request) (*database.AuthData, error) {
	f, err := a.db.call(ctx, req)
	if err != nil {
		return nil, err
	}
	if f.Auth == nil {
		return nil, errors.NewAuthenticationError(req.Provider, "server returned no session", nil)
	}
	a.set(f.Auth)
	return f.Auth, nil
}

func (a *authState) AuthWithPassword(ctx context.Context, creds database.Credentials) (*database.AuthData, error) {
	return a.signIn(ctx, &Request{Op: OpAuthPassword, Email: creds.Email, Password: creds.Password})
}

func (a *authState) AuthWithCustomToken(ctx context.Context, token string) (*database.AuthData, error) {
	return a.signIn(ctx, &Request{Op: OpAuthToken, Token: token})
}

func (a *authState) AuthWithOAuthToken(ctx context.Context, provider, token string) (*database.AuthData, error) {
	return a.signIn(ctx, &Request{Op: OpAuthOAuth, Provider: provider, Token: token})
}

func (a *authState) AuthWithOAuthPopup(_ context.Context, provider string) (*database.AuthData, error) {
	return nil, errors.NewAuthenticationError(provider, "popup sign-in requires a browser", errors.ErrNotImplemented)
}

func (a *authState) AuthWithOAuthRedirect(_ context.Context, provider string) error {
	return errors.NewAuthenticationError(provider, "redirect sign-in requires a browser", errors.ErrNotImplemented)
}

func (a *authState) OnAuth(listener database.AuthListener) database.AuthListenerID {
	a.mu.Lock()
	a.nextID++
	id := a.nextID
	a.listeners[id] = listener
	current := a.current
	a.mu.Unlock()

	a.db.events.Enqueue(func() {
		if a.live(id) {
			listener(current)
		}
	})
	return id
}

func (a *authState) OffAuth(id database.AuthListenerID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.listeners, id)
}

// Unauth signs out locally and tells the server; it does not wait for the
// server to confirm.
func (a *authState) Unauth() {
	if a.GetAuth() == nil {
		return
	}
	a.db.notify(&Request{Op: OpUnauth})
	a.set(nil)
}

func (a *authState) GetAuth() *database.AuthData {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *authState) CreateUser(ctx context.Context, creds database.Credentials) (string, error) {
	f, err := a.db.call(ctx, &Request{Op: OpCreateUser, Email: creds.Email, Password: creds.Password})
	if err != nil {
		return "", err
	}
	return f.UID, nil
}

func (a *authState) RemoveUser(ctx context.Context, creds database.Credentials) error {
	_, err := a.db.call(ctx, &Request{Op: OpRemoveUser, Email: creds.Email, Password: creds.Password})
	return err
}

func (a *authState) ResetPassword(ctx context.Context, email string) error {
	_, err := a.db.call(ctx, &Request{Op: OpResetPassword, Email: email})
	return err
}

func (a *authState) ChangePassword(ctx context.Context, change database.PasswordChange) error {
	_, err := a.db.call(ctx, &Request{
		Op:          OpChangePassword,
		Email:       change.Email,
		Password:    change.OldPassword,
		NewPassword: change.NewPassword,
	})
	return err
}

func (a *authState) live(id database.AuthListenerID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.listeners[id]
	return ok
}

// set records the session and notifies listeners.
func (a *authState) set(data *database.AuthData) {
	a.mu.Lock()
	a.current = data
	ids := make([]database.AuthListenerID, 0, len(a.listeners))
	for id := range a.listeners {
		ids = append(ids, id)
	}
	a.mu.Unlock()

	for _, id := range ids {
		a.db.events.Enqueue(func() {
			a.mu.Lock()
			l, ok := a.listeners[id]
			a.mu.Unlock()
			if ok {
				l(data)
			}
		})
	}
}

func (a *authState) close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = make(map[database.AuthListenerID]database.AuthListener)
	a.current = nil
}
