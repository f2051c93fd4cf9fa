package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/agentstation/rebase/pkg/database"
	"github.com/agentstation/rebase/pkg/errors"
)

const defaultBcryptCost = bcrypt.DefaultCost

// provider names reported in AuthData
const (
	ProviderPassword = "password"
	ProviderCustom   = "custom"
)

type user struct {
	uid   string
	email string
	hash  []byte
}

// authSession is the per-session authentication state.
type authSession struct {
	db *DB

	mu        sync.Mutex
	current   *database.AuthData
	listeners map[database.AuthListenerID]database.AuthListener
	nextID    database.AuthListenerID
}

var _ database.Auth = (*authSession)(nil)

func newAuthSession(db *DB) *authSession {
	return &authSession{
		db:        db,
		listeners: make(map[database.AuthListenerID]database.AuthListener),
	}
}

func (a *authSession) store() *store { return a.db.store }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (a *authSession) AuthWithPassword(ctx context.Context, creds database.Credentials) (*database.AuthData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, err := a.store().verify(creds.Email, creds.Password)
	if err != nil {
		return nil, err
	}
	data := &database.AuthData{UID: u.uid, Provider: ProviderPassword, Email: u.email}
	a.set(data)
	return data, nil
}

func (a *authSession) AuthWithCustomToken(ctx context.Context, token string) (*database.AuthData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := a.store().parseToken(token)
	if err != nil {
		return nil, err
	}
	a.set(data)
	return data, nil
}

func (a *authSession) AuthWithOAuthToken(_ context.Context, provider, _ string) (*database.AuthData, error) {
	return nil, errors.NewAuthenticationError(provider, "oauth sign-in is not available in the memory store", errors.ErrNotImplemented)
}

func (a *authSession) AuthWithOAuthPopup(_ context.Context, provider string) (*database.AuthData, error) {
	return nil, errors.NewAuthenticationError(provider, "popup sign-in requires a browser", errors.ErrNotImplemented)
}

func (a *authSession) AuthWithOAuthRedirect(_ context.Context, provider string) error {
	return errors.NewAuthenticationError(provider, "redirect sign-in requires a browser", errors.ErrNotImplemented)
}

func (a *authSession) OnAuth(listener database.AuthListener) database.AuthListenerID {
	a.mu.Lock()
	a.nextID++
	id := a.nextID
	a.listeners[id] = listener
	current := a.current
	a.mu.Unlock()

	a.store().events.Enqueue(func() {
		a.mu.Lock()
		_, live := a.listeners[id]
		a.mu.Unlock()
		if live {
			listener(current)
		}
	})
	return id
}

func (a *authSession) OffAuth(id database.AuthListenerID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.listeners, id)
}

func (a *authSession) Unauth() {
	a.mu.Lock()
	wasSignedIn := a.current != nil
	a.mu.Unlock()
	if wasSignedIn {
		a.set(nil)
	}
}

func (a *authSession) GetAuth() *database.AuthData {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *authSession) CreateUser(ctx context.Context, creds database.Credentials) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	email := normalizeEmail(creds.Email)
	if !strings.Contains(email, "@") {
		return "", errors.NewValidationError("email", creds.Email, "must be an email address")
	}
	if creds.Password == "" {
		return "", errors.NewValidationError("password", "", "cannot be empty")
	}

	s := a.store()
	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), s.opts.bcryptCost)
	if err != nil {
		return "", errors.NewAuthenticationError(ProviderPassword, "hashing password", err)
	}

	s.usersMu.Lock()
	defer s.usersMu.Unlock()
	if _, exists := s.users[email]; exists {
		return "", errors.NewAlreadyExistsError("user", email)
	}
	u := &user{uid: strings.ToLower(ulid.Make().String()), email: email, hash: hash}
	s.users[email] = u
	s.logger.Debug().Str("uid", u.uid).Msg("User created")
	return u.uid, nil
}

func (a *authSession) RemoveUser(ctx context.Context, creds database.Credentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := a.store()
	u, err := s.verify(creds.Email, creds.Password)
	if err != nil {
		return err
	}
	s.usersMu.Lock()
	delete(s.users, u.email)
	s.usersMu.Unlock()
	s.resets.Delete(u.email)
	return nil
}

func (a *authSession) ResetPassword(ctx context.Context, email string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := a.store()
	email = normalizeEmail(email)

	s.usersMu.Lock()
	_, exists := s.users[email]
	s.usersMu.Unlock()
	if !exists {
		return errors.NewNotFoundError("user", email)
	}

	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return errors.WrapResource("generate", "password", email, err)
	}
	temp := hex.EncodeToString(buf)
	s.resets.Set(email, temp)

	if s.opts.onReset != nil {
		s.opts.onReset(email, temp)
	} else {
		s.logger.Info().Str("email", email).Msg("Temporary password issued")
	}
	return nil
}

func (a *authSession) ChangePassword(ctx context.Context, change database.PasswordChange) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if change.NewPassword == "" {
		return errors.NewValidationError("newPassword", "", "cannot be empty")
	}
	s := a.store()
	u, err := s.verify(change.Email, change.OldPassword)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(change.NewPassword), s.opts.bcryptCost)
	if err != nil {
		return errors.NewAuthenticationError(ProviderPassword, "hashing password", err)
	}

	s.usersMu.Lock()
	u.hash = hash
	s.usersMu.Unlock()
	s.resets.Delete(u.email)
	return nil
}

// set changes the session state, notifies auth listeners and drops
// listeners the new state may not read.
func (a *authSession) set(data *database.AuthData) {
	a.mu.Lock()
	a.current = data
	listeners := make([]database.AuthListener, 0, len(a.listeners))
	for _, l := range a.listeners {
		listeners = append(listeners, l)
	}
	a.mu.Unlock()

	for _, l := range listeners {
		a.store().events.Enqueue(func() { l(data) })
	}
	a.store().revalidate(a.db)
}

func (a *authSession) close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = make(map[database.AuthListenerID]database.AuthListener)
	a.current = nil
}

// verify checks an email/password pair against the account password or an
// unexpired temporary password.
func (s *store) verify(email, password string) (*user, error) {
	email = normalizeEmail(email)

	s.usersMu.Lock()
	u, ok := s.users[email]
	var hash []byte
	if ok {
		hash = u.hash
	}
	s.usersMu.Unlock()
	if !ok {
		return nil, errors.NewAuthenticationError(ProviderPassword, "invalid email or password", errors.NewNotFoundError("user", email))
	}

	if temp, ok := s.resets.Get(email); ok && temp == password {
		return u, nil
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return nil, errors.NewAuthenticationError(ProviderPassword, "invalid email or password", err)
	}
	return u, nil
}

func (s *store) mintToken(uid string, ttl time.Duration, claims map[string]any) (string, error) {
	if uid == "" {
		return "", errors.NewValidationError("uid", uid, "cannot be empty")
	}
	now := time.Now()
	c := jwt.MapClaims{
		"uid": uid,
		"iat": now.Unix(),
	}
	if ttl > 0 {
		c["exp"] = now.Add(ttl).Unix()
	}
	for k, v := range claims {
		if _, reserved := c[k]; !reserved {
			c[k] = v
		}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.opts.secret)
}

func (s *store) parseToken(token string) (*database.AuthData, error) {
	parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) {
		return s.opts.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, errors.NewAuthenticationError(ProviderCustom, "invalid custom token", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.NewAuthenticationError(ProviderCustom, "unexpected claims type", nil)
	}

	uid, _ := claims["uid"].(string)
	if uid == "" {
		uid, _ = claims.GetSubject()
	}
	if uid == "" {
		return nil, errors.NewAuthenticationError(ProviderCustom, "token has no uid or sub claim", nil)
	}

	data := &database.AuthData{
		UID:      uid,
		Provider: ProviderCustom,
		Token:    token,
		Claims:   map[string]any(claims),
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		data.Expires = exp.Time
	}
	return data, nil
}
