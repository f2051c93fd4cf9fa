package memory_test

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/rebase/pkg/database"
	"github.com/agentstation/rebase/pkg/database/memory"
	"github.com/agentstation/rebase/pkg/errors"
	"github.com/agentstation/rebase/pkg/logging"
)

func newDB(t *testing.T, opts ...memory.Option) *memory.DB {
	t.Helper()
	opts = append([]memory.Option{memory.WithLogger(logging.NewNopLogger())}, opts...)
	db, err := memory.New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// events collects listener deliveries.
type events struct {
	mu    sync.Mutex
	snaps []database.Snapshot
}

func (e *events) listener(s database.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snaps = append(e.snaps, s)
}

func (e *events) values() []any {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]any, len(e.snaps))
	for i, s := range e.snaps {
		out[i] = s.Val()
	}
	return out
}

func keys(s database.Snapshot) []string {
	var out []string
	s.ForEach(func(c database.Snapshot) bool {
		out = append(out, c.Key())
		return false
	})
	return out
}

func TestSetAndOnce(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)

	t.Run("round trip", func(t *testing.T) {
		require.NoError(t, db.Ref("users/1").Set(ctx, map[string]any{"name": "ada", "age": 36}))

		snap, err := db.Ref("users/1").Once(ctx, database.EventValue)
		require.NoError(t, err)
		assert.Equal(t, "1", snap.Key())
		assert.Equal(t, map[string]any{"name": "ada", "age": float64(36)}, snap.Val())
	})

	t.Run("nested read", func(t *testing.T) {
		snap, err := db.Ref("users").Child("1/name").Once(ctx, database.EventValue)
		require.NoError(t, err)
		assert.Equal(t, "ada", snap.Val())
	})

	t.Run("nil deletes and prunes empty parents", func(t *testing.T) {
		require.NoError(t, db.Ref("users/1/name").Set(ctx, nil))
		require.NoError(t, db.Ref("users/1/age").Set(ctx, nil))

		snap, err := db.Ref("users").Once(ctx, database.EventValue)
		require.NoError(t, err)
		assert.False(t, snap.Exists())
	})

	t.Run("returned values are copies", func(t *testing.T) {
		require.NoError(t, db.Ref("cfg").Set(ctx, map[string]any{"a": 1}))
		snap, err := db.Ref("cfg").Once(ctx, database.EventValue)
		require.NoError(t, err)
		snap.Val().(map[string]any)["a"] = 2.0

		again, err := db.Ref("cfg/a").Once(ctx, database.EventValue)
		require.NoError(t, err)
		assert.Equal(t, float64(1), again.Val())
	})

	t.Run("canceled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.Error(t, db.Ref("x").Set(cctx, 1))
		_, err := db.Ref("x").Once(cctx, database.EventValue)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestListeners(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)

	t.Run("initial value then changes", func(t *testing.T) {
		require.NoError(t, db.Ref("rooms/a").Set(ctx, "hello"))

		var ev events
		id := db.Ref("rooms/a").On(database.EventValue, ev.listener, nil)
		require.NoError(t, db.Ref("rooms/a").Set(ctx, "world"))
		require.NoError(t, db.Ref("rooms/b").Set(ctx, "unrelated"))
		require.NoError(t, db.Ref("rooms/a").Set(ctx, "world"))
		db.Flush()

		assert.Equal(t, []any{"hello", "world"}, ev.values())
		db.Ref("rooms/a").Off(database.EventValue, id)
	})

	t.Run("ancestor and descendant writes notify", func(t *testing.T) {
		var ev events
		id := db.Ref("tree/x").On(database.EventValue, ev.listener, nil)
		require.NoError(t, db.Ref("tree/x/y").Set(ctx, 1))
		require.NoError(t, db.Ref("tree").Set(ctx, map[string]any{"x": "flat"}))
		db.Flush()

		assert.Equal(t, []any{nil, map[string]any{"y": float64(1)}, "flat"}, ev.values())
		db.Ref("tree/x").Off(database.EventValue, id)
	})

	t.Run("off removes only that listener", func(t *testing.T) {
		var first, second events
		id1 := db.Ref("shared").On(database.EventValue, first.listener, nil)
		db.Ref("shared").On(database.EventValue, second.listener, nil)
		db.Flush()

		db.Ref("shared").Off(database.EventValue, id1)
		require.NoError(t, db.Ref("shared").Set(ctx, 1))
		db.Flush()

		assert.Equal(t, []any{nil}, first.values())
		assert.Equal(t, []any{nil, float64(1)}, second.values())
	})

	t.Run("off with a scoped query at the same location", func(t *testing.T) {
		var ev events
		id := db.Ref("scoped").LimitToFirst(1).On(database.EventValue, ev.listener, nil)
		db.Flush()
		db.Ref("scoped").OrderByKey().Off(database.EventValue, id)
		require.NoError(t, db.Ref("scoped/a").Set(ctx, 1))
		db.Flush()

		assert.Len(t, ev.values(), 1)
	})

	t.Run("events arrive in write order", func(t *testing.T) {
		var ev events
		db.Ref("counter").On(database.EventValue, ev.listener, nil)
		for i := 1; i <= 20; i++ {
			require.NoError(t, db.Ref("counter").Set(ctx, i))
		}
		db.Flush()

		vals := ev.values()
		require.Len(t, vals, 21)
		for i := 1; i <= 20; i++ {
			assert.Equal(t, float64(i), vals[i])
		}
	})

	t.Run("unsupported event is cancelled", func(t *testing.T) {
		errs := make(chan error, 1)
		db.Ref("x").On("child_added", func(database.Snapshot) {}, func(err error) { errs <- err })
		select {
		case err := <-errs:
			assert.Error(t, err)
		case <-time.After(time.Second):
			t.Fatal("cancel was not called")
		}
	})
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	db := newDB(t, memory.WithSeed(map[string]any{
		"dinos": map[string]any{
			"bruhathkayosaurus": map[string]any{"height": 25, "order": "sauropoda"},
			"lambeosaurus":      map[string]any{"height": 2.1, "order": "ornithischia"},
			"linhenykus":        map[string]any{"height": 0.6, "order": "theropoda"},
			"pterodactyl":       map[string]any{"height": 0.6, "order": "pterosauria"},
			"stegosaurus":       map[string]any{"height": 4, "order": "ornithischia"},
		},
		"scores": map[string]any{"alice": 10, "bob": 30, "carol": 20},
	}))
	once := func(q database.Query) database.Snapshot {
		snap, err := q.Once(ctx, database.EventValue)
		require.NoError(t, err)
		return snap
	}

	t.Run("order by child with limit to last", func(t *testing.T) {
		snap := once(db.Ref("dinos").OrderByChild("height").LimitToLast(2))
		assert.Equal(t, []string{"stegosaurus", "bruhathkayosaurus"}, keys(snap))
		assert.Len(t, snap.Val(), 2)
	})

	t.Run("ties are broken by key", func(t *testing.T) {
		snap := once(db.Ref("dinos").OrderByChild("height").LimitToFirst(2))
		assert.Equal(t, []string{"linhenykus", "pterodactyl"}, keys(snap))
	})

	t.Run("equal to on a child", func(t *testing.T) {
		snap := once(db.Ref("dinos").OrderByChild("order").EqualTo("ornithischia"))
		assert.Equal(t, []string{"lambeosaurus", "stegosaurus"}, keys(snap))
	})

	t.Run("order by key with range", func(t *testing.T) {
		snap := once(db.Ref("dinos").OrderByKey().StartAt("l").EndAt("p"))
		assert.Equal(t, []string{"lambeosaurus", "linhenykus"}, keys(snap))
	})

	t.Run("order by value", func(t *testing.T) {
		snap := once(db.Ref("scores").OrderByValue().StartAt(15))
		assert.Equal(t, []string{"carol", "bob"}, keys(snap))
	})

	t.Run("empty result has no value", func(t *testing.T) {
		snap := once(db.Ref("scores").OrderByValue().StartAt(100))
		assert.False(t, snap.Exists())
	})

	t.Run("priorities order children", func(t *testing.T) {
		require.NoError(t, db.Ref("tasks/a").SetWithPriority(ctx, "first written", 3))
		require.NoError(t, db.Ref("tasks/b").SetWithPriority(ctx, "second written", 1))
		require.NoError(t, db.Ref("tasks/c").Set(ctx, "no priority"))

		snap := once(db.Ref("tasks").OrderByPriority())
		assert.Equal(t, []string{"c", "b", "a"}, keys(snap))

		b := once(db.Ref("tasks/b"))
		assert.Equal(t, float64(1), b.Priority())

		require.NoError(t, db.Ref("tasks/b").Set(ctx, "reset"))
		assert.Nil(t, once(db.Ref("tasks/b")).Priority())
	})

	t.Run("invalid priority", func(t *testing.T) {
		err := db.Ref("tasks/d").SetWithPriority(ctx, "x", []int{1})
		assert.True(t, errors.IsValidationError(err))
	})

	t.Run("listener only fires when the query result changes", func(t *testing.T) {
		var ev events
		db.Ref("scores").OrderByValue().LimitToLast(1).On(database.EventValue, ev.listener, nil)
		require.NoError(t, db.Ref("scores/alice").Set(ctx, 11))
		require.NoError(t, db.Ref("scores/dave").Set(ctx, 99))
		db.Flush()

		vals := ev.values()
		require.Len(t, vals, 2)
		assert.Equal(t, map[string]any{"bob": float64(30)}, vals[0])
		assert.Equal(t, map[string]any{"dave": float64(99)}, vals[1])
	})
}

func TestPush(t *testing.T) {
	ctx := context.Background()
	db := newDB(t)

	var refs []database.Reference
	for i := 0; i < 5; i++ {
		r := db.Ref("messages").Push()
		require.NoError(t, r.Set(ctx, i))
		refs = append(refs, r)
	}

	pushed := make([]string, len(refs))
	for i, r := range refs {
		pushed[i] = r.Key()
		assert.Equal(t, "messages/"+r.Key(), r.Path())
	}
	assert.True(t, sort.StringsAreSorted(pushed), "push keys are chronological")

	snap, err := db.Ref("messages").Once(ctx, database.EventValue)
	require.NoError(t, err)
	assert.Equal(t, pushed, keys(snap))
}

func TestRules(t *testing.T) {
	ctx := context.Background()
	db := newDB(t,
		memory.WithBcryptCost(4),
		memory.WithRules(memory.OwnerOnly("users")),
	)

	t.Run("anonymous writes are denied", func(t *testing.T) {
		err := db.Ref("users/u1/name").Set(ctx, "x")
		assert.True(t, errors.IsPermissionDenied(err))
	})

	t.Run("owner writes are allowed", func(t *testing.T) {
		token, err := db.MintToken("u1", time.Hour, nil)
		require.NoError(t, err)
		_, err = db.Auth().AuthWithCustomToken(ctx, token)
		require.NoError(t, err)

		assert.NoError(t, db.Ref("users/u1/name").Set(ctx, "x"))
		assert.True(t, errors.IsPermissionDenied(db.Ref("users/u2/name").Set(ctx, "x")))
		assert.NoError(t, db.Ref("public/x").Set(ctx, 1))
	})

	t.Run("read denied cancels the listener", func(t *testing.T) {
		private := newDB(t, memory.WithRules(memory.AuthenticatedOnly))
		errs := make(chan error, 1)
		private.Ref("secret").On(database.EventValue, func(database.Snapshot) {
			t.Error("listener must not fire")
		}, func(err error) { errs <- err })

		select {
		case err := <-errs:
			assert.True(t, errors.IsPermissionDenied(err))
		case <-time.After(time.Second):
			t.Fatal("cancel was not called")
		}

		_, err := private.Ref("secret").Once(ctx, database.EventValue)
		assert.True(t, errors.IsPermissionDenied(err))
	})

	t.Run("signing out revokes listeners", func(t *testing.T) {
		private := newDB(t, memory.WithRules(memory.AuthenticatedOnly))
		token, err := private.MintToken("u9", 0, nil)
		require.NoError(t, err)
		_, err = private.Auth().AuthWithCustomToken(ctx, token)
		require.NoError(t, err)

		errs := make(chan error, 1)
		private.Ref("feed").On(database.EventValue, func(database.Snapshot) {}, func(err error) { errs <- err })
		private.Auth().Unauth()

		select {
		case err := <-errs:
			assert.True(t, errors.IsPermissionDenied(err))
		case <-time.After(time.Second):
			t.Fatal("cancel was not called")
		}
	})
}

func TestAuth(t *testing.T) {
	ctx := context.Background()
	var (
		resetMu  sync.Mutex
		resetPwd string
	)
	secret := []byte("0123456789abcdef0123456789abcdef")
	db := newDB(t,
		memory.WithBcryptCost(4),
		memory.WithSecret(secret),
		memory.WithPasswordReset(time.Minute, func(_ string, pw string) {
			resetMu.Lock()
			resetPwd = pw
			resetMu.Unlock()
		}),
	)
	auth := db.Auth()
	creds := database.Credentials{Email: "Ada@Example.com", Password: "engine"}

	uid, err := auth.CreateUser(ctx, creds)
	require.NoError(t, err)
	require.NotEmpty(t, uid)

	t.Run("duplicate user", func(t *testing.T) {
		_, err := auth.CreateUser(ctx, database.Credentials{Email: "ada@example.com", Password: "x"})
		assert.True(t, errors.IsAlreadyExists(err))
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := auth.CreateUser(ctx, database.Credentials{Email: "nope", Password: "x"})
		assert.True(t, errors.IsValidationError(err))
		_, err = auth.CreateUser(ctx, database.Credentials{Email: "a@b.c"})
		assert.True(t, errors.IsValidationError(err))
	})

	t.Run("password sign in", func(t *testing.T) {
		data, err := auth.AuthWithPassword(ctx, creds)
		require.NoError(t, err)
		assert.Equal(t, uid, data.UID)
		assert.Equal(t, memory.ProviderPassword, data.Provider)
		assert.Equal(t, "ada@example.com", data.Email)
		assert.Equal(t, data, auth.GetAuth())

		auth.Unauth()
		assert.Nil(t, auth.GetAuth())
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := auth.AuthWithPassword(ctx, database.Credentials{Email: creds.Email, Password: "steam"})
		assert.True(t, errors.IsAuthentication(err))
		_, err = auth.AuthWithPassword(ctx, database.Credentials{Email: "ghost@example.com", Password: "x"})
		assert.True(t, errors.IsAuthentication(err))
	})

	t.Run("custom token", func(t *testing.T) {
		token, err := db.MintToken("svc", time.Hour, map[string]any{"admin": true, "uid": "ignored"})
		require.NoError(t, err)

		data, err := auth.AuthWithCustomToken(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "svc", data.UID)
		assert.Equal(t, memory.ProviderCustom, data.Provider)
		assert.Equal(t, true, data.Claims["admin"])
		assert.WithinDuration(t, time.Now().Add(time.Hour), data.Expires, time.Minute)
	})

	t.Run("token from another store", func(t *testing.T) {
		other := newDB(t)
		token, err := other.MintToken("svc", time.Hour, nil)
		require.NoError(t, err)
		_, err = auth.AuthWithCustomToken(ctx, token)
		assert.True(t, errors.IsAuthentication(err))
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"uid": "svc",
			"exp": time.Now().Add(-time.Minute).Unix(),
		}).SignedString(secret)
		require.NoError(t, err)
		_, err = auth.AuthWithCustomToken(ctx, token)
		assert.True(t, errors.IsAuthentication(err))
	})

	t.Run("token without uid", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"admin": true}).SignedString(secret)
		require.NoError(t, err)
		_, err = auth.AuthWithCustomToken(ctx, token)
		assert.True(t, errors.IsAuthentication(err))
	})

	t.Run("sub claim", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "svc-sub"}).SignedString(secret)
		require.NoError(t, err)
		data, err := auth.AuthWithCustomToken(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "svc-sub", data.UID)
		assert.True(t, data.Expires.IsZero())
	})

	t.Run("auth listeners", func(t *testing.T) {
		states := make(chan *database.AuthData, 4)
		id := auth.OnAuth(func(d *database.AuthData) { states <- d })

		initial := <-states
		assert.NotNil(t, initial)

		auth.Unauth()
		assert.Nil(t, <-states)

		auth.OffAuth(id)
		_, err := auth.AuthWithPassword(ctx, creds)
		require.NoError(t, err)
		db.Flush()
		assert.Empty(t, states)
	})

	t.Run("reset and change password", func(t *testing.T) {
		require.NoError(t, auth.ResetPassword(ctx, creds.Email))
		resetMu.Lock()
		temp := resetPwd
		resetMu.Unlock()
		require.NotEmpty(t, temp)

		_, err := auth.AuthWithPassword(ctx, database.Credentials{Email: creds.Email, Password: temp})
		require.NoError(t, err)

		require.NoError(t, auth.ChangePassword(ctx, database.PasswordChange{
			Email: creds.Email, OldPassword: temp, NewPassword: "analytical",
		}))
		_, err = auth.AuthWithPassword(ctx, database.Credentials{Email: creds.Email, Password: temp})
		assert.True(t, errors.IsAuthentication(err))
		_, err = auth.AuthWithPassword(ctx, database.Credentials{Email: creds.Email, Password: "analytical"})
		require.NoError(t, err)

		assert.True(t, errors.IsNotFound(auth.ResetPassword(ctx, "ghost@example.com")))
	})

	t.Run("remove user", func(t *testing.T) {
		creds := database.Credentials{Email: "grace@example.com", Password: "cobol"}
		_, err := auth.CreateUser(ctx, creds)
		require.NoError(t, err)
		require.NoError(t, auth.RemoveUser(ctx, creds))
		_, err = auth.AuthWithPassword(ctx, creds)
		assert.True(t, errors.IsAuthentication(err))
	})

	t.Run("oauth is not implemented", func(t *testing.T) {
		_, err := auth.AuthWithOAuthPopup(ctx, "github")
		assert.ErrorIs(t, err, errors.ErrNotImplemented)
		_, err = auth.AuthWithOAuthToken(ctx, "github", "tok")
		assert.ErrorIs(t, err, errors.ErrNotImplemented)
		assert.ErrorIs(t, auth.AuthWithOAuthRedirect(ctx, "github"), errors.ErrNotImplemented)
	})

	t.Run("sessions have separate auth", func(t *testing.T) {
		other := db.Session()
		defer other.Close()
		assert.Nil(t, other.Auth().GetAuth())
	})
}

func TestClose(t *testing.T) {
	ctx := context.Background()

	t.Run("session close cancels its listeners only", func(t *testing.T) {
		db := newDB(t)
		session := db.Session()

		errs := make(chan error, 1)
		session.Ref("a").On(database.EventValue, func(database.Snapshot) {}, func(err error) { errs <- err })
		var ev events
		db.Ref("a").On(database.EventValue, ev.listener, nil)

		require.NoError(t, session.Close())
		assert.True(t, errors.IsClosed(<-errs))
		assert.NoError(t, session.Close())
		assert.True(t, errors.IsClosed(session.Ref("a").Set(ctx, 1)))

		require.NoError(t, db.Ref("a").Set(ctx, 1))
		db.Flush()
		assert.Len(t, ev.values(), 2)
	})

	t.Run("owner close closes the store", func(t *testing.T) {
		db, err := memory.New(memory.WithLogger(logging.NewNopLogger()))
		require.NoError(t, err)
		session := db.Session()

		errs := make(chan error, 1)
		session.Ref("a").On(database.EventValue, func(database.Snapshot) {}, func(err error) { errs <- err })
		require.NoError(t, db.Close())
		assert.True(t, errors.IsClosed(<-errs))

		_, err = session.Ref("a").Once(ctx, database.EventValue)
		assert.True(t, errors.IsClosed(err))
	})
}

func TestDial(t *testing.T) {
	ctx := context.Background()
	name := "dial-" + t.Name()
	t.Cleanup(func() { memory.Drop(name) })

	a, err := database.Dial(ctx, "memory://"+name)
	require.NoError(t, err)
	b, err := database.Dial(ctx, "memory://"+name)
	require.NoError(t, err)

	require.NoError(t, a.Ref("shared").Set(ctx, "yes"))
	snap, err := b.Ref("shared").Once(ctx, database.EventValue)
	require.NoError(t, err)
	assert.Equal(t, "yes", snap.Val())

	require.NoError(t, a.Close())
	snap, err = b.Ref("shared").Once(ctx, database.EventValue)
	require.NoError(t, err)
	assert.Equal(t, "yes", snap.Val())
}

func TestSeed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("users:\n  ada:\n    name: Ada\n    langs: [go, cobol]\n"), 0o600))

	db := newDB(t, memory.WithSeedFile(path))
	snap, err := db.Ref("users/ada").Once(context.Background(), database.EventValue)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"name":  "Ada",
		"langs": map[string]any{"0": "go", "1": "cobol"},
	}, snap.Val())

	t.Run("parse errors name the file", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("users: [unclosed"), 0o600))
		_, err := memory.LoadSeed(bad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad.yaml")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := memory.New(memory.WithSeedFile(filepath.Join(dir, "missing.yaml")))
		assert.Error(t, err)
	})
}
