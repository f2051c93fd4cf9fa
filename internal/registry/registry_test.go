package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/rebase/pkg/database"
	"github.com/agentstation/rebase/pkg/errors"
	"github.com/agentstation/rebase/pkg/logging"
)

// fakeDB hands out references that record Off calls.
type fakeDB struct {
	database.Database

	mu      sync.Mutex
	refs    int
	offs    []database.ListenerID
	panicOn map[database.ListenerID]bool
}

type fakeRef struct {
	database.Reference
	db   *fakeDB
	path string
}

func (d *fakeDB) Ref(path string) database.Reference {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refs++
	return &fakeRef{db: d, path: path}
}

func (r *fakeRef) Path() string { return r.path }

func (r *fakeRef) Off(_ database.EventType, id database.ListenerID) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.panicOn[id] {
		panic("reference is defunct")
	}
	r.db.offs = append(r.db.offs, id)
}

func newRegistry() (*Registry, *fakeDB) {
	db := &fakeDB{panicOn: map[database.ListenerID]bool{}}
	return New(db, logging.NewNopLogger()), db
}

func TestEnsure(t *testing.T) {
	r, db := newRegistry()

	a := r.Ensure("users", "listenTo")
	b := r.Ensure("users", "listenTo")
	c := r.Ensure("users", "syncState")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, db.refs)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"users"}, r.Endpoints())
}

func TestRecordAndDetach(t *testing.T) {
	t.Run("detaching one listener keeps siblings", func(t *testing.T) {
		r, db := newRegistry()
		r.Ensure("rooms", "listenTo")
		require.NoError(t, r.Record("rooms", "listenTo", 1, 101))
		require.NoError(t, r.Record("rooms", "listenTo", 2, 102))
		assert.Equal(t, []uint64{1, 2}, r.Listeners("rooms", "listenTo"))

		require.NoError(t, r.Detach("rooms", "listenTo", 1))
		assert.Equal(t, []database.ListenerID{101}, db.offs)
		assert.Equal(t, []uint64{2}, r.Listeners("rooms", "listenTo"))

		_, ok := r.Ref("rooms", "listenTo")
		assert.True(t, ok)
	})

	t.Run("last listener drops the reference", func(t *testing.T) {
		r, _ := newRegistry()
		r.Ensure("rooms", "listenTo")
		require.NoError(t, r.Record("rooms", "listenTo", 7, 1))
		require.NoError(t, r.Detach("rooms", "listenTo", 7))

		assert.Zero(t, r.Len())
		assert.Empty(t, r.Endpoints())
		_, ok := r.Ref("rooms", "listenTo")
		assert.False(t, ok)
	})

	t.Run("duplicate id is rejected", func(t *testing.T) {
		r, _ := newRegistry()
		r.Ensure("a", "listenTo")
		require.NoError(t, r.Record("a", "listenTo", 1, 1))
		assert.True(t, errors.IsAlreadyExists(r.Record("a", "listenTo", 1, 2)))
	})

	t.Run("record recreates a dropped reference", func(t *testing.T) {
		r, _ := newRegistry()
		require.NoError(t, r.Record("late", "bindToState", 3, 9))
		assert.Equal(t, []uint64{3}, r.Listeners("late", "bindToState"))
	})

	t.Run("unknown pair", func(t *testing.T) {
		r, _ := newRegistry()
		err := r.Detach("x", "listenTo", 999)
		require.Error(t, err)
		assert.True(t, errors.IsUnbound(err))
		assert.Contains(t, err.Error(), `"x"`)
	})

	t.Run("unknown id on a live pair", func(t *testing.T) {
		r, _ := newRegistry()
		r.Ensure("x", "listenTo")
		require.NoError(t, r.Record("x", "listenTo", 1, 1))
		assert.True(t, errors.IsUnbound(r.Detach("x", "listenTo", 2)))
		assert.Equal(t, []uint64{1}, r.Listeners("x", "listenTo"))
	})

	t.Run("stale id after detach", func(t *testing.T) {
		r, _ := newRegistry()
		r.Ensure("x", "listenTo")
		require.NoError(t, r.Record("x", "listenTo", 1, 1))
		require.NoError(t, r.Detach("x", "listenTo", 1))
		assert.True(t, errors.IsUnbound(r.Detach("x", "listenTo", 1)))
	})
}

func TestResetAll(t *testing.T) {
	r, db := newRegistry()
	db.panicOn[2] = true

	for i, k := range []Key{{"a", "listenTo"}, {"a", "syncState"}, {"b", "bindToState"}} {
		r.Ensure(k.Endpoint, k.Method)
		require.NoError(t, r.Record(k.Endpoint, k.Method, uint64(i+1), database.ListenerID(i+1)))
	}

	assert.NotPanics(t, func() {
		assert.Equal(t, 2, r.ResetAll())
	})
	assert.ElementsMatch(t, []database.ListenerID{1, 3}, db.offs)
	assert.Zero(t, r.Len())
	assert.Empty(t, r.Endpoints())
	assert.Zero(t, r.ResetAll())
}

func TestConcurrentBindings(t *testing.T) {
	r, db := newRegistry()

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			r.Ensure("shared", "listenTo")
			assert.NoError(t, r.Record("shared", "listenTo", id, database.ListenerID(id)))
		}(uint64(i))
	}
	wg.Wait()

	assert.Equal(t, 1, db.refs)
	assert.Len(t, r.Listeners("shared", "listenTo"), 50)
}
