package rebase

import (
	"context"
	"sync"
	"time"

	"github.com/agentstation/rebase/pkg/database"
)

// fakeDB is a scripted store. Writes are recorded and never echoed; tests
// deliver change events with emit. With block set, reads never answer.
type fakeDB struct {
	mu        sync.Mutex
	refs      int
	writes    chan write
	listeners map[database.ListenerID]fakeListener
	nextID    database.ListenerID
	block     bool
	offPanics bool
}

type write struct {
	path  string
	value any
}

type fakeListener struct {
	path string
	fn   database.Listener
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		writes:    make(chan write, 64),
		listeners: make(map[database.ListenerID]fakeListener),
	}
}

func (d *fakeDB) Ref(path string) database.Reference {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refs++
	return &fakeRef{db: d, path: database.CleanPath(path)}
}

func (d *fakeDB) Auth() database.Auth { return nil }
func (d *fakeDB) Close() error        { return nil }

func (d *fakeDB) refCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refs
}

func (d *fakeDB) listening() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners)
}

// emit delivers value to every listener at path.
func (d *fakeDB) emit(path string, value any) {
	d.mu.Lock()
	var fns []database.Listener
	for _, l := range d.listeners {
		if l.path == path {
			fns = append(fns, l.fn)
		}
	}
	d.mu.Unlock()

	snap := database.NewSnapshot(database.LastSegment(path), value)
	for _, fn := range fns {
		fn(snap)
	}
}

// nextWrite waits for the next recorded write.
func (d *fakeDB) nextWrite(timeout time.Duration) (write, bool) {
	select {
	case w := <-d.writes:
		return w, true
	case <-time.After(timeout):
		return write{}, false
	}
}

type fakeRef struct {
	db   *fakeDB
	path string
}

func (r *fakeRef) Ref() database.Reference            { return r }
func (r *fakeRef) OrderByChild(string) database.Query { return r }
func (r *fakeRef) OrderByKey() database.Query         { return r }
func (r *fakeRef) OrderByValue() database.Query       { return r }
func (r *fakeRef) OrderByPriority() database.Query    { return r }
func (r *fakeRef) StartAt(any) database.Query         { return r }
func (r *fakeRef) EndAt(any) database.Query           { return r }
func (r *fakeRef) EqualTo(any) database.Query         { return r }
func (r *fakeRef) LimitToFirst(int) database.Query    { return r }
func (r *fakeRef) LimitToLast(int) database.Query     { return r }
func (r *fakeRef) Key() string                        { return database.LastSegment(r.path) }
func (r *fakeRef) Path() string                       { return r.path }
func (r *fakeRef) Push() database.Reference           { return r.Child("pushed") }
func (r *fakeRef) Child(path string) database.Reference {
	return r.db.Ref(database.JoinPath(r.path, path))
}
func (r *fakeRef) SetWithPriority(ctx context.Context, v, _ any) error { return r.Set(ctx, v) }

func (r *fakeRef) On(_ database.EventType, fn database.Listener, _ database.CancelFunc) database.ListenerID {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.nextID++
	r.db.listeners[r.db.nextID] = fakeListener{path: r.path, fn: fn}
	return r.db.nextID
}

func (r *fakeRef) Off(_ database.EventType, id database.ListenerID) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.offPanics {
		panic("connection is gone")
	}
	delete(r.db.listeners, id)
}

func (r *fakeRef) Once(ctx context.Context, _ database.EventType) (database.Snapshot, error) {
	if r.db.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return database.NewSnapshot(r.Key(), nil), nil
}

func (r *fakeRef) Set(_ context.Context, v any) error {
	r.db.writes <- write{path: r.path, value: v}
	return nil
}
