package remote

import (
	"context"

	"github.com/oklog/ulid/v2"

	"github.com/agentstation/rebase/pkg/database"
	"github.com/agentstation/rebase/pkg/query"
)

// view accumulates directives; the server evaluates them.
type view struct {
	db    *DB
	path  string
	scope []Directive
}

var _ database.Query = view{}

func (q view) with(op query.Op, arg any) database.Query {
	scope := make([]Directive, len(q.scope), len(q.scope)+1)
	copy(scope, q.scope)
	q.scope = append(scope, Directive{Op: string(op), Arg: arg})
	return q
}

func (q view) Ref() database.Reference {
	return &ref{view: view{db: q.db, path: q.path}}
}

func (q view) OrderByChild(path string) database.Query { return q.with(query.OpOrderByChild, path) }
func (q view) OrderByKey() database.Query              { return q.with(query.OpOrderByKey, nil) }
func (q view) OrderByValue() database.Query            { return q.with(query.OpOrderByValue, nil) }
func (q view) OrderByPriority() database.Query         { return q.with(query.OpOrderByPriority, nil) }
func (q view) StartAt(v any) database.Query            { return q.with(query.OpStartAt, v) }
func (q view) EndAt(v any) database.Query              { return q.with(query.OpEndAt, v) }
func (q view) EqualTo(v any) database.Query            { return q.with(query.OpEqualTo, v) }
func (q view) LimitToFirst(n int) database.Query       { return q.with(query.OpLimitToFirst, n) }
func (q view) LimitToLast(n int) database.Query        { return q.with(query.OpLimitToLast, n) }

// On registers the listener locally and sends the registration before
// returning, so a later Off always reaches the server after it. A refused
// registration is reported to cancel.
func (q view) On(_ database.EventType, fn database.Listener, cancel database.CancelFunc) database.ListenerID {
	l := &listener{path: q.path, fn: fn, cancel: cancel}
	id, ok := q.db.addListener(l)
	if !ok {
		err := q.db.closedError("listen", q.path)
		go l.cancelWith(err)
		return 0
	}

	req := &Request{Op: OpOn, Path: q.path, Query: q.scope, Listener: id}
	ch, err := q.db.start(req)
	if err != nil {
		if q.db.removeListener(id) != nil {
			go l.cancelWith(err)
		}
		return database.ListenerID(id)
	}
	go func() {
		if _, err := q.db.wait(context.Background(), req, ch); err != nil {
			if q.db.removeListener(id) != nil {
				q.db.events.Enqueue(func() { l.cancelWith(err) })
			}
		}
	}()
	return database.ListenerID(id)
}

func (q view) Off(_ database.EventType, id database.ListenerID) {
	if q.db.removeListener(uint64(id)) == nil {
		return
	}
	q.db.notify(&Request{Op: OpOff, Path: q.path, Listener: uint64(id)})
}

func (q view) Once(ctx context.Context, _ database.EventType) (database.Snapshot, error) {
	f, err := q.db.call(ctx, &Request{Op: OpOnce, Path: q.path, Query: q.scope})
	if err != nil {
		return nil, err
	}
	return snapshotOr(f.Snapshot, q.path), nil
}

type ref struct {
	view
}

var _ database.Reference = (*ref)(nil)

func (r *ref) Key() string  { return database.LastSegment(r.path) }
func (r *ref) Path() string { return r.path }

func (r *ref) Child(path string) database.Reference {
	return r.db.Ref(database.JoinPath(r.path, path))
}

func (r *ref) Set(ctx context.Context, value any) error {
	return r.set(ctx, value, nil)
}

func (r *ref) SetWithPriority(ctx context.Context, value any, priority any) error {
	return r.set(ctx, value, priority)
}

func (r *ref) set(ctx context.Context, value any, priority any) error {
	v, err := database.Canonical(value)
	if err != nil {
		return err
	}
	_, err = r.db.call(ctx, &Request{Op: OpSet, Path: r.path, Value: v, Priority: priority})
	return err
}

// Push keys are ULIDs, generated locally.
func (r *ref) Push() database.Reference {
	return r.Child(ulid.Make().String())
}
