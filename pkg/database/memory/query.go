package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/oklog/ulid/v2"

	"github.com/agentstation/rebase/pkg/database"
	"github.com/agentstation/rebase/pkg/errors"
)

type orderBy int

const (
	orderDefault orderBy = iota
	orderKey
	orderValue
	orderChild
	orderPriority
)

type bound struct {
	set   bool
	value any
}

// criteria is the evaluated form of a query's directives.
type criteria struct {
	order      orderBy
	child      string
	start, end bound
	first      int
	last       int
}

// query is a scoped view of a location.
type query struct {
	db       *DB
	path     string
	criteria criteria
}

var _ database.Query = query{}

func (q query) with(fn func(*criteria)) database.Query {
	fn(&q.criteria)
	return q
}

func (q query) Ref() database.Reference {
	return &ref{query: query{db: q.db, path: q.path}}
}

func (q query) OrderByChild(path string) database.Query {
	return q.with(func(s *criteria) { s.order, s.child = orderChild, database.CleanPath(path) })
}

func (q query) OrderByKey() database.Query {
	return q.with(func(s *criteria) { s.order = orderKey })
}

func (q query) OrderByValue() database.Query {
	return q.with(func(s *criteria) { s.order = orderValue })
}

func (q query) OrderByPriority() database.Query {
	return q.with(func(s *criteria) { s.order = orderPriority })
}

func (q query) StartAt(v any) database.Query {
	return q.with(func(s *criteria) { s.start = bound{set: true, value: v} })
}

func (q query) EndAt(v any) database.Query {
	return q.with(func(s *criteria) { s.end = bound{set: true, value: v} })
}

func (q query) EqualTo(v any) database.Query {
	return q.with(func(s *criteria) {
		s.start = bound{set: true, value: v}
		s.end = bound{set: true, value: v}
	})
}

func (q query) LimitToFirst(n int) database.Query {
	return q.with(func(s *criteria) { s.first = n })
}

func (q query) LimitToLast(n int) database.Query {
	return q.with(func(s *criteria) { s.last = n })
}

func (q query) On(event database.EventType, fn database.Listener, cancel database.CancelFunc) database.ListenerID {
	s := q.db.store
	r := &registration{session: q.db, path: q.path, criteria: q.criteria, fn: fn, cancel: cancel}

	if event != database.EventValue {
		s.fail(r, errors.NewStoreError("listen", q.path, errors.CodeInvalid, fmt.Sprintf("unsupported event %q", event)))
		return 0
	}
	if err := q.db.check(Read, "listen", q.path); err != nil {
		s.fail(r, err)
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.fail(r, errors.NewStoreError("listen", q.path, errors.CodeClosed, "store is closed"))
		return 0
	}
	s.addLocked(r)
	return r.id
}

func (q query) Off(_ database.EventType, id database.ListenerID) {
	s := q.db.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(q.path, id)
}

func (q query) Once(ctx context.Context, _ database.EventType) (database.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapStore("once", q.path, err)
	}
	if err := q.db.check(Read, "once", q.path); err != nil {
		return nil, err
	}

	s := q.db.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.NewStoreError("once", q.path, errors.CodeClosed, "store is closed")
	}
	return s.evaluate(q.path, q.criteria), nil
}

// ref is an unscoped, writable location.
type ref struct {
	query
}

var _ database.Reference = (*ref)(nil)

func (r *ref) Key() string  { return database.LastSegment(r.path) }
func (r *ref) Path() string { return r.path }

func (r *ref) Child(path string) database.Reference {
	return &ref{query: query{db: r.db, path: database.JoinPath(r.path, path)}}
}

func (r *ref) Set(ctx context.Context, value any) error {
	return r.set(ctx, value, nil)
}

func (r *ref) SetWithPriority(ctx context.Context, value any, priority any) error {
	switch priority.(type) {
	case nil, string, float64, float32, int, int32, int64, uint, uint32, uint64:
	default:
		return errors.NewValidationError("priority", priority, "priority must be a number, a string or nil")
	}
	p, err := database.Canonical(priority)
	if err != nil {
		return err
	}
	return r.set(ctx, value, p)
}

func (r *ref) set(ctx context.Context, value any, priority any) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapStore("set", r.path, err)
	}
	v, err := database.Canonical(value)
	if err != nil {
		return err
	}
	if err := r.db.check(Write, "set", r.path); err != nil {
		return err
	}
	if r.db.isClosed() {
		return errors.NewStoreError("set", r.path, errors.CodeClosed, "session is closed")
	}
	return r.db.store.write(r.path, v, priority)
}

// Push keys are ULIDs: unique and ordered by creation time.
func (r *ref) Push() database.Reference {
	return r.Child(ulid.Make().String())
}

// child is a direct child considered by a query.
type child struct {
	key   string
	value any
	prio  any
}

func (s criteria) sortValue(c child) any {
	switch s.order {
	case orderKey:
		return c.key
	case orderValue:
		return c.value
	case orderChild:
		m, _ := c.value.(map[string]any)
		var node any = m
		for _, part := range database.SplitPath(s.child) {
			mm, ok := node.(map[string]any)
			if !ok {
				return nil
			}
			node = mm[part]
		}
		return node
	default:
		return c.prio
	}
}

func (s criteria) compare(a, b any) int {
	if s.order == orderKey {
		return database.CompareKeys(fmt.Sprint(a), fmt.Sprint(b))
	}
	return database.CompareValues(a, b)
}

func (s criteria) less(a, b child) bool {
	if c := s.compare(s.sortValue(a), s.sortValue(b)); c != 0 {
		return c < 0
	}
	return database.CompareKeys(a.key, b.key) < 0
}

func (s criteria) apply(children []child) []child {
	sort.SliceStable(children, func(i, j int) bool { return s.less(children[i], children[j]) })

	if s.start.set || s.end.set {
		kept := children[:0]
		for _, c := range children {
			v := s.sortValue(c)
			if s.start.set && s.compare(v, s.start.value) < 0 {
				continue
			}
			if s.end.set && s.compare(v, s.end.value) > 0 {
				continue
			}
			kept = append(kept, c)
		}
		children = kept
	}
	if s.first > 0 && len(children) > s.first {
		children = children[:s.first]
	}
	if s.last > 0 && len(children) > s.last {
		children = children[len(children)-s.last:]
	}
	return children
}

// evaluate reads path under criteria. Callers hold s.mu.
func (s *store) evaluate(path string, sp criteria) *database.DataSnapshot {
	snap := &database.DataSnapshot{
		SnapKey:      database.LastSegment(path),
		SnapPriority: s.prios[path],
	}
	m, ok := s.get(path).(map[string]any)
	if !ok {
		snap.Value = database.Clone(s.get(path))
		return snap
	}

	children := make([]child, 0, len(m))
	for k, v := range m {
		children = append(children, child{key: k, value: v, prio: s.prios[database.JoinPath(path, k)]})
	}
	children = sp.apply(children)
	if len(children) == 0 {
		return snap
	}

	value := make(map[string]any, len(children))
	for _, c := range children {
		cv := database.Clone(c.value)
		value[c.key] = cv
		snap.Children = append(snap.Children, s.childSnapshot(database.JoinPath(path, c.key), c.key, cv))
	}
	snap.Value = value
	return snap
}

// childSnapshot wraps an already copied value, ordering nested children by
// priority then key.
func (s *store) childSnapshot(path, key string, value any) *database.DataSnapshot {
	snap := &database.DataSnapshot{SnapKey: key, Value: value, SnapPriority: s.prios[path]}
	m, ok := value.(map[string]any)
	if !ok {
		return snap
	}
	children := make([]child, 0, len(m))
	for k, v := range m {
		children = append(children, child{key: k, value: v, prio: s.prios[database.JoinPath(path, k)]})
	}
	children = criteria{}.apply(children)
	for _, c := range children {
		snap.Children = append(snap.Children, s.childSnapshot(database.JoinPath(path, c.key), c.key, c.value))
	}
	return snap
}
