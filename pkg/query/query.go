// Package query describes the filter, order and limit directives that scope a
// database reference, and applies them in order.
package query

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/agentstation/rebase/pkg/database"
	"github.com/agentstation/rebase/pkg/errors"
)

// Op names a query directive.
type Op string

// Recognized directives.
const (
	OpLimitToFirst    Op = "limitToFirst"
	OpLimitToLast     Op = "limitToLast"
	OpOrderByChild    Op = "orderByChild"
	OpOrderByValue    Op = "orderByValue"
	OpOrderByKey      Op = "orderByKey"
	OpOrderByPriority Op = "orderByPriority"
	OpStartAt         Op = "startAt"
	OpEndAt           Op = "endAt"
	OpEqualTo         Op = "equalTo"
)

// Ops lists every recognized directive in canonical order:
// order-by first, then range, then limit.
var Ops = []Op{
	OpOrderByChild,
	OpOrderByKey,
	OpOrderByValue,
	OpOrderByPriority,
	OpStartAt,
	OpEndAt,
	OpEqualTo,
	OpLimitToFirst,
	OpLimitToLast,
}

// NeedsArg reports whether the directive is invoked with an argument.
// Ordering toggles take none.
func (o Op) NeedsArg() bool {
	switch o {
	case OpOrderByKey, OpOrderByValue, OpOrderByPriority:
		return false
	default:
		return true
	}
}

// Known reports whether o is a recognized directive.
func (o Op) Known() bool {
	for _, op := range Ops {
		if op == o {
			return true
		}
	}
	return false
}

func (o Op) rank() int {
	for i, op := range Ops {
		if op == o {
			return i
		}
	}
	return len(Ops)
}

// Directive is a single query operation with its argument.
type Directive struct {
	Op  Op
	Arg any
}

func (d Directive) String() string {
	if !d.Op.NeedsArg() {
		return string(d.Op) + "()"
	}
	return fmt.Sprintf("%s(%v)", d.Op, d.Arg)
}

// Set is an ordered list of directives. Directives are applied in slice order.
type Set []Directive

// LimitToFirst keeps the first n children.
func LimitToFirst(n int) Directive { return Directive{Op: OpLimitToFirst, Arg: n} }

// LimitToLast keeps the last n children.
func LimitToLast(n int) Directive { return Directive{Op: OpLimitToLast, Arg: n} }

// OrderByChild orders children by the value at a child path.
func OrderByChild(path string) Directive { return Directive{Op: OpOrderByChild, Arg: path} }

// OrderByValue orders children by their own value.
func OrderByValue() Directive { return Directive{Op: OpOrderByValue} }

// OrderByKey orders children by key.
func OrderByKey() Directive { return Directive{Op: OpOrderByKey} }

// OrderByPriority orders children by priority.
func OrderByPriority() Directive { return Directive{Op: OpOrderByPriority} }

// StartAt sets the lower bound of the ordered range.
func StartAt(v any) Directive { return Directive{Op: OpStartAt, Arg: v} }

// EndAt sets the upper bound of the ordered range.
func EndAt(v any) Directive { return Directive{Op: OpEndAt, Arg: v} }

// EqualTo restricts the range to children equal to v.
func EqualTo(v any) Directive { return Directive{Op: OpEqualTo, Arg: v} }

// Validate checks every directive in the set. Unknown ops and malformed
// arguments yield an InvalidOptionsError.
func (s Set) Validate() error {
	for _, d := range s {
		if err := d.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a single directive.
func (d Directive) Validate() error {
	if !d.Op.Known() {
		names := make([]string, len(Ops))
		for i, op := range Ops {
			names[i] = string(op)
		}
		return &errors.InvalidOptionsError{
			Option:   "queries",
			Expected: "one of [" + strings.Join(names, ", ") + "]",
			Actual:   string(d.Op),
		}
	}

	switch d.Op {
	case OpLimitToFirst, OpLimitToLast:
		n, ok := toInt(d.Arg)
		if !ok || n <= 0 {
			return errors.NewInvalidOptionsError("queries."+string(d.Op), "positive integer", d.Arg)
		}
	case OpOrderByChild:
		path, ok := d.Arg.(string)
		if !ok || path == "" {
			return errors.NewInvalidOptionsError("queries."+string(d.Op), "non-empty string", d.Arg)
		}
	case OpStartAt, OpEndAt, OpEqualTo:
		if !isScalar(d.Arg) {
			return errors.NewInvalidOptionsError("queries."+string(d.Op), "null, boolean, number or string", d.Arg)
		}
	}
	return nil
}

// Apply scopes q by every directive in s, in order. The set must already be
// validated; an unknown directive panics.
func Apply(q database.Query, s Set) database.Query {
	for _, d := range s {
		q = d.apply(q)
	}
	return q
}

func (d Directive) apply(q database.Query) database.Query {
	switch d.Op {
	case OpLimitToFirst:
		n, _ := toInt(d.Arg)
		return q.LimitToFirst(n)
	case OpLimitToLast:
		n, _ := toInt(d.Arg)
		return q.LimitToLast(n)
	case OpOrderByChild:
		return q.OrderByChild(d.Arg.(string))
	case OpOrderByValue:
		return q.OrderByValue()
	case OpOrderByKey:
		return q.OrderByKey()
	case OpOrderByPriority:
		return q.OrderByPriority()
	case OpStartAt:
		return q.StartAt(d.Arg)
	case OpEndAt:
		return q.EndAt(d.Arg)
	case OpEqualTo:
		return q.EqualTo(d.Arg)
	default:
		panic(fmt.Sprintf("query: unknown directive %q", d.Op))
	}
}

// Parse builds a set from a name → argument mapping, as read from
// configuration or YAML. Map iteration has no order, so directives are
// sorted canonically.
func Parse(m map[string]any) (Set, error) {
	s := make(Set, 0, len(m))
	for name, arg := range m {
		op := Op(name)
		if !op.NeedsArg() {
			arg = nil
		}
		s = append(s, Directive{Op: op, Arg: arg})
	}
	sort.SliceStable(s, func(i, j int) bool { return s[i].Op.rank() < s[j].Op.rank() })
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// ParsePairs builds a set from "name=value" strings in the given order.
// Toggles may omit the value. Values are read as JSON scalars when they
// look like one and as plain strings otherwise.
func ParsePairs(pairs []string) (Set, error) {
	s := make(Set, 0, len(pairs))
	for _, pair := range pairs {
		name, raw, _ := strings.Cut(pair, "=")
		op := Op(strings.TrimSpace(name))
		d := Directive{Op: op}
		if op.NeedsArg() {
			d.Arg = parseScalar(strings.TrimSpace(raw))
			if op == OpOrderByChild {
				d.Arg = strings.TrimSpace(raw)
			}
		}
		s = append(s, d)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func parseScalar(raw string) any {
	switch raw {
	case "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return int(n)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return strings.Trim(raw, `"`)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}
