// Package database defines the contract of the realtime store that rebase
// binds to. Backends implement Database; the client only ever talks to these
// interfaces.
//
// A store is a tree of JSON values addressed by slash-separated paths. Every
// location can be read once, observed for value changes, and written.
package database

import (
	"context"
	"strings"
)

// EventType names a change event. Only EventValue is used by rebase.
type EventType string

// EventValue fires with the full value at a location whenever it changes.
const EventValue EventType = "value"

// ListenerID identifies one registration made with Query.On.
type ListenerID uint64

// Listener receives snapshots for a registration.
type Listener func(Snapshot)

// CancelFunc is invoked when the store revokes a registration, for example
// when permission is lost or the connection closes.
type CancelFunc func(error)

// Database is a connection to a realtime store.
type Database interface {
	// Ref returns a reference to the location at path. The empty path is the root.
	Ref(path string) Reference

	// Auth returns the authentication surface, or nil if the backend has none.
	Auth() Auth

	// Close releases the connection. Listeners are cancelled with ErrClosed.
	Close() error
}

// Query is a possibly scoped view of a location.
type Query interface {
	// Ref returns the unscoped reference this query was built from.
	Ref() Reference

	OrderByChild(path string) Query
	OrderByKey() Query
	OrderByValue() Query
	OrderByPriority() Query
	StartAt(value any) Query
	EndAt(value any) Query
	EqualTo(value any) Query
	LimitToFirst(n int) Query
	LimitToLast(n int) Query

	// On registers a listener. The listener is invoked with the current value
	// shortly after registration and again on every change.
	On(event EventType, listener Listener, cancel CancelFunc) ListenerID

	// Off removes a registration made at this location.
	Off(event EventType, id ListenerID)

	// Once reads the current value.
	Once(ctx context.Context, event EventType) (Snapshot, error)
}

// Reference is a Query rooted at a location that can also be written.
type Reference interface {
	Query

	// Key is the last path segment, empty for the root.
	Key() string

	// Path is the slash-separated location without leading or trailing slashes.
	Path() string

	// Child returns a reference to a descendant location.
	Child(path string) Reference

	// Set replaces the value at the location. A nil value deletes it.
	Set(ctx context.Context, value any) error

	// SetWithPriority replaces the value and its priority.
	SetWithPriority(ctx context.Context, value any, priority any) error

	// Push returns a child with a new, chronologically ordered key. Nothing is
	// written until Set is called on the returned reference.
	Push() Reference
}

// Snapshot is an immutable read of a location.
type Snapshot interface {
	Key() string
	Val() any
	Exists() bool
	Priority() any

	// ForEach visits direct children in query order. Returning true from fn
	// stops the iteration, and ForEach then reports true.
	ForEach(fn func(child Snapshot) bool) bool
}

// CleanPath normalizes a store path: duplicate, leading and trailing slashes
// are dropped.
func CleanPath(path string) string {
	parts := SplitPath(path)
	return strings.Join(parts, "/")
}

// SplitPath returns the non-empty segments of a path.
func SplitPath(path string) []string {
	fields := strings.Split(path, "/")
	parts := fields[:0]
	for _, f := range fields {
		if f != "" {
			parts = append(parts, f)
		}
	}
	return parts
}

// JoinPath joins path fragments into a clean store path.
func JoinPath(elem ...string) string {
	return CleanPath(strings.Join(elem, "/"))
}

// LastSegment returns the final segment of a path.
func LastSegment(path string) string {
	parts := SplitPath(path)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}
