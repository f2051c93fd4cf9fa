package memory

import (
	"strings"

	"github.com/agentstation/rebase/pkg/database"
	"github.com/agentstation/rebase/pkg/errors"
)

// Access is the kind of operation a rule is asked about.
type Access int

// Access kinds.
const (
	Read Access = iota
	Write
)

func (a Access) String() string {
	if a == Write {
		return "write"
	}
	return "read"
}

// Rules decides whether auth may perform access at path. auth is nil for
// unauthenticated sessions.
type Rules func(access Access, path string, auth *database.AuthData) bool

// AuthenticatedOnly allows any signed-in session and nobody else.
func AuthenticatedOnly(_ Access, _ string, auth *database.AuthData) bool {
	return auth != nil
}

// OwnerOnly lets everyone read and lets a session write only below
// prefix/<uid>. Paths outside prefix are writable by any signed-in session.
func OwnerOnly(prefix string) Rules {
	prefix = database.CleanPath(prefix)
	return func(access Access, path string, auth *database.AuthData) bool {
		if access == Read {
			return true
		}
		if auth == nil {
			return false
		}
		if path != prefix && !strings.HasPrefix(path, prefix+"/") {
			return true
		}
		rest := database.SplitPath(strings.TrimPrefix(path, prefix))
		return len(rest) > 0 && rest[0] == auth.UID
	}
}

func (db *DB) check(access Access, op, path string) error {
	rules := db.store.opts.rules
	if rules == nil || rules(access, path, db.auth.GetAuth()) {
		return nil
	}
	return errors.NewStoreError(op, path, errors.CodePermissionDenied, access.String()+" access denied")
}
