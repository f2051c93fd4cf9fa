package database

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/agentstation/rebase/pkg/errors"
)

// Dialer opens a Database for a parsed connection URL.
type Dialer interface {
	Dial(ctx context.Context, u *url.URL) (Database, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, u *url.URL) (Database, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, u *url.URL) (Database, error) {
	return f(ctx, u)
}

var (
	dialersMu sync.RWMutex
	dialers   = make(map[string]Dialer)
)

// Register makes a backend available for a URL scheme. Backends register
// themselves from init; registering a scheme twice replaces the earlier one.
func Register(scheme string, d Dialer) {
	dialersMu.Lock()
	defer dialersMu.Unlock()
	dialers[strings.ToLower(scheme)] = d
}

// Schemes returns the registered URL schemes, sorted.
func Schemes() []string {
	dialersMu.RLock()
	defer dialersMu.RUnlock()
	out := make([]string, 0, len(dialers))
	for s := range dialers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// CheckURL parses raw as a connection URL with a scheme and a host part,
// which names the database for in-process backends. The scheme is not
// looked up.
func CheckURL(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.NewInvalidURLError(raw, "url cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.NewInvalidURLError(raw, err.Error())
	}
	if u.Scheme == "" {
		return nil, errors.NewInvalidURLError(raw, "url must include a scheme, one of ["+strings.Join(Schemes(), ", ")+"]")
	}
	if u.Host == "" {
		return nil, errors.NewInvalidURLError(raw, "url must include a host")
	}
	return u, nil
}

// ParseURL checks raw with CheckURL and resolves the backend registered for
// its scheme.
func ParseURL(raw string) (*url.URL, Dialer, error) {
	u, err := CheckURL(raw)
	if err != nil {
		return nil, nil, err
	}

	dialersMu.RLock()
	d, ok := dialers[strings.ToLower(u.Scheme)]
	dialersMu.RUnlock()
	if !ok {
		return nil, nil, errors.NewInvalidURLError(raw, "unsupported scheme "+u.Scheme+", expected one of ["+strings.Join(Schemes(), ", ")+"]")
	}
	return u, d, nil
}

// Dial opens the database named by raw using the registered backend.
func Dial(ctx context.Context, raw string) (Database, error) {
	u, d, err := ParseURL(raw)
	if err != nil {
		return nil, err
	}
	return d.Dial(ctx, u)
}
