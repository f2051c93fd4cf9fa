package remote

import (
	stderrors "errors"

	"github.com/agentstation/rebase/pkg/database"
	"github.com/agentstation/rebase/pkg/errors"
	"github.com/agentstation/rebase/pkg/query"
)

// Request operations sent by the client.
const (
	OpOnce           = "once"
	OpOn             = "on"
	OpOff            = "off"
	OpSet            = "set"
	OpAuthPassword   = "auth.password"
	OpAuthToken      = "auth.token"
	OpAuthOAuth      = "auth.oauth"
	OpUnauth         = "unauth"
	OpCreateUser     = "user.create"
	OpRemoveUser     = "user.remove"
	OpResetPassword  = "password.reset"
	OpChangePassword = "password.change"
)

// Frame types sent by the server.
const (
	FrameResult = "result"
	FrameEvent  = "event"
	FrameCancel = "cancel"
)

// Error codes used on the wire in addition to the store codes in pkg/errors.
const (
	CodeAuthentication = "authentication"
	CodeNotFound       = "not_found"
	CodeAlreadyExists  = "already_exists"
	CodeNotImplemented = "not_implemented"
)

// Directive is a query directive as sent on the wire. Arguments arrive as
// JSON values, so numbers are float64.
type Directive struct {
	Op  string `json:"op"`
	Arg any    `json:"arg,omitempty"`
}

// Request is a client to server message. ID correlates the result frame.
type Request struct {
	ID       uint64      `json:"id"`
	Op       string      `json:"op"`
	Path     string      `json:"path,omitempty"`
	Query    []Directive `json:"query,omitempty"`
	Value    any         `json:"value,omitempty"`
	Priority any         `json:"priority,omitempty"`
	Listener uint64      `json:"listener,omitempty"`

	Email       string `json:"email,omitempty"`
	Password    string `json:"password,omitempty"`
	NewPassword string `json:"newPassword,omitempty"`
	Provider    string `json:"provider,omitempty"`
	Token       string `json:"token,omitempty"`
}

// Frame is a server to client message: the result of a request, or a value
// event or cancellation for a listener. Requests with a zero ID get no
// result frame.
type Frame struct {
	Type     string                 `json:"type"`
	ID       uint64                 `json:"id,omitempty"`
	Listener uint64                 `json:"listener,omitempty"`
	Error    *Error                 `json:"error,omitempty"`
	Snapshot *database.DataSnapshot `json:"snapshot,omitempty"`
	Auth     *database.AuthData     `json:"auth,omitempty"`
	UID      string                 `json:"uid,omitempty"`
}

// Error is a failure reported on the wire.
type Error struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// EncodeError converts err to its wire form.
func EncodeError(err error) *Error {
	if err == nil {
		return nil
	}
	var se *errors.StoreError
	switch {
	case stderrors.As(err, &se):
		return &Error{Code: se.Code, Message: se.Message}
	case stderrors.Is(err, errors.ErrNotImplemented):
		return &Error{Code: CodeNotImplemented, Message: err.Error()}
	case errors.IsAuthentication(err):
		return &Error{Code: CodeAuthentication, Message: err.Error()}
	case errors.IsNotFound(err):
		return &Error{Code: CodeNotFound, Message: err.Error()}
	case errors.IsAlreadyExists(err):
		return &Error{Code: CodeAlreadyExists, Message: err.Error()}
	case errors.IsValidationError(err), errors.IsInvalidOptions(err):
		return &Error{Code: errors.CodeInvalid, Message: err.Error()}
	default:
		return &Error{Message: err.Error()}
	}
}

// Decode converts a wire error back to a typed error for op at path.
func (e *Error) Decode(op, path string) error {
	if e == nil {
		return nil
	}
	switch e.Code {
	case CodeAuthentication:
		return errors.NewAuthenticationError("", e.Message, nil)
	case CodeNotImplemented:
		return errors.NewAuthenticationError("", e.Message, errors.ErrNotImplemented)
	case CodeNotFound:
		return &peerError{message: e.Message, kind: errors.ErrNotFound}
	case CodeAlreadyExists:
		return &peerError{message: e.Message, kind: errors.ErrAlreadyExists}
	default:
		return errors.NewStoreError(op, path, e.Code, e.Message)
	}
}

// peerError carries a message from the server and matches the sentinel of
// its kind.
type peerError struct {
	message string
	kind    error
}

func (e *peerError) Error() string { return e.message }
func (e *peerError) Unwrap() error { return e.kind }

// EncodeQuery converts a directive set to its wire form.
func EncodeQuery(s query.Set) []Directive {
	if len(s) == 0 {
		return nil
	}
	out := make([]Directive, len(s))
	for i, d := range s {
		out[i] = Directive{Op: string(d.Op), Arg: d.Arg}
	}
	return out
}

// DecodeQuery converts wire directives to a validated set.
func DecodeQuery(ds []Directive) (query.Set, error) {
	s := make(query.Set, len(ds))
	for i, d := range ds {
		s[i] = query.Directive{Op: query.Op(d.Op), Arg: d.Arg}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
