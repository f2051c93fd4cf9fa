// Package errors provides custom error types for the rebase client.
// Validation failures are returned synchronously by the client; failures
// reported by the underlying store reach the caller's callbacks, wrapped in
// these types where the client adds context.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Common sentinel errors for the rebase client
var (
	// ErrInvalidOptions indicates a malformed options value for an operation
	ErrInvalidOptions = errors.New("invalid options")

	// ErrInvalidURL indicates a malformed connection URL
	ErrInvalidURL = errors.New("invalid url")

	// ErrInvalidEndpoint indicates a malformed store path
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrUnbound indicates an unbind request for a binding that is not registered
	ErrUnbound = errors.New("unbound endpoint")

	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that a resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrPermissionDenied indicates the store refused an operation
	ErrPermissionDenied = errors.New("permission denied")

	// ErrAuthentication indicates that credentials or a token were rejected
	ErrAuthentication = errors.New("authentication failed")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrCanceled indicates that an operation was canceled
	ErrCanceled = errors.New("operation canceled")

	// ErrClosed indicates use of a database or client that has been closed or reset
	ErrClosed = errors.New("closed")

	// ErrNotImplemented indicates that a backend does not support an operation
	ErrNotImplemented = errors.New("not implemented")
)

// InvalidOptionsError represents a malformed options value.
type InvalidOptionsError struct {
	Option   string // the offending field, e.g. "context" or "queries"
	Expected string // what the field must be
	Actual   any
	Message  string
}

// Error implements the error interface
func (e *InvalidOptionsError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("invalid options: %s", e.Message)
	}
	return fmt.Sprintf("invalid options: %s must be %s, got %v", e.Option, e.Expected, e.Actual)
}

// Is implements errors.Is support
func (e *InvalidOptionsError) Is(target error) bool {
	return target == ErrInvalidOptions || target == ErrInvalidInput
}

// NewInvalidOptionsError creates a new InvalidOptionsError for a field of the wrong shape.
func NewInvalidOptionsError(option, expected string, actual any) *InvalidOptionsError {
	return &InvalidOptionsError{Option: option, Expected: expected, Actual: actual}
}

// InvalidURLError represents a connection URL that cannot be used.
type InvalidURLError struct {
	URL     string
	Message string
}

// Error implements the error interface
func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("invalid url %q: %s", e.URL, e.Message)
}

// Is implements errors.Is support
func (e *InvalidURLError) Is(target error) bool {
	return target == ErrInvalidURL || target == ErrInvalidInput
}

// NewInvalidURLError creates a new InvalidURLError
func NewInvalidURLError(url, message string) *InvalidURLError {
	return &InvalidURLError{URL: url, Message: message}
}

// InvalidEndpointError represents a store path that cannot be used.
type InvalidEndpointError struct {
	Endpoint string
	Message  string
}

// Error implements the error interface
func (e *InvalidEndpointError) Error() string {
	return fmt.Sprintf("invalid endpoint %q: %s", e.Endpoint, e.Message)
}

// Is implements errors.Is support
func (e *InvalidEndpointError) Is(target error) bool {
	return target == ErrInvalidEndpoint || target == ErrInvalidInput
}

// NewInvalidEndpointError creates a new InvalidEndpointError
func NewInvalidEndpointError(endpoint, message string) *InvalidEndpointError {
	return &InvalidEndpointError{Endpoint: endpoint, Message: message}
}

// UnboundBindingError is returned when removing a binding that was never
// bound or has already been removed.
type UnboundBindingError struct {
	Endpoint string
	Method   string
	ID       uint64
}

// Error implements the error interface
func (e *UnboundBindingError) Error() string {
	return fmt.Sprintf("endpoint %q (%s #%d) was either never bound or has already been unbound", e.Endpoint, e.Method, e.ID)
}

// Is implements errors.Is support
func (e *UnboundBindingError) Is(target error) bool {
	return target == ErrUnbound
}

// NewUnboundBindingError creates a new UnboundBindingError
func NewUnboundBindingError(endpoint, method string, id uint64) *UnboundBindingError {
	return &UnboundBindingError{Endpoint: endpoint, Method: method, ID: id}
}

// NotFoundError represents an error when a resource is not found
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// AlreadyExistsError represents an attempt to create something that exists
type AlreadyExistsError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *AlreadyExistsError) Is(target error) bool {
	return target == ErrAlreadyExists
}

// NewAlreadyExistsError creates a new AlreadyExistsError
func NewAlreadyExistsError(resource, id string) *AlreadyExistsError {
	return &AlreadyExistsError{Resource: resource, ID: id}
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// StoreError represents a failure reported by the store for an operation on a path.
type StoreError struct {
	Operation string // "set", "once", "listen", "push", ...
	Path      string
	Code      string // "permission_denied", "disconnected", ...
	Message   string
	Err       error
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("store error during %s of %q (%s): %s", e.Operation, e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("store error during %s of %q: %s", e.Operation, e.Path, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *StoreError) Is(target error) bool {
	switch e.Code {
	case CodePermissionDenied:
		return target == ErrPermissionDenied
	case CodeClosed:
		return target == ErrClosed
	}
	return false
}

// Store error codes shared by backends and the wire protocol.
const (
	CodePermissionDenied = "permission_denied"
	CodeClosed           = "closed"
	CodeInvalid          = "invalid"
	CodeUnavailable      = "unavailable"
)

// NewStoreError creates a new StoreError
func NewStoreError(operation, path, code, message string) *StoreError {
	return &StoreError{
		Operation: operation,
		Path:      path,
		Code:      code,
		Message:   message,
	}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// ParseError represents an error when parsing data formats
type ParseError struct {
	Format  string // "json", "yaml"
	File    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("parse error in %s file %s: %s", e.Format, e.File, e.Message)
	}
	return fmt.Sprintf("%s parse error: %s", e.Format, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError
func NewParseError(format, file string, message string, err error) *ParseError {
	return &ParseError{
		Format:  format,
		File:    file,
		Message: message,
		Err:     err,
	}
}

// ResourceError represents an error during resource operations
type ResourceError struct {
	Operation string // "create", "dial", "load", "close"
	Resource  string // "client", "database", "config", "server"
	ID        string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ResourceError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("failed to %s %s %s: %s", e.Operation, e.Resource, e.ID, e.Message)
	}
	return fmt.Sprintf("failed to %s %s: %s", e.Operation, e.Resource, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ResourceError) Unwrap() error {
	return e.Err
}

// NewResourceError creates a new ResourceError
func NewResourceError(operation, resource, id string, err error) *ResourceError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ResourceError{
		Operation: operation,
		Resource:  resource,
		ID:        id,
		Message:   message,
		Err:       err,
	}
}

// AuthenticationError represents a rejected sign-in or account operation
type AuthenticationError struct {
	Provider string // "password", "custom", "github", ...
	Message  string
	Err      error
}

// Error implements the error interface
func (e *AuthenticationError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("authentication error (%s): %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("authentication error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *AuthenticationError) Is(target error) bool {
	return target == ErrAuthentication
}

// NewAuthenticationError creates a new AuthenticationError
func NewAuthenticationError(provider, message string, err error) *AuthenticationError {
	return &AuthenticationError{
		Provider: provider,
		Message:  message,
		Err:      err,
	}
}

// TimeoutError represents an operation timeout
type TimeoutError struct {
	Operation string
	Duration  string
	Message   string
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	if e.Duration != "" {
		return fmt.Sprintf("operation %s timed out after %s: %s", e.Operation, e.Duration, e.Message)
	}
	return fmt.Sprintf("operation %s timed out: %s", e.Operation, e.Message)
}

// Is implements errors.Is support
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// NewTimeoutError creates a new TimeoutError
func NewTimeoutError(operation, duration, message string) *TimeoutError {
	return &TimeoutError{
		Operation: operation,
		Duration:  duration,
		Message:   message,
	}
}

// Helper functions for error checking

// IsInvalidOptions checks if an error is an options error
func IsInvalidOptions(err error) bool {
	return errors.Is(err, ErrInvalidOptions)
}

// IsInvalidURL checks if an error is a connection URL error
func IsInvalidURL(err error) bool {
	return errors.Is(err, ErrInvalidURL)
}

// IsInvalidEndpoint checks if an error is an endpoint error
func IsInvalidEndpoint(err error) bool {
	return errors.Is(err, ErrInvalidEndpoint)
}

// IsUnbound checks if an error reports an unknown binding
func IsUnbound(err error) bool {
	return errors.Is(err, ErrUnbound)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidationError checks if an error is any kind of input validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsPermissionDenied checks if the store refused an operation
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsAuthentication checks if an error is an authentication error
func IsAuthentication(err error) bool {
	return errors.Is(err, ErrAuthentication)
}

// IsTimeout checks if an error is a timeout error, including an expired
// context deadline
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// IsCanceled checks if an error is a cancellation error, including a
// canceled context
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}

// IsClosed checks if an error reports use after close
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

// Helper wrapping functions for common patterns

// WrapResource wraps an error as a ResourceError
func WrapResource(operation, resource, id string, err error) error {
	if err == nil {
		return nil
	}
	return NewResourceError(operation, resource, id, err)
}

// WrapParse wraps an error as a ParseError
func WrapParse(format, file string, err error) error {
	if err == nil {
		return nil
	}
	return NewParseError(format, file, err.Error(), err)
}

// WrapStore wraps a backend error as a StoreError for the operation and path.
// Errors that already are StoreErrors are returned unchanged.
func WrapStore(operation, path string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{
		Operation: operation,
		Path:      path,
		Message:   err.Error(),
		Err:       err,
	}
}
