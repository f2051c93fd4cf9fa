package logging

import (
	"context"

	"github.com/rs/zerolog"
)

type contextKey int

const (
	loggerKey contextKey = iota
	requestIDKey
	connectionIDKey
)

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *zerolog.Logger) context.Context {
	if logger == nil {
		logger = Default()
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger carried by ctx, or the default logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey).(*zerolog.Logger); ok && logger != nil {
			return logger
		}
	}
	return Default()
}

// WithRequestID tags ctx and its logger with an HTTP request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return tag(context.WithValue(ctx, requestIDKey, id), "request_id", id)
}

// RequestID returns the request id recorded in ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithConnectionID tags ctx and its logger with the id a websocket
// connection is served under. Hub logs for the connection use the same id.
func WithConnectionID(ctx context.Context, id string) context.Context {
	return tag(context.WithValue(ctx, connectionIDKey, id), "client_id", id)
}

// ConnectionID returns the connection id recorded in ctx, if any.
func ConnectionID(ctx context.Context) string {
	id, _ := ctx.Value(connectionIDKey).(string)
	return id
}

// WithCommand tags ctx's logger with the CLI command being run.
func WithCommand(ctx context.Context, path string) context.Context {
	return tag(ctx, "command", path)
}

// WithEndpoint tags ctx's logger with the store endpoint an operation
// targets.
func WithEndpoint(ctx context.Context, endpoint string) context.Context {
	return tag(ctx, "endpoint", endpoint)
}

func tag(ctx context.Context, field, value string) context.Context {
	if value == "" {
		return ctx
	}
	l := FromContext(ctx).With().Str(field, value).Logger()
	return WithLogger(ctx, &l)
}
