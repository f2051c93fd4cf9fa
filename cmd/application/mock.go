package application

import (
	"github.com/rs/zerolog"

	"github.com/agentstation/rebase"
)

// Mock is an Application for tests. A nil function field makes its method
// return a default value.
type Mock struct {
	ClientFunc       func() (rebase.Client, error)
	LoggerFunc       func() *zerolog.Logger
	OutputFormatFunc func() string
	VersionFunc      func() string
}

var _ Application = (*Mock)(nil)

// Client returns a client using the mock function or nil.
func (m *Mock) Client() (rebase.Client, error) {
	if m.ClientFunc != nil {
		return m.ClientFunc()
	}
	return nil, nil
}

// Logger returns a logger using the mock function or a no-op logger.
func (m *Mock) Logger() *zerolog.Logger {
	if m.LoggerFunc != nil {
		return m.LoggerFunc()
	}
	logger := zerolog.Nop()
	return &logger
}

// OutputFormat returns output format using the mock function or "json".
func (m *Mock) OutputFormat() string {
	if m.OutputFormatFunc != nil {
		return m.OutputFormatFunc()
	}
	return "json"
}

// Version returns version using the mock function or "dev".
func (m *Mock) Version() string {
	if m.VersionFunc != nil {
		return m.VersionFunc()
	}
	return "dev"
}

func (m *Mock) Commit() string  { return "unknown" }
func (m *Mock) Date() string    { return "unknown" }
func (m *Mock) BuiltBy() string { return "test" }
