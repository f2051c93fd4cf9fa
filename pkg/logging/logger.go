// Package logging provides the zerolog loggers used across rebase.
//
// Components take a *zerolog.Logger and derive child loggers carrying the
// fields of what they serve:
//
//	log := logging.ForBinding(logging.Default(), "users/1", "syncState", 7)
//	log.Warn().Err(err).Msg("Listener cancelled")
//
// The process default is console output on a terminal and JSON otherwise.
package logging

import (
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	defaultMu     sync.RWMutex
	defaultLogger = newDefault()
)

func newDefault() zerolog.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))
	if os.Getenv("LOG_LEVEL") == "" && os.Getenv("DEBUG") != "" {
		level = zerolog.DebugLevel
	}

	var logger zerolog.Logger
	if terminal(os.Stderr) && os.Getenv("LOG_FORMAT") != "json" {
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.Kitchen,
			NoColor:    os.Getenv("NO_COLOR") != "",
		})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// Default returns the process-wide logger.
func Default() *zerolog.Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	l := defaultLogger
	return &l
}

// SetDefault replaces the process-wide logger, zerolog's global included.
func SetDefault(logger zerolog.Logger) {
	defaultMu.Lock()
	defaultLogger = logger
	defaultMu.Unlock()
	log.Logger = logger
}

// NewNopLogger creates a logger that discards all output.
func NewNopLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

// ForStore returns a child logger for the named store.
func ForStore(logger *zerolog.Logger, name string) *zerolog.Logger {
	l := logger.With().Str("store", name).Logger()
	return &l
}

// ForBinding returns a child logger for one binding of a client.
func ForBinding(logger *zerolog.Logger, endpoint, method string, id uint64) *zerolog.Logger {
	l := logger.With().
		Str("endpoint", endpoint).
		Str("method", method).
		Uint64("binding_id", id).
		Logger()
	return &l
}

// ForConnection returns a child logger for one server connection.
func ForConnection(logger *zerolog.Logger, id, remoteAddr string) *zerolog.Logger {
	ctx := logger.With().Str("client_id", id)
	if remoteAddr != "" {
		ctx = ctx.Str("remote_addr", remoteAddr)
	}
	l := ctx.Logger()
	return &l
}

func terminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
