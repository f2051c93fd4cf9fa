package app

import (
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/agentstation/rebase/pkg/logging"
)

// NewLogger builds the CLI logger. Command output goes to stdout, so logs
// default to stderr. The level is taken from --log-level or LOG_LEVEL, then
// -q, then -v, and is info otherwise. Conflicting or unknown settings are
// reported through the new logger itself.
func NewLogger(config *Config) zerolog.Logger {
	level, problem := determineLogLevel(config)

	output := config.LogOutput
	if output == "" {
		output = "stderr"
	}
	logger := logging.NewLoggerFromConfig(&logging.Config{
		Level:     level,
		Format:    config.LogFormat,
		Output:    output,
		NoColor:   config.NoColor || os.Getenv("NO_COLOR") != "",
		AddCaller: level == "debug" || level == "trace",
	})
	if problem != "" {
		logger.Warn().Str("log_level", level).Msg(problem)
	}
	return logger
}

// determineLogLevel resolves the level and describes any setting it had to
// override.
func determineLogLevel(config *Config) (level, problem string) {
	if config.LogLevel != "" {
		if !logging.KnownLevel(config.LogLevel) {
			return "info", "Unknown log level " + config.LogLevel
		}
		return strings.ToLower(config.LogLevel), ""
	}
	switch {
	case config.Verbose && config.Quiet:
		return "warn", "Both --verbose and --quiet given, using --quiet"
	case config.Quiet:
		return "warn", ""
	case config.Verbose:
		return "debug", ""
	}
	return "info", ""
}
