// Package logger sets up the zerolog logger shared by every component.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultLogFile is where Init writes.
const DefaultLogFile = "converse.log"

// Init initializes the file logger, writing to converse.log in the current directory.
// Log level can be configured via LOG_LEVEL environment variable (trace, debug, info, warn, error).
func Init() (zerolog.Logger, error) {
	return InitWithOptions(DefaultLogFile, false)
}

// InitWithOptions initializes the logger with the specified options.
// A non-empty logFile receives JSON logs. Otherwise logs go to stderr, through
// zerolog's ConsoleWriter when pretty is set, so they stay out of the
// conversation printed on stdout.
func InitWithOptions(logFile string, pretty bool) (zerolog.Logger, error) {
	var output io.Writer = os.Stderr
	switch {
	case logFile != "":
		//nolint:gosec // G304: User-specified log file path is intentional
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("failed to open log file %s: %w", logFile, err)
		}
		output = file
	case pretty:
		output = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	level := parseLogLevel(os.Getenv("LOG_LEVEL"))
	log := New(output, level)

	event := log.Info().Str("level", level.String())
	if logFile != "" {
		event = event.Str("path", logFile)
	} else {
		event = event.Str("output", "stderr").Bool("pretty", pretty)
	}
	event.Msg("Logger initialized")
	return log, nil
}

// New creates a timestamped logger writing to w at level.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
