// Package logging configures the zerolog logger shared by the ingest
// packages and commands.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output instead of JSON lines.
	Pretty bool

	// Output receives log lines (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns JSON logging at info level on stderr.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

// ParseLevel validates a level name from a flag or environment variable.
func ParseLevel(name string) (LogLevel, error) {
	switch l := LogLevel(strings.ToLower(strings.TrimSpace(name))); l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return l, nil
	case "warning":
		return LevelWarn, nil
	default:
		return "", fmt.Errorf("unknown log level %q (want debug, info, warn or error)", name)
	}
}

func parseLevel(level LogLevel) zerolog.Level {
	l, err := ParseLevel(string(level))
	if err != nil {
		return zerolog.InfoLevel
	}
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a logger tagged with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// ForConfig tags logger with the source of an ingest configuration, usually
// the config file path or the request id of an API call.
func ForConfig(logger zerolog.Logger, source string) zerolog.Logger {
	return logger.With().Str("config", source).Logger()
}

// Log Level Guidelines:
//
// Debug: per-page progress, pacing waits, mirror uploads, sequence allocation
//
// Info: run start and completion, server startup and shutdown
//
// Warn: non-2xx responses, retry attempts, ledger write failures, cleanup
// failures after an aborted run
//
// Error: failed runs, invalid configuration documents
//
// Context Fields:
//   - component: emitting package (ingest, http-client, sink, runstore, cli, api)
//   - run_id: uuid of one ingest run
//   - endpoint: configured endpoint path
//   - config: config file path or API request id
//   - page: 1-based page number
//   - records, total_records: per-page and running record counts
//   - status_code, error_class: HTTP failure details
//   - output_path, bucket, key: where the artifact went
