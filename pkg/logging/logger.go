// Package logging configures the zerolog logger shared by the export
// pipeline and the Evergreen client.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a level name accepted on the command line.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

var zerologLevels = map[LogLevel]zerolog.Level{
	LevelDebug: zerolog.DebugLevel,
	LevelInfo:  zerolog.InfoLevel,
	LevelWarn:  zerolog.WarnLevel,
	LevelError: zerolog.ErrorLevel,
}

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level written. Unknown names mean info.
	Level LogLevel

	// Pretty switches from JSON lines to zerolog's console format.
	Pretty bool

	// Output receives the log lines. The CSV may go to stdout, so this
	// defaults to stderr.
	Output io.Writer

	// RunID, when set, is attached to every line as run_id.
	RunID string
}

// DefaultConfig returns JSON logging at info level on stderr.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Setup builds a logger from cfg and installs it as the global
// zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	lc := zerolog.New(out).With().Timestamp()
	if cfg.RunID != "" {
		lc = lc.Str("run_id", cfg.RunID)
	}

	log.Logger = lc.Logger()
	return log.Logger
}

// ParseLevel validates a level name from the command line.
func ParseLevel(name string) (LogLevel, error) {
	level := LogLevel(strings.ToLower(name))
	if level == "warning" {
		level = LevelWarn
	}
	if _, ok := zerologLevels[level]; !ok {
		return "", fmt.Errorf("unknown log level %q (want debug, info, warn or error)", name)
	}
	return level, nil
}

func parseLevel(level LogLevel) zerolog.Level {
	if l, err := ParseLevel(string(level)); err == nil {
		return zerologLevels[l]
	}
	return zerolog.InfoLevel
}

// NewLogger returns a child of the global logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Levels used across the repo:
//
//	debug  cache hits and writes, single requests, excluded commit-queue
//	       patches, the patch that crossed the cutoff
//	info   run start and summary, discovery progress, batch sent and
//	       completed, export written
//	warn   retries, failed patch lookups (skipped), cache errors
//	error  listing failures and output write failures (the run aborts)
//
// Common fields: run_id, component, project, patch_id, batch, endpoint,
// status, error_class, key, ttl.
