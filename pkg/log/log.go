package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. It writes to stderr until Init runs.
var Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// Level is a log level name accepted in the config file and on the CLI
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config selects level, format and destination of the global logger
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init replaces the global logger. Unknown levels fall back to info.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(strings.ToLower(string(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// stdout carries command output
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if !cfg.JSONOutput {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	Logger = zerolog.New(out).With().Timestamp().Logger()
}

// WithComponent returns a child logger tagged with the emitting package
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithOperation tags a component logger with the operation it runs
func WithOperation(component, op string) zerolog.Logger {
	return Logger.With().Str("component", component).Str("operation", op).Logger()
}

// WithTransitionID tags log lines of one power transition
func WithTransitionID(id string) zerolog.Logger {
	return Logger.With().Str("transition_id", id).Logger()
}

// WithSession tags log lines of one configuration session
func WithSession(name string) zerolog.Logger {
	return Logger.With().Str("session", name).Logger()
}

// WithGroup tags log lines that change one group
func WithGroup(label string) zerolog.Logger {
	return Logger.With().Str("group", label).Logger()
}
