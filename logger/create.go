// Package logger builds the zerolog.Logger every qst component logs
// through, following the teacher's logger/create.go console-writer setup
// without its CLI-flag parsing or file-rotation
// machinery, which belong to a daemon, not a library.
package logger

import (
	"os"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
)

const consoleTimeFormat = time.RFC3339

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFunc = func() time.Time { return time.Now().UTC() }
}

// New builds a zerolog.Logger at level, writing to stderr. pretty selects a
// human-readable console writer (grounded on the teacher's
// zerolog.ConsoleWriter setup, via go-colorable for Windows-safe ANSI);
// otherwise logs are newline-delimited JSON, suited to log aggregation.
func New(level zerolog.Level, pretty bool) *zerolog.Logger {
	var l zerolog.Logger
	if pretty {
		w := zerolog.ConsoleWriter{Out: colorable.NewColorable(os.Stderr), TimeFormat: consoleTimeFormat}
		l = zerolog.New(w)
	} else {
		l = zerolog.New(os.Stderr)
	}
	l = l.Level(level).With().Timestamp().Logger()
	return &l
}

// ParseLevel wraps zerolog.ParseLevel, falling back to zerolog.InfoLevel for
// an empty or unrecognized string rather than erroring, mirroring the
// teacher's tolerant --loglevel handling.
func ParseLevel(s string) zerolog.Level {
	if s == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
