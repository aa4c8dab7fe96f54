package mmstore

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewTextLogger returns a logger writing human-readable text to stderr.
func NewTextLogger(level slog.Level) *slog.Logger {
	return NewLogger(os.Stderr, "text", level)
}

// NewJSONLogger returns a logger writing JSON lines to stderr.
func NewJSONLogger(level slog.Level) *slog.Logger {
	return NewLogger(os.Stderr, "json", level)
}

// NoopLogger returns a logger that discards all output. It is the default
// of every package in this module.
func NoopLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// NewLogger returns a logger writing to w in the given format ("text" or
// "json"). Unknown formats fall back to text.
func NewLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel parses a level name such as "debug", "info", "warn" or "error".
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("mmstore: invalid log level %q", s)
	}

	return l, nil
}
