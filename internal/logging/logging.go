package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the process logger.
type Options struct {
	// Level is one of debug, info, warn, error. Empty falls back to the
	// DEBUG and LOG_LEVEL environment variables, then info.
	Level string

	// File, when set, receives logs through a size-rotated writer instead
	// of the default output.
	File string

	// MaxSizeMB, MaxBackups and MaxAgeDays tune rotation of File.
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// ParseLevel maps a level name to a slog.Level. Unknown names are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LevelFromEnv reads DEBUG first, then LOG_LEVEL.
func LevelFromEnv() slog.Level {
	if debug := os.Getenv("DEBUG"); debug != "" {
		switch strings.ToLower(debug) {
		case "1", "true", "yes", "on":
			return slog.LevelDebug
		}
	}
	return ParseLevel(os.Getenv("LOG_LEVEL"))
}

// New builds a text logger writing to w, or to a rotating file when
// opts.File is set. The returned closer releases the file and is a no-op
// otherwise.
func New(w io.Writer, opts Options) (*slog.Logger, io.Closer) {
	level := LevelFromEnv()
	if opts.Level != "" {
		level = ParseLevel(opts.Level)
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 50),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 28),
		}
		w = lj
		closer = lj
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
	return logger, closer
}

// Setup builds a logger with New and installs it as the slog default.
func Setup(w io.Writer, opts Options) (*slog.Logger, io.Closer) {
	logger, closer := New(w, opts)
	slog.SetDefault(logger)
	return logger, closer
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
