package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		" warn ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestLevelFromEnv(t *testing.T) {
	t.Setenv("DEBUG", "")
	t.Setenv("LOG_LEVEL", "error")
	assert.Equal(t, slog.LevelError, LevelFromEnv())

	t.Setenv("DEBUG", "true")
	assert.Equal(t, slog.LevelDebug, LevelFromEnv(), "DEBUG wins over LOG_LEVEL")
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := New(&buf, Options{Level: "warn"})
	defer closer.Close()

	logger.Info("scan.start", "root", "/data")
	logger.Warn("scan.walk.error", "path", "/data/locked")

	out := buf.String()
	assert.NotContains(t, out, "scan.start")
	assert.Contains(t, out, "scan.walk.error")
	assert.Contains(t, out, "path=/data/locked")
}

func TestNewWritesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "galactic.log")
	var buf bytes.Buffer
	logger, closer := New(&buf, Options{Level: "info", File: path})

	logger.Info("scan.done", "files", 3)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "scan.done")
	assert.Zero(t, buf.Len(), "file output replaces the writer")
}
