package log

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		expected slog.Level
		wantErr  bool
	}{
		{name: "debug", expected: slog.LevelDebug},
		{name: "info", expected: slog.LevelInfo},
		{name: "WARN", expected: slog.LevelWarn},
		{name: "warning", expected: slog.LevelWarn},
		{name: "error", expected: slog.LevelError},
		{name: "", expected: slog.LevelInfo},
		{name: "verbose", wantErr: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			level, err := ParseLevel(test.name)

			if test.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, test.expected, level)
		})
	}
}

func TestConsoleHandler(t *testing.T) {
	var out strings.Builder
	handler := newConsoleHandler(&out, slog.LevelInfo, true)
	logger := slog.New(handler)

	logger.Info("program halted", "blocks", 3)
	logger.Debug("dropped below level")

	assert.Contains(t, out.String(), "program halted")
	assert.Contains(t, out.String(), "blocks=3")
	assert.NotContains(t, out.String(), "dropped below level")
}

func TestConsoleHandlerWithAttrs(t *testing.T) {
	var out strings.Builder
	handler := newConsoleHandler(&out, slog.LevelInfo, true)
	logger := slog.New(handler).With("component", "engine")

	logger.Info("started")

	assert.Contains(t, out.String(), "component=engine")
}

func TestConsoleHandlerEnabled(t *testing.T) {
	handler := newConsoleHandler(&strings.Builder{}, slog.LevelWarn, true)

	assert.False(t, handler.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, handler.Enabled(context.Background(), slog.LevelError))
}

func TestNewWithFileFansOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")

	logger, closer, err := New(Options{Level: slog.LevelInfo, File: path, NoColor: true})
	require.NoError(t, err)

	logger.Info("fan out check", "value", 42)
	require.NoError(t, closer())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"fan out check"`)
	assert.Contains(t, string(data), `"value":42`)
}

func TestNewWithUnwritableFile(t *testing.T) {
	_, _, err := New(Options{File: filepath.Join(t.TempDir(), "missing", "run.log")})
	assert.Error(t, err)
}
