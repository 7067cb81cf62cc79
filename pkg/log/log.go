// Package log builds the process logger: a colored console handler, fanned
// out to an optional JSON file through slog-multi.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	slogmulti "github.com/samber/slog-multi"
)

// Options configures the process logger
type Options struct {
	// Minimum level
	Level slog.Level
	// Optional JSON log file path
	File string
	// Disable console colors
	NoColor bool
}

// ParseLevel parses a level name ("debug", "info", "warn", "error")
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", name)
}

// New builds a logger from options. The returned closer releases the log
// file, if one was opened.
func New(opts Options) (*slog.Logger, func() error, error) {
	console := newConsoleHandler(os.Stderr, opts.Level, opts.NoColor)

	closer := func() error { return nil }

	if opts.File == "" {
		return slog.New(console), closer, nil
	}

	file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	closer = file.Close

	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: opts.Level})
	return slog.New(slogmulti.Fanout(console, fileHandler)), closer, nil
}

var (
	colorDebug = color.New(color.FgHiBlack)
	colorInfo  = color.New(color.FgGreen)
	colorWarn  = color.New(color.FgYellow)
	colorErr   = color.New(color.FgRed, color.Bold)
	colorAttr  = color.New(color.FgCyan)
)

// consoleHandler renders records as colored single lines
type consoleHandler struct {
	mu      *sync.Mutex
	w       io.Writer
	level   slog.Level
	noColor bool
	attrs   []slog.Attr
}

func newConsoleHandler(w io.Writer, level slog.Level, noColor bool) *consoleHandler {
	return &consoleHandler{mu: &sync.Mutex{}, w: w, level: level, noColor: noColor}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	var builder strings.Builder

	builder.WriteString(h.paint(levelColor(record.Level), fmt.Sprintf("%-5s", record.Level.String())))
	builder.WriteByte(' ')
	builder.WriteString(record.Message)

	writeAttr := func(attr slog.Attr) bool {
		builder.WriteByte(' ')
		builder.WriteString(h.paint(colorAttr, attr.Key))
		builder.WriteByte('=')
		builder.WriteString(attr.Value.String())
		return true
	}

	for _, attr := range h.attrs {
		writeAttr(attr)
	}
	record.Attrs(writeAttr)

	builder.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, builder.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	// Groups are flattened on the console; the JSON handler keeps them
	return h
}

func (h *consoleHandler) paint(c *color.Color, s string) string {
	if h.noColor {
		return s
	}
	return c.Sprint(s)
}

func levelColor(level slog.Level) *color.Color {
	switch {
	case level >= slog.LevelError:
		return colorErr
	case level >= slog.LevelWarn:
		return colorWarn
	case level >= slog.LevelInfo:
		return colorInfo
	}
	return colorDebug
}
