package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RunFileTimeLayout is the timestamp format of run file lines.
const RunFileTimeLayout = "2006-01-02 15:04:05"

// RunFileName returns the per-run log file name for a supervisor started at t.
func RunFileName(t time.Time) string {
	return "server_" + t.Format("20060102_150405") + ".log"
}

// OpenRunFile creates dir if needed and opens a fresh per-run log file in append mode.
func OpenRunFile(dir string, started time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	path := filepath.Join(dir, RunFileName(started))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	return f, nil
}

// RunFileHandler is a slog.Handler that writes one line per record:
//
//	[2006-01-02 15:04:05] message key=value ...
//
// Warnings and errors carry a "WARN: " / "ERROR: " prefix and the module tag is
// left out. Handlers derived from the same root share one mutex and each
// record is a single Write, so lines never interleave.
type RunFileHandler struct {
	w     io.Writer
	mu    *sync.Mutex
	scope scope
}

// NewRunFileHandler creates a handler writing to w.
func NewRunFileHandler(w io.Writer, level slog.Leveler) *RunFileHandler {
	return &RunFileHandler{w: w, mu: &sync.Mutex{}, scope: scope{level: level}}
}

// withLevel returns a handler sharing the writer and lock but filtering on level.
func (h *RunFileHandler) withLevel(level slog.Leveler) *RunFileHandler {
	clone := *h
	clone.scope.level = level
	return &clone
}

// Enabled implements slog.Handler.
func (h *RunFileHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.scope.enabled(level)
}

// Handle implements slog.Handler.
func (h *RunFileHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteByte('[')
	sb.WriteString(r.Time.Format(RunFileTimeLayout))
	sb.WriteString("] ")
	if r.Level >= slog.LevelWarn {
		sb.WriteString(r.Level.String())
		sb.WriteString(": ")
	}
	sb.WriteString(r.Message)

	h.scope.leaves(r, ".", func(key string, v slog.Value) {
		if key == moduleKey {
			return
		}
		value := v.String()
		if value == "" || strings.ContainsAny(value, " \t\"=") {
			value = strconv.Quote(value)
		}
		sb.WriteByte(' ')
		sb.WriteString(key)
		sb.WriteByte('=')
		sb.WriteString(value)
	})
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, sb.String())
	return err
}

// WithAttrs implements slog.Handler.
func (h *RunFileHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.scope = h.scope.withAttrs(attrs)
	return &clone
}

// WithGroup implements slog.Handler.
func (h *RunFileHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.scope = h.scope.withGroup(name)
	return &clone
}
