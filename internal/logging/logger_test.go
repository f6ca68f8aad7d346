package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// resetLogging clears package state between tests.
func resetLogging() {
	mutex.Lock()
	moduleLoggers = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	isInitialized = false
	globalConfig = Config{}
	logBuffer = nil
	runFile = nil
	mutex.Unlock()
}

func TestModuleLevelOverride(t *testing.T) {
	resetLogging()

	Initialize(Config{
		Level:   "info",
		Format:  "text",
		Console: io.Discard,
		Modules: map[string]string{
			"supervisor": "debug",
			"api":        "warn",
		},
	})

	tests := []struct {
		module    string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"supervisor", true, true, true},
		{"api", false, false, true},
		{"other", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			handler := GetLogger(tt.module).Handler()

			if got := handler.Enabled(context.Background(), slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("module %q: Debug enabled = %v, want %v", tt.module, got, tt.wantDebug)
			}
			if got := handler.Enabled(context.Background(), slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("module %q: Info enabled = %v, want %v", tt.module, got, tt.wantInfo)
			}
			if got := handler.Enabled(context.Background(), slog.LevelWarn); got != tt.wantWarn {
				t.Errorf("module %q: Warn enabled = %v, want %v", tt.module, got, tt.wantWarn)
			}
		})
	}
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	resetLogging()

	loggerBefore := GetLogger("supervisor")
	if loggerBefore.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Logger created before Initialize should NOT have debug enabled")
	}

	Initialize(Config{
		Level:   "info",
		Console: io.Discard,
		Modules: map[string]string{"supervisor": "debug"},
	})

	loggerAfter := GetLogger("supervisor")
	if !loggerAfter.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Logger should have debug enabled after Initialize")
	}
}

func TestInitializeMirrorsConsoleAndFile(t *testing.T) {
	resetLogging()

	var console, file bytes.Buffer
	Initialize(Config{Level: "info", Console: &console, File: &file})

	GetLogger("supervisor").Info("Server started", "pid", 4242)

	if !strings.Contains(console.String(), "Server started") {
		t.Errorf("console missing record: %q", console.String())
	}
	line := file.String()
	pattern := regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] Server started pid=4242\n$`)
	if !pattern.MatchString(line) {
		t.Errorf("unexpected run file line %q", line)
	}

	entries := GetBuffer().ReadAll()
	if len(entries) != 1 || entries[0].Module != "supervisor" {
		t.Fatalf("expected one buffered supervisor entry, got %+v", entries)
	}
	if entries[0].Attributes["pid"] != int64(4242) {
		t.Errorf("expected pid attribute, got %v", entries[0].Attributes["pid"])
	}
}

func TestRunFileHandlerWarnPrefix(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewRunFileHandler(&buf, slog.LevelInfo))

	logger.Debug("hidden")
	logger.Warn("Graceful shutdown timeout, forcing kill", "timeout", 10*time.Second)

	got := buf.String()
	if strings.Contains(got, "hidden") {
		t.Errorf("debug record should be filtered: %q", got)
	}
	if !strings.Contains(got, "] WARN: Graceful shutdown timeout, forcing kill timeout=10s\n") {
		t.Errorf("unexpected warn line %q", got)
	}
}

func TestRunFileHandlerQuotesAndGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewRunFileHandler(&buf, slog.LevelInfo)).With("module", "x").WithGroup("child")

	logger.Info("Starting server", "command", "python3 server.py")

	got := buf.String()
	if strings.Contains(got, "module=") {
		t.Errorf("module attribute should be omitted: %q", got)
	}
	if !strings.Contains(got, `child.command="python3 server.py"`) {
		t.Errorf("expected grouped quoted attribute: %q", got)
	}
}

func TestRunFileHandlerConcurrentLines(t *testing.T) {
	var buf bytes.Buffer
	root := NewRunFileHandler(&buf, slog.LevelInfo)
	a := slog.New(root).With("module", "supervisor")
	b := slog.New(root.WithAttrs([]slog.Attr{slog.String("source", "signal")}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			a.Info("poll tick from the supervisor loop")
		}()
		go func() {
			defer wg.Done()
			b.Info("termination signal received")
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 100 {
		t.Fatalf("expected 100 lines, got %d", len(lines))
	}
	for _, line := range lines {
		if !strings.HasSuffix(line, "poll tick from the supervisor loop") &&
			!strings.HasSuffix(line, "termination signal received source=signal") {
			t.Errorf("interleaved line %q", line)
		}
	}
}

func TestOpenRunFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local)

	f, err := OpenRunFile(dir, started)
	if err != nil {
		t.Fatalf("OpenRunFile failed: %v", err)
	}
	defer f.Close()

	want := filepath.Join(dir, "server_20260102_030405.log")
	if f.Name() != want {
		t.Errorf("run file = %q, want %q", f.Name(), want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("run file not created: %v", err)
	}
}

func TestMultiHandlerDebugOutput(t *testing.T) {
	var buf bytes.Buffer

	debugHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	infoHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	logger := slog.New(NewMultiHandler(debugHandler, infoHandler)).With("module", "test")
	logger.Debug("debug only message")

	if count := strings.Count(buf.String(), "debug only message"); count != 1 {
		t.Errorf("Expected 1 debug message, got %d. Output: %s", count, buf.String())
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, os.ErrClosed }

func TestMultiHandlerKeepsGoingOnError(t *testing.T) {
	var buf bytes.Buffer
	multi := NewMultiHandler(
		NewRunFileHandler(failingWriter{}, slog.LevelInfo),
		slog.NewTextHandler(&buf, nil),
	)

	record := slog.NewRecord(time.Now(), slog.LevelInfo, "still delivered", 0)
	if err := multi.Handle(context.Background(), record); err == nil {
		t.Error("expected joined error from failing sink")
	}
	if !strings.Contains(buf.String(), "still delivered") {
		t.Error("healthy sink should still receive the record")
	}
}

func TestRingBufferReadLast(t *testing.T) {
	rb := NewRingBuffer(3)
	for _, msg := range []string{"a", "b", "c", "d"} {
		rb.Write(LogEntry{Message: msg})
	}

	all := rb.ReadAll()
	if len(all) != 3 || all[0].Message != "b" || all[2].Message != "d" {
		t.Errorf("unexpected ReadAll %+v", all)
	}
	last := rb.ReadLast(2)
	if len(last) != 2 || last[0].Message != "c" || last[1].Message != "d" {
		t.Errorf("unexpected ReadLast %+v", last)
	}
	if got := rb.Count(); got != 3 {
		t.Errorf("Count() = %d, want 3", got)
	}
}

func TestParseLevelValues(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		isNil bool
	}{
		{"debug", slog.LevelDebug, false},
		{"DEBUG", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"invalid", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input)
			switch {
			case tt.isNil && got != nil:
				t.Errorf("parseLevel(%q) = %v, want nil", tt.input, *got)
			case !tt.isNil && got == nil:
				t.Errorf("parseLevel(%q) = nil, want %v", tt.input, tt.want)
			case !tt.isNil && *got != tt.want:
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, *got, tt.want)
			}
		})
	}
}

func TestRingBufferQuery(t *testing.T) {
	rb := NewRingBuffer(5)
	for i, module := range []string{"supervisor", "process", "supervisor", "api", "supervisor", "process"} {
		rb.Write(LogEntry{Module: module, Message: string(rune('a' + i))})
	}

	got := rb.Query("supervisor", 2)
	if len(got) != 2 || got[0].Message != "c" || got[1].Message != "e" {
		t.Errorf("Query(supervisor, 2) = %+v", got)
	}
	if got := rb.Query("supervisor", 0); len(got) != 2 || got[0].Message != "c" {
		t.Errorf("oldest supervisor entry should have been overwritten, got %+v", got)
	}
	if got := rb.Query("missing", 10); len(got) != 0 {
		t.Errorf("Query(missing) = %+v", got)
	}
	if got := NewRingBuffer(3).ReadAll(); got != nil {
		t.Errorf("empty buffer ReadAll = %+v", got)
	}
}

func TestBufferHandlerBoundAttrsKeepTheirGroup(t *testing.T) {
	rb := NewRingBuffer(4)
	logger := slog.New(NewBufferHandler(rb, slog.LevelInfo)).
		With("module", "process", "pid", 7).
		WithGroup("stop").
		With("signal", "terminated")

	logger.Info("Stopping server", "timeout", 10*time.Second, "err", os.ErrClosed)

	entries := rb.ReadAll()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Module != "process" || e.Level != "info" {
		t.Errorf("unexpected module/level %q/%q", e.Module, e.Level)
	}
	want := map[string]any{
		"pid":          int64(7),
		"stop.signal":  "terminated",
		"stop.timeout": "10s",
		"stop.err":     os.ErrClosed.Error(),
	}
	for k, v := range want {
		if e.Attributes[k] != v {
			t.Errorf("attribute %s = %v, want %v", k, e.Attributes[k], v)
		}
	}
}

func TestJournalHandlerFields(t *testing.T) {
	var (
		gotMsg    string
		gotPri    journal.Priority
		gotFields map[string]string
	)
	h := NewJournalHandler(slog.LevelDebug)
	h.send = func(msg string, pri journal.Priority, fields map[string]string) error {
		gotMsg, gotPri, gotFields = msg, pri, fields
		return nil
	}

	logger := slog.New(h).With("module", "supervisor").WithGroup("child")
	logger.Warn("Server crashed", "pid", 42, "uptime", 3*time.Second)

	if gotMsg != "Server crashed" || gotPri != journal.PriWarning {
		t.Errorf("got %q at priority %d", gotMsg, gotPri)
	}
	want := map[string]string{
		"SYSLOG_IDENTIFIER": SyslogIdentifier,
		"MODULE":            "supervisor",
		"CHILD_PID":         "42",
		"CHILD_UPTIME":      "3s",
	}
	for k, v := range want {
		if gotFields[k] != v {
			t.Errorf("field %s = %q, want %q", k, gotFields[k], v)
		}
	}
}

func TestInitializeRebuildsRegisteredLoggers(t *testing.T) {
	resetLogging()

	early := GetLogger("process")

	var file bytes.Buffer
	Initialize(Config{Level: "info", Console: io.Discard, File: &file})

	early.Info("from early logger")
	if strings.Contains(file.String(), "from early logger") {
		t.Errorf("logger taken before Initialize should keep its old sinks: %q", file.String())
	}

	GetLogger("process").Info("from rebuilt logger")
	if !strings.Contains(file.String(), "from rebuilt logger") {
		t.Errorf("GetLogger after Initialize should write the run file: %q", file.String())
	}
}
