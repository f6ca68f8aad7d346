package process

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestLauncher creates a Launcher with short timeouts writing to a temp dir.
func newTestLauncher(t *testing.T, command string) (*Launcher, *Sinks) {
	t.Helper()
	sinks, err := OpenSinks(t.TempDir())
	if err != nil {
		t.Fatalf("OpenSinks failed: %v", err)
	}
	t.Cleanup(func() { sinks.Close() })

	l := NewLauncher(LauncherConfig{
		Command:         command,
		GracefulTimeout: 500 * time.Millisecond,
	}, sinks, testLogger())
	return l, sinks
}

// launch starts a process and stops it on cleanup.
func launch(t *testing.T, l *Launcher) *Process {
	t.Helper()
	p, err := l.Launch()
	if err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	t.Cleanup(func() { p.Stop() })
	return p
}

// waitDone waits for the process to be reaped, fails test on timeout.
func waitDone(t *testing.T, p *Process, timeout time.Duration) {
	t.Helper()
	select {
	case <-p.done:
	case <-time.After(timeout):
		t.Fatal("timeout waiting for process to exit")
	}
}

func TestLaunchRunning(t *testing.T) {
	l, _ := newTestLauncher(t, "sleep 10")
	p := launch(t, l)

	if !p.Running() {
		t.Error("expected process to be running")
	}
	if p.PID() <= 0 {
		t.Errorf("expected positive pid, got %d", p.PID())
	}
	if p.StartedAt().IsZero() {
		t.Error("expected start time to be set")
	}
	if code := p.ExitCode(); code != -1 {
		t.Errorf("expected exit code -1 while running, got %d", code)
	}
	if info := p.info(); info.State != StateRunning {
		t.Errorf("expected StateRunning, got %v", info.State)
	}
}

func TestGracefulStop(t *testing.T) {
	l, _ := newTestLauncher(t, `sh -c "trap 'exit 0' TERM; while :; do sleep 0.1; done"`)
	p := launch(t, l)
	time.Sleep(100 * time.Millisecond)

	if result := p.Stop(); result != StopGraceful {
		t.Errorf("expected StopGraceful, got %v", result)
	}
	if p.Running() {
		t.Error("expected process to be stopped")
	}
	if info := p.info(); info.State != StateStopped {
		t.Errorf("expected StateStopped, got %v", info.State)
	}
	if code := p.ExitCode(); code != 0 {
		t.Errorf("expected exit code 0, got %d", code)
	}
}

func TestForceKillOnTimeout(t *testing.T) {
	l, _ := newTestLauncher(t, `sh -c "trap '' TERM; sleep 10"`)
	l.cfg.GracefulTimeout = 200 * time.Millisecond
	p := launch(t, l)
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	result := p.Stop()
	elapsed := time.Since(start)

	if result != StopForced {
		t.Errorf("expected StopForced, got %v", result)
	}
	if elapsed < 200*time.Millisecond {
		t.Errorf("kill happened before graceful timeout: %v", elapsed)
	}
	if elapsed > time.Second {
		t.Errorf("kill took too long: %v", elapsed)
	}
	if code := p.ExitCode(); code != 137 {
		t.Errorf("expected exit code 137, got %d", code)
	}
}

func TestStopAlreadyExited(t *testing.T) {
	l, _ := newTestLauncher(t, "true")
	p := launch(t, l)
	waitDone(t, p, time.Second)

	var signals atomic.Int32
	p.signal = func(os.Signal) error {
		signals.Add(1)
		return nil
	}
	p.kill = func() error {
		signals.Add(1)
		return nil
	}

	if result := p.Stop(); result != StopAlreadyExited {
		t.Errorf("expected StopAlreadyExited, got %v", result)
	}
	if info := p.info(); info.State != StateCrashed {
		t.Errorf("expected StateCrashed, got %v", info.State)
	}
	if n := signals.Load(); n != 0 {
		t.Errorf("expected no signals, got %d", n)
	}
}

func TestStopIdempotent(t *testing.T) {
	l, _ := newTestLauncher(t, `sh -c "trap 'exit 0' TERM; while :; do sleep 0.1; done"`)
	p := launch(t, l)
	time.Sleep(50 * time.Millisecond)

	var signals atomic.Int32
	send := p.signal
	p.signal = func(sig os.Signal) error {
		signals.Add(1)
		return send(sig)
	}
	var kills atomic.Int32
	p.kill = func() error {
		kills.Add(1)
		return nil
	}

	if result := p.Stop(); result != StopGraceful {
		t.Fatalf("expected StopGraceful, got %v", result)
	}
	if result := p.Stop(); result != StopAlreadyExited {
		t.Errorf("expected StopAlreadyExited on second stop, got %v", result)
	}
	if n := signals.Load(); n != 1 {
		t.Errorf("expected exactly one stop signal, got %d", n)
	}
	if n := kills.Load(); n != 0 {
		t.Errorf("expected no kill, got %d", n)
	}
}

func TestCrashDetected(t *testing.T) {
	l, _ := newTestLauncher(t, "sh -c 'exit 42'")
	p := launch(t, l)
	waitDone(t, p, time.Second)

	if p.Running() {
		t.Error("expected process to have exited")
	}
	if code := p.ExitCode(); code != 42 {
		t.Errorf("expected exit code 42, got %d", code)
	}
	if p.exitError() == nil {
		t.Error("expected exit error")
	}
}

func TestLaunchNonExistentCommand(t *testing.T) {
	l, _ := newTestLauncher(t, "/nonexistent/command/that/does/not/exist")
	if _, err := l.Launch(); err == nil {
		t.Error("expected error for missing executable")
	}
}

func TestLaunchInvalidCommand(t *testing.T) {
	l, _ := newTestLauncher(t, `echo "unclosed`)
	if _, err := l.Launch(); !errors.Is(err, ErrUnclosedQuote) {
		t.Errorf("expected ErrUnclosedQuote, got %v", err)
	}
}

func TestLaunchEmptyCommand(t *testing.T) {
	l, _ := newTestLauncher(t, "   ")
	if _, err := l.Launch(); !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("expected ErrEmptyCommand, got %v", err)
	}
}

func TestLaunchWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	l, _ := newTestLauncher(t, "sh -c 'pwd > where.txt'")
	l.cfg.Dir = dir
	p := launch(t, l)
	waitDone(t, p, time.Second)

	data, err := os.ReadFile(filepath.Join(dir, "where.txt"))
	if err != nil {
		t.Fatalf("expected child to write in its working directory: %v", err)
	}
	got, _ := filepath.EvalSymlinks(strings.TrimSpace(string(data)))
	want, _ := filepath.EvalSymlinks(dir)
	if got != want {
		t.Errorf("working directory = %q, want %q", got, want)
	}
}

func TestLaunchEnv(t *testing.T) {
	dir := t.TempDir()
	l, _ := newTestLauncher(t, `sh -c 'echo "$AQI_TEST_VALUE" > env.txt'`)
	l.cfg.Dir = dir
	l.cfg.Env = []string{"AQI_TEST_VALUE=forecast"}
	p := launch(t, l)
	waitDone(t, p, time.Second)

	data, err := os.ReadFile(filepath.Join(dir, "env.txt"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != "forecast" {
		t.Errorf("env value = %q, want %q", got, "forecast")
	}
}

func TestSinksAppendAcrossLaunches(t *testing.T) {
	dir := t.TempDir()
	sinks, err := OpenSinks(dir)
	if err != nil {
		t.Fatalf("OpenSinks failed: %v", err)
	}
	defer sinks.Close()

	l := NewLauncher(LauncherConfig{Command: `sh -c "echo out; echo err >&2"`}, sinks, testLogger())
	for i := 0; i < 2; i++ {
		p, launchErr := l.Launch()
		if launchErr != nil {
			t.Fatalf("Launch failed: %v", launchErr)
		}
		waitDone(t, p, time.Second)
	}

	stdout, _ := os.ReadFile(filepath.Join(dir, StdoutLogName))
	if got := strings.Count(string(stdout), "out\n"); got != 2 {
		t.Errorf("expected 2 stdout lines, got %d: %q", got, stdout)
	}
	stderr, _ := os.ReadFile(filepath.Join(dir, StderrLogName))
	if got := strings.Count(string(stderr), "err\n"); got != 2 {
		t.Errorf("expected 2 stderr lines, got %d: %q", got, stderr)
	}
}

func TestOpenSinksPreservesHistory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, StdoutLogName)
	if err := os.WriteFile(path, []byte("previous run\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	sinks, err := OpenSinks(dir)
	if err != nil {
		t.Fatalf("OpenSinks failed: %v", err)
	}
	if _, err := sinks.Stdout.WriteString("new run\n"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	sinks.Close()

	data, _ := os.ReadFile(path)
	if string(data) != "previous run\nnew run\n" {
		t.Errorf("unexpected sink contents %q", data)
	}
}

func TestCustomStopSignal(t *testing.T) {
	l, _ := newTestLauncher(t, `sh -c "trap 'exit 3' INT; trap '' TERM; while :; do sleep 0.1; done"`)
	l.cfg.StopSignal = syscall.SIGINT
	p := launch(t, l)
	time.Sleep(100 * time.Millisecond)

	if result := p.Stop(); result != StopGraceful {
		t.Errorf("expected StopGraceful, got %v", result)
	}
	if code := p.ExitCode(); code != 3 {
		t.Errorf("expected exit code 3, got %d", code)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    []string
		wantErr error
	}{
		{"simple", "python3 server.py", []string{"python3", "server.py"}, nil},
		{"double quotes", `sh -c "echo hi"`, []string{"sh", "-c", "echo hi"}, nil},
		{"single quotes", `sh -c 'echo "hi"'`, []string{"sh", "-c", `echo "hi"`}, nil},
		{"escapes", `echo hello\ world`, []string{"echo", "hello world"}, nil},
		{"tabs and spaces", "  python3\t server.py  ", []string{"python3", "server.py"}, nil},
		{"unclosed", `echo "oops`, nil, ErrUnclosedQuote},
		{"empty", "", nil, ErrEmptyCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.command)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParseCommand(%q) error = %v, want %v", tt.command, err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ParseCommand(%q) = %v, want %v", tt.command, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("arg %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestStopResultString(t *testing.T) {
	if StopGraceful.String() != "graceful" || StopForced.String() != "forced" || StopAlreadyExited.String() != "already_exited" {
		t.Error("unexpected StopResult strings")
	}
}

func TestParseSignal(t *testing.T) {
	tests := []struct {
		in      string
		want    syscall.Signal
		wantErr bool
	}{
		{"TERM", syscall.SIGTERM, false},
		{"sigint", syscall.SIGINT, false},
		{" SIGHUP ", syscall.SIGHUP, false},
		{"KILL", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSignal(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSignal(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSignal(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
