package process

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// Names of the persistent child output files inside the log directory.
const (
	StdoutLogName = "server_stdout.log"
	StderrLogName = "server_stderr.log"
)

// DefaultGracefulTimeout is how long a child gets to exit after the stop signal.
const DefaultGracefulTimeout = 10 * time.Second

// Command parsing errors.
var (
	ErrEmptyCommand  = errors.New("empty command")
	ErrUnclosedQuote = errors.New("unclosed quote in command")
)

// Sinks are the append-only files that receive the child's raw output.
// They are opened once per supervisor run and shared by every launch so the
// history survives restarts.
type Sinks struct {
	Stdout *os.File
	Stderr *os.File
}

// OpenSinks creates dir if needed and opens the stdout/stderr files in append mode.
func OpenSinks(dir string) (*Sinks, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	stdout, err := openAppend(filepath.Join(dir, StdoutLogName))
	if err != nil {
		return nil, err
	}
	stderr, err := openAppend(filepath.Join(dir, StderrLogName))
	if err != nil {
		stdout.Close()
		return nil, err
	}
	return &Sinks{Stdout: stdout, Stderr: stderr}, nil
}

// Close closes both files.
func (s *Sinks) Close() error {
	return errors.Join(s.Stdout.Close(), s.Stderr.Close())
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// LauncherConfig configures how children are spawned and stopped.
type LauncherConfig struct {
	// Command is the child command line, e.g. "python3 server.py".
	Command string

	// Dir is the child's working directory.
	Dir string

	// Env is appended to the supervisor's environment.
	Env []string

	// StopSignal is the cooperative stop signal. Defaults to SIGTERM.
	StopSignal os.Signal

	// GracefulTimeout bounds the wait after StopSignal before SIGKILL.
	// Defaults to DefaultGracefulTimeout.
	GracefulTimeout time.Duration
}

// Launcher starts the configured child command.
type Launcher struct {
	cfg    LauncherConfig
	sinks  *Sinks
	logger *slog.Logger
}

// NewLauncher creates a launcher writing child output to sinks.
func NewLauncher(cfg LauncherConfig, sinks *Sinks, logger *slog.Logger) *Launcher {
	if cfg.StopSignal == nil {
		cfg.StopSignal = syscall.SIGTERM
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = DefaultGracefulTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{cfg: cfg, sinks: sinks, logger: logger}
}

// Launch spawns a new child. The returned error means the command could not be
// started at all; it is not retried.
func (l *Launcher) Launch() (*Process, error) {
	args, err := ParseCommand(l.cfg.Command)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = l.cfg.Dir
	cmd.SysProcAttr = sysProcAttr()
	if len(l.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), l.cfg.Env...)
	}
	if l.sinks != nil {
		cmd.Stdout = l.sinks.Stdout
		cmd.Stderr = l.sinks.Stderr
	}

	l.logger.Info("Starting server", "command", l.cfg.Command, "dir", l.cfg.Dir)

	p := &Process{
		cmd:             cmd,
		logger:          l.logger,
		stopSignal:      l.cfg.StopSignal,
		gracefulTimeout: l.cfg.GracefulTimeout,
	}
	if err := p.start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", args[0], err)
	}

	l.logger.Info("Server started", "pid", p.PID())
	return p, nil
}

// ParseCommand splits a command line into arguments.
// Handles single and double quotes and backslash escapes.
func ParseCommand(command string) ([]string, error) {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)

	runes := []rune(strings.TrimSpace(command))

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' || r == '\'':
			switch {
			case !inQuote:
				inQuote = true
				quoteChar = r
			case r == quoteChar:
				inQuote = false
				quoteChar = 0
			default:
				current.WriteRune(r)
			}
		case (r == ' ' || r == '\t') && !inQuote:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		case r == '\\' && i+1 < len(runes):
			i++
			current.WriteRune(runes[i])
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		args = append(args, current.String())
	}

	if inQuote {
		return nil, ErrUnclosedQuote
	}
	if len(args) == 0 {
		return nil, ErrEmptyCommand
	}
	return args, nil
}
