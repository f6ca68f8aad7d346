package process

import (
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Process is a single launched child. It is created by a Launcher and is
// finished once the OS confirms the exit; a new Process is launched for every
// restart.
type Process struct {
	cmd             *exec.Cmd
	logger          *slog.Logger
	stopSignal      os.Signal
	gracefulTimeout time.Duration
	startedAt       time.Time

	// signal and kill are overridden in tests to observe delivery.
	signal func(os.Signal) error
	kill   func() error

	mu       sync.Mutex
	state    State
	exitCode int
	exitErr  error
	done     chan struct{}
}

// start spawns the command and begins reaping it in the background.
func (p *Process) start() error {
	p.state = StateStarting
	if err := p.cmd.Start(); err != nil {
		return err
	}
	p.startedAt = time.Now()
	p.done = make(chan struct{})
	p.signal = p.cmd.Process.Signal
	p.kill = p.killGroup

	p.mu.Lock()
	p.state = StateRunning
	p.mu.Unlock()

	go p.wait()
	return nil
}

// wait reaps the child and records how it ended.
func (p *Process) wait() {
	err := p.cmd.Wait()

	p.mu.Lock()
	p.exitErr = err
	p.exitCode = exitCodeFromError(err)
	if p.state == StateStopping {
		p.state = StateStopped
	} else {
		p.state = StateCrashed
	}
	p.mu.Unlock()

	close(p.done)
}

// PID returns the OS process identifier.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// StartedAt returns when the process was spawned.
func (p *Process) StartedAt() time.Time {
	return p.startedAt
}

// Running reports whether the process is still alive. It never blocks.
func (p *Process) Running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// ExitCode returns the exit code, or -1 while the process is alive.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.state.Terminal() {
		return -1
	}
	return p.exitCode
}

// exitError returns the error reported by wait, if any.
func (p *Process) exitError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// info returns a snapshot of the process.
func (p *Process) info() Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	info := Info{
		PID:       p.cmd.Process.Pid,
		State:     p.state,
		StartedAt: p.startedAt,
		ExitCode:  -1,
	}
	if p.state.Terminal() {
		info.ExitCode = p.exitCode
	}
	return info
}

// Stop runs the stop sequence: cooperative stop signal, wait up to the graceful
// timeout, then SIGKILL and wait for the OS to confirm the exit. Calling Stop on
// a process that has already exited (or is being stopped) sends nothing.
func (p *Process) Stop() StopResult {
	p.mu.Lock()
	switch {
	case p.state.Terminal():
		p.mu.Unlock()
		return StopAlreadyExited
	case p.state == StateStopping:
		p.mu.Unlock()
		<-p.done
		return StopAlreadyExited
	}
	p.state = StateStopping
	p.mu.Unlock()

	pid := p.PID()
	p.logger.Info("Stopping server", "pid", pid, "signal", p.stopSignal.String())
	if err := p.signal(p.stopSignal); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			<-p.done
			return StopAlreadyExited
		}
		p.logger.Warn("Failed to send stop signal", "pid", pid, "error", err)
	}

	timer := time.NewTimer(p.gracefulTimeout)
	defer timer.Stop()

	select {
	case <-p.done:
		p.logger.Info("Server stopped", "pid", pid, "exit_code", p.ExitCode())
		return StopGraceful
	case <-timer.C:
	}

	p.logger.Warn("Graceful shutdown timeout, forcing kill", "pid", pid, "timeout", p.gracefulTimeout)
	if err := p.kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Error("Failed to kill process", "pid", pid, "error", err)
	}
	<-p.done
	p.logger.Warn("Server force killed", "pid", pid)
	return StopForced
}

// killGroup sends SIGKILL to the child's process group, falling back to the
// child alone when the group is already gone.
func (p *Process) killGroup() error {
	if err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL); err == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// exitCodeFromError extracts exit code from process error.
// Returns 0 for nil error, the exit code for ExitError, or 1 for other errors.
// A child killed by a signal reports -1 from ExitCode; that is mapped to 128+signal.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return 128 + int(status.Signal())
		}
		return exitErr.ExitCode()
	}
	return 1
}
