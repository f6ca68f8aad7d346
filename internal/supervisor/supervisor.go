package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/aqiwatch/internal/events"
	"github.com/smazurov/aqiwatch/internal/process"
)

// Child is a launched server process as seen by the loop.
// *process.Process satisfies it.
type Child interface {
	PID() int
	StartedAt() time.Time
	Running() bool
	ExitCode() int
	Stop() process.StopResult
}

// LaunchFunc starts a new child.
type LaunchFunc func() (Child, error)

// FromLauncher adapts a process.Launcher to a LaunchFunc.
func FromLauncher(l *process.Launcher) LaunchFunc {
	return func() (Child, error) {
		p, err := l.Launch()
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// Notifier receives service manager notifications.
type Notifier interface {
	Ready()
	Status(msg string)
	Stopping()
}

// Options configures a new Supervisor.
type Options struct {
	// Config holds the loop timings. Zero value fields are invalid; start from DefaultConfig.
	Config Config

	// Launch starts the child (required).
	Launch LaunchFunc

	// Logger for loop events. If nil, uses slog.Default().
	Logger *slog.Logger

	// Events receives lifecycle events (optional).
	Events *events.Bus

	// Notifier receives readiness and status updates (optional).
	Notifier Notifier

	// Changes delivers the path of a changed child executable (optional).
	Changes <-chan string

	// RunID identifies this supervisor run in logs and status.
	RunID string
}

// Supervisor keeps one server child alive: it relaunches after crashes,
// restarts on a fixed uptime schedule and stops the child on shutdown.
// Run drives a single-goroutine state machine; only Status may be called
// concurrently.
type Supervisor struct {
	cfg      Config
	launch   LaunchFunc
	logger   *slog.Logger
	events   *events.Bus
	notifier Notifier
	changes  <-chan string
	runID    string

	state     State
	afterStop State
	pause     time.Duration
	current   Child
	launches  int

	mu     sync.RWMutex
	status Status
}

// New creates a supervisor. It panics if opts.Launch is nil.
func New(opts *Options) *Supervisor {
	if opts == nil || opts.Launch == nil {
		panic("supervisor Options with Launch is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Supervisor{
		cfg:      opts.Config,
		launch:   opts.Launch,
		logger:   logger,
		events:   opts.Events,
		notifier: opts.Notifier,
		changes:  opts.Changes,
		runID:    opts.RunID,
		state:    StateLaunching,
		status:   Status{RunID: opts.RunID, State: StateLaunching},
	}
}

// Run drives the loop until ctx is cancelled (returns nil after stopping the
// child) or a launch fails (returns the error after stopping the child).
// Restarts are unlimited.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid supervisor config: %w", err)
	}

	s.logger.Info("Supervisor started",
		"run_id", s.runID,
		"restart_interval", s.cfg.RestartInterval,
		"poll_interval", s.cfg.PollInterval,
		"crash_delay", s.cfg.CrashDelay)

	for {
		switch s.state {
		case StateLaunching:
			if ctx.Err() != nil {
				s.transition(StateSignalReceived)
				continue
			}
			if err := s.launchChild(); err != nil {
				s.logger.Error("Fatal error, supervisor exiting", "error", err)
				s.stopChild()
				s.transition(StateTerminated)
				return err
			}
			s.transition(StatePolling)

		case StatePolling:
			s.transition(s.poll(ctx))

		case StateCrashDetected:
			uptime := time.Since(s.current.StartedAt())
			s.logger.Error("Server crashed",
				"pid", s.current.PID(),
				"exit_code", s.current.ExitCode(),
				"uptime_seconds", int(uptime.Seconds()))
			s.events.Publish(events.ChildExitedEvent{
				PID:      s.current.PID(),
				ExitCode: s.current.ExitCode(),
				Uptime:   uptime,
			})
			s.logger.Info("Restarting after crash", "delay", s.cfg.CrashDelay)
			s.stopThen(StateLaunching, s.cfg.CrashDelay)

		case StateScheduleHit:
			s.scheduleRestart("interval")

		case StateExecutableChanged:
			s.scheduleRestart("executable_changed")

		case StateSignalReceived:
			s.logger.Info("Shutting down")
			if s.notifier != nil {
				s.notifier.Stopping()
			}
			s.stopThen(StateTerminated, 0)

		case StateStopping:
			s.stopChild()
			next := s.afterStop
			if next == StateLaunching && !sleep(ctx, s.pause) {
				next = StateSignalReceived
			}
			s.transition(next)

		case StateTerminated:
			s.logger.Info("Supervisor stopped", "launches", s.launches)
			return nil

		default:
			return fmt.Errorf("unknown supervisor state %q", s.state)
		}
	}
}

// Status returns a snapshot of the loop.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	status := s.status
	s.mu.RUnlock()

	if status.PID != 0 {
		status.Uptime = time.Since(status.StartedAt)
	}
	return status
}

// poll runs one tick: liveness, then schedule, then a cancellable wait.
func (s *Supervisor) poll(ctx context.Context) State {
	if ctx.Err() != nil {
		return StateSignalReceived
	}
	if !s.current.Running() {
		return StateCrashDetected
	}
	if time.Since(s.current.StartedAt()) >= s.cfg.RestartInterval {
		return StateScheduleHit
	}

	timer := time.NewTimer(s.cfg.PollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return StateSignalReceived
	case path := <-s.changes:
		s.logger.Info("Server executable changed", "path", path)
		return StateExecutableChanged
	case <-timer.C:
		return StatePolling
	}
}

// scheduleRestart handles a restart that is not caused by a failure.
func (s *Supervisor) scheduleRestart(reason string) {
	uptime := time.Since(s.current.StartedAt())
	s.logger.Info("Scheduled restart",
		"reason", reason,
		"pid", s.current.PID(),
		"uptime_seconds", int(uptime.Seconds()))
	s.events.Publish(events.RestartScheduledEvent{
		PID:    s.current.PID(),
		Reason: reason,
		Uptime: uptime,
	})
	s.stopThen(StateLaunching, s.cfg.RestartPause)
}

// stopThen enters Stopping; after the child is gone the loop waits pause and
// moves to next.
func (s *Supervisor) stopThen(next State, pause time.Duration) {
	s.afterStop = next
	s.pause = pause
	s.transition(StateStopping)
}

// launchChild starts a new child and records it as current.
func (s *Supervisor) launchChild() error {
	s.launches++
	if s.launches > 1 {
		s.logger.Info(fmt.Sprintf("Restart #%d", s.launches))
	}

	child, err := s.launch()
	if err != nil {
		return fmt.Errorf("launch server: %w", err)
	}
	s.current = child

	s.mu.Lock()
	s.status.PID = child.PID()
	s.status.StartedAt = child.StartedAt()
	s.status.Launches = s.launches
	s.mu.Unlock()

	s.events.Publish(events.ChildStartedEvent{
		PID:       child.PID(),
		Launch:    s.launches,
		StartedAt: child.StartedAt(),
	})
	if s.notifier != nil {
		if s.launches == 1 {
			s.notifier.Ready()
		}
		s.notifier.Status(fmt.Sprintf("server running, pid %d, launch %d", child.PID(), s.launches))
	}
	return nil
}

// stopChild runs the stop sequence on the current child, if any, and forgets it.
func (s *Supervisor) stopChild() {
	if s.current == nil {
		return
	}
	pid := s.current.PID()
	if result := s.current.Stop(); result != process.StopAlreadyExited {
		s.events.Publish(events.ChildStoppedEvent{PID: pid, Result: result.String()})
	}
	s.current = nil

	s.mu.Lock()
	s.status.PID = 0
	s.status.StartedAt = time.Time{}
	s.mu.Unlock()
}

// transition moves the loop to next, publishing real changes.
func (s *Supervisor) transition(next State) {
	prev := s.state
	s.state = next
	if prev == next {
		return
	}

	s.mu.Lock()
	s.status.State = next
	s.mu.Unlock()

	s.logger.Debug("State changed", "from", prev, "to", next)
	s.events.Publish(events.StateChangedEvent{From: string(prev), To: string(next)})
}

// sleep waits for d unless ctx is cancelled first. Returns false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
