package events

import "time"

// Event type constants for kelindar/event.
const (
	TypeChildStarted uint32 = iota + 1
	TypeChildExited
	TypeChildStopped
	TypeRestartScheduled
	TypeStateChanged
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// ChildStartedEvent is published after every successful launch.
type ChildStartedEvent struct {
	PID       int       `json:"pid"`
	Launch    int       `json:"launch"`
	StartedAt time.Time `json:"started_at"`
}

// Type returns the event type identifier for ChildStartedEvent.
func (e ChildStartedEvent) Type() uint32 { return TypeChildStarted }

// ChildExitedEvent is published when the liveness check finds the child dead.
type ChildExitedEvent struct {
	PID      int           `json:"pid"`
	ExitCode int           `json:"exit_code"`
	Uptime   time.Duration `json:"uptime"`
}

// Type returns the event type identifier for ChildExitedEvent.
func (e ChildExitedEvent) Type() uint32 { return TypeChildExited }

// ChildStoppedEvent is published after the stop sequence ran on a live child.
type ChildStoppedEvent struct {
	PID    int    `json:"pid"`
	Result string `json:"result"` // graceful or forced
}

// Type returns the event type identifier for ChildStoppedEvent.
func (e ChildStoppedEvent) Type() uint32 { return TypeChildStopped }

// RestartScheduledEvent is published when a restart is triggered without a crash.
type RestartScheduledEvent struct {
	PID    int           `json:"pid"`
	Reason string        `json:"reason"` // interval or executable_changed
	Uptime time.Duration `json:"uptime"`
}

// Type returns the event type identifier for RestartScheduledEvent.
func (e RestartScheduledEvent) Type() uint32 { return TypeRestartScheduled }

// StateChangedEvent is published on every supervisor state transition.
type StateChangedEvent struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Type returns the event type identifier for StateChangedEvent.
func (e StateChangedEvent) Type() uint32 { return TypeStateChanged }
