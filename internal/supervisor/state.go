package supervisor

import "time"

// State is a step of the supervisor loop.
type State string

// Loop states.
const (
	StateLaunching         State = "launching"
	StatePolling           State = "polling"
	StateCrashDetected     State = "crash_detected"
	StateScheduleHit       State = "schedule_hit"
	StateExecutableChanged State = "executable_changed"
	StateSignalReceived    State = "signal_received"
	StateStopping          State = "stopping"
	StateTerminated        State = "terminated"
)

// Status is a point-in-time view of the supervisor for the status API.
type Status struct {
	RunID     string
	State     State
	PID       int // zero when no child is tracked
	Launches  int
	StartedAt time.Time
	Uptime    time.Duration
}
