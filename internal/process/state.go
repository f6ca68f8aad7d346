package process

import "time"

// State represents the lifecycle state of a supervised child process.
type State string

// Process states.
const (
	StateStarting State = "starting" // Being spawned
	StateRunning  State = "running"  // Active
	StateStopping State = "stopping" // Stop sequence in progress
	StateStopped  State = "stopped"  // Exited after a stop request
	StateCrashed  State = "crashed"  // Exited on its own
)

// Terminal reports whether the OS has confirmed the process exit.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateCrashed
}

// Info contains a snapshot of a managed process.
type Info struct {
	PID       int
	State     State
	StartedAt time.Time
	ExitCode  int
}

// StopResult describes how a stop sequence ended.
type StopResult int

// Stop outcomes.
const (
	StopAlreadyExited StopResult = iota // Nothing to do, process was gone
	StopGraceful                        // Exited after the cooperative stop signal
	StopForced                          // Killed after the graceful timeout
)

func (r StopResult) String() string {
	switch r {
	case StopGraceful:
		return "graceful"
	case StopForced:
		return "forced"
	default:
		return "already_exited"
	}
}
