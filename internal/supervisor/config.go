package supervisor

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the loop timings. It is fixed for the lifetime of a Supervisor.
type Config struct {
	// RestartInterval is the uptime after which a healthy child is restarted.
	RestartInterval time.Duration

	// PollInterval is the liveness/schedule check cadence.
	PollInterval time.Duration

	// CrashDelay is the fixed wait between detecting a crash and relaunching.
	CrashDelay time.Duration

	// RestartPause is the wait between stopping a child for a scheduled
	// restart and launching its replacement. Zero relaunches immediately.
	RestartPause time.Duration
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		RestartInterval: 12 * time.Hour,
		PollInterval:    30 * time.Second,
		CrashDelay:      5 * time.Second,
		RestartPause:    2 * time.Second,
	}
}

// Validate checks that the timings make sense.
func (c Config) Validate() error {
	var errs []error
	if c.RestartInterval <= 0 {
		errs = append(errs, fmt.Errorf("restart interval must be positive, got %s", c.RestartInterval))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %s", c.PollInterval))
	}
	if c.CrashDelay < 0 {
		errs = append(errs, fmt.Errorf("crash delay must not be negative, got %s", c.CrashDelay))
	}
	if c.RestartPause < 0 {
		errs = append(errs, fmt.Errorf("restart pause must not be negative, got %s", c.RestartPause))
	}
	return errors.Join(errs...)
}
