// Package process launches and stops the supervised server child.
//
// A Launcher spawns the configured command with its output appended to the
// persistent Sinks files. Each launch yields a Process, which is owned by the
// caller until the OS confirms its exit:
//   - Running is a non-blocking liveness check
//   - Stop sends the cooperative stop signal (SIGTERM by default), waits up to
//     the graceful timeout and then SIGKILLs the process group
//   - Stop is idempotent and sends nothing to a process that already exited
//
// Example:
//
//	sinks, _ := process.OpenSinks("logs")
//	defer sinks.Close()
//	launcher := process.NewLauncher(process.LauncherConfig{
//	    Command:         "python3 server.py",
//	    GracefulTimeout: 10 * time.Second,
//	}, sinks, logger)
//	proc, err := launcher.Launch()
//	if err != nil {
//	    return err
//	}
//	defer proc.Stop()
package process
