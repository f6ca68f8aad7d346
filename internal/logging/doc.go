// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// Every record is fanned out through a MultiHandler to:
//   - the console (stdout, or Config.Console), as text or JSON
//   - the systemd journal when journald is reachable
//   - the per-run log file (Config.File), one "[YYYY-MM-DD HH:MM:SS] msg" line per record
//   - an in-memory ring buffer served by the status API
//
// # Usage
//
// Open the run file and initialize once at startup:
//
//	f, err := logging.OpenRunFile("logs", time.Now())
//	if err != nil {
//		return err
//	}
//	defer f.Close()
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		File:   f,
//		Modules: map[string]string{
//			"supervisor": "debug",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("supervisor")
//	logger.Info("Server started", "pid", pid)
//
// # Viewing Logs
//
//	journalctl -t aqiwatch -f
//	journalctl -t aqiwatch MODULE=supervisor
//	tail -f logs/server_*.log
package logging
