package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/google/uuid"
	"github.com/smazurov/aqiwatch/cmd"
	"github.com/smazurov/aqiwatch/internal/api"
	"github.com/smazurov/aqiwatch/internal/config"
	"github.com/smazurov/aqiwatch/internal/events"
	"github.com/smazurov/aqiwatch/internal/logging"
	"github.com/smazurov/aqiwatch/internal/metrics"
	"github.com/smazurov/aqiwatch/internal/preflight"
	"github.com/smazurov/aqiwatch/internal/process"
	"github.com/smazurov/aqiwatch/internal/supervisor"
	"github.com/smazurov/aqiwatch/internal/systemd"
	"github.com/smazurov/aqiwatch/internal/version"
	"github.com/smazurov/aqiwatch/internal/watch"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"aqiwatch.toml"`

	// Supervisor settings
	SupervisorCommand         string `help:"Server command line" default:"python3 server.py" toml:"supervisor.command" env:"SUPERVISOR_COMMAND"`
	SupervisorWorkDir         string `help:"Server working directory (default: directory of this binary)" toml:"supervisor.work_dir" env:"SUPERVISOR_WORK_DIR"`
	SupervisorRestartInterval string `help:"Uptime after which the server is restarted (default 12h)" toml:"supervisor.restart_interval" env:"SUPERVISOR_RESTART_INTERVAL"`
	SupervisorPollInterval    string `help:"Liveness check interval (default 30s)" toml:"supervisor.poll_interval" env:"SUPERVISOR_POLL_INTERVAL"`
	SupervisorCrashDelay      string `help:"Wait before relaunching a crashed server (default 5s)" toml:"supervisor.crash_delay" env:"SUPERVISOR_CRASH_DELAY"`
	SupervisorRestartPause    string `help:"Wait between stopping and relaunching on a scheduled restart (default 2s)" toml:"supervisor.restart_pause" env:"SUPERVISOR_RESTART_PAUSE"`
	SupervisorShutdownTimeout string `help:"Grace period after the stop signal before SIGKILL (default 10s)" toml:"supervisor.shutdown_timeout" env:"SUPERVISOR_SHUTDOWN_TIMEOUT"`
	SupervisorStopSignal      string `help:"Cooperative stop signal (TERM, INT, HUP, QUIT, USR1, USR2)" default:"TERM" toml:"supervisor.stop_signal" env:"SUPERVISOR_STOP_SIGNAL"`
	SupervisorWatchExecutable bool   `help:"Restart the server when its script or binary changes" default:"false" toml:"supervisor.watch_executable" env:"SUPERVISOR_WATCH_EXECUTABLE"`
	SupervisorWatchPath       string `help:"File to watch (default: the script argument or the resolved binary)" toml:"supervisor.watch_path" env:"SUPERVISOR_WATCH_PATH"`

	// Log files
	LogsDir string `help:"Directory for run logs and server output, relative to the work dir" default:"logs" toml:"logs.dir" env:"LOGS_DIR"`

	// Status API settings
	StatusAddr     string `help:"Status API listen address, empty disables it" toml:"status.addr" env:"STATUS_ADDR"`
	StatusUsername string `help:"Status API basic auth username" toml:"status.username" env:"STATUS_USERNAME"`
	StatusPassword string `help:"Status API basic auth password" toml:"status.password" env:"STATUS_PASSWORD"`

	// Logging settings
	LoggingLevel  string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat string `help:"Console logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
}

// settings are Options parsed into typed values.
type settings struct {
	supervisor      supervisor.Config
	shutdownTimeout time.Duration
	stopSignal      os.Signal
	workDir         string
	logDir          string
}

func main() {
	var cli humacli.CLI
	var current *Options
	var loadErr error

	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		current = opts
		loadErr = config.LoadConfig(opts, cli.Root())

		r := newRunner(opts, loadErr)
		hooks.OnStart(r.start)
		hooks.OnStop(r.stop)
	})

	cli.Root().Use = version.Name
	cli.Root().Short = "Keep the AQI prediction server running"
	cli.Root().AddCommand(cmd.CreateCheckCmd(func() preflight.Config {
		if loadErr != nil {
			fmt.Fprintln(os.Stderr, "warning: config:", loadErr)
		}
		workDir, err := resolveWorkDir(current.SupervisorWorkDir)
		if err != nil {
			workDir = current.SupervisorWorkDir
		}
		return preflight.Config{
			Command:       current.SupervisorCommand,
			WorkDir:       workDir,
			LogDir:        current.LogsDir,
			RequiredFiles: preflight.DefaultRequiredFiles,
			EnvVars:       preflight.DefaultEnvVars,
		}
	}))
	cli.Root().AddCommand(cmd.CreateVersionCmd())

	cli.Run()
}

// runner owns one supervisor run for the humacli start/stop hooks.
type runner struct {
	opts    *Options
	loadErr error
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	exit    func(code int)
}

func newRunner(opts *Options, loadErr error) *runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &runner{
		opts:    opts,
		loadErr: loadErr,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		exit:    os.Exit,
	}
}

// start runs the supervisor until shutdown. A clean stop returns so the
// process exits 0; any error exits 1.
func (r *runner) start() {
	defer close(r.done)
	if err := r.run(r.ctx); err != nil {
		fmt.Fprintln(os.Stderr, "aqiwatch:", err)
		r.exit(1)
	}
}

// stop runs on SIGINT/SIGTERM and returns once the server is down.
func (r *runner) stop() {
	r.cancel()
	<-r.done
}

func (r *runner) run(parent context.Context) error {
	if r.loadErr != nil {
		return fmt.Errorf("load config: %w", r.loadErr)
	}
	opts := r.opts

	set, err := parseSettings(opts)
	if err != nil {
		return err
	}

	startedAt := time.Now()
	runFile, err := logging.OpenRunFile(set.logDir, startedAt)
	if err != nil {
		return err
	}
	defer runFile.Close()

	logCfg := config.LoadLoggingConfig(opts.Config)
	logCfg.Level = opts.LoggingLevel
	logCfg.Format = opts.LoggingFormat
	logCfg.File = runFile
	logging.Initialize(logCfg)
	logger := logging.GetLogger("main")

	runID := uuid.NewString()
	build := version.Get()
	logger.Info(build.Banner(), build.LogAttrs()...)
	logger.Info("Supervisor configuration",
		"run_id", runID,
		"command", opts.SupervisorCommand,
		"work_dir", set.workDir,
		"log_dir", set.logDir,
		"run_log", filepath.Base(runFile.Name()),
		"restart_interval", set.supervisor.RestartInterval,
		"poll_interval", set.supervisor.PollInterval,
		"crash_delay", set.supervisor.CrashDelay,
		"shutdown_timeout", set.shutdownTimeout)

	ctx, stopSignals := supervisor.NotifyContext(parent, logger)
	defer stopSignals()

	sinks, err := process.OpenSinks(set.logDir)
	if err != nil {
		logger.Error("Failed to open server output logs", "error", err)
		return err
	}
	defer sinks.Close()

	launcher := process.NewLauncher(process.LauncherConfig{
		Command:         opts.SupervisorCommand,
		Dir:             set.workDir,
		StopSignal:      set.stopSignal,
		GracefulTimeout: set.shutdownTimeout,
	}, sinks, logging.GetLogger("process"))

	bus := events.New()
	defer metrics.Subscribe(bus)()

	var changes <-chan string
	if opts.SupervisorWatchExecutable {
		w, watchErr := startWatcher(opts, set.workDir)
		if watchErr != nil {
			logger.Warn("Executable watching disabled", "error", watchErr)
		} else {
			defer w.Stop()
			changes = w.Changes()
		}
	}

	sup := supervisor.New(&supervisor.Options{
		Config:   set.supervisor,
		Launch:   supervisor.FromLauncher(launcher),
		Logger:   logging.GetLogger("supervisor"),
		Events:   bus,
		Notifier: systemd.NewNotifier(logging.GetLogger("systemd")),
		Changes:  changes,
		RunID:    runID,
	})
	defer metrics.Track(sup)()

	if opts.StatusAddr != "" {
		server := api.NewServer(&api.Options{
			AuthUsername:   opts.StatusUsername,
			AuthPassword:   opts.StatusPassword,
			Status:         sup,
			EventBus:       bus,
			MetricsHandler: metrics.Handler(),
		})
		if startErr := server.Start(opts.StatusAddr); startErr != nil {
			logger.Error("Failed to start status API", "addr", opts.StatusAddr, "error", startErr)
			return fmt.Errorf("start status API: %w", startErr)
		}
		defer server.Stop()
	}

	return sup.Run(ctx)
}

// parseSettings validates Options and resolves paths.
func parseSettings(opts *Options) (settings, error) {
	var set settings
	var errs []error

	// Empty durations fall back to the supervisor and process defaults.
	duration := func(name, value string, fallback time.Duration) time.Duration {
		if value == "" {
			return fallback
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		return d
	}

	defaults := supervisor.DefaultConfig()
	set.supervisor = supervisor.Config{
		RestartInterval: duration("restart interval", opts.SupervisorRestartInterval, defaults.RestartInterval),
		PollInterval:    duration("poll interval", opts.SupervisorPollInterval, defaults.PollInterval),
		CrashDelay:      duration("crash delay", opts.SupervisorCrashDelay, defaults.CrashDelay),
		RestartPause:    duration("restart pause", opts.SupervisorRestartPause, defaults.RestartPause),
	}
	set.shutdownTimeout = duration("shutdown timeout", opts.SupervisorShutdownTimeout, process.DefaultGracefulTimeout)
	if set.shutdownTimeout <= 0 && len(errs) == 0 {
		errs = append(errs, errors.New("shutdown timeout must be positive"))
	}
	if len(errs) == 0 {
		if err := set.supervisor.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	sig, err := process.ParseSignal(opts.SupervisorStopSignal)
	if err != nil {
		errs = append(errs, err)
	}
	set.stopSignal = sig

	if _, err := process.ParseCommand(opts.SupervisorCommand); err != nil {
		errs = append(errs, fmt.Errorf("command: %w", err))
	}

	workDir, err := resolveWorkDir(opts.SupervisorWorkDir)
	if err != nil {
		errs = append(errs, err)
	}
	set.workDir = workDir
	set.logDir = opts.LogsDir
	if !filepath.IsAbs(set.logDir) {
		set.logDir = filepath.Join(workDir, set.logDir)
	}

	if len(errs) > 0 {
		return settings{}, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return set, nil
}

// resolveWorkDir returns dir as an absolute path, or the directory holding
// this binary when dir is empty.
func resolveWorkDir(dir string) (string, error) {
	if dir != "" {
		return filepath.Abs(dir)
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	if resolved, evalErr := filepath.EvalSymlinks(exe); evalErr == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

func startWatcher(opts *Options, workDir string) (*watch.Watcher, error) {
	target := opts.SupervisorWatchPath
	if target == "" {
		var err error
		if target, err = watchTarget(opts.SupervisorCommand, workDir); err != nil {
			return nil, err
		}
	} else if !filepath.IsAbs(target) {
		target = filepath.Join(workDir, target)
	}

	w, err := watch.New(target, logging.GetLogger("watch"))
	if err != nil {
		return nil, err
	}
	if err := w.Start(); err != nil {
		return nil, err
	}
	return w, nil
}

// watchTarget picks the file whose change should restart the server: the
// first non-flag argument when it names an existing file (the script for an
// interpreter), otherwise the resolved program.
func watchTarget(command, workDir string) (string, error) {
	args, err := process.ParseCommand(command)
	if err != nil {
		return "", err
	}
	if len(args) > 1 && !strings.HasPrefix(args[1], "-") {
		script := args[1]
		if !filepath.IsAbs(script) {
			script = filepath.Join(workDir, script)
		}
		if info, statErr := os.Stat(script); statErr == nil && !info.IsDir() {
			return script, nil
		}
	}

	program := args[0]
	if strings.ContainsRune(program, filepath.Separator) && !filepath.IsAbs(program) {
		program = filepath.Join(workDir, program)
	}
	path, err := exec.LookPath(program)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", args[0], err)
	}
	return path, nil
}
