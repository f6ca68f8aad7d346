// Package preflight checks that the supervised server can start: the command
// resolves, its files are present, logs are writable and its port is free.
package preflight

import (
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/smazurov/aqiwatch/internal/process"
)

// Status is the outcome of one check.
type Status string

const (
	StatusOK   Status = "ok"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// Result is one line of the report.
type Result struct {
	Name   string
	Status Status
	Detail string
}

// Config selects what to check.
type Config struct {
	Command       string
	WorkDir       string
	LogDir        string   // resolved against WorkDir when relative
	RequiredFiles []string // resolved against WorkDir when relative
	Port          string   // host:port the server binds; empty skips the check
	EnvVars       []string // reported, never failed
}

// DefaultRequiredFiles are the files the AQI server needs next to it.
var DefaultRequiredFiles = []string{
	"server.py",
	"aqi_predictor.py",
	"improved_aqi_model.h5",
	"requirements.txt",
}

// DefaultEnvVars are reported because they change the server's behavior.
var DefaultEnvVars = []string{
	"PYTHONUNBUFFERED",
	"TF_CPP_MIN_LOG_LEVEL",
	"PYTHONIOENCODING",
	"LANG",
}

// Run executes every check in order.
func Run(cfg Config) []Result {
	results := []Result{
		checkWorkDir(cfg.WorkDir),
		checkCommand(cfg.Command, cfg.WorkDir),
	}
	for _, f := range cfg.RequiredFiles {
		results = append(results, checkFile(resolve(cfg.WorkDir, f)))
	}
	results = append(results, checkLogDir(resolve(cfg.WorkDir, cfg.LogDir)))
	if cfg.Port != "" {
		results = append(results, checkPort(cfg.Port))
	}
	for _, name := range cfg.EnvVars {
		results = append(results, checkEnv(name))
	}
	return results
}

// Failed reports whether any check failed.
func Failed(results []Result) bool {
	for _, r := range results {
		if r.Status == StatusFail {
			return true
		}
	}
	return false
}

// Print writes a human readable report.
func Print(w io.Writer, results []Result) {
	fmt.Fprintln(w, "=== PREFLIGHT ===")
	for _, r := range results {
		mark := "✓"
		switch r.Status {
		case StatusWarn:
			mark = "!"
		case StatusFail:
			mark = "✗"
		}
		fmt.Fprintf(w, "[%s] %-28s %s\n", mark, r.Name, r.Detail)
	}
	if Failed(results) {
		fmt.Fprintln(w, "\nSome checks failed; the server will probably not start.")
	} else {
		fmt.Fprintln(w, "\nAll required checks passed.")
	}
}

func resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}

func checkWorkDir(dir string) Result {
	r := Result{Name: "working directory"}
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fail(r, err.Error())
		}
		dir = wd
	}
	info, err := os.Stat(dir)
	switch {
	case err != nil:
		return fail(r, err.Error())
	case !info.IsDir():
		return fail(r, dir+" is not a directory")
	}
	return ok(r, dir)
}

func checkCommand(command, dir string) Result {
	r := Result{Name: "server command"}
	args, err := process.ParseCommand(command)
	if err != nil {
		return fail(r, err.Error())
	}

	name := args[0]
	if strings.ContainsRune(name, filepath.Separator) {
		name = resolve(dir, name)
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return fail(r, err.Error())
	}
	return ok(r, fmt.Sprintf("%s -> %s", args[0], path))
}

func checkFile(path string) Result {
	r := Result{Name: filepath.Base(path)}
	info, err := os.Stat(path)
	if err != nil {
		return fail(r, "MISSING")
	}
	return ok(r, fmt.Sprintf("%d bytes", info.Size()))
}

func checkLogDir(dir string) Result {
	r := Result{Name: "log directory"}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail(r, err.Error())
	}
	f, err := os.CreateTemp(dir, ".aqiwatch-check-*")
	if err != nil {
		return fail(r, "not writable: "+err.Error())
	}
	f.Close()
	os.Remove(f.Name())
	return ok(r, dir+" is writable")
}

func checkPort(addr string) Result {
	r := Result{Name: "port " + addr}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fail(r, "not available: "+err.Error())
	}
	ln.Close()
	return ok(r, "available")
}

func checkEnv(name string) Result {
	r := Result{Name: name}
	value, set := os.LookupEnv(name)
	if !set {
		r.Status = StatusWarn
		r.Detail = "NOT SET"
		return r
	}
	return ok(r, value)
}

func ok(r Result, detail string) Result {
	r.Status = StatusOK
	r.Detail = detail
	return r
}

func fail(r Result, detail string) Result {
	r.Status = StatusFail
	r.Detail = detail
	return r
}
