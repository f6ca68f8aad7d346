package preflight

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func findResult(t *testing.T, results []Result, name string) Result {
	t.Helper()
	for _, r := range results {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no result named %q in %+v", name, results)
	return Result{}
}

func TestRunAllPassing(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "server.py"), []byte("print('hi')\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LANG", "C.UTF-8")

	results := Run(Config{
		Command:       "sh server.py",
		WorkDir:       dir,
		LogDir:        "logs",
		RequiredFiles: []string{"server.py"},
		Port:          "127.0.0.1:0",
		EnvVars:       []string{"LANG"},
	})

	if Failed(results) {
		t.Fatalf("unexpected failure: %+v", results)
	}
	if r := findResult(t, results, "server.py"); r.Detail != "12 bytes" {
		t.Errorf("server.py detail = %q", r.Detail)
	}
	if r := findResult(t, results, "LANG"); r.Detail != "C.UTF-8" {
		t.Errorf("LANG detail = %q", r.Detail)
	}
	if _, err := os.Stat(filepath.Join(dir, "logs")); err != nil {
		t.Errorf("log directory should be created: %v", err)
	}
}

func TestRunReportsFailures(t *testing.T) {
	dir := t.TempDir()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	os.Unsetenv("AQIWATCH_TEST_UNSET")

	results := Run(Config{
		Command:       "definitely-not-a-real-binary-xyz --port 5000",
		WorkDir:       dir,
		LogDir:        "logs",
		RequiredFiles: []string{"improved_aqi_model.h5"},
		Port:          ln.Addr().String(),
		EnvVars:       []string{"AQIWATCH_TEST_UNSET"},
	})

	if !Failed(results) {
		t.Fatal("expected failures")
	}

	tests := []struct {
		name string
		want Status
	}{
		{"working directory", StatusOK},
		{"server command", StatusFail},
		{"improved_aqi_model.h5", StatusFail},
		{"log directory", StatusOK},
		{"port " + ln.Addr().String(), StatusFail},
		{"AQIWATCH_TEST_UNSET", StatusWarn},
	}
	for _, tt := range tests {
		if got := findResult(t, results, tt.name).Status; got != tt.want {
			t.Errorf("%s = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestCheckWorkDirNotDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if r := checkWorkDir(file); r.Status != StatusFail {
		t.Errorf("status = %s, want fail", r.Status)
	}
}

func TestCheckCommandRelativePath(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "run.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	if r := checkCommand("./run.sh --flag", dir); r.Status != StatusOK {
		t.Errorf("relative executable: %+v", r)
	}
	if r := checkCommand(`python3 "unterminated`, dir); r.Status != StatusFail {
		t.Errorf("bad quoting should fail: %+v", r)
	}
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	Print(&buf, []Result{
		{Name: "server.py", Status: StatusOK, Detail: "10 bytes"},
		{Name: "LANG", Status: StatusWarn, Detail: "NOT SET"},
		{Name: "improved_aqi_model.h5", Status: StatusFail, Detail: "MISSING"},
	})

	out := buf.String()
	for _, want := range []string{"[✓] server.py", "[!] LANG", "[✗] improved_aqi_model.h5", "Some checks failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}
