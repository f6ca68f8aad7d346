// Package version holds build metadata injected with -ldflags -X.
package version

import (
	"fmt"
	"runtime"
)

// Name is the binary name used in banners and the version command.
const Name = "aqiwatch"

// Set via -ldflags "-X github.com/smazurov/aqiwatch/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	BuildID   = "unknown"
)

// Info contains version and build metadata.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	BuildID   string `json:"build_id"`
	GoVersion string `json:"go_version"`
	Compiler  string `json:"compiler"`
	Platform  string `json:"platform"`
}

// Get returns version and build information.
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		BuildID:   BuildID,
		GoVersion: runtime.Version(),
		Compiler:  runtime.Compiler,
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns the bare version.
func String() string {
	return Version
}

// Banner returns a one-line description such as "aqiwatch dev (unknown, linux/amd64)".
func (i Info) Banner() string {
	return fmt.Sprintf("%s %s (%s, %s)", Name, i.Version, i.GitCommit, i.Platform)
}

// LogAttrs returns the build fields as slog key/value pairs.
func (i Info) LogAttrs() []any {
	return []any{
		"version", i.Version,
		"commit", i.GitCommit,
		"built", i.BuildDate,
		"go", i.GoVersion,
	}
}
