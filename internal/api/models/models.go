package models

import "time"

// Health check models
type HealthData struct {
	Status        string `json:"status" example:"ok" enum:"ok,degraded" doc:"Service status"`
	Message       string `json:"message" example:"Server is running" doc:"Status message"`
	ServerRunning bool   `json:"server_running" doc:"Whether a server process is currently alive"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2024-12-15 14:30" doc:"Build timestamp"`
	BuildID   string `json:"build_id" example:"a1b2c3d4" doc:"Unique build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go compiler version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Compiler used"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Supervisor status models
type StatusData struct {
	RunID         string     `json:"run_id" example:"9b2f6c1e-3d4a-4f0b-8e7a-1c2d3e4f5a6b" doc:"Identifier of this supervisor run"`
	State         string     `json:"state" example:"polling" doc:"Current supervisor loop state"`
	PID           int        `json:"pid,omitempty" example:"4242" doc:"PID of the running server, absent when none"`
	Launches      int        `json:"launches" example:"3" doc:"Number of server launches in this run"`
	Restarts      int        `json:"restarts" example:"2" doc:"Launches after the first"`
	StartedAt     *time.Time `json:"started_at,omitempty" doc:"When the current server process started"`
	UptimeSeconds float64    `json:"uptime_seconds" example:"3600" doc:"Uptime of the current server process"`
}

type StatusResponse struct {
	Body StatusData
}

// Log models
type LogsInput struct {
	Limit  int    `query:"limit" minimum:"1" maximum:"500" default:"100" doc:"Maximum number of entries, newest last"`
	Module string `query:"module" example:"supervisor" doc:"Only return entries from this module"`
}

type LogEntry struct {
	Timestamp  time.Time      `json:"timestamp" doc:"Record time"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"supervisor" doc:"Emitting module"`
	Message    string         `json:"message" example:"Server started" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured attributes"`
}

type LogsData struct {
	Entries []LogEntry `json:"entries" doc:"Buffered log entries"`
	Count   int        `json:"count" example:"42" doc:"Number of entries returned"`
}

type LogsResponse struct {
	Body LogsData
}
