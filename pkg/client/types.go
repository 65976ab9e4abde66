package client

import "time"

// KeyInfo identifies a tracked process across pid reuse.
type KeyInfo struct {
	PID     int32 `json:"pid"`
	StartMs int64 `json:"start_ms"`
}

// MetricsInfo is the last observed usage snapshot of a process.
type MetricsInfo struct {
	CPUPercent     float64 `json:"cpu_percent"`
	MemoryRSS      uint64  `json:"memory_rss"`
	MemoryPct      float32 `json:"memory_percent"`
	GPUMemoryMiB   float64 `json:"gpu_memory_mib,omitempty"`
	GPUUtilPercent float64 `json:"gpu_util_percent,omitempty"`
	HasGPU         bool    `json:"has_gpu,omitempty"`
}

// ProcessInfo is one tracked process as served by /status.
type ProcessInfo struct {
	Key       KeyInfo     `json:"key"`
	Cmdline   string      `json:"cmdline"`
	User      string      `json:"user"`
	State     string      `json:"state"`
	FirstSeen time.Time   `json:"first_seen"`
	LastSeen  time.Time   `json:"last_seen"`
	EndedAt   time.Time   `json:"ended_at,omitempty"`
	Metrics   MetricsInfo `json:"last_metrics"`
	Notified  bool        `json:"notified"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Counts    map[string]int `json:"counts"`
	Processes []ProcessInfo  `json:"processes"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	OK            bool      `json:"ok"`
	LastCycle     time.Time `json:"last_cycle"`
	LastError     string    `json:"last_error,omitempty"`
	SaveFailures  int       `json:"consecutive_save_failures"`
	TrackedTotal  int       `json:"tracked_total"`
	CyclesRun     uint64    `json:"cycles_run"`
	NotifyPending int       `json:"notify_pending"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
