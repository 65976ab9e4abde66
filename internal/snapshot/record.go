package snapshot

import "time"

// ProcessRecord is one observed OS process within a single sampling cycle.
// PID alone is not a stable identity across cycles; pair it with StartedAt.
type ProcessRecord struct {
	PID        int32     `json:"pid"`
	Name       string    `json:"name"`
	Cmdline    string    `json:"cmdline"`
	User       string    `json:"user"`
	StartedAt  time.Time `json:"started_at"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryRSS  uint64    `json:"memory_rss"`
	MemoryPct  float32   `json:"memory_percent"`
	GPU        *GPUStat  `json:"gpu,omitempty"`
}

// GPUStat is per-process GPU usage reported by the GPU querier.
type GPUStat struct {
	MemoryMiB   float64 `json:"memory_mib"`
	UtilPercent float64 `json:"util_percent"`
}
