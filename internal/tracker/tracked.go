package tracker

import (
	"time"

	"github.com/bsantraigi/ntfy-agent/internal/snapshot"
)

// State is the lifecycle state of a tracked process.
type State string

const (
	StateRunning  State = "running"
	StateUnknown  State = "unknown" // absent from the last sample(s), grace window open
	StateFinished State = "finished"
	StateCrashed  State = "crashed"
)

// Terminal reports whether no further transitions can occur.
func (s State) Terminal() bool { return s == StateFinished || s == StateCrashed }

// Metrics is the last observed usage snapshot of a process. It is retained
// after the process exits so notifications and the UI can report it.
type Metrics struct {
	CPUPercent     float64 `json:"cpu_percent"`
	MemoryRSS      uint64  `json:"memory_rss"`
	MemoryPct      float32 `json:"memory_percent"`
	GPUMemoryMiB   float64 `json:"gpu_memory_mib,omitempty"`
	GPUUtilPercent float64 `json:"gpu_util_percent,omitempty"`
	HasGPU         bool    `json:"has_gpu,omitempty"`
}

func metricsFrom(rec snapshot.ProcessRecord) Metrics {
	m := Metrics{
		CPUPercent: rec.CPUPercent,
		MemoryRSS:  rec.MemoryRSS,
		MemoryPct:  rec.MemoryPct,
	}
	if rec.GPU != nil {
		m.HasGPU = true
		m.GPUMemoryMiB = rec.GPU.MemoryMiB
		m.GPUUtilPercent = rec.GPU.UtilPercent
	}
	return m
}

// TrackedProcess is the persisted entity for one monitored process.
type TrackedProcess struct {
	Key       Key       `json:"key"`
	Cmdline   string    `json:"cmdline"`
	User      string    `json:"user"`
	State     State     `json:"state"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	EndedAt   time.Time `json:"ended_at,omitzero"`
	Metrics   Metrics   `json:"last_metrics"`

	// Notified records that a terminal-state notification was delivered
	// for this key. It survives daemon restarts; a notification is never
	// intentionally sent twice for the same key.
	Notified bool `json:"notified"`

	// Missed counts consecutive sampling cycles the key was absent while
	// the grace window is open. Reset on reappearance.
	Missed int `json:"missed_cycles,omitempty"`
}

// Runtime is how long the process has been (or was) alive.
func (p *TrackedProcess) Runtime(now time.Time) time.Duration {
	end := now
	if !p.EndedAt.IsZero() {
		end = p.EndedAt
	}
	d := end.Sub(p.Key.Started())
	if d < 0 {
		return 0
	}
	return d
}

// Set is the full persisted tracked-set, keyed by Key.String().
// Entries are never removed by reconciliation; only an explicit prune
// policy deletes terminal entries.
type Set struct {
	Procs map[string]*TrackedProcess `json:"processes"`
}

func NewSet() *Set {
	return &Set{Procs: make(map[string]*TrackedProcess)}
}

func (s *Set) Get(k Key) (*TrackedProcess, bool) {
	p, ok := s.Procs[k.String()]
	return p, ok
}

func (s *Set) Len() int { return len(s.Procs) }

// CountByState returns the number of entries per lifecycle state.
func (s *Set) CountByState() map[State]int {
	counts := make(map[State]int, 4)
	for _, p := range s.Procs {
		counts[p.State]++
	}
	return counts
}

// Prune removes terminal entries that ended before cutoff and returns how
// many were dropped.
func (s *Set) Prune(cutoff time.Time) int {
	n := 0
	for ks, p := range s.Procs {
		if p.State.Terminal() && !p.EndedAt.IsZero() && p.EndedAt.Before(cutoff) {
			delete(s.Procs, ks)
			n++
		}
	}
	return n
}
