package ui

import (
	"sort"
	"time"

	"github.com/bsantraigi/ntfy-agent/internal/tracker"
)

// SortKey selects the column the process table is ordered by.
type SortKey string

const (
	SortCPU     SortKey = "cpu"
	SortMemory  SortKey = "memory"
	SortRuntime SortKey = "time"
	SortGPU     SortKey = "gpu"
)

var sortOrder = []SortKey{SortCPU, SortMemory, SortRuntime, SortGPU}

// Next cycles to the following sort column.
func (k SortKey) Next() SortKey {
	for i, s := range sortOrder {
		if s == k {
			return sortOrder[(i+1)%len(sortOrder)]
		}
	}
	return SortCPU
}

// sortProcs orders procs in place. desc means highest first, the usual
// top-style view. Ties fall back to the key string so the order is stable
// across refreshes.
func sortProcs(procs []*tracker.TrackedProcess, k SortKey, desc bool, now time.Time) {
	value := func(p *tracker.TrackedProcess) float64 {
		switch k {
		case SortMemory:
			return float64(p.Metrics.MemoryRSS)
		case SortRuntime:
			return p.Runtime(now).Seconds()
		case SortGPU:
			return p.Metrics.GPUMemoryMiB
		default:
			return p.Metrics.CPUPercent
		}
	}
	sort.Slice(procs, func(i, j int) bool {
		vi, vj := value(procs[i]), value(procs[j])
		if vi != vj {
			if desc {
				return vi > vj
			}
			return vi < vj
		}
		return procs[i].Key.String() < procs[j].Key.String()
	})
}
