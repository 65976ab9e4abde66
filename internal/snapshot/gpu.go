package snapshot

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const defaultGPUTimeout = 3 * time.Second

// GPUQuerier reports per-process GPU usage keyed by pid.
// Implementations must degrade gracefully: a host without a usable GPU
// stack returns an error which callers treat as "no GPU data".
type GPUQuerier interface {
	Query(ctx context.Context) (map[int32]GPUStat, error)
}

// NvidiaSMI queries compute processes through the nvidia-smi binary.
type NvidiaSMI struct {
	Path    string        // binary path, default "nvidia-smi"
	Timeout time.Duration // per-query bound, default 3s
}

func (n NvidiaSMI) Query(ctx context.Context) (map[int32]GPUStat, error) {
	bin := n.Path
	if bin == "" {
		bin = "nvidia-smi"
	}
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = defaultGPUTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// #nosec G204 -- binary path comes from operator config
	out, err := exec.CommandContext(ctx, bin,
		"--query-compute-apps=pid,used_memory,utilization.gpu",
		"--format=csv,noheader,nounits").Output()
	if err != nil {
		return nil, err
	}
	return parseComputeApps(string(out)), nil
}

// parseComputeApps reads nvidia-smi csv output of the form
// "pid, used_memory_mib, util_percent". Malformed lines are skipped;
// older drivers omit the utilization column.
func parseComputeApps(out string) map[int32]GPUStat {
	stats := make(map[int32]GPUStat)
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			continue
		}
		pid, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 32)
		if err != nil {
			continue
		}
		mem, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			continue
		}
		st := GPUStat{MemoryMiB: mem}
		if len(parts) >= 3 {
			if util, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64); err == nil {
				st.UtilPercent = util
			}
		}
		// A pid can hold contexts on multiple GPUs; usage accumulates.
		prev := stats[int32(pid)]
		prev.MemoryMiB += st.MemoryMiB
		if st.UtilPercent > prev.UtilPercent {
			prev.UtilPercent = st.UtilPercent
		}
		stats[int32(pid)] = prev
	}
	return stats
}
