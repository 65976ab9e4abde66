package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// ErrSnapshotUnavailable indicates the whole process table could not be
// enumerated this cycle. Callers should skip the cycle and retry next tick.
var ErrSnapshotUnavailable = errors.New("process snapshot unavailable")

// Source produces a point-in-time list of observed OS processes.
type Source interface {
	Snapshot(ctx context.Context) ([]ProcessRecord, error)
}

// SystemSource enumerates the live process table via gopsutil.
// GPU is optional; when set, per-process GPU usage is attached to records.
type SystemSource struct {
	GPU GPUQuerier
}

func NewSystemSource(gpu GPUQuerier) *SystemSource {
	return &SystemSource{GPU: gpu}
}

func (s *SystemSource) Snapshot(ctx context.Context) ([]ProcessRecord, error) {
	procs, err := gopsproc.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotUnavailable, err)
	}

	var gpu map[int32]GPUStat
	if s.GPU != nil {
		// GPU data is best-effort; a failing probe never fails the snapshot.
		gpu, _ = s.GPU.Query(ctx)
	}

	out := make([]ProcessRecord, 0, len(procs))
	for _, p := range procs {
		rec, ok := readRecord(ctx, p)
		if !ok {
			continue
		}
		if st, found := gpu[rec.PID]; found {
			g := st
			rec.GPU = &g
		}
		out = append(out, rec)
	}
	return out, nil
}

// readRecord collects the fields of one process. Processes that vanish or
// deny access mid-read are skipped rather than failing the snapshot.
func readRecord(ctx context.Context, p *gopsproc.Process) (ProcessRecord, bool) {
	createMs, err := p.CreateTimeWithContext(ctx)
	if err != nil || createMs <= 0 {
		return ProcessRecord{}, false
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return ProcessRecord{}, false
	}

	rec := ProcessRecord{
		PID:       p.Pid,
		Name:      name,
		StartedAt: time.UnixMilli(createMs).UTC(),
	}

	if args, err := p.CmdlineSliceWithContext(ctx); err == nil {
		rec.Cmdline = strings.Join(args, " ")
	}
	if rec.Cmdline == "" {
		rec.Cmdline = name
	}
	if user, err := p.UsernameWithContext(ctx); err == nil {
		rec.User = user
	}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		rec.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		rec.MemoryRSS = mem.RSS
	}
	if pct, err := p.MemoryPercentWithContext(ctx); err == nil {
		rec.MemoryPct = pct
	}
	return rec, true
}
