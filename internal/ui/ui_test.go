package ui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsantraigi/ntfy-agent/internal/store"
	"github.com/bsantraigi/ntfy-agent/internal/tracker"
)

func writeBadState(path string) error {
	return os.WriteFile(path, []byte("{broken"), 0o644)
}

func proc(pid int32, started time.Time, state tracker.State, cpu float64, rss uint64, gpuMiB float64) *tracker.TrackedProcess {
	p := &tracker.TrackedProcess{
		Key:     tracker.Key{PID: pid, StartMs: started.UnixMilli()},
		Cmdline: "python train.py",
		User:    "alice",
		State:   state,
		Metrics: tracker.Metrics{CPUPercent: cpu, MemoryRSS: rss},
	}
	if gpuMiB > 0 {
		p.Metrics.HasGPU = true
		p.Metrics.GPUMemoryMiB = gpuMiB
	}
	if state.Terminal() {
		p.EndedAt = started.Add(time.Hour)
	}
	return p
}

func TestSortProcs(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := proc(1, now.Add(-time.Hour), tracker.StateRunning, 90, 1<<20, 0)
	b := proc(2, now.Add(-2*time.Hour), tracker.StateRunning, 10, 8<<20, 4000)
	c := proc(3, now.Add(-time.Minute), tracker.StateRunning, 50, 4<<20, 1000)

	procs := []*tracker.TrackedProcess{a, b, c}

	sortProcs(procs, SortCPU, true, now)
	assert.Equal(t, []int32{1, 3, 2}, pids(procs))

	sortProcs(procs, SortMemory, true, now)
	assert.Equal(t, []int32{2, 3, 1}, pids(procs))

	sortProcs(procs, SortRuntime, true, now)
	assert.Equal(t, []int32{2, 1, 3}, pids(procs))

	sortProcs(procs, SortGPU, true, now)
	assert.Equal(t, []int32{2, 3, 1}, pids(procs))

	sortProcs(procs, SortCPU, false, now)
	assert.Equal(t, []int32{2, 3, 1}, pids(procs))
}

func pids(procs []*tracker.TrackedProcess) []int32 {
	out := make([]int32, len(procs))
	for i, p := range procs {
		out[i] = p.Key.PID
	}
	return out
}

func TestSortKeyCycles(t *testing.T) {
	k := SortCPU
	seen := map[SortKey]bool{k: true}
	for i := 0; i < 3; i++ {
		k = k.Next()
		seen[k] = true
	}
	assert.Len(t, seen, 4)
	assert.Equal(t, SortCPU, k.Next())
}

func TestModelKeyHandling(t *testing.T) {
	st := store.New(filepath.Join(t.TempDir(), "state.json"))
	m := NewModel(st)

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	m = next.(Model)
	assert.Equal(t, SortMemory, m.sortKey)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	m = next.(Model)
	assert.False(t, m.sortDesc)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'a'}})
	m = next.(Model)
	assert.True(t, m.showAll)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestVisibleHidesTerminalByDefault(t *testing.T) {
	st := store.New(filepath.Join(t.TempDir(), "state.json"))
	set := tracker.NewSet()
	now := time.Now()
	running := proc(1, now.Add(-time.Hour), tracker.StateRunning, 10, 1<<20, 0)
	done := proc(2, now.Add(-2*time.Hour), tracker.StateFinished, 0, 0, 0)
	set.Procs[running.Key.String()] = running
	set.Procs[done.Key.String()] = done
	require.NoError(t, st.Save(set))

	m := NewModel(st)
	msg := m.loadCmd()()
	next, _ := m.Update(msg)
	m = next.(Model)

	assert.Equal(t, []int32{1}, pids(m.visible()))

	m.showAll = true
	assert.Len(t, m.visible(), 2)
}

func TestViewRendersRowsAndCounts(t *testing.T) {
	st := store.New(filepath.Join(t.TempDir(), "state.json"))
	set := tracker.NewSet()
	p := proc(4242, time.Now().Add(-time.Hour), tracker.StateRunning, 87.5, 2<<30, 11000)
	set.Procs[p.Key.String()] = p
	require.NoError(t, st.Save(set))

	m := NewModel(st)
	msg := m.loadCmd()()
	next, _ := m.Update(msg)
	m = next.(Model)
	m.width = 120

	out := m.View()
	assert.Contains(t, out, "4242")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "python train.py")
	assert.Contains(t, out, "1 running")
	assert.Contains(t, out, "MiB")
}

func TestViewShowsLoadError(t *testing.T) {
	st := store.New(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, writeBadState(st.Path))

	m := NewModel(st)
	msg := m.loadCmd()()
	next, _ := m.Update(msg)
	m = next.(Model)

	assert.True(t, strings.Contains(m.View(), "state read failed"))
}
