package store

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsantraigi/ntfy-agent/internal/tracker"
)

func sampleSet(n int) *tracker.Set {
	set := tracker.NewSet()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		p := &tracker.TrackedProcess{
			Key:       tracker.Key{PID: int32(100 + i), StartMs: start.UnixMilli()},
			Cmdline:   "python3 train.py",
			User:      "alice",
			State:     tracker.StateRunning,
			FirstSeen: start,
			LastSeen:  start.Add(time.Minute),
			Metrics:   tracker.Metrics{CPUPercent: 50, MemoryRSS: 1 << 30},
		}
		set.Procs[p.Key.String()] = p
	}
	return set
}

func TestLoadMissingFileIsEmptySet(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "state.json"))
	set, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "state.json"))
	orig := sampleSet(3)
	require.NoError(t, s.Save(orig))

	got, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, orig.Len(), got.Len())
	for ks, p := range orig.Procs {
		gp, ok := got.Procs[ks]
		require.True(t, ok, "missing key %s", ks)
		assert.Equal(t, *p, *gp)
	}
}

func TestLoadCorruptState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{truncated"), 0o644))

	_, err := New(path).Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorruptState), "want ErrCorruptState, got %v", err)
}

func TestLoadToleratesUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	blob := `{"schema":99,"processes":{"1:1000":{"key":{"pid":1,"start_ms":1000},"state":"running","future_field":true}}}`
	require.NoError(t, os.WriteFile(path, []byte(blob), 0o644))

	set, err := New(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())
}

// A reader polling the file while the writer saves repeatedly must always
// see a complete, parsable document.
func TestConcurrentLoadDuringSaves(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, s.Save(sampleSet(1)))

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
			}
			if err := s.Save(sampleSet(i%10 + 1)); err != nil {
				t.Errorf("save: %v", err)
				return
			}
		}
	}()

	for i := 0; i < 200; i++ {
		set, err := s.Load()
		if err != nil {
			t.Fatalf("load during concurrent saves: %v", err)
		}
		if set.Len() == 0 {
			t.Fatal("observed empty set mid-save")
		}
	}
	close(done)
	wg.Wait()
}

// A leftover temp file from an interrupted save must not affect loads.
func TestInterruptedSaveLeavesOldStateVisible(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "state.json"))
	require.NoError(t, s.Save(sampleSet(2)))

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".state-zzz.tmp"), []byte("{part"), 0o600))

	set, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())
}
