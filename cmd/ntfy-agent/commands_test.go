package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsantraigi/ntfy-agent/internal/store"
	"github.com/bsantraigi/ntfy-agent/internal/tracker"
)

func writeTestConfig(t *testing.T, stateFile string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	body := fmt.Sprintf("state_file = %q\npatterns = [\"train.py\"]\n", stateFile)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func seedState(t *testing.T) string {
	t.Helper()
	stateFile := filepath.Join(t.TempDir(), "state.json")
	st := store.New(stateFile)
	set := tracker.NewSet()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := &tracker.TrackedProcess{
		Key:     tracker.Key{PID: 4242, StartMs: now.Add(-time.Hour).UnixMilli()},
		Cmdline: "python train.py --epochs 50",
		User:    "alice",
		State:   tracker.StateRunning,
	}
	set.Procs[p.Key.String()] = p
	require.NoError(t, st.Save(set))
	return stateFile
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRootHasSubcommands(t *testing.T) {
	root := buildRoot()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "status", "top", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "ntfy-agent")
}

func TestStatusCommandTable(t *testing.T) {
	cfg := writeTestConfig(t, seedState(t))
	out, err := runCommand(t, "status", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "4242")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "python train.py --epochs 50")
}

func TestStatusCommandJSON(t *testing.T) {
	cfg := writeTestConfig(t, seedState(t))
	out, err := runCommand(t, "status", "--config", cfg, "--json")
	require.NoError(t, err)

	var procs []*tracker.TrackedProcess
	require.NoError(t, json.Unmarshal([]byte(out), &procs))
	require.Len(t, procs, 1)
	assert.Equal(t, int32(4242), procs[0].Key.PID)
}

func TestStatusCommandStateFilter(t *testing.T) {
	cfg := writeTestConfig(t, seedState(t))
	out, err := runCommand(t, "status", "--config", cfg, "--state", "crashed", "--json")
	require.NoError(t, err)
	var procs []*tracker.TrackedProcess
	require.NoError(t, json.Unmarshal([]byte(out), &procs))
	assert.Empty(t, procs)
}

func TestStatusMissingConfigFails(t *testing.T) {
	_, err := runCommand(t, "status", "--config", filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
