package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
interval = "10s"
patterns = ["train.py", "finetune"]
grace_cycles = 3
state_file = "/tmp/state.json"
notify_on_start = true
prune_after = "168h"
crash_min_runtime = "45s"
crash_cpu_threshold = 2.5

[gpu]
enabled = true
smi_path = "/usr/bin/nvidia-smi"
timeout = "3s"

[ntfy]
server = "https://ntfy.example.com"
topic = "ml-alerts"
priority = "urgent"
tags = "robot"
token = "tk_secret"
timeout = "5s"
max_attempts = 5
backoff = "1s"

[log]
file = "/var/log/ntfy-agent.log"
max_size_mb = 20
level = "debug"

[metrics]
enabled = true
listen = "127.0.0.1:9464"

[history]
enabled = true
dsn = "sqlite:///tmp/history.db"

[server]
listen = "127.0.0.1:8833"
pidfile = "/run/ntfy-agent.pid"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Interval)
	assert.Equal(t, []string{"train.py", "finetune"}, cfg.Patterns)
	assert.Equal(t, 3, cfg.GraceCycles)
	assert.Equal(t, "/tmp/state.json", cfg.StateFile)
	assert.True(t, cfg.NotifyOnStart)
	assert.Equal(t, 7*24*time.Hour, cfg.PruneAfter)
	assert.Equal(t, 45*time.Second, cfg.CrashMinRuntime)
	assert.Equal(t, 2.5, cfg.CrashCPUThreshold)

	require.NotNil(t, cfg.GPU)
	assert.True(t, cfg.GPU.Enabled)
	assert.Equal(t, "/usr/bin/nvidia-smi", cfg.GPU.SMIPath)

	assert.Equal(t, "https://ntfy.example.com", cfg.Ntfy.Server)
	assert.Equal(t, "ml-alerts", cfg.Ntfy.Topic)
	assert.Equal(t, "tk_secret", cfg.Ntfy.Token)
	assert.Equal(t, 5, cfg.Ntfy.MaxAttempts)

	require.NotNil(t, cfg.Log)
	assert.Equal(t, "debug", cfg.Log.Level)
	require.NotNil(t, cfg.Metrics)
	assert.Equal(t, "127.0.0.1:9464", cfg.Metrics.Listen)
	require.NotNil(t, cfg.History)
	assert.Equal(t, "sqlite:///tmp/history.db", cfg.History.DSN)
	require.NotNil(t, cfg.Server)
	assert.Equal(t, "127.0.0.1:8833", cfg.Server.Listen)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `patterns = ["train.py"]`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultInterval, cfg.Interval)
	assert.Equal(t, DefaultGraceCycles, cfg.GraceCycles)
	assert.Equal(t, DefaultStateFile, cfg.StateFile)
	assert.Equal(t, DefaultNtfyServer, cfg.Ntfy.Server)
	assert.Equal(t, DefaultNtfyTopic, cfg.Ntfy.Topic)
	assert.Equal(t, DefaultCrashMinRuntime, cfg.CrashMinRuntime)
	assert.Equal(t, DefaultCrashCPUThreshold, cfg.CrashCPUThreshold)
	assert.False(t, cfg.NotifyOnStart)
	assert.Nil(t, cfg.Log)
}

// An explicit zero means "no grace window" and must reach the tracker
// unchanged rather than being swapped for the default.
func TestLoadExplicitZeroGrace(t *testing.T) {
	path := writeConfig(t, "patterns = [\"train.py\"]\ngrace_cycles = 0\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.GraceCycles)
	assert.Equal(t, 0, cfg.TrackerConfig().GraceCycles)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"zero interval", `interval = "0s"`},
		{"negative grace", `grace_cycles = -1`},
		{"empty state file", `state_file = ""`},
		{"empty topic", "[ntfy]\ntopic = \"\""},
		{"metrics without listen", "[metrics]\nenabled = true"},
		{"history without dsn", "[history]\nenabled = true"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.GraceCycles = 4
	cfg.Ntfy.Token = "tk"

	tc := cfg.TrackerConfig()
	assert.Equal(t, 4, tc.GraceCycles)
	assert.Equal(t, DefaultCrashMinRuntime, tc.CrashMinRuntime)

	nc := cfg.NotifierConfig()
	assert.Equal(t, DefaultNtfyServer, nc.Server)
	assert.Equal(t, "tk", nc.Token)

	// nil log section means stderr defaults
	lc := cfg.LoggerConfig()
	assert.Equal(t, "", lc.File)
}
