package ntfyagent

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bsantraigi/ntfy-agent/internal/config"
	"github.com/bsantraigi/ntfy-agent/internal/filter"
	"github.com/bsantraigi/ntfy-agent/internal/history"
	"github.com/bsantraigi/ntfy-agent/internal/history/factory"
	"github.com/bsantraigi/ntfy-agent/internal/metrics"
	"github.com/bsantraigi/ntfy-agent/internal/monitor"
	"github.com/bsantraigi/ntfy-agent/internal/notifier"
	"github.com/bsantraigi/ntfy-agent/internal/server"
	"github.com/bsantraigi/ntfy-agent/internal/snapshot"
	"github.com/bsantraigi/ntfy-agent/internal/store"
	"github.com/bsantraigi/ntfy-agent/internal/tracker"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = config.Config

type TrackedProcess = tracker.TrackedProcess

type TrackedSet = tracker.Set

type State = tracker.State

type Event = tracker.Event

type HistorySink = history.Sink

type Health = monitor.Health

// Monitor is a thin facade over the internal sampling loop, for embedding
// the agent in another program.
type Monitor struct{ inner *monitor.Monitor }

// NewMonitor assembles a monitor from a loaded config. journal may be nil.
func NewMonitor(cfg *Config, journal HistorySink) (*Monitor, error) {
	nt, err := notifier.New(cfg.NotifierConfig())
	if err != nil {
		return nil, err
	}
	var gpu snapshot.GPUQuerier
	if cfg.GPU != nil && cfg.GPU.Enabled {
		gpu = &snapshot.NvidiaSMI{Path: cfg.GPU.SMIPath, Timeout: cfg.GPU.Timeout}
	}
	inner, err := monitor.New(monitor.Options{
		Config: monitor.Config{
			Interval:      cfg.Interval,
			NotifyOnStart: cfg.NotifyOnStart,
			PruneAfter:    cfg.PruneAfter,
		},
		Source:   snapshot.NewSystemSource(gpu),
		Filter:   filter.New(cfg.Patterns),
		Tracker:  tracker.New(cfg.TrackerConfig()),
		Store:    store.New(cfg.StateFile),
		Notifier: nt,
		Journal:  journal,
	})
	if err != nil {
		return nil, err
	}
	return &Monitor{inner: inner}, nil
}

// Run samples until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) error { return m.inner.Run(ctx) }

// Health reports the loop's current status.
func (m *Monitor) Health() Health { return m.inner.Health() }

// LoadConfig reads and validates a TOML config file.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// LoadState reads a persisted tracked-set from path.
func LoadState(path string) (*TrackedSet, error) { return store.New(path).Load() }

// NewHistorySink builds a journal sink from a DSN (sqlite path,
// postgres://, clickhouse://, opensearch://).
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// NewHTTPServer starts the read-only status server for a running monitor.
func NewHTTPServer(addr string, statePath string, m *Monitor) *http.Server {
	return server.NewServer(addr, store.New(statePath), m.inner)
}

// StatusHandler returns the status router as an embeddable http.Handler.
func StatusHandler(statePath string, m *Monitor) http.Handler {
	return server.NewRouter(store.New(statePath), m.inner).Handler()
}

// RegisterMetrics registers the agent's collectors on r.
func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
