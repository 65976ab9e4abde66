// Package monitor runs the sampling loop: every interval it snapshots
// the process table, reconciles the tracked-set, persists state, journals
// transitions, and pushes notifications for terminal events.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bsantraigi/ntfy-agent/internal/filter"
	"github.com/bsantraigi/ntfy-agent/internal/history"
	"github.com/bsantraigi/ntfy-agent/internal/metrics"
	"github.com/bsantraigi/ntfy-agent/internal/snapshot"
	"github.com/bsantraigi/ntfy-agent/internal/store"
	"github.com/bsantraigi/ntfy-agent/internal/tracker"
)

// Notifier abstracts delivery so tests can fake it. *notifier.Notifier
// satisfies this.
type Notifier interface {
	Notify(ctx context.Context, ev tracker.Event) error
}

// Config bounds the loop's cadence and retention policy.
type Config struct {
	// Interval between sampling cycles.
	Interval time.Duration

	// NotifyOnStart also pushes a notification when a matching process
	// first appears, not only when it ends.
	NotifyOnStart bool

	// PruneAfter removes terminal entries older than this from the
	// tracked-set. Zero disables pruning.
	PruneAfter time.Duration
}

// Health is a point-in-time view of the loop, served by the status
// endpoint.
type Health struct {
	OK            bool      `json:"ok"`
	LastCycle     time.Time `json:"last_cycle"`
	LastError     string    `json:"last_error,omitempty"`
	SaveFailures  int       `json:"consecutive_save_failures"`
	TrackedTotal  int       `json:"tracked_total"`
	CyclesRun     uint64    `json:"cycles_run"`
	NotifyPending int       `json:"notify_pending"`
}

// Options wires the monitor's collaborators. Source, Store and Notifier
// are required; Journal and Logger are optional.
type Options struct {
	Config   Config
	Source   snapshot.Source
	Filter   *filter.Filter
	Tracker  *tracker.Tracker
	Store    *store.FileStore
	Notifier Notifier
	Journal  history.Sink
	Logger   *slog.Logger
}

type Monitor struct {
	cfg      Config
	source   snapshot.Source
	filter   *filter.Filter
	tracker  *tracker.Tracker
	store    *store.FileStore
	notifier Notifier
	journal  history.Sink
	logger   *slog.Logger

	// set is owned by the sampling loop goroutine and never touched from
	// request handlers; Health reads only the published fields below.
	set *tracker.Set

	mu            sync.Mutex
	lastCycle     time.Time
	lastErr       string
	saveFailures  int
	cyclesRun     uint64
	trackedTotal  int
	notifyPending int
}

func New(o Options) (*Monitor, error) {
	if o.Source == nil {
		return nil, errors.New("monitor: snapshot source required")
	}
	if o.Store == nil {
		return nil, errors.New("monitor: state store required")
	}
	if o.Notifier == nil {
		return nil, errors.New("monitor: notifier required")
	}
	if o.Config.Interval <= 0 {
		return nil, fmt.Errorf("monitor: interval must be positive, got %s", o.Config.Interval)
	}
	if o.Filter == nil {
		o.Filter = filter.New(nil)
	}
	if o.Tracker == nil {
		o.Tracker = tracker.New(tracker.Config{GraceCycles: tracker.DefaultGraceCycles})
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return &Monitor{
		cfg:      o.Config,
		source:   o.Source,
		filter:   o.Filter,
		tracker:  o.Tracker,
		store:    o.Store,
		notifier: o.Notifier,
		journal:  o.Journal,
		logger:   o.Logger,
	}, nil
}

// Run executes sampling cycles until ctx is canceled, then persists a
// final snapshot of the tracked-set. An unwritable state location is
// fatal at startup; later save failures are logged and retried next cycle.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.store.EnsureDir(); err != nil {
		return fmt.Errorf("state directory: %w", err)
	}
	if err := m.loadState(); err != nil {
		return err
	}
	m.logger.Info("monitor started",
		"interval", m.cfg.Interval,
		"state_file", m.store.Path,
		"tracked", m.setLen())

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		if err := m.RunCycle(ctx, time.Now()); err != nil && ctx.Err() == nil {
			m.logger.Error("sampling cycle failed", "err", err)
		}
		select {
		case <-ctx.Done():
			if set := m.set; set != nil {
				if err := m.store.Save(set); err != nil {
					m.logger.Error("final state save failed", "err", err)
				}
			}
			m.logger.Info("monitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// loadState reads the persisted tracked-set. A corrupt file is logged and
// replaced with an empty set rather than refusing to start.
func (m *Monitor) loadState() error {
	set, err := m.store.Load()
	if err != nil {
		if !errors.Is(err, store.ErrCorruptState) {
			return err
		}
		m.logger.Warn("state file corrupt, starting with empty set",
			"path", m.store.Path, "err", err)
		set = tracker.NewSet()
	}
	m.set = set
	return nil
}

// RunCycle performs one sampling cycle at the given instant. A failed
// snapshot aborts the cycle without touching the tracked-set, so an
// enumeration outage is never mistaken for process death.
func (m *Monitor) RunCycle(ctx context.Context, now time.Time) error {
	if m.set == nil {
		if err := m.loadState(); err != nil {
			return err
		}
	}
	set := m.set

	began := time.Now()
	recs, err := m.source.Snapshot(ctx)
	if err != nil {
		metrics.IncSnapshotError()
		m.noteCycle(now, err)
		return fmt.Errorf("%w: %v", snapshot.ErrSnapshotUnavailable, err)
	}
	recs = m.filter.Apply(recs)

	events := m.tracker.Reconcile(now, recs, set)
	for _, ev := range events {
		metrics.IncTransition(string(ev.Type))
		m.logEvent(ev)
	}
	if m.cfg.PruneAfter > 0 {
		if n := set.Prune(now.Add(-m.cfg.PruneAfter)); n > 0 {
			m.logger.Debug("pruned terminal entries", "count", n)
		}
	}

	// Persist observed transitions before attempting delivery. If the
	// daemon dies between a delivery and the next save, the notification
	// is repeated on restart rather than lost.
	m.saveState(set)
	m.journalEvents(ctx, events)
	if m.notifyPass(ctx, now, set, events) {
		m.saveState(set)
	}

	for st, n := range set.CountByState() {
		metrics.SetTracked(string(st), n)
	}
	pending := len(pendingTerminal(set))
	metrics.IncCycle()
	metrics.ObserveCycleDuration(time.Since(began))
	m.noteCycle(now, nil)

	m.mu.Lock()
	m.trackedTotal = set.Len()
	m.notifyPending = pending
	m.mu.Unlock()
	return nil
}

// pendingTerminal returns terminal entries still awaiting a notification,
// ordered by key so delivery order is stable across cycles and runs.
func pendingTerminal(set *tracker.Set) []*tracker.TrackedProcess {
	var procs []*tracker.TrackedProcess
	for _, p := range set.Procs {
		if p.State.Terminal() && !p.Notified {
			procs = append(procs, p)
		}
	}
	sort.Slice(procs, func(i, j int) bool {
		return procs[i].Key.String() < procs[j].Key.String()
	})
	return procs
}

// notifyPass delivers pending notifications in key order and reports
// whether any Notified flag changed. Terminal entries keep being retried
// on later cycles until a delivery succeeds.
func (m *Monitor) notifyPass(ctx context.Context, now time.Time, set *tracker.Set, events []tracker.Event) bool {
	changed := false

	if m.cfg.NotifyOnStart {
		for _, ev := range events {
			if ev.Type != tracker.EventStarted {
				continue
			}
			if err := m.deliver(ctx, ev); err != nil {
				m.logger.Warn("start notification failed", "key", ev.Proc.Key.String(), "err", err)
			}
		}
	}

	for _, p := range pendingTerminal(set) {
		typ := tracker.EventFinished
		if p.State == tracker.StateCrashed {
			typ = tracker.EventCrashed
		}
		at := p.EndedAt
		if at.IsZero() {
			at = now
		}
		ev := tracker.Event{Type: typ, At: at, Proc: p}
		if err := m.deliver(ctx, ev); err != nil {
			m.logger.Warn("notification failed, will retry next cycle",
				"key", p.Key.String(), "state", p.State, "err", err)
			continue
		}
		p.Notified = true
		changed = true
	}
	return changed
}

func (m *Monitor) deliver(ctx context.Context, ev tracker.Event) error {
	began := time.Now()
	err := m.notifier.Notify(ctx, ev)
	metrics.ObserveDeliveryDuration(time.Since(began))
	if err != nil {
		metrics.IncNotification("error")
		return err
	}
	metrics.IncNotification("sent")
	return nil
}

func (m *Monitor) journalEvents(ctx context.Context, events []tracker.Event) {
	if m.journal == nil {
		return
	}
	for _, ev := range events {
		rec, ok := history.FromTransition(ev)
		if !ok {
			continue
		}
		if err := m.journal.Send(ctx, rec); err != nil {
			m.logger.Warn("history journal write failed", "type", rec.Type, "err", err)
		}
	}
}

func (m *Monitor) saveState(set *tracker.Set) {
	if err := m.store.Save(set); err != nil {
		metrics.IncSaveFailure()
		m.mu.Lock()
		m.saveFailures++
		n := m.saveFailures
		m.mu.Unlock()
		m.logger.Error("state save failed", "path", m.store.Path, "consecutive", n, "err", err)
		return
	}
	m.mu.Lock()
	m.saveFailures = 0
	m.mu.Unlock()
}

func (m *Monitor) logEvent(ev tracker.Event) {
	switch ev.Type {
	case tracker.EventStarted:
		m.logger.Info("process started", "key", ev.Proc.Key.String(), "cmdline", ev.Proc.Cmdline, "user", ev.Proc.User)
	case tracker.EventLost:
		m.logger.Debug("process missing, grace window open", "key", ev.Proc.Key.String())
	default:
		m.logger.Info("process "+string(ev.Type),
			"key", ev.Proc.Key.String(),
			"cmdline", ev.Proc.Cmdline,
			"runtime", ev.Proc.Runtime(ev.At))
	}
}

func (m *Monitor) noteCycle(now time.Time, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCycle = now
	m.cyclesRun++
	if err != nil {
		m.lastErr = err.Error()
	} else {
		m.lastErr = ""
	}
}

// setLen is only called from the loop goroutine before ticking starts.
func (m *Monitor) setLen() int {
	if m.set == nil {
		return 0
	}
	return m.set.Len()
}

// Health reports loop status from counters the loop publishes after each
// cycle. It never touches the tracked-set itself, so status handlers can
// call it concurrently with a running cycle. OK requires a recent
// successful cycle and a writable state file.
func (m *Monitor) Health() Health {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := Health{
		LastCycle:     m.lastCycle,
		LastError:     m.lastErr,
		SaveFailures:  m.saveFailures,
		CyclesRun:     m.cyclesRun,
		TrackedTotal:  m.trackedTotal,
		NotifyPending: m.notifyPending,
	}
	stale := m.lastCycle.IsZero() || time.Since(m.lastCycle) > 3*m.cfg.Interval
	h.OK = !stale && m.lastErr == "" && m.saveFailures == 0
	return h
}
