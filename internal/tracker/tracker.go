// Package tracker reconciles sampling cycles against the persisted
// tracked-set and classifies lifecycle transitions. It owns no I/O; the
// caller supplies each cycle's filtered snapshot and the current set.
package tracker

import (
	"sort"
	"time"

	"github.com/bsantraigi/ntfy-agent/internal/snapshot"
)

// EventType labels a lifecycle transition produced by one reconciliation.
type EventType string

const (
	EventStarted  EventType = "started"
	EventLost     EventType = "lost" // key went absent, grace window opened
	EventFinished EventType = "finished"
	EventCrashed  EventType = "crashed"
)

// Terminal reports whether the event ends the process lifecycle.
func (t EventType) Terminal() bool { return t == EventFinished || t == EventCrashed }

// Event is one transition observed during a reconciliation cycle.
type Event struct {
	Type EventType
	At   time.Time
	Proc *TrackedProcess
}

// ExitProber optionally supplies a real exit status for a process that has
// just disappeared. Most platforms cannot report one for an already-reaped
// foreign process, in which case Reconcile falls back to a heuristic.
type ExitProber interface {
	// ExitStatus returns (exitCode, killedBySignal, ok). ok is false when
	// no reliable status is obtainable for the key.
	ExitStatus(k Key) (int, bool, bool)
}

// Config bounds the tracker's termination and crash-classification policy.
type Config struct {
	// GraceCycles is how many consecutive absent samples are required
	// before a running process is declared terminated. Guards against
	// transient gaps in enumeration. Zero disables the grace window:
	// a process missing from a single sample is terminal immediately.
	GraceCycles int

	// CrashMinRuntime and CrashCPUThreshold drive the best-effort crash
	// heuristic used when no exit status is obtainable: a process that was
	// still burning CPU and had run for a while did not end on its own.
	CrashMinRuntime   time.Duration
	CrashCPUThreshold float64
}

const (
	DefaultGraceCycles       = 2
	DefaultCrashMinRuntime   = 30 * time.Second
	DefaultCrashCPUThreshold = 1.0
)

type Tracker struct {
	cfg    Config
	prober ExitProber
}

func New(cfg Config) *Tracker {
	if cfg.GraceCycles < 0 {
		cfg.GraceCycles = DefaultGraceCycles
	}
	if cfg.CrashMinRuntime <= 0 {
		cfg.CrashMinRuntime = DefaultCrashMinRuntime
	}
	if cfg.CrashCPUThreshold <= 0 {
		cfg.CrashCPUThreshold = DefaultCrashCPUThreshold
	}
	return &Tracker{cfg: cfg}
}

// SetExitProber installs an optional source of real exit statuses.
func (t *Tracker) SetExitProber(p ExitProber) { t.prober = p }

// Reconcile diffs one cycle's filtered snapshot against set, mutating set
// in place and returning the cycle's transition events. Event order is
// deterministic: Started first, then Lost, then Finished/Crashed, each
// group sorted by key.
func (t *Tracker) Reconcile(now time.Time, recs []snapshot.ProcessRecord, set *Set) []Event {
	present := make(map[string]snapshot.ProcessRecord, len(recs))
	for _, rec := range recs {
		present[KeyFor(rec).String()] = rec
	}

	var started, lost, ended []Event

	for ks, rec := range present {
		p, ok := set.Procs[ks]
		if !ok {
			p = &TrackedProcess{
				Key:       KeyFor(rec),
				Cmdline:   rec.Cmdline,
				User:      rec.User,
				State:     StateRunning,
				FirstSeen: now,
				LastSeen:  now,
				Metrics:   metricsFrom(rec),
			}
			set.Procs[ks] = p
			started = append(started, Event{Type: EventStarted, At: now, Proc: p})
			continue
		}
		if p.State.Terminal() {
			// Never resurrected under the same key; metrics stay frozen.
			continue
		}
		p.State = StateRunning
		p.Missed = 0
		p.LastSeen = now
		p.Metrics = metricsFrom(rec)
	}

	for ks, p := range set.Procs {
		if p.State.Terminal() {
			continue
		}
		if _, ok := present[ks]; ok {
			continue
		}
		p.Missed++
		if p.Missed <= t.cfg.GraceCycles {
			if p.Missed == 1 {
				lost = append(lost, Event{Type: EventLost, At: now, Proc: p})
			}
			p.State = StateUnknown
			continue
		}
		p.State = t.classify(p)
		p.EndedAt = now
		typ := EventFinished
		if p.State == StateCrashed {
			typ = EventCrashed
		}
		ended = append(ended, Event{Type: typ, At: now, Proc: p})
	}

	sortByKey(started)
	sortByKey(lost)
	sortByKey(ended)
	events := make([]Event, 0, len(started)+len(lost)+len(ended))
	events = append(events, started...)
	events = append(events, lost...)
	events = append(events, ended...)
	return events
}

// classify decides Finished vs Crashed for a process that exceeded the
// grace window. A real exit status wins when the prober has one; otherwise
// a heuristic stands in, accepted as a source of misclassification.
func (t *Tracker) classify(p *TrackedProcess) State {
	if t.prober != nil {
		if code, signaled, ok := t.prober.ExitStatus(p.Key); ok {
			if signaled || code != 0 {
				return StateCrashed
			}
			return StateFinished
		}
	}
	runtime := p.LastSeen.Sub(p.Key.Started())
	if p.Metrics.CPUPercent >= t.cfg.CrashCPUThreshold && runtime >= t.cfg.CrashMinRuntime {
		return StateCrashed
	}
	return StateFinished
}

func sortByKey(evs []Event) {
	sort.Slice(evs, func(i, j int) bool {
		return evs[i].Proc.Key.String() < evs[j].Proc.Key.String()
	})
}
