package history

import (
	"context"
	"time"

	"github.com/bsantraigi/ntfy-agent/internal/tracker"
)

// EventType defines the kind of lifecycle transition journaled.
type EventType string

const (
	EventStarted  EventType = "started"
	EventFinished EventType = "finished"
	EventCrashed  EventType = "crashed"
)

// Event is one transition exported to an external journal. It is a flat
// record so every backend can store it without nesting.
type Event struct {
	Type           EventType `json:"type"`
	OccurredAt     time.Time `json:"occurred_at"`
	PID            int32     `json:"pid"`
	StartedAt      time.Time `json:"started_at"`
	Cmdline        string    `json:"cmdline"`
	User           string    `json:"user"`
	RuntimeSeconds float64   `json:"runtime_seconds"`
}

// Sink is a destination for transition events. Implementations must be
// safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// FromTransition converts a tracker event into its journal form. ok is
// false for transitions that are not journaled (grace-window churn).
func FromTransition(ev tracker.Event) (Event, bool) {
	var typ EventType
	switch ev.Type {
	case tracker.EventStarted:
		typ = EventStarted
	case tracker.EventFinished:
		typ = EventFinished
	case tracker.EventCrashed:
		typ = EventCrashed
	default:
		return Event{}, false
	}
	p := ev.Proc
	return Event{
		Type:           typ,
		OccurredAt:     ev.At.UTC(),
		PID:            p.Key.PID,
		StartedAt:      p.Key.Started(),
		Cmdline:        p.Cmdline,
		User:           p.User,
		RuntimeSeconds: p.Runtime(ev.At).Seconds(),
	}, true
}
