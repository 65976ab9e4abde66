// Package notifier turns terminal lifecycle events into push messages for
// an ntfy-compatible gateway. Delivery is bounded (per-attempt timeout,
// capped exponential backoff); permanent failure is reported to the caller
// so the entry can be retried on a later cycle.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bsantraigi/ntfy-agent/internal/tracker"
)

// ErrDeliveryFailure indicates all delivery attempts for one event failed.
var ErrDeliveryFailure = errors.New("notification delivery failed")

const (
	DefaultPriority    = "high"
	DefaultTags        = "computer,white_check_mark"
	DefaultTimeout     = 10 * time.Second
	DefaultMaxAttempts = 3
	DefaultBackoff     = 2 * time.Second
)

type Config struct {
	Server   string // gateway base URL, e.g. https://ntfy.example.com
	Topic    string
	Priority string
	Tags     string
	Token    string // optional bearer token

	Timeout     time.Duration // per attempt
	MaxAttempts int
	Backoff     time.Duration // initial backoff, doubled per retry
}

func (c *Config) applyDefaults() {
	if c.Priority == "" {
		c.Priority = DefaultPriority
	}
	if c.Tags == "" {
		c.Tags = DefaultTags
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Backoff <= 0 {
		c.Backoff = DefaultBackoff
	}
}

type Notifier struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) (*Notifier, error) {
	cfg.applyDefaults()
	if cfg.Server == "" {
		return nil, errors.New("notifier: server URL is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("notifier: topic is required")
	}
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Notify delivers one event, retrying with exponential backoff up to the
// configured attempt budget. Non-notifying event types are a no-op.
func (n *Notifier) Notify(ctx context.Context, ev tracker.Event) error {
	title, body, ok := Compose(ev)
	if !ok {
		return nil
	}

	backoff := n.cfg.Backoff
	var lastErr error
	for attempt := 1; attempt <= n.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if lastErr = n.push(ctx, title, body); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrDeliveryFailure, n.cfg.MaxAttempts, lastErr)
}

func (n *Notifier) push(ctx context.Context, title, body string) error {
	url := strings.TrimRight(n.cfg.Server, "/") + "/" + n.cfg.Topic
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Title", title)
	req.Header.Set("Priority", n.cfg.Priority)
	req.Header.Set("Tags", n.cfg.Tags)
	if n.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+n.cfg.Token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("gateway returned %s", resp.Status)
	}
	return nil
}

// Compose renders the push title and body for an event. ok is false for
// event types that never notify (grace-window transitions).
func Compose(ev tracker.Event) (title, body string, ok bool) {
	p := ev.Proc
	switch ev.Type {
	case tracker.EventStarted:
		title = fmt.Sprintf("ML process started - %s", p.User)
		body = fmt.Sprintf("Command: %s\nStart time: %s",
			p.Cmdline, p.Key.Started().Format(time.RFC3339))
		return title, body, true
	case tracker.EventFinished, tracker.EventCrashed:
		verb := "finished"
		if ev.Type == tracker.EventCrashed {
			verb = "crashed"
		}
		title = fmt.Sprintf("ML process %s - %s", verb, p.User)
		body = fmt.Sprintf("Command: %s\nDuration: %s\nStart time: %s\nEnd time: %s",
			p.Cmdline,
			FormatDuration(p.Runtime(ev.At)),
			p.Key.Started().Format(time.RFC3339),
			ev.At.Format(time.RFC3339))
		return title, body, true
	default:
		return "", "", false
	}
}

// FormatDuration renders a runtime the way the UI does: 1d 2h 3m, 2h 3m 4s,
// 3m 4s, or 5s.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, mins, secs)
	case mins > 0:
		return fmt.Sprintf("%dm %ds", mins, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}
