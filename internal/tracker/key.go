package tracker

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bsantraigi/ntfy-agent/internal/snapshot"
)

// Key is the stable identity of a tracked process: pid plus start time.
// The OS recycles pids, so a reused pid with a different start time is a
// different process.
type Key struct {
	PID     int32 `json:"pid"`
	StartMs int64 `json:"start_ms"` // process start time, unix milliseconds UTC
}

func KeyFor(rec snapshot.ProcessRecord) Key {
	return Key{PID: rec.PID, StartMs: rec.StartedAt.UnixMilli()}
}

// Started returns the process start time carried by the key.
func (k Key) Started() time.Time { return time.UnixMilli(k.StartMs).UTC() }

// String renders the key as "<pid>:<start_ms>", the map key form used in
// the persisted state file.
func (k Key) String() string {
	return strconv.FormatInt(int64(k.PID), 10) + ":" + strconv.FormatInt(k.StartMs, 10)
}

func ParseKey(s string) (Key, error) {
	pidStr, startStr, ok := strings.Cut(s, ":")
	if !ok {
		return Key{}, fmt.Errorf("malformed process key %q", s)
	}
	pid, err := strconv.ParseInt(pidStr, 10, 32)
	if err != nil {
		return Key{}, fmt.Errorf("malformed pid in key %q: %w", s, err)
	}
	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil {
		return Key{}, fmt.Errorf("malformed start time in key %q: %w", s, err)
	}
	return Key{PID: int32(pid), StartMs: start}, nil
}
