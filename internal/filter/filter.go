// Package filter decides which snapshot records are monitored.
// A record matches when any configured pattern is a substring of its
// command line or executable name. Monitoring is opt-in: an empty
// pattern list matches nothing.
package filter

import (
	"os"
	"strings"

	"github.com/bsantraigi/ntfy-agent/internal/snapshot"
)

type Filter struct {
	patterns []string
	selfPID  int32
}

func New(patterns []string) *Filter {
	ps := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			ps = append(ps, p)
		}
	}
	return &Filter{patterns: ps, selfPID: int32(os.Getpid())}
}

// Matches reports whether rec is a monitored process.
// The agent's own pid is always excluded.
func (f *Filter) Matches(rec snapshot.ProcessRecord) bool {
	if rec.PID == f.selfPID {
		return false
	}
	for _, p := range f.patterns {
		if strings.Contains(rec.Cmdline, p) || strings.Contains(rec.Name, p) {
			return true
		}
	}
	return false
}

// Apply returns the monitored subset of recs, preserving order.
func (f *Filter) Apply(recs []snapshot.ProcessRecord) []snapshot.ProcessRecord {
	out := make([]snapshot.ProcessRecord, 0, len(recs))
	for _, r := range recs {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}
