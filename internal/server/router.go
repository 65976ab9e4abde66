// Package server exposes a read-only local HTTP surface for the daemon:
// liveness, the tracked-set, and Prometheus metrics. It is a health and
// inspection channel, not a control plane; nothing here mutates state.
package server

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bsantraigi/ntfy-agent/internal/metrics"
	"github.com/bsantraigi/ntfy-agent/internal/monitor"
	"github.com/bsantraigi/ntfy-agent/internal/store"
	"github.com/bsantraigi/ntfy-agent/internal/tracker"
)

// HealthProvider reports sampling-loop status. *monitor.Monitor satisfies
// this.
type HealthProvider interface {
	Health() monitor.Health
}

// Router provides embeddable HTTP handlers for inspecting the daemon.
// Endpoints:
//
//	GET /healthz   liveness; 503 when the loop is stale or failing
//	GET /status    tracked-set; ?state=active|running|unknown|finished|crashed
//	GET /metrics   Prometheus exposition
type Router struct {
	store  *store.FileStore
	health HealthProvider
}

func NewRouter(st *store.FileStore, health HealthProvider) *Router {
	return &Router{store: st, health: health}
}

// Handler returns an http.Handler powered by gin that can be mounted in
// any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET("/healthz", r.handleHealthz)
	g.GET("/status", r.handleStatus)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Callers shut it down via http.Server's Shutdown or Close.
func NewServer(addr string, st *store.FileStore, health HealthProvider) *http.Server {
	r := NewRouter(st, health)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

type errorResp struct {
	Error string `json:"error"`
}

func (r *Router) handleHealthz(c *gin.Context) {
	h := r.health.Health()
	code := http.StatusOK
	if !h.OK {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, h)
}

type statusResp struct {
	Counts    map[tracker.State]int     `json:"counts"`
	Processes []*tracker.TrackedProcess `json:"processes"`
}

func (r *Router) handleStatus(c *gin.Context) {
	set, err := r.store.Load()
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}

	want := c.Query("state")
	procs := make([]*tracker.TrackedProcess, 0, set.Len())
	for _, p := range set.Procs {
		if !stateMatches(want, p.State) {
			continue
		}
		procs = append(procs, p)
	}
	sort.Slice(procs, func(i, j int) bool {
		return procs[i].Key.String() < procs[j].Key.String()
	})
	c.JSON(http.StatusOK, statusResp{Counts: set.CountByState(), Processes: procs})
}

func stateMatches(want string, st tracker.State) bool {
	switch want {
	case "":
		return true
	case "active":
		return !st.Terminal()
	default:
		return want == string(st)
	}
}
