package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	cyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ntfy_agent",
			Subsystem: "monitor",
			Name:      "cycles_total",
			Help:      "Number of completed sampling cycles.",
		},
	)
	snapshotErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ntfy_agent",
			Subsystem: "monitor",
			Name:      "snapshot_errors_total",
			Help:      "Number of cycles skipped because enumeration failed.",
		},
	)
	saveFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ntfy_agent",
			Subsystem: "monitor",
			Name:      "state_save_failures_total",
			Help:      "Number of failed state file writes.",
		},
	)
	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ntfy_agent",
			Subsystem: "tracker",
			Name:      "transitions_total",
			Help:      "Lifecycle transitions by type.",
		}, []string{"type"},
	)
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ntfy_agent",
			Subsystem: "notifier",
			Name:      "notifications_total",
			Help:      "Notification outcomes (sent, failed, skipped).",
		}, []string{"result"},
	)
	trackedProcesses = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ntfy_agent",
			Subsystem: "tracker",
			Name:      "tracked_processes",
			Help:      "Current tracked-set size per lifecycle state.",
		}, []string{"state"},
	)
	cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ntfy_agent",
			Subsystem: "monitor",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one sampling cycle.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	notifyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ntfy_agent",
			Subsystem: "notifier",
			Name:      "delivery_duration_seconds",
			Help:      "Wall time of one notification delivery, retries included.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		cyclesTotal, snapshotErrors, saveFailures, transitionsTotal,
		notificationsTotal, trackedProcesses, cycleDuration, notifyDuration,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Lightweight helpers used by internal packages. They no-op if Register
// hasn't been called.

func IncCycle() {
	if regOK.Load() {
		cyclesTotal.Inc()
	}
}

func IncSnapshotError() {
	if regOK.Load() {
		snapshotErrors.Inc()
	}
}

func IncSaveFailure() {
	if regOK.Load() {
		saveFailures.Inc()
	}
}

func IncTransition(typ string) {
	if regOK.Load() {
		transitionsTotal.WithLabelValues(typ).Inc()
	}
}

func IncNotification(result string) {
	if regOK.Load() {
		notificationsTotal.WithLabelValues(result).Inc()
	}
}

func SetTracked(state string, n int) {
	if regOK.Load() {
		trackedProcesses.WithLabelValues(state).Set(float64(n))
	}
}

func ObserveCycleDuration(d time.Duration) {
	if regOK.Load() {
		cycleDuration.Observe(d.Seconds())
	}
}

func ObserveDeliveryDuration(d time.Duration) {
	if regOK.Load() {
		notifyDuration.Observe(d.Seconds())
	}
}
