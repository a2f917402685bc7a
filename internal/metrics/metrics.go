// Package metrics provides Prometheus metrics for the session core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DispatchAttempts counts per-domain request attempts by result
	// ("response", "timeout", "error").
	DispatchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "firenet",
			Name:      "dispatch_attempts_total",
			Help:      "Total number of per-domain request attempts",
		},
		[]string{"domain", "result"},
	)

	// DispatchDuration measures a single attempt.
	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "firenet",
			Name:      "dispatch_attempt_duration_seconds",
			Help:      "Duration of per-domain request attempts in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"domain"},
	)

	// SyncOutcomes counts delivered status sync outcomes by kind.
	SyncOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "firenet",
			Name:      "sync_outcomes_total",
			Help:      "Total number of status sync outcomes delivered",
		},
		[]string{"kind"},
	)

	// SyncSuppressed counts results dropped by the completion guard.
	SyncSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "firenet",
			Name:      "sync_suppressed_total",
			Help:      "Total number of late sync results suppressed",
		},
	)

	// CacheFallbacks counts failures answered from the status cache.
	CacheFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "firenet",
			Name:      "cache_fallbacks_total",
			Help:      "Total number of status failures served from cache",
		},
	)

	// ForceLogouts counts remote session invalidations.
	ForceLogouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "firenet",
			Name:      "force_logouts_total",
			Help:      "Total number of remote session invalidations",
		},
	)

	// PushConnected is 1 while the push listener holds a connection.
	PushConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "firenet",
			Name:      "push_connected",
			Help:      "Push channel connection status (1 = connected, 0 = disconnected)",
		},
	)
)
