// Package metrics exposes Prometheus collectors for the reservation
// subsystem. Capacity denials are expected under contention and are
// counted rather than logged as errors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BlocksGranted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capacity_blocks_granted_total",
		Help: "Holds successfully placed.",
	})
	BlocksDenied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capacity_blocks_denied_total",
		Help: "Block attempts denied for insufficient capacity.",
	})
	HoldsConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capacity_holds_confirmed_total",
		Help: "Holds converted into committed capacity.",
	})
	HoldsReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capacity_holds_released_total",
		Help: "Holds released by callers.",
	})
	HoldsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capacity_holds_expired_total",
		Help: "Holds reclaimed by the expiry sweeper.",
	})
	SweepErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capacity_sweep_errors_total",
		Help: "Sweeper passes that ended with an error.",
	})
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "capacity_sweep_duration_seconds",
		Help:    "Duration of sweeper passes.",
		Buckets: prometheus.DefBuckets,
	})
)
