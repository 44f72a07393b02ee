// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expiry_sweep_runs_total",
			Help: "Total number of expiry sweep runs",
		},
		[]string{"outcome"},
	)

	SweepRecordsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "expiry_sweep_records_processed_total",
			Help: "Total number of application records examined by the sweep",
		},
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "expiry_sweep_duration_seconds",
			Help: "Duration of one full expiry sweep in seconds",
		},
	)

	NotificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expiry_notifications_dispatched_total",
			Help: "Total number of expiry notifications dispatched",
		},
		[]string{"channel", "tier"},
	)

	NotificationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expiry_notifications_failed_total",
			Help: "Total number of failed notification dispatches",
		},
		[]string{"channel"},
	)
)
