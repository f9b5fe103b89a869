// Package metrics holds the Prometheus collectors shared by graphdraw
// components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ScheduleRequests counts scheduler calls by outcome
	ScheduleRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphdraw_schedule_requests_total",
			Help: "Total number of scheduling requests by outcome",
		},
		[]string{"outcome"},
	)

	// ScheduleDuration tracks round-trip latency to the scheduler
	ScheduleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "graphdraw_schedule_duration_seconds",
			Help:    "Latency of scheduling requests",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ScheduleStale counts responses dropped because a newer request superseded them
	ScheduleStale = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "graphdraw_schedule_stale_total",
			Help: "Scheduling responses discarded as stale",
		},
	)

	// Mutations counts editing operations by kind and result
	Mutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphdraw_mutations_total",
			Help: "Model mutations by operation and result code",
		},
		[]string{"op", "result"},
	)

	// SessionsActive tracks the number of cached editing sessions
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "graphdraw_sessions_active",
			Help: "Editing sessions currently held in memory",
		},
	)

	// StoreOperations counts keyed storage calls by backend, op and result
	StoreOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphdraw_store_operations_total",
			Help: "Keyed model storage operations",
		},
		[]string{"backend", "op", "result"},
	)
)

func init() {
	prometheus.MustRegister(ScheduleRequests)
	prometheus.MustRegister(ScheduleDuration)
	prometheus.MustRegister(ScheduleStale)
	prometheus.MustRegister(Mutations)
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(StoreOperations)
}

// Result maps an error to a low-cardinality label value.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}
