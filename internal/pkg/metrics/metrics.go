package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultNoop    = "noop"
	ResultFailed  = "failed"
	ResultDenied  = "denied"
)

var (
	// Registry holds every drivermgr collector plus the Go runtime and process collectors.
	// It is served on /metrics by the HTTP control API.
	Registry = prometheus.NewRegistry()

	// OperationsTotal counts attachment manager operations by outcome.
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drivermgr_operations_total",
			Help: "Attachment manager operations by operation and result.",
		},
		[]string{"operation", "result"}, // operation: attach/detach/enable/disable/init_position
	)

	// AdapterCallSeconds records how long driver lifecycle calls take.
	AdapterCallSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "drivermgr_adapter_call_seconds",
			Help:    "Latency of driver create/enable/disable calls.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// EntryPhases is the number of vehicle entries per lifecycle phase.
	EntryPhases = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "drivermgr_entries",
			Help: "Vehicle entries per lifecycle phase (detached, disabled, enabled).",
		},
		[]string{"phase"},
	)

	// NotificationsTotal counts notifications handed to subscribers, by outcome.
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drivermgr_notifications_total",
			Help: "Driver state notifications by outcome (delivered, dropped, deferred, duplicate).",
		},
		[]string{"outcome"},
	)

	// Operational is 1 while the controlling system accepts requests.
	Operational = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "drivermgr_operational",
			Help: "Whether the controlling system is operational (1) or not (0).",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		OperationsTotal,
		AdapterCallSeconds,
		EntryPhases,
		NotificationsTotal,
		Operational,
	)
}

// MovePhase shifts one entry from one phase gauge to another.
func MovePhase(from, to string) {
	if from == to {
		return
	}
	if from != "" {
		EntryPhases.WithLabelValues(from).Dec()
	}
	EntryPhases.WithLabelValues(to).Inc()
}
