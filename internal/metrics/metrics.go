package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the session-hub's Prometheus instruments, built in cmd/hub
// via pkg/monitoring's MetricsCollector helpers (spec §4.11 "emit a metrics
// snapshot").
type Metrics struct {
	// Transport
	HubConnections *prometheus.GaugeVec // by surface

	// Fan-out Engine (C8)
	FanoutEmitted *prometheus.CounterVec   // by event
	FanoutDropped *prometheus.CounterVec   // by event
	DeliveryLag   *prometheus.HistogramVec // by event

	// Lifecycle/Reaper (C11)
	SessionsActive *prometheus.GaugeVec   // unlabeled vec, one value
	ReaperSweeps   *prometheus.CounterVec // unlabeled vec, one value
	ReapedSessions *prometheus.CounterVec // unlabeled vec, one value
}
