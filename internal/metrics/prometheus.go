package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway
type Metrics struct {
	// Operation metrics
	OperationsTotal   *prometheus.CounterVec
	OperationErrors   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Backend metrics
	BackendRequests  *prometheus.CounterVec
	HealthyInstances prometheus.Gauge

	// Failover metrics
	EmergencyActive      prometheus.Gauge
	EmergencyActivations prometheus.Counter
	AlertsSent           prometheus.Counter

	// Snapshot metrics
	SnapshotRecords prometheus.Gauge
}

// NewMetrics creates and registers Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		OperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptgate_operations_total",
				Help: "Total number of crypto operations processed",
			},
			[]string{"operation"},
		),

		OperationErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptgate_operation_errors_total",
				Help: "Total number of failed crypto operations",
			},
			[]string{"operation", "error_type"},
		),

		OperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cryptgate_operation_duration_seconds",
				Help:    "Duration of crypto operation processing",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		BackendRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptgate_backend_requests_total",
				Help: "Total number of backend requests by instance and result",
			},
			[]string{"instance_id", "result"},
		),

		HealthyInstances: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cryptgate_healthy_instances",
				Help: "Number of backend instances currently healthy",
			},
		),

		EmergencyActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cryptgate_emergency_active",
				Help: "Whether an emergency instance is currently active (0 or 1)",
			},
		),

		EmergencyActivations: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "cryptgate_emergency_activations_total",
				Help: "Total number of emergency instance activations",
			},
		),

		AlertsSent: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "cryptgate_staleness_alerts_total",
				Help: "Total number of emergency staleness alerts delivered",
			},
		),

		SnapshotRecords: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cryptgate_snapshot_records",
				Help: "Number of resource records in the in-memory snapshot set",
			},
		),
	}
}
