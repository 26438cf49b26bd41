// Package metrics declares MoonRamp's Prometheus instrumentation (spec
// §4.10, C16): sandbox execution, custodian crypto operations, RPC fabric
// throughput, and store lock-wait time.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/moonramp/moonramp/internal/rpcfabric"
)

var (
	// Sandbox execution.
	SandboxExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moonramp_sandbox_executions_total",
			Help: "Total number of sandbox program executions",
		},
		[]string{"entry", "outcome"},
	)

	SandboxExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moonramp_sandbox_execution_duration_seconds",
			Help:    "Wall-clock time spent inside one sandbox call",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
		},
		[]string{"entry"},
	)

	SandboxFuelConsumed = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moonramp_sandbox_fuel_consumed",
			Help:    "Fuel units consumed per sandbox call",
			Buckets: []float64{1000, 10000, 100000, 1000000, 5000000, 10000000},
		},
		[]string{"entry"},
	)

	// Custodian crypto operations.
	CustodianOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moonramp_custodian_operations_total",
			Help: "Total number of seal/unseal/reseal operations",
		},
		[]string{"operation", "outcome"},
	)

	CustodianKeyRotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moonramp_custodian_key_rotations_total",
			Help: "Total number of KEK rotation events",
		},
		[]string{"reason"},
	)

	// RPC fabric.
	FabricRollingRPS = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "moonramp_fabric_rolling_rps",
			Help: "Rolling requests-per-second average across the fabric",
		},
	)

	FabricTotalSent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "moonramp_fabric_total_sent",
			Help: "Cumulative envelopes successfully routed to a service inbox",
		},
	)

	FabricTotalDropped = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "moonramp_fabric_total_dropped",
			Help: "Cumulative envelopes dropped (unknown topic, full inbox, non-public topic)",
		},
	)

	FabricPendingCalls = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "moonramp_fabric_pending_calls",
			Help: "Reply channels currently awaiting a handler's response",
		},
	)

	FabricMethodDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moonramp_fabric_method_duration_seconds",
			Help:    "Dispatch-to-reply latency per RPC method, as observed at the HTTP edge",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 60},
		},
		[]string{"method"},
	)

	// Store.
	StoreLockWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moonramp_store_lock_wait_duration_seconds",
			Help:    "Time spent waiting to acquire a row lock",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"table"},
	)
)

// FabricSink implements rpcfabric.StatsSink, feeding the fabric gauges from
// the periodic snapshot rpcfabric.Housekeeping emits.
func FabricSink(snap rpcfabric.Snapshot) {
	FabricRollingRPS.Set(snap.RollingRPS)
	FabricTotalSent.Set(float64(snap.TotalSent))
	FabricTotalDropped.Set(float64(snap.TotalDropped))
	FabricPendingCalls.Set(float64(snap.PendingCalls))
}
