package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Default service metrics for the external backends each workflow talks
// to: the RFP contract and the timelock key service.
type WorkflowMetrics struct {
	// Counts of ledger operations, partitioned by contract method and status.
	ledgerOperations *prometheus.CounterVec

	// Latencies of ledger operations, partitioned by contract method.
	ledgerLatencies *prometheus.HistogramVec

	// Counts of timelock key service calls, partitioned by call and status.
	timelockCalls *prometheus.CounterVec
}

// NewDefaultWorkflowMetrics creates Prometheus metric instrumentation
// for basic metrics common to RFP workflow backends.
func NewDefaultWorkflowMetrics(pkg string) WorkflowMetrics {
	metrics := WorkflowMetrics{
		ledgerOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: fmt.Sprintf("%s_ledger_operations", pkg),
				Help: "How many contract operations occur, partitioned by method and status.",
			},
			[]string{"method", "status"}, // Labels.
		),
		ledgerLatencies: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: fmt.Sprintf("%s_ledger_latencies", pkg),
				Help: "How long contract operations take, partitioned by method.",
			},
			[]string{"method"}, // Labels.
		),
		timelockCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: fmt.Sprintf("%s_timelock_calls", pkg),
				Help: "How many timelock key service calls occur, partitioned by call and status.",
			},
			[]string{"call", "status"}, // Labels.
		),
	}
	metrics.ledgerOperations = registerOnce(metrics.ledgerOperations).(*prometheus.CounterVec)
	metrics.ledgerLatencies = registerOnce(metrics.ledgerLatencies).(*prometheus.HistogramVec)
	metrics.timelockCalls = registerOnce(metrics.timelockCalls).(*prometheus.CounterVec)
	return metrics
}

// LedgerOperations returns the counter for the contract operation.
// The provided params are used as labels.
func (m *WorkflowMetrics) LedgerOperations(method, status string) prometheus.Counter {
	return m.ledgerOperations.WithLabelValues(method, status)
}

// LedgerTimer creates a new latency timer for the provided contract method.
func (m *WorkflowMetrics) LedgerTimer(method string) *prometheus.Timer {
	return prometheus.NewTimer(m.ledgerLatencies.WithLabelValues(method))
}

// TimelockCalls returns the counter for the timelock key service call.
// The provided params are used as labels.
func (m *WorkflowMetrics) TimelockCalls(call, status string) prometheus.Counter {
	return m.timelockCalls.WithLabelValues(call, status)
}
