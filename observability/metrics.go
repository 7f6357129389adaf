package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// LaunchdMetrics captures the operational counters exported by the launch
// settlement daemon.
type LaunchdMetrics struct {
	operations        *prometheus.CounterVec
	events            *prometheus.CounterVec
	tokensDistributed prometheus.Gauge
}

var (
	launchMetricsOnce sync.Once
	launchRegistry    *LaunchdMetrics
)

// LaunchMetrics returns the lazily-initialised metrics registry used to record
// settlement activity.
func LaunchMetrics() *LaunchdMetrics {
	launchMetricsOnce.Do(func() {
		launchRegistry = &LaunchdMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "obsidian",
				Subsystem: "launch",
				Name:      "operations_total",
				Help:      "Total settlement operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "obsidian",
				Subsystem: "launch",
				Name:      "events_total",
				Help:      "Total ledger events segmented by event type.",
			}, []string{"type"}),
			tokensDistributed: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "obsidian",
				Subsystem: "launch",
				Name:      "tokens_distributed",
				Help:      "Running total of reward tokens paid out via either settlement path.",
			}),
		}
		prometheus.MustRegister(
			launchRegistry.operations,
			launchRegistry.events,
			launchRegistry.tokensDistributed,
		)
	})
	return launchRegistry
}

// ObserveOperation records the outcome of one settlement operation.
func (m *LaunchdMetrics) ObserveOperation(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// ObserveEvent counts an emitted ledger event.
func (m *LaunchdMetrics) ObserveEvent(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
}

// SetTokensDistributed publishes the ledger's running payout total.
func (m *LaunchdMetrics) SetTokensDistributed(v float64) {
	if m == nil {
		return
	}
	m.tokensDistributed.Set(v)
}
