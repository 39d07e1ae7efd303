package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics records escrow operation activity for the RPC surface.
type LedgerMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

// Ledger returns the lazily-initialised metrics registry used to record
// escrow operation activity.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "localsolana",
				Subsystem: "escrow",
				Name:      "requests_total",
				Help:      "Total escrow operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "localsolana",
				Subsystem: "escrow",
				Name:      "errors_total",
				Help:      "Total escrow operation failures segmented by operation and error kind.",
			}, []string{"operation", "kind"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "localsolana",
				Subsystem: "escrow",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for escrow operation handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
		}
		prometheus.MustRegister(ledgerRegistry.requests, ledgerRegistry.errors, ledgerRegistry.latency)
	})
	return ledgerRegistry
}

// ObserveRequest records a completed operation with its outcome and duration.
func (m *LedgerMetrics) ObserveRequest(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveError records a failed operation with its error kind.
func (m *LedgerMetrics) ObserveError(operation, kind string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(operation, kind).Inc()
}
