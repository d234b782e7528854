package aggregates

import (
	"time"

	"github.com/pawsense/pawsense-backend/internal/observability"
)

// Hooks receives one event per aggregate write plus conflict/retry ticks.
// executeWrite normalizes the name and status before calling.
type Hooks interface {
	ObserveOperation(name, status string, dur time.Duration)
	IncConflict(name string)
	IncRetry(name string)
}

type nopHooks struct{}

func (nopHooks) ObserveOperation(string, string, time.Duration) {}
func (nopHooks) IncConflict(string)                             {}
func (nopHooks) IncRetry(string)                                {}

// NewObservabilityHooks bridges aggregate events into the metrics registry.
// A nil registry (METRICS_ENABLED off) degrades to the no-op hooks.
func NewObservabilityHooks(metrics *observability.Metrics) Hooks {
	if metrics == nil {
		return nopHooks{}
	}
	return metricsHooks{metrics: metrics}
}

type metricsHooks struct {
	metrics *observability.Metrics
}

func (h metricsHooks) ObserveOperation(name, status string, dur time.Duration) {
	h.metrics.ObserveAggregateOperation(name, status, dur)
}

func (h metricsHooks) IncConflict(name string) {
	h.metrics.IncAggregateConflict(name)
}

func (h metricsHooks) IncRetry(name string) {
	h.metrics.IncAggregateRetry(name)
}
