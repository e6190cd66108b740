package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters and latency for booking operations.
type BookingMetrics struct {
	operationsTotal    *prometheus.CounterVec
	sideEffectFailures *prometheus.CounterVec
	operationLatency   *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appointly",
			Subsystem: "booking",
			Name:      "operations_total",
			Help:      "Booking operations by outcome",
		}, []string{"operation", "result"}),
		sideEffectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appointly",
			Subsystem: "booking",
			Name:      "side_effect_failures_total",
			Help:      "Best-effort steps that failed and were only logged",
		}, []string{"step"}),
		operationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "appointly",
			Subsystem: "booking",
			Name:      "operation_duration_seconds",
			Help:      "Latency of booking operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.operationsTotal, m.sideEffectFailures, m.operationLatency)
	return m
}

func (m *BookingMetrics) ObserveOperation(operation, result string, seconds float64) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation, result).Inc()
	m.operationLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *BookingMetrics) ObserveSideEffectFailure(step string) {
	if m == nil {
		return
	}
	m.sideEffectFailures.WithLabelValues(step).Inc()
}
