package query

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "trace_analytics"

// Metrics records query volume, failures, latency and truncation. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	queries   *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	truncates *prometheus.CounterVec
}

// NewMetrics registers the query collectors with reg. spansReceived, when
// non-nil, backs trace_analytics_spans_received_total.
func NewMetrics(reg prometheus.Registerer, spansReceived func() float64) *Metrics {
	m := &Metrics{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "queries_total",
			Help:      "Analytics queries served, by view.",
		}, []string{"view"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "query_failures_total",
			Help:      "Analytics queries that returned an error, by view.",
		}, []string{"view"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "query_duration_seconds",
			Help:      "Time spent loading and aggregating a query, by view.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"view"}),
		truncates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "truncated_queries_total",
			Help:      "Queries that hit the per-query trace cap, by view.",
		}, []string{"view"}),
	}

	reg.MustRegister(m.queries, m.failures, m.duration, m.truncates)

	if spansReceived != nil {
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "spans_received_total",
			Help:      "Spans accepted into the span store.",
		}, spansReceived))
	}

	return m
}

// observe counts a query and returns a func that records its outcome.
func (m *Metrics) observe(view string) func(err error) {
	if m == nil {
		return func(error) {}
	}
	start := time.Now()
	m.queries.WithLabelValues(view).Inc()
	return func(err error) {
		m.duration.WithLabelValues(view).Observe(time.Since(start).Seconds())
		if err != nil {
			m.failures.WithLabelValues(view).Inc()
		}
	}
}

func (m *Metrics) truncated(view string) {
	if m == nil {
		return
	}
	m.truncates.WithLabelValues(view).Inc()
}
