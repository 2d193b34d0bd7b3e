package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "ltn_survey"

// Metrics holds the Prometheus counters and histograms for a batch run.
type Metrics struct {
	RowsLoaded    *prometheus.CounterVec // labels: input={responses,streets}
	RowsDropped   *prometheus.CounterVec // labels: input, reason
	TablesWritten prometheus.Counter

	// Lookup metrics.
	LookupRequests    *prometheus.CounterVec   // labels: provider={nominatim,osrm,directions,zoopla}, outcome={success,error,empty}
	LookupCache       *prometheus.CounterVec   // labels: layer={memory,sqlite}, result={hit,miss}
	LookupAPIDuration *prometheus.HistogramVec // labels: provider

	registry *prometheus.Registry
}

// NewMetrics creates all run metrics on a dedicated registry so the whole set
// can be pushed to a Pushgateway when the run finishes.
func NewMetrics() *Metrics {
	m := newMetrics()
	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(
		m.RowsLoaded,
		m.RowsDropped,
		m.TablesWritten,
		m.LookupRequests,
		m.LookupCache,
		m.LookupAPIDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics for unit tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RowsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_loaded_total",
			Help:      "Input rows accepted by the loaders.",
		}, []string{"input"}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Input rows rejected during cleaning.",
		}, []string{"input", "reason"}),
		TablesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tables_written_total",
			Help:      "Aggregate tables written to disk.",
		}),
		LookupRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_requests_total",
			Help:      "External lookup requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		LookupCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_cache_total",
			Help:      "Lookup cache results by layer.",
		}, []string{"layer", "result"}),
		LookupAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lookup_api_duration_seconds",
			Help:      "External lookup request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider"}),
	}
}

// Push sends the run's metrics to a Pushgateway under the given job name.
// It is a no-op for metrics that were not created by NewMetrics.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if m.registry == nil {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
