// Package observability provides Prometheus metrics for the sync service.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stx20sync"

// Metrics holds every collector the service exports.
type Metrics struct {
	registry *prometheus.Registry

	// Cycle metrics
	CyclesTotal     *prometheus.CounterVec
	CycleDuration   prometheus.Histogram
	LastSuccess     prometheus.Gauge
	FetchRetries    prometheus.Counter
	Changes         *prometheus.CounterVec
	RecordsRejected *prometheus.CounterVec
	ValuesSaturated *prometheus.CounterVec

	// Trigger metrics
	BlockNotifications prometheus.Counter
	TriggersDropped    prometheus.Counter

	// Auxiliary syncs
	AuxFetchErrors *prometheus.CounterVec

	// HTTP facade
	HTTPRequests *prometheus.CounterVec
}

// NewMetrics registers all collectors on a fresh registry, together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		CyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Sync cycles by result (success, failed, skipped)",
		}, []string{"result"}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of sync cycles that reached the commit phase",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last committed sync cycle",
		}),
		FetchRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_retries_total",
			Help:      "Snapshot fetch attempts retried after a remote failure",
		}),
		Changes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_total",
			Help:      "Committed row changes by entity and operation",
		}, []string{"entity", "op"}),
		RecordsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      "Remote records quarantined at the API boundary",
		}, []string{"kind"}),
		ValuesSaturated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "values_saturated_total",
			Help:      "Remote integer fields clamped to the int64 range, by record kind",
		}, []string{"kind"}),

		BlockNotifications: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "block_notifications_total",
			Help:      "Block notifications received from the Stacks node",
		}),
		TriggersDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_coalesced_total",
			Help:      "Sync triggers folded into an already pending cycle",
		}),

		AuxFetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aux_fetch_errors_total",
			Help:      "Failed per-item fetches in the price data and balance syncs",
		}, []string{"sync"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "REST requests by route pattern and status code",
		}, []string{"route", "code"}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
