// Package metrics exposes Prometheus collectors for cache and vendor
// activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the provider's collectors. All methods are safe on a nil
// receiver so packages can run without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	cacheHits    *prometheus.CounterVec
	cacheMisses  *prometheus.CounterVec
	vendorCalls  *prometheus.CounterVec
	vendorTiming *prometheus.HistogramVec
	refreshes    *prometheus.CounterVec
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tushare",
			Name:      "cache_hits_total",
			Help:      "Reads served from the table cache.",
		}, []string{"table"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tushare",
			Name:      "cache_misses_total",
			Help:      "Reads that fell through to the vendor.",
		}, []string{"table"}),
		vendorCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tushare",
			Name:      "vendor_calls_total",
			Help:      "Tushare API calls by endpoint and outcome.",
		}, []string{"api", "outcome"}),
		vendorTiming: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tushare",
			Name:      "vendor_call_seconds",
			Help:      "Tushare API call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"api"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tushare",
			Name:      "cache_refreshes_total",
			Help:      "Scheduled cache refreshes by table and outcome.",
		}, []string{"table", "outcome"}),
	}
	reg.MustRegister(m.cacheHits, m.cacheMisses, m.vendorCalls, m.vendorTiming, m.refreshes)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) CacheHit(table string) {
	if m != nil {
		m.cacheHits.WithLabelValues(table).Inc()
	}
}

func (m *Metrics) CacheMiss(table string) {
	if m != nil {
		m.cacheMisses.WithLabelValues(table).Inc()
	}
}

// VendorCall records one API call; err decides the outcome label.
func (m *Metrics) VendorCall(api string, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.vendorCalls.WithLabelValues(api, outcome(err)).Inc()
	m.vendorTiming.WithLabelValues(api).Observe(took.Seconds())
}

func (m *Metrics) Refresh(table string, err error) {
	if m != nil {
		m.refreshes.WithLabelValues(table, outcome(err)).Inc()
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
