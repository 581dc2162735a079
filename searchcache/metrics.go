/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package searchcache

import "github.com/prometheus/client_golang/prometheus"

// Eviction reasons reported to MetricsCollector.AddEvictions.
const (
	EvictionReasonExpired    = "expired"
	EvictionReasonMaxEntries = "max_entries"
	EvictionReasonMaxMemory  = "max_memory"
)

// MetricsCollector represents a collector of metrics to analyze how (effectively or not) cache is used.
type MetricsCollector interface {
	// SetEntriesAmount sets the total number of entries in the cache.
	SetEntriesAmount(int)

	// SetMemoryUsage sets the estimated memory held by all cache entries in bytes.
	SetMemoryUsage(int64)

	// IncHits increments the total number of successfully found keys in the cache.
	IncHits()

	// IncMisses increments the total number of not found keys in the cache.
	IncMisses()

	// AddEvictions increments the total number of evicted entries for the given reason.
	AddEvictions(reason string, amount int)
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
}

// PrometheusMetrics represents Prometheus metrics for the cache.
type PrometheusMetrics struct {
	EntriesAmount    prometheus.Gauge
	MemoryUsageBytes prometheus.Gauge
	HitsTotal        prometheus.Counter
	MissesTotal      prometheus.Counter
	EvictionsTotal   *prometheus.CounterVec
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	return &PrometheusMetrics{
		EntriesAmount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "search_cache_entries_amount",
			Help:        "Total number of entries in the search cache.",
			ConstLabels: opts.ConstLabels,
		}),
		MemoryUsageBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "search_cache_memory_usage_bytes",
			Help:        "Estimated memory held by all search cache entries.",
			ConstLabels: opts.ConstLabels,
		}),
		HitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "search_cache_hits_total",
			Help:        "Number of successfully found keys in the search cache.",
			ConstLabels: opts.ConstLabels,
		}),
		MissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "search_cache_misses_total",
			Help:        "Number of not found keys in the search cache.",
			ConstLabels: opts.ConstLabels,
		}),
		EvictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "search_cache_evictions_total",
			Help:        "Number of evicted search cache entries.",
			ConstLabels: opts.ConstLabels,
		}, []string{"reason"}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.EntriesAmount,
		pm.MemoryUsageBytes,
		pm.HitsTotal,
		pm.MissesTotal,
		pm.EvictionsTotal,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.EntriesAmount)
	prometheus.Unregister(pm.MemoryUsageBytes)
	prometheus.Unregister(pm.HitsTotal)
	prometheus.Unregister(pm.MissesTotal)
	prometheus.Unregister(pm.EvictionsTotal)
}

// SetEntriesAmount sets the total number of entries in the cache.
func (pm *PrometheusMetrics) SetEntriesAmount(amount int) {
	pm.EntriesAmount.Set(float64(amount))
}

// SetMemoryUsage sets the estimated memory held by all cache entries in bytes.
func (pm *PrometheusMetrics) SetMemoryUsage(bytes int64) {
	pm.MemoryUsageBytes.Set(float64(bytes))
}

// IncHits increments the total number of successfully found keys in the cache.
func (pm *PrometheusMetrics) IncHits() {
	pm.HitsTotal.Inc()
}

// IncMisses increments the total number of not found keys in the cache.
func (pm *PrometheusMetrics) IncMisses() {
	pm.MissesTotal.Inc()
}

// AddEvictions increments the total number of evicted entries for the given reason.
func (pm *PrometheusMetrics) AddEvictions(reason string, amount int) {
	if amount <= 0 {
		return
	}
	pm.EvictionsTotal.With(prometheus.Labels{"reason": reason}).Add(float64(amount))
}

type disabledMetrics struct{}

func (disabledMetrics) SetEntriesAmount(int)     {}
func (disabledMetrics) SetMemoryUsage(int64)     {}
func (disabledMetrics) IncHits()                 {}
func (disabledMetrics) IncMisses()               {}
func (disabledMetrics) AddEvictions(string, int) {}
