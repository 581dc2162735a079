/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import "github.com/prometheus/client_golang/prometheus"

// MetricsCollector represents a collector of metrics about limiter decisions.
type MetricsCollector interface {
	// IncAllowed increments the total number of allowed requests.
	IncAllowed()

	// IncBlocked increments the total number of blocked requests.
	IncBlocked()

	// SetActiveClients sets the number of identities with a tracked window.
	SetActiveClients(int)
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
}

// PrometheusMetrics represents Prometheus metrics for the rate limiter.
type PrometheusMetrics struct {
	AllowedTotal  prometheus.Counter
	BlockedTotal  prometheus.Counter
	ActiveClients prometheus.Gauge
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	return &PrometheusMetrics{
		AllowedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "rate_limit_allowed_total",
			Help:        "Number of requests allowed by the client rate limiter.",
			ConstLabels: opts.ConstLabels,
		}),
		BlockedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "rate_limit_blocked_total",
			Help:        "Number of requests blocked by the client rate limiter.",
			ConstLabels: opts.ConstLabels,
		}),
		ActiveClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "rate_limit_active_clients",
			Help:        "Number of identities with a tracked rate limiting window.",
			ConstLabels: opts.ConstLabels,
		}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(
		pm.AllowedTotal,
		pm.BlockedTotal,
		pm.ActiveClients,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.AllowedTotal)
	prometheus.Unregister(pm.BlockedTotal)
	prometheus.Unregister(pm.ActiveClients)
}

// IncAllowed increments the total number of allowed requests.
func (pm *PrometheusMetrics) IncAllowed() {
	pm.AllowedTotal.Inc()
}

// IncBlocked increments the total number of blocked requests.
func (pm *PrometheusMetrics) IncBlocked() {
	pm.BlockedTotal.Inc()
}

// SetActiveClients sets the number of identities with a tracked window.
func (pm *PrometheusMetrics) SetActiveClients(amount int) {
	pm.ActiveClients.Set(float64(amount))
}

type disabledMetrics struct{}

func (disabledMetrics) IncAllowed()          {}
func (disabledMetrics) IncBlocked()          {}
func (disabledMetrics) SetActiveClients(int) {}
