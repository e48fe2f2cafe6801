// Package metrics exposes Prometheus instrumentation for the gateway.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Collector owns the registry and every gateway metric.
//
// Metrics:
//   - <ns>_requests_total: completions by provider, model, status
//   - <ns>_request_duration_seconds: completion duration histogram
//   - <ns>_request_tokens_total: tokens by provider, model, type
//   - <ns>_cost_usd_total: accumulated spend by provider, model
//   - <ns>_fallback_total: requests served by a fallback provider
//   - <ns>_budget_rejections_total: pre-flight budget denials
//   - <ns>_http_requests_total: HTTP traffic by method, path, code
type Collector struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	tokensTotal      *prometheus.CounterVec
	costTotal        *prometheus.CounterVec
	fallbackTotal    *prometheus.CounterVec
	budgetRejections *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
}

// NewCollector creates the registry and registers all metrics under the
// namespace, plus the standard Go and process collectors.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of completion requests processed",
			},
			[]string{"provider", "model", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of completion requests in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"provider", "model"},
		),

		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "request_tokens_total",
				Help:      "Total tokens processed",
			},
			[]string{"provider", "model", "type"},
		),

		costTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cost_usd_total",
				Help:      "Accumulated upstream spend in USD",
			},
			[]string{"provider", "model"},
		),

		fallbackTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fallback_total",
				Help:      "Requests served by a fallback provider",
			},
			[]string{"original", "actual"},
		),

		budgetRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "budget_rejections_total",
				Help:      "Requests rejected by the budget pre-flight",
			},
			[]string{"window"},
		),

		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status code",
			},
			[]string{"method", "path", "code"},
		),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.requestsTotal,
		c.requestDuration,
		c.tokensTotal,
		c.costTotal,
		c.fallbackTotal,
		c.budgetRejections,
		c.httpRequests,
	)
	return c
}

// RecordCompletion records one finished pipeline invocation.
func (c *Collector) RecordCompletion(provider, model, status string, duration time.Duration, promptTokens, completionTokens int, costUSD float64) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(provider, model, status).Inc()
	c.requestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	if promptTokens > 0 {
		c.tokensTotal.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		c.tokensTotal.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
	if costUSD > 0 {
		c.costTotal.WithLabelValues(provider, model).Add(costUSD)
	}
}

// RecordFallback records a request served by a non-primary provider.
func (c *Collector) RecordFallback(original, actual string) {
	if c == nil {
		return
	}
	c.fallbackTotal.WithLabelValues(original, actual).Inc()
}

// RecordBudgetRejection records a pre-flight budget denial.
func (c *Collector) RecordBudgetRejection(window string) {
	if c == nil {
		return
	}
	c.budgetRejections.WithLabelValues(window).Inc()
}

// RecordHTTP records one served HTTP request.
func (c *Collector) RecordHTTP(method, path, code string) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, path, code).Inc()
}
