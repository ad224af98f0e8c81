package telegrambot

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "volleybot"

// Metrics holds the bot's Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests   *prometheus.CounterVec
	dispatches *prometheus.CounterVec
	forwards   *prometheus.CounterVec
	duration   prometheus.Histogram
}

// NewMetrics registers the collectors on reg. A nil reg gets a fresh registry
// with the Go and process collectors attached.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "webhook_requests_total",
			Help:      "Webhook POST requests by result.",
		}, []string{"result"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dispatch_total",
			Help:      "Dispatched updates by route.",
		}, []string{"route"}),
		forwards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "forward_total",
			Help:      "Backend forwards by backend and status.",
		}, []string{"backend", "status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "webhook_duration_seconds",
			Help:      "Time to handle an accepted webhook request.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.requests, m.dispatches, m.forwards, m.duration)
	return m
}

// ObserveRequest counts a webhook POST. d is recorded when positive.
func (m *Metrics) ObserveRequest(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(result).Inc()
	if d > 0 {
		m.duration.Observe(d.Seconds())
	}
}

// ObserveDispatch counts one dispatch outcome.
func (m *Metrics) ObserveDispatch(o Outcome, err error) {
	if m == nil {
		return
	}
	route := o.String()
	if o.Matched() {
		route = o.Route()
	}
	if err != nil {
		route = "error"
	}
	m.dispatches.WithLabelValues(route).Inc()
}

// ObserveForward counts a finished relay forward.
func (m *Metrics) ObserveForward(res ForwardResult) {
	if m == nil {
		return
	}
	status := "ok"
	if res.Err != nil {
		status = "error"
	}
	m.forwards.WithLabelValues(res.Backend, status).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
