package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "quickorder"

// Metrics holds the Prometheus collectors for the quick-order pipeline.
type Metrics struct {
	registry        *prometheus.Registry
	events          *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
	ordersPlaced    prometheus.Counter
	operations      *prometheus.HistogramVec
	httpRequests    *prometheus.CounterVec
	httpRequestTime *prometheus.HistogramVec
}

// NewMetrics registers the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "pipeline_events_total",
			Help:      "Pipeline diagnostic events by name and level",
		}, []string{"event", "level"}),
		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "fallbacks_total",
			Help:      "Degraded responses served by component",
		}, []string{"component"}),
		ordersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "orders_placed_total",
			Help:      "Orders committed through the quick-order flow",
		}),
		operations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "operation_duration_seconds",
			Help:      "Quick-order operation latency",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"operation"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		httpRequestTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.events,
		m.fallbacks,
		m.ordersPlaced,
		m.operations,
		m.httpRequests,
		m.httpRequestTime,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveOperation records how long a quick-order operation took.
func (m *Metrics) ObserveOperation(operation string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RecordEvent counts a diagnostic event and derives the fallback and order counters from it.
func (m *Metrics) RecordEvent(event, level string) {
	if m == nil || event == "" {
		return
	}
	m.events.WithLabelValues(event, level).Inc()
	if component, ok := strings.CutSuffix(event, ".fallback"); ok {
		m.fallbacks.WithLabelValues(component).Inc()
	}
	if event == "order.placed" {
		m.ordersPlaced.Inc()
	}
}

// Middleware records request counts and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	next = passthrough(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := newResponseRecorder(w)
		next.ServeHTTP(recorder, r)

		route := SanitizeRoute(routePattern(r))
		method := SanitizeMethod(r.Method)
		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(recorder.Status())).Inc()
		m.httpRequestTime.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}
