package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	CycleSaves         *prometheus.CounterVec
	CycleSaveFailures  *prometheus.CounterVec
	AggregationSeconds prometheus.Histogram
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// New registers the service metrics on reg. Passing nil uses a fresh
// registry, which keeps tests independent of the global one.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: reg,
		CycleSaves: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flextraff_cycle_saves_total",
			Help: "Total number of cycle configurations saved, by mode and action.",
		}, []string{"mode", "action"}),
		CycleSaveFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flextraff_cycle_save_failures_total",
			Help: "Total number of rejected or failed cycle saves, by reason.",
		}, []string{"reason"}),
		AggregationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "flextraff_aggregation_duration_seconds",
			Help:    "Duration of a lane aggregation over the detection window.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flextraff_http_requests_total",
			Help: "Total number of HTTP requests, by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flextraff_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

func (m *Metrics) ObserveSave(mode, action string) {
	m.CycleSaves.WithLabelValues(mode, action).Inc()
}

func (m *Metrics) ObserveSaveFailure(reason string) {
	m.CycleSaveFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveAggregation(d time.Duration) {
	m.AggregationSeconds.Observe(d.Seconds())
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
