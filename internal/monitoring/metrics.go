// Package monitoring exposes Prometheus metrics for the gateway.
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the gateway's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	refreshTotal    *prometheus.CounterVec
	streamedChunks  prometheus.Counter
}

// New creates and registers the gateway collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maxrelay",
			Name:      "requests_total",
			Help:      "Proxied requests by route and response status.",
		}, []string{"route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "maxrelay",
			Name:      "request_duration_seconds",
			Help:      "Upstream round-trip latency by route.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"route"}),
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maxrelay",
			Name:      "token_refresh_total",
			Help:      "Token refresh attempts by outcome.",
		}, []string{"outcome"}),
		streamedChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "maxrelay",
			Name:      "streamed_chunks_total",
			Help:      "Response chunks forwarded in streaming mode.",
		}),
	}
	reg.MustRegister(m.requestsTotal, m.requestDuration, m.refreshTotal, m.streamedChunks)
	return m
}

// Handler serves the metrics scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one proxied request.
func (m *Metrics) ObserveRequest(route string, status int, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveRefresh records one token refresh attempt.
func (m *Metrics) ObserveRefresh(ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.refreshTotal.WithLabelValues(outcome).Inc()
}

// ObserveStreamChunk records one forwarded stream chunk.
func (m *Metrics) ObserveStreamChunk() {
	m.streamedChunks.Inc()
}
