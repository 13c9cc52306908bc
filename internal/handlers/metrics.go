package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "wonder"

// metrics holds the Prometheus metrics of the functions on a private registry.
type metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	upstreamErrors  *prometheus.CounterVec
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "function_requests_total",
			Help:      "Total number of function requests",
		},
		[]string{"function", "status"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "function_request_duration_seconds",
			Help:      "Function request duration in seconds, until the response is complete",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"function"},
	)

	upstreamErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "upstream_errors_total",
			Help:      "Total number of failed upstream model or speech calls",
		},
		[]string{"function", "status"},
	)

	registry.MustRegister(requestsTotal, requestDuration, upstreamErrors)

	return &metrics{
		registry:        registry,
		requestsTotal:   requestsTotal,
		requestDuration: requestDuration,
		upstreamErrors:  upstreamErrors,
	}
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) recordUpstreamError(function string, status int) {
	m.upstreamErrors.WithLabelValues(function, strconv.Itoa(status)).Inc()
}

// instrument records the request count by status and the duration of the function.
func (m Main) instrument(function string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		m.metrics.requestsTotal.WithLabelValues(function, strconv.Itoa(status)).Inc()
		m.metrics.requestDuration.WithLabelValues(function).Observe(time.Since(start).Seconds())
	})
}
