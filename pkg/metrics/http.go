package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics provides observability for the HTTP API.
//
// This interface is optional. If metrics are disabled a no-op
// implementation is returned, so call sites never check for nil.
type HTTPMetrics interface {
	// RecordRequest records a completed request with its route pattern,
	// response status, and duration.
	RecordRequest(route string, status int, duration time.Duration)

	// RecordRequestStart increments the in-flight request gauge.
	RecordRequestStart()

	// RecordRequestEnd decrements the in-flight request gauge.
	RecordRequestEnd()

	// RecordLoginThrottled increments the rejected-login counter.
	RecordLoginThrottled()
}

type httpMetrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge
	loginsThrottled  prometheus.Counter
}

// NewHTTPMetrics creates a Prometheus-backed HTTPMetrics instance, or a
// no-op implementation when metrics are disabled.
func NewHTTPMetrics() HTTPMetrics {
	if !IsEnabled() {
		return noopHTTPMetrics{}
	}

	reg := GetRegistry()

	return &httpMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "driftfs_http_requests_total",
				Help: "Total number of HTTP requests by route and status code",
			},
			[]string{"route", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "driftfs_http_request_duration_seconds",
				Help: "Duration of HTTP requests in seconds",
				Buckets: []float64{
					0.001, // 1ms
					0.005, // 5ms
					0.01,  // 10ms
					0.025, // 25ms
					0.05,  // 50ms
					0.1,   // 100ms
					0.25,  // 250ms
					0.5,   // 500ms
					1.0,   // 1s
					2.5,   // 2.5s
					5.0,   // 5s
				},
			},
			[]string{"route"},
		),
		requestsInFlight: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "driftfs_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),
		loginsThrottled: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "driftfs_http_logins_throttled_total",
				Help: "Total number of login attempts rejected by rate limiting",
			},
		),
	}
}

func (m *httpMetrics) RecordRequest(route string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func (m *httpMetrics) RecordRequestStart() {
	m.requestsInFlight.Inc()
}

func (m *httpMetrics) RecordRequestEnd() {
	m.requestsInFlight.Dec()
}

func (m *httpMetrics) RecordLoginThrottled() {
	m.loginsThrottled.Inc()
}

// noopHTTPMetrics is a no-op implementation of HTTPMetrics.
type noopHTTPMetrics struct{}

func (noopHTTPMetrics) RecordRequest(route string, status int, duration time.Duration) {}
func (noopHTTPMetrics) RecordRequestStart()                                            {}
func (noopHTTPMetrics) RecordRequestEnd()                                              {}
func (noopHTTPMetrics) RecordLoginThrottled()                                          {}
