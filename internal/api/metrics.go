package api

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// Metrics tracks API usage for one client. Each client owns its registry so
// several clients (and tests) do not collide.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	throttledTotal  *prometheus.CounterVec
	retriesTotal    prometheus.Counter
}

// NewMetrics creates a metrics set on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filedesk_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "scope", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "filedesk_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "scope"},
		),
		throttledTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "filedesk_api_throttled_total",
				Help: "Responses with status 429",
			},
			[]string{"scope"},
		),
		retriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "filedesk_api_retries_total",
				Help: "Transport-level retry attempts",
			},
		),
	}
}

// RecordRequest records a completed request. status 0 means no response.
func (m *Metrics) RecordRequest(method, scope string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.requestsTotal.WithLabelValues(method, scope, label).Inc()
	m.requestDuration.WithLabelValues(method, scope).Observe(duration.Seconds())
}

func (m *Metrics) RecordThrottle(scope string) {
	if m == nil {
		return
	}
	m.throttledTotal.WithLabelValues(scope).Inc()
}

func (m *Metrics) RecordRetry() {
	if m == nil {
		return
	}
	m.retriesTotal.Inc()
}

// Registry exposes the underlying registry, e.g. for promhttp.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteText dumps all metrics in the Prometheus text exposition format.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}
