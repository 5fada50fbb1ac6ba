// Package metrics holds the Prometheus collectors of the auth service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Status labels for request metrics.
const (
	StatusSuccess      = "success"
	StatusInvalid      = "invalid"
	StatusUnauthorized = "unauthorized"
	StatusConflict     = "conflict"
	StatusRateLimited  = "rate_limited"
	StatusError        = "error"
)

// Metrics groups the collectors. Create it with New and register it once.
type Metrics struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

func New() *Metrics {
	return &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventhub_auth_requests_total",
				Help: "Total number of auth actions handled",
			},
			[]string{"action", "status"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventhub_auth_request_duration_seconds",
				Help:    "Auth action duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action"},
		),
	}
}

// Register adds the collectors to reg. Panics on duplicate registration,
// following the prometheus convention.
func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(m.Requests, m.Duration)
}

// Observe records one handled action.
func (m *Metrics) Observe(action, status string, d time.Duration) {
	m.Requests.WithLabelValues(action, status).Inc()
	m.Duration.WithLabelValues(action).Observe(d.Seconds())
}

// StatusFor maps an HTTP status code to a metrics status label.
func StatusFor(code int) string {
	switch {
	case code < 400:
		return StatusSuccess
	case code == 401:
		return StatusUnauthorized
	case code == 409:
		return StatusConflict
	case code == 429:
		return StatusRateLimited
	case code < 500:
		return StatusInvalid
	default:
		return StatusError
	}
}
