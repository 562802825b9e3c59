package taskpoll

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Attempt outcome labels.
const (
	attemptPayload      = "payload"
	attemptNetworkError = "network_error"
	attemptHTTPError    = "http_error"
	attemptMalformed    = "malformed"
)

// Session outcome labels.
const (
	sessionSuccess   = "success"
	sessionFailure   = "failure"
	sessionTimeout   = "timeout"
	sessionCancelled = "cancelled"
)

// Metrics exposes Prometheus collectors that report polling activity.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	attempts        *prometheus.CounterVec
	activeSessions  prometheus.Gauge
	sessionDuration *prometheus.HistogramVec
}

// MustNewMetrics constructs a [Metrics] instance registered with reg.
//
// A nil reg uses prometheus.DefaultRegisterer. Collectors that are already
// registered with the same descriptors are reused; any other registration
// error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	attempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskpoll",
			Name:      "poll_attempts_total",
			Help:      "Poll requests issued, by outcome.",
		},
		[]string{"outcome"},
	)
	activeSessions := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "taskpoll",
			Name:      "poll_sessions_active",
			Help:      "Number of poll loops currently running.",
		},
	)
	sessionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "taskpoll",
			Name:      "poll_session_duration_seconds",
			Help:      "Wall-clock duration of poll loops, by outcome.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"outcome"},
	)

	if err := reg.Register(attempts); err != nil {
		attempts = mustExisting[*prometheus.CounterVec](err)
	}
	if err := reg.Register(activeSessions); err != nil {
		activeSessions = mustExisting[prometheus.Gauge](err)
	}
	if err := reg.Register(sessionDuration); err != nil {
		sessionDuration = mustExisting[*prometheus.HistogramVec](err)
	}

	return &Metrics{
		attempts:        attempts,
		activeSessions:  activeSessions,
		sessionDuration: sessionDuration,
	}
}

// mustExisting returns the collector already registered under the same
// descriptor, or panics on any other registration error.
func mustExisting[T prometheus.Collector](err error) T {
	already, ok := err.(prometheus.AlreadyRegisteredError)
	if !ok {
		panic(err)
	}
	existing, ok := already.ExistingCollector.(T)
	if !ok {
		panic(err)
	}
	return existing
}

func (m *Metrics) attempt(outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) sessionStarted() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) sessionFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
	m.sessionDuration.WithLabelValues(outcome).Observe(d.Seconds())
}
