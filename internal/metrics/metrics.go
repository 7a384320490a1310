// Package metrics exposes Prometheus collectors for connection admission
// and credential persistence. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tabletop"

// Handshake results, used as the result label
const (
	ResultOK            = "ok"
	ResultWrongPassword = "wrong_password"
	ResultDuplicateName = "duplicate_name"
	ResultWrongVersion  = "wrong_version"
	ResultDisabled      = "disabled"
	ResultNotPlayTime   = "not_play_time"
	ResultTransport     = "transport_error"
	ResultInternal      = "internal_error"
)

// Metrics holds the collectors
type Metrics struct {
	handshakes        *prometheus.CounterVec
	handshakeDuration prometheus.Histogram
	activeSessions    prometheus.Gauge
	flushes           *prometheus.CounterVec
	flushDuration     prometheus.Histogram
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		handshakes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshakes_total",
			Help:      "Connection handshakes by result.",
		}, []string{"result"}),
		handshakeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handshake_duration_seconds",
			Help:      "Time spent receiving, decrypting and answering a handshake.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Connections admitted and not yet closed.",
		}),
		flushes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "password_file_flushes_total",
			Help:      "Password file writes by result.",
		}, []string{"result"}),
		flushDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "password_file_flush_duration_seconds",
			Help:      "Time spent rewriting the password file.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// ObserveHandshake records one handshake with its result
func (m *Metrics) ObserveHandshake(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.handshakes.WithLabelValues(result).Inc()
	m.handshakeDuration.Observe(d.Seconds())
}

// SessionOpened increments the active session gauge
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

// SessionClosed decrements the active session gauge
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

// ObserveFlush records one password file write
func (m *Metrics) ObserveFlush(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.flushes.WithLabelValues(result).Inc()
	m.flushDuration.Observe(d.Seconds())
}
