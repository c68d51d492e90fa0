// Package observability provides structured logging, Prometheus metrics and
// the health endpoint.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "volumebot"

// Metrics holds the bot's Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// Execution metrics
	OperationsTotal *prometheus.CounterVec
	CyclesTotal     *prometheus.CounterVec
	CycleDuration   *prometheus.HistogramVec

	// Conversation metrics
	PreflightTotal *prometheus.CounterVec
	UpdatesTotal   *prometheus.CounterVec
	ActiveSessions prometheus.Gauge

	// Provider metrics
	TokenLookups *prometheus.CounterVec
}

// NewMetrics registers every collector on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "operations_total",
			Help:      "Swap operations by network, side and outcome",
		}, []string{"network", "side", "status"}),
		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "cycles_total",
			Help:      "Completed or interrupted cycles by network and side",
		}, []string{"network", "side", "interrupted"}),
		CycleDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a buy or sell cycle",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"network", "side"}),

		PreflightTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "preflight",
			Name:      "checks_total",
			Help:      "Start attempts by status and reason",
		}, []string{"status", "reason"}),
		UpdatesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "updates_total",
			Help:      "Inbound chat updates by kind",
		}, []string{"kind"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Sessions currently held in memory",
		}),

		TokenLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "token_lookups_total",
			Help:      "Token metadata lookups by cache status",
		}, []string{"cache"}),
	}
}

// ObserveOperation counts one scheduled operation.
func (m *Metrics) ObserveOperation(network, side, status string) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(network, side, status).Inc()
}

// ObserveCycle records a finished cycle.
func (m *Metrics) ObserveCycle(network, side string, interrupted bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	flag := "false"
	if interrupted {
		flag = "true"
	}
	m.CyclesTotal.WithLabelValues(network, side, flag).Inc()
	m.CycleDuration.WithLabelValues(network, side).Observe(elapsed.Seconds())
}

func (m *Metrics) ObservePreflight(status, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "none"
	}
	m.PreflightTotal.WithLabelValues(status, reason).Inc()
}

func (m *Metrics) ObserveUpdate(kind string) {
	if m == nil {
		return
	}
	m.UpdatesTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) ObserveTokenLookup(cacheStatus string) {
	if m == nil {
		return
	}
	m.TokenLookups.WithLabelValues(cacheStatus).Inc()
}
