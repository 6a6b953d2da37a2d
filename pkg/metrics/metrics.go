package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "votifier"

// Vote results
const (
	ResultOk     = "ok"
	ResultVetoed = "vetoed"
	ResultError  = "error"
)

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Metrics holds the votifier server metrics. A nil *Metrics records nothing.
type Metrics struct {
	ConnectionsAccepted prometheus.Counter
	ConnectionsRejected *prometheus.CounterVec
	ConnectionsActive   prometheus.Gauge
	VotesProcessed      *prometheus.CounterVec
	ConnectionFailures  *prometheus.CounterVec
	HandshakeDuration   prometheus.Histogram
}

// New creates and registers the votifier metrics on the given registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Total number of accepted votifier connections.",
		}),
		ConnectionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_rejected_total",
			Help:      "Total number of connections refused by a connection limit, by reason.",
		}, []string{"reason"}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of connections currently being served.",
		}),
		VotesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_processed_total",
			Help:      "Total number of completed handshakes, by result.",
		}, []string{"result"}),
		ConnectionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_failures_total",
			Help:      "Total number of rejected exchanges, by the stage they failed in.",
		}, []string{"stage"}),
		HandshakeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handshake_duration_seconds",
			Help:      "Duration of a votifier exchange from accept to reply.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}

	reg.MustRegister(m.ConnectionsAccepted, m.ConnectionsRejected, m.ConnectionsActive,
		m.VotesProcessed, m.ConnectionFailures, m.HandshakeDuration)
	return m
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsAccepted.Inc()
	m.ConnectionsActive.Inc()
}

func (m *Metrics) ConnectionClosed(started time.Time) {
	if m == nil {
		return
	}
	m.ConnectionsActive.Dec()
	m.HandshakeDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) ConnectionRejected(reason string) {
	if m == nil {
		return
	}
	m.ConnectionsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) VoteProcessed(result string) {
	if m == nil {
		return
	}
	m.VotesProcessed.WithLabelValues(result).Inc()
}

func (m *Metrics) ConnectionFailed(stage string) {
	if m == nil {
		return
	}
	m.ConnectionFailures.WithLabelValues(stage).Inc()
}
