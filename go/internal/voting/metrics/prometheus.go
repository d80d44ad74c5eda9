package metrics

import (
	"errors"
	"net/http"

	"github.com/mcdev12/livevote/go/internal/voting/events"
	"github.com/mcdev12/livevote/go/internal/voting/round"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "livevote"

// PrometheusMetrics records round, protocol and connection metrics on its own registry
type PrometheusMetrics struct {
	registry *prometheus.Registry

	roundsStarted    prometheus.Counter
	roundsEnded      *prometheus.CounterVec
	roundResets      prometheus.Counter
	roundActive      prometheus.Gauge
	votes            *prometheus.CounterVec
	messagesReceived *prometheus.CounterVec
	messagesDropped  *prometheus.CounterVec
	connections      prometheus.Gauge
	connectionsTotal prometheus.Counter
	eventsDelivered  *prometheus.CounterVec
	eventsDropped    *prometheus.CounterVec
}

// NewPrometheusMetrics creates and registers all collectors
func NewPrometheusMetrics() *PrometheusMetrics {
	m := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		roundsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_started_total",
			Help:      "Rounds started.",
		}),
		roundsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_ended_total",
			Help:      "Rounds ended, by winner.",
		}, []string{"winner"}),
		roundResets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "round_resets_total",
			Help:      "Explicit resets.",
		}),
		roundActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "round_active",
			Help:      "1 while a round is accepting votes.",
		}),
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_total",
			Help:      "Votes processed, by result.",
		}, []string{"result"}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Well-formed client messages, by type.",
		}, []string{"type"}),
		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Client messages dropped before dispatch, by reason.",
		}, []string{"reason"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open WebSocket connections.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "WebSocket connections accepted.",
		}),
		eventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_delivered_total",
			Help:      "Events queued to connections, by type.",
		}, []string{"type"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events skipped for connections with a full send buffer, by type.",
		}, []string{"type"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.roundsStarted,
		m.roundsEnded,
		m.roundResets,
		m.roundActive,
		m.votes,
		m.messagesReceived,
		m.messagesDropped,
		m.connections,
		m.connectionsTotal,
		m.eventsDelivered,
		m.eventsDropped,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *PrometheusMetrics) RoundStarted() {
	m.roundsStarted.Inc()
	m.roundActive.Set(1)
}

func (m *PrometheusMetrics) RoundEnded(winner string) {
	m.roundsEnded.WithLabelValues(winner).Inc()
	m.roundActive.Set(0)
}

func (m *PrometheusMetrics) RoundReset() {
	m.roundResets.Inc()
	m.roundActive.Set(0)
}

func (m *PrometheusMetrics) VoteRecorded(err error) {
	m.votes.WithLabelValues(VoteResult(err)).Inc()
}

func (m *PrometheusMetrics) MessageReceived(cmd events.CommandType) {
	m.messagesReceived.WithLabelValues(string(cmd)).Inc()
}

func (m *PrometheusMetrics) MessageDropped(reason string) {
	m.messagesDropped.WithLabelValues(reason).Inc()
}

func (m *PrometheusMetrics) ConnectionOpened() {
	m.connections.Inc()
	m.connectionsTotal.Inc()
}

func (m *PrometheusMetrics) ConnectionClosed() {
	m.connections.Dec()
}

func (m *PrometheusMetrics) EventBroadcast(eventType events.EventType, delivered, dropped int) {
	m.eventsDelivered.WithLabelValues(string(eventType)).Add(float64(delivered))
	m.eventsDropped.WithLabelValues(string(eventType)).Add(float64(dropped))
}

// VoteResult maps a vote outcome to a bounded label value
func VoteResult(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, round.ErrRoundInactive):
		return "inactive"
	case errors.Is(err, round.ErrVotingClosed):
		return "closed"
	case errors.Is(err, round.ErrMissingVoter):
		return "missing_voter"
	case errors.Is(err, round.ErrDuplicateVote):
		return "duplicate"
	case errors.Is(err, round.ErrInvalidChoice):
		return "invalid_choice"
	default:
		return "error"
	}
}
