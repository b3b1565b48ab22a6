package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "exchange_ws"

// Metrics holds the collectors shared by the session, multiplexer and journal.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	framesReceived *prometheus.CounterVec
	framesUnrouted prometheus.Counter
	parseErrors    prometheus.Counter
	acks           *prometheus.CounterVec
	listeners      prometheus.Gauge
	connects       *prometheus.CounterVec
	journalRows    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Inbound frames by channel and event.",
		}, []string{"channel", "event"}),
		framesUnrouted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_unrouted_total",
			Help:      "Inbound frames that matched no waiter or listener.",
		}),
		parseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_parse_errors_total",
			Help:      "Inbound frames that could not be decoded.",
		}),
		acks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acks_total",
			Help:      "Acknowledgements by request kind and outcome.",
		}, []string{"kind", "outcome"}),
		listeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "listeners",
			Help:      "Registered channel listeners.",
		}),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connects_total",
			Help:      "Connection attempts by outcome.",
		}, []string{"outcome"}),
		journalRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_rows_total",
			Help:      "Order events handled by the journal by outcome.",
		}, []string{"outcome"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.framesReceived,
			m.framesUnrouted,
			m.parseErrors,
			m.acks,
			m.listeners,
			m.connects,
			m.journalRows,
		)
	}
	return m
}

// FrameReceived counts an inbound frame.
func (m *Metrics) FrameReceived(channel, event string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(channel, event).Inc()
}

// FrameUnrouted counts a frame nobody consumed.
func (m *Metrics) FrameUnrouted() {
	if m == nil {
		return
	}
	m.framesUnrouted.Inc()
}

// ParseError counts an undecodable frame.
func (m *Metrics) ParseError() {
	if m == nil {
		return
	}
	m.parseErrors.Inc()
}

// Ack counts an acknowledgement. kind is subscribe, unsubscribe or auth;
// outcome is accepted, rejected, timeout or error.
func (m *Metrics) Ack(kind, outcome string) {
	if m == nil {
		return
	}
	m.acks.WithLabelValues(kind, outcome).Inc()
}

// SetListeners records the current listener count.
func (m *Metrics) SetListeners(n int) {
	if m == nil {
		return
	}
	m.listeners.Set(float64(n))
}

// Connect counts a connection attempt.
func (m *Metrics) Connect(ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.connects.WithLabelValues(outcome).Inc()
}

// JournalRows counts journal rows by outcome (inserted, failed).
func (m *Metrics) JournalRows(outcome string, n int) {
	if m == nil {
		return
	}
	m.journalRows.WithLabelValues(outcome).Add(float64(n))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
