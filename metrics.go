package gigsync

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts realtime traffic. A nil *Metrics is valid and records nothing.
type Metrics struct {
	eventsReceived *prometheus.CounterVec
	eventsDropped  *prometheus.CounterVec
	emitsDropped   *prometheus.CounterVec
	reconnects     prometheus.Counter
	connState      *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		eventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gigsync_realtime_events_received_total",
				Help: "Total number of realtime events received.",
			},
			[]string{"event"},
		),
		eventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gigsync_realtime_events_dropped_total",
				Help: "Total number of inbound realtime events dropped.",
			},
			[]string{"event", "reason"},
		),
		emitsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gigsync_realtime_emits_dropped_total",
				Help: "Total number of outbound realtime events that were not sent.",
			},
			[]string{"event"},
		),
		reconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gigsync_realtime_reconnect_attempts_total",
				Help: "Total number of connection retries after a failed attempt.",
			},
		),
		connState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gigsync_realtime_connection_state",
				Help: "1 for the current connection state, 0 for the others.",
			},
			[]string{"state"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.eventsReceived, m.eventsDropped, m.emitsDropped, m.reconnects, m.connState)
	}
	m.setConnState(StateDisconnected)
	return m
}

func (m *Metrics) eventReceived(event string) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(event).Inc()
}

func (m *Metrics) eventDropped(event, reason string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(event, reason).Inc()
}

func (m *Metrics) emitDropped(event string) {
	if m == nil {
		return
	}
	m.emitsDropped.WithLabelValues(event).Inc()
}

func (m *Metrics) reconnectAttempt() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) setConnState(s ConnState) {
	if m == nil {
		return
	}
	for _, st := range []ConnState{StateDisconnected, StateConnecting, StateConnected} {
		v := 0.0
		if st == s {
			v = 1
		}
		m.connState.WithLabelValues(string(st)).Set(v)
	}
}
