package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "agent_ui"

// Metrics exposes Prometheus collectors for the realtime pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	socketPhases   *prometheus.CounterVec
	reconnects     *prometheus.CounterVec
	framesSent     *prometheus.CounterVec
	framesReceived *prometheus.CounterVec
	framesDropped  *prometheus.CounterVec
	audioChunks    *prometheus.CounterVec
	underruns      prometheus.Counter
	dispatches     *prometheus.CounterVec
}

// New registers the collectors with reg. Tests should pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration panics.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		socketPhases: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "socket_phase_transitions_total",
			Help:      "State machine transitions per socket and target phase.",
		}, []string{"socket", "phase"}),
		reconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnect attempts scheduled after a non-clean close.",
		}, []string{"socket"}),
		framesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "frames_sent_total",
			Help:      "Outbound frames written to the model stream.",
		}, []string{"socket", "kind"}),
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "frames_received_total",
			Help:      "Inbound frames decoded from the model stream.",
		}, []string{"socket", "kind"}),
		framesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped because they could not be decoded.",
		}, []string{"socket", "reason"}),
		audioChunks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audio",
			Name:      "chunks_total",
			Help:      "Audio chunks handled by the capture and playback pipelines.",
		}, []string{"direction", "outcome"}),
		underruns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audio",
			Name:      "playback_underruns_total",
			Help:      "Render blocks that were partially or fully zero-filled.",
		}),
		dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "action",
			Name:      "dispatches_total",
			Help:      "Parsed actions dispatched to the automation service.",
		}, []string{"kind", "outcome"}),
	}
}

func (m *Metrics) SocketPhase(socket, phase string) {
	if m == nil {
		return
	}
	m.socketPhases.WithLabelValues(socket, phase).Inc()
}

func (m *Metrics) ReconnectScheduled(socket string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(socket).Inc()
}

func (m *Metrics) FrameSent(socket, kind string) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(socket, kind).Inc()
}

func (m *Metrics) FrameReceived(socket, kind string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(socket, kind).Inc()
}

func (m *Metrics) FrameDropped(socket, reason string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(socket, reason).Inc()
}

// AudioChunk counts a chunk; direction is "capture" or "playback".
func (m *Metrics) AudioChunk(direction, outcome string) {
	if m == nil {
		return
	}
	m.audioChunks.WithLabelValues(direction, outcome).Inc()
}

func (m *Metrics) PlaybackUnderrun() {
	if m == nil {
		return
	}
	m.underruns.Inc()
}

func (m *Metrics) Dispatch(kind, outcome string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(kind, outcome).Inc()
}
