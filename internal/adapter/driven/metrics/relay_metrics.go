package metrics

import (
	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RelayMetrics implements port.RelayMetrics with Prometheus collectors.
type RelayMetrics struct {
	signalsRouted  *prometheus.CounterVec
	signalsDropped *prometheus.CounterVec
	mediaRelayed   prometheus.Counter
	clients        prometheus.Gauge
}

// NewRelayMetrics registers the relay collectors with reg.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	f := promauto.With(reg)
	return &RelayMetrics{
		signalsRouted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "yacall_signals_routed_total",
			Help: "Total number of call signals delivered to their addressee",
		}, []string{"kind"}),
		signalsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "yacall_signals_dropped_total",
			Help: "Total number of call signals not delivered",
		}, []string{"reason"}),
		mediaRelayed: f.NewCounter(prometheus.CounterOpts{
			Name: "yacall_media_frames_relayed_total",
			Help: "Total number of media negotiation frames relayed",
		}),
		clients: f.NewGauge(prometheus.GaugeOpts{
			Name: "yacall_connected_clients",
			Help: "Number of websocket clients currently connected",
		}),
	}
}

func (m *RelayMetrics) SignalRouted(kind domain.SignalKind) {
	m.signalsRouted.WithLabelValues(string(kind)).Inc()
}

func (m *RelayMetrics) SignalDropped(reason string) {
	m.signalsDropped.WithLabelValues(reason).Inc()
}

func (m *RelayMetrics) MediaRelayed() {
	m.mediaRelayed.Inc()
}

func (m *RelayMetrics) ClientConnected() {
	m.clients.Inc()
}

func (m *RelayMetrics) ClientDisconnected() {
	m.clients.Dec()
}
