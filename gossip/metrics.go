package gossip

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the counters/gauges the Gossiper updates as rounds complete
// and packets are dropped. Shape and naming follow zephyrcache's
// telemetry package (internal/telemetry/metrics.go): a dedicated registry
// rather than the global default, a *_total CounterVec for drop/error
// reasons, and a gauge for point-in-time table size.
type Metrics struct {
	Registry *prometheus.Registry

	RoundsStarted  *prometheus.CounterVec
	RoundsTimedOut prometheus.Counter
	PacketsDropped *prometheus.CounterVec
	TableSize      prometheus.Gauge
	SuspectedDown  prometheus.Gauge
}

// NewMetrics builds a Metrics bound to its own registry, namespaced
// "gossip", mirroring zephyrcache's pattern of a package-local Registry
// rather than relying on prometheus's global default.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RoundsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gossip",
			Name:      "rounds_started_total",
			Help:      "Gossip rounds started, labeled by role (initiator/responder).",
		}, []string{"role"}),
		RoundsTimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gossip",
			Name:      "rounds_timed_out_total",
			Help:      "Gossip rounds abandoned after their soft deadline passed.",
		}),
		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gossip",
			Name:      "packets_dropped_total",
			Help:      "Inbound packets dropped, labeled by reason (codec, internal, transport).",
		}, []string{"reason"}),
		TableSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gossip",
			Name:      "table_size",
			Help:      "Number of nodes currently tracked in the EndpointStateTable.",
		}),
		SuspectedDown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gossip",
			Name:      "suspected_down",
			Help:      "Number of nodes the failure detector currently suspects as down.",
		}),
	}
	m.Registry.MustRegister(m.RoundsStarted, m.RoundsTimedOut, m.PacketsDropped, m.TableSize, m.SuspectedDown)
	return m
}

// Handler exposes /metrics for this Metrics' registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeRoundStart(initiator bool) {
	if initiator {
		m.RoundsStarted.WithLabelValues("initiator").Inc()
	} else {
		m.RoundsStarted.WithLabelValues("responder").Inc()
	}
}

func (m *Metrics) observeDrop(reason string) {
	m.PacketsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) observeTableSize(n int) {
	m.TableSize.Set(float64(n))
}
