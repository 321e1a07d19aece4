package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gossipd/internal/member"
	"gossipd/internal/wire"
)

const namespace = "gossipd"

// Metrics holds the collectors of one node. It implements gossip.Observer,
// gossip.Recorder and transport.DropRecorder.
type Metrics struct {
	registry *prometheus.Registry

	members   prometheus.Gauge
	heartbeat prometheus.Gauge
	added     prometheus.Counter
	removed   prometheus.Counter
	rounds    prometheus.Counter
	received  *prometheus.CounterVec
	sent      *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	buildInfo *prometheus.GaugeVec
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	startTime := time.Now()
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		members: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "members",
			Help:      "Number of entries in the local membership table, including self.",
		}),
		heartbeat: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "heartbeat",
			Help:      "Current heartbeat of this node.",
		}),
		added: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_added_total",
			Help:      "Peers inserted into the membership table.",
		}),
		removed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_removed_total",
			Help:      "Peers evicted from the membership table.",
		}),
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gossip_rounds_total",
			Help:      "Completed gossip rounds.",
		}),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Protocol messages handled, by kind.",
		}, []string{"kind"}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Protocol messages handed to the transport, by kind.",
		}, []string{"kind"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Messages lost or rejected, by reason.",
		}, []string{"reason"}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build info (constant 1, labeled by version and instance).",
		}, []string{"version", "instance"}),
	}

	uptime := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Process uptime in seconds.",
	}, func() float64 { return time.Since(startTime).Seconds() })

	m.registry.MustRegister(
		m.members, m.heartbeat, m.added, m.removed, m.rounds,
		m.received, m.sent, m.dropped, m.buildInfo, uptime,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the registry. Mount it with mux.Handle("/metrics", m.Handler()).
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetBuildInfo should be called once at startup.
func (m *Metrics) SetBuildInfo(version, instance string) {
	m.buildInfo.WithLabelValues(version, instance).Set(1)
}

// NodeAdded implements gossip.Observer.
func (m *Metrics) NodeAdded(_, _ member.Key) {
	m.added.Inc()
}

// NodeRemoved implements gossip.Observer.
func (m *Metrics) NodeRemoved(_, _ member.Key) {
	m.removed.Inc()
}

// MessageReceived implements gossip.Recorder.
func (m *Metrics) MessageReceived(kind wire.Kind) {
	m.received.WithLabelValues(kind.String()).Inc()
}

// MessageSent implements gossip.Recorder.
func (m *Metrics) MessageSent(kind wire.Kind) {
	m.sent.WithLabelValues(kind.String()).Inc()
}

// MessageDropped implements gossip.Recorder and transport.DropRecorder.
func (m *Metrics) MessageDropped(reason string) {
	m.dropped.WithLabelValues(reason).Inc()
}

// GossipRound implements gossip.Recorder.
func (m *Metrics) GossipRound(heartbeat int64) {
	m.rounds.Inc()
	m.heartbeat.Set(float64(heartbeat))
}

// TableSize implements gossip.Recorder.
func (m *Metrics) TableSize(n int) {
	m.members.Set(float64(n))
}
