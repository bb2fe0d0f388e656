package inspect

import (
	"github.com/loomengine/loom/flow"
	"github.com/loomengine/loom/packet"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsInspector counts lifecycle and traffic events per node type and
// packet type.
type MetricsInspector struct {
	nodesOpened      *prometheus.CounterVec
	nodesClosed      *prometheus.CounterVec
	portsConnected   prometheus.Counter
	portsDisconnects prometheus.Counter
	packetsSent      *prometheus.CounterVec
	packetsDelivered *prometheus.CounterVec
}

// NewMetricsInspector builds a metrics inspector and registers its
// collectors with reg.
func NewMetricsInspector(reg prometheus.Registerer) *MetricsInspector {
	m := &MetricsInspector{
		nodesOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "nodes_opened_total",
			Help:      "Nodes opened, by node type.",
		}, []string{"node_type"}),
		nodesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "nodes_closed_total",
			Help:      "Nodes closed, by node type.",
		}, []string{"node_type"}),
		portsConnected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "ports_connected_total",
			Help:      "Port connections established.",
		}),
		portsDisconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "ports_disconnected_total",
			Help:      "Port connections torn down.",
		}),
		packetsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "packets_sent_total",
			Help:      "Packets sent by producers, by packet type.",
		}, []string{"packet_type"}),
		packetsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loom",
			Name:      "packets_delivered_total",
			Help:      "Packet deliveries to consumers, by packet type.",
		}, []string{"packet_type"}),
	}
	reg.MustRegister(m.nodesOpened, m.nodesClosed, m.portsConnected,
		m.portsDisconnects, m.packetsSent, m.packetsDelivered)
	return m
}

func (m *MetricsInspector) DidOpenNode(n *flow.Node, opts flow.Options) {
	m.nodesOpened.WithLabelValues(n.TypeName()).Inc()
}

func (m *MetricsInspector) WillCloseNode(n *flow.Node) {
	m.nodesClosed.WithLabelValues(n.TypeName()).Inc()
}

func (m *MetricsInspector) DidConnectPort(src *flow.Node, srcPort, srcConnID uint16, dst *flow.Node, dstPort, dstConnID uint16) {
	m.portsConnected.Inc()
}

func (m *MetricsInspector) WillDisconnectPort(src *flow.Node, srcPort, srcConnID uint16, dst *flow.Node, dstPort, dstConnID uint16) {
	m.portsDisconnects.Inc()
}

func (m *MetricsInspector) WillSendPacket(src *flow.Node, port uint16, p *packet.Packet) {
	m.packetsSent.WithLabelValues(p.Type().Name).Inc()
}

func (m *MetricsInspector) WillDeliverPacket(dst *flow.Node, port uint16, connID uint16, p *packet.Packet) {
	m.packetsDelivered.WithLabelValues(p.Type().Name).Inc()
}
