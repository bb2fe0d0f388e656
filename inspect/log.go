// Package inspect provides ready-made inspector front-ends: a structured
// logging observer and a metrics observer. Only the hook contract is fixed;
// each front-end owns its output format.
package inspect

import (
	"github.com/loomengine/loom/flow"
	"github.com/loomengine/loom/packet"
	"go.uber.org/zap"
)

// LogInspector renders every lifecycle and traffic event as a structured
// debug log entry.
type LogInspector struct {
	log *zap.Logger
}

// NewLogInspector builds a logging inspector.
func NewLogInspector(log *zap.Logger) *LogInspector {
	return &LogInspector{log: log.Named("inspect")}
}

func nodeFields(prefix string, n *flow.Node) []zap.Field {
	return []zap.Field{
		zap.String(prefix, n.ID()),
		zap.String(prefix+"_type", n.TypeName()),
	}
}

func (l *LogInspector) DidOpenNode(n *flow.Node, opts flow.Options) {
	fields := nodeFields("node", n)
	if len(opts) > 0 {
		fields = append(fields, zap.Any("options", map[string]any(opts)))
	}
	l.log.Debug("node opened", fields...)
}

func (l *LogInspector) WillCloseNode(n *flow.Node) {
	l.log.Debug("node closing", nodeFields("node", n)...)
}

func (l *LogInspector) DidConnectPort(src *flow.Node, srcPort, srcConnID uint16, dst *flow.Node, dstPort, dstConnID uint16) {
	l.log.Debug("port connected",
		zap.String("src", src.ID()),
		zap.String("src_port", src.Type().Description.PortOutName(srcPort)),
		zap.Uint16("src_conn", srcConnID),
		zap.String("dst", dst.ID()),
		zap.String("dst_port", dst.Type().Description.PortInName(dstPort)),
		zap.Uint16("dst_conn", dstConnID))
}

func (l *LogInspector) WillDisconnectPort(src *flow.Node, srcPort, srcConnID uint16, dst *flow.Node, dstPort, dstConnID uint16) {
	l.log.Debug("port disconnecting",
		zap.String("src", src.ID()),
		zap.String("src_port", src.Type().Description.PortOutName(srcPort)),
		zap.Uint16("src_conn", srcConnID),
		zap.String("dst", dst.ID()),
		zap.String("dst_port", dst.Type().Description.PortInName(dstPort)),
		zap.Uint16("dst_conn", dstConnID))
}

func (l *LogInspector) WillSendPacket(src *flow.Node, port uint16, p *packet.Packet) {
	l.log.Debug("packet send",
		zap.String("node", src.ID()),
		zap.String("port", src.Type().Description.PortOutName(port)),
		zap.String("packet", p.Type().Name))
}

func (l *LogInspector) WillDeliverPacket(dst *flow.Node, port uint16, connID uint16, p *packet.Packet) {
	l.log.Debug("packet deliver",
		zap.String("node", dst.ID()),
		zap.String("port", dst.Type().Description.PortInName(port)),
		zap.Uint16("conn", connID),
		zap.String("packet", p.Type().Name))
}

// Multi fans every hook out to several inspectors in order.
type Multi []flow.Inspector

func (m Multi) DidOpenNode(n *flow.Node, opts flow.Options) {
	for _, i := range m {
		i.DidOpenNode(n, opts)
	}
}

func (m Multi) WillCloseNode(n *flow.Node) {
	for _, i := range m {
		i.WillCloseNode(n)
	}
}

func (m Multi) DidConnectPort(src *flow.Node, srcPort, srcConnID uint16, dst *flow.Node, dstPort, dstConnID uint16) {
	for _, i := range m {
		i.DidConnectPort(src, srcPort, srcConnID, dst, dstPort, dstConnID)
	}
}

func (m Multi) WillDisconnectPort(src *flow.Node, srcPort, srcConnID uint16, dst *flow.Node, dstPort, dstConnID uint16) {
	for _, i := range m {
		i.WillDisconnectPort(src, srcPort, srcConnID, dst, dstPort, dstConnID)
	}
}

func (m Multi) WillSendPacket(src *flow.Node, port uint16, p *packet.Packet) {
	for _, i := range m {
		i.WillSendPacket(src, port, p)
	}
}

func (m Multi) WillDeliverPacket(dst *flow.Node, port uint16, connID uint16, p *packet.Packet) {
	for _, i := range m {
		i.WillDeliverPacket(dst, port, connID, p)
	}
}
