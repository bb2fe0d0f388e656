package flow

import "github.com/loomengine/loom/packet"

// Inspector observes lifecycle and traffic events of every node in the
// process. Hooks run synchronously on the loop thread and must not mutate
// the graph.
type Inspector interface {
	DidOpenNode(n *Node, opts Options)
	WillCloseNode(n *Node)
	DidConnectPort(src *Node, srcPort, srcConnID uint16, dst *Node, dstPort, dstConnID uint16)
	WillDisconnectPort(src *Node, srcPort, srcConnID uint16, dst *Node, dstPort, dstConnID uint16)
	WillSendPacket(src *Node, port uint16, p *packet.Packet)
	WillDeliverPacket(dst *Node, port uint16, connID uint16, p *packet.Packet)
}

var inspector Inspector

// SetInspector installs the process-wide inspector, replacing any previous
// one. A nil inspector disables observation.
func SetInspector(i Inspector) {
	inspector = i
}

func inspectorDidOpenNode(n *Node, opts Options) {
	if inspector != nil {
		inspector.DidOpenNode(n, opts)
	}
}

func inspectorWillCloseNode(n *Node) {
	if inspector != nil {
		inspector.WillCloseNode(n)
	}
}

func inspectorDidConnectPort(src *Node, srcPort, srcConnID uint16, dst *Node, dstPort, dstConnID uint16) {
	if inspector != nil {
		inspector.DidConnectPort(src, srcPort, srcConnID, dst, dstPort, dstConnID)
	}
}

func inspectorWillDisconnectPort(src *Node, srcPort, srcConnID uint16, dst *Node, dstPort, dstConnID uint16) {
	if inspector != nil {
		inspector.WillDisconnectPort(src, srcPort, srcConnID, dst, dstPort, dstConnID)
	}
}

func inspectorWillSendPacket(src *Node, port uint16, p *packet.Packet) {
	if inspector != nil {
		inspector.WillSendPacket(src, port, p)
	}
}

func inspectorWillDeliverPacket(dst *Node, port uint16, connID uint16, p *packet.Packet) {
	if inspector != nil {
		inspector.WillDeliverPacket(dst, port, connID, p)
	}
}
