package inspect

import (
	"context"
	"time"

	"github.com/loomengine/loom/flow"
	"github.com/loomengine/loom/packet"
	"github.com/puzpuzpuz/xsync/v3"
)

// EventKind classifies one observed runtime event.
type EventKind string

const (
	EventNodeOpened     EventKind = "node-opened"
	EventNodeClosing    EventKind = "node-closing"
	EventPortConnect    EventKind = "port-connect"
	EventPortDisconnect EventKind = "port-disconnect"
	EventPacketSend     EventKind = "packet-send"
	EventPacketDeliver  EventKind = "packet-deliver"
)

// Event is one runtime event in transport-friendly form.
type Event struct {
	Kind     EventKind `json:"kind"`
	Time     time.Time `json:"time"`
	Node     string    `json:"node"`
	NodeType string    `json:"nodeType,omitempty"`
	Port     string    `json:"port,omitempty"`
	ConnID   uint16    `json:"connId,omitempty"`
	Peer     string    `json:"peer,omitempty"`
	PeerPort string    `json:"peerPort,omitempty"`
	Packet   string    `json:"packet,omitempty"`

	// PacketTypeID correlates packet events on the same type across
	// processes; see packet.Type.ID.
	PacketTypeID uint64 `json:"packetTypeId,omitempty"`
}

// StreamInspector fans runtime events out to subscribers over channels, for
// external observers such as the debug event endpoint. Publishing never
// blocks the dispatch path: a subscriber that falls behind loses events.
type StreamInspector struct {
	subs *xsync.MapOf[chan Event, struct{}]
}

// NewStreamInspector builds an inspector with no subscribers.
func NewStreamInspector() *StreamInspector {
	return &StreamInspector{
		subs: xsync.NewMapOf[chan Event, struct{}](),
	}
}

// Subscribe returns a channel receiving all events published after the
// call. The subscription ends when ctx is cancelled.
func (s *StreamInspector) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 256)
	s.subs.Store(ch, struct{}{})
	context.AfterFunc(ctx, func() {
		s.subs.Delete(ch)
	})
	return ch
}

func (s *StreamInspector) publish(ev Event) {
	ev.Time = time.Now()
	s.subs.Range(func(sub chan Event, _ struct{}) bool {
		select {
		case sub <- ev:
		default:
		}
		return true
	})
}

func (s *StreamInspector) DidOpenNode(n *flow.Node, opts flow.Options) {
	s.publish(Event{Kind: EventNodeOpened, Node: n.ID(), NodeType: n.TypeName()})
}

func (s *StreamInspector) WillCloseNode(n *flow.Node) {
	s.publish(Event{Kind: EventNodeClosing, Node: n.ID(), NodeType: n.TypeName()})
}

func (s *StreamInspector) DidConnectPort(src *flow.Node, srcPort, srcConnID uint16, dst *flow.Node, dstPort, dstConnID uint16) {
	s.publish(Event{
		Kind:     EventPortConnect,
		Node:     src.ID(),
		Port:     src.Type().Description.PortOutName(srcPort),
		ConnID:   srcConnID,
		Peer:     dst.ID(),
		PeerPort: dst.Type().Description.PortInName(dstPort),
	})
}

func (s *StreamInspector) WillDisconnectPort(src *flow.Node, srcPort, srcConnID uint16, dst *flow.Node, dstPort, dstConnID uint16) {
	s.publish(Event{
		Kind:     EventPortDisconnect,
		Node:     src.ID(),
		Port:     src.Type().Description.PortOutName(srcPort),
		ConnID:   srcConnID,
		Peer:     dst.ID(),
		PeerPort: dst.Type().Description.PortInName(dstPort),
	})
}

func (s *StreamInspector) WillSendPacket(src *flow.Node, port uint16, p *packet.Packet) {
	s.publish(Event{
		Kind:         EventPacketSend,
		Node:         src.ID(),
		Port:         src.Type().Description.PortOutName(port),
		Packet:       p.Type().Name,
		PacketTypeID: p.Type().ID(),
	})
}

func (s *StreamInspector) WillDeliverPacket(dst *flow.Node, port uint16, connID uint16, p *packet.Packet) {
	s.publish(Event{
		Kind:         EventPacketDeliver,
		Node:         dst.ID(),
		Port:         dst.Type().Description.PortInName(port),
		ConnID:       connID,
		Packet:       p.Type().Name,
		PacketTypeID: p.Type().ID(),
	})
}
