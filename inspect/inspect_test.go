package inspect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomengine/loom/flow"
	"github.com/loomengine/loom/packet"
)

func emitterType() *flow.NodeType {
	return &flow.NodeType{
		Description: &flow.NodeTypeDescription{
			Name:     "emitter",
			PortsOut: []flow.PortDescription{{Name: "OUT", DataType: "int"}},
		},
		PortsOut: []*flow.PortOut{{PacketType: packet.TypeIRange}},
	}
}

func sinkType() *flow.NodeType {
	return &flow.NodeType{
		Description: &flow.NodeTypeDescription{
			Name:    "sink",
			PortsIn: []flow.PortDescription{{Name: "IN", DataType: "int"}},
		},
		PortsIn: []*flow.PortIn{{
			PacketType: packet.TypeIRange,
			Process: func(n *flow.Node, data any, port, connID uint16, p *packet.Packet) error {
				p.Del()
				return nil
			},
		}},
	}
}

// runSampleFlow opens a two-node flow, pushes one int packet through it and
// tears it down, producing a full set of lifecycle and traffic events.
func runSampleFlow(t *testing.T) {
	t.Helper()
	container, err := flow.NewStaticType(flow.StaticSpec{
		Nodes: []flow.StaticNodeSpec{
			{Name: "src", Type: emitterType()},
			{Name: "dst", Type: sinkType()},
		},
		Conns: []flow.StaticConnSpec{
			{SrcIdx: 0, SrcPort: 0, DstIdx: 1, DstPort: 0},
		},
	})
	require.NoError(t, err)
	root, err := flow.NewNode(nil, "root", container, nil)
	require.NoError(t, err)
	src, err := root.StaticChild(0)
	require.NoError(t, err)
	require.NoError(t, src.SendInt(0, 7))
	root.Del()
}

func TestStreamInspectorDeliversEvents(t *testing.T) {
	stream := NewStreamInspector()
	flow.SetInspector(stream)
	defer flow.SetInspector(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := stream.Subscribe(ctx)

	runSampleFlow(t)

	var kinds []EventKind
	var send, deliver *Event
drain:
	for {
		select {
		case ev := <-events:
			kinds = append(kinds, ev.Kind)
			switch ev.Kind {
			case EventPacketSend:
				e := ev
				send = &e
			case EventPacketDeliver:
				e := ev
				deliver = &e
			}
		default:
			break drain
		}
	}

	assert.Equal(t, []EventKind{
		EventNodeOpened, EventNodeOpened, EventPortConnect, EventNodeOpened,
		EventPacketSend, EventPacketDeliver,
		EventNodeClosing, EventPortDisconnect, EventNodeClosing, EventNodeClosing,
	}, kinds)

	require.NotNil(t, send)
	assert.Equal(t, "src", send.Node)
	assert.Equal(t, "OUT", send.Port)
	assert.Equal(t, "int", send.Packet)
	assert.Equal(t, packet.TypeIRange.ID(), send.PacketTypeID)
	assert.WithinDuration(t, time.Now(), send.Time, time.Minute)

	require.NotNil(t, deliver)
	assert.Equal(t, "dst", deliver.Node)
	assert.Equal(t, "IN", deliver.Port)
	assert.Equal(t, "int", deliver.Packet)
	assert.Equal(t, packet.TypeIRange.ID(), deliver.PacketTypeID)
}

func TestStreamInspectorUnsubscribesOnCancel(t *testing.T) {
	stream := NewStreamInspector()
	flow.SetInspector(stream)
	defer flow.SetInspector(nil)

	ctx, cancel := context.WithCancel(context.Background())
	events := stream.Subscribe(ctx)
	cancel()

	// The AfterFunc removal races with publish, so wait until the
	// subscriber set is actually empty.
	require.Eventually(t, func() bool {
		return stream.subs.Size() == 0
	}, time.Second, time.Millisecond)

	runSampleFlow(t)
	select {
	case ev := <-events:
		t.Fatalf("received %q after cancel", ev.Kind)
	default:
	}
}

func TestStreamInspectorDropsWhenSubscriberIsFull(t *testing.T) {
	stream := NewStreamInspector()
	ch := make(chan Event, 1)
	stream.subs.Store(ch, struct{}{})

	stream.publish(Event{Kind: EventPacketSend, Node: "a"})
	stream.publish(Event{Kind: EventPacketSend, Node: "b"})

	ev := <-ch
	assert.Equal(t, "a", ev.Node)
	select {
	case ev := <-ch:
		t.Fatalf("expected overflow drop, got event for %q", ev.Node)
	default:
	}
}

func TestMultiFansOutInOrder(t *testing.T) {
	var calls []string
	a := &orderInspector{name: "a", calls: &calls}
	b := &orderInspector{name: "b", calls: &calls}
	flow.SetInspector(Multi{a, b})
	defer flow.SetInspector(nil)

	runSampleFlow(t)

	require.NotEmpty(t, calls)
	for i := 0; i+1 < len(calls); i += 2 {
		assert.Equal(t, "a", calls[i])
		assert.Equal(t, "b", calls[i+1])
	}
}

type orderInspector struct {
	name  string
	calls *[]string
}

func (o *orderInspector) record() { *o.calls = append(*o.calls, o.name) }

func (o *orderInspector) DidOpenNode(n *flow.Node, opts flow.Options) { o.record() }
func (o *orderInspector) WillCloseNode(n *flow.Node)                  { o.record() }
func (o *orderInspector) DidConnectPort(src *flow.Node, srcPort, srcConnID uint16, dst *flow.Node, dstPort, dstConnID uint16) {
	o.record()
}
func (o *orderInspector) WillDisconnectPort(src *flow.Node, srcPort, srcConnID uint16, dst *flow.Node, dstPort, dstConnID uint16) {
	o.record()
}
func (o *orderInspector) WillSendPacket(src *flow.Node, port uint16, p *packet.Packet) { o.record() }
func (o *orderInspector) WillDeliverPacket(dst *flow.Node, port uint16, connID uint16, p *packet.Packet) {
	o.record()
}
