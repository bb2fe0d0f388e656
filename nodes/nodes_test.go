package nodes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomengine/loom/flow"
	"github.com/loomengine/loom/mainloop"
	"github.com/loomengine/loom/packet"
	"github.com/loomengine/loom/pkg/flowerr"
)

// probe collects the values delivered to its single input port.
type probe struct {
	values []any
}

func probeType(in *packet.Type) *flow.NodeType {
	return &flow.NodeType{
		Open: func(n *flow.Node, opts flow.Options) (any, error) { return &probe{}, nil },
		PortsIn: []*flow.PortIn{{
			PacketType: in,
			Process: func(n *flow.Node, data any, port, connID uint16, p *packet.Packet) error {
				v, err := p.Value()
				p.Del()
				if err != nil {
					return err
				}
				data.(*probe).values = append(data.(*probe).values, v)
				return nil
			},
		}},
	}
}

// wire builds and opens a two-node container: the type under test feeding a
// probe. It returns the root, the node under test and the probe state.
func wire(t *testing.T, typ *flow.NodeType, opts flow.Options, in *packet.Type) (*flow.Node, *flow.Node, *probe) {
	t.Helper()
	container, err := flow.NewStaticType(flow.StaticSpec{
		Nodes: []flow.StaticNodeSpec{
			{Name: "unit", Type: typ, Opts: opts},
			{Name: "probe", Type: probeType(in)},
		},
		Conns: []flow.StaticConnSpec{
			{SrcIdx: 0, SrcPort: 0, DstIdx: 1, DstPort: 0},
		},
	})
	require.NoError(t, err)
	root, err := flow.NewNode(nil, "root", container, nil)
	require.NoError(t, err)
	unit, err := root.StaticChild(0)
	require.NoError(t, err)
	pn, err := root.StaticChild(1)
	require.NoError(t, err)
	return root, unit, pn.Data().(*probe)
}

func TestRegistryHasBuiltins(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{
		"console",
		"constant/int", "constant/float", "constant/string", "constant/boolean",
		"boolean/not",
		"timer",
	} {
		typ, err := reg.Get(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, typ.Description.Name, name)
	}

	resolve := Resolver(reg)
	_, err := resolve("no/such")
	assert.ErrorIs(t, err, flowerr.ErrNotFound)
}

func TestConstantIntEmitsOnOpen(t *testing.T) {
	root, _, p := wire(t, constantIntType(), flow.Options{"value": int32(17)}, packet.TypeIRange)
	defer root.Del()

	// The packet sent during Open was held until the container opened.
	require.Len(t, p.values, 1)
	assert.Equal(t, packet.IRangeValue(17), p.values[0])
}

func TestConstantStringEmitsOnOpen(t *testing.T) {
	root, _, p := wire(t, constantStringType(), flow.Options{"value": "hi"}, packet.TypeString)
	defer root.Del()
	assert.Equal(t, []any{"hi"}, p.values)
}

func TestBooleanNot(t *testing.T) {
	container, err := flow.NewStaticType(flow.StaticSpec{
		Nodes: []flow.StaticNodeSpec{
			{Name: "src", Type: constantBooleanType(), Opts: flow.Options{"value": true}},
			{Name: "not", Type: booleanNotType()},
			{Name: "probe", Type: probeType(packet.TypeBoolean)},
		},
		Conns: []flow.StaticConnSpec{
			{SrcIdx: 0, SrcPort: 0, DstIdx: 1, DstPort: 0},
			{SrcIdx: 1, SrcPort: 0, DstIdx: 2, DstPort: 0},
		},
	})
	require.NoError(t, err)
	root, err := flow.NewNode(nil, "root", container, nil)
	require.NoError(t, err)
	defer root.Del()

	pn, err := root.StaticChild(2)
	require.NoError(t, err)
	p := pn.Data().(*probe)
	assert.Equal(t, []any{false}, p.values)
}

func TestTimerEmitsOnInterval(t *testing.T) {
	defer mainloop.Shutdown()
	root, _, p := wire(t, timerType(), flow.Options{"interval_ms": int32(1)}, packet.TypeEmpty)
	defer root.Del()

	time.Sleep(2 * time.Millisecond)
	mainloop.Iterate()
	require.Len(t, p.values, 1)

	time.Sleep(2 * time.Millisecond)
	mainloop.Iterate()
	assert.Len(t, p.values, 2)
}

func TestTimerRejectsBadInterval(t *testing.T) {
	defer mainloop.Shutdown()
	_, err := flow.NewNode(nil, "t", timerType(), flow.Options{"interval_ms": int32(0)})
	assert.ErrorIs(t, err, flowerr.ErrInvalidArgument)
}

func TestTimerStopsOnClose(t *testing.T) {
	defer mainloop.Shutdown()
	root, _, p := wire(t, timerType(), flow.Options{"interval_ms": int32(1)}, packet.TypeEmpty)

	time.Sleep(2 * time.Millisecond)
	mainloop.Iterate()
	require.Len(t, p.values, 1)

	root.Del()
	time.Sleep(2 * time.Millisecond)
	mainloop.Iterate()
	assert.Len(t, p.values, 1)
}

func TestConsoleConsumesAnyPacket(t *testing.T) {
	container, err := flow.NewStaticType(flow.StaticSpec{
		Nodes: []flow.StaticNodeSpec{
			{Name: "src", Type: constantIntType(), Opts: flow.Options{"value": int32(1)}},
			{Name: "out", Type: consoleType(), Opts: flow.Options{"prefix": "test"}},
		},
		Conns: []flow.StaticConnSpec{
			{SrcIdx: 0, SrcPort: 0, DstIdx: 1, DstPort: 0},
		},
	})
	require.NoError(t, err)
	root, err := flow.NewNode(nil, "root", container, nil)
	require.NoError(t, err)
	root.Del()
}
