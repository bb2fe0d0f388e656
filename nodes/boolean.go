package nodes

import (
	"github.com/loomengine/loom/flow"
	"github.com/loomengine/loom/packet"
)

// booleanNotType builds the boolean inverter: every boolean delivered on IN
// is emitted negated on OUT before the delivery returns.
func booleanNotType() *flow.NodeType {
	return &flow.NodeType{
		Description: &flow.NodeTypeDescription{
			Name:        "boolean/not",
			Category:    "logic",
			Description: "Negates boolean packets",
			PortsIn: []flow.PortDescription{
				{Name: "IN", DataType: "boolean", BasePortIdx: 0},
			},
			PortsOut: []flow.PortDescription{
				{Name: "OUT", DataType: "boolean", BasePortIdx: 0},
			},
		},
		PortsIn: []*flow.PortIn{{
			PacketType: packet.TypeBoolean,
			Process: func(n *flow.Node, data any, port uint16, connID uint16, p *packet.Packet) error {
				v, err := p.Bool()
				p.Del()
				if err != nil {
					return err
				}
				return n.SendBool(0, !v)
			},
		}},
		PortsOut: []*flow.PortOut{{PacketType: packet.TypeBoolean}},
	}
}
