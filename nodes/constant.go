package nodes

import (
	"github.com/loomengine/loom/flow"
	"github.com/loomengine/loom/packet"
)

// Constant node types emit their configured value once, as soon as their
// surrounding container opens.

func constantDescription(name, dataType string) *flow.NodeTypeDescription {
	return &flow.NodeTypeDescription{
		Name:        name,
		Category:    "constant",
		Description: "Emits a configured value on open",
		PortsOut: []flow.PortDescription{
			{Name: "OUT", DataType: dataType, BasePortIdx: 0},
		},
	}
}

func constantIntType() *flow.NodeType {
	return &flow.NodeType{
		Description: constantDescription("constant/int", "int"),
		Options: &flow.OptionsDescription{
			Members: []flow.OptionsMemberDescription{
				{Name: "value", Type: flow.OptionInt, Required: true},
			},
		},
		Open: func(n *flow.Node, opts flow.Options) (any, error) {
			return nil, n.SendInt(0, opts.Int("value", 0))
		},
		PortsOut: []*flow.PortOut{{PacketType: packet.TypeIRange}},
	}
}

func constantFloatType() *flow.NodeType {
	return &flow.NodeType{
		Description: constantDescription("constant/float", "float"),
		Options: &flow.OptionsDescription{
			Members: []flow.OptionsMemberDescription{
				{Name: "value", Type: flow.OptionFloat, Required: true},
			},
		},
		Open: func(n *flow.Node, opts flow.Options) (any, error) {
			return nil, n.SendFloat(0, opts.Float("value", 0))
		},
		PortsOut: []*flow.PortOut{{PacketType: packet.TypeDRange}},
	}
}

func constantStringType() *flow.NodeType {
	return &flow.NodeType{
		Description: constantDescription("constant/string", "string"),
		Options: &flow.OptionsDescription{
			Members: []flow.OptionsMemberDescription{
				{Name: "value", Type: flow.OptionString, Required: true},
			},
		},
		Open: func(n *flow.Node, opts flow.Options) (any, error) {
			return nil, n.SendString(0, opts.String("value", ""))
		},
		PortsOut: []*flow.PortOut{{PacketType: packet.TypeString}},
	}
}

func constantBooleanType() *flow.NodeType {
	return &flow.NodeType{
		Description: constantDescription("constant/boolean", "boolean"),
		Options: &flow.OptionsDescription{
			Members: []flow.OptionsMemberDescription{
				{Name: "value", Type: flow.OptionBool, Required: true},
			},
		},
		Open: func(n *flow.Node, opts flow.Options) (any, error) {
			return nil, n.SendBool(0, opts.Bool("value", false))
		},
		PortsOut: []*flow.PortOut{{PacketType: packet.TypeBoolean}},
	}
}
