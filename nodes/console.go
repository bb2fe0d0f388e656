package nodes

import (
	"github.com/loomengine/loom/flow"
	"github.com/loomengine/loom/packet"
	"go.uber.org/zap"
)

type consoleData struct {
	prefix string
}

// consoleType builds the console sink: every delivered packet is logged
// with its type and observable value.
func consoleType() *flow.NodeType {
	return &flow.NodeType{
		Description: &flow.NodeTypeDescription{
			Name:        "console",
			Category:    "output",
			Description: "Logs every received packet",
			PortsIn: []flow.PortDescription{
				{Name: "IN", DataType: "any", BasePortIdx: 0},
			},
		},
		Options: &flow.OptionsDescription{
			Members: []flow.OptionsMemberDescription{
				{Name: "prefix", Type: flow.OptionString, Default: ""},
			},
		},
		Open: func(n *flow.Node, opts flow.Options) (any, error) {
			return &consoleData{prefix: opts.String("prefix", "")}, nil
		},
		PortsIn: []*flow.PortIn{{
			PacketType: packet.TypeAny,
			Process:    consoleProcess,
		}},
	}
}

func consoleProcess(n *flow.Node, data any, port uint16, connID uint16, p *packet.Packet) error {
	d := data.(*consoleData)
	defer p.Del()
	v, err := p.Value()
	if err != nil {
		return err
	}
	log.Info("console",
		zap.String("node", n.ID()),
		zap.String("prefix", d.prefix),
		zap.String("packet", p.Type().Name),
		zap.Any("value", v))
	return nil
}
