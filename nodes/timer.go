package nodes

import (
	"fmt"
	"time"

	"github.com/loomengine/loom/flow"
	"github.com/loomengine/loom/mainloop"
	"github.com/loomengine/loom/packet"
	"github.com/loomengine/loom/pkg/flowerr"
)

type timerData struct {
	timeout *mainloop.Timeout
}

// timerType builds the periodic tick source. Each expiry of its main-loop
// timeout emits one empty packet on OUT until the node closes.
func timerType() *flow.NodeType {
	return &flow.NodeType{
		Description: &flow.NodeTypeDescription{
			Name:        "timer",
			Category:    "timer",
			Description: "Emits an empty packet on every interval",
			PortsOut: []flow.PortDescription{
				{Name: "OUT", DataType: "empty", BasePortIdx: 0},
			},
		},
		Options: &flow.OptionsDescription{
			Members: []flow.OptionsMemberDescription{
				{Name: "interval_ms", Type: flow.OptionInt, Default: int32(1000)},
			},
		},
		Open: func(n *flow.Node, opts flow.Options) (any, error) {
			interval := opts.Int("interval_ms", 1000)
			if interval <= 0 {
				return nil, fmt.Errorf("timer interval %d ms: %w", interval, flowerr.ErrInvalidArgument)
			}
			d := &timerData{}
			t, err := mainloop.TimeoutAdd(time.Duration(interval)*time.Millisecond, func() bool {
				n.SendEmpty(0)
				return true
			})
			if err != nil {
				return nil, err
			}
			d.timeout = t
			return d, nil
		},
		Close: func(n *flow.Node, data any) {
			d := data.(*timerData)
			if d.timeout != nil {
				d.timeout.Del()
			}
		},
		PortsOut: []*flow.PortOut{{PacketType: packet.TypeEmpty}},
	}
}
