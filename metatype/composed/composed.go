// Package composed implements the composed metatype: runtime synthesis of
// node types that pack named, typed inputs into one composed packet, and
// the inverse splitter.
package composed

import (
	"fmt"

	"github.com/loomengine/loom/flow"
	"github.com/loomengine/loom/metatype"
	"github.com/loomengine/loom/packet"
	"github.com/loomengine/loom/pkg/flowerr"
)

// Port names of the synthesized types.
const (
	PortNameOut = "OUT"
	PortNameIn  = "IN"
)

// Register installs the "composed-new" and "composed-split" metatypes into
// the process-wide registry.
func Register() error {
	if err := metatype.Register(&metatype.Metatype{
		Name:              "composed-new",
		CreateType:        NewConstructorType,
		GenerateTypeStart: generateStart,
		GenerateTypeBody:  generateConstructorBody,
		GenerateTypeEnd:   generateEnd,
		PortsDescription:  ConstructorPorts,
	}); err != nil {
		return err
	}
	return metatype.Register(&metatype.Metatype{
		Name:              "composed-split",
		CreateType:        NewSplitterType,
		GenerateTypeStart: generateStart,
		GenerateTypeBody:  generateSplitterBody,
		GenerateTypeEnd:   generateEnd,
		PortsDescription:  SplitterPorts,
	})
}

// NewConstructorType parses ctx.Contents as a composed body and builds the
// constructor type: one typed input per body port and a single OUT port
// carrying the composed packet type of the members.
func NewConstructorType(ctx *metatype.Context) (*flow.NodeType, error) {
	specs, err := parseBody(ctx.Contents)
	if err != nil {
		return nil, err
	}
	return ConstructorTypeOf(ctx.Name, specs)
}

// ConstructorTypeOf builds a constructor type from already resolved port
// specs, bypassing the textual grammar. Used by generated code.
func ConstructorTypeOf(name string, specs []PortSpec) (*flow.NodeType, error) {
	if len(specs) < 2 {
		return nil, fmt.Errorf("composed constructor %q needs at least 2 ports: %w",
			name, flowerr.ErrInvalidArgument)
	}
	members := memberTypes(specs)

	nt := &flow.NodeType{
		Description: constructorDescription(name, specs),
		Open: func(n *flow.Node, opts flow.Options) (any, error) {
			return &constructorData{slots: make([]*packet.Packet, len(specs))}, nil
		},
		Close: func(n *flow.Node, data any) {
			d := data.(*constructorData)
			for _, slot := range d.slots {
				if slot != nil {
					slot.Del()
				}
			}
		},
		PortsOut: []*flow.PortOut{{}},
	}
	// The composed packet type is interned on first instantiation.
	nt.InitType = func(t *flow.NodeType) error {
		ct, err := packet.ComposedType(members...)
		if err != nil {
			return err
		}
		t.PortsOut[0].PacketType = ct
		return nil
	}
	for i := range specs {
		nt.PortsIn = append(nt.PortsIn, &flow.PortIn{
			PacketType: specs[i].Type,
			Process:    constructorProcess,
		})
	}
	return nt, nil
}

type constructorData struct {
	slots  []*packet.Packet
	filled int
}

// constructorProcess buffers the delivered packet in its port's slot,
// disposing any previous value, and emits one composed packet on OUT
// whenever every slot is occupied. Slots are retained until replaced.
func constructorProcess(n *flow.Node, data any, port uint16, connID uint16, p *packet.Packet) error {
	d := data.(*constructorData)
	idx := int(port)
	if d.slots[idx] != nil {
		d.slots[idx].Del()
	} else {
		d.filled++
	}
	d.slots[idx] = p
	if d.filled < len(d.slots) {
		return nil
	}

	members := make([]*packet.Packet, 0, len(d.slots))
	for _, slot := range d.slots {
		dup, err := slot.Dup()
		if err != nil {
			for _, m := range members {
				m.Del()
			}
			return fmt.Errorf("dup buffered packet: %w", err)
		}
		members = append(members, dup)
	}
	ct := n.Type().OutPort(0).PacketType
	return n.SendComposed(0, ct, members...)
}

// NewSplitterType parses ctx.Contents as a composed body and builds the
// inverse of the constructor: one IN port carrying the composed packet type
// and one typed output per member.
func NewSplitterType(ctx *metatype.Context) (*flow.NodeType, error) {
	specs, err := parseBody(ctx.Contents)
	if err != nil {
		return nil, err
	}
	return SplitterTypeOf(ctx.Name, specs)
}

// SplitterTypeOf builds a splitter type from already resolved port specs.
// Used by generated code.
func SplitterTypeOf(name string, specs []PortSpec) (*flow.NodeType, error) {
	if len(specs) < 2 {
		return nil, fmt.Errorf("composed splitter %q needs at least 2 ports: %w",
			name, flowerr.ErrInvalidArgument)
	}
	members := memberTypes(specs)

	nt := &flow.NodeType{
		Description: splitterDescription(name, specs),
		PortsIn: []*flow.PortIn{{
			Process: splitterProcess,
		}},
	}
	nt.InitType = func(t *flow.NodeType) error {
		ct, err := packet.ComposedType(members...)
		if err != nil {
			return err
		}
		t.PortsIn[0].PacketType = ct
		return nil
	}
	for i := range specs {
		nt.PortsOut = append(nt.PortsOut, &flow.PortOut{PacketType: specs[i].Type})
	}
	return nt, nil
}

// splitterProcess duplicates the members of the delivered composed packet
// out in order. All downstream deliveries complete before it returns.
func splitterProcess(n *flow.Node, data any, port uint16, connID uint16, p *packet.Packet) error {
	members, err := p.ComposedMembers()
	if err != nil {
		p.Del()
		return err
	}
	for i, m := range members {
		dup, err := m.Dup()
		if err != nil {
			p.Del()
			return fmt.Errorf("dup member %d: %w", i, err)
		}
		if err := n.SendPacket(uint16(i), dup); err != nil {
			p.Del()
			return err
		}
	}
	p.Del()
	return nil
}

// ConstructorPorts reports the ports a constructor body would produce.
func ConstructorPorts(contents string) ([]flow.PortDescription, []flow.PortDescription, error) {
	specs, err := parseBody(contents)
	if err != nil {
		return nil, nil, err
	}
	d := constructorDescription("", specs)
	return d.PortsIn, d.PortsOut, nil
}

// SplitterPorts reports the ports a splitter body would produce.
func SplitterPorts(contents string) ([]flow.PortDescription, []flow.PortDescription, error) {
	specs, err := parseBody(contents)
	if err != nil {
		return nil, nil, err
	}
	d := splitterDescription("", specs)
	return d.PortsIn, d.PortsOut, nil
}

func composedDataType(specs []PortSpec) string {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Type.Name
	}
	out := "composed:"
	for i, n := range names {
		if i > 0 {
			out += ","
		}
		out += n
	}
	return out
}

func memberPortDescriptions(specs []PortSpec) []flow.PortDescription {
	ports := make([]flow.PortDescription, len(specs))
	for i, s := range specs {
		ports[i] = flow.PortDescription{
			Name:        s.Name,
			DataType:    s.Type.Name,
			BasePortIdx: uint16(i),
		}
	}
	return ports
}

func constructorDescription(name string, specs []PortSpec) *flow.NodeTypeDescription {
	return &flow.NodeTypeDescription{
		Name:        name,
		Category:    "composed",
		Description: "Packs inputs into a composed packet",
		PortsIn:     memberPortDescriptions(specs),
		PortsOut: []flow.PortDescription{{
			Name:        PortNameOut,
			DataType:    composedDataType(specs),
			BasePortIdx: 0,
		}},
	}
}

func splitterDescription(name string, specs []PortSpec) *flow.NodeTypeDescription {
	return &flow.NodeTypeDescription{
		Name:        name,
		Category:    "composed",
		Description: "Splits a composed packet into its members",
		PortsIn: []flow.PortDescription{{
			Name:        PortNameIn,
			DataType:    composedDataType(specs),
			BasePortIdx: 0,
		}},
		PortsOut: memberPortDescriptions(specs),
	}
}
