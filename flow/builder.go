package flow

import (
	"fmt"

	"github.com/loomengine/loom/packet"
	"github.com/loomengine/loom/pkg/flowerr"
	"go.uber.org/multierr"
)

// TypeResolver maps a node type name to its type, usually backed by a
// registry of builtin and metatype-generated types.
type TypeResolver func(name string) (*NodeType, error)

// Builder assembles a static container type from named nodes and named
// ports. Methods accumulate errors and keep chaining; Build reports them
// all at once.
type Builder struct {
	resolver TypeResolver
	typeName string

	nodes []StaticNodeSpec
	names map[string]int
	conns []StaticConnSpec

	exportedIn      []StaticPortRef
	exportedInDesc  []PortDescription
	exportedOut     []StaticPortRef
	exportedOutDesc []PortDescription

	childOptions func(idx int, containerOpts, childOpts Options) Options

	errs []error
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{names: make(map[string]int)}
}

// WithResolver installs the type resolver used by AddNodeByType.
func (b *Builder) WithResolver(r TypeResolver) *Builder {
	b.resolver = r
	return b
}

// WithTypeName names the resulting container type.
func (b *Builder) WithTypeName(name string) *Builder {
	b.typeName = name
	return b
}

// WithChildOptions installs a hook deriving per-instance child options from
// the container's own options.
func (b *Builder) WithChildOptions(fn func(idx int, containerOpts, childOpts Options) Options) *Builder {
	b.childOptions = fn
	return b
}

func (b *Builder) fail(err error) *Builder {
	b.errs = append(b.errs, err)
	return b
}

// AddNode declares a child with an already resolved type.
func (b *Builder) AddNode(name string, typ *NodeType, opts Options) *Builder {
	if name == "" {
		return b.fail(fmt.Errorf("node name is empty: %w", flowerr.ErrInvalidArgument))
	}
	if _, dup := b.names[name]; dup {
		return b.fail(fmt.Errorf("duplicate node name %q: %w", name, flowerr.ErrInvalidArgument))
	}
	if typ == nil {
		return b.fail(fmt.Errorf("node %q has no type: %w", name, flowerr.ErrInvalidArgument))
	}
	b.names[name] = len(b.nodes)
	b.nodes = append(b.nodes, StaticNodeSpec{Name: name, Type: typ, Opts: opts})
	return b
}

// AddNodeByType declares a child by type name, resolving it through the
// builder's resolver and its options through the type's description.
func (b *Builder) AddNodeByType(name, typeName string, named NamedOptions) *Builder {
	if b.resolver == nil {
		return b.fail(fmt.Errorf("node %q: no type resolver installed: %w", name, flowerr.ErrInvalidState))
	}
	typ, err := b.resolver(typeName)
	if err != nil {
		return b.fail(fmt.Errorf("node %q: resolve type %q: %w", name, typeName, err))
	}
	opts, err := NewOptions(typ.Options, named)
	if err != nil {
		return b.fail(fmt.Errorf("node %q: %w", name, err))
	}
	return b.AddNode(name, typ, opts)
}

func (b *Builder) nodeIndex(name string) (int, error) {
	idx, ok := b.names[name]
	if !ok {
		return 0, fmt.Errorf("unknown node %q: %w", name, flowerr.ErrNotFound)
	}
	return idx, nil
}

// Connect binds srcNode's named output port to dstNode's named input port.
// Array ports use "NAME[i]" syntax; "ERROR" resolves on every type.
func (b *Builder) Connect(srcNode, srcPort, dstNode, dstPort string) *Builder {
	srcIdx, err := b.nodeIndex(srcNode)
	if err != nil {
		return b.fail(err)
	}
	dstIdx, err := b.nodeIndex(dstNode)
	if err != nil {
		return b.fail(err)
	}
	src, err := b.nodes[srcIdx].Type.Description.FindPortOut(srcPort)
	if err != nil {
		return b.fail(fmt.Errorf("node %q: %w", srcNode, err))
	}
	dst, err := b.nodes[dstIdx].Type.Description.FindPortIn(dstPort)
	if err != nil {
		return b.fail(fmt.Errorf("node %q: %w", dstNode, err))
	}
	b.conns = append(b.conns, StaticConnSpec{SrcIdx: srcIdx, SrcPort: src, DstIdx: dstIdx, DstPort: dst})
	return b
}

// ConnectByIndex binds ports by their numeric indices, for types without
// descriptions.
func (b *Builder) ConnectByIndex(srcNode string, srcPort uint16, dstNode string, dstPort uint16) *Builder {
	srcIdx, err := b.nodeIndex(srcNode)
	if err != nil {
		return b.fail(err)
	}
	dstIdx, err := b.nodeIndex(dstNode)
	if err != nil {
		return b.fail(err)
	}
	b.conns = append(b.conns, StaticConnSpec{SrcIdx: srcIdx, SrcPort: srcPort, DstIdx: dstIdx, DstPort: dstPort})
	return b
}

// ExportInPort exposes a child's input port as an input port of the built
// container type, under the given external name.
func (b *Builder) ExportInPort(node, port, as string) *Builder {
	idx, err := b.nodeIndex(node)
	if err != nil {
		return b.fail(err)
	}
	typ := b.nodes[idx].Type
	portIdx, err := typ.Description.FindPortIn(port)
	if err != nil {
		return b.fail(fmt.Errorf("node %q: %w", node, err))
	}
	b.exportedInDesc = append(b.exportedInDesc, PortDescription{
		Name:        as,
		DataType:    portDataType(typ.InPort(portIdx).PacketType),
		BasePortIdx: uint16(len(b.exportedIn)),
	})
	b.exportedIn = append(b.exportedIn, StaticPortRef{NodeIdx: idx, Port: portIdx})
	return b
}

// ExportOutPort exposes a child's output port as an output port of the
// built container type, under the given external name.
func (b *Builder) ExportOutPort(node, port, as string) *Builder {
	idx, err := b.nodeIndex(node)
	if err != nil {
		return b.fail(err)
	}
	typ := b.nodes[idx].Type
	portIdx, err := typ.Description.FindPortOut(port)
	if err != nil {
		return b.fail(fmt.Errorf("node %q: %w", node, err))
	}
	b.exportedOutDesc = append(b.exportedOutDesc, PortDescription{
		Name:        as,
		DataType:    portDataType(typ.OutPort(portIdx).PacketType),
		BasePortIdx: uint16(len(b.exportedOut)),
	})
	b.exportedOut = append(b.exportedOut, StaticPortRef{NodeIdx: idx, Port: portIdx})
	return b
}

// Build compiles the accumulated graph into a static container type,
// reporting every accumulated error at once.
func (b *Builder) Build() (*NodeType, error) {
	if err := multierr.Combine(b.errs...); err != nil {
		return nil, fmt.Errorf("build flow: %w", err)
	}
	name := b.typeName
	if name == "" {
		name = "static"
	}
	return NewStaticType(StaticSpec{
		Nodes:        b.nodes,
		Conns:        b.conns,
		ExportedIn:   b.exportedIn,
		ExportedOut:  b.exportedOut,
		ChildOptions: b.childOptions,
		Description: &NodeTypeDescription{
			Name:     name,
			Category: "container",
			PortsIn:  b.exportedInDesc,
			PortsOut: b.exportedOutDesc,
		},
	})
}

func portDataType(t *packet.Type) string {
	if t == nil {
		return ""
	}
	return t.Name
}
