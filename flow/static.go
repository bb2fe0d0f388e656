package flow

import (
	"fmt"
	"sort"

	"github.com/loomengine/loom/packet"
	"github.com/loomengine/loom/pkg/flowerr"
	"go.uber.org/zap"
)

// StaticNodeSpec declares one child of a static container. Children are
// instantiated in declaration order and destroyed in reverse.
type StaticNodeSpec struct {
	Name string
	Type *NodeType
	Opts Options
}

// StaticConnSpec declares one connection between two children.
type StaticConnSpec struct {
	SrcIdx  int
	SrcPort uint16
	DstIdx  int
	DstPort uint16
}

// StaticPortRef names a child port exported as a port of the container
// itself, enabling nested composition.
type StaticPortRef struct {
	NodeIdx int
	Port    uint16
}

// StaticSpec is the frozen shape of a static container type.
type StaticSpec struct {
	Nodes       []StaticNodeSpec
	Conns       []StaticConnSpec
	ExportedIn  []StaticPortRef
	ExportedOut []StaticPortRef

	// ChildOptions, when set, derives per-instance child options from the
	// container's own options.
	ChildOptions func(idx int, containerOpts, childOpts Options) Options

	Description *NodeTypeDescription
}

type containerState int

const (
	stateConstructed containerState = iota
	stateOpening
	stateOpen
	stateClosing
	stateClosed
)

func (s containerState) String() string {
	switch s {
	case stateConstructed:
		return "constructed"
	case stateOpening:
		return "opening"
	case stateOpen:
		return "open"
	case stateClosing:
		return "closing"
	case stateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// staticConn is a compiled connection with its runtime-assigned connection
// IDs, one per direction.
type staticConn struct {
	StaticConnSpec
	srcConnID uint16
	dstConnID uint16
}

type staticType struct {
	spec        StaticSpec
	conns       []staticConn
	exportedIn  []StaticPortRef
	exportedOut []StaticPortRef
}

type delayedPacket struct {
	src     *Node
	srcPort uint16
	p       *packet.Packet
}

type staticData struct {
	typ      *staticType
	state    containerState
	children []*Node
	childIdx map[*Node]int
	delayed  []delayedPacket
}

// NewStaticType compiles spec into a container node type. The connection
// table is validated, sorted by (source node, source port) and frozen;
// exported child ports become ports of the resulting type.
func NewStaticType(spec StaticSpec) (*NodeType, error) {
	if len(spec.Nodes) == 0 {
		return nil, fmt.Errorf("static spec has no nodes: %w", flowerr.ErrInvalidArgument)
	}
	for i, ns := range spec.Nodes {
		if ns.Type == nil {
			return nil, fmt.Errorf("static node %d (%s) has no type: %w", i, ns.Name, flowerr.ErrInvalidArgument)
		}
	}

	st := &staticType{
		spec:        spec,
		exportedIn:  spec.ExportedIn,
		exportedOut: spec.ExportedOut,
	}

	st.conns = make([]staticConn, len(spec.Conns))
	for i, cs := range spec.Conns {
		if err := validateConn(spec.Nodes, cs); err != nil {
			return nil, fmt.Errorf("static conn %d: %w", i, err)
		}
		st.conns[i] = staticConn{StaticConnSpec: cs}
	}
	sort.SliceStable(st.conns, func(a, b int) bool {
		ca, cb := &st.conns[a], &st.conns[b]
		if ca.SrcIdx != cb.SrcIdx {
			return ca.SrcIdx < cb.SrcIdx
		}
		if ca.SrcPort != cb.SrcPort {
			return ca.SrcPort < cb.SrcPort
		}
		if ca.DstIdx != cb.DstIdx {
			return ca.DstIdx < cb.DstIdx
		}
		return ca.DstPort < cb.DstPort
	})
	assignConnIDs(st.conns)

	nt := &NodeType{
		Description: spec.Description,
		Container:   &ContainerOps{Send: staticSend},
		Open:        st.open,
		Close:       staticClose,
	}

	for i, ref := range spec.ExportedIn {
		in, err := exportedInPort(spec.Nodes, ref, i)
		if err != nil {
			return nil, err
		}
		nt.PortsIn = append(nt.PortsIn, in)
	}
	for i, ref := range spec.ExportedOut {
		out, err := exportedOutPort(spec.Nodes, ref, i)
		if err != nil {
			return nil, err
		}
		nt.PortsOut = append(nt.PortsOut, out)
	}
	return nt, nil
}

func validateConn(nodes []StaticNodeSpec, cs StaticConnSpec) error {
	if cs.SrcIdx < 0 || cs.SrcIdx >= len(nodes) {
		return fmt.Errorf("source node %d out of range: %w", cs.SrcIdx, flowerr.ErrNotFound)
	}
	if cs.DstIdx < 0 || cs.DstIdx >= len(nodes) {
		return fmt.Errorf("destination node %d out of range: %w", cs.DstIdx, flowerr.ErrNotFound)
	}
	srcType := nodes[cs.SrcIdx].Type
	dstType := nodes[cs.DstIdx].Type
	if err := srcType.ensureInit(); err != nil {
		return err
	}
	if err := dstType.ensureInit(); err != nil {
		return err
	}
	out := srcType.OutPort(cs.SrcPort)
	if out == nil {
		return fmt.Errorf("node %d has no output port %d: %w", cs.SrcIdx, cs.SrcPort, flowerr.ErrNotFound)
	}
	in := dstType.InPort(cs.DstPort)
	if in == nil {
		return fmt.Errorf("node %d has no input port %d: %w", cs.DstIdx, cs.DstPort, flowerr.ErrNotFound)
	}
	if out.PacketType != packet.TypeAny && in.PacketType != packet.TypeAny && out.PacketType != in.PacketType {
		return fmt.Errorf("port types %s and %s do not match: %w",
			out.PacketType.Name, in.PacketType.Name, flowerr.ErrInvalidArgument)
	}
	return nil
}

// assignConnIDs gives every connection a monotonically increasing ID per
// endpoint direction, so ports can multiplex state per connection.
func assignConnIDs(conns []staticConn) {
	type endpoint struct {
		node int
		port uint16
	}
	srcCount := make(map[endpoint]uint16)
	dstCount := make(map[endpoint]uint16)
	for i := range conns {
		c := &conns[i]
		se := endpoint{c.SrcIdx, c.SrcPort}
		de := endpoint{c.DstIdx, c.DstPort}
		c.srcConnID = srcCount[se]
		c.dstConnID = dstCount[de]
		srcCount[se]++
		dstCount[de]++
	}
}

func exportedInPort(nodes []StaticNodeSpec, ref StaticPortRef, exportedIdx int) (*PortIn, error) {
	if ref.NodeIdx < 0 || ref.NodeIdx >= len(nodes) {
		return nil, fmt.Errorf("exported in port %d: node %d out of range: %w",
			exportedIdx, ref.NodeIdx, flowerr.ErrNotFound)
	}
	childType := nodes[ref.NodeIdx].Type
	if err := childType.ensureInit(); err != nil {
		return nil, err
	}
	childIn := childType.InPort(ref.Port)
	if childIn == nil {
		return nil, fmt.Errorf("exported in port %d: node %d has no input port %d: %w",
			exportedIdx, ref.NodeIdx, ref.Port, flowerr.ErrNotFound)
	}
	return &PortIn{
		PacketType: childIn.PacketType,
		Connect: func(n *Node, data any, port uint16, connID uint16) error {
			d := data.(*staticData)
			child := d.children[ref.NodeIdx]
			if childIn.Connect == nil {
				return nil
			}
			return childIn.Connect(child, child.data, ref.Port, connID)
		},
		Disconnect: func(n *Node, data any, port uint16, connID uint16) error {
			d := data.(*staticData)
			child := d.children[ref.NodeIdx]
			if childIn.Disconnect == nil {
				return nil
			}
			return childIn.Disconnect(child, child.data, ref.Port, connID)
		},
		Process: func(n *Node, data any, port uint16, connID uint16, p *packet.Packet) error {
			d := data.(*staticData)
			if d.state != stateOpen {
				p.Del()
				return fmt.Errorf("container %s is %s: %w", n.ID(), d.state, flowerr.ErrInvalidState)
			}
			child := d.children[ref.NodeIdx]
			return deliverPacket(child, ref.Port, connID, p)
		},
	}, nil
}

func exportedOutPort(nodes []StaticNodeSpec, ref StaticPortRef, exportedIdx int) (*PortOut, error) {
	if ref.NodeIdx < 0 || ref.NodeIdx >= len(nodes) {
		return nil, fmt.Errorf("exported out port %d: node %d out of range: %w",
			exportedIdx, ref.NodeIdx, flowerr.ErrNotFound)
	}
	childType := nodes[ref.NodeIdx].Type
	if err := childType.ensureInit(); err != nil {
		return nil, err
	}
	childOut := childType.OutPort(ref.Port)
	if childOut == nil {
		return nil, fmt.Errorf("exported out port %d: node %d has no output port %d: %w",
			exportedIdx, ref.NodeIdx, ref.Port, flowerr.ErrNotFound)
	}
	return &PortOut{PacketType: childOut.PacketType}, nil
}

// open drives Constructed -> Opening -> Open. Children are instantiated in
// declaration order, then connections are established in table order; any
// failure unwinds in reverse. Packets sent by children while the container
// is still Opening are held and dispatched once it is Open.
func (st *staticType) open(n *Node, opts Options) (any, error) {
	d := &staticData{
		typ:      st,
		state:    stateOpening,
		childIdx: make(map[*Node]int, len(st.spec.Nodes)),
	}
	// Children dispatch through the container while it is being opened.
	n.data = d

	for i, ns := range st.spec.Nodes {
		childOpts := ns.Opts
		if st.spec.ChildOptions != nil {
			childOpts = st.spec.ChildOptions(i, opts, childOpts)
		}
		child, err := NewNode(n, ns.Name, ns.Type, childOpts)
		if err != nil {
			d.teardown(0)
			return nil, fmt.Errorf("static child %d (%s): %w", i, ns.Name, err)
		}
		d.children = append(d.children, child)
		d.childIdx[child] = i
	}

	for i := range st.conns {
		if err := d.connect(&st.conns[i]); err != nil {
			d.teardown(i)
			return nil, fmt.Errorf("static conn %d: %w", i, err)
		}
	}

	d.state = stateOpen
	delayed := d.delayed
	d.delayed = nil
	for _, dp := range delayed {
		if err := staticSend(n, dp.src, dp.srcPort, dp.p); err != nil {
			log.Warn("delayed packet dispatch failed",
				zap.String("container", n.ID()),
				zap.String("node", dp.src.ID()),
				zap.Error(err))
		}
	}
	return d, nil
}

func (d *staticData) connect(c *staticConn) error {
	src := d.children[c.SrcIdx]
	dst := d.children[c.DstIdx]
	out := src.typ.OutPort(c.SrcPort)
	in := dst.typ.InPort(c.DstPort)
	if out.Connect != nil {
		if err := out.Connect(src, src.data, c.SrcPort, c.srcConnID); err != nil {
			return fmt.Errorf("connect output port %d of %s: %w", c.SrcPort, src.ID(), err)
		}
	}
	if in.Connect != nil {
		if err := in.Connect(dst, dst.data, c.DstPort, c.dstConnID); err != nil {
			if out.Disconnect != nil {
				out.Disconnect(src, src.data, c.SrcPort, c.srcConnID)
			}
			return fmt.Errorf("connect input port %d of %s: %w", c.DstPort, dst.ID(), err)
		}
	}
	inspectorDidConnectPort(src, c.SrcPort, c.srcConnID, dst, c.DstPort, c.dstConnID)
	return nil
}

func (d *staticData) disconnect(c *staticConn) {
	src := d.children[c.SrcIdx]
	dst := d.children[c.DstIdx]
	inspectorWillDisconnectPort(src, c.SrcPort, c.srcConnID, dst, c.DstPort, c.dstConnID)
	if in := dst.typ.InPort(c.DstPort); in != nil && in.Disconnect != nil {
		in.Disconnect(dst, dst.data, c.DstPort, c.dstConnID)
	}
	if out := src.typ.OutPort(c.SrcPort); out != nil && out.Disconnect != nil {
		out.Disconnect(src, src.data, c.SrcPort, c.srcConnID)
	}
}

// teardown unwinds a partially or fully opened container: the first
// connected connections in reverse, then all children in reverse
// declaration order.
func (d *staticData) teardown(connected int) {
	d.state = stateClosing
	for i := connected - 1; i >= 0; i-- {
		d.disconnect(&d.typ.conns[i])
	}
	for i := len(d.children) - 1; i >= 0; i-- {
		d.children[i].Del()
	}
	d.children = nil
	for _, dp := range d.delayed {
		dp.p.Del()
	}
	d.delayed = nil
	d.state = stateClosed
}

func staticClose(n *Node, data any) {
	d := data.(*staticData)
	if d.state != stateOpen {
		return
	}
	d.teardown(len(d.typ.conns))
}

// staticSend is the container's dispatch entry. It locates the consumer set
// for (src, srcPort) in the frozen connection table, duplicates the packet
// for fan-out, and delivers synchronously in table order. Exported output
// ports count as extra consumers and forward through the container's own
// send path. Unconsumed error packets propagate to the parent container.
func staticSend(container *Node, src *Node, srcPort uint16, p *packet.Packet) error {
	d, ok := container.data.(*staticData)
	if !ok || d == nil {
		p.Del()
		return fmt.Errorf("container %s has no dispatch state: %w", container.ID(), flowerr.ErrInvalidState)
	}
	switch d.state {
	case stateOpening:
		d.delayed = append(d.delayed, delayedPacket{src: src, srcPort: srcPort, p: p})
		return nil
	case stateOpen:
	default:
		p.Del()
		return fmt.Errorf("container %s is %s: %w", container.ID(), d.state, flowerr.ErrInvalidState)
	}

	srcIdx, ok := d.childIdx[src]
	if !ok {
		p.Del()
		return fmt.Errorf("node %s is not a child of container %s: %w",
			src.ID(), container.ID(), flowerr.ErrInvalidArgument)
	}

	conns := d.typ.consumers(srcIdx, srcPort)
	var exported []uint16
	for i, ref := range d.typ.exportedOut {
		if ref.NodeIdx == srcIdx && ref.Port == srcPort {
			exported = append(exported, uint16(i))
		}
	}

	total := len(conns) + len(exported)
	if total == 0 {
		if srcPort == PortError {
			// Unhandled error packets bubble up to the parent container.
			return container.SendPacket(PortError, p)
		}
		p.Del()
		return nil
	}

	deliver := func(remaining int, fn func(*packet.Packet) error) error {
		out := p
		if remaining > 1 {
			dup, err := p.Dup()
			if err != nil {
				p.Del()
				src.SendErrorWrap(flowerr.Code(err), err)
				return fmt.Errorf("dup packet for fan-out: %w", err)
			}
			out = dup
		}
		return fn(out)
	}

	remaining := total
	for i := range conns {
		c := &conns[i]
		err := deliver(remaining, func(out *packet.Packet) error {
			dst := d.children[c.DstIdx]
			return deliverPacket(dst, c.DstPort, c.dstConnID, out)
		})
		if err != nil {
			return err
		}
		remaining--
	}
	for _, portIdx := range exported {
		idx := portIdx
		err := deliver(remaining, func(out *packet.Packet) error {
			return container.SendPacket(idx, out)
		})
		if err != nil {
			return err
		}
		remaining--
	}
	return nil
}

// deliverPacket hands ownership of p to the input port handler of dst. A
// missing handler drops the packet; a failing handler is logged, its packet
// already consumed by contract.
func deliverPacket(dst *Node, port uint16, connID uint16, p *packet.Packet) error {
	inspectorWillDeliverPacket(dst, port, connID, p)
	in := dst.typ.InPort(port)
	if in == nil || in.Process == nil {
		p.Del()
		return nil
	}
	if err := in.Process(dst, dst.data, port, connID, p); err != nil {
		log.Warn("process handler failed",
			zap.String("node", dst.ID()),
			zap.String("type", dst.TypeName()),
			zap.Uint16("port", port),
			zap.Uint16("conn", connID),
			zap.Error(err))
	}
	return nil
}

// consumers returns the slice of connections out of (srcIdx, srcPort),
// located by binary search over the sorted table.
func (st *staticType) consumers(srcIdx int, srcPort uint16) []staticConn {
	lo := sort.Search(len(st.conns), func(i int) bool {
		c := &st.conns[i]
		if c.SrcIdx != srcIdx {
			return c.SrcIdx >= srcIdx
		}
		return c.SrcPort >= srcPort
	})
	hi := lo
	for hi < len(st.conns) && st.conns[hi].SrcIdx == srcIdx && st.conns[hi].SrcPort == srcPort {
		hi++
	}
	return st.conns[lo:hi]
}

// StaticChild returns a child node of an open static container by its
// declaration index.
func (n *Node) StaticChild(idx int) (*Node, error) {
	d, ok := n.data.(*staticData)
	if !ok {
		return nil, fmt.Errorf("node %s is not a static container: %w", n.ID(), flowerr.ErrInvalidArgument)
	}
	if idx < 0 || idx >= len(d.children) {
		return nil, fmt.Errorf("child %d out of range: %w", idx, flowerr.ErrNotFound)
	}
	return d.children[idx], nil
}
