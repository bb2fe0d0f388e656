// Package flow implements the node, port and connection model of the
// runtime together with the dispatch engine that routes packets between
// nodes inside container instances.
package flow

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/loomengine/loom/packet"
	"github.com/loomengine/loom/pkg/blob"
	"github.com/loomengine/loom/pkg/flowerr"
	"go.uber.org/zap"
)

// PortError is the hidden output port every node type carries. Sending on
// it is always permitted regardless of the port table.
const PortError uint16 = math.MaxUint16 - 1

var log = zap.NewNop()

// SetLogger installs the logger used by the dispatch engine for dropped
// packets and failing handlers. The default discards everything.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	log = l.Named("flow")
}

// PortIn is the behavior of one input port of a node type. Connect and
// Disconnect are optional; a nil Process drops delivered packets.
type PortIn struct {
	PacketType *packet.Type
	Connect    func(n *Node, data any, port uint16, connID uint16) error
	Disconnect func(n *Node, data any, port uint16, connID uint16) error
	Process    func(n *Node, data any, port uint16, connID uint16, p *packet.Packet) error
}

// PortOut is the behavior of one output port of a node type.
type PortOut struct {
	PacketType *packet.Type
	Connect    func(n *Node, data any, port uint16, connID uint16) error
	Disconnect func(n *Node, data any, port uint16, connID uint16) error
}

// errorPort backs PortError on every node type.
var errorPort = &PortOut{PacketType: packet.TypeError}

// ContainerOps is implemented by node types whose instances parent other
// nodes. Send dispatches a packet produced by a child; ownership of the
// packet transfers to the callee. Add and Remove are optional notifications
// for externally created and deleted children.
type ContainerOps struct {
	Send   func(container *Node, src *Node, srcPort uint16, p *packet.Packet) error
	Add    func(container *Node, child *Node) error
	Remove func(container *Node, child *Node)
}

// NodeType is the vtable shared by all instances of one kind of node.
type NodeType struct {
	Description *NodeTypeDescription
	Options     *OptionsDescription

	// InitType runs exactly once, before the first instance of the type
	// opens. Used to lazily intern composed packet types.
	InitType func(t *NodeType) error

	// Open configures a new instance and returns its private data, later
	// passed to port handlers and Close. A failing Open aborts
	// construction and Close is not called.
	Open  func(n *Node, opts Options) (any, error)
	Close func(n *Node, data any)

	// DisposeType releases resources of dynamically generated types.
	DisposeType func(t *NodeType)

	PortsIn  []*PortIn
	PortsOut []*PortOut

	// Container is non-nil for container types.
	Container *ContainerOps

	initOnce sync.Once
	initErr  error
}

// InPort returns the input port record at idx.
func (t *NodeType) InPort(idx uint16) *PortIn {
	if int(idx) >= len(t.PortsIn) {
		return nil
	}
	return t.PortsIn[idx]
}

// OutPort returns the output port record at idx. PortError resolves on
// every type.
func (t *NodeType) OutPort(idx uint16) *PortOut {
	if idx == PortError {
		return errorPort
	}
	if int(idx) >= len(t.PortsOut) {
		return nil
	}
	return t.PortsOut[idx]
}

// InCount returns the number of input ports.
func (t *NodeType) InCount() uint16 { return uint16(len(t.PortsIn)) }

// OutCount returns the number of regular output ports, not counting the
// hidden error port.
func (t *NodeType) OutCount() uint16 { return uint16(len(t.PortsOut)) }

func (t *NodeType) ensureInit() error {
	t.initOnce.Do(func() {
		if t.InitType != nil {
			t.initErr = t.InitType(t)
		}
	})
	return t.initErr
}

// Dispose releases a dynamically generated type.
func (t *NodeType) Dispose() {
	if t.DisposeType != nil {
		t.DisposeType(t)
	}
}

// Node is one instance of a node type.
type Node struct {
	typ    *NodeType
	parent *Node
	id     string
	data   any
	closed bool
}

// NewNode instantiates typ under parent. The type's InitType runs on first
// use, then Open receives the resolved options. The parent container's Add
// notification fires after a successful Open.
func NewNode(parent *Node, id string, typ *NodeType, opts Options) (*Node, error) {
	if typ == nil {
		return nil, fmt.Errorf("node type is nil: %w", flowerr.ErrInvalidArgument)
	}
	if parent != nil && parent.typ.Container == nil {
		return nil, fmt.Errorf("parent node %s is not a container: %w", parent.ID(), flowerr.ErrInvalidArgument)
	}
	if err := typ.ensureInit(); err != nil {
		return nil, fmt.Errorf("init node type: %w", err)
	}
	n := &Node{typ: typ, parent: parent, id: id}
	if typ.Open != nil {
		data, err := typ.Open(n, opts)
		if err != nil {
			return nil, fmt.Errorf("open node %s: %w", n.ID(), err)
		}
		n.data = data
	}
	if parent != nil && parent.typ.Container.Add != nil {
		if err := parent.typ.Container.Add(parent, n); err != nil {
			n.closeInstance()
			return nil, fmt.Errorf("add node %s to container %s: %w", n.ID(), parent.ID(), err)
		}
	}
	inspectorDidOpenNode(n, opts)
	return n, nil
}

// Del destroys the node: the inspector fires, the type's Close runs, and
// the parent container is notified.
func (n *Node) Del() {
	if n == nil || n.closed {
		return
	}
	inspectorWillCloseNode(n)
	n.closeInstance()
	if n.parent != nil && n.parent.typ.Container.Remove != nil {
		n.parent.typ.Container.Remove(n.parent, n)
	}
}

func (n *Node) closeInstance() {
	if n.closed {
		return
	}
	n.closed = true
	if n.typ.Close != nil {
		n.typ.Close(n, n.data)
	}
	n.data = nil
}

// Type returns the node's type.
func (n *Node) Type() *NodeType { return n.typ }

// Parent returns the container this node lives in, or nil at the root.
func (n *Node) Parent() *Node { return n.parent }

// Data returns the private data produced by Open.
func (n *Node) Data() any { return n.data }

// ID returns the node's identifier. Nodes created without one are
// identified by their address.
func (n *Node) ID() string {
	if n.id != "" {
		return n.id
	}
	return fmt.Sprintf("%p", n)
}

// TypeName returns the described name of the node's type, or a placeholder
// for undescribed types.
func (n *Node) TypeName() string {
	if n.typ != nil && n.typ.Description != nil && n.typ.Description.Name != "" {
		return n.typ.Description.Name
	}
	return "(anonymous)"
}

// SendPacket emits p on the node's output port. Ownership of the packet
// transfers unconditionally: on any outcome, including errors and
// unconnected outputs, the caller must not touch p again. Deliveries to
// consumers happen before SendPacket returns.
func (n *Node) SendPacket(port uint16, p *packet.Packet) error {
	if p == nil {
		return fmt.Errorf("packet is nil: %w", flowerr.ErrInvalidArgument)
	}
	if n == nil || n.closed {
		p.Del()
		return fmt.Errorf("node is closed: %w", flowerr.ErrInvalidState)
	}
	out := n.typ.OutPort(port)
	if out == nil {
		p.Del()
		return fmt.Errorf("node %s has no output port %d: %w", n.ID(), port, flowerr.ErrNotFound)
	}
	if out.PacketType != packet.TypeAny && p.Type() != out.PacketType {
		defer p.Del()
		return fmt.Errorf("node %s port %d carries %s, sent %s: %w",
			n.ID(), port, out.PacketType.Name, p.Type().Name, flowerr.ErrInvalidArgument)
	}
	inspectorWillSendPacket(n, port, p)
	container := n.parent
	for container != nil && container.typ.Container == nil {
		container = container.parent
	}
	if container == nil {
		if port == PortError {
			logDroppedError(n, p)
		} else {
			log.Debug("packet dropped at root",
				zap.String("node", n.ID()),
				zap.Uint16("port", port),
				zap.String("packet", p.Type().Name))
		}
		p.Del()
		return nil
	}
	return container.typ.Container.Send(container, n, port, p)
}

func logDroppedError(src *Node, p *packet.Packet) {
	ev, err := p.Error()
	if err != nil {
		return
	}
	log.Warn("unhandled error packet",
		zap.String("node", src.ID()),
		zap.String("type", src.TypeName()),
		zap.Int("code", ev.Code),
		zap.String("message", ev.Msg))
}

func (n *Node) sendNew(port uint16, p *packet.Packet, err error) error {
	if err != nil {
		return err
	}
	return n.SendPacket(port, p)
}

// SendEmpty emits the shared empty packet on port.
func (n *Node) SendEmpty(port uint16) error {
	return n.SendPacket(port, packet.NewEmpty())
}

// SendBool emits a boolean packet on port.
func (n *Node) SendBool(port uint16, v bool) error {
	return n.SendPacket(port, packet.NewBool(v))
}

// SendByte emits a byte packet on port.
func (n *Node) SendByte(port uint16, v byte) error {
	p, err := packet.NewByte(v)
	return n.sendNew(port, p, err)
}

// SendInt emits an int packet spanning the full domain on port.
func (n *Node) SendInt(port uint16, v int32) error {
	p, err := packet.NewInt(v)
	return n.sendNew(port, p, err)
}

// SendIRange emits an int packet with explicit bounds on port.
func (n *Node) SendIRange(port uint16, v packet.IRange) error {
	p, err := packet.NewIRange(v)
	return n.sendNew(port, p, err)
}

// SendFloat emits a float packet spanning the representable domain on port.
func (n *Node) SendFloat(port uint16, v float64) error {
	p, err := packet.NewFloat(v)
	return n.sendNew(port, p, err)
}

// SendDRange emits a float packet with explicit bounds on port.
func (n *Node) SendDRange(port uint16, v packet.DRange) error {
	p, err := packet.NewDRange(v)
	return n.sendNew(port, p, err)
}

// SendString emits a string packet on port.
func (n *Node) SendString(port uint16, v string) error {
	p, err := packet.NewString(v)
	return n.sendNew(port, p, err)
}

// SendBlob emits a blob packet on port. The packet holds its own reference.
func (n *Node) SendBlob(port uint16, b *blob.Blob) error {
	p, err := packet.NewBlob(b)
	return n.sendNew(port, p, err)
}

// SendJSONObject emits a json-object packet on port. The packet holds its
// own reference to b.
func (n *Node) SendJSONObject(port uint16, b *blob.Blob) error {
	p, err := packet.NewJSONObject(b)
	return n.sendNew(port, p, err)
}

// SendJSONArray emits a json-array packet on port.
func (n *Node) SendJSONArray(port uint16, b *blob.Blob) error {
	p, err := packet.NewJSONArray(b)
	return n.sendNew(port, p, err)
}

// SendHTTPResponse emits an http-response packet on port.
func (n *Node) SendHTTPResponse(port uint16, v packet.HTTPResponse) error {
	p, err := packet.NewHTTPResponse(v)
	return n.sendNew(port, p, err)
}

// SendRGB emits an rgb packet on port.
func (n *Node) SendRGB(port uint16, v packet.RGB) error {
	p, err := packet.NewRGB(v)
	return n.sendNew(port, p, err)
}

// SendDirectionVector emits a direction-vector packet on port.
func (n *Node) SendDirectionVector(port uint16, v packet.DirectionVector) error {
	p, err := packet.NewDirectionVector(v)
	return n.sendNew(port, p, err)
}

// SendLocation emits a location packet on port.
func (n *Node) SendLocation(port uint16, v packet.Location) error {
	p, err := packet.NewLocation(v)
	return n.sendNew(port, p, err)
}

// SendTimestamp emits a timestamp packet on port.
func (n *Node) SendTimestamp(port uint16, v time.Time) error {
	p, err := packet.NewTimestamp(v)
	return n.sendNew(port, p, err)
}

// SendComposed builds a composed packet of t from members, consuming them,
// and emits it on port. On a construction error ownership of the members
// stays with the caller.
func (n *Node) SendComposed(port uint16, t *packet.Type, members ...*packet.Packet) error {
	p, err := packet.NewComposed(t, members...)
	return n.sendNew(port, p, err)
}

// SendError emits an error packet on the hidden error port.
func (n *Node) SendError(code int, msg string) error {
	p, err := packet.NewError(code, msg)
	return n.sendNew(PortError, p, err)
}

// SendErrorf formats a message and emits it on the hidden error port.
func (n *Node) SendErrorf(code int, format string, args ...any) error {
	return n.SendError(code, fmt.Sprintf(format, args...))
}

// SendErrorWrap emits err's message as an error packet on the hidden error
// port.
func (n *Node) SendErrorWrap(code int, err error) error {
	return n.SendError(code, err.Error())
}
