// Package packet implements the flow runtime's packet type system: typed,
// single-owner units of data delivered across connections.
//
// A packet pairs a *Type with a payload. Types behave like vtables: they
// carry the payload constructors and destructors, and optionally a constant
// provider for types whose whole value domain is a fixed set of shared,
// immortal packets (empty, boolean). Composed types are interned so that
// pointer equality implies member-list equality; see composed.go.
package packet

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/loomengine/loom/pkg/flowerr"
)

// Type describes a packet type. Exactly one Type value exists per logical
// type, so identity comparison is meaningful.
type Type struct {
	// Name is the human-readable type name used by metatype code
	// generation and textual protocols.
	Name string

	// Init converts the caller-supplied value into the stored payload. A
	// nil Init stores the value as-is.
	Init func(t *Type, value any) (any, error)

	// Get converts the stored payload into the caller-visible value. A nil
	// Get returns the payload as-is.
	Get func(t *Type, data any) (any, error)

	// Dispose releases payload resources (blob references, member
	// packets).
	Dispose func(t *Type, data any)

	// Dup produces an independently owned copy of the payload. A nil Dup
	// shares the payload, which is correct for immutable values.
	Dup func(t *Type, data any) (any, error)

	// GetConstant, when non-nil, resolves the value to a shared immortal
	// packet instead of allocating.
	GetConstant func(t *Type, value any) (*Packet, error)

	id      uint64
	members []*Type // non-nil only for composed types
}

func newType(t *Type) *Type {
	t.id = xxhash.Sum64String(t.Name)
	return t
}

// ID returns a stable 64-bit identity derived from the type name, used by
// inspectors to correlate events across processes.
func (t *Type) ID() uint64 { return t.id }

// Packet is an owned unit of data. Ownership belongs to exactly one of the
// producer (before send), the engine (during dispatch) or the receiver
// (after delivery); the owner must call Del unless it forwards the packet.
type Packet struct {
	typ  *Type
	data any
}

// New creates a packet of type t initialized from value. For constant types
// the shared immortal packet is returned and no allocation occurs.
func New(t *Type, value any) (*Packet, error) {
	if t == nil {
		return nil, fmt.Errorf("packet type is nil: %w", flowerr.ErrInvalidArgument)
	}
	if t == TypeAny {
		return nil, fmt.Errorf("type any is only valid on ports: %w", flowerr.ErrInvalidArgument)
	}
	if t.GetConstant != nil {
		return t.GetConstant(t, value)
	}
	data := value
	if t.Init != nil {
		var err error
		data, err = t.Init(t, value)
		if err != nil {
			return nil, fmt.Errorf("init %s packet: %w", t.Name, err)
		}
	}
	return &Packet{typ: t, data: data}, nil
}

// Del releases the packet. Constant packets are immortal and unaffected.
// A packet must not be deleted while the engine is delivering it.
func (p *Packet) Del() {
	if p == nil || p.typ == nil {
		return
	}
	if p.typ.GetConstant != nil {
		return
	}
	if p.typ.Dispose != nil {
		p.typ.Dispose(p.typ, p.data)
	}
	p.typ = nil
	p.data = nil
}

// Type returns the packet's type.
func (p *Packet) Type() *Type {
	if p == nil {
		return nil
	}
	return p.typ
}

// Value returns the caller-visible payload value.
func (p *Packet) Value() (any, error) {
	if p == nil || p.typ == nil {
		return nil, fmt.Errorf("packet is nil or deleted: %w", flowerr.ErrInvalidArgument)
	}
	if p.typ.Get != nil {
		return p.typ.Get(p.typ, p.data)
	}
	return p.data, nil
}

// Dup produces an independently owned copy: deep for composed packets,
// reference-shared for blob payloads, value-shared for immutable
// primitives. Required because dispatch delivers to multiple consumers from
// a single send.
func (p *Packet) Dup() (*Packet, error) {
	if p == nil || p.typ == nil {
		return nil, fmt.Errorf("packet is nil or deleted: %w", flowerr.ErrInvalidArgument)
	}
	if p.typ.GetConstant != nil {
		return p, nil
	}
	data := p.data
	if p.typ.Dup != nil {
		var err error
		data, err = p.typ.Dup(p.typ, p.data)
		if err != nil {
			return nil, fmt.Errorf("dup %s packet: %w", p.typ.Name, err)
		}
	}
	return &Packet{typ: p.typ, data: data}, nil
}

func (p *Packet) expect(t *Type) error {
	if p == nil || p.typ == nil {
		return fmt.Errorf("packet is nil or deleted: %w", flowerr.ErrInvalidArgument)
	}
	if p.typ != t {
		return fmt.Errorf("packet type %s, want %s: %w", p.typ.Name, t.Name, flowerr.ErrInvalidArgument)
	}
	return nil
}
