package packet

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/loomengine/loom/pkg/flowerr"
	"github.com/puzpuzpuz/xsync/v3"
)

// composedTypes interns composed types by the ordered IDs of their member
// types, so two requests with the same member sequence yield the same *Type
// and identity comparison keeps working for composed packets. Keying on IDs
// rather than joined names keeps nested composed members unambiguous.
var composedTypes = xsync.NewMapOf[string, *Type]()

// ComposedType returns the unique packet type whose packets carry one member
// packet per entry of members, in order. Requesting the same member sequence
// again returns the identical *Type.
func ComposedType(members ...*Type) (*Type, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("composed type needs members: %w", flowerr.ErrInvalidArgument)
	}
	names := make([]string, len(members))
	key := make([]byte, 8*len(members))
	for i, m := range members {
		if m == nil || m == TypeAny {
			return nil, fmt.Errorf("composed member %d is not a concrete type: %w", i, flowerr.ErrInvalidArgument)
		}
		names[i] = m.Name
		if m.IsComposed() {
			names[i] = "[" + strings.TrimPrefix(m.Name, "composed:") + "]"
		}
		binary.BigEndian.PutUint64(key[8*i:], m.id)
	}
	t, _ := composedTypes.LoadOrCompute(string(key), func() *Type {
		ct := &Type{
			Name:    "composed:" + strings.Join(names, ","),
			Init:    initComposed,
			Get:     getComposed,
			Dispose: disposeComposed,
			Dup:     dupComposed,
		}
		ct.id = composedID(key)
		ct.members = append([]*Type(nil), members...)
		return ct
	})
	return t, nil
}

// composedID derives the type ID from the member IDs instead of the display
// name, which is not injective once composed members nest.
func composedID(key []byte) uint64 {
	h := xxhash.New()
	h.WriteString("composed:")
	h.Write(key)
	return h.Sum64()
}

// IsComposed reports whether t was produced by ComposedType.
func (t *Type) IsComposed() bool {
	return t != nil && t.members != nil
}

// ComposedMembers returns the member types of a composed type, in order. The
// returned slice must not be modified.
func (t *Type) ComposedMembers() ([]*Type, error) {
	if !t.IsComposed() {
		return nil, fmt.Errorf("type %s is not composed: %w", t.Name, flowerr.ErrInvalidArgument)
	}
	return t.members, nil
}

// ComposedShutdown drops all interned composed types. Only safe once no
// composed packets remain, typically at runtime teardown.
func ComposedShutdown() {
	composedTypes.Clear()
}

// NewComposed creates a composed packet taking ownership of members, which
// must match t's member types in count and order. On error ownership stays
// with the caller.
func NewComposed(t *Type, members ...*Packet) (*Packet, error) {
	if !t.IsComposed() {
		return nil, fmt.Errorf("type %s is not composed: %w", t.Name, flowerr.ErrInvalidArgument)
	}
	return New(t, members)
}

// ComposedMembers returns the member packets of a composed packet, in order.
// The members stay owned by the packet.
func (p *Packet) ComposedMembers() ([]*Packet, error) {
	if p == nil || p.typ == nil || !p.typ.IsComposed() {
		return nil, fmt.Errorf("packet is not composed: %w", flowerr.ErrInvalidArgument)
	}
	return p.data.([]*Packet), nil
}

func initComposed(t *Type, value any) (any, error) {
	members, ok := value.([]*Packet)
	if !ok {
		return nil, fmt.Errorf("composed packet from %T: %w", value, flowerr.ErrInvalidArgument)
	}
	if len(members) != len(t.members) {
		return nil, fmt.Errorf("composed packet with %d members, want %d: %w",
			len(members), len(t.members), flowerr.ErrInvalidArgument)
	}
	for i, m := range members {
		if m == nil || m.typ == nil {
			return nil, fmt.Errorf("composed member %d is nil or deleted: %w", i, flowerr.ErrInvalidArgument)
		}
		if m.typ != t.members[i] {
			return nil, fmt.Errorf("composed member %d has type %s, want %s: %w",
				i, m.typ.Name, t.members[i].Name, flowerr.ErrInvalidArgument)
		}
	}
	return append([]*Packet(nil), members...), nil
}

func getComposed(_ *Type, data any) (any, error) {
	return data, nil
}

func disposeComposed(_ *Type, data any) {
	for _, m := range data.([]*Packet) {
		m.Del()
	}
}

func dupComposed(_ *Type, data any) (any, error) {
	src := data.([]*Packet)
	dst := make([]*Packet, 0, len(src))
	for _, m := range src {
		d, err := m.Dup()
		if err != nil {
			for _, done := range dst {
				done.Del()
			}
			return nil, err
		}
		dst = append(dst, d)
	}
	return dst, nil
}
