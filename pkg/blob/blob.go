// Package blob implements shared-ownership byte regions.
//
// A Blob couples a byte slice with a reference count and an optional parent
// blob whose lifetime must cover its own. Packets carrying bulk payloads
// share blobs instead of copying bytes.
package blob

import (
	"fmt"
	"math"

	"github.com/loomengine/loom/pkg/flowerr"
)

// Type describes how a blob treats its bytes when the last reference drops.
type Type struct {
	// Free, when non-nil, runs exactly once as the final reference is
	// released. It receives the dying blob so it can release the memory it
	// tracks elsewhere.
	Free func(b *Blob)
}

var (
	// TypeDefault owns its bytes; they are released to the garbage
	// collector on the last unref.
	TypeDefault = &Type{Free: func(b *Blob) { b.mem = nil }}

	// TypeNoFreeData treats the bytes as externally owned (for example a
	// slice of a string constant); the final unref must not touch them.
	TypeNoFreeData = &Type{}

	// TypeNoFree keeps both the blob structure and its bytes externally
	// owned.
	TypeNoFree = &Type{Free: func(*Blob) {}}
)

// Blob is a reference-counted byte region.
type Blob struct {
	typ    *Type
	parent *Blob
	mem    []byte
	refcnt uint16
}

// New creates a blob holding mem with reference count 1. If parent is
// non-nil its reference count is incremented; the parent is released again
// when this blob dies.
func New(typ *Type, parent *Blob, mem []byte) (*Blob, error) {
	if typ == nil {
		return nil, fmt.Errorf("blob type is nil: %w", flowerr.ErrInvalidArgument)
	}
	b := &Blob{typ: typ, mem: mem, refcnt: 1}
	if parent != nil {
		if err := b.SetParent(parent); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Ref acquires one more reference. The count saturates at 65535; a ref
// beyond that fails with ErrOutOfMemory and the count is unchanged.
func (b *Blob) Ref() (*Blob, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	if b.refcnt == math.MaxUint16 {
		return nil, fmt.Errorf("blob refcount saturated: %w", flowerr.ErrOutOfMemory)
	}
	b.refcnt++
	return b, nil
}

// Unref releases one reference. When the last one drops the type's Free hook
// runs, then the parent (if any) is unreferenced. A dead blob is never
// revived.
func (b *Blob) Unref() {
	if b.check() != nil {
		return
	}
	b.refcnt--
	if b.refcnt > 0 {
		return
	}
	if b.typ.Free != nil {
		b.typ.Free(b)
	}
	if b.parent != nil {
		b.parent.Unref()
	}
}

// SetParent replaces the parent link, adjusting both parents' reference
// counts.
func (b *Blob) SetParent(parent *Blob) error {
	if err := b.check(); err != nil {
		return err
	}
	if parent != nil {
		if err := parent.check(); err != nil {
			return err
		}
		if _, err := parent.Ref(); err != nil {
			return err
		}
	}
	if b.parent != nil {
		b.parent.Unref()
	}
	b.parent = parent
	return nil
}

// Bytes returns the byte region. Holders must treat it as immutable; only
// the sole initial owner may mutate it before sharing.
func (b *Blob) Bytes() []byte { return b.mem }

// Size returns the byte region length.
func (b *Blob) Size() int { return len(b.mem) }

// Parent returns the parent blob, or nil.
func (b *Blob) Parent() *Blob { return b.parent }

// Type returns the blob type.
func (b *Blob) Type() *Type { return b.typ }

// RefCount reports the current reference count.
func (b *Blob) RefCount() uint16 { return b.refcnt }

func (b *Blob) check() error {
	if b == nil || b.typ == nil {
		return fmt.Errorf("blob is nil or typeless: %w", flowerr.ErrInvalidArgument)
	}
	if b.refcnt == 0 {
		return fmt.Errorf("blob already released: %w", flowerr.ErrInvalidState)
	}
	return nil
}
