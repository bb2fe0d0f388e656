// Package metatype defines the surface through which node types are
// synthesized at runtime from textual declarations, and the process-wide
// registry of metatype implementations.
package metatype

import (
	"fmt"
	"io"

	"github.com/loomengine/loom/flow"
	"github.com/loomengine/loom/pkg/flowerr"
)

// Context carries one type declaration into a metatype implementation. The
// runner supplies ReadFile and StoreType so metatypes can resolve external
// resources and publish secondary types.
type Context struct {
	// Name is the identifier the synthesized type is declared under.
	Name string

	// Contents is the textual body of the declaration.
	Contents string

	ReadFile  func(name string) ([]byte, error)
	StoreType func(t *flow.NodeType) error
}

// Metatype synthesizes node types from textual bodies. CreateType is the
// runtime entry point; the Generate hooks emit source code realizing the
// same type for ahead-of-time builds and may be nil for runtime-only
// metatypes.
type Metatype struct {
	Name string

	CreateType func(ctx *Context) (*flow.NodeType, error)

	GenerateTypeStart func(w io.Writer, ctx *Context) error
	GenerateTypeBody  func(w io.Writer, ctx *Context) error
	GenerateTypeEnd   func(w io.Writer, ctx *Context) error

	// PortsDescription reports the ports a body would produce without
	// instantiating the type, for validators and code generators.
	PortsDescription func(contents string) (ins, outs []flow.PortDescription, err error)
}

var registry = make(map[string]*Metatype)

// Register adds mt to the process-wide registry. Duplicate names fail with
// ErrInvalidArgument.
func Register(mt *Metatype) error {
	if mt == nil || mt.Name == "" || mt.CreateType == nil {
		return fmt.Errorf("metatype needs a name and a CreateType: %w", flowerr.ErrInvalidArgument)
	}
	if _, dup := registry[mt.Name]; dup {
		return fmt.Errorf("metatype %q already registered: %w", mt.Name, flowerr.ErrInvalidArgument)
	}
	registry[mt.Name] = mt
	return nil
}

// Lookup resolves a registered metatype by name.
func Lookup(name string) (*Metatype, error) {
	mt, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("metatype %q: %w", name, flowerr.ErrNotFound)
	}
	return mt, nil
}

// CreateType synthesizes a node type through the named metatype.
func CreateType(metatypeName string, ctx *Context) (*flow.NodeType, error) {
	mt, err := Lookup(metatypeName)
	if err != nil {
		return nil, err
	}
	t, err := mt.CreateType(ctx)
	if err != nil {
		return nil, fmt.Errorf("metatype %q: create type %q: %w", metatypeName, ctx.Name, err)
	}
	return t, nil
}
