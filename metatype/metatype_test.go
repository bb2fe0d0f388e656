package metatype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomengine/loom/flow"
	"github.com/loomengine/loom/pkg/flowerr"
)

func stubMetatype(name string) *Metatype {
	return &Metatype{
		Name: name,
		CreateType: func(ctx *Context) (*flow.NodeType, error) {
			return &flow.NodeType{
				Description: &flow.NodeTypeDescription{Name: ctx.Name},
			}, nil
		},
	}
}

func TestRegisterAndLookup(t *testing.T) {
	mt := stubMetatype("test/stub")
	require.NoError(t, Register(mt))

	got, err := Lookup("test/stub")
	require.NoError(t, err)
	assert.Same(t, mt, got)

	// Duplicate names are rejected.
	assert.ErrorIs(t, Register(stubMetatype("test/stub")), flowerr.ErrInvalidArgument)

	_, err = Lookup("test/absent")
	assert.ErrorIs(t, err, flowerr.ErrNotFound)
}

func TestRegisterValidation(t *testing.T) {
	assert.ErrorIs(t, Register(nil), flowerr.ErrInvalidArgument)
	assert.ErrorIs(t, Register(&Metatype{Name: "no-create"}), flowerr.ErrInvalidArgument)
	assert.ErrorIs(t, Register(&Metatype{
		CreateType: stubMetatype("x").CreateType,
	}), flowerr.ErrInvalidArgument)
}

func TestCreateType(t *testing.T) {
	require.NoError(t, Register(stubMetatype("test/create")))

	typ, err := CreateType("test/create", &Context{Name: "my-node", Contents: "body"})
	require.NoError(t, err)
	assert.Equal(t, "my-node", typ.Description.Name)

	_, err = CreateType("test/absent", &Context{Name: "x"})
	assert.ErrorIs(t, err, flowerr.ErrNotFound)
}
