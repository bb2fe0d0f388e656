package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomengine/loom/pkg/flowerr"
)

func TestRegistry(t *testing.T) {
	r := New[int]()
	require.NoError(t, r.Register("b", 2))
	require.NoError(t, r.Register("a", 1))

	v, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = r.Get("c")
	assert.ErrorIs(t, err, flowerr.ErrNotFound)

	assert.ErrorIs(t, r.Register("a", 3), flowerr.ErrInvalidArgument)
	assert.ErrorIs(t, r.Register("", 4), flowerr.ErrInvalidArgument)

	assert.Equal(t, []string{"a", "b"}, r.Names())
}

func TestMustRegisterPanicsOnDuplicate(t *testing.T) {
	r := New[string]()
	r.MustRegister("x", "one")
	assert.Panics(t, func() { r.MustRegister("x", "two") })
}
