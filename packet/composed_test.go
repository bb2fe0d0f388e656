package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomengine/loom/pkg/flowerr"
)

func TestComposedTypeInterning(t *testing.T) {
	a, err := ComposedType(TypeIRange, TypeString)
	require.NoError(t, err)
	b, err := ComposedType(TypeIRange, TypeString)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, "composed:int,string", a.Name)
	assert.True(t, a.IsComposed())

	members, err := a.ComposedMembers()
	require.NoError(t, err)
	assert.Equal(t, []*Type{TypeIRange, TypeString}, members)

	// Member order is part of the identity.
	c, err := ComposedType(TypeString, TypeIRange)
	require.NoError(t, err)
	assert.NotSame(t, a, c)
}

func TestComposedTypeNestedMembersKeepIdentity(t *testing.T) {
	pair, err := ComposedType(TypeIRange, TypeString)
	require.NoError(t, err)
	single, err := ComposedType(TypeIRange)
	require.NoError(t, err)

	// composed([int,string]) and composed([int],string) flatten to the
	// same member-name sequence; they must stay distinct types.
	a, err := ComposedType(pair)
	require.NoError(t, err)
	b, err := ComposedType(single, TypeString)
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.NotEqual(t, a.Name, b.Name)

	aMembers, err := a.ComposedMembers()
	require.NoError(t, err)
	assert.Equal(t, []*Type{pair}, aMembers)
	bMembers, err := b.ComposedMembers()
	require.NoError(t, err)
	assert.Equal(t, []*Type{single, TypeString}, bMembers)

	// Re-requesting each nested shape still interns.
	a2, err := ComposedType(pair)
	require.NoError(t, err)
	assert.Same(t, a, a2)
}

func TestComposedTypeInvalidMembers(t *testing.T) {
	_, err := ComposedType()
	assert.ErrorIs(t, err, flowerr.ErrInvalidArgument)
	_, err = ComposedType(TypeIRange, nil)
	assert.ErrorIs(t, err, flowerr.ErrInvalidArgument)
	_, err = ComposedType(TypeAny)
	assert.ErrorIs(t, err, flowerr.ErrInvalidArgument)
}

func TestNewComposed(t *testing.T) {
	ct, err := ComposedType(TypeIRange, TypeString)
	require.NoError(t, err)

	ip, err := NewInt(1)
	require.NoError(t, err)
	sp, err := NewString("one")
	require.NoError(t, err)

	p, err := NewComposed(ct, ip, sp)
	require.NoError(t, err)
	assert.Same(t, ct, p.Type())

	members, err := p.ComposedMembers()
	require.NoError(t, err)
	require.Len(t, members, 2)
	v, err := members[0].Int()
	require.NoError(t, err)
	assert.Equal(t, int32(1), v)
	s, err := members[1].String()
	require.NoError(t, err)
	assert.Equal(t, "one", s)

	// Del cascades into the members.
	p.Del()
	assert.Nil(t, ip.Type())
	assert.Nil(t, sp.Type())
}

func TestNewComposedMemberValidation(t *testing.T) {
	ct, err := ComposedType(TypeIRange, TypeString)
	require.NoError(t, err)

	ip, err := NewInt(1)
	require.NoError(t, err)
	defer ip.Del()

	// Wrong arity.
	_, err = NewComposed(ct, ip)
	assert.ErrorIs(t, err, flowerr.ErrInvalidArgument)

	// Wrong member type. Ownership stays with the caller on failure.
	fp, err := NewFloat(1.0)
	require.NoError(t, err)
	defer fp.Del()
	_, err = NewComposed(ct, ip, fp)
	assert.ErrorIs(t, err, flowerr.ErrInvalidArgument)
	assert.NotNil(t, ip.Type())

	// Not a composed type at all.
	_, err = NewComposed(TypeIRange, ip)
	assert.ErrorIs(t, err, flowerr.ErrInvalidArgument)
}

func TestComposedDupIsDeep(t *testing.T) {
	ct, err := ComposedType(TypeBoolean, TypeString)
	require.NoError(t, err)

	sp, err := NewString("deep")
	require.NoError(t, err)
	p, err := NewComposed(ct, NewBool(true), sp)
	require.NoError(t, err)

	dup, err := p.Dup()
	require.NoError(t, err)
	require.NotSame(t, p, dup)

	p.Del()
	members, err := dup.ComposedMembers()
	require.NoError(t, err)
	require.Len(t, members, 2)
	b, err := members[0].Bool()
	require.NoError(t, err)
	assert.True(t, b)
	s, err := members[1].String()
	require.NoError(t, err)
	assert.Equal(t, "deep", s)
	dup.Del()
}

func TestComposedMembersOnPlainPacket(t *testing.T) {
	p, err := NewInt(1)
	require.NoError(t, err)
	defer p.Del()
	_, err = p.ComposedMembers()
	assert.ErrorIs(t, err, flowerr.ErrInvalidArgument)
	_, err = TypeIRange.ComposedMembers()
	assert.ErrorIs(t, err, flowerr.ErrInvalidArgument)
}
