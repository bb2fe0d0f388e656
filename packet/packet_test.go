package packet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomengine/loom/pkg/blob"
	"github.com/loomengine/loom/pkg/flowerr"
)

func TestSharedConstantPackets(t *testing.T) {
	assert.Same(t, NewEmpty(), NewEmpty())
	assert.Same(t, NewBool(true), NewBool(true))
	assert.Same(t, NewBool(false), NewBool(false))
	assert.NotSame(t, NewBool(true), NewBool(false))

	// Constants are immortal: Del is a no-op and Dup returns the packet
	// itself.
	p := NewBool(true)
	p.Del()
	v, err := p.Bool()
	require.NoError(t, err)
	assert.True(t, v)
	dup, err := p.Dup()
	require.NoError(t, err)
	assert.Same(t, p, dup)
}

func TestTypeAnyNotConstructable(t *testing.T) {
	_, err := New(TypeAny, nil)
	assert.ErrorIs(t, err, flowerr.ErrInvalidArgument)
}

func TestPacketValues(t *testing.T) {
	bp, err := NewByte(0x7f)
	require.NoError(t, err)
	b, err := bp.Byte()
	require.NoError(t, err)
	assert.Equal(t, byte(0x7f), b)

	ip, err := NewInt(-42)
	require.NoError(t, err)
	iv, err := ip.Int()
	require.NoError(t, err)
	assert.Equal(t, int32(-42), iv)
	ir, err := ip.IRange()
	require.NoError(t, err)
	assert.Equal(t, IRangeValue(-42), ir)

	fp, err := NewFloat(2.5)
	require.NoError(t, err)
	fv, err := fp.Float()
	require.NoError(t, err)
	assert.Equal(t, 2.5, fv)

	sp, err := NewString("hello")
	require.NoError(t, err)
	sv, err := sp.String()
	require.NoError(t, err)
	assert.Equal(t, "hello", sv)

	now := time.Now()
	tp, err := NewTimestamp(now)
	require.NoError(t, err)
	tv, err := tp.Timestamp()
	require.NoError(t, err)
	assert.True(t, now.Equal(tv))

	ep, err := NewError(3, "boom")
	require.NoError(t, err)
	ev, err := ep.Error()
	require.NoError(t, err)
	assert.Equal(t, ErrorValue{Code: 3, Msg: "boom"}, ev)
}

func TestPacketTypeMismatch(t *testing.T) {
	p, err := NewString("x")
	require.NoError(t, err)
	_, err = p.Int()
	assert.ErrorIs(t, err, flowerr.ErrInvalidArgument)

	_, err = New(TypeIRange, "not an irange")
	assert.ErrorIs(t, err, flowerr.ErrInvalidArgument)
}

func TestPacketDelReleases(t *testing.T) {
	p, err := NewInt(1)
	require.NoError(t, err)
	p.Del()
	assert.Nil(t, p.Type())
	_, err = p.Value()
	assert.ErrorIs(t, err, flowerr.ErrInvalidArgument)
	_, err = p.Dup()
	assert.ErrorIs(t, err, flowerr.ErrInvalidArgument)
	// Double delete is harmless.
	p.Del()
}

func TestPacketDupIndependence(t *testing.T) {
	p, err := NewInt(7)
	require.NoError(t, err)
	dup, err := p.Dup()
	require.NoError(t, err)
	require.NotSame(t, p, dup)

	p.Del()
	v, err := dup.Int()
	require.NoError(t, err)
	assert.Equal(t, int32(7), v)
	dup.Del()
}

func TestBlobPacketRefCounting(t *testing.T) {
	freed := 0
	bl, err := blob.New(&blob.Type{Free: func(*blob.Blob) { freed++ }}, nil, []byte("bulk"))
	require.NoError(t, err)

	p, err := NewBlob(bl)
	require.NoError(t, err)
	require.Equal(t, uint16(2), bl.RefCount())

	dup, err := p.Dup()
	require.NoError(t, err)
	require.Equal(t, uint16(3), bl.RefCount())

	got, err := dup.Blob()
	require.NoError(t, err)
	assert.Same(t, bl, got)

	// The creator's reference and each packet's reference release
	// independently; bytes are shared the whole time.
	p.Del()
	dup.Del()
	assert.Equal(t, 0, freed)
	bl.Unref()
	assert.Equal(t, 1, freed)
}

func TestHTTPResponsePacket(t *testing.T) {
	body, err := blob.New(blob.TypeNoFreeData, nil, []byte(`{"ok":true}`))
	require.NoError(t, err)
	resp := HTTPResponse{
		Code:        200,
		URL:         "http://localhost/probe",
		ContentType: "application/json",
		Content:     body,
		Headers:     []HTTPParam{{Key: "X-Trace", Value: "abc"}},
	}
	p, err := NewHTTPResponse(resp)
	require.NoError(t, err)
	require.Equal(t, uint16(2), body.RefCount())

	dup, err := p.Dup()
	require.NoError(t, err)
	require.Equal(t, uint16(3), body.RefCount())

	got, err := dup.HTTPResponse()
	require.NoError(t, err)
	assert.Equal(t, 200, got.Code)
	assert.Same(t, body, got.Content)

	// Header slices are copied, not shared.
	got.Headers[0].Value = "mutated"
	orig, err := p.HTTPResponse()
	require.NoError(t, err)
	assert.Equal(t, "abc", orig.Headers[0].Value)

	p.Del()
	dup.Del()
	assert.Equal(t, uint16(1), body.RefCount())
}

func TestTypeIdentityAndID(t *testing.T) {
	assert.NotZero(t, TypeIRange.ID())
	assert.NotEqual(t, TypeIRange.ID(), TypeDRange.ID())
}

func TestTypeByName(t *testing.T) {
	tests := []struct {
		name string
		typ  *Type
	}{
		{"empty", TypeEmpty},
		{"any", TypeAny},
		{"boolean", TypeBoolean},
		{"byte", TypeByte},
		{"int", TypeIRange},
		{"float", TypeDRange},
		{"string", TypeString},
		{"blob", TypeBlob},
		{"rgb", TypeRGB},
		{"direction-vector", TypeDirectionVector},
		{"location", TypeLocation},
		{"timestamp", TypeTimestamp},
		{"error", TypeError},
		{"json-object", TypeJSONObject},
		{"json-array", TypeJSONArray},
		{"http-response", TypeHTTPResponse},
	}
	for _, tc := range tests {
		got, err := TypeByName(tc.name)
		require.NoError(t, err, tc.name)
		assert.Same(t, tc.typ, got, tc.name)
	}

	_, err := TypeByName("no-such-type")
	assert.ErrorIs(t, err, flowerr.ErrNotFound)
}

func TestSymbolByName(t *testing.T) {
	sym, err := SymbolByName("int")
	require.NoError(t, err)
	assert.Equal(t, "packet.TypeIRange", sym)

	sym, err = SymbolByName("direction-vector")
	require.NoError(t, err)
	assert.Equal(t, "packet.TypeDirectionVector", sym)

	_, err = SymbolByName("no-such-type")
	assert.ErrorIs(t, err, flowerr.ErrNotFound)
}
