package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomengine/loom/pkg/flowerr"
)

var sampleDesc = &NodeTypeDescription{
	Name: "mixer",
	PortsIn: []PortDescription{
		{Name: "IN", DataType: "int", BasePortIdx: 0},
		{Name: "CHANNEL", DataType: "float", ArraySize: 4, BasePortIdx: 1},
	},
	PortsOut: []PortDescription{
		{Name: "OUT", DataType: "float", BasePortIdx: 0},
	},
}

func TestFindPortIn(t *testing.T) {
	tests := []struct {
		name string
		want uint16
	}{
		{"IN", 0},
		{"CHANNEL[0]", 1},
		{"CHANNEL[3]", 4},
	}
	for _, tc := range tests {
		idx, err := sampleDesc.FindPortIn(tc.name)
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.want, idx, tc.name)
	}
}

func TestFindPortInErrors(t *testing.T) {
	tests := []struct {
		name string
		want error
	}{
		{"NOPE", flowerr.ErrNotFound},
		{"CHANNEL", flowerr.ErrInvalidArgument},    // array port without index
		{"IN[0]", flowerr.ErrInvalidArgument},      // scalar port with index
		{"CHANNEL[4]", flowerr.ErrNotFound},        // element out of range
		{"CHANNEL[x]", flowerr.ErrInvalidArgument}, // malformed index
		{"CHANNEL[1", flowerr.ErrInvalidArgument},  // missing bracket
	}
	for _, tc := range tests {
		_, err := sampleDesc.FindPortIn(tc.name)
		assert.ErrorIs(t, err, tc.want, tc.name)
	}
}

func TestFindPortOut(t *testing.T) {
	idx, err := sampleDesc.FindPortOut("OUT")
	require.NoError(t, err)
	assert.Equal(t, uint16(0), idx)

	// ERROR resolves on every described type, and even without a
	// description.
	idx, err = sampleDesc.FindPortOut("ERROR")
	require.NoError(t, err)
	assert.Equal(t, PortError, idx)

	var nilDesc *NodeTypeDescription
	idx, err = nilDesc.FindPortOut("ERROR")
	require.NoError(t, err)
	assert.Equal(t, PortError, idx)

	_, err = nilDesc.FindPortOut("OUT")
	assert.ErrorIs(t, err, flowerr.ErrNotFound)
}

func TestPortNames(t *testing.T) {
	assert.Equal(t, "IN", sampleDesc.PortInName(0))
	assert.Equal(t, "CHANNEL[2]", sampleDesc.PortInName(3))
	assert.Equal(t, "OUT", sampleDesc.PortOutName(0))
	assert.Equal(t, "ERROR", sampleDesc.PortOutName(PortError))
	// Unknown indices fall back to the numeric form.
	assert.Equal(t, "9", sampleDesc.PortInName(9))
}
