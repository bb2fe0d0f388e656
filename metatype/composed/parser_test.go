package composed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomengine/loom/packet"
	"github.com/loomengine/loom/pkg/flowerr"
)

func TestParseBody(t *testing.T) {
	tests := []struct {
		name     string
		contents string
		expected []PortSpec
	}{
		{
			name:     "pair",
			contents: "a(int)|b(string)",
			expected: []PortSpec{
				{Name: "a", Type: packet.TypeIRange},
				{Name: "b", Type: packet.TypeString},
			},
		},
		{
			name:     "whitespace tolerated",
			contents: " pos (direction-vector) | ts (timestamp) ",
			expected: []PortSpec{
				{Name: "pos", Type: packet.TypeDirectionVector},
				{Name: "ts", Type: packet.TypeTimestamp},
			},
		},
		{
			name:     "three members",
			contents: "r(float)|g(float)|b(float)",
			expected: []PortSpec{
				{Name: "r", Type: packet.TypeDRange},
				{Name: "g", Type: packet.TypeDRange},
				{Name: "b", Type: packet.TypeDRange},
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			specs, err := parseBody(tc.contents)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, specs)
		})
	}
}

func TestParseBodyErrors(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{"empty", ""},
		{"single port", "a(int)"},
		{"missing close paren", "a(int|b(string)"},
		{"missing type", "a()|b(string)"},
		{"unknown type", "a(quaternion)|b(string)"},
		{"duplicate names", "a(int)|a(string)"},
		{"trailing separator", "a(int)|b(string)|"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseBody(tc.contents)
			assert.ErrorIs(t, err, flowerr.ErrInvalidArgument)
		})
	}
}

func TestFormatBodyRoundTrip(t *testing.T) {
	specs, err := parseBody("a(int)|b(string)|c(boolean)")
	require.NoError(t, err)
	formatted := formatBody(specs)
	assert.Equal(t, "a(int)|b(string)|c(boolean)", formatted)

	again, err := parseBody(formatted)
	require.NoError(t, err)
	assert.Equal(t, specs, again)
}
