package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomengine/loom/flow"
	"github.com/loomengine/loom/packet"
	"github.com/loomengine/loom/pkg/flowerr"
)

var coercionDesc = &flow.OptionsDescription{
	Members: []flow.OptionsMemberDescription{
		{Name: "enabled", Type: flow.OptionBool},
		{Name: "mask", Type: flow.OptionByte},
		{Name: "rate", Type: flow.OptionInt},
		{Name: "gain", Type: flow.OptionFloat},
		{Name: "label", Type: flow.OptionString},
		{Name: "color", Type: flow.OptionRGB},
	},
}

func TestNamedOptionsCoercion(t *testing.T) {
	// YAML and JSON decode every number as float64; members get their
	// declared type back.
	named, err := namedOptions(coercionDesc, map[string]any{
		"enabled": true,
		"mask":    float64(15),
		"rate":    float64(-200),
		"gain":    0.25,
		"label":   "plain",
		"color":   "#010203",
	})
	require.NoError(t, err)

	byName := make(map[string]any, len(named))
	for _, no := range named {
		byName[no.Name] = no.Value
	}
	assert.Equal(t, true, byName["enabled"])
	assert.Equal(t, byte(15), byName["mask"])
	assert.Equal(t, int32(-200), byName["rate"])
	assert.Equal(t, 0.25, byName["gain"])
	assert.Equal(t, "plain", byName["label"])
	assert.Equal(t, packet.RGB{
		Red: 1, Green: 2, Blue: 3,
		RedMax: 255, GreenMax: 255, BlueMax: 255,
	}, byName["color"])
}

func TestNamedOptionsTextualForms(t *testing.T) {
	// String values parse through the members' textual grammar.
	named, err := namedOptions(coercionDesc, map[string]any{
		"rate":    "0x10",
		"enabled": "true",
	})
	require.NoError(t, err)
	byName := make(map[string]any, len(named))
	for _, no := range named {
		byName[no.Name] = no.Value
	}
	assert.Equal(t, int32(16), byName["rate"])
	assert.Equal(t, true, byName["enabled"])
}

func TestNamedOptionsErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
	}{
		{"unknown member", map[string]any{"bogus": 1.0}},
		{"non-integral int", map[string]any{"rate": 1.5}},
		{"int out of range", map[string]any{"rate": 1e12}},
		{"byte out of range", map[string]any{"mask": float64(300)}},
		{"wrong bool type", map[string]any{"enabled": 1.0}},
		{"wrong string type", map[string]any{"label": 1.0}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := namedOptions(coercionDesc, tc.raw)
			assert.ErrorIs(t, err, flowerr.ErrInvalidArgument)
		})
	}

	// Options on a type that takes none.
	_, err := namedOptions(nil, map[string]any{"x": 1.0})
	assert.ErrorIs(t, err, flowerr.ErrInvalidArgument)

	// No options at all is fine either way.
	named, err := namedOptions(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, named)
}
