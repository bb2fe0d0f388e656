package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomengine/loom/flow"
	"github.com/loomengine/loom/nodes"
	"github.com/loomengine/loom/pkg/flowerr"
)

func TestBuildTypeSimpleFlow(t *testing.T) {
	cfg := FlowConfig{
		Nodes: []NodeConfig{
			{Name: "answer", Type: "constant/int", Options: map[string]any{"value": float64(42)}},
			{Name: "out", Type: "console"},
		},
		Connections: []ConnConfig{
			{Src: "answer", SrcPort: "OUT", Dst: "out", DstPort: "IN"},
		},
	}
	typ, err := BuildType(nodes.NewRegistry(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "root", typ.Description.Name)

	root, err := flow.NewNode(nil, "root", typ, nil)
	require.NoError(t, err)
	root.Del()
}

func TestBuildTypeWithDeclares(t *testing.T) {
	RegisterMetatypes()
	cfg := FlowConfig{
		Declares: []DeclareConfig{
			{Name: "reading", Metatype: "composed-new", Contents: "value(float)|unit(string)"},
			{Name: "reading-split", Metatype: "composed-split", Contents: "value(float)|unit(string)"},
		},
		Nodes: []NodeConfig{
			{Name: "v", Type: "constant/float", Options: map[string]any{"value": 21.5}},
			{Name: "u", Type: "constant/string", Options: map[string]any{"value": "celsius"}},
			{Name: "pack", Type: "reading"},
			{Name: "unpack", Type: "reading-split"},
			{Name: "out", Type: "console"},
		},
		Connections: []ConnConfig{
			{Src: "v", SrcPort: "OUT", Dst: "pack", DstPort: "value"},
			{Src: "u", SrcPort: "OUT", Dst: "pack", DstPort: "unit"},
			{Src: "pack", SrcPort: "OUT", Dst: "unpack", DstPort: "IN"},
			{Src: "unpack", SrcPort: "value", Dst: "out", DstPort: "IN"},
		},
	}
	typ, err := BuildType(nodes.NewRegistry(), cfg)
	require.NoError(t, err)

	root, err := flow.NewNode(nil, "root", typ, nil)
	require.NoError(t, err)
	root.Del()
}

func TestBuildTypeWithExports(t *testing.T) {
	cfg := FlowConfig{
		Nodes: []NodeConfig{
			{Name: "inv", Type: "boolean/not"},
		},
		Exports: ExportsConfig{
			In:  []ExportConfig{{Node: "inv", Port: "IN", As: "VALUE"}},
			Out: []ExportConfig{{Node: "inv", Port: "OUT", As: "NEGATED"}},
		},
	}
	typ, err := BuildType(nodes.NewRegistry(), cfg)
	require.NoError(t, err)

	idx, err := typ.Description.FindPortIn("VALUE")
	require.NoError(t, err)
	assert.Equal(t, uint16(0), idx)
	idx, err = typ.Description.FindPortOut("NEGATED")
	require.NoError(t, err)
	assert.Equal(t, uint16(0), idx)
}

func TestBuildTypeErrors(t *testing.T) {
	reg := nodes.NewRegistry()

	_, err := BuildType(reg, FlowConfig{
		Nodes: []NodeConfig{{Name: "x", Type: "no/such"}},
	})
	assert.ErrorIs(t, err, flowerr.ErrNotFound)

	_, err = BuildType(reg, FlowConfig{
		Nodes: []NodeConfig{
			{Name: "x", Type: "constant/int"}, // missing required value
		},
	})
	assert.ErrorIs(t, err, flowerr.ErrInvalidArgument)

	_, err = BuildType(reg, FlowConfig{
		Nodes: []NodeConfig{
			{Name: "a", Type: "constant/int", Options: map[string]any{"value": 1.0}},
			{Name: "b", Type: "console"},
		},
		Connections: []ConnConfig{
			{Src: "a", SrcPort: "NOPE", Dst: "b", DstPort: "IN"},
		},
	})
	assert.ErrorIs(t, err, flowerr.ErrNotFound)

	RegisterMetatypes()
	_, err = BuildType(reg, FlowConfig{
		Declares: []DeclareConfig{
			{Name: "bad", Metatype: "composed-new", Contents: "only(int)"},
		},
	})
	assert.ErrorIs(t, err, flowerr.ErrInvalidArgument)
}
