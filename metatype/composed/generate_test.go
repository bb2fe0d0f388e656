package composed

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomengine/loom/pkg/flowerr"
)

func generateAll(t *testing.T, name, contents string, body func(w *bytes.Buffer) error) string {
	t.Helper()
	ctx := metatypeContext(name, contents)
	var buf bytes.Buffer
	require.NoError(t, generateStart(&buf, ctx))
	require.NoError(t, body(&buf))
	require.NoError(t, generateEnd(&buf, ctx))
	return buf.String()
}

func TestGenerateConstructor(t *testing.T) {
	ctx := metatypeContext("sensor-reading", "value(float)|unit(string)")
	got := generateAll(t, ctx.Name, ctx.Contents, func(w *bytes.Buffer) error {
		return generateConstructorBody(w, ctx)
	})

	want := `// NewSensorReadingType builds the "value(float)|unit(string)" composed type declared as "sensor-reading".
func NewSensorReadingType() (*flow.NodeType, error) {
	return composed.ConstructorTypeOf("sensor-reading", []composed.PortSpec{
		{Name: "value", Type: packet.TypeDRange},
		{Name: "unit", Type: packet.TypeString},
	})
}
`
	assert.Equal(t, want, got)
}

func TestGenerateSplitter(t *testing.T) {
	ctx := metatypeContext("reading-split", "value(float)|unit(string)")
	got := generateAll(t, ctx.Name, ctx.Contents, func(w *bytes.Buffer) error {
		return generateSplitterBody(w, ctx)
	})
	assert.Contains(t, got, "func NewReadingSplitType() (*flow.NodeType, error) {")
	assert.Contains(t, got, `composed.SplitterTypeOf("reading-split", []composed.PortSpec{`)
	assert.Contains(t, got, "packet.TypeDRange")
	assert.Contains(t, got, "packet.TypeString")
}

func TestGenerateRejectsMalformedBody(t *testing.T) {
	ctx := metatypeContext("bad", "only(int)")
	var buf bytes.Buffer
	err := generateStart(&buf, ctx)
	assert.ErrorIs(t, err, flowerr.ErrInvalidArgument)
}
