package composed

import (
	"fmt"
	"io"

	"github.com/iancoleman/strcase"
	"github.com/loomengine/loom/metatype"
	"github.com/loomengine/loom/packet"
)

// Code generation emits a Go constructor realizing the declared type ahead
// of time, so builds can avoid parsing bodies at runtime. The three hooks
// emit, in order, the function head, the port table and the closing.

func generateStart(w io.Writer, ctx *metatype.Context) error {
	specs, err := parseBody(ctx.Contents)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "// New%[1]sType builds the %[2]q composed type declared as %[3]q.\nfunc New%[1]sType() (*flow.NodeType, error) {\n",
		strcase.ToCamel(ctx.Name), formatBody(specs), ctx.Name)
	return err
}

func generateConstructorBody(w io.Writer, ctx *metatype.Context) error {
	return generateBody(w, ctx, "ConstructorTypeOf")
}

func generateSplitterBody(w io.Writer, ctx *metatype.Context) error {
	return generateBody(w, ctx, "SplitterTypeOf")
}

func generateBody(w io.Writer, ctx *metatype.Context, constructor string) error {
	specs, err := parseBody(ctx.Contents)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "\treturn composed.%s(%q, []composed.PortSpec{\n", constructor, ctx.Name); err != nil {
		return err
	}
	for _, s := range specs {
		symbol, err := packet.SymbolByName(s.Type.Name)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "\t\t{Name: %q, Type: %s},\n", s.Name, symbol); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "\t})\n")
	return err
}

func generateEnd(w io.Writer, ctx *metatype.Context) error {
	_, err := fmt.Fprintf(w, "}\n")
	return err
}
