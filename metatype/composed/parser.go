package composed

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/loomengine/loom/packet"
	"github.com/loomengine/loom/pkg/flowerr"
)

var (
	ruleWhitespace = lexer.SimpleRule{Name: "Whitespace", Pattern: `\s+`}
	rulePunct      = lexer.SimpleRule{Name: "Punct", Pattern: `[()|]`}
	ruleName       = lexer.SimpleRule{Name: "Name", Pattern: `[^()|\s]+`}
)

var bodyLexer = lexer.MustSimple([]lexer.SimpleRule{
	ruleWhitespace,
	rulePunct,
	ruleName,
})

var bodyParser = participle.MustBuild[body](
	participle.Lexer(bodyLexer),
	participle.Elide(ruleWhitespace.Name),
)

type body struct {
	Ports []portToken `parser:"@@ ( '|' @@ )*"`
}

type portToken struct {
	Name string `parser:"@Name"`
	Type string `parser:"'(' @Name ')'"`
}

// PortSpec is one named, typed port of a composed body.
type PortSpec struct {
	Name string
	Type *packet.Type
}

// parseBody parses "name1(type1)|name2(type2)|..." into resolved port
// specs. Bodies with fewer than two ports, unknown type names or duplicate
// port names fail with ErrInvalidArgument.
func parseBody(contents string) ([]PortSpec, error) {
	b, err := bodyParser.ParseString("", contents)
	if err != nil {
		return nil, fmt.Errorf("malformed composed body %q: %v: %w", contents, err, flowerr.ErrInvalidArgument)
	}
	if len(b.Ports) < 2 {
		return nil, fmt.Errorf("composed body %q has %d ports, need at least 2: %w",
			contents, len(b.Ports), flowerr.ErrInvalidArgument)
	}
	specs := make([]PortSpec, 0, len(b.Ports))
	seen := make(map[string]struct{}, len(b.Ports))
	for _, tok := range b.Ports {
		if _, dup := seen[tok.Name]; dup {
			return nil, fmt.Errorf("duplicate port name %q: %w", tok.Name, flowerr.ErrInvalidArgument)
		}
		seen[tok.Name] = struct{}{}
		t, err := packet.TypeByName(tok.Type)
		if err != nil {
			return nil, fmt.Errorf("port %q: unknown type %q: %w", tok.Name, tok.Type, flowerr.ErrInvalidArgument)
		}
		specs = append(specs, PortSpec{Name: tok.Name, Type: t})
	}
	return specs, nil
}

// formatBody is the inverse of parseBody.
func formatBody(specs []PortSpec) string {
	tokens := make([]string, len(specs))
	for i, s := range specs {
		tokens[i] = fmt.Sprintf("%s(%s)", s.Name, s.Type.Name)
	}
	return strings.Join(tokens, "|")
}

func memberTypes(specs []PortSpec) []*packet.Type {
	members := make([]*packet.Type, len(specs))
	for i, s := range specs {
		members[i] = s.Type
	}
	return members
}
