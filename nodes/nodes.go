// Package nodes provides the builtin node types shipped with the runtime
// and the registry graph builders resolve them from.
package nodes

import (
	"github.com/loomengine/loom/flow"
	"github.com/loomengine/loom/pkg/registry"
	"go.uber.org/zap"
)

var log = zap.NewNop()

// SetLogger installs the logger used by logging node types such as console.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	log = l.Named("nodes")
}

// NodeRegistry resolves node type names to their types.
type NodeRegistry = registry.Registry[*flow.NodeType]

// NewRegistry returns a registry populated with every builtin node type.
func NewRegistry() *NodeRegistry {
	reg := registry.New[*flow.NodeType]()
	reg.MustRegister("console", consoleType())
	reg.MustRegister("constant/int", constantIntType())
	reg.MustRegister("constant/float", constantFloatType())
	reg.MustRegister("constant/string", constantStringType())
	reg.MustRegister("constant/boolean", constantBooleanType())
	reg.MustRegister("boolean/not", booleanNotType())
	reg.MustRegister("timer", timerType())
	return reg
}

// Resolver adapts a registry to the builder's resolver contract.
func Resolver(reg *NodeRegistry) flow.TypeResolver {
	return reg.Get
}
