package runner

import (
	"fmt"
	"math"

	"github.com/loomengine/loom/flow"
	"github.com/loomengine/loom/pkg/flowerr"
)

// FlowConfig is the on-disk definition of a flow graph. It is stored as
// YAML and unmarshals through its JSON form.
type FlowConfig struct {
	// Declares synthesizes node types through metatypes before any node
	// resolves.
	Declares []DeclareConfig `json:"declares,omitempty"`

	Nodes       []NodeConfig  `json:"nodes"`
	Connections []ConnConfig  `json:"connections,omitempty"`
	Exports     ExportsConfig `json:"exports,omitempty"`
}

// DeclareConfig declares one synthesized node type.
type DeclareConfig struct {
	Name     string `json:"name"`
	Metatype string `json:"metatype"`
	Contents string `json:"contents"`
}

// NodeConfig declares one node instance.
type NodeConfig struct {
	Name    string         `json:"name"`
	Type    string         `json:"type"`
	Options map[string]any `json:"options,omitempty"`
}

// ConnConfig declares one connection by node and port names.
type ConnConfig struct {
	Src     string `json:"src"`
	SrcPort string `json:"srcPort"`
	Dst     string `json:"dst"`
	DstPort string `json:"dstPort"`
}

// ExportsConfig exposes child ports on the root container for nested
// composition.
type ExportsConfig struct {
	In  []ExportConfig `json:"in,omitempty"`
	Out []ExportConfig `json:"out,omitempty"`
}

// ExportConfig exposes one child port under an external name.
type ExportConfig struct {
	Node string `json:"node"`
	Port string `json:"port"`
	As   string `json:"as"`
}

// namedOptions converts a JSON-decoded options map into typed named
// options, coercing numbers to the member's type. String values are
// accepted for every member type in their textual form.
func namedOptions(desc *flow.OptionsDescription, raw map[string]any) (flow.NamedOptions, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if desc == nil {
		return nil, fmt.Errorf("node type takes no options: %w", flowerr.ErrInvalidArgument)
	}
	pending := make(map[string]any, len(raw))
	for name, v := range raw {
		pending[name] = v
	}
	named := make(flow.NamedOptions, 0, len(raw))
	for _, m := range desc.Members {
		v, ok := pending[m.Name]
		if !ok {
			continue
		}
		coerced, err := coerceOption(m.Type, v)
		if err != nil {
			return nil, fmt.Errorf("option %q: %w", m.Name, err)
		}
		named = append(named, flow.NamedOption{Name: m.Name, Value: coerced})
		delete(pending, m.Name)
	}
	for name := range pending {
		return nil, fmt.Errorf("unknown option %q: %w", name, flowerr.ErrInvalidArgument)
	}
	return named, nil
}

func coerceOption(t flow.OptionsMemberType, v any) (any, error) {
	if s, ok := v.(string); ok && t != flow.OptionString {
		return flow.ParseOptionValue(t, s)
	}
	switch t {
	case flow.OptionBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%T is not a bool: %w", v, flowerr.ErrInvalidArgument)
		}
		return b, nil
	case flow.OptionByte:
		return coerceNumber(v, 0, math.MaxUint8, func(f float64) any { return byte(f) })
	case flow.OptionInt:
		return coerceNumber(v, math.MinInt32, math.MaxInt32, func(f float64) any { return int32(f) })
	case flow.OptionFloat:
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("%T is not a float: %w", v, flowerr.ErrInvalidArgument)
		}
		return f, nil
	case flow.OptionString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%T is not a string: %w", v, flowerr.ErrInvalidArgument)
		}
		return s, nil
	}
	return nil, fmt.Errorf("option type %v needs its textual form: %w", t, flowerr.ErrInvalidArgument)
}

func coerceNumber(v any, lo, hi float64, conv func(float64) any) (any, error) {
	f, ok := v.(float64)
	if !ok {
		return nil, fmt.Errorf("%T is not a number: %w", v, flowerr.ErrInvalidArgument)
	}
	if f != math.Trunc(f) || f < lo || f > hi {
		return nil, fmt.Errorf("%v out of range %v..%v: %w", f, lo, hi, flowerr.ErrInvalidArgument)
	}
	return conv(f), nil
}
