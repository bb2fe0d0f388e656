package flow

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/loomengine/loom/packet"
	"github.com/loomengine/loom/pkg/flowerr"
)

// OptionsMemberType tags the value domain of one configuration member.
type OptionsMemberType int

const (
	OptionBool OptionsMemberType = iota
	OptionByte
	OptionInt
	OptionFloat
	OptionString
	OptionRGB
	OptionDirectionVector
	OptionIRangeSpec
	OptionDRangeSpec
)

var optionTypeNames = map[OptionsMemberType]string{
	OptionBool:            "bool",
	OptionByte:            "byte",
	OptionInt:             "int",
	OptionFloat:           "float",
	OptionString:          "string",
	OptionRGB:             "rgb",
	OptionDirectionVector: "direction-vector",
	OptionIRangeSpec:      "irange-spec",
	OptionDRangeSpec:      "drange-spec",
}

func (t OptionsMemberType) String() string {
	if s, ok := optionTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("option-type(%d)", int(t))
}

// IRangeSpec constrains an int option member.
type IRangeSpec struct {
	Min  int32
	Max  int32
	Step int32
}

// DRangeSpec constrains a float option member.
type DRangeSpec struct {
	Min  float64
	Max  float64
	Step float64
}

// OptionsMemberDescription describes one member of a node type's
// configuration record.
type OptionsMemberDescription struct {
	Name     string
	Type     OptionsMemberType
	Required bool
	Default  any
}

// OptionsDescription lists the configuration members a node type accepts.
type OptionsDescription struct {
	Members []OptionsMemberDescription
}

func (d *OptionsDescription) member(name string) *OptionsMemberDescription {
	if d == nil {
		return nil
	}
	for i := range d.Members {
		if d.Members[i].Name == name {
			return &d.Members[i]
		}
	}
	return nil
}

// NamedOption is one (name, typed value) configuration pair.
type NamedOption struct {
	Name  string
	Value any
}

// NamedOptions is the textual-ingestion representation of a configuration,
// produced by ParseNamedOptionsStrv or assembled by a graph builder.
type NamedOptions []NamedOption

// ParseNamedOptionsStrv parses "key=value" strings against desc. Unknown
// keys and values that do not parse as the member's type fail with
// ErrInvalidArgument.
func ParseNamedOptionsStrv(desc *OptionsDescription, strv []string) (NamedOptions, error) {
	named := make(NamedOptions, 0, len(strv))
	for _, s := range strv {
		key, raw, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("option %q is not key=value: %w", s, flowerr.ErrInvalidArgument)
		}
		m := desc.member(key)
		if m == nil {
			return nil, fmt.Errorf("unknown option %q: %w", key, flowerr.ErrInvalidArgument)
		}
		v, err := ParseOptionValue(m.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("option %q: %w", key, err)
		}
		named = append(named, NamedOption{Name: key, Value: v})
	}
	return named, nil
}

// ParseOptionValue parses the textual form of one option value according to
// its member type.
func ParseOptionValue(t OptionsMemberType, raw string) (any, error) {
	switch t {
	case OptionBool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not a bool: %w", raw, flowerr.ErrInvalidArgument)
		}
		return v, nil
	case OptionByte:
		v, err := strconv.ParseUint(raw, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("%q is not a byte: %w", raw, flowerr.ErrInvalidArgument)
		}
		return byte(v), nil
	case OptionInt:
		v, err := strconv.ParseInt(raw, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("%q is not an int: %w", raw, flowerr.ErrInvalidArgument)
		}
		return int32(v), nil
	case OptionFloat:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a float: %w", raw, flowerr.ErrInvalidArgument)
		}
		return v, nil
	case OptionString:
		return raw, nil
	case OptionRGB:
		return parseRGB(raw)
	case OptionDirectionVector:
		return parseDirectionVector(raw)
	case OptionIRangeSpec:
		return parseIRangeSpec(raw)
	case OptionDRangeSpec:
		return parseDRangeSpec(raw)
	}
	return nil, fmt.Errorf("unsupported option type %v: %w", t, flowerr.ErrInvalidArgument)
}

func splitFields(raw string, min, max int) ([]string, error) {
	parts := strings.Split(raw, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < min || len(parts) > max {
		return nil, fmt.Errorf("%q has %d fields, want %d..%d: %w",
			raw, len(parts), min, max, flowerr.ErrInvalidArgument)
	}
	return parts, nil
}

// parseRGB accepts "#RRGGBB" or "r|g|b" with optional "|rmax|gmax|bmax".
func parseRGB(raw string) (packet.RGB, error) {
	rgb := packet.RGB{RedMax: 255, GreenMax: 255, BlueMax: 255}
	if strings.HasPrefix(raw, "#") {
		v, err := strconv.ParseUint(raw[1:], 16, 32)
		if err != nil || len(raw) != 7 {
			return packet.RGB{}, fmt.Errorf("%q is not #RRGGBB: %w", raw, flowerr.ErrInvalidArgument)
		}
		rgb.Red = uint32(v >> 16 & 0xff)
		rgb.Green = uint32(v >> 8 & 0xff)
		rgb.Blue = uint32(v & 0xff)
		return rgb, nil
	}
	parts, err := splitFields(raw, 3, 6)
	if err != nil {
		return packet.RGB{}, err
	}
	dst := []*uint32{&rgb.Red, &rgb.Green, &rgb.Blue, &rgb.RedMax, &rgb.GreenMax, &rgb.BlueMax}
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 0, 32)
		if err != nil {
			return packet.RGB{}, fmt.Errorf("rgb field %q: %w", p, flowerr.ErrInvalidArgument)
		}
		*dst[i] = uint32(v)
	}
	return rgb, nil
}

// parseDirectionVector accepts "x|y|z" with optional "|min|max".
func parseDirectionVector(raw string) (packet.DirectionVector, error) {
	parts, err := splitFields(raw, 3, 5)
	if err != nil {
		return packet.DirectionVector{}, err
	}
	dv := packet.DirectionVector{Min: -1.7976931348623157e308, Max: 1.7976931348623157e308}
	dst := []*float64{&dv.X, &dv.Y, &dv.Z, &dv.Min, &dv.Max}
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return packet.DirectionVector{}, fmt.Errorf("direction-vector field %q: %w", p, flowerr.ErrInvalidArgument)
		}
		*dst[i] = v
	}
	return dv, nil
}

// parseIRangeSpec accepts "min|max|step".
func parseIRangeSpec(raw string) (IRangeSpec, error) {
	parts, err := splitFields(raw, 3, 3)
	if err != nil {
		return IRangeSpec{}, err
	}
	var out [3]int32
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 0, 32)
		if err != nil {
			return IRangeSpec{}, fmt.Errorf("irange-spec field %q: %w", p, flowerr.ErrInvalidArgument)
		}
		out[i] = int32(v)
	}
	return IRangeSpec{Min: out[0], Max: out[1], Step: out[2]}, nil
}

// parseDRangeSpec accepts "min|max|step".
func parseDRangeSpec(raw string) (DRangeSpec, error) {
	parts, err := splitFields(raw, 3, 3)
	if err != nil {
		return DRangeSpec{}, err
	}
	var out [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return DRangeSpec{}, fmt.Errorf("drange-spec field %q: %w", p, flowerr.ErrInvalidArgument)
		}
		out[i] = v
	}
	return DRangeSpec{Min: out[0], Max: out[1], Step: out[2]}, nil
}

func checkOptionValue(t OptionsMemberType, v any) error {
	var ok bool
	switch t {
	case OptionBool:
		_, ok = v.(bool)
	case OptionByte:
		_, ok = v.(byte)
	case OptionInt:
		_, ok = v.(int32)
	case OptionFloat:
		_, ok = v.(float64)
	case OptionString:
		_, ok = v.(string)
	case OptionRGB:
		_, ok = v.(packet.RGB)
	case OptionDirectionVector:
		_, ok = v.(packet.DirectionVector)
	case OptionIRangeSpec:
		_, ok = v.(IRangeSpec)
	case OptionDRangeSpec:
		_, ok = v.(DRangeSpec)
	}
	if !ok {
		return fmt.Errorf("value %T does not match member type %v: %w", v, t, flowerr.ErrInvalidArgument)
	}
	return nil
}

// Options is the resolved configuration a node's Open receives. Members not
// present in the description never appear here.
type Options map[string]any

// NewOptions resolves named options against desc: defaults are applied,
// required members must be present, unknown names fail with ErrNotFound.
func NewOptions(desc *OptionsDescription, named NamedOptions) (Options, error) {
	opts := make(Options)
	for _, no := range named {
		m := desc.member(no.Name)
		if m == nil {
			return nil, fmt.Errorf("unknown options member %q: %w", no.Name, flowerr.ErrNotFound)
		}
		if err := checkOptionValue(m.Type, no.Value); err != nil {
			return nil, fmt.Errorf("options member %q: %w", no.Name, err)
		}
		opts[no.Name] = no.Value
	}
	if desc != nil {
		for _, m := range desc.Members {
			if _, ok := opts[m.Name]; ok {
				continue
			}
			if m.Default != nil {
				opts[m.Name] = m.Default
				continue
			}
			if m.Required {
				return nil, fmt.Errorf("required options member %q missing: %w", m.Name, flowerr.ErrInvalidArgument)
			}
		}
	}
	return opts, nil
}

// Decode unmarshals the options into a struct, matching members to fields
// by json tag or name.
func (o Options) Decode(to any) error {
	raw, err := json.Marshal(map[string]any(o))
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	if err := json.Unmarshal(raw, to); err != nil {
		return fmt.Errorf("decode options: %w", err)
	}
	return nil
}

// Bool reads a bool member, falling back to def when absent.
func (o Options) Bool(name string, def bool) bool {
	if v, ok := o[name].(bool); ok {
		return v
	}
	return def
}

// Int reads an int member, falling back to def when absent.
func (o Options) Int(name string, def int32) int32 {
	if v, ok := o[name].(int32); ok {
		return v
	}
	return def
}

// Float reads a float member, falling back to def when absent.
func (o Options) Float(name string, def float64) float64 {
	if v, ok := o[name].(float64); ok {
		return v
	}
	return def
}

// String reads a string member, falling back to def when absent.
func (o Options) String(name string, def string) string {
	if v, ok := o[name].(string); ok {
		return v
	}
	return def
}
