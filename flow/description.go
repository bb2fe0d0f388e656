package flow

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/loomengine/loom/pkg/flowerr"
)

// PortDescription is the metadata of one port, or of one array port that
// expands into ArraySize consecutive logical ports starting at BasePortIdx.
type PortDescription struct {
	Name        string
	Description string
	DataType    string
	ArraySize   uint16
	BasePortIdx uint16
	Required    bool
}

// NodeTypeDescription is the optional human-facing metadata of a node type,
// consumed by builders, code generators and inspectors.
type NodeTypeDescription struct {
	Name        string
	Category    string
	Description string
	Author      string
	URL         string
	License     string
	Version     string
	PortsIn     []PortDescription
	PortsOut    []PortDescription
}

// errorPortDescription is the hidden output port every node type carries.
var errorPortDescription = PortDescription{
	Name:        "ERROR",
	Description: "Error reporting port",
	DataType:    "error",
	BasePortIdx: PortError,
}

// splitPortName splits "NAME[i]" into its base name and element index.
func splitPortName(name string) (string, int, error) {
	open := strings.IndexByte(name, '[')
	if open < 0 {
		return name, -1, nil
	}
	if !strings.HasSuffix(name, "]") {
		return "", 0, fmt.Errorf("malformed port name %q: %w", name, flowerr.ErrInvalidArgument)
	}
	idx, err := strconv.Atoi(name[open+1 : len(name)-1])
	if err != nil || idx < 0 {
		return "", 0, fmt.Errorf("malformed port index in %q: %w", name, flowerr.ErrInvalidArgument)
	}
	return name[:open], idx, nil
}

func findPort(ports []PortDescription, name string) (uint16, error) {
	base, elem, err := splitPortName(name)
	if err != nil {
		return 0, err
	}
	for i := range ports {
		p := &ports[i]
		if p.Name != base {
			continue
		}
		if p.ArraySize == 0 {
			if elem >= 0 {
				return 0, fmt.Errorf("port %q is not an array port: %w", base, flowerr.ErrInvalidArgument)
			}
			return p.BasePortIdx, nil
		}
		if elem < 0 {
			return 0, fmt.Errorf("array port %q needs an element index: %w", base, flowerr.ErrInvalidArgument)
		}
		if elem >= int(p.ArraySize) {
			return 0, fmt.Errorf("port %q element %d out of range 0..%d: %w",
				base, elem, p.ArraySize-1, flowerr.ErrNotFound)
		}
		return p.BasePortIdx + uint16(elem), nil
	}
	return 0, fmt.Errorf("port %q: %w", name, flowerr.ErrNotFound)
}

// FindPortIn resolves an input port name, including "NAME[i]" array-element
// syntax, to its logical port index.
func (d *NodeTypeDescription) FindPortIn(name string) (uint16, error) {
	if d == nil {
		return 0, fmt.Errorf("node type has no description: %w", flowerr.ErrNotFound)
	}
	return findPort(d.PortsIn, name)
}

// FindPortOut resolves an output port name to its logical port index. The
// hidden "ERROR" port resolves on every described type.
func (d *NodeTypeDescription) FindPortOut(name string) (uint16, error) {
	if name == errorPortDescription.Name {
		return PortError, nil
	}
	if d == nil {
		return 0, fmt.Errorf("node type has no description: %w", flowerr.ErrNotFound)
	}
	return findPort(d.PortsOut, name)
}

// PortInName returns the display name of an input port index, using
// "NAME[i]" syntax for array elements.
func (d *NodeTypeDescription) PortInName(idx uint16) string {
	return portName(d.portsIn(), idx)
}

// PortOutName returns the display name of an output port index.
func (d *NodeTypeDescription) PortOutName(idx uint16) string {
	if idx == PortError {
		return errorPortDescription.Name
	}
	return portName(d.portsOut(), idx)
}

func (d *NodeTypeDescription) portsIn() []PortDescription {
	if d == nil {
		return nil
	}
	return d.PortsIn
}

func (d *NodeTypeDescription) portsOut() []PortDescription {
	if d == nil {
		return nil
	}
	return d.PortsOut
}

func portName(ports []PortDescription, idx uint16) string {
	for i := range ports {
		p := &ports[i]
		if p.ArraySize == 0 {
			if p.BasePortIdx == idx {
				return p.Name
			}
			continue
		}
		if idx >= p.BasePortIdx && idx < p.BasePortIdx+p.ArraySize {
			return fmt.Sprintf("%s[%d]", p.Name, idx-p.BasePortIdx)
		}
	}
	return strconv.Itoa(int(idx))
}
