package packet

import (
	"fmt"
	"time"

	"github.com/loomengine/loom/pkg/blob"
	"github.com/loomengine/loom/pkg/flowerr"
)

// IRange is an integer value with declared bounds and step.
type IRange struct {
	Val  int32
	Min  int32
	Max  int32
	Step int32
}

// IRangeValue builds an IRange spanning the full int32 domain.
func IRangeValue(v int32) IRange {
	return IRange{Val: v, Min: -1 << 31, Max: 1<<31 - 1, Step: 1}
}

// DRange is a float value with declared bounds and step.
type DRange struct {
	Val  float64
	Min  float64
	Max  float64
	Step float64
}

// DRangeValue builds a DRange spanning the representable float64 domain.
func DRangeValue(v float64) DRange {
	const maxF = 1.7976931348623157e308
	return DRange{Val: v, Min: -maxF, Max: maxF, Step: 2.220446049250313e-16}
}

// RGB is a color with per-channel maxima.
type RGB struct {
	Red      uint32
	Green    uint32
	Blue     uint32
	RedMax   uint32
	GreenMax uint32
	BlueMax  uint32
}

// DirectionVector is a 3-axis reading with shared bounds.
type DirectionVector struct {
	X   float64
	Y   float64
	Z   float64
	Min float64
	Max float64
}

// Location is a geographic coordinate.
type Location struct {
	Lat float64
	Lon float64
	Alt float64
}

// ErrorValue is the payload of an error packet.
type ErrorValue struct {
	Code int
	Msg  string
}

// HTTPParam is one cookie or header of an HTTP response payload.
type HTTPParam struct {
	Key   string
	Value string
}

// HTTPResponse is the payload of an http-response packet. Content is a
// referenced blob released with the packet.
type HTTPResponse struct {
	Code        int
	URL         string
	ContentType string
	Content     *blob.Blob
	Cookies     []HTTPParam
	Headers     []HTTPParam
}

var (
	// TypeEmpty carries no value. All empty packets are one shared
	// immortal instance.
	TypeEmpty = newType(&Type{
		Name: "empty",
		GetConstant: func(*Type, any) (*Packet, error) {
			return emptyPacket, nil
		},
	})

	// TypeAny is a port-only wildcard. Packets of this type cannot be
	// constructed.
	TypeAny = newType(&Type{Name: "any"})

	// TypeBoolean packets are the two shared immortal instances.
	TypeBoolean = newType(&Type{
		Name: "boolean",
		GetConstant: func(_ *Type, value any) (*Packet, error) {
			v, ok := value.(bool)
			if !ok {
				return nil, fmt.Errorf("boolean packet from %T: %w", value, flowerr.ErrInvalidArgument)
			}
			if v {
				return truePacket, nil
			}
			return falsePacket, nil
		},
	})

	TypeByte = newType(&Type{
		Name: "byte",
		Init: initAs[byte],
	})

	TypeIRange = newType(&Type{
		Name: "int",
		Init: initAs[IRange],
	})

	TypeDRange = newType(&Type{
		Name: "float",
		Init: initAs[DRange],
	})

	TypeString = newType(&Type{
		Name: "string",
		Init: initAs[string],
	})

	TypeBlob = newType(&Type{
		Name:    "blob",
		Init:    initBlob,
		Dispose: disposeBlob,
		Dup:     dupBlob,
	})

	TypeRGB = newType(&Type{
		Name: "rgb",
		Init: initAs[RGB],
	})

	TypeDirectionVector = newType(&Type{
		Name: "direction-vector",
		Init: initAs[DirectionVector],
	})

	TypeLocation = newType(&Type{
		Name: "location",
		Init: initAs[Location],
	})

	TypeTimestamp = newType(&Type{
		Name: "timestamp",
		Init: initAs[time.Time],
	})

	TypeError = newType(&Type{
		Name: "error",
		Init: initAs[ErrorValue],
	})

	TypeJSONObject = newType(&Type{
		Name:    "json-object",
		Init:    initBlob,
		Dispose: disposeBlob,
		Dup:     dupBlob,
	})

	TypeJSONArray = newType(&Type{
		Name:    "json-array",
		Init:    initBlob,
		Dispose: disposeBlob,
		Dup:     dupBlob,
	})

	TypeHTTPResponse = newType(&Type{
		Name:    "http-response",
		Init:    initHTTPResponse,
		Dispose: disposeHTTPResponse,
		Dup:     dupHTTPResponse,
	})
)

// The shared constants are built in init so their GetConstant closures do
// not form a declaration cycle with the Type vars above.
var (
	emptyPacket *Packet
	truePacket  *Packet
	falsePacket *Packet
)

func init() {
	emptyPacket = &Packet{typ: TypeEmpty}
	truePacket = &Packet{typ: TypeBoolean, data: true}
	falsePacket = &Packet{typ: TypeBoolean, data: false}
}

func initAs[T any](t *Type, value any) (any, error) {
	v, ok := value.(T)
	if !ok {
		return nil, fmt.Errorf("%s packet from %T: %w", t.Name, value, flowerr.ErrInvalidArgument)
	}
	return v, nil
}

func initBlob(t *Type, value any) (any, error) {
	b, ok := value.(*blob.Blob)
	if !ok || b == nil {
		return nil, fmt.Errorf("%s packet needs a blob, got %T: %w", t.Name, value, flowerr.ErrInvalidArgument)
	}
	if _, err := b.Ref(); err != nil {
		return nil, err
	}
	return b, nil
}

func disposeBlob(_ *Type, data any) {
	if b, ok := data.(*blob.Blob); ok && b != nil {
		b.Unref()
	}
}

func dupBlob(_ *Type, data any) (any, error) {
	b := data.(*blob.Blob)
	if _, err := b.Ref(); err != nil {
		return nil, err
	}
	return b, nil
}

func initHTTPResponse(t *Type, value any) (any, error) {
	r, ok := value.(HTTPResponse)
	if !ok {
		return nil, fmt.Errorf("%s packet from %T: %w", t.Name, value, flowerr.ErrInvalidArgument)
	}
	if r.Content != nil {
		if _, err := r.Content.Ref(); err != nil {
			return nil, err
		}
	}
	r.Cookies = append([]HTTPParam(nil), r.Cookies...)
	r.Headers = append([]HTTPParam(nil), r.Headers...)
	return r, nil
}

func disposeHTTPResponse(_ *Type, data any) {
	r := data.(HTTPResponse)
	if r.Content != nil {
		r.Content.Unref()
	}
}

func dupHTTPResponse(_ *Type, data any) (any, error) {
	r := data.(HTTPResponse)
	if r.Content != nil {
		if _, err := r.Content.Ref(); err != nil {
			return nil, err
		}
	}
	r.Cookies = append([]HTTPParam(nil), r.Cookies...)
	r.Headers = append([]HTTPParam(nil), r.Headers...)
	return r, nil
}

// NewEmpty returns the shared empty packet.
func NewEmpty() *Packet { return emptyPacket }

// NewBool returns one of the two shared boolean packets.
func NewBool(v bool) *Packet {
	if v {
		return truePacket
	}
	return falsePacket
}

// NewByte creates a byte packet.
func NewByte(v byte) (*Packet, error) { return New(TypeByte, v) }

// NewIRange creates an int packet with explicit bounds.
func NewIRange(v IRange) (*Packet, error) { return New(TypeIRange, v) }

// NewInt creates an int packet spanning the full int32 domain.
func NewInt(v int32) (*Packet, error) { return New(TypeIRange, IRangeValue(v)) }

// NewDRange creates a float packet with explicit bounds.
func NewDRange(v DRange) (*Packet, error) { return New(TypeDRange, v) }

// NewFloat creates a float packet spanning the representable domain.
func NewFloat(v float64) (*Packet, error) { return New(TypeDRange, DRangeValue(v)) }

// NewString creates a string packet.
func NewString(v string) (*Packet, error) { return New(TypeString, v) }

// NewBlob creates a blob packet holding a new reference to b.
func NewBlob(b *blob.Blob) (*Packet, error) { return New(TypeBlob, b) }

// NewRGB creates an rgb packet.
func NewRGB(v RGB) (*Packet, error) { return New(TypeRGB, v) }

// NewDirectionVector creates a direction-vector packet.
func NewDirectionVector(v DirectionVector) (*Packet, error) {
	return New(TypeDirectionVector, v)
}

// NewLocation creates a location packet.
func NewLocation(v Location) (*Packet, error) { return New(TypeLocation, v) }

// NewTimestamp creates a timestamp packet.
func NewTimestamp(v time.Time) (*Packet, error) { return New(TypeTimestamp, v) }

// NewError creates an error packet.
func NewError(code int, msg string) (*Packet, error) {
	return New(TypeError, ErrorValue{Code: code, Msg: msg})
}

// NewJSONObject creates a json-object packet holding a new reference to b.
// The blob must contain a serialized JSON object.
func NewJSONObject(b *blob.Blob) (*Packet, error) { return New(TypeJSONObject, b) }

// NewJSONArray creates a json-array packet holding a new reference to b.
func NewJSONArray(b *blob.Blob) (*Packet, error) { return New(TypeJSONArray, b) }

// NewHTTPResponse creates an http-response packet.
func NewHTTPResponse(v HTTPResponse) (*Packet, error) { return New(TypeHTTPResponse, v) }

// Bool extracts the value of a boolean packet.
func (p *Packet) Bool() (bool, error) {
	if err := p.expect(TypeBoolean); err != nil {
		return false, err
	}
	return p.data.(bool), nil
}

// Byte extracts the value of a byte packet.
func (p *Packet) Byte() (byte, error) {
	if err := p.expect(TypeByte); err != nil {
		return 0, err
	}
	return p.data.(byte), nil
}

// IRange extracts the full range of an int packet.
func (p *Packet) IRange() (IRange, error) {
	if err := p.expect(TypeIRange); err != nil {
		return IRange{}, err
	}
	return p.data.(IRange), nil
}

// Int extracts just the value of an int packet.
func (p *Packet) Int() (int32, error) {
	r, err := p.IRange()
	return r.Val, err
}

// DRange extracts the full range of a float packet.
func (p *Packet) DRange() (DRange, error) {
	if err := p.expect(TypeDRange); err != nil {
		return DRange{}, err
	}
	return p.data.(DRange), nil
}

// Float extracts just the value of a float packet.
func (p *Packet) Float() (float64, error) {
	r, err := p.DRange()
	return r.Val, err
}

// String extracts the value of a string packet.
func (p *Packet) String() (string, error) {
	if err := p.expect(TypeString); err != nil {
		return "", err
	}
	return p.data.(string), nil
}

// Blob extracts the blob of a blob packet. The reference stays owned by the
// packet.
func (p *Packet) Blob() (*blob.Blob, error) {
	if err := p.expect(TypeBlob); err != nil {
		return nil, err
	}
	return p.data.(*blob.Blob), nil
}

// RGB extracts the value of an rgb packet.
func (p *Packet) RGB() (RGB, error) {
	if err := p.expect(TypeRGB); err != nil {
		return RGB{}, err
	}
	return p.data.(RGB), nil
}

// DirectionVector extracts the value of a direction-vector packet.
func (p *Packet) DirectionVector() (DirectionVector, error) {
	if err := p.expect(TypeDirectionVector); err != nil {
		return DirectionVector{}, err
	}
	return p.data.(DirectionVector), nil
}

// Location extracts the value of a location packet.
func (p *Packet) Location() (Location, error) {
	if err := p.expect(TypeLocation); err != nil {
		return Location{}, err
	}
	return p.data.(Location), nil
}

// Timestamp extracts the value of a timestamp packet.
func (p *Packet) Timestamp() (time.Time, error) {
	if err := p.expect(TypeTimestamp); err != nil {
		return time.Time{}, err
	}
	return p.data.(time.Time), nil
}

// Error extracts the value of an error packet.
func (p *Packet) Error() (ErrorValue, error) {
	if err := p.expect(TypeError); err != nil {
		return ErrorValue{}, err
	}
	return p.data.(ErrorValue), nil
}

// JSONObject extracts the blob of a json-object packet.
func (p *Packet) JSONObject() (*blob.Blob, error) {
	if err := p.expect(TypeJSONObject); err != nil {
		return nil, err
	}
	return p.data.(*blob.Blob), nil
}

// JSONArray extracts the blob of a json-array packet.
func (p *Packet) JSONArray() (*blob.Blob, error) {
	if err := p.expect(TypeJSONArray); err != nil {
		return nil, err
	}
	return p.data.(*blob.Blob), nil
}

// HTTPResponse extracts the value of an http-response packet. The content
// blob reference stays owned by the packet.
func (p *Packet) HTTPResponse() (HTTPResponse, error) {
	if err := p.expect(TypeHTTPResponse); err != nil {
		return HTTPResponse{}, err
	}
	return p.data.(HTTPResponse), nil
}

type namedType struct {
	typ    *Type
	symbol string
}

// namedTypes maps textual type names to types and to the Go symbols emitted
// by metatype code generation. The wildcard and empty types are resolvable
// here because metatype bodies may name them for ports.
var namedTypes = map[string]namedType{
	"int":              {TypeIRange, "packet.TypeIRange"},
	"float":            {TypeDRange, "packet.TypeDRange"},
	"string":           {TypeString, "packet.TypeString"},
	"boolean":          {TypeBoolean, "packet.TypeBoolean"},
	"byte":             {TypeByte, "packet.TypeByte"},
	"blob":             {TypeBlob, "packet.TypeBlob"},
	"rgb":              {TypeRGB, "packet.TypeRGB"},
	"location":         {TypeLocation, "packet.TypeLocation"},
	"timestamp":        {TypeTimestamp, "packet.TypeTimestamp"},
	"direction-vector": {TypeDirectionVector, "packet.TypeDirectionVector"},
	"error":            {TypeError, "packet.TypeError"},
	"json-object":      {TypeJSONObject, "packet.TypeJSONObject"},
	"json-array":       {TypeJSONArray, "packet.TypeJSONArray"},
	"http-response":    {TypeHTTPResponse, "packet.TypeHTTPResponse"},
	"empty":            {TypeEmpty, "packet.TypeEmpty"},
	"any":              {TypeAny, "packet.TypeAny"},
}

// TypeByName resolves a textual type name, as used in metatype bodies.
func TypeByName(name string) (*Type, error) {
	nt, ok := namedTypes[name]
	if !ok {
		return nil, fmt.Errorf("unknown packet type %q: %w", name, flowerr.ErrNotFound)
	}
	return nt.typ, nil
}

// SymbolByName resolves a textual type name to the Go expression naming its
// type, as emitted by metatype code generation.
func SymbolByName(name string) (string, error) {
	nt, ok := namedTypes[name]
	if !ok {
		return "", fmt.Errorf("unknown packet type %q: %w", name, flowerr.ErrNotFound)
	}
	return nt.symbol, nil
}
