// Package flowerr defines the error kinds surfaced by the flow runtime.
//
// Every fallible runtime API returns an error wrapping exactly one of these
// sentinels, so callers can classify failures with errors.Is without
// depending on message text.
package flowerr

import "errors"

var (
	// ErrInvalidArgument reports caller-supplied values that fail
	// validation: nil required references, unknown type names, malformed
	// metatype bodies.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrOutOfMemory reports allocation failure or reference-count
	// saturation.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrNotFound reports a port index out of range or an unknown options
	// member name.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState reports an operation issued against a node in the
	// wrong lifecycle state, such as a send on a closed container.
	ErrInvalidState = errors.New("invalid state")

	// ErrOverflow reports a vector length that would exceed the 16-bit
	// index space.
	ErrOverflow = errors.New("overflow")

	// ErrIO surfaces from external I/O; the core never originates it.
	ErrIO = errors.New("i/o error")
)

// Numeric codes carried by error packets, one per sentinel.
const (
	CodeUnknown = iota + 1
	CodeInvalidArgument
	CodeOutOfMemory
	CodeNotFound
	CodeInvalidState
	CodeOverflow
	CodeIO
)

// Code maps an error to the numeric code carried by error packets. Errors
// not wrapping a sentinel map to CodeUnknown.
func Code(err error) int {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return CodeInvalidArgument
	case errors.Is(err, ErrOutOfMemory):
		return CodeOutOfMemory
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, ErrOverflow):
		return CodeOverflow
	case errors.Is(err, ErrIO):
		return CodeIO
	}
	return CodeUnknown
}
