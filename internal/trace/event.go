package trace

import (
	"github.com/google/uuid"
)

// Magic opens every uncompressed trace file ("ATAP", little-endian).
const Magic uint32 = 0x50415441

// Version is the current format version. Decoders reject anything else.
const Version uint32 = 1

// Header is the fixed preamble of a trace file.
type Header struct {
	Version uint32
	Session uuid.UUID
}

// Value is a sealed union of the wire field types. Only the types in
// this file implement it.
type Value interface {
	traceValue()
}

// U32 is an unsigned 32-bit field (handles, counts, flags).
type U32 uint32

// U64 is an unsigned 64-bit field (logical device/context identities).
type U64 uint64

// I32 is a signed 32-bit field (enums, error codes, sample counts).
type I32 int32

// F32 is a single-precision float field.
type F32 float32

// F64 is a double-precision float field.
type F64 float64

// Str is a string field with an explicit absent state. An absent string
// is not the same as an empty one.
type Str struct {
	Val     string
	Present bool
}

// Blob is a byte-slice field. A nil Blob is absent; an empty non-nil
// Blob has length zero.
type Blob []byte

// Vec3 is a three-component float vector, carried as one field.
type Vec3 [3]float32

// U32Vec is a counted vector of unsigned 32-bit values.
type U32Vec []uint32

// I32Vec is a counted vector of signed 32-bit values.
type I32Vec []int32

// F32Vec is a counted vector of single-precision floats.
type F32Vec []float32

func (U32) traceValue()    {}
func (U64) traceValue()    {}
func (I32) traceValue()    {}
func (F32) traceValue()    {}
func (F64) traceValue()    {}
func (Str) traceValue()    {}
func (Blob) traceValue()   {}
func (Vec3) traceValue()   {}
func (U32Vec) traceValue() {}
func (I32Vec) traceValue() {}
func (F32Vec) traceValue() {}

// SomeStr returns a present Str.
func SomeStr(s string) Str { return Str{Val: s, Present: true} }

// NoStr returns an absent Str.
func NoStr() Str { return Str{} }

// kindOf maps a Value back to its FieldKind.
func kindOf(v Value) FieldKind {
	switch v.(type) {
	case U32:
		return FieldU32
	case U64:
		return FieldU64
	case I32:
		return FieldI32
	case F32:
		return FieldF32
	case F64:
		return FieldF64
	case Str:
		return FieldStr
	case Blob:
		return FieldBlob
	case Vec3:
		return FieldVec3
	case U32Vec:
		return FieldU32Vec
	case I32Vec:
		return FieldI32Vec
	case F32Vec:
		return FieldF32Vec
	default:
		return 0
	}
}

// Frame is one call-stack entry: the raw address, and the symbol the
// decoder resolved for it from earlier Symbol events, if any.
type Frame struct {
	Addr   uint64
	Symbol string
}

// Event is one decoded trace record.
//
// Args and Results follow the kind's descriptor order. StateChange
// events instead populate the State* fields. Stack is nil when the
// record carried no call stack (which is different from an empty one:
// capture may be configured not to record stacks at all).
type Event struct {
	Index  int // position in the stream, first event is 0
	TimeMs uint32
	Kind   Kind
	Thread uint32
	Stack  []Frame

	Args    []Value
	Results []Value

	// StateChange payload.
	StateClass Class
	StateID    uint64
	StateField uint32
	StateValue Value
}

// Arg returns the i'th argument, or nil when out of range.
func (e *Event) Arg(i int) Value {
	if i < 0 || i >= len(e.Args) {
		return nil
	}
	return e.Args[i]
}

// Result returns the i'th result, or nil when out of range.
func (e *Event) Result(i int) Value {
	if i < 0 || i >= len(e.Results) {
		return nil
	}
	return e.Results[i]
}
