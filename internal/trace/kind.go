// Package trace defines the trace file format: event kinds, the per-kind
// field descriptors, and the Writer and Decoder that are the only two
// pieces of code allowed to touch the wire layout.
//
// A trace is a header followed by a strictly ordered event stream and a
// terminal end-of-stream event. Every record starts with the same four
// fields (timestamp, kind, thread, optional call stack) and continues
// with the kind's declared fields in declared order. The declaration
// lives in the descriptor table below; encode and decode are one generic
// routine each, driven by that table, so the two sides cannot drift.
package trace

import "fmt"

// Kind tags one event record. Values are part of the format and never
// reassigned.
type Kind uint32

const (
	// Call events, one per driver operation.
	KindOpenDevice           Kind = 1
	KindCloseDevice          Kind = 2
	KindDeviceError          Kind = 3
	KindCreateContext        Kind = 4
	KindMakeContextCurrent   Kind = 5
	KindDestroyContext       Kind = 6
	KindCurrentContext       Kind = 7
	KindContextError         Kind = 8
	KindSetDistanceModel     Kind = 9
	KindGetDistanceModel     Kind = 10
	KindSetDopplerFactor     Kind = 11
	KindGetDopplerFactor     Kind = 12
	KindSetDopplerVelocity   Kind = 13
	KindGetDopplerVelocity   Kind = 14
	KindSetSpeedOfSound      Kind = 15
	KindGetSpeedOfSound      Kind = 16
	KindSetListenerf         Kind = 17
	KindSetListener3f        Kind = 18
	KindSetListenerfv        Kind = 19
	KindGetListenerf         Kind = 20
	KindGetListener3f        Kind = 21
	KindGetListenerfv        Kind = 22
	KindGenSources           Kind = 23
	KindDeleteSources        Kind = 24
	KindSourcePlay           Kind = 25
	KindSourceStop           Kind = 26
	KindSourcePause          Kind = 27
	KindSourceRewind         Kind = 28
	KindSetSourcef           Kind = 29
	KindSetSource3f          Kind = 30
	KindSetSourcei           Kind = 31
	KindGetSourcef           Kind = 32
	KindGetSource3f          Kind = 33
	KindGetSourcei           Kind = 34
	KindSourceQueueBuffers   Kind = 35
	KindSourceUnqueueBuffers Kind = 36
	KindGenBuffers           Kind = 37
	KindDeleteBuffers        Kind = 38
	KindBufferData           Kind = 39
	KindGetBufferi           Kind = 40

	// Synthetic events emitted by the capture layer.
	KindSymbol      Kind = 64 // first sighting of a call-stack address
	KindStateChange Kind = 65 // implicit state change found by the diff pass
	KindErrorRaised Kind = 66 // error latched on a device or context

	// Application annotations.
	KindScopePush Kind = 80
	KindScopePop  Kind = 81
	KindMessage   Kind = 82
	KindLabel     Kind = 83

	// Terminator. Carries no payload; its timestamp is the final one.
	KindEos Kind = 255
)

// Class identifies the object category an event refers to.
type Class uint32

const (
	ClassDevice  Class = 1
	ClassContext Class = 2
	ClassSource  Class = 3
	ClassBuffer  Class = 4
)

func (c Class) String() string {
	switch c {
	case ClassDevice:
		return "device"
	case ClassContext:
		return "context"
	case ClassSource:
		return "source"
	case ClassBuffer:
		return "buffer"
	default:
		return "unknown"
	}
}

// FieldKind is the wire type of one declared field. Values are part of
// the format: StateChange records carry them explicitly.
type FieldKind uint32

const (
	FieldU32    FieldKind = 1
	FieldU64    FieldKind = 2
	FieldI32    FieldKind = 3
	FieldF32    FieldKind = 4
	FieldF64    FieldKind = 5
	FieldStr    FieldKind = 6
	FieldBlob   FieldKind = 7
	FieldVec3   FieldKind = 8
	FieldU32Vec FieldKind = 9
	FieldI32Vec FieldKind = 10
	FieldF32Vec FieldKind = 11
)

// Desc declares the wire layout of one event kind: argument fields in
// order, then result fields in order.
type Desc struct {
	Kind    Kind
	Name    string
	Args    []FieldKind
	Results []FieldKind
}

// descriptors is the single source of truth for per-kind layout.
var descriptors = map[Kind]Desc{
	KindOpenDevice:           {KindOpenDevice, "OpenDevice", fk(FieldStr), fk(FieldU64)},
	KindCloseDevice:          {KindCloseDevice, "CloseDevice", fk(FieldU64), fk(FieldU32)},
	KindDeviceError:          {KindDeviceError, "DeviceError", fk(FieldU64), fk(FieldI32)},
	KindCreateContext:        {KindCreateContext, "CreateContext", fk(FieldU64, FieldI32Vec), fk(FieldU64)},
	KindMakeContextCurrent:   {KindMakeContextCurrent, "MakeContextCurrent", fk(FieldU64), fk(FieldU32)},
	KindDestroyContext:       {KindDestroyContext, "DestroyContext", fk(FieldU64), nil},
	KindCurrentContext:       {KindCurrentContext, "CurrentContext", nil, fk(FieldU64)},
	KindContextError:         {KindContextError, "ContextError", fk(FieldU64), fk(FieldI32)},
	KindSetDistanceModel:     {KindSetDistanceModel, "SetDistanceModel", fk(FieldI32), nil},
	KindGetDistanceModel:     {KindGetDistanceModel, "GetDistanceModel", nil, fk(FieldI32)},
	KindSetDopplerFactor:     {KindSetDopplerFactor, "SetDopplerFactor", fk(FieldF32), nil},
	KindGetDopplerFactor:     {KindGetDopplerFactor, "GetDopplerFactor", nil, fk(FieldF32)},
	KindSetDopplerVelocity:   {KindSetDopplerVelocity, "SetDopplerVelocity", fk(FieldF32), nil},
	KindGetDopplerVelocity:   {KindGetDopplerVelocity, "GetDopplerVelocity", nil, fk(FieldF32)},
	KindSetSpeedOfSound:      {KindSetSpeedOfSound, "SetSpeedOfSound", fk(FieldF32), nil},
	KindGetSpeedOfSound:      {KindGetSpeedOfSound, "GetSpeedOfSound", nil, fk(FieldF32)},
	KindSetListenerf:         {KindSetListenerf, "SetListenerf", fk(FieldI32, FieldF32), nil},
	KindSetListener3f:        {KindSetListener3f, "SetListener3f", fk(FieldI32, FieldVec3), nil},
	KindSetListenerfv:        {KindSetListenerfv, "SetListenerfv", fk(FieldI32, FieldF32Vec), nil},
	KindGetListenerf:         {KindGetListenerf, "GetListenerf", fk(FieldI32), fk(FieldF32)},
	KindGetListener3f:        {KindGetListener3f, "GetListener3f", fk(FieldI32), fk(FieldVec3)},
	KindGetListenerfv:        {KindGetListenerfv, "GetListenerfv", fk(FieldI32), fk(FieldF32Vec)},
	KindGenSources:           {KindGenSources, "GenSources", fk(FieldI32), fk(FieldU32Vec)},
	KindDeleteSources:        {KindDeleteSources, "DeleteSources", fk(FieldU32Vec), nil},
	KindSourcePlay:           {KindSourcePlay, "SourcePlay", fk(FieldU32), nil},
	KindSourceStop:           {KindSourceStop, "SourceStop", fk(FieldU32), nil},
	KindSourcePause:          {KindSourcePause, "SourcePause", fk(FieldU32), nil},
	KindSourceRewind:         {KindSourceRewind, "SourceRewind", fk(FieldU32), nil},
	KindSetSourcef:           {KindSetSourcef, "SetSourcef", fk(FieldU32, FieldI32, FieldF32), nil},
	KindSetSource3f:          {KindSetSource3f, "SetSource3f", fk(FieldU32, FieldI32, FieldVec3), nil},
	KindSetSourcei:           {KindSetSourcei, "SetSourcei", fk(FieldU32, FieldI32, FieldI32), nil},
	KindGetSourcef:           {KindGetSourcef, "GetSourcef", fk(FieldU32, FieldI32), fk(FieldF32)},
	KindGetSource3f:          {KindGetSource3f, "GetSource3f", fk(FieldU32, FieldI32), fk(FieldVec3)},
	KindGetSourcei:           {KindGetSourcei, "GetSourcei", fk(FieldU32, FieldI32), fk(FieldI32)},
	KindSourceQueueBuffers:   {KindSourceQueueBuffers, "SourceQueueBuffers", fk(FieldU32, FieldU32Vec), nil},
	KindSourceUnqueueBuffers: {KindSourceUnqueueBuffers, "SourceUnqueueBuffers", fk(FieldU32, FieldI32), fk(FieldU32Vec)},
	KindGenBuffers:           {KindGenBuffers, "GenBuffers", fk(FieldI32), fk(FieldU32Vec)},
	KindDeleteBuffers:        {KindDeleteBuffers, "DeleteBuffers", fk(FieldU32Vec), nil},
	KindBufferData:           {KindBufferData, "BufferData", fk(FieldU32, FieldI32, FieldBlob, FieldI32), nil},
	KindGetBufferi:           {KindGetBufferi, "GetBufferi", fk(FieldU32, FieldI32), fk(FieldI32)},

	KindSymbol:      {KindSymbol, "Symbol", fk(FieldU64, FieldStr), nil},
	KindErrorRaised: {KindErrorRaised, "ErrorRaised", fk(FieldU32, FieldU64, FieldI32), nil},

	KindScopePush: {KindScopePush, "ScopePush", fk(FieldStr), nil},
	KindScopePop:  {KindScopePop, "ScopePop", nil, nil},
	KindMessage:   {KindMessage, "Message", fk(FieldStr), nil},
	KindLabel:     {KindLabel, "Label", fk(FieldU32, FieldU64, FieldStr), nil},

	// StateChange is self-describing (value kind on the wire) and is
	// encoded and decoded by hand; no declared fields here.
	KindStateChange: {KindStateChange, "StateChange", nil, nil},

	KindEos: {KindEos, "Eos", nil, nil},
}

// fk builds a field-kind list; keeps the table above readable.
func fk(kinds ...FieldKind) []FieldKind { return kinds }

// Lookup returns the descriptor for a kind.
func Lookup(k Kind) (Desc, bool) {
	d, ok := descriptors[k]
	return d, ok
}

// Name returns the operation name for a kind, or "kind(N)" for an
// unknown tag.
func (k Kind) Name() string {
	if d, ok := descriptors[k]; ok {
		return d.Name
	}
	return fmt.Sprintf("kind(%d)", uint32(k))
}

func (k Kind) String() string { return k.Name() }

// IsCall reports whether k records an application call into the API
// (as opposed to a synthetic, annotation, or terminator event).
func (k Kind) IsCall() bool { return k >= KindOpenDevice && k <= KindGetBufferi }

// IsAnnotation reports whether k is an application annotation.
func (k Kind) IsAnnotation() bool { return k >= KindScopePush && k <= KindLabel }

