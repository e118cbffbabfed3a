// Package audio defines the traced audio API surface.
//
// The surface mirrors a classic 3D audio API: devices own contexts,
// contexts own a listener and sources, buffers hold sample data and are
// shared across the contexts of one device. Calls do not return errors;
// failures latch on the owning device or context and are read back with
// DeviceError/ContextError (first unread error wins, reading clears it).
//
// Driver is implemented three times in this module: by the in-memory Soft
// driver, by capture.Session (which wraps another Driver and records every
// call), and by whatever real backend a replay is pointed at.
package audio

// Device is a handle to an open output device.
type Device uint64

// Context is a handle to a rendering context on a device.
type Context uint64

// Source is a handle to a playable sound source. Source and buffer
// names travel through the API's 32-bit integer property channel
// (GetSourcei on ParamBuffer reports the attachment as an int32), so
// drivers must issue names that fit in 32 bits. The invalid sentinel is
// the only exception.
type Source uint64

// Buffer is a handle to a block of sample data. Subject to the same
// 32-bit name constraint as Source.
type Buffer uint64

// Invalid handle sentinels. These are reserved values no driver ever
// issues; passing one into a Driver latches ErrInvalidName, the same
// failure a stale or foreign handle would produce.
const (
	InvalidDevice  Device  = ^Device(0)
	InvalidContext Context = ^Context(0)
	InvalidSource  Source  = ^Source(0)
	InvalidBuffer  Buffer  = ^Buffer(0)
)

// Driver is the full call surface of the traced API.
//
// Source, buffer, and listener operations act on the current context;
// with no context current they latch ErrInvalidOperation on nothing and
// are otherwise no-ops, matching the underlying API's behavior.
type Driver interface {
	// Device management. OpenDevice returns 0 when the named device is
	// unavailable; name "" selects the default device. CloseDevice
	// returns false (and latches) when contexts are still alive on it.
	OpenDevice(name string) Device
	CloseDevice(d Device) bool
	DeviceError(d Device) ErrorCode

	// Context management. CreateContext returns 0 on failure. attrs is
	// a flat key/value list (may be nil). MakeContextCurrent with 0
	// unbinds the current context.
	CreateContext(d Device, attrs []int32) Context
	MakeContextCurrent(c Context) bool
	DestroyContext(c Context)
	CurrentContext() Context
	ContextError(c Context) ErrorCode

	// Context-global state.
	SetDistanceModel(m DistanceModel)
	DistanceModel() DistanceModel
	SetDopplerFactor(f float32)
	DopplerFactor() float32
	SetDopplerVelocity(v float32)
	DopplerVelocity() float32
	SetSpeedOfSound(v float32)
	SpeedOfSound() float32

	// Listener state on the current context.
	SetListenerf(p Param, v float32)
	SetListener3f(p Param, x, y, z float32)
	SetListenerfv(p Param, v []float32)
	GetListenerf(p Param) float32
	GetListener3f(p Param) (x, y, z float32)
	GetListenerfv(p Param) []float32

	// Sources.
	GenSources(n int) []Source
	DeleteSources(srcs []Source)
	SourcePlay(s Source)
	SourceStop(s Source)
	SourcePause(s Source)
	SourceRewind(s Source)
	SetSourcef(s Source, p Param, v float32)
	SetSource3f(s Source, p Param, x, y, z float32)
	SetSourcei(s Source, p Param, v int32)
	GetSourcef(s Source, p Param) float32
	GetSource3f(s Source, p Param) (x, y, z float32)
	GetSourcei(s Source, p Param) int32
	SourceQueueBuffers(s Source, bufs []Buffer)
	SourceUnqueueBuffers(s Source, n int) []Buffer

	// Buffers.
	GenBuffers(n int) []Buffer
	DeleteBuffers(bufs []Buffer)
	BufferData(b Buffer, format Format, data []byte, freq int32)
	GetBufferi(b Buffer, p Param) int32
}
