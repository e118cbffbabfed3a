package shadow

import (
	"math"

	"github.com/audiotap/audiotap/internal/audio"
	"github.com/audiotap/audiotap/internal/trace"
)

// Emit receives one synthetic state-change event per changed field.
type Emit func(class trace.Class, id uint64, field uint32, v trace.Value)

// Tracker owns the shadow caches and runs diff passes against a live
// driver. Object identities are the trace's logical ones; the tracker
// keeps the real handle alongside for re-querying.
//
// Comparison is bit-for-bit: the goal is detecting any observed change,
// so no float tolerance is applied. Vector fields compare and emit as
// one group. Callers must only diff objects whose owning context is
// current; the tracker has no way to check that itself.
type Tracker struct {
	drv        audio.Driver
	emit       Emit
	bufVirtual func(audio.Buffer) (uint32, bool)

	ctxs map[uint64]*ContextState
	srcs map[uint32]*SourceState
	bufs map[uint32]*BufferState
}

// New returns a Tracker diffing against drv. bufVirtual translates a
// real buffer handle (as reported by the driver for a source's attached
// buffer) back to its virtual id; it may be nil when sources are never
// tracked.
func New(drv audio.Driver, emit Emit, bufVirtual func(audio.Buffer) (uint32, bool)) *Tracker {
	return &Tracker{
		drv:        drv,
		emit:       emit,
		bufVirtual: bufVirtual,
		ctxs:       make(map[uint64]*ContextState),
		srcs:       make(map[uint32]*SourceState),
		bufs:       make(map[uint32]*BufferState),
	}
}

// AddContext seeds a shadow for a new context with the documented
// defaults. The deviation check runs on the first DiffContext, once the
// context is actually current.
func (t *Tracker) AddContext(id uint64, real audio.Context) {
	t.ctxs[id] = newContextState(real)
}

// RemoveContext drops a context's shadow and the shadows of every
// source that belonged to it.
func (t *Tracker) RemoveContext(id uint64) {
	delete(t.ctxs, id)
	for vid, s := range t.srcs {
		if s.ctx == id {
			delete(t.srcs, vid)
		}
	}
}

// AddSource seeds a shadow for a new source and immediately diffs it,
// catching any gap between documented and actual defaults.
func (t *Tracker) AddSource(vid uint32, real audio.Source, ctx uint64) {
	t.srcs[vid] = newSourceState(real, ctx)
	t.DiffSource(vid)
}

// RemoveSource drops a source's shadow.
func (t *Tracker) RemoveSource(vid uint32) {
	delete(t.srcs, vid)
}

// AddBuffer seeds a shadow for a new buffer and immediately diffs it.
func (t *Tracker) AddBuffer(vid uint32, real audio.Buffer, ctx uint64) {
	t.bufs[vid] = newBufferState(real, ctx)
	t.DiffBuffer(vid)
}

// RemoveBuffer drops a buffer's shadow.
func (t *Tracker) RemoveBuffer(vid uint32) {
	delete(t.bufs, vid)
}

// DiffContext re-queries every tracked context-global and listener
// field of the context and emits one event per difference.
func (t *Tracker) DiffContext(id uint64) {
	c, ok := t.ctxs[id]
	if !ok {
		return
	}
	t.i32(trace.ClassContext, id, FieldDistanceModel, &c.model, int32(t.drv.DistanceModel()))
	t.f32(trace.ClassContext, id, FieldDopplerFactor, &c.dopplerFactor, t.drv.DopplerFactor())
	t.f32(trace.ClassContext, id, FieldDopplerVelocity, &c.dopplerVelocity, t.drv.DopplerVelocity())
	t.f32(trace.ClassContext, id, FieldSpeedOfSound, &c.speedOfSound, t.drv.SpeedOfSound())

	t.f32(trace.ClassContext, id, uint32(audio.ParamGain), &c.listenerGain, t.drv.GetListenerf(audio.ParamGain))
	var v [3]float32
	v[0], v[1], v[2] = t.drv.GetListener3f(audio.ParamPosition)
	t.vec3(trace.ClassContext, id, uint32(audio.ParamPosition), &c.listenerPosition, v)
	v[0], v[1], v[2] = t.drv.GetListener3f(audio.ParamVelocity)
	t.vec3(trace.ClassContext, id, uint32(audio.ParamVelocity), &c.listenerVelocity, v)

	if o := t.drv.GetListenerfv(audio.ParamOrientation); len(o) == 6 {
		var fresh [6]float32
		copy(fresh[:], o)
		t.f32x6(trace.ClassContext, id, uint32(audio.ParamOrientation), &c.listenerOrientation, fresh)
	}
}

// DiffSource re-queries every tracked field of one source.
func (t *Tracker) DiffSource(vid uint32) {
	s, ok := t.srcs[vid]
	if !ok {
		return
	}
	id := uint64(vid)
	drv := t.drv

	t.i32(trace.ClassSource, id, uint32(audio.ParamSourceState), &s.state, drv.GetSourcei(s.real, audio.ParamSourceState))
	t.i32(trace.ClassSource, id, uint32(audio.ParamSourceType), &s.typ, drv.GetSourcei(s.real, audio.ParamSourceType))
	t.i32(trace.ClassSource, id, uint32(audio.ParamBuffer), &s.buffer, t.attachedBuffer(s.real))
	t.i32(trace.ClassSource, id, uint32(audio.ParamBuffersQueued), &s.queued, drv.GetSourcei(s.real, audio.ParamBuffersQueued))
	t.i32(trace.ClassSource, id, uint32(audio.ParamBuffersProcessed), &s.processed, drv.GetSourcei(s.real, audio.ParamBuffersProcessed))
	t.i32(trace.ClassSource, id, uint32(audio.ParamSourceRelative), &s.relative, drv.GetSourcei(s.real, audio.ParamSourceRelative))
	t.i32(trace.ClassSource, id, uint32(audio.ParamLooping), &s.looping, drv.GetSourcei(s.real, audio.ParamLooping))

	t.f32(trace.ClassSource, id, uint32(audio.ParamPitch), &s.pitch, drv.GetSourcef(s.real, audio.ParamPitch))
	t.f32(trace.ClassSource, id, uint32(audio.ParamGain), &s.gain, drv.GetSourcef(s.real, audio.ParamGain))
	t.f32(trace.ClassSource, id, uint32(audio.ParamMinGain), &s.minGain, drv.GetSourcef(s.real, audio.ParamMinGain))
	t.f32(trace.ClassSource, id, uint32(audio.ParamMaxGain), &s.maxGain, drv.GetSourcef(s.real, audio.ParamMaxGain))
	t.f32(trace.ClassSource, id, uint32(audio.ParamReferenceDistance), &s.refDist, drv.GetSourcef(s.real, audio.ParamReferenceDistance))
	t.f32(trace.ClassSource, id, uint32(audio.ParamMaxDistance), &s.maxDist, drv.GetSourcef(s.real, audio.ParamMaxDistance))
	t.f32(trace.ClassSource, id, uint32(audio.ParamRolloffFactor), &s.rolloff, drv.GetSourcef(s.real, audio.ParamRolloffFactor))
	t.f32(trace.ClassSource, id, uint32(audio.ParamConeInnerAngle), &s.coneInner, drv.GetSourcef(s.real, audio.ParamConeInnerAngle))
	t.f32(trace.ClassSource, id, uint32(audio.ParamConeOuterAngle), &s.coneOuter, drv.GetSourcef(s.real, audio.ParamConeOuterAngle))
	t.f32(trace.ClassSource, id, uint32(audio.ParamConeOuterGain), &s.coneOuterGain, drv.GetSourcef(s.real, audio.ParamConeOuterGain))

	t.f32(trace.ClassSource, id, uint32(audio.ParamSecOffset), &s.secOffset, drv.GetSourcef(s.real, audio.ParamSecOffset))
	t.i32(trace.ClassSource, id, uint32(audio.ParamSampleOffset), &s.sampleOffset, drv.GetSourcei(s.real, audio.ParamSampleOffset))
	t.i32(trace.ClassSource, id, uint32(audio.ParamByteOffset), &s.byteOffset, drv.GetSourcei(s.real, audio.ParamByteOffset))

	var v [3]float32
	v[0], v[1], v[2] = drv.GetSource3f(s.real, audio.ParamPosition)
	t.vec3(trace.ClassSource, id, uint32(audio.ParamPosition), &s.position, v)
	v[0], v[1], v[2] = drv.GetSource3f(s.real, audio.ParamVelocity)
	t.vec3(trace.ClassSource, id, uint32(audio.ParamVelocity), &s.velocity, v)
	v[0], v[1], v[2] = drv.GetSource3f(s.real, audio.ParamDirection)
	t.vec3(trace.ClassSource, id, uint32(audio.ParamDirection), &s.direction, v)
}

// DiffBuffer re-queries one buffer's format fields.
func (t *Tracker) DiffBuffer(vid uint32) {
	b, ok := t.bufs[vid]
	if !ok {
		return
	}
	id := uint64(vid)
	t.i32(trace.ClassBuffer, id, uint32(audio.ParamFrequency), &b.frequency, t.drv.GetBufferi(b.real, audio.ParamFrequency))
	t.i32(trace.ClassBuffer, id, uint32(audio.ParamSize), &b.size, t.drv.GetBufferi(b.real, audio.ParamSize))
	t.i32(trace.ClassBuffer, id, uint32(audio.ParamBits), &b.bits, t.drv.GetBufferi(b.real, audio.ParamBits))
	t.i32(trace.ClassBuffer, id, uint32(audio.ParamChannels), &b.channels, t.drv.GetBufferi(b.real, audio.ParamChannels))
}

// DiffSourcesOf diffs every tracked source owned by the given context.
// Used after calls that can move many sources at once.
func (t *Tracker) DiffSourcesOf(ctx uint64) {
	for vid, s := range t.srcs {
		if s.ctx == ctx {
			t.DiffSource(vid)
		}
	}
}

// attachedBuffer reads a source's attached buffer and translates it to
// a virtual id. An unknown real handle maps to 0; a stale attachment
// after the buffer's deletion fails closed rather than dangling. The
// int32 read is lossless: buffer names fit 32 bits per the Driver
// contract.
func (t *Tracker) attachedBuffer(real audio.Source) int32 {
	raw := t.drv.GetSourcei(real, audio.ParamBuffer)
	if raw == 0 || t.bufVirtual == nil {
		return 0
	}
	vid, ok := t.bufVirtual(audio.Buffer(uint32(raw)))
	if !ok {
		return 0
	}
	return int32(vid)
}

func (t *Tracker) i32(class trace.Class, id uint64, tag uint32, cached *int32, fresh int32) {
	if *cached == fresh {
		return
	}
	*cached = fresh
	t.emit(class, id, tag, trace.I32(fresh))
}

func (t *Tracker) f32(class trace.Class, id uint64, tag uint32, cached *float32, fresh float32) {
	if math.Float32bits(*cached) == math.Float32bits(fresh) {
		return
	}
	*cached = fresh
	t.emit(class, id, tag, trace.F32(fresh))
}

func (t *Tracker) vec3(class trace.Class, id uint64, tag uint32, cached *[3]float32, fresh [3]float32) {
	same := true
	for i := range fresh {
		if math.Float32bits(cached[i]) != math.Float32bits(fresh[i]) {
			same = false
			break
		}
	}
	if same {
		return
	}
	*cached = fresh
	t.emit(class, id, tag, trace.Vec3(fresh))
}

func (t *Tracker) f32x6(class trace.Class, id uint64, tag uint32, cached *[6]float32, fresh [6]float32) {
	same := true
	for i := range fresh {
		if math.Float32bits(cached[i]) != math.Float32bits(fresh[i]) {
			same = false
			break
		}
	}
	if same {
		return
	}
	*cached = fresh
	t.emit(class, id, tag, trace.F32Vec(fresh[:]))
}
