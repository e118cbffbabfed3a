// Package shadow caches the last known value of every tracked object
// field and diffs it against the live driver after calls that may have
// changed state implicitly. A playing source drifting to STOPPED, a
// processed-count ticking up, a real implementation whose defaults
// differ from the documented ones: all surface here as synthetic
// state-change events.
package shadow

import "github.com/audiotap/audiotap/internal/audio"

// Context-level field tags. Source, buffer, and listener fields reuse
// the audio.Param value as their tag; these four have no Param, so they
// get tags from a reserved range.
const (
	FieldDistanceModel   uint32 = 0xC001
	FieldDopplerFactor   uint32 = 0xC002
	FieldDopplerVelocity uint32 = 0xC003
	FieldSpeedOfSound    uint32 = 0xC004
)

// FieldName returns a readable name for a state-change field tag.
func FieldName(tag uint32) string {
	switch tag {
	case FieldDistanceModel:
		return "DISTANCE_MODEL"
	case FieldDopplerFactor:
		return "DOPPLER_FACTOR"
	case FieldDopplerVelocity:
		return "DOPPLER_VELOCITY"
	case FieldSpeedOfSound:
		return "SPEED_OF_SOUND"
	default:
		return audio.Param(tag).String()
	}
}

// ContextState shadows one context's global and listener fields.
type ContextState struct {
	real audio.Context

	model           int32
	dopplerFactor   float32
	dopplerVelocity float32
	speedOfSound    float32

	listenerGain        float32
	listenerPosition    [3]float32
	listenerVelocity    [3]float32
	listenerOrientation [6]float32
}

// newContextState seeds a shadow with the documented context defaults.
// The first diff pass then reports any field where the real
// implementation disagrees.
func newContextState(real audio.Context) *ContextState {
	return &ContextState{
		real:                real,
		model:               int32(audio.InverseDistanceClamped),
		dopplerFactor:       1,
		dopplerVelocity:     1,
		speedOfSound:        343.3,
		listenerGain:        1,
		listenerOrientation: [6]float32{0, 0, -1, 0, 1, 0},
	}
}

// SourceState shadows one source.
type SourceState struct {
	real audio.Source
	ctx  uint64 // owning context's logical identity

	state     int32
	typ       int32
	buffer    int32 // attached buffer as a virtual id, 0 when none
	queued    int32
	processed int32

	relative int32
	looping  int32

	pitch         float32
	gain          float32
	minGain       float32
	maxGain       float32
	refDist       float32
	maxDist       float32
	rolloff       float32
	coneInner     float32
	coneOuter     float32
	coneOuterGain float32

	secOffset    float32
	sampleOffset int32
	byteOffset   int32

	position  [3]float32
	velocity  [3]float32
	direction [3]float32
}

// newSourceState seeds a shadow with the documented source defaults.
func newSourceState(real audio.Source, ctx uint64) *SourceState {
	return &SourceState{
		real:      real,
		ctx:       ctx,
		state:     int32(audio.Initial),
		typ:       int32(audio.Undetermined),
		pitch:     1,
		gain:      1,
		maxGain:   1,
		refDist:   1,
		maxDist:   3.4028235e38,
		rolloff:   1,
		coneInner: 360,
		coneOuter: 360,
	}
}

// BufferState shadows one buffer's format fields.
type BufferState struct {
	real audio.Buffer
	ctx  uint64

	frequency int32
	size      int32
	bits      int32
	channels  int32
}

// newBufferState seeds a shadow with the documented buffer defaults
// (an empty 16-bit mono buffer).
func newBufferState(real audio.Buffer, ctx uint64) *BufferState {
	return &BufferState{
		real:     real,
		ctx:      ctx,
		bits:     16,
		channels: 1,
	}
}
