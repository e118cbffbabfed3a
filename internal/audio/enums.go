package audio

// ErrorCode is a latched API error. Zero means no error.
type ErrorCode int32

const (
	ErrNone             ErrorCode = 0
	ErrInvalidName      ErrorCode = 0xA001 // bad handle
	ErrInvalidEnum      ErrorCode = 0xA002
	ErrInvalidValue     ErrorCode = 0xA003
	ErrInvalidOperation ErrorCode = 0xA004
	ErrOutOfMemory      ErrorCode = 0xA005
)

// String returns the conventional constant name for the code.
func (e ErrorCode) String() string {
	switch e {
	case ErrNone:
		return "NO_ERROR"
	case ErrInvalidName:
		return "INVALID_NAME"
	case ErrInvalidEnum:
		return "INVALID_ENUM"
	case ErrInvalidValue:
		return "INVALID_VALUE"
	case ErrInvalidOperation:
		return "INVALID_OPERATION"
	case ErrOutOfMemory:
		return "OUT_OF_MEMORY"
	default:
		return "UNKNOWN_ERROR"
	}
}

// SourceState is the playback state of a source, queried via StateParam.
type SourceState int32

const (
	Initial SourceState = 0x1011
	Playing SourceState = 0x1012
	Paused  SourceState = 0x1013
	Stopped SourceState = 0x1014
)

func (s SourceState) String() string {
	switch s {
	case Initial:
		return "INITIAL"
	case Playing:
		return "PLAYING"
	case Paused:
		return "PAUSED"
	case Stopped:
		return "STOPPED"
	default:
		return "UNKNOWN_STATE"
	}
}

// SourceType distinguishes static (single attached buffer) from
// streaming (queued buffers) sources.
type SourceType int32

const (
	Undetermined SourceType = 0x1030
	Static       SourceType = 0x1028
	Streaming    SourceType = 0x1029
)

func (t SourceType) String() string {
	switch t {
	case Undetermined:
		return "UNDETERMINED"
	case Static:
		return "STATIC"
	case Streaming:
		return "STREAMING"
	default:
		return "UNKNOWN_TYPE"
	}
}

// DistanceModel selects the attenuation curve for the whole context.
type DistanceModel int32

const (
	DistanceNone            DistanceModel = 0
	InverseDistance         DistanceModel = 0xD001
	InverseDistanceClamped  DistanceModel = 0xD002
	LinearDistance          DistanceModel = 0xD003
	LinearDistanceClamped   DistanceModel = 0xD004
	ExponentDistance        DistanceModel = 0xD005
	ExponentDistanceClamped DistanceModel = 0xD006
)

func (m DistanceModel) String() string {
	switch m {
	case DistanceNone:
		return "NONE"
	case InverseDistance:
		return "INVERSE_DISTANCE"
	case InverseDistanceClamped:
		return "INVERSE_DISTANCE_CLAMPED"
	case LinearDistance:
		return "LINEAR_DISTANCE"
	case LinearDistanceClamped:
		return "LINEAR_DISTANCE_CLAMPED"
	case ExponentDistance:
		return "EXPONENT_DISTANCE"
	case ExponentDistanceClamped:
		return "EXPONENT_DISTANCE_CLAMPED"
	default:
		return "UNKNOWN_MODEL"
	}
}

// Format describes the sample layout of buffer data.
type Format int32

const (
	FormatMono8    Format = 0x1100
	FormatMono16   Format = 0x1101
	FormatStereo8  Format = 0x1102
	FormatStereo16 Format = 0x1103
)

func (f Format) String() string {
	switch f {
	case FormatMono8:
		return "MONO8"
	case FormatMono16:
		return "MONO16"
	case FormatStereo8:
		return "STEREO8"
	case FormatStereo16:
		return "STEREO16"
	default:
		return "UNKNOWN_FORMAT"
	}
}

// Channels returns the channel count for the format.
func (f Format) Channels() int32 {
	switch f {
	case FormatStereo8, FormatStereo16:
		return 2
	default:
		return 1
	}
}

// Bits returns the per-sample bit depth for the format.
func (f Format) Bits() int32 {
	switch f {
	case FormatMono16, FormatStereo16:
		return 16
	default:
		return 8
	}
}

// Param names a queryable or settable property of a source, buffer, or
// the listener. Numeric values are stable and appear in traces.
type Param int32

const (
	ParamSourceRelative    Param = 0x0202
	ParamConeInnerAngle    Param = 0x1001
	ParamConeOuterAngle    Param = 0x1002
	ParamPitch             Param = 0x1003
	ParamPosition          Param = 0x1004
	ParamDirection         Param = 0x1005
	ParamVelocity          Param = 0x1006
	ParamLooping           Param = 0x1007
	ParamBuffer            Param = 0x1009
	ParamGain              Param = 0x100A
	ParamMinGain           Param = 0x100D
	ParamMaxGain           Param = 0x100E
	ParamOrientation       Param = 0x100F
	ParamSourceState       Param = 0x1010
	ParamBuffersQueued     Param = 0x1015
	ParamBuffersProcessed  Param = 0x1016
	ParamReferenceDistance Param = 0x1020
	ParamRolloffFactor     Param = 0x1021
	ParamConeOuterGain     Param = 0x1022
	ParamMaxDistance       Param = 0x1023
	ParamSecOffset         Param = 0x1024
	ParamSampleOffset      Param = 0x1025
	ParamByteOffset        Param = 0x1026
	ParamSourceType        Param = 0x1027

	ParamFrequency Param = 0x2001
	ParamBits      Param = 0x2002
	ParamChannels  Param = 0x2003
	ParamSize      Param = 0x2004
)

func (p Param) String() string {
	switch p {
	case ParamSourceRelative:
		return "SOURCE_RELATIVE"
	case ParamConeInnerAngle:
		return "CONE_INNER_ANGLE"
	case ParamConeOuterAngle:
		return "CONE_OUTER_ANGLE"
	case ParamPitch:
		return "PITCH"
	case ParamPosition:
		return "POSITION"
	case ParamDirection:
		return "DIRECTION"
	case ParamVelocity:
		return "VELOCITY"
	case ParamLooping:
		return "LOOPING"
	case ParamBuffer:
		return "BUFFER"
	case ParamGain:
		return "GAIN"
	case ParamMinGain:
		return "MIN_GAIN"
	case ParamMaxGain:
		return "MAX_GAIN"
	case ParamOrientation:
		return "ORIENTATION"
	case ParamSourceState:
		return "SOURCE_STATE"
	case ParamBuffersQueued:
		return "BUFFERS_QUEUED"
	case ParamBuffersProcessed:
		return "BUFFERS_PROCESSED"
	case ParamReferenceDistance:
		return "REFERENCE_DISTANCE"
	case ParamRolloffFactor:
		return "ROLLOFF_FACTOR"
	case ParamConeOuterGain:
		return "CONE_OUTER_GAIN"
	case ParamMaxDistance:
		return "MAX_DISTANCE"
	case ParamSecOffset:
		return "SEC_OFFSET"
	case ParamSampleOffset:
		return "SAMPLE_OFFSET"
	case ParamByteOffset:
		return "BYTE_OFFSET"
	case ParamSourceType:
		return "SOURCE_TYPE"
	case ParamFrequency:
		return "FREQUENCY"
	case ParamBits:
		return "BITS"
	case ParamChannels:
		return "CHANNELS"
	case ParamSize:
		return "SIZE"
	default:
		return "UNKNOWN_PARAM"
	}
}
