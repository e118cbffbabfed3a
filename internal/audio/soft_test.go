package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newCurrent opens a device and makes a fresh context current.
func newCurrent(t *testing.T) (*Soft, Device, Context) {
	t.Helper()
	s := NewSoft()
	d := s.OpenDevice("")
	require.NotZero(t, d)
	c := s.CreateContext(d, nil)
	require.NotZero(t, c)
	require.True(t, s.MakeContextCurrent(c))
	return s, d, c
}

func TestDeviceLifecycle(t *testing.T) {
	s := NewSoft()
	d := s.OpenDevice("usb")
	require.NotZero(t, d)
	c := s.CreateContext(d, nil)
	require.NotZero(t, c)

	// A device with live contexts refuses to close and latches.
	assert.False(t, s.CloseDevice(d))
	assert.Equal(t, ErrInvalidOperation, s.DeviceError(d))
	assert.Equal(t, ErrNone, s.DeviceError(d)) // reading cleared it

	s.DestroyContext(c)
	assert.True(t, s.CloseDevice(d))
	assert.Equal(t, ErrInvalidName, s.DeviceError(d))
}

func TestUnavailableDevice(t *testing.T) {
	s := NewSoft()
	s.SetDeviceAvailable("hdmi", false)
	assert.Zero(t, s.OpenDevice("hdmi"))
	assert.NotZero(t, s.OpenDevice("usb"))

	s.SetDeviceAvailable("hdmi", true)
	assert.NotZero(t, s.OpenDevice("hdmi"))
}

func TestFirstErrorWins(t *testing.T) {
	s, _, c := newCurrent(t)

	s.GetSourcef(Source(0xbad), ParamGain) // INVALID_NAME
	s.SetDistanceModel(DistanceModel(0x9999))
	assert.Equal(t, ErrInvalidName, s.ContextError(c))
	assert.Equal(t, ErrNone, s.ContextError(c))

	// With the latch cleared, the next fault lands.
	s.SetDistanceModel(DistanceModel(0x9999))
	assert.Equal(t, ErrInvalidEnum, s.ContextError(c))
}

func TestNoCurrentContextIsSilent(t *testing.T) {
	s := NewSoft()
	d := s.OpenDevice("")
	c := s.CreateContext(d, nil)

	assert.Nil(t, s.GenSources(1))
	assert.Nil(t, s.GenBuffers(1))
	s.SetDistanceModel(DistanceNone)
	s.SetListenerf(ParamGain, 2)
	assert.Equal(t, DistanceNone, s.DistanceModel())
	assert.Zero(t, s.GetListenerf(ParamGain))
	assert.Equal(t, ErrNone, s.ContextError(c))
	assert.Equal(t, ErrNone, s.DeviceError(d))
}

func TestContextCurrency(t *testing.T) {
	s, _, c := newCurrent(t)
	assert.Equal(t, c, s.CurrentContext())

	assert.False(t, s.MakeContextCurrent(Context(0xbad)))
	assert.Equal(t, c, s.CurrentContext())

	assert.True(t, s.MakeContextCurrent(0))
	assert.Zero(t, s.CurrentContext())

	assert.Equal(t, ErrInvalidName, s.ContextError(Context(0xbad)))
}

func TestOddAttrsRejected(t *testing.T) {
	s := NewSoft()
	d := s.OpenDevice("")
	assert.Zero(t, s.CreateContext(d, []int32{0x1}))
	assert.Equal(t, ErrInvalidValue, s.DeviceError(d))
}

func TestGenFailures(t *testing.T) {
	s, _, c := newCurrent(t)

	assert.Nil(t, s.GenSources(-1))
	assert.Equal(t, ErrInvalidValue, s.ContextError(c))

	s.FailNextGen(1)
	assert.Nil(t, s.GenBuffers(2))
	assert.Equal(t, ErrOutOfMemory, s.ContextError(c))

	// The failure budget is spent; creation works again.
	assert.Len(t, s.GenBuffers(2), 2)
	assert.Equal(t, ErrNone, s.ContextError(c))
}

func TestDeleteSourcesAllOrNothing(t *testing.T) {
	s, _, c := newCurrent(t)
	srcs := s.GenSources(2)

	s.DeleteSources([]Source{srcs[0], Source(0xbad)})
	assert.Equal(t, ErrInvalidName, s.ContextError(c))

	// Nothing was deleted.
	assert.Equal(t, int32(Initial), s.GetSourcei(srcs[0], ParamSourceState))
	assert.Equal(t, ErrNone, s.ContextError(c))

	s.DeleteSources(srcs)
	s.GetSourcei(srcs[0], ParamSourceState)
	assert.Equal(t, ErrInvalidName, s.ContextError(c))
}

func TestDeleteBuffersRefusesInUse(t *testing.T) {
	s, _, c := newCurrent(t)
	src := s.GenSources(1)[0]
	bufs := s.GenBuffers(2)

	s.SetSourcei(src, ParamBuffer, int32(bufs[0]))
	s.DeleteBuffers(bufs[:1])
	assert.Equal(t, ErrInvalidOperation, s.ContextError(c))

	s.SourceQueueBuffers(src, bufs[1:])
	assert.Equal(t, ErrInvalidOperation, s.ContextError(c)) // queueing on a static source
	s.SetSourcei(src, ParamBuffer, 0)
	s.SourceQueueBuffers(src, bufs[1:])
	s.DeleteBuffers(bufs[1:])
	assert.Equal(t, ErrInvalidOperation, s.ContextError(c))

	// Once the owning source is gone, deletion goes through.
	s.DeleteSources([]Source{src})
	s.DeleteBuffers(bufs)
	assert.Equal(t, ErrNone, s.ContextError(c))
}

func TestBufferDataValidation(t *testing.T) {
	s, _, c := newCurrent(t)
	buf := s.GenBuffers(1)[0]

	s.BufferData(buf, Format(0x9999), make([]byte, 4), 44100)
	assert.Equal(t, ErrInvalidEnum, s.ContextError(c))

	s.BufferData(buf, FormatStereo16, make([]byte, 16), 0)
	assert.Equal(t, ErrInvalidValue, s.ContextError(c))

	s.BufferData(buf, FormatStereo16, make([]byte, 16), 48000)
	assert.Equal(t, int32(48000), s.GetBufferi(buf, ParamFrequency))
	assert.Equal(t, int32(16), s.GetBufferi(buf, ParamSize))
	assert.Equal(t, int32(16), s.GetBufferi(buf, ParamBits))
	assert.Equal(t, int32(2), s.GetBufferi(buf, ParamChannels))
}

func TestStaticPlaybackStopsAtEnd(t *testing.T) {
	s, _, _ := newCurrent(t)
	src := s.GenSources(1)[0]
	buf := s.GenBuffers(1)[0]
	s.BufferData(buf, FormatMono16, make([]byte, 8), 44100) // 4 frames
	s.SetSourcei(src, ParamBuffer, int32(buf))

	s.SourcePlay(src)
	s.Pump(3)
	assert.Equal(t, int32(Playing), s.GetSourcei(src, ParamSourceState))
	s.Pump(1)
	assert.Equal(t, int32(Stopped), s.GetSourcei(src, ParamSourceState))
	assert.Zero(t, s.GetSourcei(src, ParamSampleOffset))
}

func TestLoopingSourceWraps(t *testing.T) {
	s, _, _ := newCurrent(t)
	src := s.GenSources(1)[0]
	buf := s.GenBuffers(1)[0]
	s.BufferData(buf, FormatMono16, make([]byte, 8), 44100)
	s.SetSourcei(src, ParamBuffer, int32(buf))
	s.SetSourcei(src, ParamLooping, 1)

	s.SourcePlay(src)
	s.Pump(10)
	assert.Equal(t, int32(Playing), s.GetSourcei(src, ParamSourceState))
}

func TestStreamingQueueProgress(t *testing.T) {
	s, _, c := newCurrent(t)
	src := s.GenSources(1)[0]
	bufs := s.GenBuffers(2)
	for _, b := range bufs {
		s.BufferData(b, FormatMono16, make([]byte, 8), 44100)
	}
	s.SourceQueueBuffers(src, bufs)
	assert.Equal(t, int32(Streaming), s.GetSourcei(src, ParamSourceType))
	assert.Equal(t, int32(2), s.GetSourcei(src, ParamBuffersQueued))

	// Unqueueing ahead of playback progress is an error.
	assert.Nil(t, s.SourceUnqueueBuffers(src, 1))
	assert.Equal(t, ErrInvalidValue, s.ContextError(c))

	s.SourcePlay(src)
	s.Pump(4)
	assert.Equal(t, int32(Playing), s.GetSourcei(src, ParamSourceState))
	assert.Equal(t, int32(1), s.GetSourcei(src, ParamBuffersProcessed))

	got := s.SourceUnqueueBuffers(src, 1)
	assert.Equal(t, bufs[:1], got)
	assert.Equal(t, int32(1), s.GetSourcei(src, ParamBuffersQueued))
	assert.Equal(t, int32(0), s.GetSourcei(src, ParamBuffersProcessed))

	// Queue starvation stops the source.
	s.Pump(4)
	assert.Equal(t, int32(Stopped), s.GetSourcei(src, ParamSourceState))
}

func TestUnqueueNegativeCount(t *testing.T) {
	s, _, c := newCurrent(t)
	src := s.GenSources(1)[0]

	assert.Nil(t, s.SourceUnqueueBuffers(src, -1))
	assert.Equal(t, ErrInvalidValue, s.ContextError(c))
}

func TestStopAndRewind(t *testing.T) {
	s, _, _ := newCurrent(t)
	src := s.GenSources(1)[0]

	// Stop on an INITIAL source keeps it INITIAL.
	s.SourceStop(src)
	assert.Equal(t, int32(Initial), s.GetSourcei(src, ParamSourceState))

	s.SourcePlay(src)
	s.SourcePause(src)
	assert.Equal(t, int32(Paused), s.GetSourcei(src, ParamSourceState))
	s.SourceStop(src)
	assert.Equal(t, int32(Stopped), s.GetSourcei(src, ParamSourceState))

	s.SourceRewind(src)
	assert.Equal(t, int32(Initial), s.GetSourcei(src, ParamSourceState))
}

func TestPitchValidation(t *testing.T) {
	s, _, c := newCurrent(t)
	src := s.GenSources(1)[0]

	s.SetSourcef(src, ParamPitch, 0)
	assert.Equal(t, ErrInvalidValue, s.ContextError(c))
	assert.Equal(t, float32(1), s.GetSourcef(src, ParamPitch))

	s.SetSourcef(src, ParamPitch, 2)
	assert.Equal(t, float32(2), s.GetSourcef(src, ParamPitch))
}

func TestNamesFitThirtyTwoBits(t *testing.T) {
	s, _, _ := newCurrent(t)

	// Source and buffer names round-trip through int32 properties, so
	// the driver may never issue one above the 32-bit range.
	for _, src := range s.GenSources(64) {
		require.LessOrEqual(t, uint64(src), uint64(math.MaxUint32))
	}
	for _, buf := range s.GenBuffers(64) {
		require.LessOrEqual(t, uint64(buf), uint64(math.MaxUint32))
	}
}

func TestBuffersSharedAcrossContexts(t *testing.T) {
	s := NewSoft()
	d := s.OpenDevice("")
	c1 := s.CreateContext(d, nil)
	c2 := s.CreateContext(d, nil)

	require.True(t, s.MakeContextCurrent(c1))
	buf := s.GenBuffers(1)[0]
	s.BufferData(buf, FormatMono16, make([]byte, 8), 22050)

	// Buffers live on the device, so a sibling context sees them.
	require.True(t, s.MakeContextCurrent(c2))
	assert.Equal(t, int32(22050), s.GetBufferi(buf, ParamFrequency))
	assert.Equal(t, ErrNone, s.ContextError(c2))
}
