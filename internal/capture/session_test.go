package capture

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiotap/audiotap/internal/audio"
	"github.com/audiotap/audiotap/internal/trace"
)

// fixture wires a Soft driver to a Session recording into memory.
type fixture struct {
	soft *audio.Soft
	sess *Session
	buf  *bytes.Buffer
	now  uint32
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{soft: audio.NewSoft(), buf: &bytes.Buffer{}}
	if opts.NowMillis == nil {
		opts.NowMillis = func() uint32 { f.now += 10; return f.now }
	}
	if opts.OnFatal == nil {
		opts.OnFatal = func(err error) { t.Fatalf("capture fault: %v", err) }
	}
	w, err := trace.NewWriter(f.buf, trace.WriterOptions{Compress: opts.Compress, Session: opts.Session})
	require.NoError(t, err)
	f.sess = New(f.soft, w, opts)
	return f
}

// ready opens a device and binds a fresh context.
func (f *fixture) ready(t *testing.T) (audio.Device, audio.Context) {
	t.Helper()
	dev := f.sess.OpenDevice("")
	require.NotZero(t, dev)
	ctx := f.sess.CreateContext(dev, nil)
	require.NotZero(t, ctx)
	require.True(t, f.sess.MakeContextCurrent(ctx))
	return dev, ctx
}

// drain closes the session and decodes every event back.
func (f *fixture) drain(t *testing.T) []*trace.Event {
	t.Helper()
	require.NoError(t, f.sess.Close())
	d, err := trace.NewDecoder(bytes.NewReader(f.buf.Bytes()))
	require.NoError(t, err)
	var events []*trace.Event
	for {
		e, err := d.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		events = append(events, e)
	}
	require.NotEmpty(t, events)
	require.Equal(t, trace.KindEos, events[len(events)-1].Kind)
	return events
}

func ofKind(events []*trace.Event, k trace.Kind) []*trace.Event {
	var out []*trace.Event
	for _, e := range events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

func TestVirtualIdsDenseAndReused(t *testing.T) {
	f := newFixture(t, Options{})
	f.ready(t)

	srcs := f.sess.GenSources(3)
	require.Equal(t, []audio.Source{1, 2, 3}, srcs)

	f.sess.DeleteSources([]audio.Source{1, 2})
	require.Equal(t, audio.ErrNone, f.sess.ContextError(f.sess.CurrentContext()))

	// The lowest freed id comes back first.
	require.Equal(t, []audio.Source{1}, f.sess.GenSources(1))
	require.Equal(t, []audio.Source{2, 4}, f.sess.GenSources(2))
}

func TestBuffersGetTheirOwnIdSpace(t *testing.T) {
	f := newFixture(t, Options{})
	f.ready(t)

	require.Equal(t, []audio.Source{1, 2}, f.sess.GenSources(2))
	// Buffer ids restart at 1: sources and buffers are separate
	// categories.
	require.Equal(t, []audio.Buffer{1, 2}, f.sess.GenBuffers(2))
}

func TestFailedGenAllocatesNoIdentity(t *testing.T) {
	f := newFixture(t, Options{})
	_, ctx := f.ready(t)

	f.soft.FailNextGen(1)
	require.Nil(t, f.sess.GenSources(2))
	require.Equal(t, audio.ErrOutOfMemory, f.sess.ContextError(ctx))

	// The failed call burned no ids.
	require.Equal(t, []audio.Source{1, 2}, f.sess.GenSources(2))

	events := f.drain(t)
	gens := ofKind(events, trace.KindGenSources)
	require.Len(t, gens, 2)
	assert.Empty(t, gens[0].Results[0].(trace.U32Vec))
	assert.Equal(t, trace.U32Vec{1, 2}, gens[1].Results[0])
}

func TestFailedDeleteKeepsIdentities(t *testing.T) {
	f := newFixture(t, Options{})
	_, ctx := f.ready(t)

	require.Equal(t, []audio.Source{1}, f.sess.GenSources(1))
	// One bad id in the batch fails the whole call.
	f.sess.DeleteSources([]audio.Source{1, 99})
	require.Equal(t, audio.ErrInvalidName, f.sess.ContextError(ctx))

	// Source 1 is still live and still resolvable.
	assert.Equal(t, int32(audio.Initial), f.sess.GetSourcei(1, audio.ParamSourceState))
	require.Equal(t, audio.ErrNone, f.sess.ContextError(ctx))
	assert.Equal(t, []audio.Source{2}, f.sess.GenSources(1))
}

func TestErrorLatchFirstWins(t *testing.T) {
	f := newFixture(t, Options{})
	_, ctx := f.ready(t)

	f.sess.SetDistanceModel(audio.DistanceModel(0x9999)) // INVALID_ENUM
	f.sess.SetDopplerFactor(-1)                          // INVALID_VALUE, discarded

	assert.Equal(t, audio.ErrInvalidEnum, f.sess.ContextError(ctx))
	assert.Equal(t, audio.ErrNone, f.sess.ContextError(ctx))

	events := f.drain(t)
	raised := ofKind(events, trace.KindErrorRaised)
	// Both faults are visible in the trace even though the app only
	// ever sees the first.
	require.Len(t, raised, 2)
	assert.Equal(t, trace.I32(int32(audio.ErrInvalidEnum)), raised[0].Args[2])
	assert.Equal(t, trace.I32(int32(audio.ErrInvalidValue)), raised[1].Args[2])
}

func TestDeviceErrorLatch(t *testing.T) {
	f := newFixture(t, Options{})
	dev, ctx := f.ready(t)

	// Closing a device that still owns a context fails and latches on
	// the device.
	require.False(t, f.sess.CloseDevice(dev))
	assert.Equal(t, audio.ErrInvalidOperation, f.sess.DeviceError(dev))
	assert.Equal(t, audio.ErrNone, f.sess.DeviceError(dev))

	require.True(t, f.sess.MakeContextCurrent(0))
	f.sess.DestroyContext(ctx)
	require.True(t, f.sess.CloseDevice(dev))
	assert.Equal(t, audio.ErrInvalidName, f.sess.DeviceError(dev))
}

func TestFailedDestroyKeepsContextMapping(t *testing.T) {
	drv := &refusingDriver{Soft: audio.NewSoft()}
	var buf bytes.Buffer
	w, err := trace.NewWriter(&buf, trace.WriterOptions{})
	require.NoError(t, err)
	sess := New(drv, w, Options{OnFatal: func(err error) { t.Fatalf("capture fault: %v", err) }})

	dev := sess.OpenDevice("")
	require.NotZero(t, dev)
	// An earlier device fault the application never reads.
	require.Zero(t, sess.CreateContext(dev, []int32{1}))
	ctx := sess.CreateContext(dev, nil)
	require.NotZero(t, ctx)

	drv.refuse = true
	sess.DestroyContext(ctx)

	// The destroy failed, so the context identity still resolves.
	require.True(t, sess.MakeContextCurrent(ctx))
	// And the unread latch still serves the earlier fault first.
	assert.Equal(t, audio.ErrInvalidValue, sess.DeviceError(dev))
}

// refusingDriver rejects DestroyContext while refuse is set, latching
// the failure where the next device poll drains it.
type refusingDriver struct {
	*audio.Soft
	refuse  bool
	pending audio.ErrorCode
}

func (d *refusingDriver) DestroyContext(c audio.Context) {
	if d.refuse {
		d.pending = audio.ErrInvalidOperation
		return
	}
	d.Soft.DestroyContext(c)
}

func (d *refusingDriver) DeviceError(dev audio.Device) audio.ErrorCode {
	if code := d.pending; code != audio.ErrNone {
		d.pending = audio.ErrNone
		return code
	}
	return d.Soft.DeviceError(dev)
}

func TestFailedOpenRecordsZeroHandle(t *testing.T) {
	f := newFixture(t, Options{})
	f.soft.SetDeviceAvailable("missing", false)

	require.Zero(t, f.sess.OpenDevice("missing"))

	events := f.drain(t)
	opens := ofKind(events, trace.KindOpenDevice)
	require.Len(t, opens, 1)
	name := opens[0].Args[0].(trace.Str)
	require.True(t, name.Present)
	assert.Equal(t, "missing", name.Val)
	assert.Equal(t, trace.U64(0), opens[0].Results[0])
}

func TestTraceCarriesVirtualIds(t *testing.T) {
	f := newFixture(t, Options{})
	f.ready(t)

	srcs := f.sess.GenSources(1)
	bufs := f.sess.GenBuffers(1)
	f.sess.BufferData(bufs[0], audio.FormatMono16, make([]byte, 64), 44100)
	f.sess.SetSourcei(srcs[0], audio.ParamBuffer, int32(bufs[0]))

	events := f.drain(t)

	sets := ofKind(events, trace.KindSetSourcei)
	require.Len(t, sets, 1)
	// The record holds the dense virtual ids, never the driver's
	// handles.
	assert.Equal(t, trace.U32(1), sets[0].Args[0])
	assert.Equal(t, trace.I32(1), sets[0].Args[2])

	data := ofKind(events, trace.KindBufferData)
	require.Len(t, data, 1)
	assert.Equal(t, trace.U32(1), data[0].Args[0])
	assert.Equal(t, trace.Blob(make([]byte, 64)), data[0].Args[2])
}

func TestUntouchedFieldsEmitNothing(t *testing.T) {
	f := newFixture(t, Options{})
	f.ready(t)

	srcs := f.sess.GenSources(1)
	f.sess.SetSourcef(srcs[0], audio.ParamGain, 0.5)
	f.sess.Sync()

	events := f.drain(t)
	changes := ofKind(events, trace.KindStateChange)
	// Soft's defaults match the documented ones, so creation diffs are
	// silent; the one explicit set yields exactly one change.
	require.Len(t, changes, 1)
	assert.Equal(t, trace.ClassSource, changes[0].StateClass)
	assert.Equal(t, uint64(1), changes[0].StateID)
	assert.Equal(t, uint32(audio.ParamGain), changes[0].StateField)
	assert.Equal(t, trace.F32(0.5), changes[0].StateValue)
}

func TestImplicitStopSurfacesAsStateChange(t *testing.T) {
	f := newFixture(t, Options{})
	f.ready(t)

	src := f.sess.GenSources(1)[0]
	buf := f.sess.GenBuffers(1)[0]
	f.sess.BufferData(buf, audio.FormatMono16, make([]byte, 200), 44100) // 100 frames
	f.sess.SetSourcei(src, audio.ParamBuffer, int32(buf))
	f.sess.SourcePlay(src)

	f.soft.Pump(1000)
	f.sess.Sync()

	events := f.drain(t)
	var states []int32
	for _, e := range ofKind(events, trace.KindStateChange) {
		if e.StateClass == trace.ClassSource && e.StateField == uint32(audio.ParamSourceState) {
			states = append(states, int32(e.StateValue.(trace.I32)))
		}
	}
	require.Equal(t, []int32{int32(audio.Playing), int32(audio.Stopped)}, states)
}

func TestStreamingQueueProgress(t *testing.T) {
	f := newFixture(t, Options{})
	f.ready(t)

	src := f.sess.GenSources(1)[0]
	bufs := f.sess.GenBuffers(2)
	for _, b := range bufs {
		f.sess.BufferData(b, audio.FormatMono16, make([]byte, 200), 44100)
	}
	f.sess.SourceQueueBuffers(src, bufs)
	f.sess.SourcePlay(src)

	f.soft.Pump(100) // exactly the first buffer
	require.Equal(t, int32(1), f.sess.GetSourcei(src, audio.ParamBuffersProcessed))

	// Unqueued buffers come back under their virtual ids.
	require.Equal(t, []audio.Buffer{bufs[0]}, f.sess.SourceUnqueueBuffers(src, 1))
}

func TestAttachedBufferDiffIsVirtual(t *testing.T) {
	f := newFixture(t, Options{})
	f.ready(t)

	src := f.sess.GenSources(1)[0]
	buf := f.sess.GenBuffers(1)[0]
	f.sess.BufferData(buf, audio.FormatMono16, make([]byte, 64), 44100)
	f.sess.SetSourcei(src, audio.ParamBuffer, int32(buf))

	events := f.drain(t)
	for _, e := range ofKind(events, trace.KindStateChange) {
		if e.StateClass == trace.ClassSource && e.StateField == uint32(audio.ParamBuffer) {
			assert.Equal(t, trace.I32(1), e.StateValue)
			return
		}
	}
	t.Fatal("no attached-buffer state change recorded")
}

func TestTimestampsNonDecreasing(t *testing.T) {
	f := newFixture(t, Options{})
	f.ready(t)
	f.sess.GenSources(2)
	f.sess.SetListenerf(audio.ParamGain, 0.25)

	events := f.drain(t)
	var last uint32
	for _, e := range events {
		require.GreaterOrEqual(t, e.TimeMs, last)
		last = e.TimeMs
	}
}

func TestThreadIdsAreDenseFromOne(t *testing.T) {
	f := newFixture(t, Options{})
	f.ready(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.sess.GenSources(1)
	}()
	<-done
	f.sess.GenSources(1)

	events := f.drain(t)
	seen := map[uint32]bool{}
	for _, e := range events {
		if e.Kind.IsCall() {
			seen[e.Thread] = true
		}
	}
	assert.True(t, seen[1])
	assert.True(t, seen[2])
	assert.False(t, seen[0])
	assert.False(t, seen[3])
}

func TestStacksRecordSymbolsOnce(t *testing.T) {
	f := newFixture(t, Options{Stacks: true})
	f.ready(t)
	for i := 0; i < 3; i++ {
		f.sess.GenSources(1)
	}

	events := f.drain(t)
	seen := map[uint64]int{}
	for _, e := range ofKind(events, trace.KindSymbol) {
		addr := uint64(e.Args[0].(trace.U64))
		seen[addr]++
		s := e.Args[1].(trace.Str)
		require.True(t, s.Present)
		assert.NotEmpty(t, s.Val)
	}
	require.NotEmpty(t, seen)
	for addr, n := range seen {
		assert.Equal(t, 1, n, "symbol %#x declared more than once", addr)
	}

	// Decoded frames resolve against the symbols declared earlier in
	// the stream.
	for _, e := range events {
		if !e.Kind.IsCall() {
			continue
		}
		require.NotEmpty(t, e.Stack)
		for _, fr := range e.Stack {
			assert.NotEmpty(t, fr.Symbol, "frame %#x unresolved", fr.Addr)
		}
	}
}

func TestNoStacksMeansNilStacks(t *testing.T) {
	f := newFixture(t, Options{})
	f.ready(t)
	f.sess.GenSources(1)

	for _, e := range f.drain(t) {
		assert.Nil(t, e.Stack)
	}
}

func TestAnnotations(t *testing.T) {
	f := newFixture(t, Options{})
	f.ready(t)

	f.sess.PushScope("level-load")
	src := f.sess.GenSources(1)[0]
	f.sess.Label(trace.ClassSource, uint64(src), "ambience")
	f.sess.Message("load complete")
	f.sess.PopScope()

	events := f.drain(t)
	require.Len(t, ofKind(events, trace.KindScopePush), 1)
	require.Len(t, ofKind(events, trace.KindScopePop), 1)

	labels := ofKind(events, trace.KindLabel)
	require.Len(t, labels, 1)
	assert.Equal(t, trace.U32(uint32(trace.ClassSource)), labels[0].Args[0])
	assert.Equal(t, trace.U64(1), labels[0].Args[1])
	assert.Equal(t, trace.SomeStr("ambience"), labels[0].Args[2])
}

func TestCompressedRoundTrip(t *testing.T) {
	f := newFixture(t, Options{Compress: true})
	f.ready(t)
	f.sess.GenSources(2)

	events := f.drain(t)
	require.Len(t, ofKind(events, trace.KindGenSources), 1)
}

func TestWriteFailureIsFatal(t *testing.T) {
	var fatal error
	w, err := trace.NewWriter(&failAfterHeader{}, trace.WriterOptions{})
	require.NoError(t, err)
	sess := New(audio.NewSoft(), w, Options{OnFatal: func(err error) { fatal = err }})

	sess.OpenDevice("")

	require.Error(t, fatal)
	assert.True(t, sess.failed)
}

// failAfterHeader accepts the header write, then fails everything.
type failAfterHeader struct{ writes int }

func (w *failAfterHeader) Write(p []byte) (int, error) {
	w.writes++
	if w.writes > 1 {
		return 0, io.ErrClosedPipe
	}
	return len(p), nil
}
