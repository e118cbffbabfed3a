package trace

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiotap/audiotap/internal/wire"
)

// encode writes the given events (plus an Eos terminator) and returns
// the raw stream.
func encode(t *testing.T, opts WriterOptions, events ...*Event) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf, opts)
	require.NoError(t, err)
	for _, e := range events {
		require.NoError(t, w.WriteEvent(e))
	}
	require.NoError(t, w.WriteEos(999))
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// decodeAll drains a decoder up to and including the terminator.
func decodeAll(t *testing.T, data []byte) []*Event {
	t.Helper()
	d, err := NewDecoder(bytes.NewReader(data))
	require.NoError(t, err)
	var out []*Event
	for {
		e, err := d.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, e)
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	sess := uuid.MustParse("8d6a1f0e-41f3-4c2a-9b77-0e5c3d2a1b00")
	data := encode(t, WriterOptions{Session: sess})

	d, err := NewDecoder(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, Version, d.Header().Version)
	assert.Equal(t, sess, d.Header().Session)
}

func TestZeroSessionIsGenerated(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, WriterOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, w.Session())
}

func TestCallRoundTrip(t *testing.T) {
	data := encode(t, WriterOptions{},
		&Event{
			TimeMs:  10,
			Kind:    KindOpenDevice,
			Thread:  1,
			Args:    []Value{SomeStr("usb")},
			Results: []Value{U64(0x1001)},
		},
		&Event{
			TimeMs:  12,
			Kind:    KindGenSources,
			Thread:  1,
			Args:    []Value{I32(2)},
			Results: []Value{U32Vec{1, 2}},
		},
		&Event{
			TimeMs: 15,
			Kind:   KindSetSource3f,
			Thread: 2,
			Args:   []Value{U32(1), I32(0x1004), Vec3{1, 0, -1}},
		},
	)

	events := decodeAll(t, data)
	require.Len(t, events, 4) // three calls plus Eos

	open := events[0]
	assert.Equal(t, 0, open.Index)
	assert.Equal(t, uint32(10), open.TimeMs)
	assert.Equal(t, uint32(1), open.Thread)
	assert.Equal(t, SomeStr("usb"), open.Arg(0))
	assert.Equal(t, U64(0x1001), open.Result(0))
	assert.Nil(t, open.Arg(1))
	assert.Nil(t, open.Result(5))

	assert.Equal(t, U32Vec{1, 2}, events[1].Result(0))
	assert.Equal(t, Vec3{1, 0, -1}, events[2].Arg(2))

	assert.Equal(t, KindEos, events[3].Kind)
	assert.Equal(t, uint32(999), events[3].TimeMs)
}

func TestBlobAbsentVersusEmpty(t *testing.T) {
	mk := func(pcm Blob) *Event {
		return &Event{
			Kind: KindBufferData,
			Args: []Value{U32(1), I32(0x1101), pcm, I32(44100)},
		}
	}
	data := encode(t, WriterOptions{}, mk(nil), mk(Blob{}), mk(Blob{9, 8, 7}))
	events := decodeAll(t, data)

	assert.Nil(t, events[0].Arg(2))
	empty := events[1].Arg(2).(Blob)
	require.NotNil(t, empty)
	assert.Len(t, empty, 0)
	assert.Equal(t, Blob{9, 8, 7}, events[2].Arg(2))
}

func TestFloatFieldsBitExact(t *testing.T) {
	gain := F32(math.Float32frombits(0x3f4ccccd)) // 0.8 as recorded
	data := encode(t, WriterOptions{}, &Event{
		Kind:    KindGetSourcef,
		Args:    []Value{U32(1), I32(0x100a)},
		Results: []Value{gain},
	})
	events := decodeAll(t, data)
	got := events[0].Result(0).(F32)
	assert.Equal(t, math.Float32bits(float32(gain)), math.Float32bits(float32(got)))
}

func TestStateChangeRoundTrip(t *testing.T) {
	data := encode(t, WriterOptions{}, &Event{
		TimeMs:     20,
		Kind:       KindStateChange,
		StateClass: ClassSource,
		StateID:    3,
		StateField: 0x1003,
		StateValue: Vec3{0, 1, 0},
	})
	events := decodeAll(t, data)

	sc := events[0]
	assert.Equal(t, KindStateChange, sc.Kind)
	assert.Equal(t, ClassSource, sc.StateClass)
	assert.Equal(t, uint64(3), sc.StateID)
	assert.Equal(t, uint32(0x1003), sc.StateField)
	assert.Equal(t, Vec3{0, 1, 0}, sc.StateValue)
	assert.Nil(t, sc.Args)
}

func TestStateChangeRejectsNonWireValue(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, WriterOptions{})
	require.NoError(t, err)

	err = w.WriteEvent(&Event{Kind: KindStateChange})
	assert.ErrorContains(t, err, "without value")
}

func TestStackRoundTrip(t *testing.T) {
	data := encode(t, WriterOptions{},
		&Event{Kind: KindScopePop},
		&Event{Kind: KindScopePop, Stack: []Frame{}},
		&Event{Kind: KindScopePop, Stack: []Frame{{Addr: 0x1000}, {Addr: 0x2000}}},
	)
	events := decodeAll(t, data)

	// A nil stack means none was recorded; an empty one was recorded
	// with zero frames. The distinction survives the wire.
	assert.Nil(t, events[0].Stack)
	require.NotNil(t, events[1].Stack)
	assert.Len(t, events[1].Stack, 0)
	require.Len(t, events[2].Stack, 2)
	assert.Equal(t, uint64(0x2000), events[2].Stack[1].Addr)
}

func TestSymbolsAttachToLaterFrames(t *testing.T) {
	data := encode(t, WriterOptions{},
		&Event{Kind: KindSymbol, Args: []Value{U64(0x1000), SomeStr("app.play")}},
		&Event{Kind: KindSourcePlay, Args: []Value{U32(1)},
			Stack: []Frame{{Addr: 0x1000}, {Addr: 0x2000}}},
	)

	d, err := NewDecoder(bytes.NewReader(data))
	require.NoError(t, err)

	_, err = d.Next() // the Symbol event itself
	require.NoError(t, err)
	s, ok := d.Symbol(0x1000)
	require.True(t, ok)
	assert.Equal(t, "app.play", s)

	play, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, "app.play", play.Stack[0].Symbol)
	assert.Equal(t, "", play.Stack[1].Symbol)
}

func TestEosEndsTheStream(t *testing.T) {
	data := encode(t, WriterOptions{})
	d, err := NewDecoder(bytes.NewReader(data))
	require.NoError(t, err)

	e, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, KindEos, e.Kind)

	_, err = d.Next()
	assert.Equal(t, io.EOF, err)
	_, err = d.Next()
	assert.Equal(t, io.EOF, err)
}

func TestCompressedRoundTrip(t *testing.T) {
	plain := encode(t, WriterOptions{},
		&Event{Kind: KindGenBuffers, Args: []Value{I32(3)}, Results: []Value{U32Vec{1, 2, 3}}})
	packed := encode(t, WriterOptions{Compress: true},
		&Event{Kind: KindGenBuffers, Args: []Value{I32(3)}, Results: []Value{U32Vec{1, 2, 3}}})

	assert.Equal(t, zstdMagic, packed[:4])
	assert.NotEqual(t, zstdMagic, plain[:4])

	events := decodeAll(t, packed)
	require.Len(t, events, 2)
	assert.Equal(t, U32Vec{1, 2, 3}, events[0].Result(0))
}

func TestBadMagic(t *testing.T) {
	_, err := NewDecoder(bytes.NewReader([]byte("not a trace file")))
	assert.ErrorIs(t, err, ErrBadMagic)

	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, -1, decErr.Index)
}

func TestBadVersion(t *testing.T) {
	var buf bytes.Buffer
	w := wire.NewWriter(&buf)
	w.U32(Magic)
	w.U32(Version + 1)
	buf.Write(make([]byte, 16))

	_, err := NewDecoder(bytes.NewReader(buf.Bytes()))
	assert.ErrorIs(t, err, ErrBadVersion)
}

func TestTruncatedAtRecordBoundary(t *testing.T) {
	// A stream that simply stops without its terminator is truncation,
	// not a normal end.
	var buf bytes.Buffer
	w, err := NewWriter(&buf, WriterOptions{})
	require.NoError(t, err)
	require.NoError(t, w.WriteEvent(&Event{Kind: KindScopePop}))

	d, err := NewDecoder(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	_, err = d.Next()
	require.NoError(t, err)

	_, err = d.Next()
	assert.ErrorIs(t, err, ErrTruncated)

	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, 1, decErr.Index)
}

func TestTruncatedMidRecord(t *testing.T) {
	data := encode(t, WriterOptions{}, &Event{
		Kind: KindOpenDevice,
		Args: []Value{SomeStr("usb")}, Results: []Value{U64(0x1001)},
	})

	d, err := NewDecoder(bytes.NewReader(data[:len(data)-30]))
	require.NoError(t, err)
	_, err = d.Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	// The fault is terminal and repeats.
	_, again := d.Next()
	assert.Equal(t, err, again)
}

func TestUnknownKindIsTerminal(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewWriter(&buf, WriterOptions{})
	require.NoError(t, err)
	raw := wire.NewWriter(&buf)
	raw.U32(5)   // time
	raw.U32(200) // no such kind
	raw.U32(1)   // thread

	d, err := NewDecoder(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	_, err = d.Next()
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestCorruptVectorLength(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewWriter(&buf, WriterOptions{})
	require.NoError(t, err)
	raw := wire.NewWriter(&buf)
	raw.U32(5)
	raw.U32(uint32(KindGenSources))
	raw.U32(1)
	raw.U32(^uint32(0)) // no stack
	raw.I32(2)          // requested count
	raw.U32(1 << 30)    // result vector length, far past the bound

	d, err := NewDecoder(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	_, err = d.Next()
	assert.ErrorIs(t, err, wire.ErrCorrupt)
}

func TestWriteEventChecksDescriptor(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, WriterOptions{})
	require.NoError(t, err)

	err = w.WriteEvent(&Event{Kind: Kind(200)})
	assert.ErrorContains(t, err, "unknown event kind")

	err = w.WriteEvent(&Event{Kind: KindOpenDevice}) // missing args
	assert.ErrorContains(t, err, "fields declared")

	err = w.WriteEvent(&Event{
		Kind: KindOpenDevice,
		Args: []Value{U32(7)}, Results: []Value{U64(1)},
	})
	assert.ErrorContains(t, err, "descriptor wants")

	assert.Equal(t, 0, w.Events())
}

func TestWriteAfterClose(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, WriterOptions{})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Error(t, w.WriteEos(0))
}

func TestRecordsHitTheWriterWhole(t *testing.T) {
	// Every record lands in one Write call, so a crash leaves the file
	// truncated between records rather than inside one.
	var calls [][]byte
	sink := writerFunc(func(p []byte) (int, error) {
		calls = append(calls, append([]byte(nil), p...))
		return len(p), nil
	})

	w, err := NewWriter(sink, WriterOptions{})
	require.NoError(t, err)
	require.NoError(t, w.WriteEvent(&Event{Kind: KindScopePop}))
	require.NoError(t, w.WriteEos(1))
	require.Len(t, calls, 3) // header plus two records

	var whole bytes.Buffer
	for _, c := range calls {
		whole.Write(c)
	}
	events := decodeAll(t, whole.Bytes())
	assert.Len(t, events, 2)
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func TestKindPredicates(t *testing.T) {
	assert.True(t, KindOpenDevice.IsCall())
	assert.True(t, KindGetBufferi.IsCall())
	assert.False(t, KindSymbol.IsCall())
	assert.False(t, KindEos.IsCall())

	assert.True(t, KindScopePush.IsAnnotation())
	assert.True(t, KindLabel.IsAnnotation())
	assert.False(t, KindStateChange.IsAnnotation())

	assert.Equal(t, "OpenDevice", KindOpenDevice.Name())
	assert.Equal(t, "kind(200)", Kind(200).Name())
	assert.Equal(t, "source", ClassSource.String())
}

func TestPlainMagicNotSniffedAsZstd(t *testing.T) {
	// A plain stream's first four bytes are the format magic, read back
	// little-endian; the zstd sniff must not trip on them.
	data := encode(t, WriterOptions{})
	assert.Equal(t, Magic, binary.LittleEndian.Uint32(data[:4]))
	assert.NotEqual(t, zstdMagic, data[:4])
}
