package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripIntegers(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.U32(0)
	w.U32(math.MaxUint32)
	w.U64(1 << 40)
	w.I32(-1)
	w.I64(math.MinInt64)
	require.NoError(t, w.Err())

	r := NewReader(&buf)
	assert.Equal(t, uint32(0), r.U32())
	assert.Equal(t, uint32(math.MaxUint32), r.U32())
	assert.Equal(t, uint64(1<<40), r.U64())
	assert.Equal(t, int32(-1), r.I32())
	assert.Equal(t, int64(math.MinInt64), r.I64())
	require.NoError(t, r.Err())
}

func TestRoundTripFloatsBitExact(t *testing.T) {
	values := []float32{0, float32(math.Copysign(0, -1)), 1.5, -2.25,
		float32(math.Inf(1)), math.SmallestNonzeroFloat32}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, v := range values {
		w.F32(v)
	}
	w.F64(math.Pi)
	require.NoError(t, w.Err())

	r := NewReader(&buf)
	for _, v := range values {
		assert.Equal(t, math.Float32bits(v), math.Float32bits(r.F32()))
	}
	assert.Equal(t, math.Pi, r.F64())
	require.NoError(t, r.Err())

	// NaN survives by bit pattern even though it compares unequal.
	buf.Reset()
	w = NewWriter(&buf)
	w.F32(float32(math.NaN()))
	r = NewReader(&buf)
	assert.Equal(t, math.Float32bits(float32(math.NaN())), math.Float32bits(r.F32()))
}

func TestLittleEndianOnTheWire(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.U32(0x04030201)
	require.NoError(t, w.Err())
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, buf.Bytes())
}

func TestAbsentVersusEmpty(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Bytes(nil)
	w.Bytes([]byte{})
	w.String("", false)
	w.String("", true)
	w.String("hi", true)
	require.NoError(t, w.Err())

	r := NewReader(&buf)
	assert.Nil(t, r.Bytes())

	empty := r.Bytes()
	require.NotNil(t, empty)
	assert.Len(t, empty, 0)

	_, present := r.String()
	assert.False(t, present)

	s, present := r.String()
	assert.True(t, present)
	assert.Equal(t, "", s)

	s, present = r.String()
	assert.True(t, present)
	assert.Equal(t, "hi", s)
	require.NoError(t, r.Err())
}

func TestAbsentSentinelOnTheWire(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf).Bytes(nil)
	assert.Equal(t, AbsentLen, binary.LittleEndian.Uint64(buf.Bytes()))
}

func TestCleanEOF(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	assert.Equal(t, uint32(0), r.U32())
	assert.Equal(t, io.EOF, r.Err())
}

func TestTruncatedPrimitive(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{1, 2}))
	r.U32()
	require.Error(t, r.Err())
	assert.True(t, errors.Is(r.Err(), io.ErrUnexpectedEOF))
}

func TestTruncatedBlobPayload(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.U64(8) // promises 8 payload bytes
	w.write([]byte{1, 2, 3})

	r := NewReader(&buf)
	assert.Nil(t, r.Bytes())
	require.Error(t, r.Err())
	assert.True(t, errors.Is(r.Err(), io.ErrUnexpectedEOF))
}

func TestOversizedBlobRejected(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf).U64(MaxBlobLen + 1)

	r := NewReader(&buf)
	assert.Nil(t, r.Bytes())
	assert.True(t, errors.Is(r.Err(), ErrCorrupt))
}

// failWriter fails every write after the first n bytes were accepted.
type failWriter struct {
	n int
}

func (f *failWriter) Write(b []byte) (int, error) {
	if f.n <= 0 {
		return 0, io.ErrClosedPipe
	}
	if len(b) > f.n {
		n := f.n
		f.n = 0
		return n, io.ErrClosedPipe
	}
	f.n -= len(b)
	return len(b), nil
}

func TestWriterErrorIsSticky(t *testing.T) {
	w := NewWriter(&failWriter{n: 4})
	w.U32(1)
	require.NoError(t, w.Err())

	w.U32(2)
	first := w.Err()
	require.Error(t, first)

	// Later writes are no-ops and keep the original error.
	w.U64(3)
	w.String("x", true)
	assert.Equal(t, first, w.Err())
}

func TestReaderErrorIsSticky(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{1, 2, 3, 4}))
	r.U32()
	require.NoError(t, r.Err())

	r.U32()
	first := r.Err()
	require.Error(t, first)

	assert.Equal(t, uint64(0), r.U64())
	assert.Equal(t, first, r.Err())
}

func TestShortWriteIsError(t *testing.T) {
	w := NewWriter(&failWriter{n: 2})
	w.U32(7)
	require.Error(t, w.Err())
	assert.True(t, errors.Is(w.Err(), io.ErrClosedPipe))
}
