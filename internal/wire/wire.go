// Package wire implements the binary primitives of the trace format.
//
// All integers are little-endian and fixed width. Strings and blobs carry
// a 64-bit length prefix; the reserved length AbsentLen marks an absent
// value, which is distinct from a zero-length one. There is no framing
// beyond these primitives: field order is fixed by the event descriptors
// and a short read or write is fatal for the whole stream.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// AbsentLen is the length-prefix sentinel for an absent string or blob.
const AbsentLen = ^uint64(0)

// MaxBlobLen bounds a single string or blob. A length above it (other
// than AbsentLen) can only come from a corrupt stream, so the reader
// rejects it instead of allocating.
const MaxBlobLen = 1 << 32

// ErrCorrupt reports a structurally invalid stream (oversized length,
// impossible value). It is terminal: no resynchronization is attempted.
var ErrCorrupt = errors.New("wire: corrupt stream")

// Writer serializes primitives to an underlying io.Writer.
//
// Errors are sticky: after the first failed write every later call is a
// no-op and Err returns the original failure. Callers check Err once per
// record rather than after every field.
type Writer struct {
	w       io.Writer
	err     error
	scratch [8]byte
}

// NewWriter returns a Writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Err returns the first write error, or nil.
func (w *Writer) Err() error { return w.err }

func (w *Writer) write(b []byte) {
	if w.err != nil {
		return
	}
	n, err := w.w.Write(b)
	if err == nil && n < len(b) {
		err = io.ErrShortWrite
	}
	if err != nil {
		w.err = fmt.Errorf("wire: write: %w", err)
	}
}

// U32 writes a 32-bit unsigned integer.
func (w *Writer) U32(v uint32) {
	binary.LittleEndian.PutUint32(w.scratch[:4], v)
	w.write(w.scratch[:4])
}

// U64 writes a 64-bit unsigned integer.
func (w *Writer) U64(v uint64) {
	binary.LittleEndian.PutUint64(w.scratch[:8], v)
	w.write(w.scratch[:8])
}

// I32 writes a 32-bit signed integer.
func (w *Writer) I32(v int32) { w.U32(uint32(v)) }

// I64 writes a 64-bit signed integer.
func (w *Writer) I64(v int64) { w.U64(uint64(v)) }

// F32 writes an IEEE 754 single-precision float.
func (w *Writer) F32(v float32) { w.U32(math.Float32bits(v)) }

// F64 writes an IEEE 754 double-precision float.
func (w *Writer) F64(v float64) { w.U64(math.Float64bits(v)) }

// Bytes writes a length-prefixed blob. A nil slice is written as absent;
// an empty non-nil slice is written with length zero.
func (w *Writer) Bytes(b []byte) {
	if b == nil {
		w.U64(AbsentLen)
		return
	}
	w.U64(uint64(len(b)))
	w.write(b)
}

// String writes a length-prefixed string. present=false writes the
// absent sentinel and ignores s.
func (w *Writer) String(s string, present bool) {
	if !present {
		w.U64(AbsentLen)
		return
	}
	w.U64(uint64(len(s)))
	w.write([]byte(s))
}

// Reader deserializes primitives from an underlying io.Reader.
//
// Errors are sticky, mirroring Writer: after the first failure every
// later call returns the zero value and Err reports the failure. A clean
// end of input before the first byte of a primitive surfaces as io.EOF;
// a partial primitive surfaces as io.ErrUnexpectedEOF. Both are fatal
// for the stream.
type Reader struct {
	r       io.Reader
	err     error
	scratch [8]byte
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Err returns the first read error, or nil.
func (r *Reader) Err() error { return r.err }

func (r *Reader) read(b []byte) bool {
	if r.err != nil {
		return false
	}
	if _, err := io.ReadFull(r.r, b); err != nil {
		if errors.Is(err, io.EOF) {
			r.err = io.EOF
		} else {
			r.err = fmt.Errorf("wire: read: %w", err)
		}
		return false
	}
	return true
}

// U32 reads a 32-bit unsigned integer.
func (r *Reader) U32() uint32 {
	if !r.read(r.scratch[:4]) {
		return 0
	}
	return binary.LittleEndian.Uint32(r.scratch[:4])
}

// U64 reads a 64-bit unsigned integer.
func (r *Reader) U64() uint64 {
	if !r.read(r.scratch[:8]) {
		return 0
	}
	return binary.LittleEndian.Uint64(r.scratch[:8])
}

// I32 reads a 32-bit signed integer.
func (r *Reader) I32() int32 { return int32(r.U32()) }

// I64 reads a 64-bit signed integer.
func (r *Reader) I64() int64 { return int64(r.U64()) }

// F32 reads an IEEE 754 single-precision float.
func (r *Reader) F32() float32 { return math.Float32frombits(r.U32()) }

// F64 reads an IEEE 754 double-precision float.
func (r *Reader) F64() float64 { return math.Float64frombits(r.U64()) }

// Bytes reads a length-prefixed blob. Returns nil for the absent
// sentinel and a non-nil empty slice for length zero.
func (r *Reader) Bytes() []byte {
	n := r.U64()
	if r.err != nil {
		return nil
	}
	if n == AbsentLen {
		return nil
	}
	if n > MaxBlobLen {
		r.err = fmt.Errorf("%w: blob length %d", ErrCorrupt, n)
		return nil
	}
	b := make([]byte, n)
	if !r.read(b) {
		// A header followed by missing payload is truncation, not a
		// clean end of stream.
		if errors.Is(r.err, io.EOF) {
			r.err = fmt.Errorf("wire: read: %w", io.ErrUnexpectedEOF)
		}
		return nil
	}
	return b
}

// String reads a length-prefixed string. present is false for the
// absent sentinel.
func (r *Reader) String() (s string, present bool) {
	b := r.Bytes()
	if b == nil {
		return "", false
	}
	return string(b), true
}
