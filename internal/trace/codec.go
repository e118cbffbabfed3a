package trace

import (
	"fmt"

	"github.com/audiotap/audiotap/internal/wire"
)

// noStack is the on-wire frame count meaning "no stack recorded".
// Distinct from 0, which is a recorded-but-empty stack.
const noStack = ^uint32(0)

// maxVec bounds counted vectors; anything larger is corruption.
const maxVec = 1 << 24

// writeValue appends one field. The caller has already checked that the
// value's type matches the declared kind.
func writeValue(w *wire.Writer, v Value) {
	switch v := v.(type) {
	case U32:
		w.U32(uint32(v))
	case U64:
		w.U64(uint64(v))
	case I32:
		w.I32(int32(v))
	case F32:
		w.F32(float32(v))
	case F64:
		w.F64(float64(v))
	case Str:
		w.String(v.Val, v.Present)
	case Blob:
		w.Bytes(v)
	case Vec3:
		w.F32(v[0])
		w.F32(v[1])
		w.F32(v[2])
	case U32Vec:
		w.U32(uint32(len(v)))
		for _, x := range v {
			w.U32(x)
		}
	case I32Vec:
		w.U32(uint32(len(v)))
		for _, x := range v {
			w.I32(x)
		}
	case F32Vec:
		w.U32(uint32(len(v)))
		for _, x := range v {
			w.F32(x)
		}
	}
}

// writeValues checks each value against the declared field list and
// appends them in order. A mismatch is a bug in the caller, not stream
// corruption, and is reported as an error before anything is written.
func writeValues(w *wire.Writer, name string, kinds []FieldKind, vals []Value) error {
	if len(kinds) != len(vals) {
		return fmt.Errorf("trace: %s: %d fields declared, %d given", name, len(kinds), len(vals))
	}
	for i, v := range vals {
		if kindOf(v) != kinds[i] {
			return fmt.Errorf("trace: %s: field %d is %T, descriptor wants kind %d", name, i, v, kinds[i])
		}
	}
	for _, v := range vals {
		writeValue(w, v)
	}
	return nil
}

// readValue decodes one field of the given kind.
func readValue(r *wire.Reader, k FieldKind) (Value, error) {
	switch k {
	case FieldU32:
		return U32(r.U32()), r.Err()
	case FieldU64:
		return U64(r.U64()), r.Err()
	case FieldI32:
		return I32(r.I32()), r.Err()
	case FieldF32:
		return F32(r.F32()), r.Err()
	case FieldF64:
		return F64(r.F64()), r.Err()
	case FieldStr:
		s, ok := r.String()
		return Str{Val: s, Present: ok}, r.Err()
	case FieldBlob:
		return Blob(r.Bytes()), r.Err()
	case FieldVec3:
		var v Vec3
		v[0] = r.F32()
		v[1] = r.F32()
		v[2] = r.F32()
		return v, r.Err()
	case FieldU32Vec:
		n := r.U32()
		if n > maxVec {
			return nil, fmt.Errorf("%w: vector length %d", wire.ErrCorrupt, n)
		}
		v := make(U32Vec, n)
		for i := range v {
			v[i] = r.U32()
		}
		return v, r.Err()
	case FieldI32Vec:
		n := r.U32()
		if n > maxVec {
			return nil, fmt.Errorf("%w: vector length %d", wire.ErrCorrupt, n)
		}
		v := make(I32Vec, n)
		for i := range v {
			v[i] = r.I32()
		}
		return v, r.Err()
	case FieldF32Vec:
		n := r.U32()
		if n > maxVec {
			return nil, fmt.Errorf("%w: vector length %d", wire.ErrCorrupt, n)
		}
		v := make(F32Vec, n)
		for i := range v {
			v[i] = r.F32()
		}
		return v, r.Err()
	default:
		return nil, fmt.Errorf("%w: field kind %d", wire.ErrCorrupt, k)
	}
}

// readValues decodes a declared field list in order.
func readValues(r *wire.Reader, kinds []FieldKind) ([]Value, error) {
	if len(kinds) == 0 {
		return nil, nil
	}
	vals := make([]Value, 0, len(kinds))
	for _, k := range kinds {
		v, err := readValue(r, k)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return vals, nil
}

// writeStack appends the per-record stack field: noStack when the
// record carries none, else a count and the raw frame addresses.
func writeStack(w *wire.Writer, frames []Frame) {
	if frames == nil {
		w.U32(noStack)
		return
	}
	w.U32(uint32(len(frames)))
	for _, f := range frames {
		w.U64(f.Addr)
	}
}

// readStack decodes the per-record stack field. Symbols are attached by
// the decoder afterwards.
func readStack(r *wire.Reader) ([]Frame, error) {
	n := r.U32()
	if err := r.Err(); err != nil {
		return nil, err
	}
	if n == noStack {
		return nil, nil
	}
	if n > maxVec {
		return nil, fmt.Errorf("%w: stack depth %d", wire.ErrCorrupt, n)
	}
	frames := make([]Frame, n)
	for i := range frames {
		frames[i].Addr = r.U64()
	}
	return frames, r.Err()
}
