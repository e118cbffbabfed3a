package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/audiotap/audiotap/internal/wire"
)

// Format faults. All are terminal: a decoder that returned one of these
// (or any other non-EOF error) keeps returning it.
var (
	ErrBadMagic    = errors.New("trace: not a trace file")
	ErrBadVersion  = errors.New("trace: unsupported format version")
	ErrUnknownKind = errors.New("trace: unrecognized event kind")
	ErrTruncated   = errors.New("trace: stream ends before end-of-stream event")
)

// zstdMagic are the first four bytes of a zstd frame.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// A DecodeError wraps a fault with the position it occurred at.
type DecodeError struct {
	Index int  // event index, -1 for header faults
	Kind  Kind // zero when the kind was not readable
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("trace header: %v", e.Err)
	}
	if e.Kind != 0 {
		return fmt.Sprintf("trace event %d (%s): %v", e.Index, e.Kind, e.Err)
	}
	return fmt.Sprintf("trace event %d: %v", e.Index, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decoder reads a trace stream single-pass. It is the replay-side
// authority on wire layout: it decodes exactly the fields the matching
// write produced, in declared order, with no lookahead.
//
// Decoder also owns the symbol table: Symbol events populate it, and
// every decoded stack frame gets its symbol attached when one is known.
type Decoder struct {
	file   io.Closer
	zr     *zstd.Decoder
	r      *wire.Reader
	header Header
	syms   map[uint64]string
	index  int
	done   bool
	err    error
}

// Open opens a trace file, transparently decompressing zstd, and reads
// the header.
func Open(path string) (*Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("trace: open %s: %w", path, err)
	}
	d, err := NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	d.file = f
	return d, nil
}

// NewDecoder reads the header from r and returns a Decoder over it.
func NewDecoder(r io.Reader) (*Decoder, error) {
	br := bufio.NewReader(r)
	d := &Decoder{syms: make(map[uint64]string)}

	head, err := br.Peek(4)
	if err != nil {
		return nil, &DecodeError{Index: -1, Err: fmt.Errorf("%w: %v", ErrBadMagic, err)}
	}
	src := io.Reader(br)
	if string(head) == string(zstdMagic) {
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, &DecodeError{Index: -1, Err: fmt.Errorf("trace: decompression: %w", err)}
		}
		d.zr = zr
		src = zr
	}
	d.r = wire.NewReader(src)

	if magic := d.r.U32(); d.r.Err() != nil || magic != Magic {
		return nil, &DecodeError{Index: -1, Err: ErrBadMagic}
	}
	d.header.Version = d.r.U32()
	if d.r.Err() != nil {
		return nil, &DecodeError{Index: -1, Err: ErrBadMagic}
	}
	if d.header.Version != Version {
		return nil, &DecodeError{Index: -1, Err: fmt.Errorf("%w: %d", ErrBadVersion, d.header.Version)}
	}
	var sess [16]byte
	if _, err := io.ReadFull(src, sess[:]); err != nil {
		return nil, &DecodeError{Index: -1, Err: fmt.Errorf("%w: %v", ErrBadMagic, err)}
	}
	d.header.Session, _ = uuid.FromBytes(sess[:])
	return d, nil
}

// Header returns the decoded file header.
func (d *Decoder) Header() Header { return d.header }

// Symbol returns the symbol recorded for a frame address, if the stream
// has declared one so far.
func (d *Decoder) Symbol(addr uint64) (string, bool) {
	s, ok := d.syms[addr]
	return s, ok
}

// Next returns the next event. After the end-of-stream event has been
// returned, Next returns io.EOF. Any other error is terminal and
// repeats on subsequent calls.
func (d *Decoder) Next() (*Event, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.done {
		return nil, io.EOF
	}

	e := &Event{Index: d.index}
	e.TimeMs = d.r.U32()
	if err := d.r.Err(); err != nil {
		// A clean EOF here means the stream stopped without its
		// terminator; that is truncation, not a normal end.
		if errors.Is(err, io.EOF) {
			err = ErrTruncated
		}
		return nil, d.fail(e, err)
	}
	e.Kind = Kind(d.r.U32())
	e.Thread = d.r.U32()
	if err := d.r.Err(); err != nil {
		return nil, d.fail(e, err)
	}

	desc, ok := Lookup(e.Kind)
	if !ok {
		return nil, d.fail(e, fmt.Errorf("%w: %d", ErrUnknownKind, uint32(e.Kind)))
	}

	stack, err := readStack(d.r)
	if err != nil {
		return nil, d.fail(e, err)
	}
	e.Stack = stack

	if e.Kind == KindStateChange {
		if err := d.readStateChange(e); err != nil {
			return nil, d.fail(e, err)
		}
	} else {
		if e.Args, err = readValues(d.r, desc.Args); err != nil {
			return nil, d.fail(e, err)
		}
		if e.Results, err = readValues(d.r, desc.Results); err != nil {
			return nil, d.fail(e, err)
		}
	}

	switch e.Kind {
	case KindSymbol:
		addr := uint64(e.Args[0].(U64))
		if s := e.Args[1].(Str); s.Present {
			d.syms[addr] = s.Val
		}
	case KindEos:
		d.done = true
	}

	for i := range e.Stack {
		if s, ok := d.syms[e.Stack[i].Addr]; ok {
			e.Stack[i].Symbol = s
		}
	}

	d.index++
	return e, nil
}

// readStateChange decodes the self-describing StateChange payload.
func (d *Decoder) readStateChange(e *Event) error {
	e.StateClass = Class(d.r.U32())
	e.StateID = d.r.U64()
	e.StateField = d.r.U32()
	vk := FieldKind(d.r.U32())
	if err := d.r.Err(); err != nil {
		return err
	}
	v, err := readValue(d.r, vk)
	if err != nil {
		return err
	}
	e.StateValue = v
	return nil
}

// fail records a terminal fault with its position.
func (d *Decoder) fail(e *Event, err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	d.err = &DecodeError{Index: e.Index, Kind: e.Kind, Err: err}
	return d.err
}

// Close releases the decompressor and the underlying file.
func (d *Decoder) Close() error {
	if d.zr != nil {
		d.zr.Close()
	}
	if d.file != nil {
		if err := d.file.Close(); err != nil {
			return fmt.Errorf("trace: close: %w", err)
		}
	}
	return nil
}
