package trace

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/audiotap/audiotap/internal/wire"
)

// WriterOptions configure trace creation.
type WriterOptions struct {
	// Compress wraps the stream in a zstd frame. Readers detect this
	// from the file's first bytes.
	Compress bool

	// Session identifies the capture run in the header. Zero means
	// generate one.
	Session uuid.UUID
}

// Writer serializes an event stream to a trace file.
//
// Each record is staged in a pooled buffer and handed to the underlying
// writer in one call, so a crash mid-capture leaves a trace that is
// truncated at a record boundary rather than inside one. Writer is not
// safe for concurrent use; the capture lock serializes callers.
type Writer struct {
	file    io.Closer
	zw      *zstd.Encoder
	out     io.Writer
	pool    *wire.Pool
	rec     recBuf
	ww      *wire.Writer
	session uuid.UUID
	events  int
	closed  bool
}

// recBuf is an append-only byte sink for record staging.
type recBuf struct {
	b []byte
}

func (rb *recBuf) Write(p []byte) (int, error) {
	rb.b = append(rb.b, p...)
	return len(p), nil
}

// Create opens path for writing and emits the trace header.
func Create(path string, opts WriterOptions) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("trace: create %s: %w", path, err)
	}
	w, err := NewWriter(f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.file = f
	return w, nil
}

// NewWriter emits the trace header to out and returns a Writer over it.
func NewWriter(out io.Writer, opts WriterOptions) (*Writer, error) {
	w := &Writer{
		out:     out,
		pool:    wire.NewPool(4),
		session: opts.Session,
	}
	if w.session == uuid.Nil {
		w.session = uuid.New()
	}
	if opts.Compress {
		zw, err := zstd.NewWriter(out)
		if err != nil {
			return nil, fmt.Errorf("trace: compression: %w", err)
		}
		w.zw = zw
		w.out = zw
	}
	w.ww = wire.NewWriter(&w.rec)

	w.rec.b = w.pool.Get()
	w.ww.U32(Magic)
	w.ww.U32(Version)
	sess, _ := w.session.MarshalBinary()
	w.rec.b = append(w.rec.b, sess...)
	if err := w.flushRecord(); err != nil {
		return nil, err
	}
	return w, nil
}

// Session returns the header's session id.
func (w *Writer) Session() uuid.UUID { return w.session }

// Events returns the number of records written so far.
func (w *Writer) Events() int { return w.events }

// WriteEvent appends one record. The event's Args and Results must
// match the kind's descriptor; StateChange events use the State fields
// instead.
func (w *Writer) WriteEvent(e *Event) error {
	if w.closed {
		return fmt.Errorf("trace: write after close")
	}
	d, ok := Lookup(e.Kind)
	if !ok {
		return fmt.Errorf("trace: unknown event kind %d", e.Kind)
	}

	w.rec.b = w.pool.Get()
	w.ww.U32(e.TimeMs)
	w.ww.U32(uint32(e.Kind))
	w.ww.U32(e.Thread)
	writeStack(w.ww, e.Stack)

	if e.Kind == KindStateChange {
		if err := w.writeStateChange(e); err != nil {
			return err
		}
	} else {
		if err := writeValues(w.ww, d.Name, d.Args, e.Args); err != nil {
			return err
		}
		if err := writeValues(w.ww, d.Name, d.Results, e.Results); err != nil {
			return err
		}
	}

	if err := w.flushRecord(); err != nil {
		return err
	}
	w.events++
	return nil
}

// writeStateChange emits the self-describing StateChange payload:
// object class, object identity, field tag, value kind, value.
func (w *Writer) writeStateChange(e *Event) error {
	if e.StateValue == nil {
		return fmt.Errorf("trace: StateChange without value")
	}
	vk := kindOf(e.StateValue)
	if vk == 0 {
		return fmt.Errorf("trace: StateChange value %T is not a wire type", e.StateValue)
	}
	w.ww.U32(uint32(e.StateClass))
	w.ww.U64(e.StateID)
	w.ww.U32(e.StateField)
	w.ww.U32(uint32(vk))
	writeValue(w.ww, e.StateValue)
	return nil
}

// flushRecord writes the staged record in one call and recycles the
// staging buffer.
func (w *Writer) flushRecord() error {
	if err := w.ww.Err(); err != nil {
		return err
	}
	n, err := w.out.Write(w.rec.b)
	if err == nil && n < len(w.rec.b) {
		err = io.ErrShortWrite
	}
	w.pool.Put(w.rec.b)
	w.rec.b = nil
	if err != nil {
		return fmt.Errorf("trace: write record: %w", err)
	}
	return nil
}

// WriteEos appends the terminal end-of-stream record.
func (w *Writer) WriteEos(timeMs uint32) error {
	return w.WriteEvent(&Event{TimeMs: timeMs, Kind: KindEos})
}

// Close flushes compression and closes the underlying file, if Create
// opened one. Close does not write an end-of-stream record; callers do
// that explicitly so the final timestamp is theirs.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	var first error
	if w.zw != nil {
		if err := w.zw.Close(); err != nil {
			first = fmt.Errorf("trace: close compression: %w", err)
		}
	}
	if w.file != nil {
		if err := w.file.Close(); err != nil && first == nil {
			first = fmt.Errorf("trace: close: %w", err)
		}
	}
	return first
}
