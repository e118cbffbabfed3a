// Package dump renders a trace stream as readable text, one line per
// event. Enum-valued fields print under their API names, object
// references print as their logical identities, and labels recorded by
// the application annotate every later mention of the labeled object.
package dump

import (
	"fmt"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/audiotap/audiotap/internal/audio"
	"github.com/audiotap/audiotap/internal/shadow"
	"github.com/audiotap/audiotap/internal/trace"
)

// Options select what a dump includes. Calls are always included.
type Options struct {
	Stacks       bool // call stacks, indented under their record
	StateChanges bool // implicit state changes found by the diff pass
	Errors       bool // latched-error records
	Annotations  bool // application scopes, messages, labels
}

// Dumper writes one trace as text.
type Dumper struct {
	w      io.Writer
	opts   Options
	labels map[labelKey]string

	// Stack frames repeat across nearly every record; their formatted
	// lines are cached by address.
	frames *lru.Cache[uint64, string]

	events int
	err    error
}

type labelKey struct {
	class trace.Class
	id    uint64
}

// frameCacheSize bounds the formatted-frame cache. Traces rarely touch
// more than a few hundred distinct addresses.
const frameCacheSize = 1024

// New returns a Dumper writing to w.
func New(w io.Writer, opts Options) *Dumper {
	frames, _ := lru.New[uint64, string](frameCacheSize)
	return &Dumper{
		w:      w,
		opts:   opts,
		labels: make(map[labelKey]string),
		frames: frames,
	}
}

// Run dumps every event from dec.
func (d *Dumper) Run(dec *trace.Decoder) error {
	for {
		e, err := dec.Next()
		if err == io.EOF {
			return d.err
		}
		if err != nil {
			return err
		}
		d.WriteEvent(e)
	}
}

// Events returns the number of events rendered so far.
func (d *Dumper) Events() int { return d.events }

// Line renders one event's body without the time/thread/index prefix
// and without writing it. Labels seen by WriteEvent still apply.
func (d *Dumper) Line(e *trace.Event) string { return d.body(e) }

// WriteEvent renders one event. Suppressed kinds still feed the label
// table so later references stay annotated.
func (d *Dumper) WriteEvent(e *trace.Event) {
	// The label table updates after rendering, so the label line
	// itself shows the bare reference.
	if e.Kind == trace.KindLabel {
		defer func() {
			k := labelKey{trace.Class(e.Args[0].(trace.U32)), uint64(e.Args[1].(trace.U64))}
			d.labels[k] = e.Args[2].(trace.Str).Val
		}()
	}

	switch {
	case e.Kind == trace.KindSymbol:
		return
	case e.Kind == trace.KindStateChange && !d.opts.StateChanges:
		return
	case e.Kind == trace.KindErrorRaised && !d.opts.Errors:
		return
	case e.Kind.IsAnnotation() && !d.opts.Annotations:
		return
	}

	d.printf("%dms t%d #%d %s\n", e.TimeMs, e.Thread, e.Index, d.body(e))
	d.events++

	if d.opts.Stacks {
		for _, fr := range e.Stack {
			d.printf("%s\n", d.frameLine(fr))
		}
	}
}

func (d *Dumper) printf(format string, args ...any) {
	if d.err != nil {
		return
	}
	_, d.err = fmt.Fprintf(d.w, format, args...)
}

func (d *Dumper) frameLine(fr trace.Frame) string {
	if s, ok := d.frames.Get(fr.Addr); ok {
		return s
	}
	var s string
	if fr.Symbol != "" {
		s = fmt.Sprintf("    at %s", fr.Symbol)
	} else {
		s = fmt.Sprintf("    at %#x", fr.Addr)
	}
	d.frames.Add(fr.Addr, s)
	return s
}

func (d *Dumper) body(e *trace.Event) string {
	switch e.Kind {
	case trace.KindStateChange:
		return fmt.Sprintf("state %s = %s",
			d.object(e.StateClass, e.StateID, shadow.FieldName(e.StateField)),
			value(e.StateValue))
	case trace.KindErrorRaised:
		class := trace.Class(e.Args[0].(trace.U32))
		id := uint64(e.Args[1].(trace.U64))
		code := audio.ErrorCode(e.Args[2].(trace.I32))
		return fmt.Sprintf("error %s %s", d.ref(class, id), code)
	case trace.KindScopePush:
		return fmt.Sprintf("scope push %q", e.Args[0].(trace.Str).Val)
	case trace.KindScopePop:
		return "scope pop"
	case trace.KindMessage:
		return fmt.Sprintf("message %q", e.Args[0].(trace.Str).Val)
	case trace.KindLabel:
		class := trace.Class(e.Args[0].(trace.U32))
		id := uint64(e.Args[1].(trace.U64))
		return fmt.Sprintf("label %s %q", d.ref(class, id), e.Args[2].(trace.Str).Val)
	case trace.KindEos:
		return "eos"
	}

	s := e.Kind.Name() + "(" + d.args(e) + ")"
	if len(e.Results) > 0 {
		s += " -> " + d.result(e)
	}
	return s
}

// object renders "<class> <id> <field>" with any recorded label.
func (d *Dumper) object(class trace.Class, id uint64, field string) string {
	return d.ref(class, id) + " " + field
}

// ref renders an object reference, attaching the application's label
// when one was recorded.
func (d *Dumper) ref(class trace.Class, id uint64) string {
	var s string
	switch class {
	case trace.ClassDevice, trace.ClassContext:
		s = fmt.Sprintf("%s %#x", class, id)
	default:
		s = fmt.Sprintf("%s %d", class, id)
	}
	if l, ok := d.labels[labelKey{class, id}]; ok {
		s += fmt.Sprintf(" (%s)", l)
	}
	return s
}

// args renders the argument list, substituting API names for
// enum-valued positions.
func (d *Dumper) args(e *trace.Event) string {
	var out string
	for i, v := range e.Args {
		if i > 0 {
			out += ", "
		}
		out += d.argString(e, i, v)
	}
	return out
}

func (d *Dumper) argString(e *trace.Event, i int, v trace.Value) string {
	switch e.Kind {
	case trace.KindSetDistanceModel:
		return audio.DistanceModel(v.(trace.I32)).String()
	case trace.KindSetListenerf, trace.KindSetListener3f, trace.KindSetListenerfv,
		trace.KindGetListenerf, trace.KindGetListener3f, trace.KindGetListenerfv:
		if i == 0 {
			return audio.Param(v.(trace.I32)).String()
		}
	case trace.KindSetSourcef, trace.KindSetSource3f, trace.KindSetSourcei,
		trace.KindGetSourcef, trace.KindGetSource3f, trace.KindGetSourcei,
		trace.KindGetBufferi:
		if i == 1 {
			return audio.Param(v.(trace.I32)).String()
		}
	case trace.KindBufferData:
		if i == 1 {
			return audio.Format(v.(trace.I32)).String()
		}
	}
	return value(v)
}

func (d *Dumper) result(e *trace.Event) string {
	v := e.Results[0]
	switch e.Kind {
	case trace.KindDeviceError, trace.KindContextError:
		return audio.ErrorCode(v.(trace.I32)).String()
	case trace.KindGetDistanceModel:
		return audio.DistanceModel(v.(trace.I32)).String()
	case trace.KindGetSourcei:
		if audio.Param(e.Args[1].(trace.I32)) == audio.ParamSourceState {
			return audio.SourceState(v.(trace.I32)).String()
		}
	}
	return value(v)
}

// value renders one wire value.
func value(v trace.Value) string {
	switch x := v.(type) {
	case trace.U32:
		return fmt.Sprintf("%d", uint32(x))
	case trace.U64:
		return fmt.Sprintf("%#x", uint64(x))
	case trace.I32:
		return fmt.Sprintf("%d", int32(x))
	case trace.F32:
		return fmt.Sprintf("%g", float32(x))
	case trace.F64:
		return fmt.Sprintf("%g", float64(x))
	case trace.Str:
		if !x.Present {
			return "nil"
		}
		return fmt.Sprintf("%q", x.Val)
	case trace.Blob:
		if x == nil {
			return "nil"
		}
		return fmt.Sprintf("blob[%d]", len(x))
	case trace.Vec3:
		return fmt.Sprintf("(%g, %g, %g)", x[0], x[1], x[2])
	case trace.U32Vec:
		return fmt.Sprintf("%v", []uint32(x))
	case trace.I32Vec:
		return fmt.Sprintf("%v", []int32(x))
	case trace.F32Vec:
		return fmt.Sprintf("%v", []float32(x))
	default:
		return fmt.Sprintf("%v", v)
	}
}
