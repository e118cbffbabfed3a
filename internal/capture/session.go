// Package capture implements the interception layer: a Session is a
// drop-in audio.Driver that records every call to a trace as a side
// effect of forwarding it to a real driver.
//
// One process-wide lock (per Session) serializes the full per-call
// sequence: timestamp, thread identity, call stack, arguments, the real
// call, results, the shadow diff pass, and the error poll. That trades
// capture-time parallelism for a strictly ordered single-writer stream,
// which everything downstream depends on.
//
// Sources and buffers handed to the application are dense virtual ids,
// not the driver's handles; devices and contexts keep the driver's
// handle value as their logical identity. A capture fault (failed trace
// write) aborts the observed process: a trace that is obviously
// truncated beats one that silently continues with corrupt bookkeeping.
package capture

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/audiotap/audiotap/internal/audio"
	"github.com/audiotap/audiotap/internal/ident"
	"github.com/audiotap/audiotap/internal/shadow"
	"github.com/audiotap/audiotap/internal/symbols"
	"github.com/audiotap/audiotap/internal/trace"
)

// Options configure a capture session.
type Options struct {
	// Stacks records a call stack on every application call.
	Stacks bool

	// StackDepth caps recorded stack depth. Zero means 16.
	StackDepth int

	// Compress writes the trace through zstd.
	Compress bool

	// Session is the id stamped into the trace header; zero generates
	// one.
	Session uuid.UUID

	// OnFatal is invoked on an unrecoverable capture fault, after a
	// best-effort close of the trace. The default panics, aborting the
	// observed process.
	OnFatal func(error)

	// NowMillis overrides the capture clock. Tests use this; the
	// default is wall time since session start.
	NowMillis func() uint32
}

// Session records every call against drv into a trace.
type Session struct {
	mu  sync.Mutex
	drv audio.Driver
	w   *trace.Writer

	nowMs   func() uint32
	stacks  bool
	syms    *symbols.Cache
	threads map[uint64]uint32

	devices  *ident.Direct[audio.Device]
	contexts *ident.Direct[audio.Context]
	sources  *ident.Table[audio.Source]
	buffers  *ident.Table[audio.Buffer]
	tracker  *shadow.Tracker

	cur     uint64 // logical id of the current context, 0 when unbound
	curReal audio.Context
	ctxDev  map[uint64]uint64 // context logical id -> device logical id

	// Session-side error latches. The real driver's latch is polled
	// (and therefore cleared) after every call, so the application's
	// view of first-unread-error-wins is reproduced here.
	devErr map[uint64]audio.ErrorCode
	ctxErr map[uint64]audio.ErrorCode

	onFatal func(error)
	failed  bool
	closed  bool
}

// Start opens a trace file at path and returns a Session recording
// every call against drv into it.
func Start(drv audio.Driver, path string, opts Options) (*Session, error) {
	w, err := trace.Create(path, trace.WriterOptions{Compress: opts.Compress, Session: opts.Session})
	if err != nil {
		return nil, err
	}
	return New(drv, w, opts), nil
}

// New returns a Session recording into an already-open trace writer.
func New(drv audio.Driver, w *trace.Writer, opts Options) *Session {
	s := &Session{
		drv:      drv,
		w:        w,
		stacks:   opts.Stacks,
		syms:     symbols.NewCache(opts.StackDepth),
		threads:  make(map[uint64]uint32),
		devices:  ident.NewDirect[audio.Device](audio.InvalidDevice),
		contexts: ident.NewDirect[audio.Context](audio.InvalidContext),
		sources:  ident.NewTable[audio.Source](audio.InvalidSource),
		buffers:  ident.NewTable[audio.Buffer](audio.InvalidBuffer),
		ctxDev:   make(map[uint64]uint64),
		devErr:   make(map[uint64]audio.ErrorCode),
		ctxErr:   make(map[uint64]audio.ErrorCode),
		onFatal:  opts.OnFatal,
	}
	if s.onFatal == nil {
		s.onFatal = func(err error) { panic(err) }
	}
	s.nowMs = opts.NowMillis
	if s.nowMs == nil {
		start := time.Now()
		s.nowMs = func() uint32 { return uint32(time.Since(start).Milliseconds()) }
	}
	s.tracker = shadow.New(drv, s.emitStateChange, func(b audio.Buffer) (uint32, bool) {
		return s.buffers.VirtualOf(b)
	})
	return s
}

// Close writes the end-of-stream record and closes the trace.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.failed {
		if err := s.w.WriteEos(s.nowMs()); err != nil {
			s.w.Close()
			return err
		}
	}
	return s.w.Close()
}

// SessionID returns the id stamped into the trace header.
func (s *Session) SessionID() uuid.UUID { return s.w.Session() }

// begin assembles the common record prefix for an application call:
// timestamp, remapped thread identity, and (when enabled) the call
// stack, writing first-seen symbols ahead of the record.
func (s *Session) begin(kind trace.Kind) *trace.Event {
	e := &trace.Event{
		TimeMs: s.nowMs(),
		Kind:   kind,
		Thread: s.thread(),
	}
	if s.stacks {
		// Skip begin and the Session method itself.
		addrs, fresh := s.syms.Collect(2)
		for _, sym := range fresh {
			s.write(&trace.Event{
				TimeMs: e.TimeMs,
				Kind:   trace.KindSymbol,
				Thread: e.Thread,
				Args:   []trace.Value{trace.U64(sym.Addr), trace.SomeStr(sym.Name)},
			})
		}
		frames := make([]trace.Frame, len(addrs))
		for i, a := range addrs {
			frames[i].Addr = a
		}
		e.Stack = frames
	}
	return e
}

// write appends one record, treating any failure as fatal.
func (s *Session) write(e *trace.Event) {
	if s.failed {
		return
	}
	if err := s.w.WriteEvent(e); err != nil {
		s.failed = true
		s.w.Close()
		s.onFatal(fmt.Errorf("capture: %w", err))
	}
}

// emitStateChange is the shadow tracker's sink.
func (s *Session) emitStateChange(class trace.Class, id uint64, field uint32, v trace.Value) {
	s.write(&trace.Event{
		TimeMs:     s.nowMs(),
		Kind:       trace.KindStateChange,
		Thread:     s.thread(),
		StateClass: class,
		StateID:    id,
		StateField: field,
		StateValue: v,
	})
}

// pollDevice drains the real driver's device latch into the session
// latch, recording a synthetic error event on a new fault. Returns the
// drained code so deletion paths can decide whether the call failed.
func (s *Session) pollDevice(logical uint64, real audio.Device) audio.ErrorCode {
	if real == audio.InvalidDevice {
		return audio.ErrNone
	}
	code := s.drv.DeviceError(real)
	if code == audio.ErrNone {
		return audio.ErrNone
	}
	if s.devErr[logical] == audio.ErrNone {
		s.devErr[logical] = code
	}
	s.write(&trace.Event{
		TimeMs: s.nowMs(),
		Kind:   trace.KindErrorRaised,
		Thread: s.thread(),
		Args: []trace.Value{
			trace.U32(uint32(trace.ClassDevice)),
			trace.U64(logical),
			trace.I32(int32(code)),
		},
	})
	return code
}

// pollContext does the same for a context latch. Returns the drained
// code so deletion paths can decide whether the call failed.
func (s *Session) pollContext(logical uint64, real audio.Context) audio.ErrorCode {
	if real == audio.InvalidContext || real == 0 {
		return audio.ErrNone
	}
	code := s.drv.ContextError(real)
	if code == audio.ErrNone {
		return audio.ErrNone
	}
	if s.ctxErr[logical] == audio.ErrNone {
		s.ctxErr[logical] = code
	}
	s.write(&trace.Event{
		TimeMs: s.nowMs(),
		Kind:   trace.KindErrorRaised,
		Thread: s.thread(),
		Args: []trace.Value{
			trace.U32(uint32(trace.ClassContext)),
			trace.U64(logical),
			trace.I32(int32(code)),
		},
	})
	return code
}

// pollCurrent polls the current context, if any.
func (s *Session) pollCurrent() audio.ErrorCode {
	if s.cur == 0 {
		return audio.ErrNone
	}
	return s.pollContext(s.cur, s.curReal)
}

// thread maps the calling goroutine to a small monotonic id. The OS
// thread is not stable under the Go scheduler, so the goroutine is the
// traced unit of concurrency.
func (s *Session) thread() uint32 {
	id := goid()
	if t, ok := s.threads[id]; ok {
		return t
	}
	t := uint32(len(s.threads)) + 1
	s.threads[id] = t
	return t
}

// goid parses the goroutine id out of the runtime.Stack header
// ("goroutine N [running]:"). There is no supported API for it.
func goid() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
