// Package playback re-executes a recorded trace against a live driver.
//
// The player walks the event stream single-pass, pacing each event to
// its recorded timestamp, translating logical identities to the replay
// run's fresh handles, and comparing what the driver does now against
// what the trace says happened then. Mismatches are divergences: they
// are reported and, outside strict mode, replay continues degraded
// rather than stopping, because a partial reproduction is usually more
// useful than none.
//
// Resource acquisition gets one deterministic fallback each: a device
// that fails to open under its recorded name is retried once as the
// default device, and a context that fails under its recorded
// attributes is retried once with none. Objects that still cannot be
// acquired are marked dead and every event touching them is skipped.
package playback

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/audiotap/audiotap/internal/audio"
	"github.com/audiotap/audiotap/internal/ident"
	"github.com/audiotap/audiotap/internal/trace"
)

// Options configure a replay.
type Options struct {
	// Speed scales pacing: 1 replays at the recorded pace, 2 at twice
	// it. Zero disables pacing entirely.
	Speed float64

	// Strict stops at the first divergence instead of continuing
	// degraded.
	Strict bool

	// Device overrides every recorded device name on open. Empty keeps
	// the recorded names.
	Device string

	// Clock overrides the pacing clock. Nil means wall time.
	Clock Clock

	// OnDivergence is called for every divergence as it is found, in
	// stream order. May be nil.
	OnDivergence func(Divergence)
}

// Divergence is one observed difference between the recorded run and
// this one.
type Divergence struct {
	Index  int
	Kind   trace.Kind
	Detail string
}

// Report summarizes one replay.
type Report struct {
	Events       int // events decoded, terminator included
	Calls        int // driver calls performed
	Skipped      int // calls suppressed because their object is dead
	Fallbacks    int // acquisition fallbacks taken
	StateChanges int // recorded implicit state changes seen
	Divergences  []Divergence
	Duration     time.Duration
}

// Player replays one trace against one driver. A Player is single-use.
type Player struct {
	drv    audio.Driver
	clock  Clock
	speed  float64
	strict bool
	device string
	onDiv  func(Divergence)

	devices  *ident.Direct[audio.Device]
	contexts *ident.Direct[audio.Context]
	sources  *ident.Table[audio.Source]
	buffers  *ident.Table[audio.Buffer]
	ctxDev   map[uint64]uint64

	deadDev map[uint64]bool
	deadCtx map[uint64]bool

	cur     uint64
	curReal audio.Context
	curDead bool

	// Replay-side error latches, mirroring the capture session's:
	// polled driver errors stick here until the trace's matching error
	// query serves them.
	devErr map[uint64]audio.ErrorCode
	ctxErr map[uint64]audio.ErrorCode

	report Report
}

// New returns a Player replaying into drv.
func New(drv audio.Driver, opts Options) *Player {
	p := &Player{
		drv:      drv,
		clock:    opts.Clock,
		speed:    opts.Speed,
		strict:   opts.Strict,
		device:   opts.Device,
		onDiv:    opts.OnDivergence,
		devices:  ident.NewDirect[audio.Device](audio.InvalidDevice),
		contexts: ident.NewDirect[audio.Context](audio.InvalidContext),
		sources:  ident.NewTable[audio.Source](audio.InvalidSource),
		buffers:  ident.NewTable[audio.Buffer](audio.InvalidBuffer),
		ctxDev:   make(map[uint64]uint64),
		deadDev:  make(map[uint64]bool),
		deadCtx:  make(map[uint64]bool),
		devErr:   make(map[uint64]audio.ErrorCode),
		ctxErr:   make(map[uint64]audio.ErrorCode),
	}
	if p.clock == nil {
		p.clock = realClock{}
	}
	return p
}

// Play replays the stream from dec until its terminator. The returned
// Report is valid even when the error is not nil.
func (p *Player) Play(ctx context.Context, dec *trace.Decoder) (*Report, error) {
	start := p.clock.Now()
	defer func() { p.report.Duration = p.clock.Now().Sub(start) }()

	for {
		e, err := dec.Next()
		if err == io.EOF {
			return &p.report, nil
		}
		if err != nil {
			return &p.report, newBadTrace(err)
		}
		p.report.Events++

		if p.speed > 0 {
			target := start.Add(time.Duration(float64(e.TimeMs) * float64(time.Millisecond) / p.speed))
			if wait := target.Sub(p.clock.Now()); wait > 0 {
				if err := p.clock.Sleep(ctx, wait); err != nil {
					return &p.report, err
				}
			}
		} else if err := ctx.Err(); err != nil {
			return &p.report, err
		}

		if err := p.apply(e); err != nil {
			return &p.report, err
		}
	}
}

// diverge records one divergence. In strict mode it returns an error
// that stops the replay.
func (p *Player) diverge(e *trace.Event, format string, args ...any) error {
	d := Divergence{Index: e.Index, Kind: e.Kind, Detail: fmt.Sprintf(format, args...)}
	p.report.Divergences = append(p.report.Divergences, d)
	if p.onDiv != nil {
		p.onDiv(d)
	}
	if p.strict {
		return newDiverged(d)
	}
	return nil
}

func (p *Player) skip() {
	p.report.Skipped++
}

// pollCur drains the current context's driver latch into the replay
// latch, returning the drained code.
func (p *Player) pollCur() audio.ErrorCode {
	if p.cur == 0 || p.curDead {
		return audio.ErrNone
	}
	code := p.drv.ContextError(p.curReal)
	if code != audio.ErrNone && p.ctxErr[p.cur] == audio.ErrNone {
		p.ctxErr[p.cur] = code
	}
	return code
}

// pollDev does the same for a device latch.
func (p *Player) pollDev(logical uint64) audio.ErrorCode {
	real := p.devices.Resolve(logical)
	if real == audio.InvalidDevice {
		return audio.ErrNone
	}
	code := p.drv.DeviceError(real)
	if code != audio.ErrNone && p.devErr[logical] == audio.ErrNone {
		p.devErr[logical] = code
	}
	return code
}

func (p *Player) apply(e *trace.Event) error {
	switch e.Kind {
	case trace.KindOpenDevice:
		return p.openDevice(e)
	case trace.KindCloseDevice:
		return p.closeDevice(e)
	case trace.KindDeviceError:
		return p.deviceError(e)
	case trace.KindCreateContext:
		return p.createContext(e)
	case trace.KindMakeContextCurrent:
		return p.makeCurrent(e)
	case trace.KindDestroyContext:
		return p.destroyContext(e)
	case trace.KindCurrentContext:
		recorded := uint64(e.Results[0].(trace.U64))
		if p.cur != recorded {
			return p.diverge(e, "current context %#x, recorded %#x", p.cur, recorded)
		}
		return nil
	case trace.KindContextError:
		return p.contextError(e)

	case trace.KindStateChange:
		p.report.StateChanges++
		return nil
	case trace.KindErrorRaised:
		return p.errorRaised(e)
	case trace.KindSymbol,
		trace.KindScopePush, trace.KindScopePop, trace.KindMessage, trace.KindLabel,
		trace.KindEos:
		return nil
	}

	// Everything below operates under the current context.
	if p.curDead {
		p.skip()
		return nil
	}
	p.report.Calls++

	switch e.Kind {
	case trace.KindSetDistanceModel:
		p.drv.SetDistanceModel(audio.DistanceModel(e.Args[0].(trace.I32)))
	case trace.KindGetDistanceModel:
		got := trace.I32(p.drv.DistanceModel())
		if err := p.check(e, got, e.Results[0]); err != nil {
			return err
		}
	case trace.KindSetDopplerFactor:
		p.drv.SetDopplerFactor(float32(e.Args[0].(trace.F32)))
	case trace.KindGetDopplerFactor:
		if err := p.check(e, trace.F32(p.drv.DopplerFactor()), e.Results[0]); err != nil {
			return err
		}
	case trace.KindSetDopplerVelocity:
		p.drv.SetDopplerVelocity(float32(e.Args[0].(trace.F32)))
	case trace.KindGetDopplerVelocity:
		if err := p.check(e, trace.F32(p.drv.DopplerVelocity()), e.Results[0]); err != nil {
			return err
		}
	case trace.KindSetSpeedOfSound:
		p.drv.SetSpeedOfSound(float32(e.Args[0].(trace.F32)))
	case trace.KindGetSpeedOfSound:
		if err := p.check(e, trace.F32(p.drv.SpeedOfSound()), e.Results[0]); err != nil {
			return err
		}

	case trace.KindSetListenerf:
		p.drv.SetListenerf(param(e, 0), float32(e.Args[1].(trace.F32)))
	case trace.KindSetListener3f:
		v := e.Args[1].(trace.Vec3)
		p.drv.SetListener3f(param(e, 0), v[0], v[1], v[2])
	case trace.KindSetListenerfv:
		p.drv.SetListenerfv(param(e, 0), e.Args[1].(trace.F32Vec))
	case trace.KindGetListenerf:
		if err := p.check(e, trace.F32(p.drv.GetListenerf(param(e, 0))), e.Results[0]); err != nil {
			return err
		}
	case trace.KindGetListener3f:
		var v trace.Vec3
		v[0], v[1], v[2] = p.drv.GetListener3f(param(e, 0))
		if err := p.check(e, v, e.Results[0]); err != nil {
			return err
		}
	case trace.KindGetListenerfv:
		got := trace.F32Vec(p.drv.GetListenerfv(param(e, 0)))
		if err := p.check(e, got, e.Results[0]); err != nil {
			return err
		}

	case trace.KindGenSources:
		return p.genSources(e)
	case trace.KindDeleteSources:
		return p.deleteSources(e)
	case trace.KindSourcePlay:
		p.drv.SourcePlay(p.source(e, 0))
	case trace.KindSourceStop:
		p.drv.SourceStop(p.source(e, 0))
	case trace.KindSourcePause:
		p.drv.SourcePause(p.source(e, 0))
	case trace.KindSourceRewind:
		p.drv.SourceRewind(p.source(e, 0))
	case trace.KindSetSourcef:
		p.drv.SetSourcef(p.source(e, 0), param(e, 1), float32(e.Args[2].(trace.F32)))
	case trace.KindSetSource3f:
		v := e.Args[2].(trace.Vec3)
		p.drv.SetSource3f(p.source(e, 0), param(e, 1), v[0], v[1], v[2])
	case trace.KindSetSourcei:
		return p.setSourcei(e)
	case trace.KindGetSourcef:
		got := trace.F32(p.drv.GetSourcef(p.source(e, 0), param(e, 1)))
		if err := p.check(e, got, e.Results[0]); err != nil {
			return err
		}
	case trace.KindGetSource3f:
		var v trace.Vec3
		v[0], v[1], v[2] = p.drv.GetSource3f(p.source(e, 0), param(e, 1))
		if err := p.check(e, v, e.Results[0]); err != nil {
			return err
		}
	case trace.KindGetSourcei:
		return p.getSourcei(e)
	case trace.KindSourceQueueBuffers:
		vids := e.Args[1].(trace.U32Vec)
		reals := make([]audio.Buffer, len(vids))
		for i, vid := range vids {
			reals[i] = p.buffers.Resolve(vid)
		}
		p.drv.SourceQueueBuffers(p.source(e, 0), reals)
	case trace.KindSourceUnqueueBuffers:
		return p.unqueueBuffers(e)

	case trace.KindGenBuffers:
		return p.genBuffers(e)
	case trace.KindDeleteBuffers:
		return p.deleteBuffers(e)
	case trace.KindBufferData:
		p.drv.BufferData(
			p.buffers.Resolve(uint32(e.Args[0].(trace.U32))),
			audio.Format(e.Args[1].(trace.I32)),
			e.Args[2].(trace.Blob),
			int32(e.Args[3].(trace.I32)),
		)
	case trace.KindGetBufferi:
		got := trace.I32(p.drv.GetBufferi(p.buffers.Resolve(uint32(e.Args[0].(trace.U32))), param(e, 1)))
		if err := p.check(e, got, e.Results[0]); err != nil {
			return err
		}
	}

	p.pollCur()
	return nil
}

func (p *Player) openDevice(e *trace.Event) error {
	name := e.Args[0].(trace.Str).Val
	if p.device != "" {
		name = p.device
	}
	logical := uint64(e.Results[0].(trace.U64))
	if logical == 0 {
		// The recorded open failed; there is no identity to satisfy.
		p.skip()
		return nil
	}
	p.report.Calls++
	real := p.drv.OpenDevice(name)
	if real == 0 && name != "" {
		p.report.Fallbacks++
		if err := p.diverge(e, "device %q unavailable, falling back to default device", name); err != nil {
			return err
		}
		real = p.drv.OpenDevice("")
	}
	if real == 0 {
		p.deadDev[logical] = true
		return p.diverge(e, "no device available for recorded device %#x", logical)
	}
	if err := p.devices.Put(logical, real); err != nil {
		return newDesync(e, err.Error())
	}
	return nil
}

func (p *Player) closeDevice(e *trace.Event) error {
	logical := uint64(e.Args[0].(trace.U64))
	recorded := uint32(e.Results[0].(trace.U32)) != 0
	if p.deadDev[logical] {
		p.skip()
		delete(p.deadDev, logical)
		return nil
	}
	p.report.Calls++
	ok := p.drv.CloseDevice(p.devices.Resolve(logical))
	if !ok {
		p.pollDev(logical)
	}
	if ok != recorded {
		if err := p.diverge(e, "close device %#x: got %v, recorded %v", logical, ok, recorded); err != nil {
			return err
		}
	}
	if ok {
		if err := p.devices.Release(logical); err != nil {
			return newDesync(e, err.Error())
		}
		delete(p.devErr, logical)
	}
	return nil
}

func (p *Player) deviceError(e *trace.Event) error {
	logical := uint64(e.Args[0].(trace.U64))
	recorded := audio.ErrorCode(e.Results[0].(trace.I32))
	if p.deadDev[logical] {
		p.skip()
		return nil
	}
	p.report.Calls++
	p.pollDev(logical)
	code := p.devErr[logical]
	// An unresolvable handle answers INVALID_NAME, same as the
	// recording side did.
	if p.devices.Resolve(logical) == audio.InvalidDevice {
		code = audio.ErrInvalidName
	}
	delete(p.devErr, logical)
	if code != recorded {
		return p.diverge(e, "device %#x error: got %v, recorded %v", logical, code, recorded)
	}
	return nil
}

func (p *Player) createContext(e *trace.Event) error {
	devLogical := uint64(e.Args[0].(trace.U64))
	attrs := e.Args[1].(trace.I32Vec)
	logical := uint64(e.Results[0].(trace.U64))
	if logical == 0 {
		p.skip()
		return nil
	}
	if p.deadDev[devLogical] {
		p.deadCtx[logical] = true
		p.skip()
		return nil
	}
	p.report.Calls++
	realDev := p.devices.Resolve(devLogical)
	real := p.drv.CreateContext(realDev, attrs)
	if real == 0 && len(attrs) > 0 {
		p.report.Fallbacks++
		p.pollDev(devLogical)
		if err := p.diverge(e, "context creation failed with recorded attributes, retrying without"); err != nil {
			return err
		}
		real = p.drv.CreateContext(realDev, nil)
	}
	if real == 0 {
		p.deadCtx[logical] = true
		p.pollDev(devLogical)
		return p.diverge(e, "no context for recorded context %#x", logical)
	}
	if err := p.contexts.Put(logical, real); err != nil {
		return newDesync(e, err.Error())
	}
	p.ctxDev[logical] = devLogical
	return nil
}

func (p *Player) makeCurrent(e *trace.Event) error {
	logical := uint64(e.Args[0].(trace.U64))
	recorded := uint32(e.Results[0].(trace.U32)) != 0
	if logical == 0 {
		p.report.Calls++
		ok := p.drv.MakeContextCurrent(0)
		p.cur, p.curReal, p.curDead = 0, 0, false
		if ok != recorded {
			return p.diverge(e, "unbind context: got %v, recorded %v", ok, recorded)
		}
		return nil
	}
	if p.deadCtx[logical] {
		// The degraded stretch follows the trace's notion of what is
		// current so later skips line up.
		p.cur, p.curReal, p.curDead = logical, 0, true
		p.skip()
		return nil
	}
	p.report.Calls++
	real := p.contexts.Resolve(logical)
	ok := p.drv.MakeContextCurrent(real)
	if ok {
		p.cur, p.curReal, p.curDead = logical, real, false
	}
	if ok != recorded {
		return p.diverge(e, "bind context %#x: got %v, recorded %v", logical, ok, recorded)
	}
	return nil
}

func (p *Player) destroyContext(e *trace.Event) error {
	logical := uint64(e.Args[0].(trace.U64))
	if p.deadCtx[logical] {
		delete(p.deadCtx, logical)
		if p.cur == logical {
			p.cur, p.curReal, p.curDead = 0, 0, false
		}
		p.skip()
		return nil
	}
	p.report.Calls++
	real := p.contexts.Resolve(logical)
	p.drv.DestroyContext(real)
	if !p.contexts.Live(logical) {
		return nil
	}
	devLogical := p.ctxDev[logical]
	if p.pollDev(devLogical) != audio.ErrNone {
		return nil
	}
	if err := p.contexts.Release(logical); err != nil {
		return newDesync(e, err.Error())
	}
	delete(p.ctxDev, logical)
	delete(p.ctxErr, logical)
	if p.cur == logical {
		p.cur, p.curReal, p.curDead = 0, 0, false
	}
	return nil
}

func (p *Player) contextError(e *trace.Event) error {
	logical := uint64(e.Args[0].(trace.U64))
	recorded := audio.ErrorCode(e.Results[0].(trace.I32))
	if p.deadCtx[logical] {
		p.skip()
		return nil
	}
	p.report.Calls++
	real := p.contexts.Resolve(logical)
	if real != audio.InvalidContext {
		if code := p.drv.ContextError(real); code != audio.ErrNone && p.ctxErr[logical] == audio.ErrNone {
			p.ctxErr[logical] = code
		}
	}
	code := p.ctxErr[logical]
	if real == audio.InvalidContext {
		code = audio.ErrInvalidName
	}
	delete(p.ctxErr, logical)
	if code != recorded {
		return p.diverge(e, "context %#x error: got %v, recorded %v", logical, code, recorded)
	}
	return nil
}

// errorRaised cross-checks a recorded capture-time fault against the
// replay latch populated by the poll that followed the faulting call.
func (p *Player) errorRaised(e *trace.Event) error {
	class := trace.Class(e.Args[0].(trace.U32))
	id := uint64(e.Args[1].(trace.U64))
	code := audio.ErrorCode(e.Args[2].(trace.I32))
	switch class {
	case trace.ClassDevice:
		if p.deadDev[id] {
			return nil
		}
		if p.devErr[id] != code {
			return p.diverge(e, "recorded device error %v not observed (latch holds %v)", code, p.devErr[id])
		}
	case trace.ClassContext:
		if p.deadCtx[id] {
			return nil
		}
		if p.ctxErr[id] != code {
			return p.diverge(e, "recorded context error %v not observed (latch holds %v)", code, p.ctxErr[id])
		}
	}
	return nil
}

func (p *Player) genSources(e *trace.Event) error {
	n := int(e.Args[0].(trace.I32))
	vids := e.Results[0].(trace.U32Vec)
	reals := p.drv.GenSources(n)
	p.pollCur()
	if len(reals) > len(vids) {
		// More than the recorded run got; drop the surplus so both
		// runs hold the same objects.
		p.drv.DeleteSources(reals[len(vids):])
		reals = reals[:len(vids)]
		if err := p.diverge(e, "source creation succeeded where the recorded run failed"); err != nil {
			return err
		}
	}
	for i, vid := range vids {
		if i >= len(reals) {
			if err := p.diverge(e, "source %d not created (got %d of %d)", vid, len(reals), len(vids)); err != nil {
				return err
			}
			continue
		}
		if err := p.sources.Bind(vid, reals[i]); err != nil {
			return newDesync(e, err.Error())
		}
	}
	return nil
}

func (p *Player) deleteSources(e *trace.Event) error {
	vids := e.Args[0].(trace.U32Vec)
	reals := make([]audio.Source, len(vids))
	for i, vid := range vids {
		reals[i] = p.sources.Resolve(vid)
	}
	p.drv.DeleteSources(reals)
	if p.pollCur() == audio.ErrNone {
		for _, vid := range vids {
			if !p.sources.Live(vid) {
				continue
			}
			if err := p.sources.Release(vid); err != nil {
				return newDesync(e, err.Error())
			}
		}
	}
	return nil
}

func (p *Player) setSourcei(e *trace.Event) error {
	src := p.source(e, 0)
	prm := param(e, 1)
	v := int32(e.Args[2].(trace.I32))
	if prm == audio.ParamBuffer && v != 0 {
		v = int32(uint32(p.buffers.Resolve(uint32(v))))
	}
	p.drv.SetSourcei(src, prm, v)
	p.pollCur()
	return nil
}

func (p *Player) getSourcei(e *trace.Event) error {
	got := p.drv.GetSourcei(p.source(e, 0), param(e, 1))
	if prm := param(e, 1); prm == audio.ParamBuffer && got != 0 {
		if vid, ok := p.buffers.VirtualOf(audio.Buffer(uint32(got))); ok {
			got = int32(vid)
		}
	}
	p.pollCur()
	recorded := int32(e.Results[0].(trace.I32))
	prm := param(e, 1)
	if got != recorded && !transient(prm) {
		return p.diverge(e, "source %d %v: got %d, recorded %d", uint32(e.Args[0].(trace.U32)), prm, got, recorded)
	}
	return nil
}

func (p *Player) unqueueBuffers(e *trace.Event) error {
	n := int(e.Args[1].(trace.I32))
	reals := p.drv.SourceUnqueueBuffers(p.source(e, 0), n)
	p.pollCur()
	recorded := e.Results[0].(trace.U32Vec)
	got := make(trace.U32Vec, 0, len(reals))
	for _, real := range reals {
		if vid, ok := p.buffers.VirtualOf(real); ok {
			got = append(got, vid)
		}
	}
	if !u32vecEq(got, recorded) {
		return p.diverge(e, "unqueued %v, recorded %v", []uint32(got), []uint32(recorded))
	}
	return nil
}

func (p *Player) genBuffers(e *trace.Event) error {
	n := int(e.Args[0].(trace.I32))
	vids := e.Results[0].(trace.U32Vec)
	reals := p.drv.GenBuffers(n)
	p.pollCur()
	if len(reals) > len(vids) {
		p.drv.DeleteBuffers(reals[len(vids):])
		reals = reals[:len(vids)]
		if err := p.diverge(e, "buffer creation succeeded where the recorded run failed"); err != nil {
			return err
		}
	}
	for i, vid := range vids {
		if i >= len(reals) {
			if err := p.diverge(e, "buffer %d not created", vid); err != nil {
				return err
			}
			continue
		}
		if err := p.buffers.Bind(vid, reals[i]); err != nil {
			return newDesync(e, err.Error())
		}
	}
	return nil
}

func (p *Player) deleteBuffers(e *trace.Event) error {
	vids := e.Args[0].(trace.U32Vec)
	reals := make([]audio.Buffer, len(vids))
	for i, vid := range vids {
		reals[i] = p.buffers.Resolve(vid)
	}
	p.drv.DeleteBuffers(reals)
	if p.pollCur() == audio.ErrNone {
		for _, vid := range vids {
			if !p.buffers.Live(vid) {
				continue
			}
			if err := p.buffers.Release(vid); err != nil {
				return newDesync(e, err.Error())
			}
		}
	}
	return nil
}

// check compares a replayed getter result against the recorded one.
func (p *Player) check(e *trace.Event, got, recorded trace.Value) error {
	if valueEq(got, recorded) {
		return nil
	}
	return p.diverge(e, "result mismatch: got %v, recorded %v", got, recorded)
}

func (p *Player) source(e *trace.Event, i int) audio.Source {
	return p.sources.Resolve(uint32(e.Args[i].(trace.U32)))
}

func param(e *trace.Event, i int) audio.Param {
	return audio.Param(e.Args[i].(trace.I32))
}

// transient reports whether a source parameter depends on playback
// timing rather than on the call sequence. Those are expected to differ
// between runs and are not divergences.
func transient(p audio.Param) bool {
	switch p {
	case audio.ParamSourceState, audio.ParamBuffersProcessed,
		audio.ParamSecOffset, audio.ParamSampleOffset, audio.ParamByteOffset:
		return true
	}
	return false
}

// valueEq compares two trace values, bit-for-bit for floats.
func valueEq(a, b trace.Value) bool {
	switch x := a.(type) {
	case trace.F32:
		y, ok := b.(trace.F32)
		return ok && math.Float32bits(float32(x)) == math.Float32bits(float32(y))
	case trace.F64:
		y, ok := b.(trace.F64)
		return ok && math.Float64bits(float64(x)) == math.Float64bits(float64(y))
	case trace.Vec3:
		y, ok := b.(trace.Vec3)
		if !ok {
			return false
		}
		for i := range x {
			if math.Float32bits(x[i]) != math.Float32bits(y[i]) {
				return false
			}
		}
		return true
	case trace.F32Vec:
		y, ok := b.(trace.F32Vec)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if math.Float32bits(x[i]) != math.Float32bits(y[i]) {
				return false
			}
		}
		return true
	case trace.U32Vec:
		y, ok := b.(trace.U32Vec)
		return ok && u32vecEq(x, y)
	default:
		return a == b
	}
}

func u32vecEq(a, b trace.U32Vec) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
