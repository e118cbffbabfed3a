package capture

import (
	"fmt"

	"github.com/audiotap/audiotap/internal/audio"
	"github.com/audiotap/audiotap/internal/trace"
)

// bookkeepingFault aborts the session: if the identity tables can be
// wrong, nothing downstream can be trusted.
func (s *Session) bookkeepingFault(err error) {
	if s.failed {
		return
	}
	s.failed = true
	s.w.Close()
	s.onFatal(fmt.Errorf("capture: %w", err))
}

func (s *Session) OpenDevice(name string) audio.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindOpenDevice)
	e.Args = []trace.Value{trace.SomeStr(name)}
	real := s.drv.OpenDevice(name)
	logical := uint64(real)
	e.Results = []trace.Value{trace.U64(logical)}
	s.write(e)
	if real != 0 {
		if err := s.devices.Put(logical, real); err != nil {
			s.bookkeepingFault(err)
		}
	}
	return audio.Device(logical)
}

func (s *Session) CloseDevice(d audio.Device) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindCloseDevice)
	e.Args = []trace.Value{trace.U64(uint64(d))}
	real := s.devices.Resolve(uint64(d))
	ok := s.drv.CloseDevice(real)
	e.Results = []trace.Value{trace.U32(boolU32(ok))}
	s.write(e)
	if ok {
		if err := s.devices.Release(uint64(d)); err != nil {
			s.bookkeepingFault(err)
		}
		delete(s.devErr, uint64(d))
	} else {
		s.pollDevice(uint64(d), real)
	}
	return ok
}

func (s *Session) DeviceError(d audio.Device) audio.ErrorCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindDeviceError)
	e.Args = []trace.Value{trace.U64(uint64(d))}
	// Drain the real latch into the session latch first, then answer
	// from (and clear) the session latch: first unread error wins.
	real := s.devices.Resolve(uint64(d))
	if real != audio.InvalidDevice {
		if code := s.drv.DeviceError(real); code != audio.ErrNone && s.devErr[uint64(d)] == audio.ErrNone {
			s.devErr[uint64(d)] = code
		}
	}
	code := s.devErr[uint64(d)]
	if real == audio.InvalidDevice {
		code = audio.ErrInvalidName
	}
	delete(s.devErr, uint64(d))
	e.Results = []trace.Value{trace.I32(int32(code))}
	s.write(e)
	return code
}

func (s *Session) CreateContext(d audio.Device, attrs []int32) audio.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindCreateContext)
	e.Args = []trace.Value{trace.U64(uint64(d)), trace.I32Vec(attrs)}
	realDev := s.devices.Resolve(uint64(d))
	real := s.drv.CreateContext(realDev, attrs)
	logical := uint64(real)
	e.Results = []trace.Value{trace.U64(logical)}
	s.write(e)
	if real != 0 {
		if err := s.contexts.Put(logical, real); err != nil {
			s.bookkeepingFault(err)
		}
		s.ctxDev[logical] = uint64(d)
		s.tracker.AddContext(logical, real)
	} else {
		s.pollDevice(uint64(d), realDev)
	}
	return audio.Context(logical)
}

func (s *Session) MakeContextCurrent(c audio.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindMakeContextCurrent)
	e.Args = []trace.Value{trace.U64(uint64(c))}
	var ok bool
	if c == 0 {
		ok = s.drv.MakeContextCurrent(0)
	} else {
		ok = s.drv.MakeContextCurrent(s.contexts.Resolve(uint64(c)))
	}
	e.Results = []trace.Value{trace.U32(boolU32(ok))}
	s.write(e)
	if ok {
		if c == 0 {
			s.cur, s.curReal = 0, 0
		} else {
			s.cur, s.curReal = uint64(c), s.contexts.Resolve(uint64(c))
			// First bind after creation runs the deviation check
			// against the documented defaults.
			s.tracker.DiffContext(s.cur)
		}
	}
	s.pollCurrent()
	return ok
}

func (s *Session) DestroyContext(c audio.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindDestroyContext)
	e.Args = []trace.Value{trace.U64(uint64(c))}
	real := s.contexts.Resolve(uint64(c))
	s.drv.DestroyContext(real)
	s.write(e)
	if !s.contexts.Live(uint64(c)) {
		return
	}
	// The destroy latches on the owning device; only a clean poll
	// confirms the context is gone.
	devLogical := s.ctxDev[uint64(c)]
	realDev := s.devices.Resolve(devLogical)
	if s.pollDevice(devLogical, realDev) != audio.ErrNone {
		return
	}
	if err := s.contexts.Release(uint64(c)); err != nil {
		s.bookkeepingFault(err)
	}
	s.tracker.RemoveContext(uint64(c))
	delete(s.ctxDev, uint64(c))
	delete(s.ctxErr, uint64(c))
	if s.cur == uint64(c) {
		s.cur, s.curReal = 0, 0
	}
}

func (s *Session) CurrentContext() audio.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindCurrentContext)
	e.Results = []trace.Value{trace.U64(s.cur)}
	s.write(e)
	return audio.Context(s.cur)
}

func (s *Session) ContextError(c audio.Context) audio.ErrorCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindContextError)
	e.Args = []trace.Value{trace.U64(uint64(c))}
	real := s.contexts.Resolve(uint64(c))
	if real != audio.InvalidContext {
		if code := s.drv.ContextError(real); code != audio.ErrNone && s.ctxErr[uint64(c)] == audio.ErrNone {
			s.ctxErr[uint64(c)] = code
		}
	}
	code := s.ctxErr[uint64(c)]
	if real == audio.InvalidContext {
		code = audio.ErrInvalidName
	}
	delete(s.ctxErr, uint64(c))
	e.Results = []trace.Value{trace.I32(int32(code))}
	s.write(e)
	return code
}

func (s *Session) SetDistanceModel(m audio.DistanceModel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindSetDistanceModel)
	e.Args = []trace.Value{trace.I32(int32(m))}
	s.drv.SetDistanceModel(m)
	s.write(e)
	s.diffContext()
	s.pollCurrent()
}

func (s *Session) DistanceModel() audio.DistanceModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindGetDistanceModel)
	v := s.drv.DistanceModel()
	e.Results = []trace.Value{trace.I32(int32(v))}
	s.write(e)
	s.diffContext()
	s.pollCurrent()
	return v
}

func (s *Session) SetDopplerFactor(f float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindSetDopplerFactor)
	e.Args = []trace.Value{trace.F32(f)}
	s.drv.SetDopplerFactor(f)
	s.write(e)
	s.diffContext()
	s.pollCurrent()
}

func (s *Session) DopplerFactor() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindGetDopplerFactor)
	v := s.drv.DopplerFactor()
	e.Results = []trace.Value{trace.F32(v)}
	s.write(e)
	s.diffContext()
	s.pollCurrent()
	return v
}

func (s *Session) SetDopplerVelocity(v float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindSetDopplerVelocity)
	e.Args = []trace.Value{trace.F32(v)}
	s.drv.SetDopplerVelocity(v)
	s.write(e)
	s.diffContext()
	s.pollCurrent()
}

func (s *Session) DopplerVelocity() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindGetDopplerVelocity)
	v := s.drv.DopplerVelocity()
	e.Results = []trace.Value{trace.F32(v)}
	s.write(e)
	s.diffContext()
	s.pollCurrent()
	return v
}

func (s *Session) SetSpeedOfSound(v float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindSetSpeedOfSound)
	e.Args = []trace.Value{trace.F32(v)}
	s.drv.SetSpeedOfSound(v)
	s.write(e)
	s.diffContext()
	s.pollCurrent()
}

func (s *Session) SpeedOfSound() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindGetSpeedOfSound)
	v := s.drv.SpeedOfSound()
	e.Results = []trace.Value{trace.F32(v)}
	s.write(e)
	s.diffContext()
	s.pollCurrent()
	return v
}

func (s *Session) SetListenerf(p audio.Param, v float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindSetListenerf)
	e.Args = []trace.Value{trace.I32(int32(p)), trace.F32(v)}
	s.drv.SetListenerf(p, v)
	s.write(e)
	s.diffContext()
	s.pollCurrent()
}

func (s *Session) SetListener3f(p audio.Param, x, y, z float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindSetListener3f)
	e.Args = []trace.Value{trace.I32(int32(p)), trace.Vec3{x, y, z}}
	s.drv.SetListener3f(p, x, y, z)
	s.write(e)
	s.diffContext()
	s.pollCurrent()
}

func (s *Session) SetListenerfv(p audio.Param, v []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindSetListenerfv)
	e.Args = []trace.Value{trace.I32(int32(p)), trace.F32Vec(v)}
	s.drv.SetListenerfv(p, v)
	s.write(e)
	s.diffContext()
	s.pollCurrent()
}

func (s *Session) GetListenerf(p audio.Param) float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindGetListenerf)
	e.Args = []trace.Value{trace.I32(int32(p))}
	v := s.drv.GetListenerf(p)
	e.Results = []trace.Value{trace.F32(v)}
	s.write(e)
	s.diffContext()
	s.pollCurrent()
	return v
}

func (s *Session) GetListener3f(p audio.Param) (x, y, z float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindGetListener3f)
	e.Args = []trace.Value{trace.I32(int32(p))}
	x, y, z = s.drv.GetListener3f(p)
	e.Results = []trace.Value{trace.Vec3{x, y, z}}
	s.write(e)
	s.diffContext()
	s.pollCurrent()
	return x, y, z
}

func (s *Session) GetListenerfv(p audio.Param) []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindGetListenerfv)
	e.Args = []trace.Value{trace.I32(int32(p))}
	v := s.drv.GetListenerfv(p)
	e.Results = []trace.Value{trace.F32Vec(v)}
	s.write(e)
	s.diffContext()
	s.pollCurrent()
	return v
}

func (s *Session) GenSources(n int) []audio.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindGenSources)
	e.Args = []trace.Value{trace.I32(int32(n))}
	reals := s.drv.GenSources(n)
	vids := make(trace.U32Vec, 0, len(reals))
	out := make([]audio.Source, 0, len(reals))
	for _, real := range reals {
		vid, err := s.sources.Allocate(real)
		if err != nil {
			s.bookkeepingFault(err)
			return nil
		}
		vids = append(vids, vid)
		out = append(out, audio.Source(vid))
	}
	e.Results = []trace.Value{vids}
	s.write(e)
	for i, real := range reals {
		s.tracker.AddSource(vids[i], real, s.cur)
	}
	s.pollCurrent()
	if reals == nil {
		return nil
	}
	return out
}

func (s *Session) DeleteSources(srcs []audio.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindDeleteSources)
	vids := make(trace.U32Vec, len(srcs))
	reals := make([]audio.Source, len(srcs))
	for i, src := range srcs {
		vids[i] = uint32(src)
		reals[i] = s.sources.Resolve(uint32(src))
	}
	e.Args = []trace.Value{vids}
	s.drv.DeleteSources(reals)
	s.write(e)
	// A failed delete must leave every mapping intact.
	if s.cur != 0 && s.pollCurrent() == audio.ErrNone {
		for _, vid := range vids {
			if !s.sources.Live(vid) {
				continue
			}
			if err := s.sources.Release(vid); err != nil {
				s.bookkeepingFault(err)
				return
			}
			s.tracker.RemoveSource(vid)
		}
	}
}

func (s *Session) SourcePlay(src audio.Source) {
	s.sourceCall(trace.KindSourcePlay, src, s.drv.SourcePlay)
}

func (s *Session) SourceStop(src audio.Source) {
	s.sourceCall(trace.KindSourceStop, src, s.drv.SourceStop)
}

func (s *Session) SourcePause(src audio.Source) {
	s.sourceCall(trace.KindSourcePause, src, s.drv.SourcePause)
}

func (s *Session) SourceRewind(src audio.Source) {
	s.sourceCall(trace.KindSourceRewind, src, s.drv.SourceRewind)
}

// sourceCall is the shared shape of the four transport operations.
func (s *Session) sourceCall(kind trace.Kind, src audio.Source, call func(audio.Source)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(kind)
	e.Args = []trace.Value{trace.U32(uint32(src))}
	call(s.sources.Resolve(uint32(src)))
	s.write(e)
	s.tracker.DiffSource(uint32(src))
	s.pollCurrent()
}

func (s *Session) SetSourcef(src audio.Source, p audio.Param, v float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindSetSourcef)
	e.Args = []trace.Value{trace.U32(uint32(src)), trace.I32(int32(p)), trace.F32(v)}
	s.drv.SetSourcef(s.sources.Resolve(uint32(src)), p, v)
	s.write(e)
	s.tracker.DiffSource(uint32(src))
	s.pollCurrent()
}

func (s *Session) SetSource3f(src audio.Source, p audio.Param, x, y, z float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindSetSource3f)
	e.Args = []trace.Value{trace.U32(uint32(src)), trace.I32(int32(p)), trace.Vec3{x, y, z}}
	s.drv.SetSource3f(s.sources.Resolve(uint32(src)), p, x, y, z)
	s.write(e)
	s.tracker.DiffSource(uint32(src))
	s.pollCurrent()
}

func (s *Session) SetSourcei(src audio.Source, p audio.Param, v int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindSetSourcei)
	e.Args = []trace.Value{trace.U32(uint32(src)), trace.I32(int32(p)), trace.I32(v)}
	// The trace stores the virtual buffer id; the real driver needs
	// its own handle.
	realV := v
	if p == audio.ParamBuffer && v != 0 {
		realV = int32(uint32(s.buffers.Resolve(uint32(v))))
	}
	s.drv.SetSourcei(s.sources.Resolve(uint32(src)), p, realV)
	s.write(e)
	s.tracker.DiffSource(uint32(src))
	s.pollCurrent()
}

func (s *Session) GetSourcef(src audio.Source, p audio.Param) float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindGetSourcef)
	e.Args = []trace.Value{trace.U32(uint32(src)), trace.I32(int32(p))}
	v := s.drv.GetSourcef(s.sources.Resolve(uint32(src)), p)
	e.Results = []trace.Value{trace.F32(v)}
	s.write(e)
	s.tracker.DiffSource(uint32(src))
	s.pollCurrent()
	return v
}

func (s *Session) GetSource3f(src audio.Source, p audio.Param) (x, y, z float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindGetSource3f)
	e.Args = []trace.Value{trace.U32(uint32(src)), trace.I32(int32(p))}
	x, y, z = s.drv.GetSource3f(s.sources.Resolve(uint32(src)), p)
	e.Results = []trace.Value{trace.Vec3{x, y, z}}
	s.write(e)
	s.tracker.DiffSource(uint32(src))
	s.pollCurrent()
	return x, y, z
}

func (s *Session) GetSourcei(src audio.Source, p audio.Param) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindGetSourcei)
	e.Args = []trace.Value{trace.U32(uint32(src)), trace.I32(int32(p))}
	v := s.drv.GetSourcei(s.sources.Resolve(uint32(src)), p)
	if p == audio.ParamBuffer && v != 0 {
		// Answer with the virtual id the application knows. Buffer
		// names fit 32 bits per the Driver contract, so the narrowing
		// is lossless.
		if vid, ok := s.buffers.VirtualOf(audio.Buffer(uint32(v))); ok {
			v = int32(vid)
		}
	}
	e.Results = []trace.Value{trace.I32(v)}
	s.write(e)
	s.tracker.DiffSource(uint32(src))
	s.pollCurrent()
	return v
}

func (s *Session) SourceQueueBuffers(src audio.Source, bufs []audio.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindSourceQueueBuffers)
	vids := make(trace.U32Vec, len(bufs))
	reals := make([]audio.Buffer, len(bufs))
	for i, b := range bufs {
		vids[i] = uint32(b)
		reals[i] = s.buffers.Resolve(uint32(b))
	}
	e.Args = []trace.Value{trace.U32(uint32(src)), vids}
	s.drv.SourceQueueBuffers(s.sources.Resolve(uint32(src)), reals)
	s.write(e)
	s.tracker.DiffSource(uint32(src))
	s.pollCurrent()
}

func (s *Session) SourceUnqueueBuffers(src audio.Source, n int) []audio.Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindSourceUnqueueBuffers)
	e.Args = []trace.Value{trace.U32(uint32(src)), trace.I32(int32(n))}
	reals := s.drv.SourceUnqueueBuffers(s.sources.Resolve(uint32(src)), n)
	vids := make(trace.U32Vec, 0, len(reals))
	out := make([]audio.Buffer, 0, len(reals))
	for _, real := range reals {
		vid, ok := s.buffers.VirtualOf(real)
		if !ok {
			s.bookkeepingFault(fmt.Errorf("capture: unqueued buffer %#x has no identity", uint64(real)))
			return nil
		}
		vids = append(vids, vid)
		out = append(out, audio.Buffer(vid))
	}
	e.Results = []trace.Value{vids}
	s.write(e)
	s.tracker.DiffSource(uint32(src))
	s.pollCurrent()
	if reals == nil {
		return nil
	}
	return out
}

func (s *Session) GenBuffers(n int) []audio.Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindGenBuffers)
	e.Args = []trace.Value{trace.I32(int32(n))}
	reals := s.drv.GenBuffers(n)
	vids := make(trace.U32Vec, 0, len(reals))
	out := make([]audio.Buffer, 0, len(reals))
	for _, real := range reals {
		vid, err := s.buffers.Allocate(real)
		if err != nil {
			s.bookkeepingFault(err)
			return nil
		}
		vids = append(vids, vid)
		out = append(out, audio.Buffer(vid))
	}
	e.Results = []trace.Value{vids}
	s.write(e)
	for i, real := range reals {
		s.tracker.AddBuffer(vids[i], real, s.cur)
	}
	s.pollCurrent()
	if reals == nil {
		return nil
	}
	return out
}

func (s *Session) DeleteBuffers(bufs []audio.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindDeleteBuffers)
	vids := make(trace.U32Vec, len(bufs))
	reals := make([]audio.Buffer, len(bufs))
	for i, b := range bufs {
		vids[i] = uint32(b)
		reals[i] = s.buffers.Resolve(uint32(b))
	}
	e.Args = []trace.Value{vids}
	s.drv.DeleteBuffers(reals)
	s.write(e)
	if s.cur != 0 && s.pollCurrent() == audio.ErrNone {
		for _, vid := range vids {
			if !s.buffers.Live(vid) {
				continue
			}
			if err := s.buffers.Release(vid); err != nil {
				s.bookkeepingFault(err)
				return
			}
			s.tracker.RemoveBuffer(vid)
		}
	}
}

func (s *Session) BufferData(b audio.Buffer, format audio.Format, data []byte, freq int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindBufferData)
	e.Args = []trace.Value{
		trace.U32(uint32(b)),
		trace.I32(int32(format)),
		trace.Blob(data),
		trace.I32(freq),
	}
	s.drv.BufferData(s.buffers.Resolve(uint32(b)), format, data, freq)
	s.write(e)
	s.tracker.DiffBuffer(uint32(b))
	s.pollCurrent()
}

func (s *Session) GetBufferi(b audio.Buffer, p audio.Param) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindGetBufferi)
	e.Args = []trace.Value{trace.U32(uint32(b)), trace.I32(int32(p))}
	v := s.drv.GetBufferi(s.buffers.Resolve(uint32(b)), p)
	e.Results = []trace.Value{trace.I32(v)}
	s.write(e)
	s.tracker.DiffBuffer(uint32(b))
	s.pollCurrent()
	return v
}

// diffContext diffs the current context, skipping entirely when no
// context is bound.
func (s *Session) diffContext() {
	if s.cur == 0 {
		return
	}
	s.tracker.DiffContext(s.cur)
}

func boolU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
