package audio

import "sync"

// Soft is a pure in-memory Driver. It models handle lifetimes, latched
// errors, documented default state, and queue processing, but renders no
// audio. Playback only advances when Pump is called, which keeps the
// implicit state transitions (PLAYING to STOPPED, processed-count growth)
// deterministic for callers that need to observe them.
//
// Soft is safe for concurrent use.
type Soft struct {
	mu      sync.Mutex
	next    uint64
	devices map[Device]*softDevice
	ctxs    map[Context]*softContext
	current Context

	unavailable map[string]bool
	failGens    int
}

type softDevice struct {
	name    string
	err     ErrorCode
	ctxs    int
	buffers map[Buffer]*softBuffer
}

type softContext struct {
	dev *softDevice
	err ErrorCode

	model           DistanceModel
	dopplerFactor   float32
	dopplerVelocity float32
	speedOfSound    float32

	listenerGain        float32
	listenerPosition    [3]float32
	listenerVelocity    [3]float32
	listenerOrientation [6]float32

	sources map[Source]*softSource
}

type softSource struct {
	state   SourceState
	typ     SourceType
	buffer  Buffer
	queue   []Buffer
	done    int // buffers fully consumed from the head of queue

	relative bool
	looping  bool

	pitch, gain      float32
	minGain, maxGain float32
	refDist, maxDist float32
	rolloff          float32
	coneInner        float32
	coneOuter        float32
	coneOuterGain    float32

	position  [3]float32
	velocity  [3]float32
	direction [3]float32

	offset int64 // sample offset within the current buffer
}

type softBuffer struct {
	format Format
	freq   int32
	size   int32
}

// NewSoft returns an empty Soft driver.
func NewSoft() *Soft {
	return &Soft{
		next:        0x5A00, // arbitrary base so real handles never look like dense virtual ids
		devices:     make(map[Device]*softDevice),
		ctxs:        make(map[Context]*softContext),
		unavailable: make(map[string]bool),
	}
}

// SetDeviceAvailable marks a device name (or "" for the default device)
// as present or absent. Opening an absent device fails.
func (s *Soft) SetDeviceAvailable(name string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok {
		delete(s.unavailable, name)
	} else {
		s.unavailable[name] = true
	}
}

// FailNextGen makes the next n GenSources/GenBuffers calls fail with
// OUT_OF_MEMORY. Used to exercise creation-failure paths.
func (s *Soft) FailNextGen(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failGens = n
}

func (s *Soft) handle() uint64 {
	s.next += 0x11 // non-dense spacing
	return s.next
}

func latch(code *ErrorCode, e ErrorCode) {
	if *code == ErrNone {
		*code = e
	}
}

// cur returns the current context, or nil when none is current. Callers
// treat nil as a silent no-op per the API.
func (s *Soft) cur() *softContext {
	return s.ctxs[s.current]
}

func (s *Soft) OpenDevice(name string) Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unavailable[name] {
		return 0
	}
	d := Device(s.handle())
	s.devices[d] = &softDevice{name: name, buffers: make(map[Buffer]*softBuffer)}
	return d
}

func (s *Soft) CloseDevice(d Device) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	dev, ok := s.devices[d]
	if !ok {
		return false
	}
	if dev.ctxs > 0 {
		latch(&dev.err, ErrInvalidOperation)
		return false
	}
	delete(s.devices, d)
	return true
}

func (s *Soft) DeviceError(d Device) ErrorCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	dev, ok := s.devices[d]
	if !ok {
		return ErrInvalidName
	}
	e := dev.err
	dev.err = ErrNone
	return e
}

func (s *Soft) CreateContext(d Device, attrs []int32) Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	dev, ok := s.devices[d]
	if !ok {
		return 0
	}
	if len(attrs)%2 != 0 {
		latch(&dev.err, ErrInvalidValue)
		return 0
	}
	c := Context(s.handle())
	s.ctxs[c] = &softContext{
		dev:                 dev,
		model:               InverseDistanceClamped,
		dopplerFactor:       1,
		dopplerVelocity:     1,
		speedOfSound:        343.3,
		listenerGain:        1,
		listenerOrientation: [6]float32{0, 0, -1, 0, 1, 0},
		sources:             make(map[Source]*softSource),
	}
	dev.ctxs++
	return c
}

func (s *Soft) MakeContextCurrent(c Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c == 0 {
		s.current = 0
		return true
	}
	if _, ok := s.ctxs[c]; !ok {
		return false
	}
	s.current = c
	return true
}

func (s *Soft) DestroyContext(c Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, ok := s.ctxs[c]
	if !ok {
		return
	}
	if s.current == c {
		s.current = 0
	}
	ctx.dev.ctxs--
	delete(s.ctxs, c)
}

func (s *Soft) CurrentContext() Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Soft) ContextError(c Context) ErrorCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, ok := s.ctxs[c]
	if !ok {
		return ErrInvalidName
	}
	e := ctx.err
	ctx.err = ErrNone
	return e
}

func (s *Soft) SetDistanceModel(m DistanceModel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := s.cur()
	if ctx == nil {
		return
	}
	switch m {
	case DistanceNone, InverseDistance, InverseDistanceClamped,
		LinearDistance, LinearDistanceClamped,
		ExponentDistance, ExponentDistanceClamped:
		ctx.model = m
	default:
		latch(&ctx.err, ErrInvalidEnum)
	}
}

func (s *Soft) DistanceModel() DistanceModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx := s.cur(); ctx != nil {
		return ctx.model
	}
	return DistanceNone
}

func (s *Soft) SetDopplerFactor(f float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := s.cur()
	if ctx == nil {
		return
	}
	if f < 0 {
		latch(&ctx.err, ErrInvalidValue)
		return
	}
	ctx.dopplerFactor = f
}

func (s *Soft) DopplerFactor() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx := s.cur(); ctx != nil {
		return ctx.dopplerFactor
	}
	return 0
}

func (s *Soft) SetDopplerVelocity(v float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := s.cur()
	if ctx == nil {
		return
	}
	if v <= 0 {
		latch(&ctx.err, ErrInvalidValue)
		return
	}
	ctx.dopplerVelocity = v
}

func (s *Soft) DopplerVelocity() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx := s.cur(); ctx != nil {
		return ctx.dopplerVelocity
	}
	return 0
}

func (s *Soft) SetSpeedOfSound(v float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := s.cur()
	if ctx == nil {
		return
	}
	if v <= 0 {
		latch(&ctx.err, ErrInvalidValue)
		return
	}
	ctx.speedOfSound = v
}

func (s *Soft) SpeedOfSound() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx := s.cur(); ctx != nil {
		return ctx.speedOfSound
	}
	return 0
}

func (s *Soft) SetListenerf(p Param, v float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := s.cur()
	if ctx == nil {
		return
	}
	switch p {
	case ParamGain:
		if v < 0 {
			latch(&ctx.err, ErrInvalidValue)
			return
		}
		ctx.listenerGain = v
	default:
		latch(&ctx.err, ErrInvalidEnum)
	}
}

func (s *Soft) SetListener3f(p Param, x, y, z float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := s.cur()
	if ctx == nil {
		return
	}
	switch p {
	case ParamPosition:
		ctx.listenerPosition = [3]float32{x, y, z}
	case ParamVelocity:
		ctx.listenerVelocity = [3]float32{x, y, z}
	default:
		latch(&ctx.err, ErrInvalidEnum)
	}
}

func (s *Soft) SetListenerfv(p Param, v []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := s.cur()
	if ctx == nil {
		return
	}
	switch p {
	case ParamOrientation:
		if len(v) != 6 {
			latch(&ctx.err, ErrInvalidValue)
			return
		}
		copy(ctx.listenerOrientation[:], v)
	case ParamPosition, ParamVelocity:
		if len(v) != 3 {
			latch(&ctx.err, ErrInvalidValue)
			return
		}
		if p == ParamPosition {
			copy(ctx.listenerPosition[:], v)
		} else {
			copy(ctx.listenerVelocity[:], v)
		}
	default:
		latch(&ctx.err, ErrInvalidEnum)
	}
}

func (s *Soft) GetListenerf(p Param) float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := s.cur()
	if ctx == nil {
		return 0
	}
	if p == ParamGain {
		return ctx.listenerGain
	}
	latch(&ctx.err, ErrInvalidEnum)
	return 0
}

func (s *Soft) GetListener3f(p Param) (x, y, z float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := s.cur()
	if ctx == nil {
		return 0, 0, 0
	}
	switch p {
	case ParamPosition:
		return ctx.listenerPosition[0], ctx.listenerPosition[1], ctx.listenerPosition[2]
	case ParamVelocity:
		return ctx.listenerVelocity[0], ctx.listenerVelocity[1], ctx.listenerVelocity[2]
	}
	latch(&ctx.err, ErrInvalidEnum)
	return 0, 0, 0
}

func (s *Soft) GetListenerfv(p Param) []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := s.cur()
	if ctx == nil {
		return nil
	}
	switch p {
	case ParamOrientation:
		out := make([]float32, 6)
		copy(out, ctx.listenerOrientation[:])
		return out
	case ParamPosition:
		out := make([]float32, 3)
		copy(out, ctx.listenerPosition[:])
		return out
	case ParamVelocity:
		out := make([]float32, 3)
		copy(out, ctx.listenerVelocity[:])
		return out
	}
	latch(&ctx.err, ErrInvalidEnum)
	return nil
}

func newSoftSource() *softSource {
	return &softSource{
		state:     Initial,
		typ:       Undetermined,
		pitch:     1,
		gain:      1,
		maxGain:   1,
		refDist:   1,
		maxDist:   3.4028235e38, // float32 max
		rolloff:   1,
		coneInner: 360,
		coneOuter: 360,
	}
}

func (s *Soft) GenSources(n int) []Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := s.cur()
	if ctx == nil {
		return nil
	}
	if n < 0 {
		latch(&ctx.err, ErrInvalidValue)
		return nil
	}
	if s.failGens > 0 {
		s.failGens--
		latch(&ctx.err, ErrOutOfMemory)
		return nil
	}
	out := make([]Source, n)
	for i := range out {
		src := Source(s.handle())
		ctx.sources[src] = newSoftSource()
		out[i] = src
	}
	return out
}

func (s *Soft) DeleteSources(srcs []Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := s.cur()
	if ctx == nil {
		return
	}
	// Validate the whole set first; a single bad handle fails the call
	// without deleting anything.
	for _, src := range srcs {
		if _, ok := ctx.sources[src]; !ok {
			latch(&ctx.err, ErrInvalidName)
			return
		}
	}
	for _, src := range srcs {
		delete(ctx.sources, src)
	}
}

func (s *Soft) source(src Source) *softSource {
	ctx := s.cur()
	if ctx == nil {
		return nil
	}
	obj, ok := ctx.sources[src]
	if !ok {
		latch(&ctx.err, ErrInvalidName)
		return nil
	}
	return obj
}

func (s *Soft) SourcePlay(src Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if obj := s.source(src); obj != nil {
		obj.state = Playing
	}
}

func (s *Soft) SourceStop(src Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if obj := s.source(src); obj != nil {
		if obj.state != Initial {
			obj.state = Stopped
		}
		obj.offset = 0
	}
}

func (s *Soft) SourcePause(src Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if obj := s.source(src); obj != nil && obj.state == Playing {
		obj.state = Paused
	}
}

func (s *Soft) SourceRewind(src Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if obj := s.source(src); obj != nil {
		obj.state = Initial
		obj.offset = 0
		obj.done = 0
	}
}

func (s *Soft) SetSourcef(src Source, p Param, v float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj := s.source(src)
	if obj == nil {
		return
	}
	ctx := s.cur()
	switch p {
	case ParamPitch:
		if v <= 0 {
			latch(&ctx.err, ErrInvalidValue)
			return
		}
		obj.pitch = v
	case ParamGain:
		obj.gain = v
	case ParamMinGain:
		obj.minGain = v
	case ParamMaxGain:
		obj.maxGain = v
	case ParamReferenceDistance:
		obj.refDist = v
	case ParamMaxDistance:
		obj.maxDist = v
	case ParamRolloffFactor:
		obj.rolloff = v
	case ParamConeInnerAngle:
		obj.coneInner = v
	case ParamConeOuterAngle:
		obj.coneOuter = v
	case ParamConeOuterGain:
		obj.coneOuterGain = v
	case ParamSecOffset, ParamSampleOffset, ParamByteOffset:
		obj.offset = int64(v)
	default:
		latch(&ctx.err, ErrInvalidEnum)
	}
}

func (s *Soft) SetSource3f(src Source, p Param, x, y, z float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj := s.source(src)
	if obj == nil {
		return
	}
	switch p {
	case ParamPosition:
		obj.position = [3]float32{x, y, z}
	case ParamVelocity:
		obj.velocity = [3]float32{x, y, z}
	case ParamDirection:
		obj.direction = [3]float32{x, y, z}
	default:
		latch(&s.cur().err, ErrInvalidEnum)
	}
}

func (s *Soft) SetSourcei(src Source, p Param, v int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj := s.source(src)
	if obj == nil {
		return
	}
	ctx := s.cur()
	switch p {
	case ParamSourceRelative:
		obj.relative = v != 0
	case ParamLooping:
		obj.looping = v != 0
	case ParamBuffer:
		if obj.state == Playing || obj.state == Paused {
			latch(&ctx.err, ErrInvalidOperation)
			return
		}
		if v == 0 {
			obj.buffer = 0
			obj.typ = Undetermined
			return
		}
		if _, ok := ctx.dev.buffers[Buffer(v)]; !ok {
			latch(&ctx.err, ErrInvalidName)
			return
		}
		obj.buffer = Buffer(v)
		obj.typ = Static
	default:
		latch(&ctx.err, ErrInvalidEnum)
	}
}

func (s *Soft) GetSourcef(src Source, p Param) float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj := s.source(src)
	if obj == nil {
		return 0
	}
	switch p {
	case ParamPitch:
		return obj.pitch
	case ParamGain:
		return obj.gain
	case ParamMinGain:
		return obj.minGain
	case ParamMaxGain:
		return obj.maxGain
	case ParamReferenceDistance:
		return obj.refDist
	case ParamMaxDistance:
		return obj.maxDist
	case ParamRolloffFactor:
		return obj.rolloff
	case ParamConeInnerAngle:
		return obj.coneInner
	case ParamConeOuterAngle:
		return obj.coneOuter
	case ParamConeOuterGain:
		return obj.coneOuterGain
	case ParamSecOffset, ParamSampleOffset, ParamByteOffset:
		return float32(obj.offset)
	}
	latch(&s.cur().err, ErrInvalidEnum)
	return 0
}

func (s *Soft) GetSource3f(src Source, p Param) (x, y, z float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj := s.source(src)
	if obj == nil {
		return 0, 0, 0
	}
	switch p {
	case ParamPosition:
		return obj.position[0], obj.position[1], obj.position[2]
	case ParamVelocity:
		return obj.velocity[0], obj.velocity[1], obj.velocity[2]
	case ParamDirection:
		return obj.direction[0], obj.direction[1], obj.direction[2]
	}
	latch(&s.cur().err, ErrInvalidEnum)
	return 0, 0, 0
}

func (s *Soft) GetSourcei(src Source, p Param) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj := s.source(src)
	if obj == nil {
		return 0
	}
	switch p {
	case ParamSourceRelative:
		return b2i(obj.relative)
	case ParamLooping:
		return b2i(obj.looping)
	case ParamBuffer:
		return int32(obj.buffer)
	case ParamSourceState:
		return int32(obj.state)
	case ParamSourceType:
		return int32(obj.typ)
	case ParamBuffersQueued:
		return int32(len(obj.queue))
	case ParamBuffersProcessed:
		return int32(obj.done)
	case ParamSecOffset, ParamSampleOffset, ParamByteOffset:
		return int32(obj.offset)
	}
	latch(&s.cur().err, ErrInvalidEnum)
	return 0
}

func (s *Soft) SourceQueueBuffers(src Source, bufs []Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj := s.source(src)
	if obj == nil {
		return
	}
	ctx := s.cur()
	if obj.typ == Static {
		latch(&ctx.err, ErrInvalidOperation)
		return
	}
	for _, b := range bufs {
		if _, ok := ctx.dev.buffers[b]; !ok {
			latch(&ctx.err, ErrInvalidName)
			return
		}
	}
	obj.queue = append(obj.queue, bufs...)
	obj.typ = Streaming
}

func (s *Soft) SourceUnqueueBuffers(src Source, n int) []Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj := s.source(src)
	if obj == nil {
		return nil
	}
	if n < 0 || n > obj.done {
		latch(&s.cur().err, ErrInvalidValue)
		return nil
	}
	out := make([]Buffer, n)
	copy(out, obj.queue[:n])
	obj.queue = obj.queue[n:]
	obj.done -= n
	if len(obj.queue) == 0 && obj.state != Playing && obj.state != Paused {
		obj.typ = Undetermined
	}
	return out
}

func (s *Soft) GenBuffers(n int) []Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := s.cur()
	if ctx == nil {
		return nil
	}
	if n < 0 {
		latch(&ctx.err, ErrInvalidValue)
		return nil
	}
	if s.failGens > 0 {
		s.failGens--
		latch(&ctx.err, ErrOutOfMemory)
		return nil
	}
	out := make([]Buffer, n)
	for i := range out {
		b := Buffer(s.handle())
		ctx.dev.buffers[b] = &softBuffer{format: FormatMono16, freq: 0}
		out[i] = b
	}
	return out
}

func (s *Soft) DeleteBuffers(bufs []Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := s.cur()
	if ctx == nil {
		return
	}
	for _, b := range bufs {
		if _, ok := ctx.dev.buffers[b]; !ok {
			latch(&ctx.err, ErrInvalidName)
			return
		}
	}
	// A buffer still attached or queued on any source is in use.
	for _, b := range bufs {
		for _, obj := range ctx.sources {
			if obj.buffer == b {
				latch(&ctx.err, ErrInvalidOperation)
				return
			}
			for _, q := range obj.queue {
				if q == b {
					latch(&ctx.err, ErrInvalidOperation)
					return
				}
			}
		}
	}
	for _, b := range bufs {
		delete(ctx.dev.buffers, b)
	}
}

func (s *Soft) BufferData(b Buffer, format Format, data []byte, freq int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := s.cur()
	if ctx == nil {
		return
	}
	buf, ok := ctx.dev.buffers[b]
	if !ok {
		latch(&ctx.err, ErrInvalidName)
		return
	}
	switch format {
	case FormatMono8, FormatMono16, FormatStereo8, FormatStereo16:
	default:
		latch(&ctx.err, ErrInvalidEnum)
		return
	}
	if freq <= 0 {
		latch(&ctx.err, ErrInvalidValue)
		return
	}
	buf.format = format
	buf.freq = freq
	buf.size = int32(len(data))
}

func (s *Soft) GetBufferi(b Buffer, p Param) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := s.cur()
	if ctx == nil {
		return 0
	}
	buf, ok := ctx.dev.buffers[b]
	if !ok {
		latch(&ctx.err, ErrInvalidName)
		return 0
	}
	switch p {
	case ParamFrequency:
		return buf.freq
	case ParamSize:
		return buf.size
	case ParamBits:
		return buf.format.Bits()
	case ParamChannels:
		return buf.format.Channels()
	}
	latch(&ctx.err, ErrInvalidEnum)
	return 0
}

// Pump advances every playing source by n sample frames. Static sources
// stop (or wrap, when looping) at the end of their attached buffer;
// streaming sources consume queued buffers, growing the processed count,
// and stop when the queue runs dry.
func (s *Soft) Pump(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ctx := range s.ctxs {
		for _, obj := range ctx.sources {
			if obj.state != Playing {
				continue
			}
			s.pumpSource(ctx, obj, n)
		}
	}
}

func (s *Soft) pumpSource(ctx *softContext, obj *softSource, n int64) {
	switch obj.typ {
	case Static:
		buf := ctx.dev.buffers[obj.buffer]
		if buf == nil {
			obj.state = Stopped
			return
		}
		total := samples(buf)
		obj.offset += n
		if total <= 0 || obj.offset < total {
			return
		}
		if obj.looping {
			obj.offset %= max64(total, 1)
			return
		}
		obj.state = Stopped
		obj.offset = 0
	case Streaming:
		for n > 0 && obj.done < len(obj.queue) {
			buf := ctx.dev.buffers[obj.queue[obj.done]]
			total := int64(0)
			if buf != nil {
				total = samples(buf)
			}
			left := total - obj.offset
			if left > n {
				obj.offset += n
				return
			}
			n -= left
			obj.offset = 0
			obj.done++
		}
		if obj.done >= len(obj.queue) {
			// Queue starved.
			obj.state = Stopped
			obj.offset = 0
		}
	default:
		obj.state = Stopped
	}
}

func samples(buf *softBuffer) int64 {
	bytesPerFrame := int64(buf.format.Bits()/8) * int64(buf.format.Channels())
	if bytesPerFrame == 0 {
		return 0
	}
	return int64(buf.size) / bytesPerFrame
}

func b2i(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
