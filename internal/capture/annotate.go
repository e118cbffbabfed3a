package capture

import (
	"github.com/audiotap/audiotap/internal/trace"
)

// The annotation API lets the observed application mark up its own
// trace. Annotations are records like any other: they land between the
// calls that surround them in real time.

// PushScope opens a named scope in the trace.
func (s *Session) PushScope(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindScopePush)
	e.Args = []trace.Value{trace.SomeStr(name)}
	s.write(e)
}

// PopScope closes the innermost open scope.
func (s *Session) PopScope() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.write(s.begin(trace.KindScopePop))
}

// Message records a free-form note.
func (s *Session) Message(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindMessage)
	e.Args = []trace.Value{trace.SomeStr(text)}
	s.write(e)
}

// Label attaches a name to an object so dumps can show it. The id is
// the logical one the application holds: a virtual source or buffer id,
// or a device or context identity.
func (s *Session) Label(class trace.Class, id uint64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.begin(trace.KindLabel)
	e.Args = []trace.Value{trace.U32(uint32(class)), trace.U64(id), trace.SomeStr(name)}
	s.write(e)
}

// Sync runs a diff pass over the current context and every source it
// owns without forwarding any call. Applications that go long stretches
// without touching the API can call this to keep implicit playback
// progress (sources draining, queues processing) visible in the trace.
func (s *Session) Sync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == 0 {
		return
	}
	s.tracker.DiffContext(s.cur)
	s.tracker.DiffSourcesOf(s.cur)
	s.pollCurrent()
}
