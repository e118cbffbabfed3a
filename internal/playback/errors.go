package playback

import (
	"errors"
	"fmt"

	"github.com/audiotap/audiotap/internal/trace"
)

// ReplayError represents a fault detected while replaying a trace.
//
// Replay faults include:
//   - Bad trace: the stream is corrupt or ends without its terminator
//   - Identity desync: the trace references an id replay never bound
//   - Strict divergence: strict mode stops at the first divergence
type ReplayError struct {
	// Code identifies the error category.
	Code ReplayErrorCode

	// Message is a human-readable description.
	Message string

	// Index is the trace event the fault occurred at, -1 when it is
	// not tied to one event.
	Index int

	// Kind is the event kind at Index, zero when not applicable.
	Kind trace.Kind

	// Err is the underlying cause, if any.
	Err error
}

// ReplayErrorCode categorizes replay errors.
type ReplayErrorCode string

const (
	// ErrCodeBadTrace indicates the trace stream could not be decoded.
	ErrCodeBadTrace ReplayErrorCode = "BAD_TRACE"

	// ErrCodeIdentityDesync indicates the trace referenced an identity
	// replay has no binding for.
	ErrCodeIdentityDesync ReplayErrorCode = "IDENTITY_DESYNC"

	// ErrCodeDiverged indicates strict mode stopped at a divergence.
	ErrCodeDiverged ReplayErrorCode = "DIVERGED"
)

// Error implements the error interface.
func (e *ReplayError) Error() string {
	if e.Index >= 0 && e.Kind != 0 {
		return fmt.Sprintf("%s: %s (event %d, %s)", e.Code, e.Message, e.Index, e.Kind)
	}
	if e.Index >= 0 {
		return fmt.Sprintf("%s: %s (event %d)", e.Code, e.Message, e.Index)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ReplayError) Unwrap() error { return e.Err }

// IsDivergence reports whether err is a strict-mode divergence stop.
func IsDivergence(err error) bool {
	var re *ReplayError
	return errors.As(err, &re) && re.Code == ErrCodeDiverged
}

func newBadTrace(err error) *ReplayError {
	return &ReplayError{
		Code:    ErrCodeBadTrace,
		Message: "trace stream unreadable",
		Index:   -1,
		Err:     err,
	}
}

func newDesync(e *trace.Event, what string) *ReplayError {
	return &ReplayError{
		Code:    ErrCodeIdentityDesync,
		Message: what,
		Index:   e.Index,
		Kind:    e.Kind,
	}
}

func newDiverged(d Divergence) *ReplayError {
	return &ReplayError{
		Code:    ErrCodeDiverged,
		Message: d.Detail,
		Index:   d.Index,
		Kind:    d.Kind,
	}
}
