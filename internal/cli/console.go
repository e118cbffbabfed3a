package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// Process exit codes. Commands surface failures as errors; main maps
// them back through ExitCode.
const (
	ExitOK       = 0
	ExitDiverged = 1 // the replay differs from the recording
	ExitUsage    = 2 // bad flags, unreadable files, broken config
)

// statusError carries the exit code a command decided on.
type statusError struct {
	code int
	msg  string
	err  error
}

func (e *statusError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *statusError) Unwrap() error { return e.err }

// usage marks err as a usage or environment problem.
func usage(msg string, err error) error {
	return &statusError{code: ExitUsage, msg: msg, err: err}
}

// diverged reports that the replay ran but did not match the recording.
func diverged(format string, args ...any) error {
	return &statusError{code: ExitDiverged, msg: fmt.Sprintf(format, args...)}
}

// ExitCode maps a command error to the process exit code. Errors that
// never picked a code (flag parsing, unknown commands) count as usage
// problems.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code
	}
	return ExitUsage
}

// Printer writes command results in the format selected by --format.
// Verbose diagnostics go to Diag, so JSON on Out stays parseable.
type Printer struct {
	Format  string
	Out     io.Writer
	Diag    io.Writer
	Verbose bool
}

// newPrinter builds a command's Printer from the global flags.
func newPrinter(opts *RootOptions, cmd *cobra.Command) *Printer {
	return &Printer{
		Format:  opts.Format,
		Out:     cmd.OutOrStdout(),
		Diag:    cmd.ErrOrStderr(),
		Verbose: opts.Verbose,
	}
}

// report is the envelope emitted with --format json.
type report struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
}

// JSON reports whether the JSON envelope was selected.
func (p *Printer) JSON() bool { return p.Format == "json" }

// Emit writes one command result: the JSON envelope, or its plain text
// form.
func (p *Printer) Emit(data any) error {
	if p.JSON() {
		return json.NewEncoder(p.Out).Encode(report{Status: "ok", Data: data})
	}
	fmt.Fprintln(p.Out, data)
	return nil
}

// Diagf writes one verbose diagnostic line.
func (p *Printer) Diagf(format string, args ...any) {
	if !p.Verbose {
		return
	}
	w := p.Diag
	if w == nil {
		w = p.Out
	}
	fmt.Fprintf(w, format+"\n", args...)
}
