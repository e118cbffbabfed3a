package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/audiotap/audiotap/internal/trace"
)

// InfoOptions holds flags for the info command.
type InfoOptions struct {
	*RootOptions
}

// InfoResult holds the trace header and scan totals.
type InfoResult struct {
	Session      string `json:"session"`
	Version      uint32 `json:"version"`
	Events       int    `json:"events"`
	Calls        int    `json:"calls"`
	StateChanges int    `json:"state_changes"`
	Annotations  int    `json:"annotations"`
	Threads      int    `json:"threads"`
	DurationMs   uint32 `json:"duration_ms"`
	Complete     bool   `json:"complete"`
}

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InfoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "info <trace>",
		Short: "Show a trace's header and totals",
		Long: `Scan a trace once and report its session id, format version, event
totals, and whether it ends with a terminator record. A missing
terminator means the recorded process died mid-capture.

Examples:
  audiotap info session.trace
  audiotap info session.trace --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(opts, cmd, args[0])
		},
	}

	return cmd
}

func runInfo(opts *InfoOptions, cmd *cobra.Command, path string) error {
	dec, closeTrace, err := openTrace(path)
	if err != nil {
		return err
	}
	defer closeTrace()

	h := dec.Header()
	result := InfoResult{
		Session: h.Session.String(),
		Version: h.Version,
	}

	threads := map[uint32]bool{}
	for {
		e, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A decode fault ends the scan; everything before it still
			// counts.
			break
		}
		switch {
		case e.Kind == trace.KindSymbol:
			continue
		case e.Kind == trace.KindEos:
			result.Complete = true
		case e.Kind == trace.KindStateChange:
			result.StateChanges++
		case e.Kind.IsAnnotation():
			result.Annotations++
		case e.Kind.IsCall():
			result.Calls++
			threads[e.Thread] = true
		}
		result.Events++
		if e.TimeMs > result.DurationMs {
			result.DurationMs = e.TimeMs
		}
	}
	result.Threads = len(threads)

	p := newPrinter(opts.RootOptions, cmd)
	if p.JSON() {
		return p.Emit(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Session:       %s\n", result.Session)
	fmt.Fprintf(w, "Version:       %d\n", result.Version)
	fmt.Fprintf(w, "Events:        %d\n", result.Events)
	fmt.Fprintf(w, "Calls:         %d\n", result.Calls)
	fmt.Fprintf(w, "State changes: %d\n", result.StateChanges)
	fmt.Fprintf(w, "Annotations:   %d\n", result.Annotations)
	fmt.Fprintf(w, "Threads:       %d\n", result.Threads)
	fmt.Fprintf(w, "Duration:      %dms\n", result.DurationMs)
	if !result.Complete {
		fmt.Fprintln(w, "Truncated: no terminator record")
	}
	return nil
}
