package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/audiotap/audiotap/internal/index"
	"github.com/audiotap/audiotap/internal/trace"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	Database string
	Errors   bool
	Object   string // "source:1", "device:0x5a11", ...
}

// StatsResult holds the stats query output.
type StatsResult struct {
	Events       int          `json:"events"`
	Calls        int          `json:"calls"`
	StateChanges int          `json:"state_changes"`
	ErrorsRaised int          `json:"errors_raised"`
	Threads      int          `json:"threads"`
	DurationMs   int          `json:"duration_ms"`
	Kinds        []StatsKind  `json:"kinds"`
	Errors       []StatsEvent `json:"errors,omitempty"`
	History      []StatsEvent `json:"history,omitempty"`
}

// StatsKind is one row of the per-operation breakdown.
type StatsKind struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// StatsEvent is one indexed event in an errors or history listing.
type StatsEvent struct {
	Index   int    `json:"index"`
	TimeMs  uint32 `json:"time_ms"`
	Summary string `json:"summary"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Query an indexed trace",
		Long: `Summarize an indexed trace: event totals, the per-operation
breakdown, recorded errors, and per-object histories.

Requires a database built with "audiotap index".

Examples:
  audiotap stats --db session.db
  audiotap stats --db session.db --errors
  audiotap stats --db session.db --object source:1`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database built by index (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().BoolVar(&opts.Errors, "errors", false, "list every record that carried an error")
	cmd.Flags().StringVar(&opts.Object, "object", "", "show one object's history (class:id, e.g. source:1)")

	return cmd
}

func runStats(opts *StatsOptions, cmd *cobra.Command) error {
	st, err := index.Open(opts.Database)
	if err != nil {
		return usage("failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	stats, err := st.Stats(ctx)
	if err != nil {
		return usage("failed to query stats", err)
	}

	result := StatsResult{
		Events:       stats.Events,
		Calls:        stats.Calls,
		StateChanges: stats.StateChanges,
		ErrorsRaised: stats.ErrorsRaised,
		Threads:      stats.Threads,
		DurationMs:   stats.DurationMs,
	}
	for _, kc := range stats.Kinds {
		result.Kinds = append(result.Kinds, StatsKind{Name: kc.Name, Count: kc.Count})
	}

	if opts.Errors {
		rows, err := st.Errors(ctx)
		if err != nil {
			return usage("failed to query errors", err)
		}
		for _, r := range rows {
			result.Errors = append(result.Errors, StatsEvent{Index: r.Index, TimeMs: r.TimeMs, Summary: r.Summary})
		}
	}

	if opts.Object != "" {
		class, id, err := parseObject(opts.Object)
		if err != nil {
			return usage("invalid --object", err)
		}
		rows, err := st.History(ctx, class, id)
		if err != nil {
			return usage("failed to query history", err)
		}
		for _, r := range rows {
			result.History = append(result.History, StatsEvent{Index: r.Index, TimeMs: r.TimeMs, Summary: r.Summary})
		}
	}

	p := newPrinter(opts.RootOptions, cmd)
	if p.JSON() {
		return p.Emit(result)
	}
	writeStatsText(p, result, opts)
	return nil
}

// parseObject splits a class:id spec. The id accepts the bases
// strconv does, so device and context handles can be given in hex.
func parseObject(s string) (trace.Class, uint64, error) {
	name, idStr, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("want class:id, got %q", s)
	}
	var class trace.Class
	switch name {
	case "device":
		class = trace.ClassDevice
	case "context":
		class = trace.ClassContext
	case "source":
		class = trace.ClassSource
	case "buffer":
		class = trace.ClassBuffer
	default:
		return 0, 0, fmt.Errorf("unknown class %q", name)
	}
	id, err := strconv.ParseUint(idStr, 0, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad id %q: %v", idStr, err)
	}
	return class, id, nil
}

func writeStatsText(pr *Printer, r StatsResult, opts *StatsOptions) {
	w := pr.Out
	p := message.NewPrinter(language.English)

	p.Fprintf(w, "Events:        %d\n", r.Events)
	p.Fprintf(w, "Calls:         %d\n", r.Calls)
	p.Fprintf(w, "State changes: %d\n", r.StateChanges)
	p.Fprintf(w, "Errors raised: %d\n", r.ErrorsRaised)
	p.Fprintf(w, "Threads:       %d\n", r.Threads)
	p.Fprintf(w, "Duration:      %dms\n", r.DurationMs)

	if len(r.Kinds) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Operations ===")
		for _, k := range r.Kinds {
			p.Fprintf(w, "  %-24s %d\n", k.Name, k.Count)
		}
	}

	if opts.Errors {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Errors ===")
		if len(r.Errors) == 0 {
			fmt.Fprintln(w, "  (none)")
		}
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  %dms #%d %s\n", e.TimeMs, e.Index, e.Summary)
		}
	}

	if opts.Object != "" {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "=== History of %s ===\n", opts.Object)
		if len(r.History) == 0 {
			fmt.Fprintln(w, "  (no events)")
		}
		for _, e := range r.History {
			fmt.Fprintf(w, "  %dms #%d %s\n", e.TimeMs, e.Index, e.Summary)
		}
	}
}
