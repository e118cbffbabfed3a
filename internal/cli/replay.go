package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/audiotap/audiotap/internal/audio"
	"github.com/audiotap/audiotap/internal/playback"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Speed   float64
	Unpaced bool
	Strict  bool
	Device  string
}

// ReplayDivergence is one divergence in the JSON report.
type ReplayDivergence struct {
	Index  int    `json:"index"`
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// ReplayResult holds the replay summary.
type ReplayResult struct {
	Events       int                `json:"events"`
	Calls        int                `json:"calls"`
	Skipped      int                `json:"skipped"`
	Fallbacks    int                `json:"fallbacks"`
	StateChanges int                `json:"state_changes"`
	DurationMs   int64              `json:"duration_ms"`
	Divergences  []ReplayDivergence `json:"divergences"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <trace>",
		Short: "Re-execute a trace against the software driver",
		Long: `Re-execute every recorded call against the built-in software driver,
pinning each created object to its recorded identity and pacing calls
by their recorded timestamps.

Differences between the recorded run and this one are reported as
divergences. The exit code is 1 when any divergence was found.

Examples:
  audiotap replay session.trace
  audiotap replay session.trace --speed 4
  audiotap replay session.trace --unpaced --strict`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd, args[0])
		},
	}

	cmd.Flags().Float64Var(&opts.Speed, "speed", 1, "pacing multiplier (2 = twice the recorded pace)")
	cmd.Flags().BoolVar(&opts.Unpaced, "unpaced", false, "replay as fast as possible")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "stop at the first divergence")
	cmd.Flags().StringVar(&opts.Device, "device", "", "override every recorded device name")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command, path string) error {
	cfg := opts.Cfg()
	if !cmd.Flags().Changed("speed") && cfg.Replay.Speed != 0 {
		opts.Speed = cfg.Replay.Speed
	}
	if !cmd.Flags().Changed("strict") {
		opts.Strict = cfg.Replay.Strict
	}
	if !cmd.Flags().Changed("device") {
		opts.Device = cfg.Replay.Device
	}

	dec, closeTrace, err := openTrace(path)
	if err != nil {
		return err
	}
	defer closeTrace()

	p := newPrinter(opts.RootOptions, cmd)

	speed := opts.Speed
	if opts.Unpaced {
		speed = 0
	}
	player := playback.New(audio.NewSoft(), playback.Options{
		Speed:  speed,
		Strict: opts.Strict,
		Device: opts.Device,
		OnDivergence: func(d playback.Divergence) {
			p.Diagf("divergence at #%d %s: %s", d.Index, d.Kind.Name(), d.Detail)
		},
	})

	rep, playErr := player.Play(cmd.Context(), dec)
	if playErr != nil && !playback.IsDivergence(playErr) {
		return usage("replay failed", playErr)
	}

	result := ReplayResult{
		Events:       rep.Events,
		Calls:        rep.Calls,
		Skipped:      rep.Skipped,
		Fallbacks:    rep.Fallbacks,
		StateChanges: rep.StateChanges,
		DurationMs:   rep.Duration.Milliseconds(),
		Divergences:  make([]ReplayDivergence, 0, len(rep.Divergences)),
	}
	for _, d := range rep.Divergences {
		result.Divergences = append(result.Divergences, ReplayDivergence{
			Index:  d.Index,
			Kind:   d.Kind.Name(),
			Detail: d.Detail,
		})
	}

	if p.JSON() {
		if err := p.Emit(result); err != nil {
			return err
		}
	} else {
		writeReplayText(p, result)
	}

	if len(result.Divergences) > 0 {
		return diverged("replay diverged %d time(s)", len(result.Divergences))
	}
	return nil
}

func writeReplayText(p *Printer, r ReplayResult) {
	w := p.Out
	fmt.Fprintf(w, "Replayed %d events (%d calls) in %dms\n", r.Events, r.Calls, r.DurationMs)
	fmt.Fprintf(w, "  Skipped:       %d\n", r.Skipped)
	fmt.Fprintf(w, "  Fallbacks:     %d\n", r.Fallbacks)
	fmt.Fprintf(w, "  State changes: %d\n", r.StateChanges)

	if len(r.Divergences) == 0 {
		fmt.Fprintln(w, "No divergences.")
		return
	}
	fmt.Fprintf(w, "Divergences: %d\n", len(r.Divergences))
	for _, d := range r.Divergences {
		fmt.Fprintf(w, "  #%d %s: %s\n", d.Index, d.Kind, d.Detail)
	}
}
