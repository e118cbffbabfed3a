package cli

import (
	"github.com/spf13/cobra"

	"github.com/audiotap/audiotap/internal/dump"
)

// DumpOptions holds flags for the dump command.
type DumpOptions struct {
	*RootOptions
	Stacks      bool
	State       bool
	Errors      bool
	Annotations bool
	All         bool
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DumpOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dump <trace>",
		Short: "Print a trace as readable text",
		Long: `Print every recorded call as one line of text, in stream order.

Calls are always shown. Call stacks, implicit state changes, latched
errors, and application annotations are opt-in.

Examples:
  audiotap dump session.trace
  audiotap dump session.trace --state --errors
  audiotap dump session.trace --all --stacks`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(opts, cmd, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Stacks, "stacks", false, "show recorded call stacks")
	cmd.Flags().BoolVar(&opts.State, "state", false, "show implicit state changes")
	cmd.Flags().BoolVar(&opts.Errors, "errors", false, "show raised driver errors")
	cmd.Flags().BoolVar(&opts.Annotations, "annotations", false, "show scopes, messages and labels")
	cmd.Flags().BoolVar(&opts.All, "all", false, "show every record kind")

	return cmd
}

func runDump(opts *DumpOptions, cmd *cobra.Command, path string) error {
	dec, closeTrace, err := openTrace(path)
	if err != nil {
		return err
	}
	defer closeTrace()

	if opts.All {
		opts.State = true
		opts.Errors = true
		opts.Annotations = true
	}

	d := dump.New(cmd.OutOrStdout(), dump.Options{
		Stacks:       opts.Stacks,
		StateChanges: opts.State,
		Errors:       opts.Errors,
		Annotations:  opts.Annotations,
	})
	if err := d.Run(dec); err != nil {
		return usage("failed to dump trace", err)
	}

	newPrinter(opts.RootOptions, cmd).Diagf("%d events", d.Events())
	return nil
}
