package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/audiotap/audiotap/internal/index"
)

// IndexOptions holds flags for the index command.
type IndexOptions struct {
	*RootOptions
	Database string
}

// IndexResult holds the index build summary.
type IndexResult struct {
	Trace    string `json:"trace"`
	Database string `json:"database"`
	Events   int    `json:"events"`
}

// NewIndexCommand creates the index command.
func NewIndexCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IndexOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "index <trace>",
		Short: "Build a SQLite index for a trace",
		Long: `Decode a trace once and load it into a SQLite database, so stats and
object-history queries run without rescanning the file.

Examples:
  audiotap index session.trace --db session.db
  audiotap index session.trace --db session.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database to write (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runIndex(opts *IndexOptions, cmd *cobra.Command, path string) error {
	dec, closeTrace, err := openTrace(path)
	if err != nil {
		return err
	}
	defer closeTrace()

	st, err := index.Open(opts.Database)
	if err != nil {
		return usage("failed to open database", err)
	}
	defer st.Close()

	n, err := st.Build(cmd.Context(), dec)
	if err != nil {
		return usage("failed to build index", err)
	}

	p := newPrinter(opts.RootOptions, cmd)
	if p.JSON() {
		return p.Emit(IndexResult{Trace: path, Database: opts.Database, Events: n})
	}
	return p.Emit(fmt.Sprintf("Indexed %d events into %s", n, opts.Database))
}
