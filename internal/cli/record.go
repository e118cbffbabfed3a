package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/audiotap/audiotap/internal/audio"
	"github.com/audiotap/audiotap/internal/capture"
	"github.com/audiotap/audiotap/internal/trace"
)

// RecordOptions holds flags for the record command.
type RecordOptions struct {
	*RootOptions
	Output   string
	Compress bool
	Stacks   bool
}

// NewRecordCommand creates the record command.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a sample workload against the software driver",
		Long: `Run a small built-in workload against the software driver and record
it to a trace file. The resulting trace exercises the full record
vocabulary, so it is handy as input for dump, replay, index and stats.

Examples:
  audiotap record -o sample.trace
  audiotap record -o sample.trace --compress --stacks`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "trace file to write")
	cmd.Flags().BoolVar(&opts.Compress, "compress", false, "compress the trace with zstd")
	cmd.Flags().BoolVar(&opts.Stacks, "stacks", false, "record call stacks")

	return cmd
}

func runRecord(opts *RecordOptions, cmd *cobra.Command) error {
	cfg := opts.Cfg()
	if !cmd.Flags().Changed("output") {
		opts.Output = cfg.Capture.Output
	}
	if !cmd.Flags().Changed("compress") {
		opts.Compress = cfg.Capture.Compress
	}
	if !cmd.Flags().Changed("stacks") {
		opts.Stacks = cfg.Capture.Stacks
	}

	var fault error
	sess, err := capture.Start(audio.NewSoft(), opts.Output, capture.Options{
		Stacks:     opts.Stacks,
		StackDepth: cfg.Capture.StackDepth,
		Compress:   opts.Compress,
		OnFatal:    func(err error) { fault = err },
	})
	if err != nil {
		return usage("failed to create trace", err)
	}

	sampleWorkload(sess)

	if err := sess.Close(); err != nil {
		return usage("failed to close trace", err)
	}
	if fault != nil {
		return usage("recording failed", fault)
	}

	p := newPrinter(opts.RootOptions, cmd)
	if p.JSON() {
		return p.Emit(map[string]string{"trace": opts.Output})
	}
	return p.Emit(fmt.Sprintf("Recorded sample workload to %s", opts.Output))
}

// sampleWorkload drives a short session with a full object lifecycle,
// queued streaming buffers, annotations, and one deliberate driver
// error. It avoids anything time-driven, so replaying the recording is
// divergence-free.
func sampleWorkload(s *capture.Session) {
	dev := s.OpenDevice("")
	ctx := s.CreateContext(dev, nil)
	s.MakeContextCurrent(ctx)

	s.PushScope("sample")
	srcs := s.GenSources(2)
	bufs := s.GenBuffers(3)
	s.Label(trace.ClassSource, uint64(srcs[0]), "music")

	pcm := make([]byte, 512)
	for _, b := range bufs {
		s.BufferData(b, audio.FormatMono16, pcm, 44100)
	}

	s.SetSourcef(srcs[0], audio.ParamGain, 0.8)
	s.SetSource3f(srcs[0], audio.ParamPosition, 1, 0, -1)
	s.SetListenerf(audio.ParamGain, 1)
	s.SourceQueueBuffers(srcs[0], bufs)
	s.SourcePlay(srcs[0])
	s.SourceStop(srcs[0])

	// One recorded fault, so error queries have something to show.
	s.SetDistanceModel(audio.DistanceModel(0x9999))
	s.ContextError(ctx)
	s.Message("teardown")

	// Sources go first; their queues pin the buffers.
	s.DeleteSources(srcs)
	s.DeleteBuffers(bufs)
	s.PopScope()
	s.MakeContextCurrent(0)
	s.DestroyContext(ctx)
	s.CloseDevice(dev)
}
