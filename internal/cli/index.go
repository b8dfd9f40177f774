package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"repochat/internal/indexing"
)

func newIndexCmd(opts *globalOptions) *cobra.Command {
	var (
		reset bool
		quiet bool
	)
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the repository without starting the chat",
		Long: `Index loads every file of the configured language, splits it into
chunks, generates question-and-answer metadata for each chunk, embeds the
chunks and stores them in the vector store.

Examples:
  # Index the current directory
  repochat index

  # Drop the existing index first
  repochat index --reset

  # Index another checkout without progress output
  repochat index --root ../service --quiet
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, opts, reset, quiet)
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "drop the existing index before indexing")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "disable progress output")
	return cmd
}

func runIndex(cmd *cobra.Command, opts *globalOptions, reset, quiet bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(opts, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	var progress *progressReporter
	if !quiet {
		progress = newProgressReporter(cmd.ErrOrStderr())
	}

	pipeline := indexing.NewPipeline(s.resolver, s.store, s.log)
	summary, err := pipeline.Run(ctx, s.repo, indexing.Options{Reset: reset}, progress.report)
	progress.finish()
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	fmt.Fprintf(out, "Indexed %d files into %d chunks", summary.Files, summary.Stored)
	if summary.Skipped > 0 {
		fmt.Fprintf(out, " (%d skipped, see %s)", summary.Skipped, s.repo.LogDir())
	}
	fmt.Fprintln(out)
	return nil
}

// progressReporter renders one progress bar per indexing stage. A nil
// reporter discards progress.
type progressReporter struct {
	w     io.Writer
	stage indexing.Stage
	bar   *progressbar.ProgressBar
}

func newProgressReporter(w io.Writer) *progressReporter {
	return &progressReporter{w: w}
}

func (r *progressReporter) report(p indexing.Progress) {
	if r == nil || p.Stage == indexing.StageDone {
		return
	}
	if p.Stage != r.stage {
		r.finish()
		r.stage = p.Stage
	}
	if p.Total <= 0 {
		return
	}
	if r.bar == nil {
		r.bar = progressbar.NewOptions(p.Total,
			progressbar.OptionSetWriter(r.w),
			progressbar.OptionSetDescription(stageDescription(p.Stage)),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(r.w)
			}),
		)
	}
	_ = r.bar.Set(p.Done)
}

func (r *progressReporter) finish() {
	if r == nil || r.bar == nil {
		return
	}
	_ = r.bar.Finish()
	r.bar = nil
}

func stageDescription(s indexing.Stage) string {
	switch s {
	case indexing.StageLoading:
		return "Loading files"
	case indexing.StageChunking:
		return "Chunking files"
	case indexing.StageIndexing:
		return "Indexing chunks"
	default:
		return string(s)
	}
}
