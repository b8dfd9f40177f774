package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"repochat/internal/query"
)

func newQueryCmd(opts *globalOptions) *cobra.Command {
	var sources bool
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask one question and print the answer",
		Long: `Query answers a single question about an indexed repository and streams
the answer to stdout.

Examples:
  repochat query "Where is the configuration loaded?"
  repochat query --sources "How are errors reported?"
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts, strings.Join(args, " "), sources)
		},
	}
	cmd.Flags().BoolVar(&sources, "sources", false, "print the retrieved chunks before the answer")
	return cmd
}

func runQuery(cmd *cobra.Command, opts *globalOptions, question string, sources bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(opts, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	pipeline, err := query.NewPipeline(s.resolver, s.store, s.repo.Config().Query.EmbeddingCacheSize, s.log)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if sources {
		r, err := pipeline.Retrieve(ctx, s.repo, question)
		if err != nil {
			return err
		}
		for _, res := range r.Results {
			fmt.Fprintf(cmd.ErrOrStderr(), "%.3f  %s:%d-%d\n", res.Score, res.Chunk.Path, res.Chunk.StartLine, res.Chunk.EndLine)
		}
	}

	stream, err := pipeline.Answer(ctx, s.repo, question)
	if err != nil {
		return err
	}
	for f := range stream {
		if f.Err != nil {
			return fmt.Errorf("answer: %w", f.Err)
		}
		fmt.Fprint(out, f.Text)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	fmt.Fprintln(out)
	return nil
}
