package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"repochat/internal/commands"
	"repochat/internal/indexing"
	"repochat/internal/query"
	"repochat/internal/tui"
)

func runChat(cmd *cobra.Command, opts *globalOptions) error {
	s, err := openSession(opts, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
	defer stop()

	answerer, err := query.NewPipeline(s.resolver, s.store, s.repo.Config().Query.EmbeddingCacheSize, s.log.With().Str("component", "query").Logger())
	if err != nil {
		return err
	}
	indexer := indexing.NewPipeline(s.resolver, s.store, s.log.With().Str("component", "indexing").Logger())

	cmds := make(chan commands.Command, commands.CommandBuffer)
	events := make(chan commands.Event, commands.EventBuffer)
	coord := commands.New(s.repo, indexer, answerer, cmds, events, s.log)

	coordCtx, cancel := context.WithCancel(ctx)
	coordDone := make(chan error, 1)
	go func() { coordDone <- coord.Run(coordCtx) }()

	p := tea.NewProgram(tui.New(s.repo.Path(), cmds, events), tea.WithAltScreen(), tea.WithContext(ctx))
	_, uiErr := p.Run()

	cancel()
	coordErr := <-coordDone

	if uiErr != nil && ctx.Err() == nil {
		return fmt.Errorf("ui: %w", uiErr)
	}
	if coordErr != nil {
		fmt.Fprintln(os.Stderr, "coordinator:", coordErr)
	}
	s.log.Info().Msg("shutdown complete")
	return nil
}
