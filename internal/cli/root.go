// Package cli wires configuration, pipelines and the chat UI into the
// repochat command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type globalOptions struct {
	configFile string
	root       string
}

// NewRootCmd builds the command tree. The bare command starts the chat UI.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "repochat",
		Short: "Chat with a code repository",
		Long: `repochat indexes a source code repository into a vector store and
answers questions about it in an interactive terminal chat.

Configuration is read from repochat.yaml in the repository root,
<root>/.repochat/ or ~/.config/repochat/, and REPOCHAT_* environment
variables. Run "repochat config init" to write a starting file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default is repochat.yaml in the repository root)")
	cmd.PersistentFlags().StringVar(&opts.root, "root", ".", "repository root")

	cmd.AddCommand(
		newIndexCmd(opts),
		newQueryCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
