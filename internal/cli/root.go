// Package cli implements the lorebook command line interface.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lorebook/lorebook/internal/app"
	"github.com/lorebook/lorebook/internal/config"
)

const version = "0.1.0"

func NewRoot(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "lorebook",
		Short: "Lorebook retrieves encyclopedia, knowledge-graph and chat-history knowledge for conversations",
	}

	root.AddCommand(newServeCommand(logger))
	root.AddCommand(newRetrieveCommand(logger))
	root.AddCommand(newDocsCommand(logger))
	root.AddCommand(newFactCommand(logger))
	root.AddCommand(newHistoryCommand(logger))
	root.AddCommand(newCacheCommand(logger))
	root.AddCommand(newVersionCommand())

	return root
}

func newServeCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the retrieval core as an MCP server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			runtime, err := app.New(config.FromEnv(), logger)
			if err != nil {
				return err
			}
			defer runtime.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runtime.Run(ctx)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
		},
	}
}

// signalContext is the lifecycle of a one-shot command.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
