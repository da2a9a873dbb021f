package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lorebook/lorebook/internal/app"
	"github.com/lorebook/lorebook/internal/config"
	"github.com/lorebook/lorebook/internal/knowledge"
)

// newRetrieveCommand classifies a dialogue and resolves whatever knowledge
// it needs. The dialogue comes from the arguments or stdin.
func newRetrieveCommand(logger *slog.Logger) *cobra.Command {
	var groupID int64

	cmd := &cobra.Command{
		Use:   "retrieve [dialogue]",
		Short: "Classify a dialogue and retrieve the knowledge it needs",
		RunE: func(cmd *cobra.Command, args []string) error {
			dialogue := strings.TrimSpace(strings.Join(args, " "))
			if dialogue == "" {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read dialogue from stdin: %w", err)
				}
				dialogue = strings.TrimSpace(string(raw))
			}
			if dialogue == "" {
				return fmt.Errorf("no dialogue given")
			}

			runtime, err := app.New(config.FromEnv(), logger)
			if err != nil {
				return err
			}
			defer runtime.Close()

			ctx, cancel := signalContext()
			defer cancel()

			request, err := runtime.Classify(ctx, dialogue)
			if err != nil {
				return err
			}
			if request.Empty() {
				cmd.Println(newStyles().muted.Render("(dialogue needs no external knowledge)"))
				return nil
			}
			if request.History != nil && groupID != 0 {
				if err := runtime.ConnectBot(ctx); err != nil {
					return err
				}
			}

			cmd.Println(renderResult(runtime.Retrieve(ctx, request, dialogue, groupID)))
			return nil
		},
	}
	cmd.Flags().Int64Var(&groupID, "group", 0, "group id for chat history requests")
	return cmd
}

func newDocsCommand(logger *slog.Logger) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "docs <entity>...",
		Short: "Look up encyclopedia documents for entities",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runtime, err := app.New(config.FromEnv(), logger)
			if err != nil {
				return err
			}
			defer runtime.Close()

			request := &knowledge.Request{}
			for _, entity := range args {
				request.Docs = append(request.Docs, knowledge.DocRequest{
					Entity: entity,
					Source: knowledge.Source(source),
				})
			}

			ctx, cancel := signalContext()
			defer cancel()
			cmd.Println(renderResult(runtime.Retrieve(ctx, request, "", 0)))
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "preferred source (moegirl or wikipedia)")
	return cmd
}

func newFactCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "fact <entity.property>...",
		Short: "Query structured facts from the knowledge graph",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			request := &knowledge.Request{}
			for _, raw := range args {
				query, skipped, err := knowledge.ParseFactQuery(raw)
				if err != nil {
					return err
				}
				if len(skipped) > 0 {
					cmd.PrintErrf("skipping malformed pairs: %s\n", strings.Join(skipped, ", "))
				}
				request.Facts = append(request.Facts, query)
			}

			runtime, err := app.New(config.FromEnv(), logger)
			if err != nil {
				return err
			}
			defer runtime.Close()

			ctx, cancel := signalContext()
			defer cancel()
			cmd.Println(renderResult(runtime.Retrieve(ctx, request, "", 0)))
			return nil
		},
	}
}

func newHistoryCommand(logger *slog.Logger) *cobra.Command {
	var (
		hours    int
		count    int
		senders  []string
		keywords []string
		condense bool
	)

	cmd := &cobra.Command{
		Use:   "history <group-id>",
		Short: "Fetch and format recent group chat messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("group id %q is not a number", args[0])
			}

			runtime, err := app.New(config.FromEnv(), logger)
			if err != nil {
				return err
			}
			defer runtime.Close()

			ctx, cancel := signalContext()
			defer cancel()
			if err := runtime.ConnectBot(ctx); err != nil {
				return err
			}

			request := &knowledge.Request{History: &knowledge.HistoryRequest{
				Hours:     hours,
				Count:     count,
				SenderIDs: senders,
				Keywords:  keywords,
				Condense:  condense,
			}}
			cmd.Println(renderResult(runtime.Retrieve(ctx, request, "", groupID)))
			return nil
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 0, "only messages from the last N hours")
	cmd.Flags().IntVar(&count, "count", 50, "at most N messages")
	cmd.Flags().StringSliceVar(&senders, "sender", nil, "only messages from these sender ids")
	cmd.Flags().StringSliceVar(&keywords, "keyword", nil, "only messages containing any of these keywords")
	cmd.Flags().BoolVar(&condense, "condense", false, "summarize the transcript")
	return cmd
}

func newCacheCommand(logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Cache maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print cache entry counts and hit/miss counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			runtime, err := app.New(config.FromEnv(), logger)
			if err != nil {
				return err
			}
			defer runtime.Close()

			ctx, cancel := signalContext()
			defer cancel()
			total, expired, err := runtime.CacheSize(ctx)
			if err != nil {
				return err
			}
			cmd.Println(renderCacheStats(runtime.CacheStats(), total, expired))
			return nil
		},
	})
	return cmd
}
