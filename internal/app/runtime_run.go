package app

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/lorebook/lorebook/internal/config"
	"github.com/lorebook/lorebook/internal/mcpserver"
)

// Run starts the long-lived components and blocks until the context ends or
// one of them fails: the cache janitor, the bot connection (when configured),
// the overrides watcher (when configured) and the MCP server on stdio.
func (r *Runtime) Run(ctx context.Context) error {
	r.logger.Info("lorebook runtime starting",
		"db", r.cfg.DBPath,
		"onebot", r.cfg.OneBotURL != "",
		"overrides", r.cfg.OverridesFilePath != "")

	server, err := mcpserver.New(mcpserver.Config{Name: "lorebook"}, r, r.logger.With("component", "mcp"))
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return r.janitor.Start(groupCtx)
	})
	if r.onebot != nil {
		group.Go(func() error {
			return r.onebot.Run(groupCtx)
		})
	}
	group.Go(func() error {
		return config.Watch(groupCtx, r.cfg.OverridesFilePath, r.logger.With("component", "overrides"), r.applyOverrides)
	})
	group.Go(func() error {
		return server.Run(groupCtx, &mcp.StdioTransport{})
	})
	return group.Wait()
}
