// Package mcpserver exposes the retrieval core as MCP tools over a stdio
// transport, so agent frontends can pull knowledge on demand.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lorebook/lorebook/internal/knowledge"
)

// Retriever is the slice of the orchestrator the tools need.
type Retriever interface {
	Retrieve(ctx context.Context, request *knowledge.Request, dialogue string, groupID int64) *knowledge.Result
}

type Config struct {
	Name    string
	Version string
}

// Server wraps the MCP SDK server around the retrieval orchestrator.
type Server struct {
	mcpServer *mcp.Server
	retriever Retriever
	logger    *slog.Logger
}

func New(cfg Config, retriever Retriever, logger *slog.Logger) (*Server, error) {
	if cfg.Name == "" {
		cfg.Name = "lorebook"
	}
	if cfg.Version == "" {
		cfg.Version = "0.1.0"
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{Name: cfg.Name, Version: cfg.Version}, nil),
		retriever: retriever,
		logger:    logger,
	}
	if err := s.registerTools(); err != nil {
		return nil, err
	}
	return s, nil
}

// Run serves the MCP protocol on the transport until the context ends.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

func (s *Server) registerTools() error {
	docSchema, err := jsonschema.For[LookupDocumentsInput](nil)
	if err != nil {
		return fmt.Errorf("schema for lookup_documents: %w", err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "lookup_documents",
		Description: "Look up encyclopedia documents for one or more entities. " +
			"Sources: moegirl (ACG topics), wikipedia (general topics).",
		InputSchema: docSchema,
	}, s.LookupDocuments)

	factSchema, err := jsonschema.For[QueryFactsInput](nil)
	if err != nil {
		return fmt.Errorf("schema for query_facts: %w", err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "query_facts",
		Description: "Query structured facts from the Wikidata knowledge graph. " +
			"Queries use the form 'entity.property', optionally joined with '|' " +
			"for synonyms or prefixed with '[hint1|hint2].' for disambiguation.",
		InputSchema: factSchema,
	}, s.QueryFacts)

	historySchema, err := jsonschema.For[GroupChatHistoryInput](nil)
	if err != nil {
		return fmt.Errorf("schema for group_chat_history: %w", err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: "group_chat_history",
		Description: "Fetch and format recent messages of one chat group, " +
			"optionally filtered by time window, sender ids or keywords.",
		InputSchema: historySchema,
	}, s.GroupChatHistory)

	return nil
}
