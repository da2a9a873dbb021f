package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lorebook/lorebook/internal/knowledge"
)

type DocumentLookup struct {
	Entity string `json:"entity" jsonschema:"Entity name to look up"`
	Source string `json:"source,omitempty" jsonschema:"Preferred source: moegirl or wikipedia"`
}

type LookupDocumentsInput struct {
	Documents []DocumentLookup `json:"documents" jsonschema:"Entities to look up, each with an optional preferred source"`
	Dialogue  string           `json:"dialogue,omitempty" jsonschema:"Recent conversation context used for disambiguation and condensing"`
}

type QueryFactsInput struct {
	Queries  []string `json:"queries" jsonschema:"Fact queries in entity.property form"`
	Dialogue string   `json:"dialogue,omitempty" jsonschema:"Recent conversation context"`
}

type GroupChatHistoryInput struct {
	GroupID   int64    `json:"group_id" jsonschema:"Numeric id of the chat group"`
	Hours     int      `json:"hours,omitempty" jsonschema:"Only messages from the last N hours"`
	Count     int      `json:"count,omitempty" jsonschema:"At most N messages"`
	SenderIDs []string `json:"sender_ids,omitempty" jsonschema:"Only messages from these sender ids"`
	Keywords  []string `json:"keywords,omitempty" jsonschema:"Only messages containing any of these keywords"`
	Condense  bool     `json:"condense,omitempty" jsonschema:"Summarize the transcript instead of returning it verbatim"`
}

func (s *Server) LookupDocuments(ctx context.Context, _ *mcp.CallToolRequest, input LookupDocumentsInput) (*mcp.CallToolResult, any, error) {
	request := &knowledge.Request{}
	for _, doc := range input.Documents {
		entity := strings.TrimSpace(doc.Entity)
		if entity == "" {
			continue
		}
		request.Docs = append(request.Docs, knowledge.DocRequest{
			Entity: entity,
			Source: knowledge.Source(strings.TrimSpace(doc.Source)),
		})
	}
	if len(request.Docs) == 0 {
		return errorResult("no entities given"), nil, nil
	}

	result := s.retriever.Retrieve(ctx, request, input.Dialogue, 0)
	return textResult(result.ContextBlock(), "no document found for the given entities"), nil, nil
}

func (s *Server) QueryFacts(ctx context.Context, _ *mcp.CallToolRequest, input QueryFactsInput) (*mcp.CallToolResult, any, error) {
	request := &knowledge.Request{}
	var bad []string
	for _, raw := range input.Queries {
		query, skipped, err := knowledge.ParseFactQuery(raw)
		bad = append(bad, skipped...)
		if err != nil {
			continue
		}
		request.Facts = append(request.Facts, query)
	}
	if len(request.Facts) == 0 {
		return errorResult(fmt.Sprintf("no usable fact query (skipped: %s)", strings.Join(bad, ", "))), nil, nil
	}
	if len(bad) > 0 {
		s.logger.Warn("skipped malformed fact pairs", "pairs", bad)
	}

	result := s.retriever.Retrieve(ctx, request, input.Dialogue, 0)
	return textResult(result.ContextBlock(), "no facts resolved for the given queries"), nil, nil
}

func (s *Server) GroupChatHistory(ctx context.Context, _ *mcp.CallToolRequest, input GroupChatHistoryInput) (*mcp.CallToolResult, any, error) {
	if input.GroupID == 0 {
		return errorResult("group_id is required"), nil, nil
	}
	request := &knowledge.Request{History: &knowledge.HistoryRequest{
		Hours:     input.Hours,
		Count:     input.Count,
		SenderIDs: input.SenderIDs,
		Keywords:  input.Keywords,
		Condense:  input.Condense,
	}}

	result := s.retriever.Retrieve(ctx, request, "", input.GroupID)
	return textResult(result.ContextBlock(), "no messages matched"), nil, nil
}

func textResult(text, emptyNote string) *mcp.CallToolResult {
	if strings.TrimSpace(text) == "" {
		text = emptyNote
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: message}},
		IsError: true,
	}
}
