package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

const selectorSystemPrompt = `你是一个消歧义助手。根据对话内容，从候选条目中选出最符合语境的一个。
输出分隔符 ---JSON--- 和一个JSON对象：{"selected_title": "候选标题"}。
如果没有任何候选符合语境，输出 {"selected_title": ""}。`

// Selector picks the document candidate that best fits the conversation.
type Selector struct {
	provider Provider
	logger   *slog.Logger
}

func NewSelector(provider Provider, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{provider: provider, logger: logger}
}

// SelectBest returns the chosen candidate's title, or "" when the model
// declines to pick one. The caller must still verify the title against its
// own candidate list.
func (s *Selector) SelectBest(ctx context.Context, dialogue, entity string, candidates []DocCandidate) (string, error) {
	if len(candidates) == 0 {
		return "", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "对话:\n%s\n\n正在查询的实体: %s\n\n候选条目:\n", dialogue, entity)
	for i, candidate := range candidates {
		fmt.Fprintf(&sb, "%d. %s", i+1, candidate.Title)
		if candidate.Snippet != "" {
			fmt.Fprintf(&sb, " — %s", candidate.Snippet)
		}
		sb.WriteString("\n")
	}

	response, err := s.provider.Complete(ctx, selectorSystemPrompt, sb.String())
	if err != nil {
		return "", fmt.Errorf("select candidate for %q: %w", entity, err)
	}

	decoded, ok := ExtractJSON(response, ExtractOptions{Required: []string{"selected_title"}})
	if !ok {
		s.logger.Warn("selector reply carried no selected_title", "entity", entity)
		return "", nil
	}
	var title string
	if err := json.Unmarshal(decoded["selected_title"], &title); err != nil {
		s.logger.Warn("selected_title is not a string", "entity", entity, "error", err)
		return "", nil
	}
	return strings.TrimSpace(title), nil
}
