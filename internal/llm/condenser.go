package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lorebook/lorebook/internal/knowledge"
)

const condenserEncyclopediaPrompt = `你是一个知识整理助手。下面是关于「%s」的百科原文。
结合对话语境，提炼其中与对话相关的背景知识，保留具体的名称、数字和时间，输出一段紧凑的中文纯文本。不要输出任何解释或前言。`

const condenserChatPrompt = `你是一个群聊记录整理助手。下面是一段群聊历史。
结合对话语境，总结其中与「%s」相关的讨论要点，保留发言者和关键信息，输出一段紧凑的中文纯文本。不要输出任何解释或前言。`

// Condenser reduces long source text to a conversation-relevant digest.
type Condenser struct {
	provider Provider
	logger   *slog.Logger
}

func NewCondenser(provider Provider, logger *slog.Logger) *Condenser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Condenser{provider: provider, logger: logger}
}

// Condense summarizes fullText for injection. The prompt differs by source:
// chat history keeps speakers, encyclopedia text keeps hard facts. An empty
// model reply is an error so the caller can fall back to a truncated
// excerpt.
func (c *Condenser) Condense(ctx context.Context, source knowledge.Source, fullText, entity, dialogue string) (string, error) {
	prompt := condenserEncyclopediaPrompt
	if source == knowledge.SourceChatHistory {
		prompt = condenserChatPrompt
	}
	system := fmt.Sprintf(prompt, entity)

	var sb strings.Builder
	if strings.TrimSpace(dialogue) != "" {
		fmt.Fprintf(&sb, "对话语境:\n%s\n\n", dialogue)
	}
	fmt.Fprintf(&sb, "原文:\n%s", fullText)

	response, err := c.provider.Complete(ctx, system, sb.String())
	if err != nil {
		return "", fmt.Errorf("condense %s text for %q: %w", source, entity, err)
	}
	response = strings.TrimSpace(response)
	if response == "" {
		return "", fmt.Errorf("condenser returned empty text for %q", entity)
	}
	return response, nil
}
