package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lorebook/lorebook/internal/knowledge"
)

const classifierSystemPrompt = `你是一个对话分析助手。阅读对话后判断回答是否需要外部知识，并输出查询计划。
先输出简短分析，然后输出分隔符 ---JSON--- 和一个JSON对象：
{"required_docs": {"实体名": "wikipedia|moegirl|wikidata|chat_history"},
 "required_facts": ["实体.属性", "[提示词].实体.属性"],
 "chat_history": {"hours": 0, "count": 0, "sender_ids": [], "keywords": []}}
不需要的键可以省略。若无需任何查询，输出 ---JSON--- {}`

// Classifier turns a conversation into a structured knowledge request.
type Classifier struct {
	provider Provider
	logger   *slog.Logger
}

func NewClassifier(provider Provider, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{provider: provider, logger: logger}
}

// classifierPayload is the wire shape the model is asked to produce. Docs
// keep the legacy entity→source map form; the adapter in knowledge turns it
// into the canonical request.
type classifierPayload struct {
	RequiredDocs  map[string]string         `json:"required_docs"`
	RequiredFacts []string                  `json:"required_facts"`
	ChatHistory   *knowledge.HistoryRequest `json:"chat_history"`
}

// Classify analyzes the dialogue and returns the knowledge request, or nil
// when no external knowledge is needed. Provider errors propagate so the
// caller can decide to skip retrieval for the turn.
func (c *Classifier) Classify(ctx context.Context, dialogue string) (*knowledge.Request, error) {
	if strings.TrimSpace(dialogue) == "" {
		return nil, nil
	}
	response, err := c.provider.Complete(ctx, classifierSystemPrompt, dialogue)
	if err != nil {
		return nil, fmt.Errorf("classify dialogue: %w", err)
	}

	decoded, ok := ExtractJSON(response, ExtractOptions{
		Optional: []string{"required_docs", "required_facts", "chat_history"},
	})
	if !ok {
		c.logger.Warn("classifier reply carried no JSON payload")
		return nil, nil
	}

	var payload classifierPayload
	raw, err := json.Marshal(decoded)
	if err != nil {
		return nil, fmt.Errorf("reassemble classifier payload: %w", err)
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.logger.Warn("classifier payload has unexpected shape", "error", err)
		return nil, nil
	}

	request, skipped := knowledge.FromLegacy(payload.RequiredDocs, payload.RequiredFacts, payload.ChatHistory)
	for _, pair := range skipped {
		c.logger.Warn("classifier emitted malformed fact target", "pair", pair)
	}
	if request.Empty() {
		c.logger.Debug("classifier decided no knowledge is needed")
		return nil, nil
	}
	return request, nil
}
