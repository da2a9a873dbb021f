package retriever

import (
	"context"
	"log/slog"
	"strings"

	"github.com/lorebook/lorebook/internal/knowledge"
)

const historyEntity = "群聊记录"

// retrieveHistory syncs the group's history and renders it as one chunk,
// optionally condensed. A condenser failure degrades to a truncated raw
// transcript rather than dropping the chunk.
func (s *SmartRetriever) retrieveHistory(ctx context.Context, logger *slog.Logger, request knowledge.HistoryRequest, dialogue string, groupID int64) []knowledge.Chunk {
	if groupID == 0 {
		logger.Warn("history requested outside a group context")
		return nil
	}
	lines, err := s.history.Messages(ctx, groupID, request)
	if err != nil {
		logger.Warn("history sync failed", "group", groupID, "error", err)
		return nil
	}
	if len(lines) == 0 {
		logger.Info("history sync returned no messages", "group", groupID)
		return nil
	}
	transcript := strings.Join(lines, "\n")

	content := transcript
	if request.Condense && s.condenser != nil {
		condensed, err := s.condenser.Condense(ctx, knowledge.SourceChatHistory, transcript, historyEntity, dialogue)
		if err != nil {
			logger.Warn("history condensing failed, using truncated transcript",
				"group", groupID, "error", err)
			content = truncateRunes(transcript, s.cfg.ExcerptLength)
		} else {
			content = condensed
		}
	}

	return []knowledge.Chunk{{
		Source:  knowledge.SourceChatHistory,
		Entity:  historyEntity,
		Content: content,
	}}
}
