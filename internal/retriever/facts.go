package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/lorebook/lorebook/internal/cache"
	"github.com/lorebook/lorebook/internal/knowledge"
)

// retrieveFacts runs every fact query concurrently. A failed query only
// loses its own chunk; chunk order follows the request order.
func (s *SmartRetriever) retrieveFacts(ctx context.Context, logger *slog.Logger, queries []knowledge.FactQuery) []knowledge.Chunk {
	results := make([]*knowledge.Chunk, len(queries))
	var wg sync.WaitGroup
	for i, query := range queries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.retrieveFact(ctx, logger, query)
		}()
	}
	wg.Wait()

	var chunks []knowledge.Chunk
	for _, chunk := range results {
		if chunk != nil {
			chunks = append(chunks, *chunk)
		}
	}
	return chunks
}

func (s *SmartRetriever) retrieveFact(ctx context.Context, logger *slog.Logger, query knowledge.FactQuery) *knowledge.Chunk {
	key := cache.FactKey(query.Raw)
	var content string
	if s.cache.Get(ctx, key, &content) {
		return &knowledge.Chunk{Source: knowledge.SourceWikidata, Entity: query.Entity(), Content: content}
	}

	set, err := s.facts.ExecuteQuery(ctx, query)
	if err != nil {
		logger.Warn("fact query failed", "query", query.Raw, "error", err)
		return nil
	}
	if set.Empty() {
		logger.Info("fact query produced no facts", "query", query.Raw)
		return nil
	}

	var sb strings.Builder
	for _, fact := range set.Facts {
		fmt.Fprintf(&sb, "- %s: %s\n", fact.Property, fact.Value)
	}
	content = strings.TrimRight(sb.String(), "\n")
	s.cache.Set(ctx, key, content, s.cfg.CacheTTL)

	entity := set.EntityLabel
	if entity == "" {
		entity = query.Entity()
	}
	return &knowledge.Chunk{Source: knowledge.SourceWikidata, Entity: entity, Content: content}
}
