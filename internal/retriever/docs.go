package retriever

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/lorebook/lorebook/internal/cache"
	"github.com/lorebook/lorebook/internal/knowledge"
	"github.com/lorebook/lorebook/internal/llm"
	"github.com/lorebook/lorebook/internal/wiki"
)

// emptySearchTTL bounds how long a source's "no results" answer is trusted.
const emptySearchTTL = 10 * time.Minute

func (s *SmartRetriever) retrieveDocs(ctx context.Context, logger *slog.Logger, requests []knowledge.DocRequest, dialogue string) []knowledge.Chunk {
	var chunks []knowledge.Chunk
	for _, request := range requests {
		if request.Source == knowledge.SourceChatHistory || request.Source == knowledge.SourceWikidata {
			// Handled by the history and fact branches.
			continue
		}
		if chunk := s.retrieveDocument(ctx, logger, request, dialogue); chunk != nil {
			chunks = append(chunks, *chunk)
		}
	}
	return chunks
}

// retrieveDocument tries each source in priority order and stops at the
// first that yields content. No source answering means no chunk: a wrong
// article is worse than none.
func (s *SmartRetriever) retrieveDocument(ctx context.Context, logger *slog.Logger, request knowledge.DocRequest, dialogue string) *knowledge.Chunk {
	for _, source := range s.sourceOrder(request.Source) {
		chunk, err := s.documentFromSource(ctx, logger, source, request.Entity, dialogue)
		if err != nil {
			logger.Warn("document source failed",
				"source", source.Name(), "entity", request.Entity, "error", err)
			continue
		}
		if chunk != nil {
			return chunk
		}
	}
	logger.Info("no source answered for entity", "entity", request.Entity)
	return nil
}

func (s *SmartRetriever) documentFromSource(ctx context.Context, logger *slog.Logger, source wiki.Source, entity, dialogue string) (*knowledge.Chunk, error) {
	sourceName := string(source.Name())

	searchKey := cache.SearchKey(sourceName, entity)
	var candidates []wiki.Candidate
	if !s.cache.Get(ctx, searchKey, &candidates) {
		found, err := source.Search(ctx, entity, s.cfg.MaxSearchResults)
		if err != nil {
			return nil, err
		}
		candidates = found
		ttl := s.cfg.CacheTTL
		if len(candidates) == 0 {
			// A miss is cached too, briefly, so an unknown entity does not
			// hit the source on every request.
			candidates = []wiki.Candidate{}
			ttl = emptySearchTTL
		}
		s.cache.Set(ctx, searchKey, candidates, ttl)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	selected := s.selectCandidate(ctx, logger, entity, dialogue, candidates)
	if selected == nil {
		return nil, nil
	}

	contentKey := cache.DocKey(sourceName, selected.Title)
	var content string
	if !s.cache.Get(ctx, contentKey, &content) {
		fetched, err := source.PageContent(ctx, selected.Title, selected.PageID)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(fetched) == "" {
			return nil, nil
		}
		content = fetched
		s.cache.Set(ctx, contentKey, content, s.cfg.CacheTTL)
	}

	final := s.condenseOrClean(ctx, logger, source.Name(), selected.Title, content, dialogue)
	if strings.TrimSpace(final) == "" {
		return nil, nil
	}
	return &knowledge.Chunk{
		Source:    source.Name(),
		Entity:    entity,
		Content:   final,
		SourceURL: selected.URL,
	}, nil
}

// selectCandidate applies the selection policy: normalized exact title
// match, then the single-result shortcut, then delegated disambiguation,
// then (with no selector) the first result. A selector answer not present
// in the candidate list is ignored.
func (s *SmartRetriever) selectCandidate(ctx context.Context, logger *slog.Logger, entity, dialogue string, candidates []wiki.Candidate) *wiki.Candidate {
	want := normalizeTitle(entity)
	for i := range candidates {
		if normalizeTitle(candidates[i].Title) == want {
			return &candidates[i]
		}
	}
	if len(candidates) == 1 {
		return &candidates[0]
	}
	if s.selector == nil {
		return &candidates[0]
	}

	offered := make([]llm.DocCandidate, len(candidates))
	for i, candidate := range candidates {
		offered[i] = llm.DocCandidate{Title: candidate.Title, Snippet: candidate.Snippet, URL: candidate.URL}
	}
	title, err := s.selector.SelectBest(ctx, dialogue, entity, offered)
	if err != nil {
		logger.Warn("candidate selection failed", "entity", entity, "error", err)
		return nil
	}
	if title == "" {
		return nil
	}
	for i := range candidates {
		if candidates[i].Title == title {
			return &candidates[i]
		}
	}
	logger.Warn("selector answered with a title outside the candidate list",
		"entity", entity, "title", title)
	return nil
}

// condenseOrClean applies the length policy: content over the threshold is
// condensed, content at or under it only gets markup cleanup. When
// condensing fails the cleaned text is truncated with an explicit marker
// instead of failing the retrieval.
func (s *SmartRetriever) condenseOrClean(ctx context.Context, logger *slog.Logger, sourceName knowledge.Source, title, content, dialogue string) string {
	cleaned := wiki.CleanWikitext(content)
	if len([]rune(content)) <= s.cfg.LengthThreshold || s.condenser == nil {
		return cleaned
	}
	condensed, err := s.condenser.Condense(ctx, sourceName, content, title, dialogue)
	if err != nil {
		logger.Warn("condensing failed, using truncated excerpt", "title", title, "error", err)
		return truncateRunes(cleaned, s.cfg.ExcerptLength)
	}
	return condensed
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "...（内容已截断）"
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}
