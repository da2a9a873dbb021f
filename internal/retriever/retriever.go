// Package retriever composes the document, fact and chat-history pipelines
// behind one orchestrator that turns a structured knowledge request into
// injectable knowledge chunks.
package retriever

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lorebook/lorebook/internal/knowledge"
	"github.com/lorebook/lorebook/internal/llm"
	"github.com/lorebook/lorebook/internal/wiki"
	"github.com/lorebook/lorebook/internal/wikidata"
)

// Selector picks one candidate title for an ambiguous search, or "" to
// decline.
type Selector interface {
	SelectBest(ctx context.Context, dialogue, entity string, candidates []llm.DocCandidate) (string, error)
}

// Condenser reduces long text to a conversation-relevant digest.
type Condenser interface {
	Condense(ctx context.Context, source knowledge.Source, fullText, entity, dialogue string) (string, error)
}

// FactEngine answers parsed fact queries.
type FactEngine interface {
	ExecuteQuery(ctx context.Context, query knowledge.FactQuery) (*wikidata.FactSet, error)
}

// HistoryService returns a group's formatted chat history lines.
type HistoryService interface {
	Messages(ctx context.Context, groupID int64, req knowledge.HistoryRequest) ([]string, error)
}

// retrievalCache is the slice of the cache layer the orchestrator uses.
type retrievalCache interface {
	Get(ctx context.Context, key string, dest any) bool
	Set(ctx context.Context, key string, value any, ttl time.Duration)
}

// Config tunes the retrieval strategy.
type Config struct {
	// LengthThreshold is the content length (in runes) above which a
	// document is condensed instead of merely cleaned.
	LengthThreshold int
	// MaxSearchResults bounds one source search.
	MaxSearchResults int
	// ExcerptLength bounds the fallback excerpt used when condensing
	// fails.
	ExcerptLength int
	CacheTTL      time.Duration
}

func (c Config) withDefaults() Config {
	if c.LengthThreshold <= 0 {
		c.LengthThreshold = 500
	}
	if c.MaxSearchResults <= 0 {
		c.MaxSearchResults = 5
	}
	if c.ExcerptLength <= 0 {
		c.ExcerptLength = 500
	}
	return c
}

// SmartRetriever resolves a knowledge request against document sources, the
// fact engine and the chat history service. Sources are tried in the given
// priority order; a request naming a source moves it to the front. Selector
// and condenser are optional: without a selector ambiguous searches take the
// first candidate, without a condenser long text is cleaned and truncated.
type SmartRetriever struct {
	sources   []wiki.Source
	facts     FactEngine
	history   HistoryService
	selector  Selector
	condenser Condenser
	cache     retrievalCache
	cfg       Config
	logger    *slog.Logger
}

func New(sources []wiki.Source, facts FactEngine, history HistoryService, store retrievalCache, cfg Config, logger *slog.Logger) *SmartRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &SmartRetriever{
		sources: sources,
		facts:   facts,
		history: history,
		cache:   store,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
}

// WithSelector enables delegated disambiguation.
func (s *SmartRetriever) WithSelector(selector Selector) *SmartRetriever {
	s.selector = selector
	return s
}

// WithCondenser enables summarization of long content.
func (s *SmartRetriever) WithCondenser(condenser Condenser) *SmartRetriever {
	s.condenser = condenser
	return s
}

// Retrieve resolves the request. The document, fact and history branches
// run concurrently, and a failure in any branch only costs that branch's
// chunks; the result is whatever knowledge could be gathered.
func (s *SmartRetriever) Retrieve(ctx context.Context, request *knowledge.Request, dialogue string, groupID int64) *knowledge.Result {
	result := &knowledge.Result{}
	if request.Empty() {
		return result
	}
	logger := s.logger.With("trace", uuid.NewString())

	var (
		wg            sync.WaitGroup
		factChunks    []knowledge.Chunk
		docChunks     []knowledge.Chunk
		historyChunks []knowledge.Chunk
	)

	if len(request.Facts) > 0 && s.facts != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			factChunks = s.retrieveFacts(ctx, logger, request.Facts)
		}()
	}
	if len(request.Docs) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			docChunks = s.retrieveDocs(ctx, logger, request.Docs, dialogue)
		}()
	}
	if request.History != nil && s.history != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			historyChunks = s.retrieveHistory(ctx, logger, *request.History, dialogue, groupID)
		}()
	}
	wg.Wait()

	result.Chunks = append(result.Chunks, factChunks...)
	result.Chunks = append(result.Chunks, docChunks...)
	result.Chunks = append(result.Chunks, historyChunks...)
	logger.Info("retrieval finished", "chunks", len(result.Chunks))
	return result
}

// sourceOrder returns the sources with the preferred one first.
func (s *SmartRetriever) sourceOrder(preferred knowledge.Source) []wiki.Source {
	if preferred == "" {
		return s.sources
	}
	ordered := make([]wiki.Source, 0, len(s.sources))
	for _, source := range s.sources {
		if source.Name() == preferred {
			ordered = append(ordered, source)
		}
	}
	for _, source := range s.sources {
		if source.Name() != preferred {
			ordered = append(ordered, source)
		}
	}
	return ordered
}
