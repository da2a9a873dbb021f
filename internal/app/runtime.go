// Package app wires the configuration, cache, knowledge sources and
// orchestrator into one runtime with a single lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/lorebook/lorebook/internal/cache"
	"github.com/lorebook/lorebook/internal/chathistory"
	"github.com/lorebook/lorebook/internal/config"
	"github.com/lorebook/lorebook/internal/kberr"
	"github.com/lorebook/lorebook/internal/knowledge"
	"github.com/lorebook/lorebook/internal/llm"
	"github.com/lorebook/lorebook/internal/llm/openai"
	"github.com/lorebook/lorebook/internal/onebot"
	"github.com/lorebook/lorebook/internal/retriever"
	"github.com/lorebook/lorebook/internal/wiki"
	"github.com/lorebook/lorebook/internal/wikidata"
)

// Runtime owns every long-lived component. Retrieval goes through the
// Retrieve method, which always reads the current orchestrator so overrides
// applied at runtime take effect without a restart.
type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	store      *cache.Store
	janitor    *cache.Janitor
	sources    []wiki.Source
	facts      *wikidata.Engine
	onebot     *onebot.Client
	history    *chathistory.Service
	provider   llm.Provider
	classifier *llm.Classifier

	retriever atomic.Pointer[retriever.SmartRetriever]
}

func New(cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	store, err := cache.New(cfg.DBPath, logger.With("component", "cache"))
	if err != nil {
		return nil, err
	}

	r := &Runtime{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		janitor: cache.NewJanitor(store, cfg.JanitorSchedule, logger.With("component", "janitor")),
	}

	wikiTimeout := time.Duration(cfg.WikiTimeoutSec) * time.Second
	r.sources = []wiki.Source{
		wiki.NewMoegirl(wiki.MoegirlConfig{
			Endpoint: cfg.MoegirlEndpoint,
			PageBase: cfg.MoegirlPageBase,
			Timeout:  wikiTimeout,
			RPS:      cfg.WikiRPS,
		}, logger.With("component", "moegirl")),
		wiki.NewWikipedia(wiki.WikipediaConfig{
			Endpoint: cfg.WikipediaEndpoint,
			PageBase: cfg.WikipediaPageBase,
			Timeout:  wikiTimeout,
			RPS:      cfg.WikiRPS,
		}, logger.With("component", "wikipedia")),
	}

	wikidataClient := wikidata.NewClient(wikidata.Config{
		Endpoint: cfg.WikidataEndpoint,
		Timeout:  time.Duration(cfg.WikidataTimeoutSec) * time.Second,
		RPS:      cfg.WikidataRPS,
	}, logger.With("component", "wikidata"))
	r.facts = wikidata.NewEngine(wikidataClient, wikidata.EngineConfig{
		MaxDepth: cfg.WikidataMaxDepth,
	}, logger.With("component", "fact-engine"))

	if cfg.OneBotURL != "" {
		r.onebot = onebot.New(onebot.Config{
			URL:           cfg.OneBotURL,
			AccessToken:   cfg.OneBotAccessToken,
			CallTimeout:   time.Duration(cfg.OneBotCallTimeoutSec) * time.Second,
			ReconnectWait: time.Duration(cfg.OneBotReconnectWaitSec) * time.Second,
		}, logger.With("component", "onebot"))
		r.history = chathistory.New(r.onebot, store, chathistory.Config{
			MaxPages:    cfg.HistoryMaxPages,
			MaxFailures: cfg.HistoryMaxFailures,
			LocalBatch:  cfg.HistoryLocalBatch,
			CacheTTL:    cfg.CacheTTL(),
		}, logger.With("component", "chathistory"))
	}

	r.provider = openai.New(openai.Config{
		APIKey:      cfg.LLMAPIKey,
		BaseURL:     cfg.LLMBaseURL,
		Model:       cfg.LLMModel,
		Timeout:     time.Duration(cfg.LLMTimeoutSec) * time.Second,
		Temperature: cfg.LLMTemperature,
	}, logger.With("component", "llm"))
	r.classifier = llm.NewClassifier(r.provider, logger.With("component", "classifier"))

	r.retriever.Store(r.buildRetriever(cfg))
	return r, nil
}

func (r *Runtime) buildRetriever(cfg config.Config) *retriever.SmartRetriever {
	var historyService retriever.HistoryService
	if r.history != nil {
		historyService = r.history
	}
	orchestrator := retriever.New(r.sources, r.facts, historyService, r.store, retriever.Config{
		LengthThreshold:  cfg.LengthThreshold,
		MaxSearchResults: cfg.MaxSearchResults,
		ExcerptLength:    cfg.ExcerptLength,
		CacheTTL:         cfg.CacheTTL(),
	}, r.logger.With("component", "retriever"))
	if cfg.DisambiguationOn {
		orchestrator = orchestrator.WithSelector(llm.NewSelector(r.provider, r.logger.With("component", "selector")))
	}
	if cfg.CondensationOn {
		orchestrator = orchestrator.WithCondenser(llm.NewCondenser(r.provider, r.logger.With("component", "condenser")))
	}
	return orchestrator
}

// applyOverrides swaps in a rebuilt orchestrator; in-flight retrievals keep
// the one they started with.
func (r *Runtime) applyOverrides(overrides config.Overrides) {
	cfg := overrides.Apply(r.cfg)
	r.retriever.Store(r.buildRetriever(cfg))
	r.logger.Info("retrieval tunables reloaded",
		"length_threshold", cfg.LengthThreshold,
		"max_search_results", cfg.MaxSearchResults,
		"disambiguation", cfg.DisambiguationOn,
		"condensation", cfg.CondensationOn)
}

// Retrieve resolves a structured request through the current orchestrator.
func (r *Runtime) Retrieve(ctx context.Context, request *knowledge.Request, dialogue string, groupID int64) *knowledge.Result {
	return r.retriever.Load().Retrieve(ctx, request, dialogue, groupID)
}

// Classify turns dialogue into a structured knowledge request, or nil when
// the dialogue needs no external knowledge.
func (r *Runtime) Classify(ctx context.Context, dialogue string) (*knowledge.Request, error) {
	return r.classifier.Classify(ctx, dialogue)
}

// ConnectBot runs the bot connection in the background and waits for the
// first session, for one-shot commands that need chat history without the
// full serve loop.
func (r *Runtime) ConnectBot(ctx context.Context) error {
	if r.onebot == nil {
		return fmt.Errorf("%w: LOREBOOK_ONEBOT_WS_URL is not set", kberr.ErrConfig)
	}
	go func() { _ = r.onebot.Run(ctx) }()
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return r.onebot.WaitConnected(waitCtx)
}

// CacheStats reports the cache hit/miss counters of this process.
func (r *Runtime) CacheStats() cache.Stats {
	return r.store.Stats()
}

// CacheSize reports the stored and expired-but-unswept entry counts.
func (r *Runtime) CacheSize(ctx context.Context) (total, expired int64, err error) {
	return r.store.Size(ctx)
}

func (r *Runtime) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}
