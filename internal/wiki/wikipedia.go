package wiki

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lorebook/lorebook/internal/kberr"
	"github.com/lorebook/lorebook/internal/knowledge"
)

// WikipediaConfig configures the Chinese Wikipedia source. Zero values fall
// back to the public endpoint with polite pacing.
type WikipediaConfig struct {
	Endpoint string
	PageBase string
	Timeout  time.Duration
	RPS      float64
}

// Wikipedia resolves entities against zh.wikipedia.org. Page content is the
// raw wikitext of the page, fetched by page id.
type Wikipedia struct {
	api      *apiClient
	pageBase string
	logger   *slog.Logger
}

func NewWikipedia(cfg WikipediaConfig, logger *slog.Logger) *Wikipedia {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = "https://zh.wikipedia.org/w/api.php"
	}
	if strings.TrimSpace(cfg.PageBase) == "" {
		cfg.PageBase = "https://zh.wikipedia.org/?curid="
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Wikipedia{
		api:      newAPIClient(cfg.Endpoint, cfg.Timeout, cfg.RPS, logger),
		pageBase: cfg.PageBase,
		logger:   logger,
	}
}

func (w *Wikipedia) Name() knowledge.Source { return knowledge.SourceWikipedia }

func (w *Wikipedia) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	return w.api.search(ctx, query, limit, func(pageID int64) string {
		return fmt.Sprintf("%s%d", w.pageBase, pageID)
	})
}

func (w *Wikipedia) PageContent(ctx context.Context, title string, pageID int64) (string, error) {
	if pageID == 0 {
		return "", fmt.Errorf("%w: wikipedia content fetch needs a page id (title %q)", kberr.ErrValidation, title)
	}
	return w.api.wikitext(ctx, pageID)
}
