package wiki

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/lorebook/lorebook/internal/kberr"
	"github.com/lorebook/lorebook/internal/knowledge"
)

// MoegirlConfig configures the Moegirl wiki source.
type MoegirlConfig struct {
	Endpoint string
	PageBase string
	Timeout  time.Duration
	RPS      float64
}

// Moegirl resolves entities against zh.moegirl.org.cn. Search goes through
// the MediaWiki API; page content is fetched as rendered HTML and reduced to
// plain text, since Moegirl wikitext leans heavily on site-local templates.
type Moegirl struct {
	api      *apiClient
	pageBase string
	logger   *slog.Logger
}

func NewMoegirl(cfg MoegirlConfig, logger *slog.Logger) *Moegirl {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = "https://zh.moegirl.org.cn/api.php"
	}
	if strings.TrimSpace(cfg.PageBase) == "" {
		cfg.PageBase = "https://zh.moegirl.org.cn/"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Moegirl{
		api:      newAPIClient(cfg.Endpoint, cfg.Timeout, cfg.RPS, logger),
		pageBase: cfg.PageBase,
		logger:   logger,
	}
}

func (m *Moegirl) Name() knowledge.Source { return knowledge.SourceMoegirl }

func (m *Moegirl) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	base := strings.TrimSuffix(m.pageBase, "/")
	return m.api.search(ctx, query, limit, func(pageID int64) string {
		return fmt.Sprintf("%s/index.php?curid=%d", base, pageID)
	})
}

// chrome matches page furniture that carries no article content.
const moegirlChrome = ".navbox, .editsection, .mw-editsection, #siteSub, #jump-to-nav, .mw-jump-link, .infotemplatebox, script, style"

func (m *Moegirl) PageContent(ctx context.Context, title string, pageID int64) (string, error) {
	pageURL := m.pageBase + url.PathEscape(title)
	body, err := m.api.get(ctx, pageURL)
	if err != nil {
		return "", err
	}

	document, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: parse page html %q: %v", kberr.ErrParsing, title, err)
	}
	document.Find(moegirlChrome).Remove()

	content := document.Find("#mw-content-text .mw-parser-output")
	if content.Length() == 0 {
		content = document.Selection
	}
	text := extractText(content)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty page body for %q", kberr.ErrParsing, title)
	}
	return text, nil
}

// extractText walks block-level nodes and joins their trimmed text with
// newlines, roughly matching a browser's copy-paste rendering.
func extractText(selection *goquery.Selection) string {
	var lines []string
	selection.Find("p, h1, h2, h3, h4, h5, h6, li, dd, dt, caption, td, th").Each(func(_ int, node *goquery.Selection) {
		line := strings.Join(strings.Fields(node.Text()), " ")
		if line != "" {
			lines = append(lines, line)
		}
	})
	if len(lines) == 0 {
		return strings.TrimSpace(selection.Text())
	}
	return strings.Join(lines, "\n")
}
