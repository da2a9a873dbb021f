// Package wiki implements the encyclopedia document sources: search plus
// full-page fetch per backend, behind one Source interface.
package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/lorebook/lorebook/internal/kberr"
	"github.com/lorebook/lorebook/internal/knowledge"
)

const userAgent = "lorebook/0.1 (+https://github.com/lorebook/lorebook)"

// Candidate is one search result of a document source.
type Candidate struct {
	Title   string `json:"title"`
	PageID  int64  `json:"page_id"`
	Snippet string `json:"snippet,omitempty"`
	URL     string `json:"url"`
}

// Source is one encyclopedia backend. PageContent returns the raw page text
// (wikitext or extracted HTML text); cleanup and condensing belong to the
// retrieval strategy, not the source.
type Source interface {
	Name() knowledge.Source
	Search(ctx context.Context, query string, limit int) ([]Candidate, error)
	PageContent(ctx context.Context, title string, pageID int64) (string, error)
}

// apiClient wraps one MediaWiki-style endpoint with request pacing and
// uniform error classification.
type apiClient struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

func newAPIClient(endpoint string, timeout time.Duration, rps float64, logger *slog.Logger) *apiClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if rps <= 0 {
		rps = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &apiClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger,
	}
}

func (c *apiClient) getJSON(ctx context.Context, params url.Values, dest any) error {
	body, err := c.get(ctx, c.endpoint+"?"+params.Encode())
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", kberr.ErrParsing, c.endpoint, err)
	}
	return nil
}

func (c *apiClient) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %v", kberr.ErrClient, err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", kberr.ErrClient, err)
	}
	request.Header.Set("User-Agent", userAgent)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", kberr.ErrClient, rawURL, err)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: get %s: status %d", kberr.ErrClient, rawURL, response.StatusCode)
	}
	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", kberr.ErrClient, rawURL, err)
	}
	return body, nil
}

// searchResponse is the shared MediaWiki list=search payload shape.
type searchResponse struct {
	Query struct {
		Search []struct {
			Title   string `json:"title"`
			PageID  int64  `json:"pageid"`
			Snippet string `json:"snippet"`
		} `json:"search"`
	} `json:"query"`
}

func (c *apiClient) search(ctx context.Context, query string, limit int, pageURL func(pageID int64) string) ([]Candidate, error) {
	if limit <= 0 {
		limit = 5
	}
	params := url.Values{}
	params.Set("action", "query")
	params.Set("format", "json")
	params.Set("list", "search")
	params.Set("srsearch", query)
	params.Set("srlimit", fmt.Sprintf("%d", limit))
	params.Set("srprop", "snippet")

	var payload searchResponse
	if err := c.getJSON(ctx, params, &payload); err != nil {
		return nil, err
	}
	candidates := make([]Candidate, 0, len(payload.Query.Search))
	for _, item := range payload.Query.Search {
		candidates = append(candidates, Candidate{
			Title:   item.Title,
			PageID:  item.PageID,
			Snippet: item.Snippet,
			URL:     pageURL(item.PageID),
		})
	}
	return candidates, nil
}

// parseResponse is the action=parse wikitext payload shape.
type parseResponse struct {
	Parse struct {
		Wikitext struct {
			Content string `json:"*"`
		} `json:"wikitext"`
	} `json:"parse"`
}

func (c *apiClient) wikitext(ctx context.Context, pageID int64) (string, error) {
	params := url.Values{}
	params.Set("action", "parse")
	params.Set("format", "json")
	params.Set("pageid", fmt.Sprintf("%d", pageID))
	params.Set("prop", "wikitext")

	var payload parseResponse
	if err := c.getJSON(ctx, params, &payload); err != nil {
		return "", err
	}
	if payload.Parse.Wikitext.Content == "" {
		return "", fmt.Errorf("%w: no wikitext for pageid %d", kberr.ErrParsing, pageID)
	}
	return payload.Parse.Wikitext.Content, nil
}
