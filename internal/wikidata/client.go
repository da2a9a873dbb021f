// Package wikidata answers structured fact queries against the Wikidata
// graph: entity and property linking, claim extraction, and recursive
// resolution of entity-valued claims into readable labels.
package wikidata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/lorebook/lorebook/internal/kberr"
)

const (
	defaultEndpoint = "https://www.wikidata.org/w/api.php"
	userAgent       = "lorebook/0.1 (+https://github.com/lorebook/lorebook)"
)

// Config configures the Wikidata API client. Zero values fall back to the
// public endpoint with polite pacing.
type Config struct {
	Endpoint string
	Timeout  time.Duration
	RPS      float64
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Endpoint) == "" {
		c.Endpoint = defaultEndpoint
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RPS <= 0 {
		c.RPS = 5
	}
	return c
}

// Client is a thin wrapper over the wbsearchentities and wbgetentities
// actions of the Wikidata API.
type Client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RPS), 1),
		logger:     logger,
	}
}

// Candidate is one wbsearchentities result. The description drives
// disambiguation scoring.
type Candidate struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

type searchResponse struct {
	Search []Candidate `json:"search"`
}

// SearchEntities returns up to ten entity candidates for a keyword, most
// relevant first.
func (c *Client) SearchEntities(ctx context.Context, keyword string) ([]Candidate, error) {
	return c.searchEntities(ctx, keyword, "", 10)
}

// SearchProperties returns up to three property candidates for a keyword.
func (c *Client) SearchProperties(ctx context.Context, keyword string) ([]Candidate, error) {
	return c.searchEntities(ctx, keyword, "property", 3)
}

func (c *Client) searchEntities(ctx context.Context, keyword, entityType string, limit int) ([]Candidate, error) {
	params := url.Values{}
	params.Set("action", "wbsearchentities")
	params.Set("format", "json")
	params.Set("search", keyword)
	params.Set("language", "zh")
	params.Set("limit", fmt.Sprintf("%d", limit))
	if entityType != "" {
		params.Set("type", entityType)
	}

	var payload searchResponse
	if err := c.getJSON(ctx, params, &payload); err != nil {
		return nil, err
	}
	return payload.Search, nil
}

// Entity is one wbgetentities result: labels, descriptions and claims keyed
// by property id.
type Entity struct {
	ID           string             `json:"id"`
	Labels       map[string]label   `json:"labels"`
	Descriptions map[string]label   `json:"descriptions"`
	Claims       map[string][]Claim `json:"claims"`
}

type label struct {
	Value string `json:"value"`
}

// Label picks a display label, Chinese first, then English, then the raw id.
func (e Entity) Label() string {
	if l := e.Labels["zh"].Value; l != "" {
		return l
	}
	if l := e.Labels["en"].Value; l != "" {
		return l
	}
	return e.ID
}

type entitiesResponse struct {
	Entities map[string]Entity `json:"entities"`
}

// EntityDetails batch-fetches claims, labels and descriptions for a set of
// ids in one request. Duplicate ids collapse.
func (c *Client) EntityDetails(ctx context.Context, ids []string) (map[string]Entity, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: entity details need at least one id", kberr.ErrValidation)
	}
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Strings(unique)

	params := url.Values{}
	params.Set("action", "wbgetentities")
	params.Set("format", "json")
	params.Set("ids", strings.Join(unique, "|"))
	params.Set("props", "claims|labels|descriptions")
	params.Set("languages", "zh|en")

	var payload entitiesResponse
	if err := c.getJSON(ctx, params, &payload); err != nil {
		return nil, err
	}
	return payload.Entities, nil
}

func (c *Client) getJSON(ctx context.Context, params url.Values, dest any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limit wait: %v", kberr.ErrClient, err)
	}
	rawURL := c.endpoint + "?" + params.Encode()
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", kberr.ErrClient, err)
	}
	request.Header.Set("User-Agent", userAgent)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%w: get %s: %v", kberr.ErrClient, rawURL, err)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("%w: get %s: status %d", kberr.ErrClient, rawURL, response.StatusCode)
	}
	body, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", kberr.ErrClient, rawURL, err)
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("%w: decode wikidata response: %v", kberr.ErrParsing, err)
	}
	return nil
}
