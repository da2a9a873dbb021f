package wikidata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/lorebook/lorebook/internal/knowledge"
)

// fixture is a scripted stand-in for the Wikidata API.
type fixture struct {
	entitySearches   map[string][]Candidate
	failSearches     map[string]bool
	propertySearches map[string][]Candidate
	entities         map[string]string // id -> entity JSON

	detailCalls atomic.Int64
}

func (f *fixture) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch q.Get("action") {
		case "wbsearchentities":
			keyword := q.Get("search")
			if f.failSearches[keyword] {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			var found []Candidate
			if q.Get("type") == "property" {
				found = f.propertySearches[keyword]
			} else {
				found = f.entitySearches[keyword]
			}
			_ = json.NewEncoder(w).Encode(searchResponse{Search: found})
		case "wbgetentities":
			f.detailCalls.Add(1)
			parts := make([]string, 0)
			for _, id := range strings.Split(q.Get("ids"), "|") {
				raw, ok := f.entities[id]
				if !ok {
					t.Errorf("unexpected entity details request for %q", id)
					continue
				}
				parts = append(parts, fmt.Sprintf("%q:%s", id, raw))
			}
			_, _ = fmt.Fprintf(w, `{"entities":{%s}}`, strings.Join(parts, ","))
		default:
			t.Errorf("unexpected action %q", q.Get("action"))
			w.WriteHeader(http.StatusBadRequest)
		}
	})
}

func newTestEngine(t *testing.T, f *fixture) *Engine {
	t.Helper()
	server := httptest.NewServer(f.handler(t))
	t.Cleanup(server.Close)
	client := NewClient(Config{Endpoint: server.URL, RPS: 1000}, slog.New(slog.DiscardHandler))
	return NewEngine(client, EngineConfig{}, slog.New(slog.DiscardHandler))
}

func TestExecuteQueryMajorityVoteSurvivesFailedSynonym(t *testing.T) {
	f := &fixture{
		entitySearches: map[string][]Candidate{
			"苹果": {{ID: "Q312", Label: "苹果公司", Description: "american technology company"}},
		},
		failSearches: map[string]bool{"apple": true},
		propertySearches: map[string][]Candidate{
			"创始人":     {{ID: "P112", Label: "founder"}},
			"founder": {{ID: "P112", Label: "founder"}},
		},
		entities: map[string]string{
			"Q312": `{"id":"Q312","labels":{"zh":{"value":"苹果公司"}},"claims":{"P112":[
				{"mainsnak":{"snaktype":"value","datavalue":{"type":"wikibase-entityid","value":{"id":"Q8027"}}}},
				{"mainsnak":{"snaktype":"value","datavalue":{"type":"wikibase-entityid","value":{"id":"Q483382"}}}}
			]}}`,
			"Q8027":   `{"id":"Q8027","labels":{"zh":{"value":"史蒂夫·乔布斯"}},"claims":{}}`,
			"Q483382": `{"id":"Q483382","labels":{"en":{"value":"Steve Wozniak"}},"claims":{}}`,
		},
	}
	engine := newTestEngine(t, f)

	query, skipped, err := knowledge.ParseFactQuery("苹果.创始人 | apple.founder")
	if err != nil {
		t.Fatalf("ParseFactQuery: %v", err)
	}
	if len(skipped) != 0 {
		t.Fatalf("skipped pairs: %v", skipped)
	}

	set, err := engine.ExecuteQuery(context.Background(), query)
	if err != nil {
		t.Fatalf("ExecuteQuery: %v", err)
	}
	if set.EntityID != "Q312" {
		t.Fatalf("EntityID = %q, want Q312", set.EntityID)
	}
	if len(set.Facts) != 1 {
		t.Fatalf("got %d facts, want 1 after property dedup: %+v", len(set.Facts), set.Facts)
	}
	fact := set.Facts[0]
	if fact.Property != "founder" {
		t.Fatalf("Property = %q", fact.Property)
	}
	if fact.Value != "史蒂夫·乔布斯, Steve Wozniak" {
		t.Fatalf("Value = %q", fact.Value)
	}
}

func TestExecuteQueryNothingLinked(t *testing.T) {
	f := &fixture{
		entitySearches:   map[string][]Candidate{},
		propertySearches: map[string][]Candidate{},
	}
	engine := newTestEngine(t, f)

	query, _, err := knowledge.ParseFactQuery("不存在的实体.属性")
	if err != nil {
		t.Fatalf("ParseFactQuery: %v", err)
	}
	if _, err := engine.ExecuteQuery(context.Background(), query); err == nil {
		t.Fatal("want error when no entity resolves")
	}
}

func TestPickCandidate(t *testing.T) {
	candidates := []Candidate{
		{ID: "Q1", Label: "李娜", Description: "Chinese singer"},
		{ID: "Q2", Label: "李娜", Description: "Chinese tennis player"},
		{ID: "Q3", Label: "李娜", Description: "academic"},
	}

	t.Run("hint scoring wins", func(t *testing.T) {
		if got := pickCandidate(candidates, []string{"tennis", "athlete"}); got.ID != "Q2" {
			t.Fatalf("picked %q, want Q2", got.ID)
		}
	})

	t.Run("scoring is deterministic", func(t *testing.T) {
		first := pickCandidate(candidates, []string{"chinese"})
		for range 10 {
			if got := pickCandidate(candidates, []string{"chinese"}); got.ID != first.ID {
				t.Fatalf("picked %q then %q for the same input", first.ID, got.ID)
			}
		}
		// Both Q1 and Q2 score 1; source order breaks the tie.
		if first.ID != "Q1" {
			t.Fatalf("tie broke to %q, want Q1", first.ID)
		}
	})

	t.Run("zero scores fall back to class heuristic", func(t *testing.T) {
		if got := pickCandidate(candidates, []string{"politician"}); got.ID != "Q1" {
			t.Fatalf("picked %q, want Q1 (first description mentioning a known class)", got.ID)
		}
	})

	t.Run("no hints uses class heuristic", func(t *testing.T) {
		if got := pickCandidate(candidates, nil); got.ID != "Q1" {
			t.Fatalf("picked %q, want Q1", got.ID)
		}
	})

	t.Run("first result when nothing matches", func(t *testing.T) {
		plain := []Candidate{
			{ID: "Q7", Description: "something else"},
			{ID: "Q8", Description: "another thing"},
		}
		if got := pickCandidate(plain, []string{"tennis"}); got.ID != "Q7" {
			t.Fatalf("picked %q, want Q7", got.ID)
		}
	})
}

func TestResolveLabelsTerminatesOnCycle(t *testing.T) {
	f := &fixture{
		entities: map[string]string{
			"Q1": `{"id":"Q1","labels":{"en":{"value":"Alpha"}},"claims":{"P1":[
				{"mainsnak":{"snaktype":"value","datavalue":{"type":"wikibase-entityid","value":{"id":"Q2"}}}}
			]}}`,
			"Q2": `{"id":"Q2","labels":{"en":{"value":"Beta"}},"claims":{"P1":[
				{"mainsnak":{"snaktype":"value","datavalue":{"type":"wikibase-entityid","value":{"id":"Q1"}}}}
			]}}`,
		},
	}
	engine := newTestEngine(t, f)

	engine.ResolveLabels(context.Background(), []string{"Q1"})

	if got, ok := engine.label("Q1"); !ok || got != "Alpha" {
		t.Fatalf("label(Q1) = (%q, %v)", got, ok)
	}
	if got, ok := engine.label("Q2"); !ok || got != "Beta" {
		t.Fatalf("label(Q2) = (%q, %v)", got, ok)
	}
	if calls := f.detailCalls.Load(); calls != 2 {
		t.Fatalf("made %d detail calls, want 2 (one per depth)", calls)
	}

	// A second pass is served entirely from the label cache.
	engine.ResolveLabels(context.Background(), []string{"Q1", "Q2"})
	if calls := f.detailCalls.Load(); calls != 2 {
		t.Fatalf("cache miss on second pass: %d detail calls", calls)
	}
}

func TestEntityLabelPreference(t *testing.T) {
	cases := []struct {
		name   string
		entity Entity
		want   string
	}{
		{"chinese first", Entity{ID: "Q1", Labels: map[string]label{"zh": {Value: "苹果"}, "en": {Value: "Apple"}}}, "苹果"},
		{"english fallback", Entity{ID: "Q1", Labels: map[string]label{"en": {Value: "Apple"}}}, "Apple"},
		{"id fallback", Entity{ID: "Q1"}, "Q1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.entity.Label(); got != tc.want {
				t.Fatalf("Label() = %q, want %q", got, tc.want)
			}
		})
	}
}
