// Package knowledge defines the request and result model passed between the
// conversation classifier and the retrieval core.
package knowledge

import (
	"fmt"
	"strings"

	"github.com/lorebook/lorebook/internal/kberr"
)

// Source identifies one knowledge backend.
type Source string

const (
	SourceWikipedia   Source = "wikipedia"
	SourceMoegirl     Source = "moegirl"
	SourceWikidata    Source = "wikidata"
	SourceChatHistory Source = "chat_history"
)

// DocRequest asks for the document of one entity from one source.
type DocRequest struct {
	Entity   string   `json:"entity"`
	Source   Source   `json:"source"`
	Keywords []string `json:"keywords,omitempty"`
}

// FactTarget is one entity/property pair of a fact query.
type FactTarget struct {
	Entity   string `json:"entity"`
	Property string `json:"property"`
}

// FactQuery is the parsed form of one fact query string. Hints is nil for the
// simple "entity.property" form and non-nil for the contextual
// "[hint1|hint2].entity.property" form; downstream code never re-parses Raw.
type FactQuery struct {
	Targets []FactTarget `json:"targets"`
	Hints   []string     `json:"hints,omitempty"`
	Raw     string       `json:"raw"`
}

// Entity returns the primary entity name of the query, used for chunk
// attribution.
func (q FactQuery) Entity() string {
	if len(q.Targets) == 0 {
		return ""
	}
	return q.Targets[0].Entity
}

// HistoryRequest asks for a slice of one group's chat history.
type HistoryRequest struct {
	Hours     int      `json:"hours,omitempty"`
	Count     int      `json:"count,omitempty"`
	SenderIDs []string `json:"sender_ids,omitempty"`
	Keywords  []string `json:"keywords,omitempty"`
	Condense  bool     `json:"condense,omitempty"`
}

// Request is one structured knowledge request, produced per conversational
// turn by the external classifier and immutable once built.
type Request struct {
	Docs    []DocRequest    `json:"docs,omitempty"`
	Facts   []FactQuery     `json:"facts,omitempty"`
	History *HistoryRequest `json:"history,omitempty"`
}

// Empty reports whether the request asks for nothing.
func (r *Request) Empty() bool {
	return r == nil || (len(r.Docs) == 0 && len(r.Facts) == 0 && r.History == nil)
}

// ParseFactQuery parses one fact query string into its tagged form.
//
// Accepted shapes:
//
//	"实体.属性"
//	"实体.属性 | entity.property"  (joint targets for majority voting)
//	"[hint1|hint2].实体.属性"      (disambiguation hints)
//
// Pairs are split on the right-most '.' so property names containing dots
// survive on the entity side. Malformed pairs (no dot, or an empty side) are
// skipped and reported in the second return value; the query only fails when
// no valid pair remains.
func ParseFactQuery(raw string) (FactQuery, []string, error) {
	query := FactQuery{Raw: raw}
	rest := strings.TrimSpace(raw)

	if strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end > 0 {
			for _, hint := range strings.Split(rest[1:end], "|") {
				if hint = strings.TrimSpace(hint); hint != "" {
					query.Hints = append(query.Hints, hint)
				}
			}
			rest = strings.TrimSpace(rest[end+1:])
			rest = strings.TrimPrefix(rest, ".")
		}
	}

	var skipped []string
	for _, pair := range strings.Split(rest, "|") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		dot := strings.LastIndex(pair, ".")
		if dot < 0 {
			skipped = append(skipped, pair)
			continue
		}
		entity := strings.TrimSpace(pair[:dot])
		property := strings.TrimSpace(pair[dot+1:])
		if entity == "" || property == "" {
			skipped = append(skipped, pair)
			continue
		}
		query.Targets = append(query.Targets, FactTarget{Entity: entity, Property: property})
	}

	if len(query.Targets) == 0 {
		return query, skipped, fmt.Errorf("%w: fact query %q has no usable entity.property pair", kberr.ErrValidation, raw)
	}
	return query, skipped, nil
}

// FromLegacy adapts the older string-only request shapes (docs as an
// entity→source map, facts as raw query strings) onto the canonical model.
// Unusable fact strings are dropped; the skipped raw pairs are returned so
// the caller can log them.
func FromLegacy(docs map[string]string, facts []string, history *HistoryRequest) (*Request, []string) {
	request := &Request{History: history}
	var skipped []string

	for entity, source := range docs {
		entity = strings.TrimSpace(entity)
		if entity == "" {
			continue
		}
		request.Docs = append(request.Docs, DocRequest{
			Entity: entity,
			Source: Source(strings.TrimSpace(source)),
		})
	}
	for _, raw := range facts {
		query, bad, err := ParseFactQuery(raw)
		skipped = append(skipped, bad...)
		if err != nil {
			continue
		}
		request.Facts = append(request.Facts, query)
	}
	return request, skipped
}
