package wikidata

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/lorebook/lorebook/internal/knowledge"
)

// fallbackKinds is the heuristic used when no hint matches: prefer the first
// candidate whose description mentions a common entity class.
var fallbackKinds = []string{
	"person", "event", "dynasty", "film", "city", "company",
	"mammal", "work", "organization", "place", "species",
}

// EngineConfig tunes fact resolution.
type EngineConfig struct {
	// MaxDepth bounds recursive label resolution. Depth 0 is the claim
	// values themselves; each extra level follows entity-valued claims of
	// the entities just resolved.
	MaxDepth int
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.MaxDepth <= 0 {
		c.MaxDepth = 2
	}
	return c
}

// Engine resolves fact queries: it links entity and property mentions to
// graph ids, picks one entity by majority vote across synonymous searches,
// and renders the entity's claims as readable facts. The label cache grows
// for the life of the process and is never evicted.
type Engine struct {
	client   *Client
	logger   *slog.Logger
	maxDepth int

	mu     sync.RWMutex
	labels map[string]string
}

func NewEngine(client *Client, cfg EngineConfig, logger *slog.Logger) *Engine {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		client:   client,
		logger:   logger,
		maxDepth: cfg.MaxDepth,
		labels:   make(map[string]string),
	}
}

// Fact is one resolved property with its rendered values.
type Fact struct {
	Property string
	Value    string
}

// FactSet is the answer to one fact query: the chosen entity and its facts
// in property order.
type FactSet struct {
	EntityID    string
	EntityLabel string
	Facts       []Fact
}

// Empty reports whether the query produced no usable facts.
func (s *FactSet) Empty() bool {
	return s == nil || len(s.Facts) == 0
}

// ExecuteQuery runs one parsed fact query end to end. Failures of a single
// entity or property search are logged and skipped, never failing the whole
// query; an error comes back only when nothing at all could be linked.
func (e *Engine) ExecuteQuery(ctx context.Context, query knowledge.FactQuery) (*FactSet, error) {
	entityNames, propertyNames := splitTargets(query.Targets)
	if len(entityNames) == 0 || len(propertyNames) == 0 {
		return nil, fmt.Errorf("fact query %q names no entity/property pairs", query.Raw)
	}

	best := e.linkEntity(ctx, entityNames, query.Hints)
	if best == nil {
		return nil, fmt.Errorf("no entity resolved for fact query %q", query.Raw)
	}
	properties := e.linkProperties(ctx, propertyNames)
	if len(properties) == 0 {
		return nil, fmt.Errorf("no property resolved for fact query %q", query.Raw)
	}

	details, err := e.client.EntityDetails(ctx, []string{best.ID})
	if err != nil {
		return nil, fmt.Errorf("fetch entity %s: %w", best.ID, err)
	}
	entity, ok := details[best.ID]
	if !ok {
		return nil, fmt.Errorf("entity %s missing from details response", best.ID)
	}

	// Resolve every entity-valued claim of the selected properties before
	// formatting, so one batched walk serves all of them.
	var pending []string
	for _, property := range properties {
		for _, claim := range entity.Claims[property.ID] {
			if value := claim.Value(); value.Kind == KindEntity {
				pending = append(pending, value.QID)
			}
		}
	}
	if len(pending) > 0 {
		e.ResolveLabels(ctx, pending)
	}

	set := &FactSet{EntityID: best.ID, EntityLabel: best.Label}
	for _, property := range properties {
		claims := entity.Claims[property.ID]
		if len(claims) == 0 {
			e.logger.Debug("entity has no claims for property",
				"entity", best.ID, "property", property.ID, "label", property.Label)
			continue
		}
		var rendered []string
		for _, claim := range claims {
			if text, ok := claim.Value().Format(e.label); ok {
				rendered = append(rendered, text)
			}
		}
		if len(rendered) == 0 {
			continue
		}
		name := property.Label
		if name == "" {
			name = property.ID
		}
		set.Facts = append(set.Facts, Fact{Property: name, Value: strings.Join(rendered, ", ")})
	}
	return set, nil
}

// linkEntity searches every synonymous entity name concurrently, picks a
// best candidate per search, then settles on one id by majority vote. Ties
// keep the first-seen candidate. A failed search drops out of the vote.
func (e *Engine) linkEntity(ctx context.Context, names, hints []string) *Candidate {
	winners := make([]*Candidate, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			candidates, err := e.client.SearchEntities(ctx, name)
			if err != nil {
				e.logger.Warn("entity search failed", "name", name, "error", err)
				return
			}
			if len(candidates) == 0 {
				e.logger.Warn("entity search returned nothing", "name", name)
				return
			}
			picked := pickCandidate(candidates, hints)
			winners[i] = &picked
		}()
	}
	wg.Wait()

	type tally struct {
		candidate *Candidate
		count     int
	}
	counts := make(map[string]*tally)
	var order []string
	for _, winner := range winners {
		if winner == nil {
			continue
		}
		entry, ok := counts[winner.ID]
		if !ok {
			entry = &tally{candidate: winner}
			counts[winner.ID] = entry
			order = append(order, winner.ID)
		}
		entry.count++
	}

	var best *tally
	for _, id := range order {
		entry := counts[id]
		if best == nil || entry.count > best.count {
			best = entry
		}
	}
	if best == nil {
		return nil
	}
	e.logger.Debug("entity selected by vote",
		"id", best.candidate.ID, "label", best.candidate.Label, "votes", best.count)
	return best.candidate
}

// linkProperties searches every property name concurrently, keeps the top
// result of each, and deduplicates by property id so synonymous names
// ("创始人", "founder") resolve once. Input order is preserved.
func (e *Engine) linkProperties(ctx context.Context, names []string) []Candidate {
	found := make([]*Candidate, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			candidates, err := e.client.SearchProperties(ctx, name)
			if err != nil {
				e.logger.Warn("property search failed", "name", name, "error", err)
				return
			}
			if len(candidates) == 0 {
				e.logger.Warn("property search returned nothing", "name", name)
				return
			}
			found[i] = &candidates[0]
		}()
	}
	wg.Wait()

	var unique []Candidate
	seen := make(map[string]struct{})
	for _, candidate := range found {
		if candidate == nil || candidate.ID == "" {
			continue
		}
		if _, ok := seen[candidate.ID]; ok {
			continue
		}
		seen[candidate.ID] = struct{}{}
		unique = append(unique, *candidate)
	}
	return unique
}

// pickCandidate chooses one search result. Hints score candidates by
// case-insensitive substring matches against the description; ties keep
// source order. With no hints, or all scores zero, a fixed class heuristic
// applies, and failing that the first result wins.
func pickCandidate(candidates []Candidate, hints []string) Candidate {
	if len(hints) > 0 {
		bestIdx, bestScore := -1, 0
		for i, candidate := range candidates {
			description := strings.ToLower(candidate.Description)
			score := 0
			for _, hint := range hints {
				hint = strings.ToLower(strings.TrimSpace(hint))
				if hint != "" && strings.Contains(description, hint) {
					score++
				}
			}
			if score > bestScore {
				bestIdx, bestScore = i, score
			}
		}
		if bestIdx >= 0 {
			return candidates[bestIdx]
		}
	}
	for _, candidate := range candidates {
		description := strings.ToLower(candidate.Description)
		for _, kind := range fallbackKinds {
			if strings.Contains(description, kind) {
				return candidate
			}
		}
	}
	return candidates[0]
}

// ResolveLabels resolves a set of QIDs to labels, walking entity-valued
// claims breadth first up to the configured depth. The visited set and the
// shared label cache together guarantee each id is fetched at most once,
// terminating even on cyclic references.
func (e *Engine) ResolveLabels(ctx context.Context, qids []string) {
	e.resolve(ctx, qids, make(map[string]struct{}), 0)
}

func (e *Engine) resolve(ctx context.Context, qids []string, visited map[string]struct{}, depth int) {
	if depth >= e.maxDepth {
		return
	}
	var fetch []string
	for _, qid := range qids {
		if _, ok := visited[qid]; ok {
			continue
		}
		if _, ok := e.label(qid); ok {
			continue
		}
		visited[qid] = struct{}{}
		fetch = append(fetch, qid)
	}
	if len(fetch) == 0 {
		return
	}

	details, err := e.client.EntityDetails(ctx, fetch)
	if err != nil {
		e.logger.Warn("label resolution fetch failed", "count", len(fetch), "error", err)
		return
	}

	var next []string
	for qid, entity := range details {
		e.setLabel(qid, entity.Label())
		if depth+1 >= e.maxDepth {
			continue
		}
		for _, claims := range entity.Claims {
			for _, claim := range claims {
				value := claim.Value()
				if value.Kind != KindEntity {
					continue
				}
				if _, ok := visited[value.QID]; ok {
					continue
				}
				if _, ok := e.label(value.QID); ok {
					continue
				}
				next = append(next, value.QID)
			}
		}
	}
	if len(next) > 0 {
		e.resolve(ctx, next, visited, depth+1)
	}
}

func (e *Engine) label(qid string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	label, ok := e.labels[qid]
	return label, ok
}

func (e *Engine) setLabel(qid, label string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.labels[qid] = label
}

// splitTargets collects the distinct entity and property names of a query's
// target pairs, preserving first-seen order.
func splitTargets(targets []knowledge.FactTarget) (entities, properties []string) {
	seenEntity := make(map[string]struct{})
	seenProperty := make(map[string]struct{})
	for _, target := range targets {
		if target.Entity != "" {
			if _, ok := seenEntity[target.Entity]; !ok {
				seenEntity[target.Entity] = struct{}{}
				entities = append(entities, target.Entity)
			}
		}
		if target.Property != "" {
			if _, ok := seenProperty[target.Property]; !ok {
				seenProperty[target.Property] = struct{}{}
				properties = append(properties, target.Property)
			}
		}
	}
	return entities, properties
}
