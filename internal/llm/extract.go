package llm

import (
	"encoding/json"
	"strings"
)

// DefaultSeparator is the marker roles ask the model to emit before its
// JSON payload.
const DefaultSeparator = "---JSON---"

// ExtractOptions tunes ExtractJSON.
type ExtractOptions struct {
	// Separator splits prose from payload; when present in the text only
	// what follows it is scanned. Empty means DefaultSeparator.
	Separator string
	// Required lists fields a candidate object must contain to qualify.
	Required []string
	// Optional lists fields that score qualifying candidates; the highest
	// score wins, later position breaking ties.
	Optional []string
}

// ExtractJSON pulls the best JSON object out of free-form model output.
// Model replies routinely wrap the payload in prose, code fences, or emit
// several objects; this scans for balanced top-level objects, filters by
// required fields, scores by optional fields, and on ties prefers the
// object appearing last. Returns false when no candidate qualifies.
func ExtractJSON(text string, opts ExtractOptions) (map[string]json.RawMessage, bool) {
	if strings.TrimSpace(text) == "" {
		return nil, false
	}
	separator := opts.Separator
	if separator == "" {
		separator = DefaultSeparator
	}
	if _, after, found := strings.Cut(text, separator); found {
		text = after
	}
	text = stripCodeFences(text)

	var best map[string]json.RawMessage
	bestScore := -1
	for _, candidate := range balancedObjects(text) {
		var decoded map[string]json.RawMessage
		if err := json.Unmarshal([]byte(candidate), &decoded); err != nil {
			continue
		}
		if !hasAll(decoded, opts.Required) {
			continue
		}
		score := 0
		for _, field := range opts.Optional {
			if _, ok := decoded[field]; ok {
				score++
			}
		}
		// >= keeps the later candidate on equal scores.
		if score >= bestScore {
			best, bestScore = decoded, score
		}
	}
	return best, best != nil
}

// ExtractField is a convenience wrapper returning one field of the best
// object.
func ExtractField(text, field string) (json.RawMessage, bool) {
	decoded, ok := ExtractJSON(text, ExtractOptions{})
	if !ok {
		return nil, false
	}
	value, ok := decoded[field]
	return value, ok
}

func hasAll(decoded map[string]json.RawMessage, fields []string) bool {
	for _, field := range fields {
		if _, ok := decoded[field]; !ok {
			return false
		}
	}
	return true
}

func stripCodeFences(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```JSON", "")
	text = strings.ReplaceAll(text, "```", "")
	return strings.TrimSpace(text)
}

// balancedObjects scans for top-level balanced-brace substrings, skipping
// braces inside string literals and escapes, in order of appearance.
func balancedObjects(text string) []string {
	var candidates []string
	inString := false
	escaped := false
	depth := 0
	start := -1

	for i, ch := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					candidates = append(candidates, text[start:i+1])
					start = -1
				}
			}
		}
	}
	return candidates
}
