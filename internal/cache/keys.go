package cache

import "fmt"

// Key namespaces. Every cached value is the final artifact of its stage:
// a raw search result list, raw page text, a resolved fact map, or the merged
// message history, never a half-computed intermediate.

// DocKey names the full page content of one article in one source. The key
// carries the selected article title, not the requested entity: aliases that
// resolve to the same article share one entry, and a different selection for
// the same entity never serves the previous selection's content.
func DocKey(source, title string) string {
	return fmt.Sprintf("doc:%s:%s", source, title)
}

// SearchKey names the raw search result list for one entity in one source.
func SearchKey(source, entity string) string {
	return fmt.Sprintf("search:%s:%s", source, entity)
}

// FactKey names the resolved fact map of one fact query.
func FactKey(factQuery string) string {
	return fmt.Sprintf("fact:%s", factQuery)
}

// HistoryKey names the merged message log of one group.
func HistoryKey(groupID string) string {
	return fmt.Sprintf("history:%s", groupID)
}
