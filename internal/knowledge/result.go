package knowledge

import (
	"fmt"
	"strings"
)

// Chunk is one retrieved, source-attributed unit of knowledge.
type Chunk struct {
	Source    Source `json:"source"`
	Entity    string `json:"entity"`
	Content   string `json:"content"`
	SourceURL string `json:"source_url,omitempty"`
}

// Result is the ordered set of chunks produced for one request. It owns no
// external resources and is discarded after injection.
type Result struct {
	Chunks []Chunk `json:"chunks"`
}

// ContextBlock renders the result as a single injectable text block, chunks
// joined under entity headers.
func (r *Result) ContextBlock() string {
	if r == nil || len(r.Chunks) == 0 {
		return ""
	}
	parts := make([]string, 0, len(r.Chunks))
	for _, chunk := range r.Chunks {
		header := fmt.Sprintf("【%s】", chunk.Entity)
		if chunk.Source != "" {
			header += fmt.Sprintf(" (来源: %s)", chunk.Source)
		}
		parts = append(parts, header+"\n"+chunk.Content)
	}
	return strings.Join(parts, "\n\n")
}
