package cli

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/lorebook/lorebook/internal/cache"
	"github.com/lorebook/lorebook/internal/knowledge"
)

type styles struct {
	entity  lipgloss.Style
	source  lipgloss.Style
	content lipgloss.Style
	muted   lipgloss.Style
	label   lipgloss.Style
	value   lipgloss.Style
}

func newStyles() styles {
	return styles{
		entity:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("111")),
		source:  lipgloss.NewStyle().Foreground(lipgloss.Color("246")),
		content: lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
		label:   lipgloss.NewStyle().Foreground(lipgloss.Color("246")),
		value:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255")),
	}
}

// renderResult renders each chunk with an entity header and source line.
func renderResult(result *knowledge.Result) string {
	if result == nil || len(result.Chunks) == 0 {
		return newStyles().muted.Render("(no knowledge retrieved)")
	}
	s := newStyles()
	parts := make([]string, 0, len(result.Chunks))
	for _, chunk := range result.Chunks {
		header := s.entity.Render(chunk.Entity)
		if chunk.Source != "" {
			header += " " + s.source.Render("["+string(chunk.Source)+"]")
		}
		block := header + "\n" + s.content.Render(chunk.Content)
		if chunk.SourceURL != "" {
			block += "\n" + s.muted.Render(chunk.SourceURL)
		}
		parts = append(parts, block)
	}
	return strings.Join(parts, "\n\n")
}

func renderCacheStats(stats cache.Stats, total, expired int64) string {
	s := newStyles()
	line := func(label string, value any) string {
		return s.label.Render(label+": ") + s.value.Render(fmt.Sprint(value))
	}
	return strings.Join([]string{
		line("entries", total),
		line("expired (unswept)", expired),
		line("hits", stats.Hits),
		line("misses", stats.Misses),
		line("hit rate", fmt.Sprintf("%.2f", stats.HitRate())),
	}, "\n")
}
