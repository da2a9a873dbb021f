package cli

import (
	"strings"
	"testing"

	"github.com/lorebook/lorebook/internal/cache"
	"github.com/lorebook/lorebook/internal/knowledge"
)

func TestRenderResult(t *testing.T) {
	result := &knowledge.Result{Chunks: []knowledge.Chunk{
		{Source: knowledge.SourceMoegirl, Entity: "甘雨", Content: "角色介绍。", SourceURL: "https://example/1"},
		{Source: knowledge.SourceWikidata, Entity: "苹果公司", Content: "- founder: 乔布斯"},
	}}

	out := renderResult(result)
	for _, want := range []string{"甘雨", "moegirl", "角色介绍。", "https://example/1", "苹果公司", "- founder: 乔布斯"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q lacks %q", out, want)
		}
	}
	if !strings.Contains(out, "\n\n") {
		t.Fatalf("chunks should be separated by a blank line: %q", out)
	}
}

func TestRenderResultEmpty(t *testing.T) {
	if out := renderResult(&knowledge.Result{}); !strings.Contains(out, "no knowledge retrieved") {
		t.Fatalf("output = %q", out)
	}
	if out := renderResult(nil); !strings.Contains(out, "no knowledge retrieved") {
		t.Fatalf("nil output = %q", out)
	}
}

func TestRenderCacheStats(t *testing.T) {
	out := renderCacheStats(cache.Stats{Hits: 3, Misses: 1}, 10, 2)
	for _, want := range []string{"10", "2", "3", "1", "0.75"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q lacks %q", out, want)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	var sb strings.Builder
	cmd := newVersionCommand()
	cmd.SetOut(&sb)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if got := strings.TrimSpace(sb.String()); got != version {
		t.Fatalf("version output = %q", got)
	}
}
