package wiki

import (
	"regexp"
	"strings"
)

// rewrite is one step of the wikitext cleanup pipeline.
type rewrite struct {
	pattern *regexp.Regexp
	repl    string
}

// wikitextRewrites strips visual noise from raw wikitext while keeping the
// article's data: purely visual tags go away, functional templates unwrap to
// their text, and wiki syntax converts to a markdown-ish form. Order matters:
// piped links must run before bare links, long headings before short ones.
var wikitextRewrites = []rewrite{
	// Visual-only HTML tags, keeping their content.
	{regexp.MustCompile(`(?i)</?(poem|del|big|small|u)[^>]*>`), ""},
	{regexp.MustCompile(`(?i)<br\s*/?>`), "\n"},
	{regexp.MustCompile(`(?i)</?div[^>]*>`), ""},

	// Page-level furniture templates.
	{regexp.MustCompile(`(?i)\{\{(原神TOP|背景图片|注释|references/|玩梗适度)(\|[^}]*)?\}\}`), ""},

	// Footnotes.
	{regexp.MustCompile(`(?is)<ref[^>]*>.*?</ref>`), ""},

	// Inline style templates, keeping their content.
	{regexp.MustCompile(`\{\{(?:color|genshincolor)\|[^|}]+?\|([^}]+?)\}\}`), "$1"},
	{regexp.MustCompile(`\{\{ruby\|([^|]+)\|([^}]+)\}\}`), "$1($2)"},
	{regexp.MustCompile(`\{\{!!\}\}`), ", "},

	// Files and embedded media.
	{regexp.MustCompile(`\[\[File:([^|\]]+).*?\]\]`), "[图片: $1]"},
	{regexp.MustCompile(`\{\{BilibiliVideo\|id=(.*?)\}\}`), "[Bilibili视频: https://www.bilibili.com/video/$1]"},

	// Emphasis.
	{regexp.MustCompile(`'''(.*?)'''`), "**$1**"},
	{regexp.MustCompile(`''(.*?)''`), "*$1*"},

	// Internal links, piped form first.
	{regexp.MustCompile(`\[\[([^|\]]+?)\|([^\]]+?)\]\]`), "[$2]($1)"},
	{regexp.MustCompile(`\[\[([^\]]+?)\]\]`), "[$1]($1)"},

	// Headings, longest first.
	{regexp.MustCompile(`(?m)^======\s*(.*?)\s*======\s*$`), "###### $1"},
	{regexp.MustCompile(`(?m)^=====\s*(.*?)\s*=====\s*$`), "##### $1"},
	{regexp.MustCompile(`(?m)^====\s*(.*?)\s*====\s*$`), "#### $1"},
	{regexp.MustCompile(`(?m)^===\s*(.*?)\s*===\s*$`), "### $1"},
	{regexp.MustCompile(`(?m)^==\s*(.*?)\s*==\s*$`), "## $1"},
	{regexp.MustCompile(`(?m)^=\s*(.*?)\s*=\s*$`), "# $1"},
	{regexp.MustCompile(`(?m)^;\s*(.*?)\s*$`), "**$1**"},

	// External links.
	{regexp.MustCompile(`\[(https?://[^\s\]]+)\s+([^\]]+?)]`), "[$2]($1)"},
	{regexp.MustCompile(`\[(https?://[^\s\]]+)]`), "$1"},

	// Strikethrough.
	{regexp.MustCompile(`<del>(.*?)</del>`), "~~$1~~"},

	// Collapse runs of blank lines.
	{regexp.MustCompile(`\n{3,}`), "\n\n"},
}

// CleanWikitext reduces raw wikitext to readable text. Content below the
// summarization threshold goes through this and nothing else.
func CleanWikitext(wikitext string) string {
	cleaned := wikitext
	for _, step := range wikitextRewrites {
		cleaned = step.pattern.ReplaceAllString(cleaned, step.repl)
	}
	return strings.TrimSpace(cleaned)
}
