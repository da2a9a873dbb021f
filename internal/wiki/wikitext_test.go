package wiki

import "testing"

func TestCleanWikitext(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "div tags removed",
			in:   "<div style='color:red;'>Text inside div</div> More text.",
			want: "Text inside div More text.",
		},
		{
			name: "br tags become newlines",
			in:   "Line 1<br/>Line 2<br />Line 3",
			want: "Line 1\nLine 2\nLine 3",
		},
		{
			name: "page level templates removed",
			in:   "Some text {{原神TOP}} and {{背景图片|file.jpg}} more text.",
			want: "Some text  and  more text.",
		},
		{
			name: "refs stripped",
			in:   "Fact.<ref name=\"a\">citation body</ref> More.",
			want: "Fact. More.",
		},
		{
			name: "color templates unwrap",
			in:   "Text with {{color|red|colored text}} and {{genshincolor|冰|冰元素文本}}.",
			want: "Text with colored text and 冰元素文本.",
		},
		{
			name: "ruby template keeps pronunciation",
			in:   "{{ruby|刻晴|Keqing}}",
			want: "刻晴(Keqing)",
		},
		{
			name: "separators standardized",
			in:   "Value1{{!!}}Value2{{!!}}Value3",
			want: "Value1, Value2, Value3",
		},
		{
			name: "file and video links simplified",
			in:   "See [[File:image.png|thumb|desc]] and {{BilibiliVideo|id=12345}}.",
			want: "See [图片: image.png] and [Bilibili视频: https://www.bilibili.com/video/12345].",
		},
		{
			name: "structural templates preserved",
			in:   "Text before {{GenshinChara|本名=甘雨}} text after.",
			want: "Text before {{GenshinChara|本名=甘雨}} text after.",
		},
		{
			name: "headings convert by level",
			in:   "= Heading 1 =\n== Heading 2 ==\n=== Heading 3 ===",
			want: "# Heading 1\n## Heading 2\n### Heading 3",
		},
		{
			name: "bold and italic",
			in:   "'''bold''' and ''italic''",
			want: "**bold** and *italic*",
		},
		{
			name: "piped wikilink",
			in:   "[[LinkTarget|Link Text]]",
			want: "[Link Text](LinkTarget)",
		},
		{
			name: "bare wikilink",
			in:   "[[LinkTarget]]",
			want: "[LinkTarget](LinkTarget)",
		},
		{
			name: "external link with text",
			in:   "[https://example.com Example Text]",
			want: "[Example Text](https://example.com)",
		},
		{
			name: "external link without text",
			in:   "[https://example.com]",
			want: "https://example.com",
		},
		{
			name: "blank line runs collapse",
			in:   "para one\n\n\n\npara two",
			want: "para one\n\npara two",
		},
		{
			name: "plain text unchanged",
			in:   "This is just some plain text.",
			want: "This is just some plain text.",
		},
		{
			name: "empty input",
			in:   "",
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CleanWikitext(tc.in); got != tc.want {
				t.Fatalf("CleanWikitext(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
