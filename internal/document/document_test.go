package document

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	previewHeader   = "## 📅 Next time"
	citationsHeader = "## 📚 References"
)

func TestParseRoundTrip(t *testing.T) {
	inputs := []string{
		"",
		"no headers at all\njust text\n",
		"# Title\nintro\n\n## A\nbody a\n## B\nbody b",
		"preamble\n## A\n```md\n## not a header\n```\n## B\n",
		"## trailing header only",
	}
	for _, in := range inputs {
		assert.Equal(t, in, Parse(in).String())
	}
}

func TestParseSections(t *testing.T) {
	doc := Parse("Day 3: Title\nhello\n\n## First\none\n### Sub\nsub\n#hashtag line\n## Second\ntwo\n")

	require.Len(t, doc.Sections, 4)
	assert.Equal(t, "", doc.Sections[0].Header)
	assert.Equal(t, "## First", doc.Sections[1].Header)
	assert.Equal(t, 2, doc.Sections[1].Level)
	assert.Equal(t, "### Sub", doc.Sections[2].Header)
	assert.Contains(t, doc.Sections[2].Raw, "#hashtag line", "no space after # is not a header")
	assert.Equal(t, "## Second", doc.Sections[3].Header)
}

func TestParseIgnoresFencedHeaders(t *testing.T) {
	doc := Parse("## Real\n```\n## Fake\n```\n~~~\n# Also fake\n~~~\n## Next\n")

	var headers []string
	for _, s := range doc.Sections {
		headers = append(headers, s.Header)
	}
	assert.Equal(t, []string{"## Real", "## Next"}, headers)
}

func TestReplaceSectionKeepsFooterVerbatim(t *testing.T) {
	footer := citationsHeader + "\n* [Paper](https://example.com/paper)\n* [Blog](https://example.com/blog)\n\n*This content was generated by AI.*"
	content := "Day 80: Transformers\n\nIntro text.\n\n## Deep dive\nAttention is all you need.\n\n" +
		previewHeader + "\nTomorrow we cover GPT-3.\n\n" + footer
	farewell := "## 🛑 The end of the road\nThank you for reading."

	got, ok := Parse(content).ReplaceSection(previewHeader, farewell, citationsHeader)
	require.True(t, ok)

	assert.True(t, strings.HasSuffix(got, footer), "footer preserved verbatim")
	assert.NotContains(t, got, "Tomorrow we cover GPT-3.")
	assert.NotContains(t, got, previewHeader)

	base := "Day 80: Transformers\n\nIntro text.\n\n## Deep dive\nAttention is all you need."
	assert.Equal(t, base+"\n\n"+farewell+"\n\n"+footer, got)

	farewellAt := strings.Index(got, farewell)
	assert.Greater(t, farewellAt, strings.Index(got, "Attention is all you need."))
	assert.Less(t, farewellAt, strings.Index(got, citationsHeader))
}

func TestReplaceSectionHeaderVariants(t *testing.T) {
	footer := citationsHeader + "\n* [Paper](https://example.com/paper)\n"

	tests := []struct {
		name   string
		header string
	}{
		{"exact", previewHeader},
		{"trailing topic", previewHeader + ": GPT-3"},
		{"deeper level", "### 📅 Next time"},
		{"shallower level", "# 📅 Next time"},
		{"bold wrapped", "**" + previewHeader + "**"},
		{"indented", "  " + previewHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := "Title\n\nBody.\n\n" + tt.header + "\nTomorrow we cover GPT-3.\n\n" + footer

			got, ok := Parse(content).ReplaceSection(previewHeader, "## Bye", citationsHeader)
			require.True(t, ok)
			assert.Equal(t, "Title\n\nBody.\n\n## Bye\n\n"+footer, got)
		})
	}
}

func TestIndexIgnoresBodyText(t *testing.T) {
	doc := Parse("Intro mentions 📅 Next time in passing.\n**bold** and **more**\n## Other\n")

	assert.Equal(t, -1, doc.Index(previewHeader, 0))
	assert.Equal(t, -1, doc.Index("##", 0), "an empty header text matches nothing")
	assert.Equal(t, 1, doc.Index("### Other", 0))
}

func TestReplaceSectionWithoutFooter(t *testing.T) {
	content := "Title\n\nBody.\n\n" + previewHeader + "\nNext is X."

	got, ok := Parse(content).ReplaceSection(previewHeader, "## Bye\nThanks.", citationsHeader)
	require.True(t, ok)
	assert.Equal(t, "Title\n\nBody.\n\n## Bye\nThanks.\n\n", got)
}

func TestReplaceSectionMissingTargetIsNoop(t *testing.T) {
	content := "Title\n\nBody.\n\n" + citationsHeader + "\n* [a](https://a.example)\n"

	got, ok := Parse(content).ReplaceSection(previewHeader, "## Bye", citationsHeader)
	assert.False(t, ok)
	assert.Equal(t, content, got)
}

func TestReplaceSectionUsesFirstTarget(t *testing.T) {
	content := "Body\n" + previewHeader + "\nfirst\n" + previewHeader + "\nsecond\n" + citationsHeader + "\nrefs\n"

	got, ok := Parse(content).ReplaceSection(previewHeader, "## Bye", citationsHeader)
	require.True(t, ok)
	assert.Equal(t, "Body\n\n## Bye\n\n"+citationsHeader+"\nrefs\n", got)
}

func TestReplaceSectionIgnoresCitationsBeforeTarget(t *testing.T) {
	content := citationsHeader + "\nearly\n" + previewHeader + "\npreview\n"

	got, ok := Parse(content).ReplaceSection(previewHeader, "## Bye", citationsHeader)
	require.True(t, ok)
	assert.Equal(t, citationsHeader+"\nearly\n\n## Bye\n\n", got)
}

func TestSplitTitle(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantTitle string
		wantBody  string
	}{
		{"plain first line", "Day 1: MCP neuron\nHello\n\nMore", "Day 1: MCP neuron", "Hello\n\nMore"},
		{"hash title", "# Day 2: Turing\n\nBody", "Day 2: Turing", "Body"},
		{"leading blank lines", "\n\n## Day 3\nBody", "Day 3", "Body"},
		{"single line", "Only a title", "Only a title", ""},
		{"empty", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, body := SplitTitle(tt.content)
			assert.Equal(t, tt.wantTitle, title)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestFirstHeading(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected string
	}{
		{"first heading", "# Title\nsome content", "Title"},
		{"multiple headings", "# First\n## Second\n# Third", "First"},
		{"level two only", "## Second\ntext", ""},
		{"no heading", "just text\nno heading", ""},
		{"empty content", "", ""},
		{"heading with prefix", "text\n# Real Title\nmore", "Real Title"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FirstHeading(tt.content))
		})
	}
}
