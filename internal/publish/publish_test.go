package publish

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var testDate = time.Date(2025, 3, 14, 6, 0, 0, 0, time.UTC)

func splitFrontMatter(t *testing.T, data []byte) (FrontMatter, string) {
	t.Helper()
	text := string(data)
	require.True(t, strings.HasPrefix(text, "---\n"), text)

	header, body, ok := strings.Cut(strings.TrimPrefix(text, "---\n"), "---\n")
	require.True(t, ok, text)

	var fm FrontMatter
	require.NoError(t, yaml.Unmarshal([]byte(header), &fm))
	return fm, body
}

func TestFromContent(t *testing.T) {
	post := FromContent(4, testDate, "# Day 4: 퍼셉트론\n\n안녕하세요!\n\n## 본론\n학습.\n")
	assert.Equal(t, "Day 4: 퍼셉트론", post.Title)
	assert.Equal(t, "안녕하세요!\n\n## 본론\n학습.", post.Body)
	assert.Equal(t, 4, post.Day)
}

func TestFilename(t *testing.T) {
	p := &Publisher{OutputRoot: "_posts", Category: "ai_history"}
	got := p.Filename(Post{Day: 12, Date: testDate})
	assert.Equal(t, filepath.Join("_posts", "ai_history", "2025-03-14-day12.md"), got)
}

func TestPublish(t *testing.T) {
	root := t.TempDir()
	p := &Publisher{OutputRoot: filepath.Join(root, "_posts"), Category: "cs_history"}

	filename, err := p.Publish(Post{Day: 1, Date: testDate, Title: "Day 1: 해석기관", Body: "배비지의 꿈."})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "_posts", "cs_history", "2025-03-14-day1.md"), filename)

	data, err := os.ReadFile(filename)
	require.NoError(t, err)

	fm, body := splitFrontMatter(t, data)
	assert.Equal(t, FrontMatter{
		Title:      "Day 1: 해석기관",
		Categories: []string{"cs_history"},
		Toc:        true,
		TocSticky:  true,
		Comments:   true,
	}, fm)
	assert.Equal(t, "\n배비지의 꿈.\n", body)
	assert.Contains(t, string(data), "해석기관", "non-ASCII is written unescaped")
}

func TestPublishOverwritesSameDay(t *testing.T) {
	p := &Publisher{OutputRoot: t.TempDir(), Category: "ai_history"}

	_, err := p.Publish(Post{Day: 2, Date: testDate, Title: "first", Body: "a"})
	require.NoError(t, err)
	filename, err := p.Publish(Post{Day: 2, Date: testDate, Title: "second", Body: "b"})
	require.NoError(t, err)

	data, err := os.ReadFile(filename)
	require.NoError(t, err)
	fm, _ := splitFrontMatter(t, data)
	assert.Equal(t, "second", fm.Title)
}

func TestPublishTemplateOverride(t *testing.T) {
	dir := t.TempDir()
	tmplPath := filepath.Join(dir, "post.md")
	require.NoError(t, os.WriteFile(tmplPath, []byte("{{.Category}}/{{.Day}}: {{.Title}}\n{{.Body}}"), 0644))

	p := &Publisher{OutputRoot: dir, Category: "ghost_in_the_legacy", TemplatePath: tmplPath}
	data, err := p.Render(Post{Day: 3, Date: testDate, Title: "Ghost in the Legacy - Day 3", Body: "본문"})
	require.NoError(t, err)
	assert.Equal(t, "ghost_in_the_legacy/3: Ghost in the Legacy - Day 3\n본문", string(data))
}

func TestPublishErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing title", func(t *testing.T) {
		p := &Publisher{OutputRoot: dir, Category: "ai_history"}
		_, err := p.Publish(Post{Day: 1, Date: testDate, Body: "x"})
		assert.Error(t, err)
	})

	t.Run("missing template", func(t *testing.T) {
		p := &Publisher{OutputRoot: dir, Category: "ai_history", TemplatePath: filepath.Join(dir, "nope.md")}
		_, err := p.Publish(Post{Day: 1, Date: testDate, Title: "t"})
		assert.ErrorContains(t, err, "reading template")
	})

	t.Run("broken template", func(t *testing.T) {
		path := filepath.Join(dir, "broken.md")
		require.NoError(t, os.WriteFile(path, []byte("{{.Title"), 0644))
		p := &Publisher{OutputRoot: dir, Category: "ai_history", TemplatePath: path}
		_, err := p.Publish(Post{Day: 1, Date: testDate, Title: "t"})
		assert.ErrorContains(t, err, "parsing template")
	})

	t.Run("output root is a file", func(t *testing.T) {
		file := filepath.Join(dir, "file")
		require.NoError(t, os.WriteFile(file, nil, 0644))
		p := &Publisher{OutputRoot: file, Category: "ai_history"}
		_, err := p.Publish(Post{Day: 1, Date: testDate, Title: "t"})
		assert.ErrorContains(t, err, "creating output directory")
	})
}
