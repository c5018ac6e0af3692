// Package publish writes finished posts as Jekyll markdown files.
package publish

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aktagon/history-writer/internal/document"
)

//go:embed post.md.tmpl
var defaultTemplate string

// FrontMatter is the YAML header of a post.
type FrontMatter struct {
	Title      string   `yaml:"title"`
	Categories []string `yaml:"categories"`
	Toc        bool     `yaml:"toc"`
	TocSticky  bool     `yaml:"toc_sticky"`
	Comments   bool     `yaml:"comments"`
}

// Post is one day of a series.
type Post struct {
	Day   int
	Date  time.Time
	Title string
	Body  string
}

// FromContent builds a post whose title is the first line of content.
func FromContent(day int, date time.Time, content string) Post {
	title, body := document.SplitTitle(content)
	return Post{Day: day, Date: date, Title: title, Body: body}
}

// Publisher renders posts into <OutputRoot>/<Category>.
type Publisher struct {
	OutputRoot string
	Category   string

	// TemplatePath replaces the embedded post template when set.
	TemplatePath string
}

// Filename returns the path of the post for day.
func (p *Publisher) Filename(post Post) string {
	name := fmt.Sprintf("%s-day%d.md", post.Date.Format("2006-01-02"), post.Day)
	return filepath.Join(p.OutputRoot, p.Category, name)
}

// Render returns the file contents of post.
func (p *Publisher) Render(post Post) ([]byte, error) {
	fm, err := yaml.Marshal(FrontMatter{
		Title:      post.Title,
		Categories: []string{p.Category},
		Toc:        true,
		TocSticky:  true,
		Comments:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding front matter: %w", err)
	}

	text := defaultTemplate
	if p.TemplatePath != "" {
		data, err := os.ReadFile(p.TemplatePath)
		if err != nil {
			return nil, fmt.Errorf("reading template: %w", err)
		}
		text = string(data)
	}

	tmpl, err := template.New("post").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing template: %w", err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, struct {
		Post
		FrontMatter string
		Category    string
	}{
		Post:        post,
		FrontMatter: string(fm),
		Category:    p.Category,
	})
	if err != nil {
		return nil, fmt.Errorf("executing template: %w", err)
	}
	return buf.Bytes(), nil
}

// Publish writes post and returns its path.
func (p *Publisher) Publish(post Post) (string, error) {
	if strings.TrimSpace(post.Title) == "" {
		return "", fmt.Errorf("post for day %d has no title", post.Day)
	}

	data, err := p.Render(post)
	if err != nil {
		return "", err
	}

	filename := p.Filename(post)
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return "", fmt.Errorf("writing post: %w", err)
	}
	return filename, nil
}
