package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"

	"github.com/aktagon/history-writer/internal/publish"
)

var errNoPosts = errors.New("no posts published yet")

// showLatest renders the newest post of a category for the terminal.
func showLatest(p *publish.Publisher, style string, width int) (string, error) {
	path, err := p.Latest()
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", errNoPosts
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading post: %w", err)
	}
	fm, body, err := publish.Parse(data)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}

	return renderPost("# "+fm.Title+"\n\n"+body, style, width)
}

func renderPost(markdown, style string, width int) (string, error) {
	styleOpt := glamour.WithAutoStyle()
	if style != "" && style != "auto" {
		styleOpt = glamour.WithStylePath(style)
	}

	renderer, err := glamour.NewTermRenderer(
		styleOpt,
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("creating renderer: %w", err)
	}
	out, err := renderer.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("rendering post: %w", err)
	}
	return out, nil
}
