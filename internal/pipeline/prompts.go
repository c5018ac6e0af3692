package pipeline

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"text/template"
)

//go:embed prompts
var promptFS embed.FS

// Prompt file names.
const (
	ResearchSystem   = "research-system.md"
	ResearchUser     = "research-user.md"
	PlannerSystem    = "planner-system.md"
	PlannerUser      = "planner-user.md"
	WriterSystem     = "writer-system.md"
	WriterUser       = "writer-user.md"
	Farewell         = "farewell.md"
	SummarizerSystem = "summarizer-system.md"
	SummarizerUser   = "summarizer-user.md"
	StorySeed        = "seed.json"
)

// requiredVars lists the template variables a prompt must reference. Override
// files are checked against it when loaded.
var requiredVars = map[string][]string{
	ResearchUser:   {"{{.Topic}}", "{{.Year}}"},
	PlannerUser:    {"{{.Topic}}", "{{.Year}}"},
	WriterUser:     {"{{.Research}}", "{{.NextTopic}}", "{{.NextYear}}"},
	Farewell:       {"{{.NextTopic}}", "{{.NextYear}}"},
	SummarizerUser: {"{{.Passage}}", "{{.StoryBible}}"},
}

// storyRequiredVars replaces the writer entry for story series.
var storyRequiredVars = map[string][]string{
	WriterUser: {"{{.Synopsis}}", "{{.LastPassage}}"},
}

// Prompts resolves prompt files for one series. A file in the override
// directory replaces the embedded default of the same name.
type Prompts struct {
	series      string
	overrideDir string
	story       bool
	embedded    fs.FS
}

// ErrPromptNotFound means neither the override directory nor the embedded
// defaults have the prompt.
var ErrPromptNotFound = errors.New("prompt not found")

// LoadPrompts returns the prompts of series. overrideDir may be empty.
func LoadPrompts(series, overrideDir string, story bool) (*Prompts, error) {
	p := &Prompts{series: series, overrideDir: overrideDir, story: story}

	if sub, err := fs.Sub(promptFS, path.Join("prompts", series)); err == nil {
		if _, err := fs.Stat(sub, "."); err == nil {
			p.embedded = sub
		}
	}
	if p.embedded == nil && overrideDir == "" {
		return nil, fmt.Errorf("no embedded prompts for series %q and no prompts_dir set", series)
	}
	return p, nil
}

// Text returns the raw prompt and checks its required variables.
func (p *Prompts) Text(name string) (string, error) {
	text, err := p.read(name)
	if err != nil {
		return "", err
	}

	required := requiredVars[name]
	if p.story {
		if vars, ok := storyRequiredVars[name]; ok {
			required = vars
		}
	}
	for _, v := range required {
		if !strings.Contains(text, v) {
			return "", fmt.Errorf("%s prompt %s must contain %s variable", p.series, name, v)
		}
	}
	return text, nil
}

// Render executes the prompt as a text/template with data.
func (p *Prompts) Render(name string, data any) (string, error) {
	text, err := p.Text(name)
	if err != nil {
		return "", err
	}

	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parsing %s prompt %s: %w", p.series, name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s prompt %s: %w", p.series, name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Validate checks that every named prompt can be read.
func (p *Prompts) Validate(names ...string) error {
	var errs []error
	for _, name := range names {
		if _, err := p.Text(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Prompts) read(name string) (string, error) {
	if p.overrideDir != "" {
		content, err := os.ReadFile(filepath.Join(p.overrideDir, name))
		if err == nil {
			return string(content), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("reading prompt override %s: %w", name, err)
		}
	}
	if p.embedded != nil {
		content, err := fs.ReadFile(p.embedded, name)
		if err == nil {
			return string(content), nil
		}
	}
	return "", fmt.Errorf("%w: %s/%s", ErrPromptNotFound, p.series, name)
}
