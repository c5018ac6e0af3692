package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aktagon/history-writer/internal/citation"
	"github.com/aktagon/history-writer/internal/journey"
	"github.com/aktagon/history-writer/internal/logging"
	"github.com/aktagon/history-writer/internal/retry"
)

// ErrNoPassage means the writer returned nothing because the story is over.
var ErrNoPassage = errors.New("writer returned no passage")

// SourceHeaders titles the four reference lists of a story post.
type SourceHeaders struct {
	WebUsed    string `yaml:"web_used"`
	WebUnused  string `yaml:"web_unused"`
	MapsUsed   string `yaml:"maps_used"`
	MapsUnused string `yaml:"maps_unused"`
}

// Story generates one passage of a relay story.
type Story struct {
	Writer     Agent
	Summarizer Agent

	Prompts  *Prompts
	Resolver SourceResolver
	Retry    retry.Policy

	Sentinel      string
	BodyHeader    string
	SourceHeaders SourceHeaders
	Disclaimer    string
}

// Passage is a new part of the story and what it adds to the state.
type Passage struct {
	Text       string
	Summary    string
	StoryBible json.RawMessage
	Sources    []citation.Source
}

type summary struct {
	PlotSummary string          `json:"plot_summary"`
	StoryBible  json.RawMessage `json:"story_bible"`
}

// Generate writes the passage that follows st and summarizes it. It returns
// ErrNoPassage when the writer has nothing to add.
func (s *Story) Generate(ctx context.Context, st journey.StoryState) (*Passage, error) {
	logger := logging.FromContext(ctx)

	data := promptData{
		Day:         st.DayCount + 1,
		Synopsis:    st.Synopsis,
		StoryBible:  string(st.StoryBible),
		LastPassage: st.LastPassage,
		PlotLog:     formatPlotLog(st.PlotLog),
		Sentinel:    s.Sentinel,
	}

	logger.Info("→ Writing passage", "day", data.Day)
	system, err := s.Prompts.Render(WriterSystem, data)
	if err != nil {
		return nil, err
	}
	user, err := s.Prompts.Render(WriterUser, data)
	if err != nil {
		return nil, err
	}

	req := s.Writer.request(system, user, nil)
	var sources []citation.Source
	resp, err := retry.Do(ctx, s.Retry, func(ctx context.Context) (string, error) {
		r, err := s.Writer.Generator.Generate(ctx, req)
		if err != nil {
			return "", err
		}
		sources = r.Sources
		return r.Text, nil
	}, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("writing passage: %w", err)
	}

	text := strings.TrimSpace(resp)
	if text == "" {
		return nil, ErrNoPassage
	}

	if s.Resolver != nil {
		sources = s.Resolver.ResolveSources(ctx, sources)
	}
	logger.Info("✓ Passage written", "chars", len([]rune(text)), "sources", len(sources))

	data.Passage = text
	logger.Info("→ Summarizing passage")
	sum, err := s.summarize(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("summarizing passage: %w", err)
	}
	logger.Info("✓ Summarized", "plot_summary", sum.PlotSummary)

	return &Passage{
		Text:       text,
		Summary:    sum.PlotSummary,
		StoryBible: sum.StoryBible,
		Sources:    sources,
	}, nil
}

// Body lays out the post: the passage, the reference lists that have entries
// and the disclaimer.
func (s *Story) Body(p *Passage) string {
	var b strings.Builder
	b.WriteString(s.BodyHeader)
	b.WriteString("\n")
	b.WriteString(p.Text)
	b.WriteString("\n")

	lists := []struct {
		header string
		kind   citation.Kind
		used   bool
	}{
		{s.SourceHeaders.WebUsed, citation.Web, true},
		{s.SourceHeaders.WebUnused, citation.Web, false},
		{s.SourceHeaders.MapsUsed, citation.Maps, true},
		{s.SourceHeaders.MapsUnused, citation.Maps, false},
	}
	if len(p.Sources) > 0 {
		b.WriteString("\n---\n")
		for _, l := range lists {
			sources := citation.Filter(p.Sources, l.kind, l.used)
			if len(sources) == 0 {
				continue
			}
			b.WriteString("\n")
			b.WriteString(l.header)
			b.WriteString("\n")
			b.WriteString(citation.Markdown(sources))
		}
	}

	if s.Disclaimer != "" {
		b.WriteString("\n---\n\n*")
		b.WriteString(s.Disclaimer)
		b.WriteString("*\n")
	}
	return b.String()
}

func (s *Story) summarize(ctx context.Context, data promptData) (summary, error) {
	system, err := s.Prompts.Render(SummarizerSystem, data)
	if err != nil {
		return summary{}, err
	}
	user, err := s.Prompts.Render(SummarizerUser, data)
	if err != nil {
		return summary{}, err
	}

	var out summary
	if err := s.Summarizer.generateJSON(ctx, system, user, summarizerSchema, &out); err != nil {
		return summary{}, err
	}
	return out, nil
}

func formatPlotLog(log []string) string {
	if len(log) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, entry := range log {
		fmt.Fprintf(&b, "%d. %s\n", i+1, entry)
	}
	return strings.TrimRight(b.String(), "\n")
}
