package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aktagon/history-writer/internal/citation"
	"github.com/aktagon/history-writer/internal/document"
	"github.com/aktagon/history-writer/internal/journey"
	"github.com/aktagon/history-writer/internal/llm"
	"github.com/aktagon/history-writer/internal/logging"
	"github.com/aktagon/history-writer/internal/retry"
)

// History generates one post of a history series.
type History struct {
	Research Agent
	Planner  Agent
	Writer   Agent

	Prompts  *Prompts
	Resolver SourceResolver
	Retry    retry.Policy

	PreviewHeader   string
	CitationsHeader string
	Disclaimer      string
}

// Topic is what today's post covers.
type Topic struct {
	Day       int
	Topic     string
	Year      journey.Year
	LastTopic string
	LastYear  journey.Year
}

// Plan is the planner's choice of the next milestone.
type Plan struct {
	NextTopic string `json:"next_topic"`
	NextYear  int    `json:"next_year"`
	Reasoning string `json:"reasoning,omitempty"`
}

// Article is a finished post body with its metadata.
type Article struct {
	// Content is the writer's Markdown followed by the references section and
	// the disclaimer.
	Content  string
	Metadata journey.Metadata
	Plan     Plan
	Sources  []citation.Source
}

// Seed is the first topic of a series.
type Seed struct {
	Topic string
	Year  int
}

type writerOutput struct {
	Content  string           `json:"content"`
	Metadata journey.Metadata `json:"metadata"`
}

// Generate runs research, planning and writing for t.
func (h *History) Generate(ctx context.Context, t Topic) (*Article, error) {
	logger := logging.FromContext(ctx)

	data := promptData{
		Day:           t.Day,
		Topic:         t.Topic,
		Year:          t.Year.String(),
		LastTopic:     t.LastTopic,
		LastYear:      t.LastYear.String(),
		PreviewHeader: h.PreviewHeader,
	}

	logger.Info("→ Researching", "topic", t.Topic, "year", data.Year)
	research, err := h.research(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("researching %q: %w", t.Topic, err)
	}
	sources := webSources(research.Sources)
	if h.Resolver != nil {
		sources = h.Resolver.ResolveSources(ctx, sources)
	}
	logger.Info("✓ Research completed", "sources", len(sources), "queries", research.Queries)

	data.Research = research.Text

	logger.Info("→ Planning next topic")
	plan, err := h.plan(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("planning after %q: %w", t.Topic, err)
	}
	logger.Info("✓ Planned", "next_topic", plan.NextTopic, "next_year", plan.NextYear, "reasoning", plan.Reasoning)

	data.NextTopic = plan.NextTopic
	data.NextYear = strconv.Itoa(plan.NextYear)
	data.Reasoning = plan.Reasoning

	logger.Info("→ Writing", "day", t.Day)
	out, err := h.write(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("writing day %d: %w", t.Day, err)
	}
	logger.Info("✓ Writing completed", "current_topic", out.Metadata.CurrentTopic, "next_topic", out.Metadata.NextTopic, "next_year", out.Metadata.NextYear)

	return &Article{
		Content:  h.withReferences(out.Content, sources),
		Metadata: out.Metadata,
		Plan:     plan,
		Sources:  sources,
	}, nil
}

// Farewell replaces the preview section of content with the closing message.
// The references section after it is kept as is. It reports false when the
// content has no preview section.
func (h *History) Farewell(content string, m journey.Metadata, seed Seed, window int) (string, bool, error) {
	text, err := h.Prompts.Render(Farewell, promptData{
		NextTopic: m.NextTopic,
		NextYear:  strconv.Itoa(m.NextYear),
		SeedTopic: seed.Topic,
		SeedYear:  strconv.Itoa(seed.Year),
		Window:    window,
	})
	if err != nil {
		return content, false, err
	}

	out, ok := document.Parse(content).ReplaceSection(h.PreviewHeader, text, h.CitationsHeader)
	return out, ok, nil
}

func (h *History) research(ctx context.Context, data promptData) (*llm.Response, error) {
	system, err := h.Prompts.Render(ResearchSystem, data)
	if err != nil {
		return nil, err
	}
	user, err := h.Prompts.Render(ResearchUser, data)
	if err != nil {
		return nil, err
	}

	req := h.Research.request(system, user, nil)
	req.Search = true

	logger := logging.FromContext(ctx)
	return retry.Do(ctx, h.Retry,
		func(ctx context.Context) (*llm.Response, error) {
			return h.Research.Generator.Generate(ctx, req)
		},
		func(resp *llm.Response) bool {
			return resp.WebSources() > 0
		},
		func(attempt int, err error, wait time.Duration) {
			logger.Warn("Research attempt failed, retrying", "attempt", attempt, "wait", wait, logging.Err(err))
		},
	)
}

func (h *History) plan(ctx context.Context, data promptData) (Plan, error) {
	system, err := h.Prompts.Render(PlannerSystem, data)
	if err != nil {
		return Plan{}, err
	}
	user, err := h.Prompts.Render(PlannerUser, data)
	if err != nil {
		return Plan{}, err
	}

	var p Plan
	if err := h.Planner.generateJSON(ctx, system, user, plannerSchema, &p); err != nil {
		return Plan{}, err
	}
	return p, nil
}

func (h *History) write(ctx context.Context, data promptData) (writerOutput, error) {
	system, err := h.Prompts.Render(WriterSystem, data)
	if err != nil {
		return writerOutput{}, err
	}
	user, err := h.Prompts.Render(WriterUser, data)
	if err != nil {
		return writerOutput{}, err
	}

	var out writerOutput
	if err := h.Writer.generateJSON(ctx, system, user, writerSchema, &out); err != nil {
		return writerOutput{}, err
	}
	return out, nil
}

func (h *History) withReferences(content string, sources []citation.Source) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(content))
	b.WriteString("\n\n")
	b.WriteString(h.CitationsHeader)
	b.WriteString("\n")
	b.WriteString(citation.Markdown(sources))
	if h.Disclaimer != "" {
		b.WriteString("\n*")
		b.WriteString(h.Disclaimer)
		b.WriteString("*\n")
	}
	return b.String()
}

func webSources(sources []citation.Source) []citation.Source {
	var out []citation.Source
	for _, s := range sources {
		if s.Kind == citation.Web {
			out = append(out, s)
		}
	}
	return out
}
