package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aktagon/history-writer/internal/citation"
	"github.com/aktagon/history-writer/internal/journey"
	"github.com/aktagon/history-writer/internal/llm"
	"github.com/aktagon/history-writer/internal/pipeline"
	"github.com/aktagon/history-writer/internal/publish"
	"github.com/aktagon/history-writer/internal/series"
	"github.com/aktagon/history-writer/internal/state"
)

// APIKeys holds the credentials of each provider.
type APIKeys struct {
	Gemini    string
	Anthropic string
}

func (k APIKeys) forProvider(provider string) string {
	if provider == llm.ProviderAnthropic {
		return k.Anthropic
	}
	return k.Gemini
}

// generatorFactory creates the client of one provider.
type generatorFactory func(ctx context.Context, provider, apiKey string) (llm.Generator, error)

func newGenerator(ctx context.Context, provider, apiKey string) (llm.Generator, error) {
	switch provider {
	case llm.ProviderGemini:
		g, err := llm.NewGemini(ctx, apiKey)
		if err != nil {
			return nil, err
		}
		return g, nil
	case llm.ProviderAnthropic:
		a, err := llm.NewAnthropic(apiKey)
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

// SeriesProcessor builds series runners from settings. Model clients are
// created once per provider and shared by every series.
type SeriesProcessor struct {
	settings *Settings
	keys     APIKeys
	factory  generatorFactory
	resolver *citation.Resolver

	mu         sync.Mutex
	generators map[string]llm.Generator
}

// NewSeriesProcessor creates a processor for settings.
func NewSeriesProcessor(settings *Settings, keys APIKeys) *SeriesProcessor {
	return &SeriesProcessor{
		settings:   settings,
		keys:       keys,
		factory:    newGenerator,
		resolver:   citation.NewResolver(settings.Citations.options()...),
		generators: make(map[string]llm.Generator),
	}
}

// CheckKeys fails when a series needs a provider without an API key.
func (sp *SeriesProcessor) CheckKeys(selected []SeriesSettings) error {
	for _, ss := range selected {
		for _, role := range roles(ss.Kind) {
			a, err := sp.settings.agentFor(ss, role)
			if err != nil {
				return fmt.Errorf("series %s: %w", ss.Name, err)
			}
			if sp.keys.forProvider(a.Provider) == "" {
				return fmt.Errorf("series %s: %s API key required for agents.%s", ss.Name, a.Provider, role)
			}
		}
	}
	return nil
}

// Runners builds a runner for each selected series.
func (sp *SeriesProcessor) Runners(ctx context.Context, selected []SeriesSettings) ([]series.Runner, error) {
	runners := make([]series.Runner, 0, len(selected))
	for _, ss := range selected {
		r, err := sp.Runner(ctx, ss)
		if err != nil {
			return nil, fmt.Errorf("series %s: %w", ss.Name, err)
		}
		runners = append(runners, r)
	}
	return runners, nil
}

// Runner builds the runner of one series. Model clients are created on first
// use, so a runner that only reports status never needs credentials.
func (sp *SeriesProcessor) Runner(ctx context.Context, ss SeriesSettings) (series.Runner, error) {
	story := ss.Kind == series.KindStory
	prompts, err := pipeline.LoadPrompts(ss.Name, ss.PromptsDir, story)
	if err != nil {
		return nil, err
	}

	publisher := &publish.Publisher{
		OutputRoot:   sp.settings.OutputRoot,
		Category:     ss.Category,
		TemplatePath: sp.settings.TemplatePath,
	}

	if story {
		return sp.storyRunner(ctx, ss, prompts, publisher)
	}
	return sp.historyRunner(ctx, ss, prompts, publisher)
}

func (sp *SeriesProcessor) historyRunner(ctx context.Context, ss SeriesSettings, prompts *pipeline.Prompts, publisher *publish.Publisher) (*series.History, error) {
	err := prompts.Validate(
		pipeline.ResearchSystem, pipeline.ResearchUser,
		pipeline.PlannerSystem, pipeline.PlannerUser,
		pipeline.WriterSystem, pipeline.WriterUser,
		pipeline.Farewell,
	)
	if err != nil {
		return nil, err
	}

	research, err := sp.agent(ctx, ss, roleResearch)
	if err != nil {
		return nil, err
	}
	planner, err := sp.agent(ctx, ss, rolePlanner)
	if err != nil {
		return nil, err
	}
	writer, err := sp.agent(ctx, ss, roleWriter)
	if err != nil {
		return nil, err
	}

	seed := pipeline.Seed{Topic: ss.SeedTopic, Year: ss.SeedYear}
	return &series.History{
		Series: ss.Name,
		Store: state.NewStore(sp.settings.statePath(ss.Name), func() journey.State {
			return journey.NewState(seed.Topic, seed.Year)
		}),
		Policy: journey.Policy{Window: ss.window()},
		Seed:   seed,
		Pipeline: &pipeline.History{
			Research:        research,
			Planner:         planner,
			Writer:          writer,
			Prompts:         prompts,
			Resolver:        sp.resolver,
			Retry:           sp.settings.Retry.Policy(),
			PreviewHeader:   ss.PreviewHeader,
			CitationsHeader: ss.CitationsHeader,
			Disclaimer:      sp.settings.Disclaimer,
		},
		Publisher: publisher,
	}, nil
}

func (sp *SeriesProcessor) storyRunner(ctx context.Context, ss SeriesSettings, prompts *pipeline.Prompts, publisher *publish.Publisher) (*series.Story, error) {
	err := prompts.Validate(
		pipeline.WriterSystem, pipeline.WriterUser,
		pipeline.SummarizerSystem, pipeline.SummarizerUser,
	)
	if err != nil {
		return nil, err
	}

	seed, err := storySeed(prompts)
	if err != nil {
		return nil, err
	}
	writer, err := sp.agent(ctx, ss, roleStoryWriter)
	if err != nil {
		return nil, err
	}
	summarizer, err := sp.agent(ctx, ss, roleSummarizer)
	if err != nil {
		return nil, err
	}

	return &series.Story{
		Series: ss.Name,
		Title:  ss.Title,
		Store: state.NewStore(sp.settings.statePath(ss.Name), func() journey.StoryState {
			return seed
		}),
		Policy: journey.StoryPolicy{Sentinel: ss.Sentinel},
		Pipeline: &pipeline.Story{
			Writer:        writer,
			Summarizer:    summarizer,
			Prompts:       prompts,
			Resolver:      sp.resolver,
			Retry:         sp.settings.Retry.Policy(),
			Sentinel:      ss.Sentinel,
			BodyHeader:    ss.BodyHeader,
			SourceHeaders: ss.SourceHeaders,
			Disclaimer:    sp.settings.Disclaimer,
		},
		Publisher: publisher,
	}, nil
}

// storySeed reads the initial story state shipped with the prompts.
func storySeed(prompts *pipeline.Prompts) (journey.StoryState, error) {
	text, err := prompts.Text(pipeline.StorySeed)
	if err != nil {
		return journey.StoryState{}, err
	}

	var seed journey.StoryState
	if err := json.Unmarshal([]byte(text), &seed); err != nil {
		return journey.StoryState{}, fmt.Errorf("parsing %s: %w", pipeline.StorySeed, err)
	}
	if len(seed.StoryBible) == 0 {
		seed.StoryBible = json.RawMessage("{}")
	}
	return seed, nil
}

func (sp *SeriesProcessor) agent(ctx context.Context, ss SeriesSettings, role string) (pipeline.Agent, error) {
	a, err := sp.settings.agentFor(ss, role)
	if err != nil {
		return pipeline.Agent{}, err
	}
	return pipeline.Agent{
		Generator:      sp.lazyGenerator(ctx, a.Provider),
		Model:          a.Model,
		Temperature:    a.Temperature,
		TopP:           a.TopP,
		MaxTokens:      a.MaxTokens,
		ThinkingBudget: a.ThinkingBudget,
		Search:         a.Search,
		Maps:           a.Maps,
	}, nil
}

func (sp *SeriesProcessor) lazyGenerator(ctx context.Context, provider string) llm.Generator {
	return llm.GeneratorFunc(func(callCtx context.Context, req llm.Request) (*llm.Response, error) {
		g, err := sp.generator(ctx, provider)
		if err != nil {
			return nil, err
		}
		return g.Generate(callCtx, req)
	})
}

func (sp *SeriesProcessor) generator(ctx context.Context, provider string) (llm.Generator, error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if g, ok := sp.generators[provider]; ok {
		return g, nil
	}
	g, err := sp.factory(ctx, provider, sp.keys.forProvider(provider))
	if err != nil {
		return nil, fmt.Errorf("creating %s client: %w", provider, err)
	}
	sp.generators[provider] = g
	return g, nil
}
