// Package pipeline runs the model stages of one generation cycle: research,
// planning and writing for history series, and passage writing plus
// summarizing for story series.
package pipeline

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/aktagon/history-writer/internal/citation"
	"github.com/aktagon/history-writer/internal/llm"
)

//go:embed schemas/planner.json
var plannerSchemaJSON string

//go:embed schemas/writer.json
var writerSchemaJSON string

//go:embed schemas/summarizer.json
var summarizerSchemaJSON string

var (
	plannerSchema    = llm.MustCompileSchema("planner", plannerSchemaJSON)
	writerSchema     = llm.MustCompileSchema("writer", writerSchemaJSON)
	summarizerSchema = llm.MustCompileSchema("summarizer", summarizerSchemaJSON)
)

// SourceResolver turns grounding redirect links into final URLs with titles.
type SourceResolver interface {
	ResolveSources(ctx context.Context, sources []citation.Source) []citation.Source
}

// Agent is one model role with its generation settings.
type Agent struct {
	Generator      llm.Generator
	Model          string
	Temperature    float64
	TopP           float64
	MaxTokens      int
	ThinkingBudget *int
	Search         bool
	Maps           bool
}

func (a Agent) request(system, prompt string, schema *llm.Schema) llm.Request {
	req := llm.Request{
		Model:          a.Model,
		System:         system,
		Prompt:         prompt,
		Temperature:    a.Temperature,
		TopP:           a.TopP,
		MaxTokens:      a.MaxTokens,
		ThinkingBudget: a.ThinkingBudget,
		Search:         a.Search,
		Maps:           a.Maps,
	}
	// grounding tools cannot be combined with a JSON response type
	if schema != nil && !a.Search && !a.Maps {
		req.JSON = true
		req.Schema = schema.Raw()
	}
	return req
}

// generateJSON calls the agent and decodes its reply into v.
func (a Agent) generateJSON(ctx context.Context, system, prompt string, schema *llm.Schema, v any) error {
	if a.Generator == nil {
		return fmt.Errorf("no generator configured for %s", schema.Name())
	}
	resp, err := a.Generator.Generate(ctx, a.request(system, prompt, schema))
	if err != nil {
		return err
	}
	if err := llm.Decode(resp.Text, schema, v); err != nil {
		return fmt.Errorf("decoding %s output: %w", schema.Name(), err)
	}
	return nil
}

// promptData is the data every prompt template is rendered with.
type promptData struct {
	Day           int
	Topic         string
	Year          string
	LastTopic     string
	LastYear      string
	Research      string
	NextTopic     string
	NextYear      string
	Reasoning     string
	PreviewHeader string
	SeedTopic     string
	SeedYear      string
	Window        int

	Synopsis    string
	StoryBible  string
	LastPassage string
	PlotLog     string
	Passage     string
	Sentinel    string
}
