package llm

import (
	"context"
	"fmt"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"
)

const defaultAnthropicMaxTokens = 4096

type promptFunc func(system, user, schema, apiKey string, settings types.RequestSettings) (string, error)

// Anthropic calls the Messages API through llmkit. It has no grounding
// tools, so it serves the planner, writer and summarizer only.
type Anthropic struct {
	apiKey string
	prompt promptFunc
}

// NewAnthropic creates an Anthropic generator.
func NewAnthropic(apiKey string) (*Anthropic, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	return &Anthropic{apiKey: apiKey, prompt: promptAnthropic}, nil
}

func (a *Anthropic) Generate(ctx context.Context, req Request) (*Response, error) {
	if req.Search || req.Maps {
		return nil, fmt.Errorf("anthropic grounding: %w", ErrUnsupported)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	settings := types.RequestSettings{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
	if settings.MaxTokens <= 0 {
		settings.MaxTokens = defaultAnthropicMaxTokens
	}

	schema := ""
	if req.JSON {
		schema = req.Schema
	}

	text, err := a.prompt(req.System, req.Prompt, schema, a.apiKey, settings)
	if err != nil {
		return nil, fmt.Errorf("anthropic %s: %w", req.Model, err)
	}
	return &Response{Text: text}, nil
}

func promptAnthropic(system, user, schema, apiKey string, settings types.RequestSettings) (string, error) {
	response, err := anthropic.PromptWithSettings(system, user, schema, apiKey, settings)
	if err != nil {
		return "", err
	}
	if len(response.Content) == 0 {
		return "", fmt.Errorf("no content in response")
	}
	return response.Content[0].Text, nil
}
