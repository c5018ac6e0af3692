// Package llm is the boundary to the text generation providers.
package llm

import (
	"context"
	"errors"

	"github.com/aktagon/history-writer/internal/citation"
)

// Provider names accepted in settings.
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

var (
	// ErrMalformedOutput means a structured response could not be normalized,
	// parsed or validated.
	ErrMalformedOutput = errors.New("malformed model output")

	// ErrUnsupported means the provider cannot serve a request option.
	ErrUnsupported = errors.New("unsupported by provider")
)

// Generator produces one completion.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Request describes one model call.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	TopP        float64
	MaxTokens   int

	// ThinkingBudget is passed through when set. -1 lets the model decide.
	ThinkingBudget *int

	// Search and Maps enable grounding tools.
	Search bool
	Maps   bool

	// JSON asks for a JSON response. Schema, when set, is the JSON schema the
	// response must follow.
	JSON   bool
	Schema string
}

// Response is the model text plus any grounding sources.
type Response struct {
	Text    string
	Sources []citation.Source
	Queries []string
}

// WebSources counts the web grounding sources.
func (r *Response) WebSources() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, s := range r.Sources {
		if s.Kind == citation.Web {
			n++
		}
	}
	return n
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (*Response, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}
