package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/aktagon/history-writer/internal/citation"
)

// Gemini calls the Gemini API and reports Google Search and Maps grounding.
type Gemini struct {
	client *genai.Client
}

// GeminiOption configures NewGemini.
type GeminiOption func(*genai.ClientConfig)

// WithBaseURL points the client at another endpoint.
func WithBaseURL(url string) GeminiOption {
	return func(c *genai.ClientConfig) { c.HTTPOptions.BaseURL = url }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) GeminiOption {
	return func(c *genai.ClientConfig) { c.HTTPClient = hc }
}

// NewGemini creates a Gemini generator.
func NewGemini(ctx context.Context, apiKey string, opts ...GeminiOption) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Gemini{client: client}, nil
}

func (g *Gemini) Generate(ctx context.Context, req Request) (*Response, error) {
	resp, err := g.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), geminiConfig(req))
	if err != nil {
		return nil, fmt.Errorf("gemini %s: %w", req.Model, err)
	}

	out := &Response{
		Text:    resp.Text(),
		Sources: groundingSources(resp),
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].GroundingMetadata != nil {
		out.Queries = resp.Candidates[0].GroundingMetadata.WebSearchQueries
	}
	return out, nil
}

func geminiConfig(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.TopP > 0 {
		cfg.TopP = genai.Ptr(float32(req.TopP))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.ThinkingBudget != nil {
		cfg.ThinkingConfig = &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(int32(*req.ThinkingBudget)),
		}
	}
	if req.Search {
		cfg.Tools = append(cfg.Tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
	}
	if req.Maps {
		cfg.Tools = append(cfg.Tools, &genai.Tool{GoogleMaps: &genai.GoogleMaps{}})
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
		if req.Schema != "" && json.Valid([]byte(req.Schema)) {
			cfg.ResponseJsonSchema = json.RawMessage(req.Schema)
		}
	}
	return cfg
}

// groundingSources lists the web and maps chunks of the first candidate. A
// chunk is used when any grounding support points at its index.
func groundingSources(resp *genai.GenerateContentResponse) []citation.Source {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return nil
	}
	gm := resp.Candidates[0].GroundingMetadata

	used := make(map[int]bool)
	for _, support := range gm.GroundingSupports {
		if support == nil {
			continue
		}
		for _, idx := range support.GroundingChunkIndices {
			used[int(idx)] = true
		}
	}

	var sources []citation.Source
	for i, chunk := range gm.GroundingChunks {
		if chunk == nil {
			continue
		}
		if chunk.Web != nil && chunk.Web.URI != "" {
			sources = append(sources, citation.Source{
				URI:   chunk.Web.URI,
				Title: chunk.Web.Title,
				Kind:  citation.Web,
				Used:  used[i],
			})
		}
		if chunk.Maps != nil && chunk.Maps.URI != "" {
			sources = append(sources, citation.Source{
				URI:   chunk.Maps.URI,
				Title: chunk.Maps.Title,
				Kind:  citation.Maps,
				Used:  used[i],
			})
		}
	}
	return citation.Dedupe(sources)
}
