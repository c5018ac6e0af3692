// Package llmtest provides a scripted llm.Generator for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/aktagon/history-writer/internal/citation"
	"github.com/aktagon/history-writer/internal/llm"
)

// ErrScriptExhausted is returned once every step has been used.
var ErrScriptExhausted = errors.New("llmtest: no scripted response left")

// Step is one scripted reply.
type Step struct {
	Response *llm.Response
	Err      error
}

// Reply returns a step answering text with the given sources.
func Reply(text string, sources ...citation.Source) Step {
	return Step{Response: &llm.Response{Text: text, Sources: sources}}
}

// Fail returns a step failing with err.
func Fail(err error) Step {
	return Step{Err: err}
}

// Scripted replays its steps in order and records every request.
type Scripted struct {
	mu       sync.Mutex
	steps    []Step
	requests []llm.Request
}

// New returns a generator that answers with steps in order.
func New(steps ...Step) *Scripted {
	return &Scripted{steps: steps}
}

func (s *Scripted) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.steps) == 0 {
		return nil, ErrScriptExhausted
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	return step.Response, step.Err
}

// Requests returns the requests received so far.
func (s *Scripted) Requests() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Request(nil), s.requests...)
}

// Calls returns the number of requests received.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Remaining returns the number of unused steps.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}
