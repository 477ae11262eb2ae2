package planner

import (
	"context"
	"fmt"

	clierr "github.com/intentfi/intentfi/internal/errors"
	"github.com/intentfi/intentfi/internal/intent"
	"github.com/intentfi/intentfi/internal/registry"
	"google.golang.org/genai"
)

const SourceGemini = "gemini"

type generateFunc func(ctx context.Context, prompt string) (string, error)

// Gemini asks for a descriptive step list. Its steps are shown to the user
// but never executed.
type Gemini struct {
	generate generateFunc
	networks *registry.Table
}

func NewGemini(ctx context.Context, apiKey, model string, networks *registry.Table) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	generate := func(ctx context.Context, prompt string) (string, error) {
		resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
		})
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	}
	return &Gemini{generate: generate, networks: networks}, nil
}

func (p *Gemini) Name() string { return SourceGemini }

func (p *Gemini) Generate(ctx context.Context, utterance string, chainID int64) (intent.Proposal, error) {
	text, err := p.generate(ctx, stepsUserPrompt(p.networks, chainID, utterance))
	if err != nil {
		return intent.Proposal{}, clierr.Wrap(clierr.CodeUnavailable, "gemini generate content", err)
	}
	steps, err := parseDescriptive(text)
	if err != nil {
		return intent.Proposal{}, err
	}
	return intent.Proposal{Source: SourceGemini, Steps: steps}, nil
}
