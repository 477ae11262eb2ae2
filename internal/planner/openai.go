package planner

import (
	"context"
	"strings"

	clierr "github.com/intentfi/intentfi/internal/errors"
	"github.com/intentfi/intentfi/internal/intent"
	"github.com/intentfi/intentfi/internal/registry"
	"github.com/sashabaranov/go-openai"
)

const SourceOpenAI = "openai"

// OpenAI asks a chat-completions model for a strict JSON list of contract
// calls. It only plans; dispatch happens in the pipeline afterwards.
type OpenAI struct {
	client   *openai.Client
	model    string
	networks *registry.Table
}

func NewOpenAI(apiKey, baseURL, model string, networks *registry.Table) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model, networks: networks}
}

func (p *OpenAI) Name() string { return SourceOpenAI }

func (p *OpenAI) Generate(ctx context.Context, utterance string, chainID int64) (intent.Proposal, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: operationsSystemPrompt(p.networks, chainID)},
			{Role: openai.ChatMessageRoleUser, Content: utterance},
		},
	})
	if err != nil {
		return intent.Proposal{}, clierr.Wrap(clierr.CodeUnavailable, "openai chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return intent.Proposal{}, clierr.New(clierr.CodePlanGeneration, "openai returned no choices")
	}
	ops, err := parseOperations(resp.Choices[0].Message.Content, p.networks, chainID)
	if err != nil {
		return intent.Proposal{}, err
	}
	return intent.Proposal{Source: SourceOpenAI, Operations: ops}, nil
}
