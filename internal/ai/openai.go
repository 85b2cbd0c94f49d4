// ABOUTME: OpenAI-backed implementation of the completion client contract
// ABOUTME: One blocking chat completion call per invocation, no streaming or retries

package ai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/campuschat/gateway/internal/store"
)

// Usage carries the token accounting returned by a completion provider.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// Completion is the result of a single completion call.
type Completion struct {
	Content string
	Usage   Usage
}

// CompletionClient produces one assistant completion for a prompt. The
// orchestrator invokes it exactly once per user turn.
type CompletionClient interface {
	Complete(ctx context.Context, prompt []PromptMessage) (*Completion, error)
}

// OpenAIClient calls the OpenAI chat completions API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a client for the given model. baseURL is
// optional and supports OpenAI-compatible providers.
func NewOpenAIClient(apiKey, baseURL, model string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIClient{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

// Complete performs one blocking chat completion.
func (c *OpenAIClient) Complete(ctx context.Context, prompt []PromptMessage) (*Completion, error) {
	params := openai.ChatCompletionNewParams{
		Messages: openai.F(make([]openai.ChatCompletionMessageParamUnion, 0, len(prompt))),
		Model:    openai.F(c.model),
	}
	for _, msg := range prompt {
		var content any = msg.Content
		params.Messages.Value = append(params.Messages.Value, openai.ChatCompletionMessageParam{
			Role:    openai.F(toParamRole(msg.Role)),
			Content: openai.F(content),
		})
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	return &Completion{
		Content: resp.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func toParamRole(role store.AIRole) openai.ChatCompletionMessageParamRole {
	switch role {
	case store.AIRoleSystem:
		return openai.ChatCompletionMessageParamRoleSystem
	case store.AIRoleAssistant:
		return openai.ChatCompletionMessageParamRoleAssistant
	default:
		return openai.ChatCompletionMessageParamRoleUser
	}
}
