// Package llm adapts the OpenAI API to the minimal text-completion surface
// automations depend on. Automations never import the provider SDK directly.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var (
	// ErrAPIKeyRequired indicates a client was requested without a key.
	ErrAPIKeyRequired = errors.New("api key is required")
	// ErrModelRequired indicates a client was requested without a model name.
	ErrModelRequired = errors.New("model is required")
	// ErrEmptyCompletion indicates the provider returned no usable text.
	ErrEmptyCompletion = errors.New("empty completion")
)

// Client is an OpenAI-backed text model.
type Client struct {
	api   openai.Client
	model openai.ChatModel
}

// NewClient builds a text model client for one owner's credential.
func NewClient(apiKey, model string) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, ErrModelRequired
	}
	return &Client{
		api:   openai.NewClient(option.WithAPIKey(apiKey)),
		model: openai.ChatModel(model),
	}, nil
}

// Complete sends one prompt and returns the model's text response.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if c == nil {
		return "", errors.New("client is not configured")
	}
	completion, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
