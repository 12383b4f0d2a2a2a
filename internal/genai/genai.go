// Package genai wraps the OpenAI chat completion API for FlowSync.
//
// The classifier uses it for its generative fallback. The wrapper keeps
// the OpenAI client behind a small interface so tests can substitute a
// mock chat service.
package genai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultModel is used when no model is configured.
const DefaultModel = openai.ChatModelGPT4oMini

// ClientInterface defines the generative operations used by the classifier.
type ClientInterface interface {
	// GenerateWithMessages produces a completion for the given message
	// sequence.
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
	// GenerateJSONWithMessages produces a completion constrained to a JSON
	// object.
	GenerateJSONWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
}

// chatService abstracts the OpenAI chat completion call for testing.
type chatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Opts holds optional configuration for the client.
type Opts struct {
	// APIKey is the OpenAI API key.
	APIKey string
	// Model overrides the default chat model.
	Model string
}

// Option configures client creation.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// Client calls the OpenAI chat completion API.
type Client struct {
	chat  chatService
	model string
}

// NewClient creates a GenAI client. The API key is required.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	client := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("GenAI client initialized", "model", cfg.Model)
	return &Client{chat: &client.Chat.Completions, model: cfg.Model}, nil
}

// GenerateWithMessages produces a completion for the given message sequence.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	return c.generate(ctx, messages, false)
}

// GenerateJSONWithMessages produces a completion constrained to a JSON
// object via the response_format parameter.
func (c *Client) GenerateJSONWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	return c.generate(ctx, messages, true)
}

func (c *Client) generate(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, jsonMode bool) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	}
	if jsonMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}
	completion, err := c.chat.New(ctx, params)
	if err != nil {
		slog.Error("GenAI chat completion failed", "error", err, "model", c.model)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}
