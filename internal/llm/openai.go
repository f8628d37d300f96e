package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	openaishared "github.com/openai/openai-go/v3/shared"

	"plan-engine/internal/shared"
)

// Base URLs of the OpenAI-compatible endpoints we talk to.
const (
	GroqBaseURL = "https://api.groq.com/openai/v1/"
)

// chatClient talks to any OpenAI-compatible chat completions endpoint:
// OpenAI itself, Groq, or a local Ollama server.
type chatClient struct {
	client      openai.Client
	model       string
	temperature float64
}

// NewChatClient creates a client for an OpenAI-compatible endpoint. An empty
// baseURL uses OpenAI. Retries are left to the caller.
func NewChatClient(apiKey, baseURL, model string, temperature float64) TextGenerator {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &chatClient{
		client:      openai.NewClient(opts...),
		model:       model,
		temperature: temperature,
	}
}

// GenerateContent sends a prompt as a single user message and asks for a JSON object back.
func (c *chatClient) GenerateContent(ctx context.Context, prompt string) (ContentResponse, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(c.temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openaishared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return ContentResponse{}, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return ContentResponse{}, ErrEmptyResponse
	}

	return ContentResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: shared.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
			Model:            resp.Model,
		},
	}, nil
}
