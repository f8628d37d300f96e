package llm

import (
	"context"
	"errors"
	"fmt"

	"plan-engine/internal/config"
)

// ErrNoProvider is returned by the generator used when no LLM is configured.
var ErrNoProvider = errors.New("no llm provider configured")

type disabledGenerator struct{}

func (disabledGenerator) GenerateContent(ctx context.Context, prompt string) (ContentResponse, error) {
	return ContentResponse{}, ErrNoProvider
}

// NewFromConfig builds the generator selected by cfg.LLMProvider. The
// returned Closer is nil when the client holds no resources.
func NewFromConfig(ctx context.Context, cfg *config.Config, temperature float32) (TextGenerator, Closer, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		c, err := NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, temperature)
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	case config.ProviderVertex:
		c, err := NewVertexClient(ctx, cfg.VertexProject, cfg.VertexLocation, cfg.VertexModel, temperature)
		if err != nil {
			return nil, nil, err
		}
		return c, nil, nil
	case config.ProviderGroq:
		return NewChatClient(cfg.GroqAPIKey, GroqBaseURL, cfg.GroqModel, float64(temperature)), nil, nil
	case config.ProviderOpenAI:
		return NewChatClient(cfg.OpenAIAPIKey, "", cfg.OpenAIModel, float64(temperature)), nil, nil
	case config.ProviderOllama:
		// Ollama ignores the key but the client insists on one.
		return NewChatClient("ollama", cfg.OllamaBaseURL, cfg.OllamaModel, float64(temperature)), nil, nil
	case config.ProviderNone:
		return disabledGenerator{}, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
}
