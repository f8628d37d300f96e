package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// VertexClient calls Gemini models hosted on Vertex AI.
type VertexClient struct {
	client      *genai.Client
	modelName   string
	temperature float32
}

// NewVertexClient creates a client for Gemini on Vertex AI using
// application default credentials.
func NewVertexClient(ctx context.Context, project, location, modelName string, temperature float32) (*VertexClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend:  genai.BackendVertexAI,
		Project:  project,
		Location: location,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}
	return &VertexClient{client: client, modelName: modelName, temperature: temperature}, nil
}

// GenerateContent sends a prompt to the model in JSON response mode.
func (c *VertexClient) GenerateContent(ctx context.Context, prompt string) (ContentResponse, error) {
	res, err := c.client.Models.GenerateContent(ctx, c.modelName, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(c.temperature),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return ContentResponse{}, fmt.Errorf("failed to generate content: %w", err)
	}
	if len(res.Candidates) == 0 || res.Candidates[0].Content == nil ||
		len(res.Candidates[0].Content.Parts) == 0 || res.Candidates[0].Content.Parts[0].Text == "" {
		return ContentResponse{}, ErrEmptyResponse
	}

	out := ContentResponse{Content: res.Candidates[0].Content.Parts[0].Text}
	out.Usage.Model = c.modelName
	if md := res.UsageMetadata; md != nil {
		out.Usage.PromptTokens = int(md.PromptTokenCount)
		out.Usage.CompletionTokens = int(md.CandidatesTokenCount)
		out.Usage.TotalTokens = int(md.TotalTokenCount)
	}
	return out, nil
}
