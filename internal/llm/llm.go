package llm

import (
	"context"
	"errors"
	"strings"

	"plan-engine/internal/shared"
)

// ErrEmptyResponse is returned when a model produced no text.
var ErrEmptyResponse = errors.New("no content generated")

// ContentResponse contains the generated text and metadata like token usage.
type ContentResponse struct {
	Content string
	Usage   shared.TokenUsage
}

// TextGenerator is an interface for generating text from a prompt.
type TextGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (ContentResponse, error)
}

// Closer is an interface for closing resources.
type Closer interface {
	Close() error
}

// ExtractJSON returns the text between the first '{' and the last '}' of s.
// Models often wrap JSON in prose or code fences; s is returned unchanged
// when it holds no object.
func ExtractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
