// Package vision asks a multimodal model for the retained earnings figure on
// a rendered statement page. Every failure degrades to "no value".
package vision

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reinvest-cli/internal/config"
	"github.com/sells-group/reinvest-cli/pkg/anthropic"
)

// Prompt is one request to a model. Image may be nil for text-only prompts.
type Prompt struct {
	System    string
	Question  string
	Image     []byte
	MediaType string
	MaxTokens int64
	// Label identifies the document in logs.
	Label string
}

// Model is a multimodal completion endpoint.
type Model interface {
	Name() string
	Complete(ctx context.Context, p Prompt) (string, error)
}

// NewModel builds the model selected by cfg.Vision.Provider. It returns nil
// for provider "none".
func NewModel(ctx context.Context, cfg *config.Config) (Model, error) {
	switch cfg.Vision.Provider {
	case "", "none":
		return nil, nil
	case "anthropic":
		return NewAnthropicModel(anthropic.NewClient(cfg.Anthropic.Key, cfg.Anthropic.BaseURL), cfg.Anthropic.Model), nil
	case "openai":
		return NewOpenAIModel(cfg.OpenAI.Key, cfg.OpenAI.BaseURL, cfg.OpenAI.Model), nil
	case "gemini":
		return NewGeminiModel(ctx, cfg.Gemini.Key, cfg.Gemini.BaseURL, cfg.Gemini.Model)
	default:
		return nil, eris.Errorf("vision: unknown provider %q", cfg.Vision.Provider)
	}
}
