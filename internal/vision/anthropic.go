package vision

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reinvest-cli/internal/resilience"
	"github.com/sells-group/reinvest-cli/pkg/anthropic"
)

// AnthropicModel sends prompts through the Anthropic messages API.
type AnthropicModel struct {
	client anthropic.Client
	model  string
}

// NewAnthropicModel wraps an Anthropic client.
func NewAnthropicModel(client anthropic.Client, model string) *AnthropicModel {
	return &AnthropicModel{client: client, model: model}
}

// Name implements Model.
func (m *AnthropicModel) Name() string { return "anthropic" }

// Complete implements Model.
func (m *AnthropicModel) Complete(ctx context.Context, p Prompt) (string, error) {
	msg := anthropic.Message{Role: "user", Content: p.Question}
	if len(p.Image) > 0 {
		msg.Images = []anthropic.Image{{MediaType: mediaType(p), Data: p.Image}}
	}

	temp := 0.0
	resp, err := m.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       m.model,
		MaxTokens:   maxTokens(p),
		System:      p.System,
		Messages:    []anthropic.Message{msg},
		Temperature: &temp,
	})
	if err != nil {
		return "", resilience.Classify(eris.Wrap(err, "vision: anthropic"), anthropic.StatusCode(err))
	}
	resp.Usage.LogCost(m.model, p.Label)
	return resp.Text(), nil
}

func mediaType(p Prompt) string {
	if p.MediaType != "" {
		return p.MediaType
	}
	return "image/png"
}

func maxTokens(p Prompt) int64 {
	if p.MaxTokens > 0 {
		return p.MaxTokens
	}
	return defaultMaxTokens
}
