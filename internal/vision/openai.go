package vision

import (
	"context"
	"encoding/base64"
	"errors"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rotisserie/eris"

	"github.com/sells-group/reinvest-cli/internal/resilience"
)

// OpenAIModel sends prompts through the OpenAI chat completions API. Images
// travel as base64 data URLs.
type OpenAIModel struct {
	client openai.Client
	model  string
}

// NewOpenAIModel creates an OpenAI-backed model. Retries are handled by the
// strategy, so the SDK's own retries are disabled.
func NewOpenAIModel(apiKey, baseURL, model string) *OpenAIModel {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIModel{client: openai.NewClient(opts...), model: model}
}

// Name implements Model.
func (m *OpenAIModel) Name() string { return "openai" }

// Complete implements Model.
func (m *OpenAIModel) Complete(ctx context.Context, p Prompt) (string, error) {
	parts := []openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(p.Question)}
	if len(p.Image) > 0 {
		url := "data:" + mediaType(p) + ";base64," + base64.StdEncoding.EncodeToString(p.Image)
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}))
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if p.System != "" {
		messages = append(messages, openai.SystemMessage(p.System))
	}
	messages = append(messages, openai.UserMessage(parts))

	resp, err := m.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(m.model),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(maxTokens(p)),
		Temperature:         openai.Float(0),
	})
	if err != nil {
		status := 0
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return "", resilience.Classify(eris.Wrap(err, "vision: openai"), status)
	}
	if len(resp.Choices) == 0 {
		return "", eris.New("vision: openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
